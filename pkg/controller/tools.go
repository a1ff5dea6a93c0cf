package controller

import (
	"context"
	"sync"

	"github.com/nstogner/roster/pkg/domain"
	"github.com/nstogner/roster/pkg/model"
)

// executeTools runs every call concurrently and returns the outcomes in call
// order. Undecodable calls become failures without touching the store.
func (c *Controller) executeTools(ctx context.Context, calls []model.ToolCall) []domain.ToolOutcome {
	outcomes := make([]domain.ToolOutcome, len(calls))

	var wg sync.WaitGroup
	for i, tc := range calls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inv, err := domain.DecodeToolInvocation(tc.ID, tc.Name, tc.Args)
			if err != nil {
				c.logger.Warn("undecodable tool call", "tool", tc.Name, "callID", tc.ID, "error", err)
				outcomes[i] = domain.Failed(domain.ToolInvocation{ID: tc.ID, Tool: domain.ToolName(tc.Name)}, err.Error())
				return
			}
			outcomes[i] = c.resolver.Apply(ctx, inv)
		}()
	}
	wg.Wait()
	return outcomes
}

// toolResultMessage packs the outcomes into one tool message for the
// follow-up model round.
func toolResultMessage(outcomes []domain.ToolOutcome) model.Message {
	msg := model.Message{Role: domain.RoleTool}
	for _, o := range outcomes {
		msg.Content = append(msg.Content, model.Content{
			Type: model.ContentTypeToolResult,
			ToolResult: &model.ToolResult{
				ToolCallID: o.CallID,
				Name:       string(o.Tool),
				Content:    o.Text(),
				IsError:    o.IsError(),
			},
		})
	}
	return msg
}
