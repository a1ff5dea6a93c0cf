package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/nstogner/roster/pkg/domain"
	"github.com/nstogner/roster/pkg/stream"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Frame types sent over the chat WebSocket, in protocol order.
const (
	FrameStatus   = "status"
	FrameMetadata = "metadata"
	FrameContent  = "content"
	FrameError    = "error"
	FrameDone     = "done"
)

// Frame is one server message on the chat WebSocket.
type Frame struct {
	Type     string           `json:"type"`
	Status   string           `json:"status,omitempty"`
	Metadata *stream.Metadata `json:"metadata,omitempty"`
	Content  string           `json:"content,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// wsSink writes protocol elements as JSON frames.
type wsSink struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (s *wsSink) send(f Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ws.WriteJSON(f)
}

func (s *wsSink) WriteStatus(status string) error {
	return s.send(Frame{Type: FrameStatus, Status: status})
}

func (s *wsSink) WriteMetadata(m stream.Metadata) error {
	return s.send(Frame{Type: FrameMetadata, Metadata: &m})
}

func (s *wsSink) WriteContent(fragment string) error {
	return s.send(Frame{Type: FrameContent, Content: fragment})
}

func (s *wsSink) WriteError(msg string) error {
	return s.send(Frame{Type: FrameError, Error: msg})
}

var _ stream.ErrorSink = (*wsSink)(nil)

// handleChatWebSocket serves one chat request per client frame. Requests on
// a connection are handled one at a time.
func (s *Server) handleChatWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade websocket", "error", err)
		return
	}
	defer ws.Close()

	sink := &wsSink{ws: ws}
	for {
		var req domain.ChatRequest
		if err := ws.ReadJSON(&req); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				if err := sink.WriteError("invalid chat request: " + err.Error()); err != nil {
					return
				}
				continue
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("WebSocket read error", "error", err)
			}
			return
		}

		if strings.TrimSpace(req.Message) == "" {
			if err := sink.WriteError("message is required"); err != nil {
				return
			}
			continue
		}
		if !s.ctrl.Configured() {
			if err := sink.WriteError(domain.ErrConfiguration.Error()); err != nil {
				return
			}
			continue
		}

		if _, err := s.ctrl.HandleStream(r.Context(), req, stream.NewSinkWriter(sink)); err != nil {
			s.logger.Error("WebSocket chat failed", "error", err)
		}
		if err := sink.send(Frame{Type: FrameDone}); err != nil {
			return
		}
	}
}
