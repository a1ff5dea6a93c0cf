package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/nstogner/roster/pkg/domain"
	"github.com/nstogner/roster/pkg/stream"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

func decodeChatRequest(w http.ResponseWriter, r *http.Request) (domain.ChatRequest, error) {
	var req domain.ChatRequest
	if err := decodeBody(w, r, &req); err != nil {
		return req, err
	}
	if strings.TrimSpace(req.Message) == "" {
		return req, fmt.Errorf("%w: message is required", domain.ErrInvalidInput)
	}
	return req, nil
}

// --- Chat ---

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, err := decodeChatRequest(w, r)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	if !s.ctrl.Configured() {
		s.errorResponse(w, http.StatusServiceUnavailable, domain.ErrConfiguration)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")

	sw := stream.NewWriter(w)
	if _, err := s.ctrl.HandleStream(r.Context(), req, sw); err != nil {
		if !sw.Started() && errors.Is(err, domain.ErrConfiguration) {
			s.errorResponse(w, http.StatusServiceUnavailable, err)
			return
		}
		s.logger.Error("Chat stream failed", "error", err)
	}
}

func (s *Server) handleChatComplete(w http.ResponseWriter, r *http.Request) {
	req, err := decodeChatRequest(w, r)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err)
		return
	}

	res, err := s.ctrl.Handle(r.Context(), req, nil)
	if err != nil {
		s.errorResponse(w, statusFor(err), err)
		return
	}
	s.jsonResponse(w, http.StatusOK, res)
}

// --- Users ---

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.List(r.Context(), filterFromQuery(r.URL.Query()))
	if err != nil {
		s.errorResponse(w, statusFor(err), err)
		return
	}
	if users == nil {
		users = []domain.User{}
	}
	s.jsonResponse(w, http.StatusOK, users)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var fields domain.UserFields
	if err := decodeBody(w, r, &fields); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	u, err := s.users.Insert(r.Context(), fields)
	if err != nil {
		s.errorResponse(w, statusFor(err), err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, u)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.users.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, statusFor(err), err)
		return
	}
	s.jsonResponse(w, http.StatusOK, u)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var fields domain.UserFields
	if err := decodeBody(w, r, &fields); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	if fields.IsEmpty() {
		s.errorResponse(w, http.StatusBadRequest, fmt.Errorf("%w: no fields to update", domain.ErrInvalidInput))
		return
	}
	u, err := s.users.UpdateByID(r.Context(), r.PathValue("id"), fields)
	if err != nil {
		s.errorResponse(w, statusFor(err), err)
		return
	}
	s.jsonResponse(w, http.StatusOK, u)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := s.users.DeleteByID(r.Context(), r.PathValue("id")); err != nil {
		s.errorResponse(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// filterFromQuery maps list query parameters onto a FilterSpec. Role and
// department accept repeated or comma-separated values.
func filterFromQuery(q url.Values) domain.FilterSpec {
	f := domain.FilterSpec{
		Name:      q.Get("name"),
		Email:     q.Get("email"),
		Phone:     q.Get("phone"),
		MinAge:    q.Get("minAge"),
		MaxAge:    q.Get("maxAge"),
		SortBy:    domain.SortField(q.Get("sortBy")),
		SortOrder: domain.SortOrder(q.Get("sortOrder")),
	}
	for _, v := range q["role"] {
		f.Role.Add(strings.Split(v, ",")...)
	}
	for _, v := range q["department"] {
		f.Department.Add(strings.Split(v, ",")...)
	}
	return f
}

// --- Vocabulary ---

func (s *Server) handleVocabulary(w http.ResponseWriter, r *http.Request) {
	v, err := s.ctrl.Vocabulary(r.Context())
	if err != nil {
		s.errorResponse(w, statusFor(err), err)
		return
	}
	if v.Roles == nil {
		v.Roles = []string{}
	}
	if v.Departments == nil {
		v.Departments = []string{}
	}
	s.jsonResponse(w, http.StatusOK, v)
}
