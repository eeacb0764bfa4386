package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/pearlgull/pearlgull/internal/chat"
	"github.com/pearlgull/pearlgull/internal/schema"
	"github.com/pearlgull/pearlgull/internal/store"
)

// responsesRequest is the body of POST /v1/responses.
type responsesRequest struct {
	ThreadID        string `json:"thread_id"`
	Input           string `json:"input"`
	Model           string `json:"model,omitempty"`
	MaxOutputTokens int    `json:"max_output_tokens,omitempty"`
}

// handleResponses runs one turn and streams its events as SSE. Closing
// the connection cancels the turn; a cancelled turn is never recorded.
func (s *Server) handleResponses(w http.ResponseWriter, r *http.Request) {
	var req responsesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ThreadID == "" || req.Input == "" {
		writeError(w, http.StatusBadRequest, "thread_id and input are required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	emit := func(ev schema.TurnEvent) {
		data, err := json.Marshal(ev)
		if err != nil {
			s.logger.Error("encode event", "error", err)
			return
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
		flusher.Flush()
	}

	err := s.engine.Run(r.Context(), chat.TurnRequest{
		ThreadID:        req.ThreadID,
		UserText:        req.Input,
		Model:           req.Model,
		MaxOutputTokens: req.MaxOutputTokens,
	}, emit)
	if err != nil {
		// The error already went out as a done event on the stream.
		s.logger.Error("turn failed", "thread", req.ThreadID, "error", err)
	}
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.client.ListModels(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": models})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.Profile(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handlePutProfile(w http.ResponseWriter, r *http.Request) {
	var p schema.Profile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.store.SaveProfile(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleThreads(w http.ResponseWriter, r *http.Request) {
	threads, err := s.store.ListThreads(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if threads == nil {
		threads = []schema.Thread{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": threads})
}

func (s *Server) handleThreadMemory(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("id")
	snap, err := s.engine.MemorySnapshot(r.Context(), threadID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "thread not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
