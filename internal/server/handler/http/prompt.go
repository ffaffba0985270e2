package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/awnumar/memguard"
	"github.com/go-chi/chi/v5"

	"github.com/atinyakov/keywarden/internal/client/prompt"
	"github.com/atinyakov/keywarden/internal/passphrase"
)

// PromptBoard lists the passphrase prompts shown to the user interface.
type PromptBoard interface {
	// Open returns the prompts awaiting a passphrase.
	Open() []prompt.Prompt
	// Get returns the prompt for token, including closed ones still retained.
	Get(token string) (prompt.Prompt, bool)
}

// PassphraseSink receives the user's answers to prompts.
type PassphraseSink interface {
	// Submit delivers a candidate passphrase for token.
	Submit(ctx context.Context, token string, passphrase []byte) error
	// Cancel aborts the request for token and reports whether one was pending.
	Cancel(token string) bool
	// Pending lists the requests still waiting on a passphrase.
	Pending() []passphrase.Status
}

// PromptHandler handles HTTP requests of a user interface answering
// passphrase prompts.
type PromptHandler struct {
	Board PromptBoard
	Sink  PassphraseSink
}

// SubmitRequest is the JSON payload of a passphrase submission.
type SubmitRequest struct {
	Passphrase string `json:"passphrase"`
}

// List handles GET /api/passphrase/requests and returns the open prompts.
func (h *PromptHandler) List(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.Board.Open())
}

// Pending handles GET /api/passphrase/pending and returns the requests the
// gate still holds, including those between two attempts.
func (h *PromptHandler) Pending(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.Sink.Pending())
}

// Get handles GET /api/passphrase/requests/{token}.
func (h *PromptHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := h.Board.Get(chi.URLParam(r, "token"))
	if !ok {
		http.Error(w, "prompt not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(p)
}

// Submit handles POST /api/passphrase/requests/{token}. The candidate is
// accepted for validation with 202; the outcome shows on the prompt.
func (h *PromptHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	candidate := []byte(req.Passphrase)
	defer memguard.WipeBytes(candidate)

	err := h.Sink.Submit(r.Context(), chi.URLParam(r, "token"), candidate)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusAccepted)
	case errors.Is(err, passphrase.ErrEmptyPassphrase):
		http.Error(w, "empty passphrase", http.StatusBadRequest)
	case errors.Is(err, passphrase.ErrNoPrompt):
		http.Error(w, "no prompt awaiting input", http.StatusConflict)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// Cancel handles DELETE /api/passphrase/requests/{token}.
func (h *PromptHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if !h.Sink.Cancel(chi.URLParam(r, "token")) {
		http.Error(w, "prompt not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
