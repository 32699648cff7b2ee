package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/flashbots/batchclear/engine"
	"github.com/flashbots/batchclear/protocol"
)

// Handler exposes the auction engine over HTTP. Commit, reveal and
// deposit requests arrive inside signed envelopes; the recovered signer
// is the acting participant, so no separate session layer exists.
type Handler struct {
	engine *engine.Engine
}

// NewHandler creates a handler for the given engine.
func NewHandler(e *engine.Engine) *Handler {
	return &Handler{engine: e}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/v1/deposit", h.deposit)
	r.Post("/api/v1/batch/commit", h.commit)
	r.Post("/api/v1/batch/reveal", h.reveal)
	r.Get("/api/v1/batch/current", h.currentBatch)
	r.Get("/api/v1/batch/{batchID}/state", h.batchState)
	r.Get("/api/v1/batch/{batchID}/clearing", h.batchClearing)
	r.Get("/api/v1/batch/{batchID}/audit", h.batchAudit)
	r.Get("/api/v1/config", h.config)
}

// statusFor maps the engine's error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, protocol.ErrUnknownBatch),
		errors.Is(err, protocol.ErrUnknownCommitment):
		return http.StatusNotFound
	case errors.Is(err, protocol.ErrNotOwnCommitment):
		return http.StatusForbidden
	case errors.Is(err, protocol.ErrPhaseViolation),
		errors.Is(err, protocol.ErrDuplicateCommitment):
		return http.StatusConflict
	case errors.Is(err, protocol.ErrInsufficientCollateral),
		errors.Is(err, protocol.ErrInsufficientBalance):
		return http.StatusPaymentRequired
	case errors.Is(err, protocol.ErrInvalidReveal),
		errors.Is(err, protocol.ErrProofDifficultyTooLow):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// recoverSigner decodes a signed envelope and returns its payload along
// with the hex form of the recovered signing key.
func recoverSigner[T any](r *http.Request) (*T, string, error) {
	defer r.Body.Close()
	signed, err := protocol.DecodeMessage[protocol.Signed[T]](r.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to parse request: %w", err)
	}
	obj, signer, err := signed.Recover()
	if err != nil {
		return nil, "", fmt.Errorf("failed to recover signer: %w", err)
	}
	return obj, signer.String(), nil
}

func (h *Handler) deposit(w http.ResponseWriter, r *http.Request) {
	req, signer, err := recoverSigner[protocol.DepositRequest](r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.engine.Deposit(signer, req); err != nil {
		http.Error(w, fmt.Sprintf("failed to deposit: %v", err), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (h *Handler) commit(w http.ResponseWriter, r *http.Request) {
	req, signer, err := recoverSigner[protocol.CommitRequest](r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp, err := h.engine.Commit(signer, req)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to commit: %v", err), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) reveal(w http.ResponseWriter, r *http.Request) {
	req, signer, err := recoverSigner[protocol.RevealRequest](r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp, err := h.engine.Reveal(signer, req)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to reveal: %v", err), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) currentBatch(w http.ResponseWriter, r *http.Request) {
	batchID := h.engine.Scheduler().CurrentBatch()
	state, err := h.engine.BatchState(batchID)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to get batch state: %v", err), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func batchIDParam(r *http.Request) (uint64, error) {
	return strconv.ParseUint(chi.URLParam(r, "batchID"), 10, 64)
}

func (h *Handler) batchState(w http.ResponseWriter, r *http.Request) {
	batchID, err := batchIDParam(r)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid batch id: %v", err), http.StatusBadRequest)
		return
	}

	state, err := h.engine.BatchState(batchID)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to get batch state: %v", err), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// batchClearing serves a batch's clearing result. Until the batch leaves
// its reveal phase there is nothing to serve, and the distinction
// between "not yet" and "no such batch" is preserved in the status code.
func (h *Handler) batchClearing(w http.ResponseWriter, r *http.Request) {
	batchID, err := batchIDParam(r)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid batch id: %v", err), http.StatusBadRequest)
		return
	}

	result, err := h.engine.ClearingOutcome(batchID)
	if err != nil {
		if errors.Is(err, protocol.ErrPhaseViolation) {
			http.Error(w, fmt.Sprintf("no clearing yet: %v", err), http.StatusNotFound)
			return
		}
		if errors.Is(err, protocol.ErrArithmeticOverflow) {
			http.Error(w, fmt.Sprintf("batch voided: %v", err), http.StatusGone)
			return
		}
		http.Error(w, fmt.Sprintf("failed to get clearing: %v", err), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) batchAudit(w http.ResponseWriter, r *http.Request) {
	batchID, err := batchIDParam(r)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid batch id: %v", err), http.StatusBadRequest)
		return
	}

	if _, err := h.engine.BatchState(batchID); err != nil {
		http.Error(w, fmt.Sprintf("failed to get batch: %v", err), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Audit(batchID))
}

func (h *Handler) config(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.EngineConfig())
}
