// Package pipeline implements the HTTP surface of the pipeline service.
//
// Routes:
//
//	GET   /candidates?jobId=&stage=        → list a job's candidates
//	POST  /candidates                      → add candidate to a job's pipeline
//	GET   /candidates/{id}                 → fetch one candidate
//	PATCH /candidates/{id}/transition      → move candidate to a new stage
//	POST  /candidates/{id}/score           → set evaluation score (0-100)
//	GET   /funnel?jobId=                   → funnel report with bottleneck
package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
)

// Handler holds shared dependencies.
type Handler struct {
	svc *Service
}

// NewHandler returns a configured Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts all pipeline-service routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/candidates", h.handleCandidates)
	mux.HandleFunc("/candidates/", h.handleCandidateAction)
	mux.HandleFunc("/funnel", h.handleFunnel)
}

// ─── Route dispatch ───────────────────────────────────────────────────────────

// handleCandidates handles GET|POST /candidates
func (h *Handler) handleCandidates(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listCandidates(w, r)
	case http.MethodPost:
		h.addCandidate(w, r)
	default:
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleCandidateAction handles /candidates/{id} and /candidates/{id}/{action}
func (h *Handler) handleCandidateAction(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")

	switch {
	case len(parts) == 2:
		if r.Method != http.MethodGet {
			jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.getCandidate(w, r, parts[1])
	case len(parts) == 3:
		candidateID := parts[1]
		switch action := parts[2]; action {
		case "transition":
			if r.Method != http.MethodPatch {
				jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
				return
			}
			h.transition(w, r, candidateID)
		case "score":
			if r.Method != http.MethodPost {
				jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
				return
			}
			h.setScore(w, r, candidateID)
		default:
			jsonError(w, fmt.Sprintf("unknown action %q", action), http.StatusNotFound)
		}
	default:
		jsonError(w, "invalid path", http.StatusNotFound)
	}
}

// handleFunnel handles GET /funnel?jobId=
func (h *Handler) handleFunnel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	report, err := h.svc.Funnel(r.Context(), r.URL.Query().Get("jobId"))
	if err != nil {
		h.writeServiceError(w, "funnel", err)
		return
	}
	jsonOK(w, report)
}

// ─── Individual handlers ──────────────────────────────────────────────────────

func (h *Handler) listCandidates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	candidates, err := h.svc.ListCandidates(r.Context(), q.Get("jobId"), q.Get("stage"))
	if err != nil {
		h.writeServiceError(w, "listCandidates", err)
		return
	}
	jsonOK(w, candidates)
}

func (h *Handler) addCandidate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		JobID    string `json:"jobId"`
		FullName string `json:"fullName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.JobID == "" {
		jsonError(w, "body must contain jobId", http.StatusBadRequest)
		return
	}

	c, err := h.svc.AddCandidate(r.Context(), body.JobID, body.FullName)
	if err != nil {
		h.writeServiceError(w, "addCandidate", err)
		return
	}
	jsonOK(w, c)
}

func (h *Handler) getCandidate(w http.ResponseWriter, r *http.Request, candidateID string) {
	c, err := h.svc.GetCandidate(r.Context(), candidateID)
	if err != nil {
		h.writeServiceError(w, "getCandidate", err)
		return
	}
	jsonOK(w, c)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, candidateID string) {
	var body struct {
		TargetStage string `json:"targetStage"`
		Note        string `json:"note"`
		RequestID   string `json:"requestId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.TargetStage == "" {
		jsonError(w, "body must contain targetStage", http.StatusBadRequest)
		return
	}

	state, err := h.svc.RequestTransition(r.Context(), candidateID, body.TargetStage, body.Note, body.RequestID)
	if err != nil {
		h.writeServiceError(w, "transition", err)
		return
	}
	jsonOK(w, state)
}

func (h *Handler) setScore(w http.ResponseWriter, r *http.Request, candidateID string) {
	var body struct {
		Score *float64 `json:"score"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Score == nil {
		jsonError(w, "body must contain score", http.StatusBadRequest)
		return
	}

	c, err := h.svc.SetScore(r.Context(), candidateID, *body.Score)
	if err != nil {
		h.writeServiceError(w, "setScore", err)
		return
	}
	jsonOK(w, c)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// writeServiceError maps domain errors to HTTP statuses. ErrLockTimeout
// maps to 409: the caller should retry, nothing was applied.
func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error) {
	var ve *ValidationError
	switch {
	case errors.Is(err, ErrNotFound):
		jsonError(w, "candidate not found", http.StatusNotFound)
	case errors.As(err, &ve):
		jsonError(w, ve.Msg, http.StatusBadRequest)
	case errors.Is(err, ErrLockTimeout):
		jsonError(w, "candidate busy, retry", http.StatusConflict)
	default:
		log.Printf("[pipeline] %s error: %v", op, err)
		jsonError(w, "internal error", http.StatusInternalServerError)
	}
}

func jsonOK(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
