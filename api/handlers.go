/*
handlers.go - HTTP API handlers for the reconciliation engine

PURPOSE:
  Exposes the engine via REST. Handles HTTP request/response and JSON
  serialization, and delegates everything else to the engine packages.

ENDPOINTS:
  Ingestion:
    POST   /api/ingest               Sync one worksheet

  Mappings (runtime configuration surface):
    GET    /api/mappings             List the catalog
    GET    /api/mappings/{entity}    Get one mapping
    PUT    /api/mappings/{entity}    Add or update a mapping
    DELETE /api/mappings/{entity}    Remove a mapping

  Analytics:
    POST   /api/query                Evaluate a condition definition
    POST   /api/ask                  Natural-language question (translator)

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Malformed body, compile errors, invalid mappings
  - 404: Unknown mapping / no mapping matches
  - 422: Query needs confirmation before it can run
  - 502: A storage fetch or the translator failed
  - 503: Translator not configured

SECURITY NOTE:
  No authentication middleware. This service runs on the internal network
  behind the ops VPN; do not expose it publicly as-is.

SEE ALSO:
  - dto.go:    Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/classly/reconcile-engine/ingest"
	"github.com/classly/reconcile-engine/mapping"
	"github.com/classly/reconcile-engine/query"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers. Everything is injected
// at construction; there is deliberately no package-level state.
type Handler struct {
	Registry   *mapping.Registry
	Pipeline   *ingest.Pipeline
	Compiler   *query.Compiler
	Engine     *query.Engine
	Translator query.Translator // optional; /api/ask returns 503 without it
}

// =============================================================================
// INGESTION
// =============================================================================

// Ingest syncs one worksheet.
// POST /api/ingest
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.WorksheetName == "" || len(req.Headers) == 0 {
		writeError(w, http.StatusBadRequest, "worksheet_name and headers are required", nil)
		return
	}

	report, err := h.Pipeline.Run(r.Context(), ingest.SourceBatch{
		SourceID:      req.SourceID,
		WorksheetName: req.WorksheetName,
		Headers:       req.Headers,
		Rows:          req.Rows,
	})
	if err != nil {
		if errors.Is(err, mapping.ErrMappingNotFound) {
			writeError(w, http.StatusNotFound, "No mapping matches this worksheet", err)
			return
		}
		writeError(w, http.StatusBadGateway, "Ingestion failed", err)
		return
	}

	writeJSON(w, http.StatusOK, IngestResponse{
		RunID:        report.RunID,
		TargetEntity: report.TargetEntity,
		Stats:        report.Stats,
		Invalid:      report.Invalid,
		Keyless:      report.Keyless,
	})
}

// =============================================================================
// MAPPING CATALOG
// =============================================================================

// ListMappings returns the whole catalog.
// GET /api/mappings
func (h *Handler) ListMappings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Registry.List())
}

// GetMapping returns one mapping.
// GET /api/mappings/{entity}
func (h *Handler) GetMapping(w http.ResponseWriter, r *http.Request) {
	entity := chi.URLParam(r, "entity")
	m, ok := h.Registry.Get(entity)
	if !ok {
		writeError(w, http.StatusNotFound, "Mapping not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// UpsertMapping adds or replaces a mapping. Takes effect on the next sync.
// PUT /api/mappings/{entity}
func (h *Handler) UpsertMapping(w http.ResponseWriter, r *http.Request) {
	entity := chi.URLParam(r, "entity")

	var m mapping.TableMapping
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if m.TargetEntity == "" {
		m.TargetEntity = entity
	}
	if m.TargetEntity != entity {
		writeError(w, http.StatusBadRequest, "Body target_entity does not match URL", nil)
		return
	}

	if err := h.Registry.Upsert(&m); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid mapping", err)
		return
	}
	writeJSON(w, http.StatusOK, &m)
}

// DeleteMapping removes a mapping.
// DELETE /api/mappings/{entity}
func (h *Handler) DeleteMapping(w http.ResponseWriter, r *http.Request) {
	h.Registry.Remove(chi.URLParam(r, "entity"))
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ANALYTICS
// =============================================================================

// RunQuery compiles and evaluates a condition definition.
// POST /api/query
func (h *Handler) RunQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	h.evaluate(w, r, &req.Definition, req.Params)
}

// Ask routes a natural-language question through the translator, then
// evaluates the resulting (untrusted) definition exactly like RunQuery.
// POST /api/ask
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	if h.Translator == nil {
		writeError(w, http.StatusServiceUnavailable, "No translator configured", nil)
		return
	}

	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required", nil)
		return
	}

	def, err := h.Translator.Translate(r.Context(), req.Question)
	if err != nil {
		writeError(w, http.StatusBadGateway, "Translator failed", err)
		return
	}
	h.evaluate(w, r, def, req.Params)
}

func (h *Handler) evaluate(w http.ResponseWriter, r *http.Request, def *query.Definition, params map[string]any) {
	numerator, denominator, confirmations, err := h.Compiler.CompileDefinition(r.Context(), def, params)
	if err != nil {
		if errors.Is(err, query.ErrQueryAborted) {
			writeError(w, http.StatusBadGateway, "Value-domain sampling failed", err)
			return
		}
		writeError(w, http.StatusBadRequest, "Condition compilation failed", err)
		return
	}
	if len(confirmations) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, QueryResponse{NeedsConfirmation: confirmations})
		return
	}

	result, err := h.Engine.EvaluateKPI(r.Context(), numerator, denominator)
	if err != nil {
		writeError(w, http.StatusBadGateway, "Query evaluation failed", err)
		return
	}
	writeJSON(w, http.StatusOK, QueryResponse{Result: result})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
