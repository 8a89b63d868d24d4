/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupling the engine
  types from the external contract.

NAMING CONVENTION:
  - *Request: Request body types from clients
  - *Response: Response wrappers returned to clients

VALIDATION:
  Validation is done in handlers (and in the engine's own shape checks for
  translator output). DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"github.com/classly/reconcile-engine/ingest"
	"github.com/classly/reconcile-engine/query"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// IngestRequest is one worksheet of spreadsheet data.
type IngestRequest struct {
	SourceID      string   `json:"source_id"`
	WorksheetName string   `json:"worksheet_name"`
	Headers       []string `json:"headers"`
	Rows          [][]any  `json:"rows"`
}

// IngestResponse is the structured sync report.
type IngestResponse struct {
	RunID        string              `json:"run_id"`
	TargetEntity string              `json:"target_entity"`
	Stats        ingest.Stats        `json:"stats"`
	Invalid      []ingest.InvalidRow `json:"invalid,omitempty"`
	Keyless      []ingest.KeylessRow `json:"keyless,omitempty"`
}

// QueryRequest carries a condition definition (normally translator output,
// forwarded by the caller) plus any placeholder resolutions from earlier
// confirmation round-trips.
type QueryRequest struct {
	Definition query.Definition `json:"definition"`
	Params     map[string]any   `json:"params,omitempty"`
}

// AskRequest is a natural-language question for the translator collaborator.
type AskRequest struct {
	Question string         `json:"question"`
	Params   map[string]any `json:"params,omitempty"`
}

// QueryResponse is either a complete KPI result or a set of confirmations
// the caller must resolve and resubmit. Never both, never a partial ratio.
type QueryResponse struct {
	Result            *query.KPIResult     `json:"result,omitempty"`
	NeedsConfirmation []query.Confirmation `json:"needs_confirmation,omitempty"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
