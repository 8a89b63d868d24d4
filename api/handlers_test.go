package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classly/reconcile-engine/api"
	"github.com/classly/reconcile-engine/edu"
	"github.com/classly/reconcile-engine/ingest"
	"github.com/classly/reconcile-engine/ingest/store"
	"github.com/classly/reconcile-engine/mapping"
	"github.com/classly/reconcile-engine/query"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type stubTranslator struct {
	def *query.Definition
	err error
}

func (s *stubTranslator) Translate(context.Context, string) (*query.Definition, error) {
	return s.def, s.err
}

func newServer(t *testing.T, translator query.Translator) (*httptest.Server, *store.Memory) {
	t.Helper()

	registry, err := edu.NewRegistry()
	require.NoError(t, err)
	sink := store.NewMemory()

	h := &api.Handler{
		Registry:   registry,
		Pipeline:   &ingest.Pipeline{Registry: registry, Sink: sink},
		Compiler:   &query.Compiler{DefaultTable: edu.TableTrialAttendance, Sampler: sink},
		Engine:     &query.Engine{Fetcher: sink},
		Translator: translator,
	}
	srv := httptest.NewServer(api.NewRouter(h))
	t.Cleanup(srv.Close)
	return srv, sink
}

func doJSON(t *testing.T, method, url string, body any, out any) int {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func seedViaAPI(t *testing.T, srv *httptest.Server) {
	t.Helper()

	var ingestResp api.IngestResponse
	status := doJSON(t, http.MethodPost, srv.URL+"/api/ingest", api.IngestRequest{
		SourceID:      "sheet-trials",
		WorksheetName: "2025-10 體驗課出席",
		Headers:       []string{"Email", "體驗課日期", "授課老師"},
		Rows: [][]any{
			{"a@example.com", "2025/10/3", "Vicky"},
			{"b@example.com", "2025/10/5", "Vicky"},
			{"c@example.com", "2025/10/8", "Vicky"},
		},
	}, &ingestResp)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, 3, ingestResp.Stats.Valid)

	status = doJSON(t, http.MethodPost, srv.URL+"/api/ingest", api.IngestRequest{
		SourceID:      "sheet-purchases",
		WorksheetName: "10月 成交記錄",
		Headers:       []string{"Email", "購買日期", "轉換狀態"},
		Rows: [][]any{
			{"b@example.com", "2025/10/12", "已轉高"},
			{"c@example.com", "2025/10/15", "已轉高"},
		},
	}, nil)
	require.Equal(t, http.StatusOK, status)
}

// =============================================================================
// INGESTION
// =============================================================================

func TestIngest_ReportsStatsAndStoresRecords(t *testing.T) {
	srv, sink := newServer(t, nil)
	seedViaAPI(t, srv)

	assert.Equal(t, 3, sink.Count(edu.TableTrialAttendance))
	assert.Equal(t, 2, sink.Count(edu.TablePurchases))
}

func TestIngest_UnknownWorksheetIs404(t *testing.T) {
	srv, _ := newServer(t, nil)

	var errResp api.ErrorResponse
	status := doJSON(t, http.MethodPost, srv.URL+"/api/ingest", api.IngestRequest{
		SourceID:      "sheet-x",
		WorksheetName: "薪資計算",
		Headers:       []string{"a"},
		Rows:          [][]any{{"1"}},
	}, &errResp)

	assert.Equal(t, http.StatusNotFound, status)
	assert.NotEmpty(t, errResp.Error)
}

func TestIngest_MissingWorksheetNameIs400(t *testing.T) {
	srv, _ := newServer(t, nil)
	status := doJSON(t, http.MethodPost, srv.URL+"/api/ingest", api.IngestRequest{
		Headers: []string{"a"},
	}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

// =============================================================================
// QUERY
// =============================================================================

func TestQuery_EndToEndConversionRate(t *testing.T) {
	// GIVEN: Data ingested through the API
	// WHEN: The trial-conversion definition runs through /api/query
	// THEN: 2 of Vicky's 3 students converted

	srv, _ := newServer(t, nil)
	seedViaAPI(t, srv)

	var resp api.QueryResponse
	status := doJSON(t, http.MethodPost, srv.URL+"/api/query", api.QueryRequest{
		Definition: *edu.TrialConversionRate("Vicky", "2025-10"),
	}, &resp)

	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, resp.Result)
	assert.Equal(t, 3, resp.Result.DenominatorCount)
	assert.Equal(t, 2, resp.Result.NumeratorCount)
	assert.InDelta(t, 2.0/3.0, resp.Result.Ratio, 0.001)
}

func TestQuery_OutOfDomainLiteralIs422ThenResolvesWithParams(t *testing.T) {
	// GIVEN: A definition filtering on a simplified-Chinese status the data
	//        never contains
	// THEN: The first call returns 422 with a confirmation; resubmitting
	//        with the placeholder param succeeds

	srv, _ := newServer(t, nil)
	seedViaAPI(t, srv)

	def := edu.TrialConversionRate("Vicky", "2025-10")
	def.Numerator[2].Value = "已转高"

	var first api.QueryResponse
	status := doJSON(t, http.MethodPost, srv.URL+"/api/query", api.QueryRequest{Definition: *def}, &first)
	require.Equal(t, http.StatusUnprocessableEntity, status)
	require.Len(t, first.NeedsConfirmation, 1)
	conf := first.NeedsConfirmation[0]
	assert.Equal(t, "status", conf.Field)
	assert.Equal(t, "$status", conf.PlaceholderKey)
	assert.NotEmpty(t, conf.Options)

	var second api.QueryResponse
	status = doJSON(t, http.MethodPost, srv.URL+"/api/query", api.QueryRequest{
		Definition: *def,
		Params:     map[string]any{conf.PlaceholderKey: "已轉高"},
	}, &second)
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, second.Result)
	assert.Equal(t, 2, second.Result.NumeratorCount)
}

func TestQuery_UnknownOperatorIs400(t *testing.T) {
	srv, _ := newServer(t, nil)
	seedViaAPI(t, srv)

	def := edu.TrialConversionRate("Vicky", "2025-10")
	def.Denominator[0].Operator = "equalz"

	var errResp api.ErrorResponse
	status := doJSON(t, http.MethodPost, srv.URL+"/api/query", api.QueryRequest{Definition: *def}, &errResp)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, errResp.Details, "equalz")
}

// =============================================================================
// ASK
// =============================================================================

func TestAsk_WithoutTranslatorIs503(t *testing.T) {
	srv, _ := newServer(t, nil)
	status := doJSON(t, http.MethodPost, srv.URL+"/api/ask", api.AskRequest{Question: "conversion rate?"}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestAsk_TranslatorOutputIsCompiledNotTrusted(t *testing.T) {
	// GIVEN: A translator that emits a malformed operator
	// THEN: The request fails with a compile error instead of running

	srv, _ := newServer(t, &stubTranslator{def: &query.Definition{
		Numerator:   []query.Condition{{Field: "x", Operator: "equalz", Value: 1}},
		Denominator: []query.Condition{{Field: "x", Operator: "exists"}},
	}})
	seedViaAPI(t, srv)

	status := doJSON(t, http.MethodPost, srv.URL+"/api/ask", api.AskRequest{Question: "anything"}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAsk_TranslatorFailureIs502(t *testing.T) {
	srv, _ := newServer(t, &stubTranslator{err: errors.New("model timeout")})
	status := doJSON(t, http.MethodPost, srv.URL+"/api/ask", api.AskRequest{Question: "anything"}, nil)
	assert.Equal(t, http.StatusBadGateway, status)
}

// =============================================================================
// MAPPING CATALOG
// =============================================================================

func TestMappings_CRUDRoundTrip(t *testing.T) {
	srv, _ := newServer(t, nil)

	var listed []*mapping.TableMapping
	status := doJSON(t, http.MethodGet, srv.URL+"/api/mappings", nil, &listed)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, listed, 3)

	custom := &mapping.TableMapping{
		SourceNamePatterns: []string{"請假"},
		TargetEntity:       "leave_requests",
		SourceType:         "sheet",
		KeyStrategy:        mapping.KeyPositional,
		Fields: []mapping.FieldDef{
			{Name: "student_email", Aliases: []string{"Email"}, Required: true},
		},
	}
	status = doJSON(t, http.MethodPut, srv.URL+"/api/mappings/leave_requests", custom, nil)
	require.Equal(t, http.StatusOK, status)

	var got mapping.TableMapping
	status = doJSON(t, http.MethodGet, srv.URL+"/api/mappings/leave_requests", nil, &got)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{"請假"}, got.SourceNamePatterns)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/mappings/leave_requests", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	var errResp api.ErrorResponse
	status = doJSON(t, http.MethodGet, srv.URL+"/api/mappings/leave_requests", nil, &errResp)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestUpsertMapping_BodyEntityMustMatchURL(t *testing.T) {
	srv, _ := newServer(t, nil)

	m := &mapping.TableMapping{
		SourceNamePatterns: []string{"x"},
		TargetEntity:       "somewhere_else",
		Fields:             []mapping.FieldDef{{Name: "a", Aliases: []string{"A"}}},
	}
	status := doJSON(t, http.MethodPut, srv.URL+"/api/mappings/leave_requests", m, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestUpsertMapping_InvalidMappingIs400(t *testing.T) {
	srv, _ := newServer(t, nil)

	m := &mapping.TableMapping{TargetEntity: "bad_one"} // no patterns, no fields
	status := doJSON(t, http.MethodPut, srv.URL+"/api/mappings/bad_one", m, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestUpsertMapping_TakesEffectOnNextIngest(t *testing.T) {
	// A new alias added through the API must resolve on the very next sync.

	srv, _ := newServer(t, nil)

	m := edu.TrialAttendanceMapping()
	m.Fields[1].Aliases = append(m.Fields[1].Aliases, "學員電郵")
	status := doJSON(t, http.MethodPut, srv.URL+"/api/mappings/"+edu.TableTrialAttendance, m, nil)
	require.Equal(t, http.StatusOK, status)

	var resp api.IngestResponse
	status = doJSON(t, http.MethodPost, srv.URL+"/api/ingest", api.IngestRequest{
		SourceID:      "sheet-trials",
		WorksheetName: "11月 體驗課",
		Headers:       []string{"學員電郵", "體驗課日期"},
		Rows:          [][]any{{"z@example.com", "2025/11/2"}},
	}, &resp)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, resp.Stats.Valid)
}
