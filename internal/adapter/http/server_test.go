package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	httpadapter "github.com/couchcryptid/hazard-fusion-service/internal/adapter/http"
	"github.com/couchcryptid/hazard-fusion-service/internal/domain"
	"github.com/couchcryptid/hazard-fusion-service/internal/escalation"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 7, 14, 12, 0, 0, 0, time.UTC)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

// queueReview serves review calls straight from an escalation queue.
type queueReview struct {
	queue *escalation.Queue
}

func (q queueReview) Pending() []escalation.Item { return q.queue.Pending() }

func (q queueReview) Resolve(_ context.Context, id, analyst string, decision domain.Status, notes string) (domain.VerificationDecision, error) {
	report, res, err := q.queue.Resolve(id, analyst, decision, notes)
	if err != nil {
		return domain.VerificationDecision{}, err
	}
	d := domain.NewDecision(report, 1.0, nil, res.ResolvedAt)
	d.AnalystID = res.AnalystID
	d.Notes = res.Notes
	return d, nil
}

func (q queueReview) Resolution(id string) (escalation.Resolution, bool) {
	return q.queue.Resolution(id)
}

type mockPublisher struct {
	err       error
	published []domain.VerificationDecision
}

func (m *mockPublisher) Publish(_ context.Context, d domain.VerificationDecision) error {
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, d)
	return nil
}

func newQueue() *escalation.Queue {
	q := escalation.New(clockwork.NewFakeClockAt(testNow))
	for i, sev := range []domain.Severity{domain.SeverityLow, domain.SeverityCritical} {
		q.Enqueue(domain.HazardReport{
			ID:          fmt.Sprintf("rep-%d", i),
			Severity:    sev,
			Description: "water entering houses",
			CreatedAt:   testNow.Add(-time.Hour),
			Status:      domain.StatusPending,
			Tier:        domain.TierHuman,
		}, 0.4, []domain.SourceType{domain.SourcePublic})
	}
	return q
}

func newTestServer(readyErr error, pub *mockPublisher) *httpadapter.Server {
	var publisher httpadapter.DecisionPublisher
	if pub != nil {
		publisher = pub
	}
	return httpadapter.NewServer(":0", &mockReadiness{err: readyErr}, queueReview{queue: newQueue()}, publisher, slog.Default())
}

func serve(srv *httpadapter.Server, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	srv.ServeHTTP(rec, req)
	return rec
}

func TestHealthzReturns200(t *testing.T) {
	rec := serve(newTestServer(nil, nil), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := serve(newTestServer(nil, nil), http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	rec := serve(newTestServer(fmt.Errorf("not ready yet"), nil), http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAllReady(t *testing.T) {
	ctx := context.Background()
	assert.NoError(t, httpadapter.AllReady(&mockReadiness{}, &mockReadiness{}).CheckReadiness(ctx))

	err := httpadapter.AllReady(&mockReadiness{}, &mockReadiness{err: errors.New("reports idle")}).CheckReadiness(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reports idle")
}

func TestMetricsEndpoint(t *testing.T) {
	rec := serve(newTestServer(nil, nil), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestListEscalations(t *testing.T) {
	rec := serve(newTestServer(nil, nil), http.MethodGet, "/v1/escalations", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count int               `json:"count"`
		Items []escalation.Item `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	require.Len(t, body.Items, 2)
	assert.Equal(t, "rep-1", body.Items[0].Report.ID, "critical first")
}

func TestResolveEscalation(t *testing.T) {
	pub := &mockPublisher{}
	srv := newTestServer(nil, pub)

	rec := serve(srv, http.MethodPost, "/v1/escalations/rep-0/resolve", `{"analystId":"analyst-1","decision":"false","notes":"duplicate photo"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var d domain.VerificationDecision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.Equal(t, "rep-0", d.ReportID)
	assert.Equal(t, domain.StatusFalse, d.Status)
	assert.Equal(t, domain.TierHuman, d.Tier)
	assert.Equal(t, "analyst-1", d.AnalystID)
	require.Len(t, pub.published, 1)

	rec = serve(srv, http.MethodGet, "/v1/escalations/rep-0/resolution", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var res escalation.Resolution
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "duplicate photo", res.Notes)

	rec = serve(srv, http.MethodPost, "/v1/escalations/rep-0/resolve", `{"analystId":"analyst-2","decision":"verified"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestResolveEscalation_Errors(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"malformed body", "/v1/escalations/rep-0/resolve", `{"analystId":`, http.StatusBadRequest},
		{"unknown field", "/v1/escalations/rep-0/resolve", `{"analystId":"a","decision":"false","score":1}`, http.StatusBadRequest},
		{"missing analyst", "/v1/escalations/rep-0/resolve", `{"decision":"verified"}`, http.StatusBadRequest},
		{"non-terminal decision", "/v1/escalations/rep-0/resolve", `{"analystId":"a","decision":"pending"}`, http.StatusBadRequest},
		{"unknown report", "/v1/escalations/nope/resolve", `{"analystId":"a","decision":"verified"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(newTestServer(nil, nil), http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestResolveEscalation_PublishFailure(t *testing.T) {
	srv := newTestServer(nil, &mockPublisher{err: errors.New("broker down")})

	rec := serve(srv, http.MethodPost, "/v1/escalations/rep-1/resolve", `{"analystId":"a","decision":"verified"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), "not yet published")
}

func TestResolutionNotFound(t *testing.T) {
	rec := serve(newTestServer(nil, nil), http.MethodGet, "/v1/escalations/rep-0/resolution", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
