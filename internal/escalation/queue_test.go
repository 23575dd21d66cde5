package escalation

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/hazard-fusion-service/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

func pendingReport(id string, sev domain.Severity, created time.Time) domain.HazardReport {
	return domain.HazardReport{
		ID:          id,
		Severity:    sev,
		Description: "water entering houses",
		CreatedAt:   created,
		SourceType:  domain.SourcePublic,
		Status:      domain.StatusPending,
		Tier:        domain.TierHuman,
	}
}

func ids(items []Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Report.ID)
	}
	return out
}

func TestQueue_OrdersBySeverityThenAge(t *testing.T) {
	q := New(clockwork.NewFakeClockAt(t0))

	q.Enqueue(pendingReport("low-old", domain.SeverityLow, t0.Add(-3*time.Hour)), 0.4, nil)
	q.Enqueue(pendingReport("crit-new", domain.SeverityCritical, t0.Add(-time.Minute)), 0.4, nil)
	q.Enqueue(pendingReport("high", domain.SeverityHigh, t0.Add(-2*time.Hour)), 0.4, nil)
	q.Enqueue(pendingReport("crit-old", domain.SeverityCritical, t0.Add(-time.Hour)), 0.4, nil)

	assert.Equal(t, []string{"crit-old", "crit-new", "high", "low-old"}, ids(q.Pending()))

	next, ok := q.Peek()
	require.True(t, ok)
	assert.Equal(t, "crit-old", next.Report.ID)
	assert.Equal(t, 4, q.Len())
}

func TestQueue_EqualKeysKeepArrivalOrder(t *testing.T) {
	q := New(clockwork.NewFakeClockAt(t0))
	for i := range 5 {
		q.Enqueue(pendingReport(fmt.Sprintf("r%d", i), domain.SeverityMedium, t0), 0.5, nil)
	}
	assert.Equal(t, []string{"r0", "r1", "r2", "r3", "r4"}, ids(q.Pending()))
}

func TestQueue_DuplicateEnqueueCoalesced(t *testing.T) {
	q := New(clockwork.NewFakeClockAt(t0))
	r := pendingReport("dup", domain.SeverityHigh, t0)

	assert.True(t, q.Enqueue(r, 0.5, nil))
	assert.False(t, q.Enqueue(r, 0.6, nil))
	assert.Equal(t, 1, q.Len())
}

func TestQueue_Resolve(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	q := New(clock)
	q.Enqueue(pendingReport("r1", domain.SeverityHigh, t0), 0.55, []domain.SourceType{domain.SourcePublic})
	q.Enqueue(pendingReport("r2", domain.SeverityLow, t0), 0.3, nil)

	clock.Advance(10 * time.Minute)
	report, res, err := q.Resolve("r1", "analyst-7", domain.StatusVerified, "confirmed by coast guard")
	require.NoError(t, err)

	assert.Equal(t, domain.StatusVerified, report.Status)
	assert.Equal(t, domain.TierHuman, report.Tier)
	assert.Equal(t, "analyst-7", res.AnalystID)
	assert.Equal(t, t0.Add(10*time.Minute), res.ResolvedAt)
	assert.Equal(t, 1, q.Len())

	got, ok := q.Resolution("r1")
	require.True(t, ok)
	assert.Equal(t, res, got)

	_, ok = q.Get("r1")
	assert.False(t, ok)
}

func TestQueue_ResolveErrors(t *testing.T) {
	q := New(clockwork.NewFakeClockAt(t0))
	q.Enqueue(pendingReport("r1", domain.SeverityHigh, t0), 0.5, nil)

	_, _, err := q.Resolve("r1", " ", domain.StatusVerified, "")
	assert.True(t, domain.IsInputError(err))

	_, _, err = q.Resolve("r1", "analyst", domain.StatusPending, "")
	assert.True(t, domain.IsInputError(err))

	_, _, err = q.Resolve("missing", "analyst", domain.StatusFalse, "")
	assert.True(t, errors.Is(err, ErrNotQueued))

	_, _, err = q.Resolve("r1", "analyst", domain.StatusFalse, "")
	require.NoError(t, err)

	_, _, err = q.Resolve("r1", "analyst", domain.StatusVerified, "")
	assert.True(t, errors.Is(err, ErrAlreadyResolved))

	assert.False(t, q.Enqueue(pendingReport("r1", domain.SeverityHigh, t0), 0.5, nil))
}

func TestQueue_ConcurrentEnqueue(t *testing.T) {
	q := New(clockwork.NewFakeClockAt(t0))

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sev := domain.SeverityLow
			if i%2 == 0 {
				sev = domain.SeverityCritical
			}
			q.Enqueue(pendingReport(fmt.Sprintf("r%02d", i), sev, t0.Add(time.Duration(i)*time.Second)), 0.5, nil)
		}()
	}
	wg.Wait()

	pending := q.Pending()
	require.Len(t, pending, 50)
	for i := 1; i < len(pending); i++ {
		prev, cur := pending[i-1].Report, pending[i].Report
		if prev.Severity == cur.Severity {
			assert.False(t, cur.CreatedAt.Before(prev.CreatedAt))
		} else {
			assert.Greater(t, prev.Severity.Rank(), cur.Severity.Rank())
		}
	}
}
