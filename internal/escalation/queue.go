// Package escalation holds reports the automated tiers could not settle until
// a human analyst resolves them.
package escalation

import (
	"container/heap"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/couchcryptid/hazard-fusion-service/internal/domain"
	"github.com/jonboulle/clockwork"
)

var (
	// ErrNotQueued is returned when resolving a report that was never escalated.
	ErrNotQueued = errors.New("report is not in the escalation queue")

	// ErrAlreadyResolved is returned when resolving a report a second time.
	ErrAlreadyResolved = errors.New("report already resolved")
)

// Item is a queued report awaiting review.
type Item struct {
	Report     domain.HazardReport `json:"report"`
	Confidence float64             `json:"confidence"`
	Sources    []domain.SourceType `json:"contributingSources"`
	EnqueuedAt time.Time           `json:"enqueuedAt"`

	seq   uint64
	index int
}

// Resolution is the audit record of a human decision.
type Resolution struct {
	ReportID   string        `json:"reportId"`
	AnalystID  string        `json:"analystId"`
	Decision   domain.Status `json:"decision"`
	Notes      string        `json:"notes,omitempty"`
	ResolvedAt time.Time     `json:"resolvedAt"`
}

// Queue orders escalated reports by severity (critical first) and then by
// submission time. It never refuses admission. All methods are safe for
// concurrent use.
type Queue struct {
	mu       sync.Mutex
	items    itemHeap
	byID     map[string]*Item
	resolved map[string]Resolution
	seq      uint64
	clock    clockwork.Clock
}

// New creates an empty queue. A nil clock uses real time.
func New(clock clockwork.Clock) *Queue {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Queue{
		byID:     make(map[string]*Item),
		resolved: make(map[string]Resolution),
		clock:    clock,
	}
}

// Enqueue admits a report. Re-enqueuing a report that is already waiting or
// has been resolved is a no-op and reports false.
func (q *Queue) Enqueue(report domain.HazardReport, confidence float64, sources []domain.SourceType) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.byID[report.ID]; ok {
		return false
	}
	if _, ok := q.resolved[report.ID]; ok {
		return false
	}
	q.seq++
	it := &Item{
		Report:     report,
		Confidence: domain.Clamp01(confidence),
		Sources:    slices.Clone(sources),
		EnqueuedAt: q.clock.Now().UTC(),
		seq:        q.seq,
	}
	heap.Push(&q.items, it)
	q.byID[report.ID] = it
	return true
}

// Len returns the number of reports awaiting review.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Peek returns the next report a reviewer should take.
func (q *Queue) Peek() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.items.Len() == 0 {
		return Item{}, false
	}
	return *q.items[0], true
}

// Pending returns a snapshot of the waiting reports in review order.
func (q *Queue) Pending() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Item, 0, len(q.items))
	for _, it := range q.items {
		out = append(out, *it)
	}
	slices.SortFunc(out, func(a, b Item) int {
		if less(&a, &b) {
			return -1
		}
		if less(&b, &a) {
			return 1
		}
		return 0
	})
	return out
}

// Get returns a waiting report by ID.
func (q *Queue) Get(reportID string) (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	it, ok := q.byID[reportID]
	if !ok {
		return Item{}, false
	}
	return *it, true
}

// Resolve records a human decision for a waiting report and removes it from
// the queue. The returned report is terminal at tier 3.
func (q *Queue) Resolve(reportID, analystID string, decision domain.Status, notes string) (domain.HazardReport, Resolution, error) {
	if strings.TrimSpace(analystID) == "" {
		return domain.HazardReport{}, Resolution{}, &domain.InputError{Field: "analystId", Reason: "required"}
	}
	if !decision.Terminal() {
		return domain.HazardReport{}, Resolution{}, &domain.InputError{Field: "decision", Reason: "must be verified, unverified or false"}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.resolved[reportID]; ok {
		return domain.HazardReport{}, Resolution{}, fmt.Errorf("resolve %s: %w", reportID, ErrAlreadyResolved)
	}
	it, ok := q.byID[reportID]
	if !ok {
		return domain.HazardReport{}, Resolution{}, fmt.Errorf("resolve %s: %w", reportID, ErrNotQueued)
	}

	report := it.Report
	if err := report.Apply(decision, domain.TierHuman, report.Score, nil); err != nil {
		return domain.HazardReport{}, Resolution{}, err
	}

	heap.Remove(&q.items, it.index)
	delete(q.byID, reportID)
	res := Resolution{
		ReportID:   reportID,
		AnalystID:  analystID,
		Decision:   decision,
		Notes:      notes,
		ResolvedAt: q.clock.Now().UTC(),
	}
	q.resolved[reportID] = res
	return report, res, nil
}

// Resolution returns the audit record for a resolved report.
func (q *Queue) Resolution(reportID string) (Resolution, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	r, ok := q.resolved[reportID]
	return r, ok
}

func less(a, b *Item) bool {
	ra, rb := a.Report.Severity.Rank(), b.Report.Severity.Rank()
	if ra != rb {
		return ra > rb
	}
	if !a.Report.CreatedAt.Equal(b.Report.CreatedAt) {
		return a.Report.CreatedAt.Before(b.Report.CreatedAt)
	}
	return a.seq < b.seq
}

// itemHeap implements heap.Interface over queued items.
type itemHeap []*Item

func (h itemHeap) Len() int           { return len(h) }
func (h itemHeap) Less(i, j int) bool { return less(h[i], h[j]) }

func (h itemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *itemHeap) Push(x any) {
	it := x.(*Item)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}
