package verification

import (
	"context"
	"sync"

	"github.com/couchcryptid/hazard-fusion-service/internal/domain"
)

// DecisionLookup returns the last decision persisted for a report, if any.
// It lets an engine recognise reports settled before a restart.
type DecisionLookup interface {
	Lookup(ctx context.Context, reportID string) (domain.VerificationDecision, bool, error)
}

// lifecycle remembers reports the automated tiers have settled and serialises
// work on the same report ID.
type lifecycle struct {
	mu      sync.Mutex
	settled map[string]domain.VerificationDecision
	locks   map[string]*reportLock
}

type reportLock struct {
	sync.Mutex
	refs int
}

func newLifecycle() *lifecycle {
	return &lifecycle{
		settled: make(map[string]domain.VerificationDecision),
		locks:   make(map[string]*reportLock),
	}
}

// lock holds reportID until the returned func is called.
func (l *lifecycle) lock(reportID string) func() {
	l.mu.Lock()
	rl, ok := l.locks[reportID]
	if !ok {
		rl = &reportLock{}
		l.locks[reportID] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.Lock()
	return func() {
		rl.Unlock()
		l.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.locks, reportID)
		}
		l.mu.Unlock()
	}
}

func (l *lifecycle) settle(d domain.VerificationDecision) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.settled[d.ReportID] = d
}

func (l *lifecycle) get(reportID string) (domain.VerificationDecision, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	d, ok := l.settled[reportID]
	return d, ok
}
