package database

import (
	"sync"
	"sync/atomic"

	"github.com/VividCortex/ewma"
)

// Stats is a snapshot of database activity.
type Stats struct {
	Backend          string     `json:"backend"`
	Connected        bool       `json:"connected"`
	Queries          int64      `json:"queries"`
	QueriesPerSecond float64    `json:"queries_per_second"`
	Prepares         int64      `json:"prepares"`
	Failures         int64      `json:"failures"`
	Dropped          int64      `json:"dropped"`
	StatementCache   CacheStats `json:"statement_cache"`
	OpenConnections  int        `json:"open_connections"`
	InUse            int        `json:"in_use"`
	Idle             int        `json:"idle"`
	WaitCount        int64      `json:"wait_count"`
}

// statistics counts queries process-wide for observability.
type statistics struct {
	queries  atomic.Int64
	prepares atomic.Int64
	failures atomic.Int64
	dropped  atomic.Int64

	mu   sync.Mutex
	rate ewma.MovingAverage
	last int64
}

func newStatistics() *statistics {
	return &statistics{rate: ewma.NewMovingAverage()}
}

func (s *statistics) addQuery()   { s.queries.Add(1) }
func (s *statistics) addPrepare() { s.prepares.Add(1) }
func (s *statistics) addFailure() { s.failures.Add(1) }
func (s *statistics) addDropped() { s.dropped.Add(1) }

// tick feeds the per-second moving average. Call once a second.
func (s *statistics) tick() {
	n := s.queries.Load()
	s.mu.Lock()
	s.rate.Add(float64(n - s.last))
	s.last = n
	s.mu.Unlock()
}

func (s *statistics) qps() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rate.Value()
}
