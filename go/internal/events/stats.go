package events

import (
	"sync"
	"time"

	"github.com/mcdev12/spotmix/go/internal/party"
)

// Stats counts publish outcomes.
type Stats struct {
	mu        sync.Mutex
	published int64
	failed    int64
	dropped   int64
	byType    map[party.EventType]int64
	lastError time.Time
	total     time.Duration
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Published      int64                     `json:"published"`
	Failed         int64                     `json:"failed"`
	Dropped        int64                     `json:"dropped"`
	ByType         map[party.EventType]int64 `json:"by_type"`
	LastFailureAt  *time.Time                `json:"last_failure_at,omitempty"`
	AvgPublishTime string                    `json:"avg_publish_time"`
}

func NewStats() *Stats {
	return &Stats{byType: make(map[party.EventType]int64)}
}

// RecordPublish records one publish attempt.
func (s *Stats) RecordPublish(t party.EventType, success bool, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !success {
		s.failed++
		s.lastError = time.Now()
		return
	}
	s.published++
	s.byType[t]++
	s.total += d
}

// RecordDropped counts an event given up on after retries.
func (s *Stats) RecordDropped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropped++
}

func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := StatsSnapshot{
		Published: s.published,
		Failed:    s.failed,
		Dropped:   s.dropped,
		ByType:    make(map[party.EventType]int64, len(s.byType)),
	}
	for t, n := range s.byType {
		snap.ByType[t] = n
	}
	if !s.lastError.IsZero() {
		at := s.lastError
		snap.LastFailureAt = &at
	}
	var avg time.Duration
	if s.published > 0 {
		avg = s.total / time.Duration(s.published)
	}
	snap.AvgPublishTime = avg.String()
	return snap
}
