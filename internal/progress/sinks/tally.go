package sinks

import (
	"context"
	"sync"

	"github.com/JakeFAU/qa-archiver/internal/progress"
)

// Snapshot is a point-in-time view of a TallySink.
type Snapshot struct {
	Stages      map[progress.Stage]int `json:"stages"`
	MediaBytes  int64                  `json:"media_bytes"`
	LastFailure string                 `json:"last_failure,omitempty"`
	RunCount    int                    `json:"runs"`
}

// TallySink counts events per stage in memory. The status server reads it.
type TallySink struct {
	mu    sync.Mutex
	snap  Snapshot
	fails map[string]string
}

// NewTallySink builds an empty tally.
func NewTallySink() *TallySink {
	return &TallySink{
		snap:  Snapshot{Stages: make(map[progress.Stage]int)},
		fails: make(map[string]string),
	}
}

// Consume folds the batch into the tally.
func (s *TallySink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		s.snap.Stages[evt.Stage]++
		switch evt.Stage {
		case progress.StageRunStart:
			s.snap.RunCount++
		case progress.StageMediaStored:
			s.snap.MediaBytes += evt.Bytes
		case progress.StageItemFailed:
			s.fails[evt.Item] = evt.Reason
			s.snap.LastFailure = evt.Item + ": " + evt.Reason
		}
	}
	return nil
}

// Snapshot copies the current counts.
func (s *TallySink) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.snap
	out.Stages = make(map[progress.Stage]int, len(s.snap.Stages))
	for k, v := range s.snap.Stages {
		out.Stages[k] = v
	}
	return out
}

// Failures returns the last failure reason per item.
func (s *TallySink) Failures() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.fails))
	for k, v := range s.fails {
		out[k] = v
	}
	return out
}

// Close implements progress.Sink.
func (s *TallySink) Close(context.Context) error {
	return nil
}
