package event

import (
	"context"
	"sync"
)

// subjectLocks serializes event emission per subject id. Each subject gets a
// channel-based mutex so acquisition can respect context deadlines; entries
// are refcounted and pruned once the last holder releases.
type subjectLocks struct {
	mu    sync.Mutex
	locks map[string]*subjectLock
}

type subjectLock struct {
	ch   chan struct{}
	refs int
}

func newSubjectLocks() *subjectLocks {
	return &subjectLocks{locks: make(map[string]*subjectLock)}
}

func (s *subjectLocks) acquire(ctx context.Context, subjectID string) error {
	s.mu.Lock()
	l, ok := s.locks[subjectID]
	if !ok {
		l = &subjectLock{ch: make(chan struct{}, 1)}
		s.locks[subjectID] = l
	}
	l.refs++
	s.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		s.drop(subjectID, l)
		return ctx.Err()
	}
}

func (s *subjectLocks) release(subjectID string) {
	s.mu.Lock()
	l, ok := s.locks[subjectID]
	s.mu.Unlock()
	if !ok {
		return
	}
	<-l.ch
	s.drop(subjectID, l)
}

func (s *subjectLocks) drop(subjectID string, l *subjectLock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l.refs--
	if l.refs <= 0 {
		delete(s.locks, subjectID)
	}
}
