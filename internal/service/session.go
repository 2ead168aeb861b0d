package service

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Sessions owns one Supervisor per caller session, so jobs of different
// callers never share state.
type Sessions struct {
	newFunc func(id string) *Supervisor

	mx       sync.Mutex
	sessions map[string]*session
}

type session struct {
	sup  *Supervisor
	seen time.Time
}

func NewSessions(newFunc func(id string) *Supervisor) *Sessions {
	return &Sessions{
		newFunc:  newFunc,
		sessions: make(map[string]*session),
	}
}

// Get returns the supervisor of the session, creating it on first use.
func (s *Sessions) Get(id string) *Supervisor {
	s.mx.Lock()
	defer s.mx.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		sess = &session{sup: s.newFunc(id)}
		s.sessions[id] = sess
	}
	sess.seen = time.Now()
	return sess.sup
}

// Lookup returns the supervisor of an existing session.
func (s *Sessions) Lookup(id string) (*Supervisor, bool) {
	s.mx.Lock()
	defer s.mx.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	sess.seen = time.Now()
	return sess.sup, true
}

func (s *Sessions) Len() int {
	s.mx.Lock()
	defer s.mx.Unlock()
	return len(s.sessions)
}

// Evict closes and forgets the sessions last used before the given time.
// Sessions with a running job are kept. It returns how many were evicted.
func (s *Sessions) Evict(ctx context.Context, before time.Time) int {
	var idle []*Supervisor
	s.mx.Lock()
	for id, sess := range s.sessions {
		if sess.seen.Before(before) && !sess.sup.Busy() {
			idle = append(idle, sess.sup)
			delete(s.sessions, id)
		}
	}
	s.mx.Unlock()

	closeAll(ctx, idle)
	return len(idle)
}

// Close cancels the jobs of all sessions and waits for their workers.
func (s *Sessions) Close(ctx context.Context) {
	s.mx.Lock()
	sups := make([]*Supervisor, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sups = append(sups, sess.sup)
	}
	s.sessions = make(map[string]*session)
	s.mx.Unlock()

	closeAll(ctx, sups)
}

func closeAll(ctx context.Context, sups []*Supervisor) {
	var g errgroup.Group
	for _, sup := range sups {
		g.Go(func() error {
			sup.Close(ctx)
			return nil
		})
	}
	_ = g.Wait()
}
