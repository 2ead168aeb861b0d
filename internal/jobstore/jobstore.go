// Package jobstore keeps status records of simulation jobs, so they can be
// looked up by id after the job finished.
package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrNotFound = errors.New("job not found")

type Record struct {
	ID        string     `json:"id"`
	Session   string     `json:"session,omitempty"`
	State     string     `json:"state"`
	WorkDir   string     `json:"workDir"`
	ExitCode  int        `json:"exitCode"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
	StoppedAt *time.Time `json:"stoppedAt,omitempty"`
}

type Store interface {
	Save(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, error)
}

// Memory is a Store living in the process memory. Records stay until
// Expire drops them.
type Memory struct {
	mx      sync.RWMutex
	records map[string]entry
}

type entry struct {
	rec   Record
	saved time.Time
}

func NewMemory() *Memory {
	return &Memory{records: make(map[string]entry)}
}

func (m *Memory) Save(_ context.Context, rec Record) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.records[rec.ID] = entry{rec: rec, saved: time.Now()}
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (Record, error) {
	m.mx.RLock()
	defer m.mx.RUnlock()
	e, ok := m.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return e.rec, nil
}

// Expire drops the records last saved before the given time and returns
// how many were dropped.
func (m *Memory) Expire(before time.Time) int {
	m.mx.Lock()
	defer m.mx.Unlock()
	var n int
	for id, e := range m.records {
		if e.saved.Before(before) {
			delete(m.records, id)
			n++
		}
	}
	return n
}

func (m *Memory) Len() int {
	m.mx.RLock()
	defer m.mx.RUnlock()
	return len(m.records)
}

// Redis stores records as JSON under job:<id>, each save renews the TTL.
// A zero TTL keeps records forever.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func key(id string) string {
	return fmt.Sprintf("job:%s", id)
}

func (r *Redis) Save(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key(rec.ID), data, r.ttl).Err()
}

func (r *Redis) Get(ctx context.Context, id string) (Record, error) {
	data, err := r.client.Get(ctx, key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("loading job %s: %w", id, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decoding job %s: %w", id, err)
	}
	return rec, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
