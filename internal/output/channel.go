// Package output implements the stream carrying the console output of a
// worker to whoever polls the job.
//
// A Channel has exactly one producer and one consumer. The producer sends
// text chunks and finally one end marker, the consumer polls without ever
// blocking. The queue is bounded: a producer outrunning the consumer blocks,
// exactly like a process writing into a full pipe.
//
//	worker stdout/stderr -> Writer() -> queue -> Poll()
//	                                      ^
//	                               End() marker
//
// The queue channel is never closed. Discard releases a blocked producer and
// makes every later Poll report the stream as absent.
package output

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
)

const DefaultCapacity = 256

var ErrDiscarded = errors.New("output discarded")

type kind uint8

const (
	kindData kind = iota
	kindEnd
)

type message struct {
	kind kind
	data string
}

type Channel struct {
	queue     chan message
	discarded chan struct{}

	discardOnce sync.Once
	endOnce     sync.Once
	drained     atomic.Bool
}

func New(capacity int) *Channel {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Channel{
		queue:     make(chan message, capacity),
		discarded: make(chan struct{}),
	}
}

// Send enqueues a chunk, blocking while the queue is full. It returns
// ErrDiscarded once the consumer went away.
func (c *Channel) Send(chunk string) error {
	if chunk == "" {
		return nil
	}
	return c.put(message{kind: kindData, data: chunk})
}

// End enqueues the end of stream marker after all chunks sent so far. Only
// the first call has an effect.
func (c *Channel) End() {
	c.endOnce.Do(func() {
		_ = c.put(message{kind: kindEnd})
	})
}

func (c *Channel) put(m message) error {
	select {
	case <-c.discarded:
		return ErrDiscarded
	default:
	}
	select {
	case c.queue <- m:
		return nil
	case <-c.discarded:
		return ErrDiscarded
	}
}

// Poll returns the concatenation of all chunks buffered so far. The boolean
// is false when the stream is absent: discarded, or ended and fully read.
// Chunks buffered in front of the end marker are returned first, the next
// call then reports absent.
func (c *Channel) Poll() (string, bool) {
	if c.Discarded() || c.drained.Load() {
		return "", false
	}
	var sb strings.Builder
	for {
		select {
		case m := <-c.queue:
			if m.kind == kindEnd {
				c.drained.Store(true)
				if sb.Len() == 0 {
					return "", false
				}
				return sb.String(), true
			}
			sb.WriteString(m.data)
		default:
			return sb.String(), true
		}
	}
}

// Discard drops the stream. Buffered chunks are lost and a producer blocked
// in Send returns ErrDiscarded.
func (c *Channel) Discard() {
	c.discardOnce.Do(func() {
		close(c.discarded)
	})
}

func (c *Channel) Discarded() bool {
	select {
	case <-c.discarded:
		return true
	default:
		return false
	}
}

// Writer adapts the channel to io.Writer, each Write is one chunk.
func (c *Channel) Writer() *Writer {
	return &Writer{ch: c}
}

type Writer struct {
	ch *Channel
}

func (w *Writer) Write(p []byte) (int, error) {
	if err := w.ch.Send(string(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}
