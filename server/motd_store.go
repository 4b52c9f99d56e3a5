package server

import (
	"context"
	"sync"
	"time"

	"github.com/ChatPlugin/ChatPlugin-sub007/protocol"
	"github.com/sirupsen/logrus"
)

const (
	DefaultMotdTimeout    = 5 * time.Second
	DefaultMotdStaleAfter = 30 * time.Second
)

// PendingMotd is one MoTD request waiting for the provider
type PendingMotd struct {
	address   string
	createdAt time.Time
	result    chan protocol.Motd
	timer     *time.Timer
	done      bool
	expired   bool
}

// Wait blocks until the reply, the fallback on timeout, or the fallback when ctx ends
func (p *PendingMotd) Wait(ctx context.Context, fallback protocol.Motd) protocol.Motd {
	select {
	case motd := <-p.result:
		return motd
	case <-ctx.Done():
		return fallback
	}
}

// MotdStore correlates MoTD replies with requests per client address in FIFO order, the
// wire format carries no request ID. A request that times out stays queued as a tombstone
// so that its late reply is discarded instead of answering the next request.
type MotdStore struct {
	mu         sync.Mutex
	queues     map[string][]*PendingMotd
	timeout    time.Duration
	staleAfter time.Duration
	fallback   func() protocol.Motd
	now        func() time.Time
	metrics    *SyncMetrics
}

func NewMotdStore(timeout, staleAfter time.Duration, fallback func() protocol.Motd, metrics *SyncMetrics) *MotdStore {
	if timeout <= 0 {
		timeout = DefaultMotdTimeout
	}
	if staleAfter <= 0 {
		staleAfter = DefaultMotdStaleAfter
	}
	if metrics == nil {
		metrics = NewDiscardMetrics()
	}
	return &MotdStore{
		queues:     make(map[string][]*PendingMotd),
		timeout:    timeout,
		staleAfter: staleAfter,
		fallback:   fallback,
		now:        time.Now,
		metrics:    metrics,
	}
}

func (s *MotdStore) Fallback() protocol.Motd {
	return s.fallback()
}

// Enqueue registers a request for address. The returned entry resolves with the
// fallback if no reply arrives within the timeout.
func (s *MotdStore) Enqueue(address string) *PendingMotd {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.pruneLocked(address, now)
	p := &PendingMotd{
		address:   address,
		createdAt: now,
		result:    make(chan protocol.Motd, 1),
	}
	p.timer = time.AfterFunc(s.timeout, func() {
		s.expire(p)
	})
	s.queues[address] = append(s.queues[address], p)
	return p
}

func (s *MotdStore) expire(p *PendingMotd) {
	s.mu.Lock()
	if p.done {
		s.mu.Unlock()
		return
	}
	p.done = true
	p.expired = true
	s.mu.Unlock()

	logrus.
		WithField("address", p.address).
		Debug("MoTD request timed out, serving fallback")
	s.metrics.MotdQueries.With("result", "timeout").Add(1)
	p.result <- s.fallback()
}

// Resolve hands motd to the oldest request for address. It reports false when there was
// no request or the oldest one had already timed out.
func (s *MotdStore) Resolve(address string, motd protocol.Motd) bool {
	s.mu.Lock()
	queue := s.queues[address]
	if len(queue) == 0 {
		s.mu.Unlock()
		logrus.
			WithField("address", address).
			Debug("Dropping unsolicited MoTD reply")
		return false
	}

	head := queue[0]
	s.popLocked(address)
	if head.expired {
		s.mu.Unlock()
		s.metrics.MotdQueries.With("result", "late").Add(1)
		return false
	}
	head.done = true
	head.timer.Stop()
	s.mu.Unlock()

	s.metrics.MotdQueries.With("result", "answered").Add(1)
	head.result <- motd
	return true
}

// Cancel withdraws a request whose packet never reached the provider and resolves it
// with the fallback
func (s *MotdStore) Cancel(p *PendingMotd) {
	s.mu.Lock()
	queue := s.queues[p.address]
	for i, entry := range queue {
		if entry == p {
			s.queues[p.address] = append(queue[:i:i], queue[i+1:]...)
			if len(s.queues[p.address]) == 0 {
				delete(s.queues, p.address)
			}
			break
		}
	}
	wasDone := p.done
	p.done = true
	p.timer.Stop()
	s.mu.Unlock()

	if !wasDone {
		s.metrics.MotdQueries.With("result", "fallback").Add(1)
		p.result <- s.fallback()
	}
}

// Drain resolves every waiting request with the fallback and forgets all tombstones.
// It is used when the provider disconnects, since its replies will never arrive.
func (s *MotdStore) Drain() int {
	s.mu.Lock()
	var waiting []*PendingMotd
	for _, queue := range s.queues {
		for _, p := range queue {
			if !p.done {
				p.done = true
				p.timer.Stop()
				waiting = append(waiting, p)
			}
		}
	}
	s.queues = make(map[string][]*PendingMotd)
	s.mu.Unlock()

	for _, p := range waiting {
		s.metrics.MotdQueries.With("result", "fallback").Add(1)
		p.result <- s.fallback()
	}
	return len(waiting)
}

// Pending returns how many entries, tombstones included, are queued for address
func (s *MotdStore) Pending(address string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queues[address])
}

func (s *MotdStore) popLocked(address string) {
	queue := s.queues[address]
	queue[0] = nil
	if len(queue) == 1 {
		delete(s.queues, address)
		return
	}
	s.queues[address] = queue[1:]
}

// pruneLocked drops tombstones whose late reply is no longer expected. Entries share one
// timeout so tombstones always sit at the head of the queue.
func (s *MotdStore) pruneLocked(address string, now time.Time) {
	for {
		queue := s.queues[address]
		if len(queue) == 0 || !queue[0].expired || now.Sub(queue[0].createdAt) < s.staleAfter {
			return
		}
		s.popLocked(address)
	}
}

// PruneStale drops expired tombstones of every address and returns how many were dropped
func (s *MotdStore) PruneStale() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	pruned := 0
	for address, queue := range s.queues {
		before := len(queue)
		s.pruneLocked(address, now)
		pruned += before - len(s.queues[address])
	}
	return pruned
}
