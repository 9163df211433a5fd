// Package tracker buffers records per slot until the slot's fate is known:
// rooted slots release their records downstream, dead slots are purged so a
// discarded fork never reaches the store.
package tracker

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/vietddude/geyserpg/internal/core/domain"
	"github.com/vietddude/geyserpg/internal/pipeline/metrics"
)

const shardCount = 32

// Downstream receives records once their slot is safe to persist.
type Downstream interface {
	ReleaseAccount(update *domain.AccountUpdate)
	ReleaseTransaction(record *domain.TransactionRecord)
}

type slotBuffer struct {
	slot         uint64
	status       domain.SlotStatus
	accounts     []*domain.AccountUpdate
	transactions []*domain.TransactionRecord
}

type shard struct {
	mu    sync.Mutex
	slots map[uint64]*slotBuffer
}

// Tracker maintains slot lifecycle state and the per-slot record buffers.
// Producer-side calls are sharded by slot number.
type Tracker struct {
	shards     [shardCount]*shard
	downstream Downstream

	// lastRoot is the highest rooted slot. Records at or below it have no
	// fork ambiguity left and skip buffering.
	lastRoot atomic.Uint64
	hasRoot  atomic.Bool
}

// New creates a tracker releasing into downstream.
func New(downstream Downstream) *Tracker {
	t := &Tracker{downstream: downstream}
	for i := range t.shards {
		t.shards[i] = &shard{slots: make(map[uint64]*slotBuffer)}
	}
	return t
}

func (t *Tracker) shardFor(slot uint64) *shard {
	return t.shards[slot%shardCount]
}

func (t *Tracker) finalized(slot uint64) bool {
	return t.hasRoot.Load() && slot <= t.lastRoot.Load()
}

// AddAccount buffers an account update under its slot. Startup updates and
// updates for already-rooted slots bypass gating and release immediately.
func (t *Tracker) AddAccount(update *domain.AccountUpdate) {
	if update.IsStartup || t.finalized(update.Slot) {
		t.downstream.ReleaseAccount(update)
		return
	}

	s := t.shardFor(update.Slot)
	s.mu.Lock()
	buf := s.ensure(update.Slot)
	if buf.status == domain.SlotDead {
		s.mu.Unlock()
		metrics.DeadSlotPurges.Inc()
		return
	}
	buf.accounts = append(buf.accounts, update)
	s.mu.Unlock()
}

// AddTransaction buffers a transaction record under its slot.
func (t *Tracker) AddTransaction(record *domain.TransactionRecord) {
	if t.finalized(record.Slot) {
		t.downstream.ReleaseTransaction(record)
		return
	}

	s := t.shardFor(record.Slot)
	s.mu.Lock()
	buf := s.ensure(record.Slot)
	if buf.status == domain.SlotDead {
		s.mu.Unlock()
		metrics.DeadSlotPurges.Inc()
		return
	}
	buf.transactions = append(buf.transactions, record)
	s.mu.Unlock()
}

func (s *shard) ensure(slot uint64) *slotBuffer {
	buf, ok := s.slots[slot]
	if !ok {
		buf = &slotBuffer{slot: slot, status: domain.SlotProcessed}
		s.slots[slot] = buf
	}
	return buf
}

// Observe records a slot status transition. Regressions are ignored. Rooted
// releases the slot and every lower buffered slot; Dead purges the slot's
// buffer without persisting.
func (t *Tracker) Observe(update *domain.SlotStatusUpdate) {
	switch update.Status {
	case domain.SlotRooted:
		t.onRoot(update.Slot)
	case domain.SlotDead:
		t.onDead(update.Slot)
	default:
		s := t.shardFor(update.Slot)
		s.mu.Lock()
		buf := s.ensure(update.Slot)
		if buf.status.CanTransition(update.Status) {
			buf.status = update.Status
		} else if buf.status != update.Status {
			slog.Debug("Ignoring slot status regression",
				"slot", update.Slot, "from", buf.status, "to", update.Status)
		}
		s.mu.Unlock()
	}
}

// onRoot releases buffered records for slot and all strictly lower
// still-buffered slots, which are presumed finalized under the rooted slot.
func (t *Tracker) onRoot(slot uint64) {
	var released []*slotBuffer
	for _, s := range t.shards {
		s.mu.Lock()
		for num, buf := range s.slots {
			if num > slot {
				continue
			}
			if buf.status != domain.SlotDead {
				released = append(released, buf)
			}
			delete(s.slots, num)
		}
		s.mu.Unlock()
	}

	// Advance the root watermark before forwarding so late arrivals for these
	// slots take the bypass path instead of re-buffering.
	t.lastRoot.Store(slot)
	t.hasRoot.Store(true)

	sort.Slice(released, func(i, j int) bool { return released[i].slot < released[j].slot })
	for _, buf := range released {
		for _, a := range buf.accounts {
			t.downstream.ReleaseAccount(a)
		}
		for _, r := range buf.transactions {
			t.downstream.ReleaseTransaction(r)
		}
	}
}

// onDead purges the slot's buffer. The empty buffer stays behind marked Dead
// so stragglers for the abandoned fork are discarded on arrival; the marker
// is swept once a later slot roots past it.
func (t *Tracker) onDead(slot uint64) {
	s := t.shardFor(slot)
	s.mu.Lock()
	buf := s.ensure(slot)
	purged := len(buf.accounts) + len(buf.transactions)
	buf.status = domain.SlotDead
	buf.accounts = nil
	buf.transactions = nil
	s.mu.Unlock()

	if purged > 0 {
		metrics.DeadSlotPurges.Add(float64(purged))
		slog.Info("Purged records for dead slot", "slot", slot, "records", purged)
	}
}

// Buffered returns the number of records currently buffered across all slots.
func (t *Tracker) Buffered() int {
	total := 0
	for _, s := range t.shards {
		s.mu.Lock()
		for _, buf := range s.slots {
			total += len(buf.accounts) + len(buf.transactions)
		}
		s.mu.Unlock()
	}
	return total
}
