package tracker

import (
	"sync"
	"testing"

	"github.com/vietddude/geyserpg/internal/core/domain"
)

type captureDownstream struct {
	mu           sync.Mutex
	accounts     []*domain.AccountUpdate
	transactions []*domain.TransactionRecord
}

func (c *captureDownstream) ReleaseAccount(u *domain.AccountUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accounts = append(c.accounts, u)
}

func (c *captureDownstream) ReleaseTransaction(r *domain.TransactionRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transactions = append(c.transactions, r)
}

func (c *captureDownstream) accountSlots() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	slots := make([]uint64, len(c.accounts))
	for i, a := range c.accounts {
		slots[i] = a.Slot
	}
	return slots
}

func accountAt(slot uint64) *domain.AccountUpdate {
	return &domain.AccountUpdate{Slot: slot, WriteVersion: 1}
}

func txAt(slot uint64) *domain.TransactionRecord {
	return &domain.TransactionRecord{Slot: slot, Status: domain.TxStatusSuccess}
}

func status(slot uint64, st domain.SlotStatus) *domain.SlotStatusUpdate {
	return &domain.SlotStatusUpdate{Slot: slot, Status: st}
}

func TestRootReleasesSlotAndLower(t *testing.T) {
	down := &captureDownstream{}
	tr := New(down)

	tr.AddAccount(accountAt(8))
	tr.AddAccount(accountAt(10))
	tr.AddTransaction(txAt(9))
	tr.AddAccount(accountAt(12)) // above the root, must stay buffered

	tr.Observe(status(10, domain.SlotRooted))

	slots := down.accountSlots()
	if len(slots) != 2 || slots[0] != 8 || slots[1] != 10 {
		t.Errorf("expected accounts for slots [8 10] released in order, got %v", slots)
	}
	if len(down.transactions) != 1 || down.transactions[0].Slot != 9 {
		t.Errorf("expected transaction for slot 9 released, got %v", down.transactions)
	}
	if tr.Buffered() != 1 {
		t.Errorf("expected 1 record still buffered (slot 12), got %d", tr.Buffered())
	}
}

func TestDeadSlotPurged(t *testing.T) {
	down := &captureDownstream{}
	tr := New(down)

	tr.AddAccount(accountAt(10))
	tr.AddTransaction(txAt(10))
	tr.Observe(status(10, domain.SlotConfirmed))
	tr.Observe(status(10, domain.SlotDead))

	// A straggler for the abandoned fork is discarded on arrival.
	tr.AddAccount(accountAt(10))

	// Slot 11 on the surviving fork persists normally.
	tr.AddAccount(accountAt(11))
	tr.Observe(status(11, domain.SlotRooted))

	slots := down.accountSlots()
	if len(slots) != 1 || slots[0] != 11 {
		t.Errorf("expected only slot 11 released, got %v", slots)
	}
	if len(down.transactions) != 0 {
		t.Errorf("expected no transactions released, got %d", len(down.transactions))
	}
}

func TestStartupBypassesGating(t *testing.T) {
	down := &captureDownstream{}
	tr := New(down)

	u := accountAt(5)
	u.IsStartup = true
	tr.AddAccount(u)

	if len(down.accountSlots()) != 1 {
		t.Fatal("startup update should release immediately")
	}
	if tr.Buffered() != 0 {
		t.Errorf("startup update must not be buffered, got %d buffered", tr.Buffered())
	}
}

func TestRootedSlotBypassesBuffering(t *testing.T) {
	down := &captureDownstream{}
	tr := New(down)

	tr.Observe(status(100, domain.SlotRooted))

	// Late arrival for an already-finalized slot goes straight through.
	tr.AddAccount(accountAt(99))
	tr.AddTransaction(txAt(100))

	if len(down.accountSlots()) != 1 || len(down.transactions) != 1 {
		t.Errorf("expected bypass for finalized slots, got accounts=%v txs=%d",
			down.accountSlots(), len(down.transactions))
	}
}

func TestStatusNeverRegresses(t *testing.T) {
	down := &captureDownstream{}
	tr := New(down)

	tr.AddAccount(accountAt(10))
	tr.Observe(status(10, domain.SlotConfirmed))
	// Regression back to processed is ignored.
	tr.Observe(status(10, domain.SlotProcessed))

	s := tr.shardFor(10)
	s.mu.Lock()
	got := s.slots[10].status
	s.mu.Unlock()
	if got != domain.SlotConfirmed {
		t.Errorf("expected status to remain confirmed, got %s", got)
	}
}

func TestDeadMarkerSweptByLaterRoot(t *testing.T) {
	down := &captureDownstream{}
	tr := New(down)

	tr.AddAccount(accountAt(10))
	tr.Observe(status(10, domain.SlotDead))
	tr.Observe(status(11, domain.SlotRooted))

	if len(down.accountSlots()) != 0 {
		t.Errorf("dead slot records must never release, got %v", down.accountSlots())
	}

	s := tr.shardFor(10)
	s.mu.Lock()
	_, stillThere := s.slots[10]
	s.mu.Unlock()
	if stillThere {
		t.Error("dead slot marker should be swept once a later slot roots past it")
	}
}
