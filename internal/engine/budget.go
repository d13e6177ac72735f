package engine

import (
	"fmt"
	"sync"
)

// MemoryBudget is a counting reservation over a fixed memory allowance in
// kilobytes. Workers reserve their job's estimate before simulating and
// release it when the job leaves the worker, whatever the outcome.
type MemoryBudget struct {
	mu      sync.Mutex
	cond    *sync.Cond
	totalKB int64
	freeKB  int64
}

// NewMemoryBudget creates a budget with the given total allowance.
func NewMemoryBudget(totalKB int64) *MemoryBudget {
	b := &MemoryBudget{totalKB: totalKB, freeKB: totalKB}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// TotalKB returns the fixed allowance.
func (b *MemoryBudget) TotalKB() int64 {
	return b.totalKB
}

// FreeKB returns the currently unreserved amount.
func (b *MemoryBudget) FreeKB() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.freeKB
}

// TryReserve reserves kb if it fits right now.
func (b *MemoryBudget) TryReserve(kb int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if kb > b.freeKB {
		return false
	}
	b.freeKB -= kb
	return true
}

// AwaitReserve blocks until kb can be reserved. A request larger than the
// total allowance can never be satisfied and is rejected instead of
// deadlocking the worker.
func (b *MemoryBudget) AwaitReserve(kb int64) error {
	if kb > b.totalKB {
		return fmt.Errorf("reservation of %d kB exceeds budget of %d kB", kb, b.totalKB)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for kb > b.freeKB {
		b.cond.Wait()
	}
	b.freeKB -= kb
	return nil
}

// Release returns kb to the budget and wakes all waiters.
func (b *MemoryBudget) Release(kb int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.freeKB += kb
	if b.freeKB > b.totalKB {
		b.freeKB = b.totalKB
	}
	b.cond.Broadcast()
}
