/**
 * @description
 * Per-sponsor mutual exclusion. Every balance-affecting operation (settlement
 * of an ALLOW, force transfer, top-up) runs inside the lock for its sponsor
 * address, so the read-check-then-write sequence is atomic with respect to
 * other operations on the same sponsor. Operations on different sponsors never
 * block each other.
 */

package app

import "sync"

// sponsorLocks hands out one mutex per sponsor address. Locks are created
// lazily and kept for the life of the process; the per-sponsor footprint is a
// single mutex.
type sponsorLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newSponsorLocks() *sponsorLocks {
	return &sponsorLocks{locks: make(map[string]*sync.Mutex)}
}

func (s *sponsorLocks) get(address string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[address]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[address] = lock
	}
	return lock
}

// withLock runs fn while holding the sponsor's mutex.
func (s *sponsorLocks) withLock(address string, fn func() error) error {
	lock := s.get(address)
	lock.Lock()
	defer lock.Unlock()
	return fn()
}
