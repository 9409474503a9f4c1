package pebble

import (
	"hash/fnv"
	"sync"
)

const lockShards = 64

// tableLocks serialises read-modify-write cycles per table. Each shard
// tracks the table hashes currently held; a table only waits for holders
// of the same hash.
type tableLocks struct {
	shards [lockShards]lockShard
}

type lockShard struct {
	mu       sync.Mutex
	released *sync.Cond
	held     map[uint64]struct{}
}

func newTableLocks() *tableLocks {
	l := &tableLocks{}
	for i := range l.shards {
		s := &l.shards[i]
		s.released = sync.NewCond(&s.mu)
		s.held = make(map[uint64]struct{})
	}
	return l
}

func (l *tableLocks) do(table string, f func() error) error {
	h := fnv.New64a()
	_, _ = h.Write([]byte(table))
	id := h.Sum64()
	s := &l.shards[id%lockShards]

	s.mu.Lock()
	for {
		if _, busy := s.held[id]; !busy {
			break
		}
		s.released.Wait()
	}
	s.held[id] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.held, id)
		s.mu.Unlock()
		s.released.Broadcast()
	}()
	return f()
}
