package ws

import "sync"

type connSet map[string]*Conn

type shard struct {
	mu      sync.RWMutex
	entries map[int]connSet
}

// shardedSets maps an integer key to a set of connections. Keys are spread
// over independent shards so unrelated users or chats never contend.
type shardedSets struct {
	shards []*shard
}

func newShardedSets(n int) *shardedSets {
	if n <= 0 {
		n = 1
	}
	s := &shardedSets{shards: make([]*shard, n)}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[int]connSet)}
	}
	return s
}

func (s *shardedSets) shardFor(key int) *shard {
	return s.shards[uint(key)%uint(len(s.shards))]
}

// add reports whether the set was empty before the insert.
func (s *shardedSets) add(key int, c *Conn) bool {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	set, ok := sh.entries[key]
	if !ok {
		set = make(connSet)
		sh.entries[key] = set
	}
	set[c.ID] = c
	return len(set) == 1 && !ok
}

// remove reports whether connID was present and whether the set is now gone.
func (s *shardedSets) remove(key int, connID string) (removed, emptied bool) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	set, ok := sh.entries[key]
	if !ok {
		return false, false
	}
	if _, ok := set[connID]; !ok {
		return false, false
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(sh.entries, key)
		return true, true
	}
	return true, false
}

func (s *shardedSets) members(key int) []*Conn {
	sh := s.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	set := sh.entries[key]
	if len(set) == 0 {
		return nil
	}
	out := make([]*Conn, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

func (s *shardedSets) contains(key int, connID string) bool {
	sh := s.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	_, ok := sh.entries[key][connID]
	return ok
}

func (s *shardedSets) anyMatch(key int, pred func(*Conn) bool) bool {
	sh := s.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	for _, c := range sh.entries[key] {
		if pred(c) {
			return true
		}
	}
	return false
}

func (s *shardedSets) has(key int) bool {
	sh := s.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return len(sh.entries[key]) > 0
}

// keys is a shard-by-shard snapshot, not a point-in-time view of the whole map.
func (s *shardedSets) keys() []int {
	var out []int
	for _, sh := range s.shards {
		sh.mu.RLock()
		for k := range sh.entries {
			out = append(out, k)
		}
		sh.mu.RUnlock()
	}
	return out
}

func (s *shardedSets) all() []*Conn {
	var out []*Conn
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, set := range sh.entries {
			for _, c := range set {
				out = append(out, c)
			}
		}
		sh.mu.RUnlock()
	}
	return out
}
