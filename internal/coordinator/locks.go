package coordinator

import (
	"hash/fnv"
	"sync"
)

// keyedMutex serializes mutations per record id using a fixed set of lock
// stripes. Two ids may share a stripe; that only costs contention, never
// correctness.
type keyedMutex struct {
	stripes []sync.Mutex
}

func newKeyedMutex(n int) *keyedMutex {
	if n <= 0 {
		n = 64
	}
	return &keyedMutex{stripes: make([]sync.Mutex, n)}
}

func (m *keyedMutex) stripe(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &m.stripes[h.Sum32()%uint32(len(m.stripes))]
}

func (m *keyedMutex) Lock(key string) {
	m.stripe(key).Lock()
}

func (m *keyedMutex) Unlock(key string) {
	m.stripe(key).Unlock()
}
