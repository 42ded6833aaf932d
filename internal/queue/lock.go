package queue

import "sync"

// keyedMutex serializes operations per queue ID. Mutexes are created
// lazily and never released; a clinic's working set of daily queues is
// small enough that reclamation is not worth the bookkeeping.
type keyedMutex struct {
	mu      sync.Mutex
	mutexes map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{mutexes: make(map[string]*sync.Mutex)}
}

// lock acquires the mutex for key and returns its unlock func.
func (m *keyedMutex) lock(key string) func() {
	mu := m.get(key)
	mu.Lock()
	return mu.Unlock
}

func (m *keyedMutex) get(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	if mu, ok := m.mutexes[key]; ok {
		return mu
	}
	mu := &sync.Mutex{}
	m.mutexes[key] = mu
	return mu
}
