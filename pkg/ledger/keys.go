package ledger

import "sync"

// keyLocks serializes work per (actor_id, resource) key. Actions on distinct
// keys run concurrently; actions on the same key queue in arrival order.
// Entries are never evicted; the map is bounded by the number of distinct
// keys the engine has ever touched.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[string]*sync.Mutex)}
}

// acquire locks the mutex for key and returns its release func. Release is
// idempotent: Execute unlocks early before handing off to the rollback
// coordinator, which takes the same key, and the deferred release must then
// be a no-op.
func (k *keyLocks) acquire(actorID, resource string) func() {
	key := actorID + "\x00" + resource
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()
	m.Lock()
	var once sync.Once
	return func() { once.Do(m.Unlock) }
}
