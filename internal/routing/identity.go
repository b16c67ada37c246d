package routing

import "sync"

// Identity is one bot account taking part in the pool.
type Identity struct {
	index int

	mu     sync.RWMutex
	userID string
	ready  bool
}

func NewIdentity(index int) *Identity {
	return &Identity{index: index}
}

func (i *Identity) Index() int { return i.index }

func (i *Identity) UserID() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.userID
}

func (i *Identity) Ready() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.ready
}

// SetReady records the gateway user of this identity once its session is ready.
func (i *Identity) SetReady(userID string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.userID = userID
	i.ready = true
}

func (i *Identity) SetNotReady() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.ready = false
}

// IsSentinel reports whether this identity speaks for the pool when every identity is busy.
func (i *Identity) IsSentinel() bool { return i.index == SentinelIndex }
