package providers

import "sync"

// ClientCache holds constructed clients keyed by credential id. It is
// injected into the Resolver rather than held globally, so its lifetime
// and invalidation are explicit. Safe for concurrent use: clients are
// stateless beyond the embedded secret.
type ClientCache struct {
	mu      sync.RWMutex
	clients map[uint64]Client
}

// NewClientCache returns an empty cache.
func NewClientCache() *ClientCache {
	return &ClientCache{clients: make(map[uint64]Client)}
}

// Get returns the cached client for a credential id.
func (c *ClientCache) Get(credentialID uint64) (Client, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	client, ok := c.clients[credentialID]
	return client, ok
}

// Put stores a client for a credential id.
func (c *ClientCache) Put(credentialID uint64, client Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clients[credentialID] = client
}

// Invalidate drops the entry for one credential. Called by credential
// mutation paths on update, rotation, and delete.
func (c *ClientCache) Invalidate(credentialID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.clients, credentialID)
}

// Clear drops every entry.
func (c *ClientCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clients = make(map[uint64]Client)
}
