package resolve

import "sync"

// conflictCache remembers that a dependency (identified by its name,
// requirement and effective source) could not be satisfied against a
// particular active-selection fingerprint, so a later branch that
// reaches the identical fingerprint fails fast instead of re-querying
// and re-walking candidates that are already known to be hopeless.
// Mirrors golang-dep's per-ProjectAtom "versionQueue" failure memo in
// solver.go.
type conflictCache struct {
	mu   sync.Mutex
	seen map[string]map[string]bool // depKey -> set of activeSetKeys known to fail
}

func newConflictCache() *conflictCache {
	return &conflictCache{seen: make(map[string]map[string]bool)}
}

func (c *conflictCache) hit(depKey, activeKey string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seen[depKey][activeKey]
}

func (c *conflictCache) record(depKey, activeKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.seen[depKey]
	if !ok {
		m = make(map[string]bool)
		c.seen[depKey] = m
	}
	m[activeKey] = true
}
