package render

import "sync"

// Versions tracks the render version of every screen. A version only moves
// forward; Bump is called by the store while it holds its write lock so the
// version change and the state change it describes become visible together.
type Versions struct {
	mu sync.RWMutex
	m  map[string]uint64
}

func NewVersions() *Versions {
	return &Versions{m: make(map[string]uint64)}
}

// Current returns the version of screenID, 0 for screens never bumped.
func (v *Versions) Current(screenID string) uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.m[screenID]
}

// Bump increments and returns the version of screenID.
func (v *Versions) Bump(screenID string) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.m[screenID]++
	return v.m[screenID]
}

// Forget drops the version of a removed screen.
func (v *Versions) Forget(screenID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.m, screenID)
}

// Len is the number of tracked screens.
func (v *Versions) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.m)
}
