// Package ids mints small integer identifiers per family and recycles released
// ones.
package ids

import (
	"fmt"
	"sync"
)

// Well known families.
const (
	FamilyPlayer = "player"
	FamilyPacket = "packet"
	FamilyGame   = "game"
)

// Allocator hands out ids starting at zero. Released ids are reused most
// recent first.
type Allocator struct {
	mu       sync.Mutex
	next     map[string]uint64
	released map[string][]uint64
}

// New constructs an empty allocator.
func New() *Allocator {
	return &Allocator{
		next:     make(map[string]uint64),
		released: make(map[string][]uint64),
	}
}

// Next returns a fresh or recycled id for the family.
func (a *Allocator) Next(family string) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if free := a.released[family]; len(free) > 0 {
		id := free[len(free)-1]
		a.released[family] = free[:len(free)-1]
		return id
	}
	id := a.next[family]
	a.next[family] = id + 1
	return id
}

// Release returns an id to the family's free list.
func (a *Allocator) Release(family string, id uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if id >= a.next[family] {
		return fmt.Errorf("release %s id %d: never allocated", family, id)
	}
	for _, free := range a.released[family] {
		if free == id {
			return fmt.Errorf("release %s id %d: already released", family, id)
		}
	}
	a.released[family] = append(a.released[family], id)
	return nil
}

// InUse returns how many ids of the family are currently handed out.
func (a *Allocator) InUse(family string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return int(a.next[family]) - len(a.released[family])
}

// Reserve bumps the family counter past id so it is never minted again. Used
// when restoring saved state.
func (a *Allocator) Reserve(family string, id uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if id >= a.next[family] {
		a.next[family] = id + 1
	}
}
