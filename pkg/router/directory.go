package router

import (
	"sort"
	"sync"

	"github.com/WebFirstLanguage/lanchat/pkg/identity"
)

// Directory maps peer ids to the display names they announced. A missing
// entry is normal: the name has not been learned yet.
type Directory struct {
	mu    sync.RWMutex
	names map[identity.PeerID]string
}

// NewDirectory creates an empty name directory
func NewDirectory() *Directory {
	return &Directory{names: make(map[identity.PeerID]string)}
}

// Set records name for id, replacing any earlier name
func (d *Directory) Set(id identity.PeerID, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.names[id] = name
}

// Get returns the name recorded for id
func (d *Directory) Get(id identity.PeerID) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	name, ok := d.names[id]
	return name, ok
}

// Has reports whether a name is known for id
func (d *Directory) Has(id identity.PeerID) bool {
	_, ok := d.Get(id)
	return ok
}

// Len returns the number of known names
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.names)
}

// Snapshot returns a copy of the directory
func (d *Directory) Snapshot() map[identity.PeerID]string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[identity.PeerID]string, len(d.names))
	for id, name := range d.names {
		out[id] = name
	}
	return out
}

// IDsByName returns the sorted ids that announced name
func (d *Directory) IDsByName(name string) []identity.PeerID {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var ids []identity.PeerID
	for id, n := range d.names {
		if n == name {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
