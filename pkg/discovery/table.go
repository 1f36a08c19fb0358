// Package discovery implements LAN peer discovery: a periodic UDP presence
// beacon, a beacon listener, and the liveness-windowed table of known peers.
package discovery

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/WebFirstLanguage/lanchat/pkg/constants"
	"github.com/WebFirstLanguage/lanchat/pkg/identity"
)

// Clock returns the current time. Tests substitute a fake clock.
type Clock func() time.Time

// PeerRecord is one known peer. Records leave the table by value only.
type PeerRecord struct {
	IP              string
	Port            uint16
	ProtocolVersion uint16
	LastSeen        time.Time
}

// Addr returns the host:port of the peer's router
func (r PeerRecord) Addr() string {
	return net.JoinHostPort(r.IP, strconv.Itoa(int(r.Port)))
}

// String returns a compact description of the record
func (r PeerRecord) String() string {
	return fmt.Sprintf("%s v%d seen %s", r.Addr(), r.ProtocolVersion, r.LastSeen.Format(time.TimeOnly))
}

// Table maps PeerIDs to records and hides every record whose last beacon is
// older than the timeout. Expired records are purged under the same lock as
// any read or write, so a reader never observes a stale entry.
type Table struct {
	mu      sync.Mutex
	timeout time.Duration
	now     Clock
	records map[identity.PeerID]*PeerRecord
}

// NewTable creates a table with the given liveness timeout. A zero timeout
// selects the default; a nil clock selects time.Now.
func NewTable(timeout time.Duration, clock Clock) *Table {
	if timeout <= 0 {
		timeout = constants.PeerTimeout
	}
	if clock == nil {
		clock = time.Now
	}

	return &Table{
		timeout: timeout,
		now:     clock,
		records: make(map[identity.PeerID]*PeerRecord),
	}
}

// Timeout returns the liveness window
func (t *Table) Timeout() time.Duration {
	return t.timeout
}

// Observe records a beacon from id. It returns true when the peer was not in
// the live view before, in which case a fresh record is created. For a live
// peer the address fields take the beacon's values and LastSeen only moves
// forward.
func (t *Table) Observe(id identity.PeerID, ip string, port, version uint16) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.purgeLocked(now)

	if rec, ok := t.records[id]; ok {
		rec.IP = ip
		rec.Port = port
		rec.ProtocolVersion = version
		if now.After(rec.LastSeen) {
			rec.LastSeen = now
		}
		return false
	}

	t.records[id] = &PeerRecord{
		IP:              ip,
		Port:            port,
		ProtocolVersion: version,
		LastSeen:        now,
	}
	return true
}

// Lookup returns a copy of the live record for id
func (t *Table) Lookup(id identity.PeerID) (PeerRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.purgeLocked(t.now())

	rec, ok := t.records[id]
	if !ok {
		return PeerRecord{}, false
	}
	return *rec, true
}

// Contains reports whether id is in the live view
func (t *Table) Contains(id identity.PeerID) bool {
	_, ok := t.Lookup(id)
	return ok
}

// Snapshot returns a copy of the live view
func (t *Table) Snapshot() map[identity.PeerID]PeerRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.purgeLocked(t.now())

	out := make(map[identity.PeerID]PeerRecord, len(t.records))
	for id, rec := range t.records {
		out[id] = *rec
	}
	return out
}

// IDs returns the live PeerIDs in sorted order
func (t *Table) IDs() []identity.PeerID {
	snap := t.Snapshot()

	ids := make([]identity.PeerID, 0, len(snap))
	for id := range snap {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len returns the number of live peers
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.purgeLocked(t.now())
	return len(t.records)
}

// Sweep purges expired records and returns their ids
func (t *Table) Sweep() []identity.PeerID {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.purgeLocked(t.now())
}

// purgeLocked drops every record with now - LastSeen >= timeout
func (t *Table) purgeLocked(now time.Time) []identity.PeerID {
	var expired []identity.PeerID
	for id, rec := range t.records {
		if now.Sub(rec.LastSeen) >= t.timeout {
			delete(t.records, id)
			expired = append(expired, id)
		}
	}
	return expired
}
