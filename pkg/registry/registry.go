// Package registry implements the Server Registry: the authoritative
// in-memory client directory and the derived offer view, per spec.md §3
// and §4.3.
package registry

import (
	"sort"
	"sync"

	"github.com/samsamfire/fileapp/internal/wire"
	log "github.com/sirupsen/logrus"
)

// Status is a Client record's lifecycle state. The only transition is
// active -> offline; there is no path back, which is what prevents name
// reuse after deregistration.
type Status uint8

const (
	StatusActive Status = iota
	StatusOffline
)

// Record is a Server-side Client record, keyed by the UDP endpoint
// observed at registration.
type Record struct {
	Name    string
	Status  Status
	TCPPort int
	Files   map[string]struct{}
}

// RegisterResult is the outcome of a register() call.
type RegisterResult uint8

const (
	Accepted RegisterResult = iota
	AlreadyRegistered
)

// Registry is the Server's process-wide client directory. Per spec.md §9,
// it needs no internal locking beyond what's here as long as callers don't
// also mutate it concurrently from outside the Dispatcher; the mutex is
// kept anyway so the type is safe to reuse from tests or a parallelized
// dispatcher without surprises.
type Registry struct {
	mu      sync.Mutex
	records map[wire.Endpoint]*Record
	names   map[string]struct{} // every name ever registered, active or offline
	view    wire.View
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		records: make(map[wire.Endpoint]*Record),
		names:   make(map[string]struct{}),
		view:    wire.NewView(),
	}
}

// Register inserts a new active Record for a never-before-seen name. It
// rejects names that exist in the registry under any status, including
// offline ones, which is how name reuse after deregistration is blocked.
func (r *Registry) Register(ep wire.Endpoint, name string, tcpPort int) RegisterResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.names[name]; taken {
		log.Infof("[registry] rejecting registration of %q: already registered", name)
		return AlreadyRegistered
	}
	r.records[ep] = &Record{
		Name:    name,
		Status:  StatusActive,
		TCPPort: tcpPort,
		Files:   make(map[string]struct{}),
	}
	r.names[name] = struct{}{}
	log.Infof("[registry] registered %q at %s:%d (tcp=%d)", name, ep.IP, ep.Port, tcpPort)
	return Accepted
}

// AddOffers adds filenames to the owner's offer set. Duplicates are
// silent no-ops. It returns true if the offer view changed (i.e. at least
// one new (file, owner) pair was added), signaling the caller should
// broadcast.
func (r *Registry) AddOffers(ep wire.Endpoint, files []string) (changed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[ep]
	if !ok || rec.Status != StatusActive {
		return false
	}
	for _, f := range files {
		if _, exists := rec.Files[f]; exists {
			continue
		}
		rec.Files[f] = struct{}{}
		key := wire.Key(f, rec.Name)
		r.view.Set(key, ep.IP, rec.TCPPort)
		changed = true
	}
	if changed {
		log.Infof("[registry] %q now offering %d file(s)", rec.Name, len(rec.Files))
	}
	return changed
}

// Deregister transitions a Record to offline, empties its files, and
// removes every offer-view entry it owned. It signals a change unless the
// endpoint is unknown or its Record is already offline.
func (r *Registry) Deregister(ep wire.Endpoint) (changed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[ep]
	if !ok || rec.Status != StatusActive {
		return false
	}
	for f := range rec.Files {
		delete(r.view, wire.Key(f, rec.Name))
	}
	rec.Files = make(map[string]struct{})
	rec.Status = StatusOffline
	log.Infof("[registry] %q deregistered", rec.Name)
	return true
}

// Lookup returns the Record for an endpoint, if any.
func (r *Registry) Lookup(ep wire.Endpoint) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[ep]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// View returns a snapshot copy of the current offer view, safe for the
// caller to serialize without further synchronization.
func (r *Registry) View() wire.View {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := wire.NewView()
	for k, v := range r.view {
		cp[k] = v
	}
	return cp
}

// ActiveEndpoints returns the UDP endpoints of every active Client, the
// broadcast fan-out list.
func (r *Registry) ActiveEndpoints() []wire.Endpoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	eps := make([]wire.Endpoint, 0, len(r.records))
	for ep, rec := range r.records {
		if rec.Status == StatusActive {
			eps = append(eps, ep)
		}
	}
	sort.Slice(eps, func(i, j int) bool {
		if eps[i].IP != eps[j].IP {
			return eps[i].IP < eps[j].IP
		}
		return eps[i].Port < eps[j].Port
	})
	return eps
}

// Summary reports the active client count and distinct offered file
// count, for the Server's periodic registry summary (spec.md §B.2.2).
func (r *Registry) Summary() (activeClients int, distinctFiles int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	files := make(map[string]struct{})
	for _, rec := range r.records {
		if rec.Status != StatusActive {
			continue
		}
		activeClients++
		for f := range rec.Files {
			files[f] = struct{}{}
		}
	}
	return activeClients, len(files)
}
