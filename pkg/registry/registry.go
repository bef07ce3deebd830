package registry

import (
	"sync"
	"time"
)

// Position is the last parsed GPGGA fix for a session, or absent.
type Position struct {
	Latitude      float64
	Longitude     float64
	FixQuality    int
	NumSatellites int
}

// RoverSession is a snapshot of one downstream rover connection.
type RoverSession struct {
	ID             string
	RemoteAddr     string
	ConnectedAt    time.Time
	DisconnectedAt time.Time
	Active         bool

	BytesSentToRover     uint64
	BytesReceivedFromRover uint64

	Position        *Position
	BoundMountPoint string

	// ArtifactPath, when set, names a per-session file (e.g. an NMEA log)
	// that the sweep deletes alongside the entry.
	ArtifactPath string
}

// Delta carries the fields an Update call wants to merge into an existing
// entry; nil/zero fields are left untouched, byte-counter deltas are added.
type Delta struct {
	Position              *Position
	BoundMountPoint       *string
	BytesSentDelta        uint64
	BytesReceivedDelta    uint64
}

// ArtifactRemover deletes the auxiliary files a closed, swept-out session
// owned. Registered once by the process; defaults to a no-op.
type ArtifactRemover func(session RoverSession) error

// Registry is the concurrency-safe session table. track/update/markClosed are
// the session engine's lifecycle hooks; the admin collaborator only reads.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*RoverSession

	clock           Clock
	retention       time.Duration
	artifactRemover ArtifactRemover
}

const defaultRetention = 7 * 24 * time.Hour

// New creates an empty Registry with the default seven-day retention
// window and the system clock.
func New() *Registry {
	return &Registry{
		sessions:        make(map[string]*RoverSession),
		clock:           systemClock{},
		retention:       defaultRetention,
		artifactRemover: func(RoverSession) error { return nil },
	}
}

// SetRetention overrides the default seven-day retention window.
func (r *Registry) SetRetention(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retention = d
}

// SetArtifactRemover overrides the default no-op artifact cleanup hook.
func (r *Registry) SetArtifactRemover(f ArtifactRemover) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.artifactRemover = f
}

// Track registers a newly accepted session.
func (r *Registry) Track(id string, initial RoverSession) {
	initial.ID = id
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = &initial
}

// Update merges delta into the session's stored fields. A call for an
// unknown id is a no-op: the session may have already been swept.
func (r *Registry) Update(id string, delta Delta) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return
	}
	if delta.Position != nil {
		s.Position = delta.Position
	}
	if delta.BoundMountPoint != nil {
		s.BoundMountPoint = *delta.BoundMountPoint
	}
	s.BytesSentToRover += delta.BytesSentDelta
	s.BytesReceivedFromRover += delta.BytesReceivedDelta
}

// MarkClosed marks a session terminal: active=false, disconnectedAt=now.
func (r *Registry) MarkClosed(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return
	}
	s.Active = false
	s.DisconnectedAt = r.clock.Now()
}

// Get returns a copy of one session, or false if it is not (or no longer)
// tracked.
func (r *Registry) Get(id string) (RoverSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return RoverSession{}, false
	}
	return *s, true
}

// List returns a snapshot copy of every tracked session, live and
// recently-closed.
func (r *Registry) List() []RoverSession {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]RoverSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, *s)
	}
	return out
}

// Sweep removes closed entries past the retention window (measured from
// DisconnectedAt) and still-open entries whose ConnectedAt is past the
// window, deleting each entry's artifacts as it goes. A still-active
// session is never force-closed by the sweep; it is only evicted from the
// registry's bookkeeping.
func (r *Registry) Sweep() int {
	cutoff := r.clock.Now().Add(-r.retention)

	r.mu.Lock()
	var toRemove []RoverSession
	for id, s := range r.sessions {
		age := s.DisconnectedAt
		if s.Active {
			age = s.ConnectedAt
		}
		if age.Before(cutoff) {
			toRemove = append(toRemove, *s)
			delete(r.sessions, id)
		}
	}
	remover := r.artifactRemover
	r.mu.Unlock()

	for _, s := range toRemove {
		_ = remover(s)
	}
	return len(toRemove)
}
