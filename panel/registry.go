package panel

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotMounted is returned for an unknown or expired mount ID.
var ErrNotMounted = errors.New("panel not mounted")

// DefaultSessionTTL is how long an untouched mount is kept.
const DefaultSessionTTL = 30 * time.Minute

// Registry holds the mounted panels. PanelState lives only as long as the
// mount does.
type Registry struct {
	ttl     time.Duration
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time

	mu     sync.Mutex
	mounts map[string]*mount
}

type mount struct {
	ctrl     *Controller
	lastSeen time.Time
}

// NewRegistry creates an empty registry. A non-positive ttl uses DefaultSessionTTL.
func NewRegistry(ttl time.Duration, logger *slog.Logger, m *Metrics) *Registry {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Registry{
		ttl:     ttl,
		logger:  logger,
		metrics: m,
		now:     time.Now,
		mounts:  make(map[string]*mount),
	}
}

// Mount registers an activated controller and returns its mount ID.
func (r *Registry) Mount(ctrl *Controller) string {
	id := uuid.NewString()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.mounts[id] = &mount{ctrl: ctrl, lastSeen: r.now()}
	r.metrics.setMounted(len(r.mounts))
	return id
}

// Get returns the controller mounted under id and marks it as used.
func (r *Registry) Get(id string) (*Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.mounts[id]
	if !ok {
		return nil, ErrNotMounted
	}
	m.lastSeen = r.now()
	return m.ctrl, nil
}

// Unmount discards the panel mounted under id.
func (r *Registry) Unmount(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.mounts[id]; !ok {
		return ErrNotMounted
	}
	delete(r.mounts, id)
	r.metrics.setMounted(len(r.mounts))
	return nil
}

// Len returns the number of mounted panels.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.mounts)
}

// Expire unmounts panels idle for longer than the TTL and returns how many
// were removed.
func (r *Registry) Expire() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.ttl)
	removed := 0
	for id, m := range r.mounts {
		if m.lastSeen.Before(cutoff) {
			delete(r.mounts, id)
			removed++
		}
	}
	r.metrics.setMounted(len(r.mounts))

	if removed > 0 {
		r.logger.Info("expired idle panels", "count", removed, "remaining", len(r.mounts))
	}
	return removed
}
