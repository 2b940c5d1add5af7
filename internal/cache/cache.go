// Package cache holds the in-process copy of the contact set so reads do
// not hammer the directory. It is an explicitly owned object with a defined
// lifecycle, not ambient package state: construct it cold, and the first
// read performs the initial full fetch.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/rolodexhq/rolodex/internal/contact"
)

const refreshKey = "refresh"

type Options struct {
	Directory contact.Directory
	TTL       time.Duration
	Logger    *zap.Logger
	Now       func() time.Time
}

type Cache struct {
	dir    contact.Directory
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time

	group singleflight.Group

	mu       sync.RWMutex
	contacts []contact.Contact
	byID     map[string]int
	warnings []string
	// refreshedAt is zeroed by Invalidate so the next read always fetches,
	// while the stale contents stay around for degraded serving.
	refreshedAt time.Time
	// gen counts invalidations. A refresh that started before an
	// invalidation must not satisfy a read issued after it, and must not
	// stamp refreshedAt; otherwise a writer's own write could stay
	// invisible for a full TTL behind an already in-flight fetch.
	gen uint64
}

func New(opts Options) *Cache {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Cache{
		dir:    opts.Directory,
		ttl:    ttl,
		logger: logger,
		now:    now,
		byID:   map[string]int{},
	}
}

// GetAll returns the cached snapshot when it is within TTL, refreshing
// otherwise. Concurrent callers share one in-flight refresh. When the
// directory is unreachable and a previous snapshot exists, that snapshot is
// served with Stale set so callers can tell degraded data from fresh.
func (c *Cache) GetAll(ctx context.Context, force bool) (contact.Snapshot, error) {
	if force {
		c.Invalidate()
	}
	for {
		if snap, ok := c.freshSnapshot(); ok {
			return snap, nil
		}
		needGen := c.currentGen()
		v, err, _ := c.group.Do(refreshKey, func() (any, error) {
			// A refresh that completed while this caller was queued behind
			// the flight lock is good enough; don't fetch twice.
			if _, ok := c.freshSnapshot(); ok {
				return c.currentGen(), nil
			}
			startGen, err := c.refresh(ctx)
			if err != nil {
				return nil, err
			}
			return startGen, nil
		})
		if err != nil {
			if errors.Is(err, contact.ErrDirectoryUnavailable) {
				if snap, ok := c.staleSnapshot(); ok {
					c.logger.Warn("directory unreachable, serving stale snapshot",
						zap.Time("refreshed_at", snap.RefreshedAt),
						zap.Error(err))
					return snap, nil
				}
			}
			return contact.Snapshot{}, err
		}
		if startGen, ok := v.(uint64); ok && startGen >= needGen {
			snap, _ := c.currentSnapshot()
			return snap, nil
		}
		// The shared flight began before this caller's invalidation; its
		// result predates the write. Go around for a fresh fetch.
	}
}

// GetOne serves from the snapshot when the contact is present; a miss falls
// through to a single-record fetch rather than a full refresh.
func (c *Cache) GetOne(ctx context.Context, id string) (contact.Contact, error) {
	c.mu.RLock()
	if idx, ok := c.byID[id]; ok {
		found := c.contacts[idx]
		c.mu.RUnlock()
		return found, nil
	}
	c.mu.RUnlock()

	fetched, err := c.dir.FetchOne(ctx, id)
	if err != nil {
		return contact.Contact{}, err
	}
	c.insert(fetched)
	return fetched, nil
}

// Invalidate forces the next GetAll to refresh regardless of TTL. Writers
// call it after committing so they read their own writes.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.gen++
	c.refreshedAt = time.Time{}
	c.mu.Unlock()
}

func (c *Cache) currentGen() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

// refresh fetches and installs a new snapshot, returning the generation the
// fetch started under. If an Invalidate lands mid-fetch the contents are
// still installed for stale serving, but refreshedAt stays zero so the next
// read fetches again.
func (c *Cache) refresh(ctx context.Context) (uint64, error) {
	startGen := c.currentGen()
	contacts, warnings, err := c.dir.FetchAll(ctx)
	if err != nil {
		return 0, err
	}
	byID := make(map[string]int, len(contacts))
	for i, ct := range contacts {
		byID[ct.ID] = i
	}
	c.mu.Lock()
	c.contacts = contacts
	c.byID = byID
	c.warnings = warnings
	if c.gen == startGen {
		c.refreshedAt = c.now()
	}
	c.mu.Unlock()
	c.logger.Debug("snapshot refreshed",
		zap.Int("contacts", len(contacts)),
		zap.Int("skipped", len(warnings)))
	return startGen, nil
}

func (c *Cache) insert(ct contact.Contact) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx, ok := c.byID[ct.ID]; ok {
		c.contacts[idx] = ct
		return
	}
	c.contacts = append(c.contacts, ct)
	c.byID[ct.ID] = len(c.contacts) - 1
}

func (c *Cache) freshSnapshot() (contact.Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.refreshedAt.IsZero() || c.now().Sub(c.refreshedAt) >= c.ttl {
		return contact.Snapshot{}, false
	}
	return c.snapshotLocked(false), true
}

func (c *Cache) currentSnapshot() (contact.Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.contacts == nil {
		return contact.Snapshot{}, false
	}
	return c.snapshotLocked(false), true
}

func (c *Cache) staleSnapshot() (contact.Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.contacts == nil {
		return contact.Snapshot{}, false
	}
	return c.snapshotLocked(true), true
}

// snapshotLocked copies the contact slice so readers hold an immutable view
// even while a refresh replaces the underlying state.
func (c *Cache) snapshotLocked(stale bool) contact.Snapshot {
	contacts := make([]contact.Contact, len(c.contacts))
	copy(contacts, c.contacts)
	warnings := make([]string, len(c.warnings))
	copy(warnings, c.warnings)
	return contact.Snapshot{
		Contacts:    contacts,
		RefreshedAt: c.refreshedAt,
		Stale:       stale,
		Warnings:    warnings,
	}
}

var _ contact.SnapshotSource = (*Cache)(nil)
