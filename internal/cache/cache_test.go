package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rolodexhq/rolodex/internal/contact"
)

type fakeDirectory struct {
	mu       sync.Mutex
	contacts []contact.Contact
	fetchAll atomic.Int64
	fetchOne atomic.Int64
	failAll  error
	failOne  error
	block    chan struct{}
}

// FetchAll captures the contact set at entry, the way a real paginated query
// reads state as of when it started, then parks on block if one is set.
func (d *fakeDirectory) FetchAll(ctx context.Context) ([]contact.Contact, []string, error) {
	d.fetchAll.Add(1)
	d.mu.Lock()
	failAll := d.failAll
	out := make([]contact.Contact, len(d.contacts))
	copy(out, d.contacts)
	d.mu.Unlock()
	if d.block != nil {
		<-d.block
	}
	if failAll != nil {
		return nil, nil, failAll
	}
	return out, nil, nil
}

func (d *fakeDirectory) FetchOne(ctx context.Context, id string) (contact.Contact, error) {
	d.fetchOne.Add(1)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failOne != nil {
		return contact.Contact{}, d.failOne
	}
	for _, c := range d.contacts {
		if c.ID == id {
			return c, nil
		}
	}
	return contact.Contact{}, contact.ErrNotFound
}

func (d *fakeDirectory) Create(ctx context.Context, c contact.Contact) (contact.Contact, error) {
	return c, nil
}

func (d *fakeDirectory) Update(ctx context.Context, id string, p contact.Patch) (contact.Contact, error) {
	return contact.Contact{}, contact.ErrNotFound
}

func (d *fakeDirectory) Archive(ctx context.Context, id, reason string, at time.Time) error {
	return nil
}

func (d *fakeDirectory) Ping(ctx context.Context) error { return nil }

func (d *fakeDirectory) setContacts(contacts ...contact.Contact) {
	d.mu.Lock()
	d.contacts = contacts
	d.mu.Unlock()
}

func newTestCache(dir *fakeDirectory, ttl time.Duration) *Cache {
	return New(Options{Directory: dir, TTL: ttl})
}

func TestGetAllServesWithinTTL(t *testing.T) {
	dir := &fakeDirectory{}
	dir.setContacts(contact.Contact{ID: "a"})
	c := newTestCache(dir, time.Minute)

	if _, err := c.GetAll(context.Background(), false); err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	snap, err := c.GetAll(context.Background(), false)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if dir.fetchAll.Load() != 1 {
		t.Errorf("fetches = %d, want 1", dir.fetchAll.Load())
	}
	if snap.Stale {
		t.Error("fresh snapshot reported stale")
	}
	if len(snap.Contacts) != 1 {
		t.Errorf("contacts = %d", len(snap.Contacts))
	}
}

func TestGetAllRefreshesAfterTTL(t *testing.T) {
	dir := &fakeDirectory{}
	dir.setContacts(contact.Contact{ID: "a"})

	clock := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	c := New(Options{
		Directory: dir,
		TTL:       time.Minute,
		Now:       func() time.Time { return clock },
	})
	if _, err := c.GetAll(context.Background(), false); err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	clock = clock.Add(2 * time.Minute)
	if _, err := c.GetAll(context.Background(), false); err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if dir.fetchAll.Load() != 2 {
		t.Errorf("fetches = %d, want 2", dir.fetchAll.Load())
	}
}

func TestInvalidateForcesRefresh(t *testing.T) {
	dir := &fakeDirectory{}
	dir.setContacts(contact.Contact{ID: "a"})
	c := newTestCache(dir, time.Hour)

	if _, err := c.GetAll(context.Background(), false); err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	dir.setContacts(contact.Contact{ID: "a"}, contact.Contact{ID: "b"})
	c.Invalidate()

	snap, err := c.GetAll(context.Background(), false)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(snap.Contacts) != 2 {
		t.Errorf("post-invalidate read returned %d contacts, want 2", len(snap.Contacts))
	}
}

func TestInvalidateDuringRefreshKeepsWriteVisible(t *testing.T) {
	dir := &fakeDirectory{block: make(chan struct{})}
	dir.setContacts(contact.Contact{ID: "a"})
	c := newTestCache(dir, time.Hour)

	done := make(chan error, 1)
	go func() {
		_, err := c.GetAll(context.Background(), false)
		done <- err
	}()
	waitForFetches(t, dir, 1)

	// A write commits and invalidates while the old fetch is still running.
	dir.setContacts(contact.Contact{ID: "a"}, contact.Contact{ID: "b"})
	c.Invalidate()
	close(dir.block)
	if err := <-done; err != nil {
		t.Fatalf("GetAll: %v", err)
	}

	// The completed fetch predates the write; it must not count as fresh.
	snap, err := c.GetAll(context.Background(), false)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(snap.Contacts) != 2 {
		t.Fatalf("post-invalidate read returned %d contacts, want 2: the write is invisible", len(snap.Contacts))
	}
}

func TestReaderAfterInvalidateSkipsStaleFlight(t *testing.T) {
	dir := &fakeDirectory{block: make(chan struct{})}
	dir.setContacts(contact.Contact{ID: "a"})
	c := newTestCache(dir, time.Hour)

	first := make(chan error, 1)
	go func() {
		_, err := c.GetAll(context.Background(), false)
		first <- err
	}()
	waitForFetches(t, dir, 1)

	dir.setContacts(contact.Contact{ID: "a"}, contact.Contact{ID: "b"})
	c.Invalidate()

	// This reader starts after the invalidation. Joining the in-flight fetch
	// would hand it the pre-write contact set; it must refetch instead.
	second := make(chan contact.Snapshot, 1)
	go func() {
		snap, err := c.GetAll(context.Background(), false)
		if err != nil {
			t.Errorf("GetAll: %v", err)
		}
		second <- snap
	}()
	time.Sleep(20 * time.Millisecond)
	close(dir.block)

	if err := <-first; err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	snap := <-second
	if len(snap.Contacts) != 2 {
		t.Fatalf("reader issued after the write saw %d contacts, want 2", len(snap.Contacts))
	}
}

func waitForFetches(t *testing.T, dir *fakeDirectory, want int64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for dir.fetchAll.Load() < want {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for fetch %d", want)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestForceRefreshBypassesTTL(t *testing.T) {
	dir := &fakeDirectory{}
	dir.setContacts(contact.Contact{ID: "a"})
	c := newTestCache(dir, time.Hour)

	if _, err := c.GetAll(context.Background(), false); err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if _, err := c.GetAll(context.Background(), true); err != nil {
		t.Fatalf("GetAll force: %v", err)
	}
	if dir.fetchAll.Load() != 2 {
		t.Errorf("fetches = %d, want 2", dir.fetchAll.Load())
	}
}

func TestGetAllServesStaleWhenDirectoryDown(t *testing.T) {
	dir := &fakeDirectory{}
	dir.setContacts(contact.Contact{ID: "a"})
	c := newTestCache(dir, time.Minute)

	if _, err := c.GetAll(context.Background(), false); err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	dir.mu.Lock()
	dir.failAll = contact.ErrDirectoryUnavailable
	dir.mu.Unlock()
	c.Invalidate()

	snap, err := c.GetAll(context.Background(), false)
	if err != nil {
		t.Fatalf("expected stale serving, got error: %v", err)
	}
	if !snap.Stale {
		t.Error("degraded snapshot must be marked stale")
	}
	if len(snap.Contacts) != 1 {
		t.Errorf("contacts = %d", len(snap.Contacts))
	}
}

func TestGetAllColdFailureSurfacesError(t *testing.T) {
	dir := &fakeDirectory{failAll: contact.ErrDirectoryUnavailable}
	c := newTestCache(dir, time.Minute)
	if _, err := c.GetAll(context.Background(), false); !errors.Is(err, contact.ErrDirectoryUnavailable) {
		t.Fatalf("cold cache with no fallback must fail, got %v", err)
	}
}

func TestConcurrentReadersShareOneRefresh(t *testing.T) {
	dir := &fakeDirectory{block: make(chan struct{})}
	dir.setContacts(contact.Contact{ID: "a"})
	c := newTestCache(dir, time.Minute)

	const readers = 8
	var wg sync.WaitGroup
	errs := make(chan error, readers)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.GetAll(context.Background(), false)
			errs <- err
		}()
	}
	// Let the goroutines pile up behind the in-flight fetch.
	time.Sleep(50 * time.Millisecond)
	close(dir.block)
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("GetAll: %v", err)
		}
	}
	if got := dir.fetchAll.Load(); got > 2 {
		t.Errorf("fetches = %d, concurrent readers must share a refresh", got)
	}
}

func TestGetOneHitAvoidsDirectory(t *testing.T) {
	dir := &fakeDirectory{}
	dir.setContacts(contact.Contact{ID: "a", Name: "Ada"})
	c := newTestCache(dir, time.Minute)

	if _, err := c.GetAll(context.Background(), false); err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	got, err := c.GetOne(context.Background(), "a")
	if err != nil {
		t.Fatalf("GetOne: %v", err)
	}
	if got.Name != "Ada" {
		t.Errorf("name = %q", got.Name)
	}
	if dir.fetchOne.Load() != 0 {
		t.Errorf("snapshot hit must not fetch, got %d fetches", dir.fetchOne.Load())
	}
}

func TestGetOneMissFetchesSingleRecord(t *testing.T) {
	dir := &fakeDirectory{}
	dir.setContacts(contact.Contact{ID: "a"})
	c := newTestCache(dir, time.Minute)

	if _, err := c.GetOne(context.Background(), "a"); err != nil {
		t.Fatalf("GetOne: %v", err)
	}
	if dir.fetchOne.Load() != 1 {
		t.Errorf("single fetches = %d, want 1", dir.fetchOne.Load())
	}
	if dir.fetchAll.Load() != 0 {
		t.Error("a miss must not trigger a full refresh")
	}
	// The fetched record is now cached.
	if _, err := c.GetOne(context.Background(), "a"); err != nil {
		t.Fatalf("GetOne: %v", err)
	}
	if dir.fetchOne.Load() != 1 {
		t.Errorf("second read fetched again: %d", dir.fetchOne.Load())
	}
}

func TestGetOneUnknownID(t *testing.T) {
	dir := &fakeDirectory{}
	c := newTestCache(dir, time.Minute)
	if _, err := c.GetOne(context.Background(), "missing"); !errors.Is(err, contact.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	dir := &fakeDirectory{}
	dir.setContacts(contact.Contact{ID: "a", Name: "Ada"})
	c := newTestCache(dir, time.Minute)

	snap, err := c.GetAll(context.Background(), false)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	snap.Contacts[0].Name = "mutated"

	again, err := c.GetAll(context.Background(), false)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if again.Contacts[0].Name != "Ada" {
		t.Error("callers can reach into the cached slice")
	}
}
