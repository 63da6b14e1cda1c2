package datasets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vinodismyname/kpidash/config"
	"github.com/vinodismyname/kpidash/internal/ingest"
	"github.com/vinodismyname/kpidash/internal/kpi"
)

// Handle is one loaded dataset owned by a session slot.
type Handle struct {
	ID          string
	Slot        string
	Name        string
	Sheet       string
	Fingerprint string
	Records     kpi.RecordSet
	LoadedAt    time.Time

	mu        sync.RWMutex
	expiresAt time.Time
}

// ExpiresAt returns the current idle deadline.
func (h *Handle) ExpiresAt() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.expiresAt
}

// Expired reports whether the handle has been idle past its TTL.
func (h *Handle) Expired(now time.Time) bool {
	return now.After(h.ExpiresAt())
}

func (h *Handle) touch(deadline time.Time) {
	h.mu.Lock()
	h.expiresAt = deadline
	h.mu.Unlock()
}

// Gate coordinates capacity for loaded datasets (backed by runtime.Controller).
type Gate interface {
	AcquireDataset(ctx context.Context) error
	ReleaseDataset()
}

// PathValidator abstracts filesystem path validation. Implementations return
// a canonical absolute path when allowed.
type PathValidator interface {
	ValidateOpenPath(path string) (string, error)
}

// ErrDatasetNotFound indicates an unknown, replaced or expired dataset ID.
var ErrDatasetNotFound = errors.New("datasets: dataset not found")

// ErrNoPathValidator indicates path loads were attempted without an allow-list.
var ErrNoPathValidator = errors.New("datasets: path loading is not configured")

// Manager keeps at most one dataset per slot (a client session). Loading new
// content into a slot replaces its dataset; loading identical bytes reuses
// the parsed records. A failed load leaves the slot empty.
type Manager struct {
	mu      sync.RWMutex
	handles map[string]*Handle
	slots   map[string]string

	ttl          time.Duration
	cleanupEvery time.Duration
	clock        func() time.Time
	gate         Gate
	validator    PathValidator
	ingestOpts   ingest.Options

	stopCh    chan struct{}
	stopOnce  sync.Once
	cleanupWG sync.WaitGroup
}

// Option customises a Manager.
type Option func(*Manager)

// WithGate bounds the number of loaded datasets.
func WithGate(g Gate) Option { return func(m *Manager) { m.gate = g } }

// WithPathValidator enables LoadFile for allow-listed paths.
func WithPathValidator(v PathValidator) Option { return func(m *Manager) { m.validator = v } }

// WithClock overrides time.Now, for tests.
func WithClock(clock func() time.Time) Option { return func(m *Manager) { m.clock = clock } }

// WithIngestOptions sets the limits applied to every load.
func WithIngestOptions(o ingest.Options) Option { return func(m *Manager) { m.ingestOpts = o } }

// NewManager constructs a Manager. ttl or cleanupEvery <= 0 use the config
// defaults.
func NewManager(ttl, cleanupEvery time.Duration, opts ...Option) *Manager {
	if ttl <= 0 {
		ttl = config.DefaultDatasetIdleTTL
	}
	if cleanupEvery <= 0 {
		cleanupEvery = config.DefaultDatasetCleanupPeriod
	}
	m := &Manager{
		handles:      make(map[string]*Handle),
		slots:        make(map[string]string),
		ttl:          ttl,
		cleanupEvery: cleanupEvery,
		clock:        time.Now,
		stopCh:       make(chan struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Fingerprint returns the content key used to detect re-uploads.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Load parses data into the slot's dataset. The format is taken from name's
// extension when recognised, otherwise sniffed. An empty sheet reads the
// first worksheet.
func (m *Manager) Load(ctx context.Context, slot, name, sheet string, data []byte) (*Handle, error) {
	logger := zerolog.Ctx(ctx)
	fp := Fingerprint(data)

	m.mu.Lock()
	if id, ok := m.slots[slot]; ok {
		if h := m.handles[id]; h != nil && h.Fingerprint == fp && h.Sheet == sheet {
			m.mu.Unlock()
			h.touch(m.clock().Add(m.ttl))
			logger.Debug().Str("dataset_id", h.ID).Str("slot", slot).Msg("dataset cache hit")
			return h, nil
		}
	}
	// The previous dataset is dropped before parsing so a failed load never
	// leaves stale records behind. Its capacity is carried over.
	prev := m.detachLocked(slot)
	m.mu.Unlock()

	if prev == nil {
		if err := m.acquire(ctx); err != nil {
			return nil, err
		}
	} else {
		logger.Debug().Str("dataset_id", prev.ID).Str("slot", slot).Msg("dataset replaced")
	}

	opts := m.ingestOpts
	if opts.Format == ingest.FormatAuto {
		opts.Format = ingest.FormatFromName(name)
	}
	opts.Sheet = sheet
	rs, err := ingest.Load(ctx, data, opts)
	if err != nil {
		m.release()
		return nil, err
	}

	now := m.clock()
	h := &Handle{
		ID:          uuid.NewString(),
		Slot:        slot,
		Name:        name,
		Sheet:       sheet,
		Fingerprint: fp,
		Records:     rs,
		LoadedAt:    now,
		expiresAt:   now.Add(m.ttl),
	}

	m.mu.Lock()
	if other := m.detachLocked(slot); other != nil {
		// A concurrent load in the same slot finished first.
		m.release()
	}
	m.slots[slot] = h.ID
	m.handles[h.ID] = h
	m.mu.Unlock()

	logger.Info().
		Str("dataset_id", h.ID).
		Str("slot", slot).
		Str("name", name).
		Int("records", rs.Len()).
		Msg("dataset loaded")
	return h, nil
}

// LoadFile validates path against the allow-list and loads its contents.
func (m *Manager) LoadFile(ctx context.Context, slot, path, sheet string) (*Handle, error) {
	if m.validator == nil {
		return nil, ErrNoPathValidator
	}
	canonical, err := m.validator.ValidateOpenPath(path)
	if err != nil {
		return nil, err
	}
	if limit := m.ingestOpts.MaxBytes; limit > 0 {
		info, err := os.Stat(canonical)
		if err != nil {
			return nil, fmt.Errorf("datasets: stat %q: %w", canonical, err)
		}
		if info.Size() > limit {
			return nil, fmt.Errorf("%w: %d bytes (max %d)", ingest.ErrFileTooLarge, info.Size(), limit)
		}
	}
	data, err := os.ReadFile(canonical)
	if err != nil {
		return nil, fmt.Errorf("datasets: read %q: %w", canonical, err)
	}
	return m.Load(ctx, slot, canonical, sheet, data)
}

// Get returns the dataset and refreshes its idle deadline.
func (m *Manager) Get(id string) (*Handle, bool) {
	m.mu.RLock()
	h, ok := m.handles[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	h.touch(m.clock().Add(m.ttl))
	return h, true
}

// Current returns the slot's dataset when present.
func (m *Manager) Current(slot string) (*Handle, bool) {
	m.mu.RLock()
	id, ok := m.slots[slot]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return m.Get(id)
}

// Remove discards a dataset by ID and releases its capacity.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	h, ok := m.handles[id]
	if ok {
		m.detachLocked(h.Slot)
	}
	m.mu.Unlock()
	if !ok {
		return ErrDatasetNotFound
	}
	m.release()
	return nil
}

// RemoveSlot discards whatever dataset the slot holds, e.g. when a session ends.
func (m *Manager) RemoveSlot(slot string) {
	m.mu.Lock()
	h := m.detachLocked(slot)
	m.mu.Unlock()
	if h != nil {
		m.release()
	}
}

// Start launches periodic eviction of idle datasets.
func (m *Manager) Start() {
	m.cleanupWG.Add(1)
	ticker := time.NewTicker(m.cleanupEvery)
	go func() {
		defer m.cleanupWG.Done()
		defer ticker.Stop()
		for {
			select {
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.EvictExpired()
			}
		}
	}()
}

// Close stops background eviction and drops every dataset.
func (m *Manager) Close(ctx context.Context) error {
	m.stopOnce.Do(func() { close(m.stopCh) })
	done := make(chan struct{})
	go func() { m.cleanupWG.Wait(); close(done) }()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	m.mu.Lock()
	n := len(m.handles)
	m.handles = make(map[string]*Handle)
	m.slots = make(map[string]string)
	m.mu.Unlock()
	for i := 0; i < n; i++ {
		m.release()
	}
	return nil
}

// EvictExpired drops datasets idle past their TTL and returns how many went.
func (m *Manager) EvictExpired() int {
	now := m.clock()

	m.mu.Lock()
	var evicted int
	for _, h := range m.handles {
		if h.Expired(now) {
			m.detachLocked(h.Slot)
			evicted++
		}
	}
	m.mu.Unlock()

	for i := 0; i < evicted; i++ {
		m.release()
	}
	return evicted
}

// Count returns the number of loaded datasets.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handles)
}

// detachLocked unlinks the slot's dataset without releasing capacity.
// Callers hold m.mu.
func (m *Manager) detachLocked(slot string) *Handle {
	id, ok := m.slots[slot]
	if !ok {
		return nil
	}
	h := m.handles[id]
	delete(m.slots, slot)
	delete(m.handles, id)
	return h
}

func (m *Manager) acquire(ctx context.Context) error {
	if m.gate == nil {
		return nil
	}
	return m.gate.AcquireDataset(ctx)
}

func (m *Manager) release() {
	if m.gate == nil {
		return
	}
	m.gate.ReleaseDataset()
}
