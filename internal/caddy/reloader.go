package caddy

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/aegis-proxy/aegis/internal/logger"
	"github.com/aegis-proxy/aegis/internal/metrics"
	"github.com/aegis-proxy/aegis/internal/models"
	"github.com/aegis-proxy/aegis/internal/snapshot"
)

// SnapshotSource loads the domain snapshot a compile cycle starts from.
type SnapshotSource interface {
	Load(ctx context.Context) (snapshot.Snapshot, error)
}

// Applier submits a serialized document to the engine.
type Applier interface {
	LoadRaw(ctx context.Context, raw []byte) error
}

// Notifier pushes operator-facing messages. Optional.
type Notifier interface {
	Send(title, message string)
}

// Reloader owns the compile-and-apply cycle. At most one apply is in flight
// at any time; triggers arriving during a cycle are coalesced onto one
// follow-up cycle that reads a fresh snapshot, so the engine always
// converges on the most recent domain state. An in-flight apply is never
// cancelled; only not-yet-started cycles are coalesced away.
type Reloader struct {
	source       SnapshotSource
	client       Applier
	db           *gorm.DB
	materializer *Materializer
	opts         AssembleOptions
	notifier     Notifier

	retries int
	backoff time.Duration

	snapshotDir   string
	keepSnapshots int

	mu            sync.Mutex
	running       bool
	pending       bool
	lastApplied   []byte
	lastAppliedAt time.Time
}

// NewReloader wires a reload coordinator. db and notifier may be nil.
func NewReloader(source SnapshotSource, client Applier, db *gorm.DB, materializer *Materializer, opts AssembleOptions, retries int, snapshotDir string) *Reloader {
	if retries < 0 {
		retries = 0
	}
	return &Reloader{
		source:        source,
		client:        client,
		db:            db,
		materializer:  materializer,
		opts:          opts,
		retries:       retries,
		backoff:       500 * time.Millisecond,
		snapshotDir:   snapshotDir,
		keepSnapshots: 10,
	}
}

// SetNotifier attaches an operator notifier for apply failures.
func (r *Reloader) SetNotifier(n Notifier) {
	r.notifier = n
}

// Trigger requests a compile-and-apply cycle. If one is already running the
// request is coalesced: the running cycle is followed by exactly one more,
// started from a fresh snapshot, and this call returns immediately.
func (r *Reloader) Trigger(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.pending = true
		r.mu.Unlock()
		metrics.IncCoalesced()
		return nil
	}
	r.running = true
	r.mu.Unlock()

	var err error
	for {
		err = r.runCycle(ctx)

		r.mu.Lock()
		if r.pending {
			r.pending = false
			r.mu.Unlock()
			continue
		}
		r.running = false
		r.mu.Unlock()
		return err
	}
}

// Apply delivers an already assembled document under the same single-flight
// lock as Trigger. It reports whether the document was applied.
func (r *Reloader) Apply(ctx context.Context, cfg *Config) (bool, error) {
	raw, err := MarshalCanonical(cfg)
	if err != nil {
		return false, NewValidationError("marshal config: %v", err)
	}

	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return false, fmt.Errorf("apply already in flight")
	}
	r.running = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		r.pending = false
		r.mu.Unlock()
	}()

	if err := r.applyDocument(ctx, raw); err != nil {
		return false, err
	}
	return true, nil
}

// LastApplied returns the most recently applied document and its apply
// time. Diagnostics only: compile cycles never read it back as input.
func (r *Reloader) LastApplied() ([]byte, time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastApplied == nil {
		return nil, time.Time{}
	}
	cp := make([]byte, len(r.lastApplied))
	copy(cp, r.lastApplied)
	return cp, r.lastAppliedAt
}

func (r *Reloader) runCycle(ctx context.Context) error {
	metrics.IncCompile()

	snap, err := r.source.Load(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	opts := r.opts
	if r.materializer != nil {
		paths, err := r.materializer.MaterializeAll(snap.Rulesets)
		if err != nil {
			return fmt.Errorf("materialize rulesets: %w", err)
		}
		opts.RulesetPaths = paths
	}

	cfg, warnings, err := Assemble(snap, opts)
	if err != nil {
		// The engine is never touched with a known-bad document.
		return fmt.Errorf("assemble config: %w", err)
	}
	for _, w := range warnings {
		logger.Log().Warn(w)
	}

	raw, err := MarshalCanonical(cfg)
	if err != nil {
		return err
	}

	return r.applyDocument(ctx, raw)
}

func (r *Reloader) applyDocument(ctx context.Context, raw []byte) error {
	hash := fmt.Sprintf("%x", sha256.Sum256(raw))

	err := r.applyWithRetry(ctx, raw)
	if err != nil {
		r.recordAttempt(hash, false, err.Error())
		metrics.IncApply("fail")
		r.rollback(ctx)
		if r.notifier != nil {
			r.notifier.Send("Configuration apply failed", err.Error())
		}
		return err
	}

	r.mu.Lock()
	r.lastApplied = raw
	r.lastAppliedAt = time.Now()
	r.mu.Unlock()

	r.recordAttempt(hash, true, "")
	metrics.IncApply("ok")

	if r.snapshotDir != "" {
		if err := r.saveSnapshot(raw); err != nil {
			logger.Log().WithError(err).Warn("snapshot save failed")
		}
	}

	return nil
}

// applyWithRetry retries transient failures with doubling backoff and fails
// immediately on structural rejections: resubmitting an invalid document
// cannot succeed.
func (r *Reloader) applyWithRetry(ctx context.Context, raw []byte) error {
	backoff := r.backoff
	var lastErr error

	for attempt := 0; attempt <= r.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		lastErr = r.client.LoadRaw(ctx, raw)
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return lastErr
		}
		logger.WithFields(map[string]interface{}{
			"attempt": attempt + 1,
			"error":   lastErr.Error(),
		}).Warn("transient engine error, will retry")
	}

	return lastErr
}

// rollback replays the previous applied document so the engine is left in a
// known state. Best effort: with nothing applied yet there is nothing to
// restore.
func (r *Reloader) rollback(ctx context.Context) {
	r.mu.Lock()
	prev := r.lastApplied
	r.mu.Unlock()

	if prev == nil {
		return
	}
	if err := r.client.LoadRaw(ctx, prev); err != nil {
		logger.Log().WithError(err).Error("rollback to previous configuration failed")
	}
}

func (r *Reloader) recordAttempt(hash string, success bool, errMsg string) {
	if r.db == nil {
		return
	}
	record := models.EngineConfigRecord{
		ConfigHash: hash,
		AppliedAt:  time.Now(),
		Success:    success,
		ErrorMsg:   errMsg,
	}
	// Best effort, audit only.
	r.db.Create(&record)
}

func (r *Reloader) saveSnapshot(raw []byte) error {
	if err := os.MkdirAll(r.snapshotDir, 0o755); err != nil {
		return err
	}
	name := fmt.Sprintf("config-%d.json", time.Now().UnixNano())
	if err := os.WriteFile(filepath.Join(r.snapshotDir, name), raw, 0o644); err != nil {
		return err
	}
	return r.rotateSnapshots()
}

func (r *Reloader) rotateSnapshots() error {
	entries, err := os.ReadDir(r.snapshotDir)
	if err != nil {
		return err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			names = append(names, e.Name())
		}
	}
	if len(names) <= r.keepSnapshots {
		return nil
	}
	sort.Strings(names)
	for _, name := range names[:len(names)-r.keepSnapshots] {
		if err := os.Remove(filepath.Join(r.snapshotDir, name)); err != nil {
			return err
		}
	}
	return nil
}
