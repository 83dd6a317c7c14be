package update

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ben-moore/lokad-cloud/pkg/logging"
	"github.com/ben-moore/lokad-cloud/pkg/store"
	"github.com/ben-moore/lokad-cloud/pkg/task"
)

// VersionKey is the store key holding the fleet's current deployment
// version. Publishing a new build means writing a new value here.
const VersionKey = "deployment:version"

// DefaultCheckInterval bounds how often a non-forced check actually
// reads the store.
const DefaultCheckInterval = 60 * time.Second

// Detector is the update-detection collaborator. CheckForUpdate raises
// the restart signal when a new deployment has been published since
// the baseline was captured.
type Detector interface {
	// ResetStatus discards any cached detection state, forcing the next
	// check to re-read the persisted version.
	ResetStatus()

	// CheckForUpdate compares the persisted deployment version against
	// the baseline. forceImmediate bypasses the internal read cache.
	CheckForUpdate(ctx context.Context, forceImmediate bool) error
}

// StoreDetector detects updates by comparing a persisted version
// record against the version first observed by this process lifetime.
type StoreDetector struct {
	store         store.Store
	log           *logging.Logger
	checkInterval time.Duration

	mu          sync.Mutex
	baseline    string
	hasBaseline bool
	lastChecked time.Time
	now         func() time.Time
}

// NewStoreDetector creates a detector backed by the persisted store
func NewStoreDetector(st store.Store, log *logging.Logger) *StoreDetector {
	return &StoreDetector{
		store:         st,
		log:           log,
		checkInterval: DefaultCheckInterval,
		now:           time.Now,
	}
}

// ResetStatus discards the baseline and the read cache
func (d *StoreDetector) ResetStatus() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.baseline = ""
	d.hasBaseline = false
	d.lastChecked = time.Time{}
}

// CheckForUpdate reads the persisted deployment version and raises
// ErrRestartRequested when it differs from the baseline. The first
// read after a reset adopts the current version as the baseline: a
// fresh process is by definition running the current deployment.
func (d *StoreDetector) CheckForUpdate(ctx context.Context, forceImmediate bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if !forceImmediate && d.hasBaseline && now.Sub(d.lastChecked) < d.checkInterval {
		return nil
	}
	d.lastChecked = now

	version, found, err := d.store.Get(ctx, VersionKey)
	if err != nil {
		return fmt.Errorf("read deployment version: %w", err)
	}
	if !found {
		// No version record published yet; nothing to compare against.
		return nil
	}

	if !d.hasBaseline {
		d.baseline = version
		d.hasBaseline = true
		d.log.Debug("deployment version baseline captured", map[string]interface{}{
			"version": version,
		})
		return nil
	}

	if version != d.baseline {
		d.log.Debug("deployment update detected", map[string]interface{}{
			"running":   d.baseline,
			"published": version,
		})
		return fmt.Errorf("deployment version changed %s -> %s: %w", d.baseline, version, task.ErrRestartRequested)
	}
	return nil
}
