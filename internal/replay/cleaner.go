package replay

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"whiteshoe/server/internal/logging"
)

// RetentionPolicy bounds how many run directories stay on disk.
type RetentionPolicy struct {
	MaxRuns int
	MaxAge  time.Duration
}

// StorageStats summarises the disk footprint of retained runs.
type StorageStats struct {
	Runs      int
	Bytes     int64
	LastSweep time.Time
}

// Cleaner periodically prunes run directories according to a policy.
type Cleaner struct {
	mu     sync.RWMutex
	dir    string
	policy RetentionPolicy
	log    *logging.Logger
	now    func() time.Time
	stats  StorageStats
	skip   string
}

// NewCleaner constructs a cleaner for the events directory.
func NewCleaner(dir string, policy RetentionPolicy, logger *logging.Logger) *Cleaner {
	if logger == nil {
		logger = logging.L()
	}
	return &Cleaner{dir: dir, policy: policy, log: logger, now: time.Now}
}

// Protect exempts the run being written from pruning.
func (c *Cleaner) Protect(runDir string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.skip = filepath.Base(runDir)
	c.mu.Unlock()
}

// Run sweeps immediately and then on every interval until ctx is done.
func (c *Cleaner) Run(ctx context.Context, interval time.Duration) {
	if c == nil {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	c.sweep()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// RunOnce performs a single sweep.
func (c *Cleaner) RunOnce() {
	if c == nil {
		return
	}
	c.sweep()
}

// Stats returns the figures of the last sweep.
func (c *Cleaner) Stats() StorageStats {
	if c == nil {
		return StorageStats{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

type runDir struct {
	name    string
	path    string
	size    int64
	modTime time.Time
}

func (c *Cleaner) sweep() {
	if strings.TrimSpace(c.dir) == "" {
		return
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		c.log.Warn("run retention scan failed", logging.Error(err), logging.String("directory", c.dir))
		return
	}
	c.mu.RLock()
	skip := c.skip
	c.mu.RUnlock()

	//1.- Only directories holding a manifest count as runs.
	runs := make([]runDir, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(c.dir, entry.Name())
		info, err := os.Stat(filepath.Join(path, manifestFile))
		if err != nil {
			continue
		}
		size, err := directorySize(path)
		if err != nil {
			c.log.Warn("run retention size failed", logging.Error(err), logging.String("path", path))
			continue
		}
		runs = append(runs, runDir{name: entry.Name(), path: path, size: size, modTime: info.ModTime()})
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].modTime.After(runs[j].modTime) })

	//2.- Walk newest first so the count limit keeps the recent runs.
	now := c.now()
	stats := StorageStats{LastSweep: now}
	for _, run := range runs {
		if run.name != skip {
			if reason := c.removalReason(run, now, stats.Runs); reason != "" {
				err := os.RemoveAll(run.path)
				if err == nil {
					c.log.Info("run retention removed run", logging.String("run", run.name), logging.String("reason", reason))
					continue
				}
				c.log.Warn("run retention removal failed", logging.Error(err), logging.String("run", run.name))
			}
		}
		stats.Runs++
		stats.Bytes += run.size
	}
	c.mu.Lock()
	c.stats = stats
	c.mu.Unlock()
}

func (c *Cleaner) removalReason(run runDir, now time.Time, kept int) string {
	reasons := make([]string, 0, 2)
	if c.policy.MaxAge > 0 && now.Sub(run.modTime) > c.policy.MaxAge {
		reasons = append(reasons, fmt.Sprintf("age>%s", c.policy.MaxAge))
	}
	if c.policy.MaxRuns > 0 && kept >= c.policy.MaxRuns {
		reasons = append(reasons, fmt.Sprintf(">=%d runs", c.policy.MaxRuns))
	}
	return strings.Join(reasons, ", ")
}

func directorySize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}
