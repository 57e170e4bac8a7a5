package cleanup

import (
	"log"
	"os"
	"path/filepath"
	"time"
)

// Scheduler sweeps aged files out of the assembler's scratch directory.
// Scratch space is finite; artifacts left behind by crashed pipeline runs
// would otherwise accumulate forever.
type Scheduler struct {
	dir      string
	interval time.Duration
	maxAge   time.Duration
	stop     chan struct{}
}

// NewScheduler creates a scheduler sweeping dir every interval, removing
// files older than maxAge. Non-positive values fall back to safe defaults:
// a zero interval would panic the ticker, and a zero maxAge would sweep
// away the inputs of in-flight assemblies.
func NewScheduler(dir string, interval, maxAge time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	return &Scheduler{
		dir:      dir,
		interval: interval,
		maxAge:   maxAge,
		stop:     make(chan struct{}),
	}
}

// Start runs an initial sweep, then sweeps on the interval until Stop.
func (s *Scheduler) Start() {
	s.sweep()

	ticker := time.NewTicker(s.interval)
	go func() {
		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-s.stop:
				ticker.Stop()
				return
			}
		}
	}()

	log.Printf("Cleanup: sweeping %s every %s (max age %s)", s.dir, s.interval, s.maxAge)
}

// Stop halts the scheduler.
func (s *Scheduler) Stop() {
	close(s.stop)
}

func (s *Scheduler) sweep() {
	cutoff := time.Now().Add(-s.maxAge)
	var removed int

	err := filepath.Walk(s.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err != nil {
				log.Printf("Cleanup: remove %s: %v", path, err)
			} else {
				removed++
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("Cleanup: sweep %s: %v", s.dir, err)
	}
	if removed > 0 {
		log.Printf("Cleanup: removed %d stale scratch files", removed)
	}
}
