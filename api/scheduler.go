/*
scheduler.go - Hybrid sync scheduler

PURPOSE:
  Drives the two recurring background jobs:
    - Fast poll: incremental sync every PollInterval (default 30m)
    - Local validation: store snapshot every ValidationInterval (6h)

DESIGN:
  - One goroutine, two tickers, stop channel + WaitGroup shutdown
  - Poll runs immediately on Start so a fresh deploy catches up at once
  - A mutex TryLock guards each job kind: a tick that fires while the
    previous run is still going is skipped, never queued. Manual API
    triggers share the same lock, so exactly one sync runs at a time.

USAGE:
  scheduler := NewHybridScheduler(engine)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - engine/engine.go: The jobs themselves
  - handlers.go: Manual trigger endpoints sharing the sync lock
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/h4srl/salesync/engine"
)

// SchedulerStatus is the snapshot reported by the status endpoint.
// The key names are the dashboard's contract; renaming one breaks it.
type SchedulerStatus struct {
	PollingEnabled     bool       `json:"pollingEnabled"`
	LastPoll           *time.Time `json:"lastPoll,omitempty"`
	NextPoll           *time.Time `json:"nextPoll,omitempty"`
	LastPollOK         bool       `json:"lastPollOk"`
	ValidationEnabled  bool       `json:"validationEnabled"`
	LastValidation     *time.Time `json:"lastValidation,omitempty"`
	NextValidation     *time.Time `json:"nextValidation,omitempty"`
	PollInterval       string     `json:"pollInterval"`
	ValidationInterval string     `json:"validationInterval"`
	SyncInProgress     bool       `json:"syncInProgress"`
}

// HybridScheduler runs the recurring poll and validation jobs.
type HybridScheduler struct {
	Engine             *engine.Engine
	PollInterval       time.Duration
	ValidationInterval time.Duration

	// syncMu serializes sync work across scheduled ticks and manual
	// API triggers. TryLock only: blocked work is dropped.
	syncMu       sync.Mutex
	validationMu sync.Mutex

	mu               sync.Mutex
	running          bool
	lastPollAt       *time.Time
	lastPollOK       bool
	nextPollAt       *time.Time
	lastValidationAt *time.Time
	nextValidationAt *time.Time

	pollTicker       *time.Ticker
	validationTicker *time.Ticker
	stop             chan struct{}
	wg               sync.WaitGroup
}

// NewHybridScheduler creates a scheduler with the default intervals.
func NewHybridScheduler(e *engine.Engine) *HybridScheduler {
	return &HybridScheduler{
		Engine:             e,
		PollInterval:       30 * time.Minute,
		ValidationInterval: 6 * time.Hour,
	}
}

// Start launches the background loop. Safe to call once.
func (s *HybridScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.pollTicker = time.NewTicker(s.PollInterval)
	s.validationTicker = time.NewTicker(s.ValidationInterval)
	nextValidation := time.Now().Add(s.ValidationInterval)
	s.nextValidationAt = &nextValidation
	s.wg.Add(1)

	go s.run()

	log.Printf("[Scheduler] Started: poll every %v, validation every %v",
		s.PollInterval, s.ValidationInterval)
}

// Stop halts the background loop and waits for an in-flight job.
func (s *HybridScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.pollTicker.Stop()
	s.validationTicker.Stop()
	close(s.stop)
	s.mu.Unlock()

	s.wg.Wait()
	log.Println("[Scheduler] Stopped")
}

// Status reports the scheduler state for the status endpoint.
func (s *HybridScheduler) Status() SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	inProgress := !s.syncMu.TryLock()
	if !inProgress {
		s.syncMu.Unlock()
	}

	return SchedulerStatus{
		PollingEnabled:     s.running,
		LastPoll:           s.lastPollAt,
		NextPoll:           s.nextPollAt,
		LastPollOK:         s.lastPollOK,
		ValidationEnabled:  s.running,
		LastValidation:     s.lastValidationAt,
		NextValidation:     s.nextValidationAt,
		PollInterval:       s.PollInterval.String(),
		ValidationInterval: s.ValidationInterval.String(),
		SyncInProgress:     inProgress,
	}
}

// TrySync runs fn under the shared sync lock. Returns false without
// running when another sync is already in progress.
func (s *HybridScheduler) TrySync(fn func()) bool {
	if !s.syncMu.TryLock() {
		return false
	}
	defer s.syncMu.Unlock()
	fn()
	return true
}

func (s *HybridScheduler) run() {
	defer s.wg.Done()

	// Catch up immediately instead of waiting a full interval.
	s.poll()

	for {
		select {
		case <-s.pollTicker.C:
			s.poll()
		case <-s.validationTicker.C:
			s.validate()
		case <-s.stop:
			return
		}
	}
}

func (s *HybridScheduler) poll() {
	ran := s.TrySync(func() {
		summary, err := s.Engine.PollAll(context.Background())
		now := time.Now()
		next := now.Add(s.PollInterval)

		s.mu.Lock()
		s.lastPollAt = &now
		s.nextPollAt = &next
		s.lastPollOK = err == nil && summary.SuccessCount == summary.TotalAccounts
		s.mu.Unlock()

		if err != nil {
			log.Printf("[Scheduler] ❌ Poll failed: %v", err)
		}
	})
	if !ran {
		log.Println("[Scheduler] Poll tick skipped, sync already in progress")
	}
}

func (s *HybridScheduler) validate() {
	if !s.validationMu.TryLock() {
		log.Println("[Scheduler] Validation tick skipped, already in progress")
		return
	}
	defer s.validationMu.Unlock()

	if _, err := s.Engine.LocalValidation(context.Background()); err != nil {
		log.Printf("[Scheduler] ❌ Validation failed: %v", err)
		return
	}
	now := time.Now()
	next := now.Add(s.ValidationInterval)
	s.mu.Lock()
	s.lastValidationAt = &now
	s.nextValidationAt = &next
	s.mu.Unlock()
}
