// Package watch is the consumer-side status synchronization client. It
// reconciles two unreliable sources — the store's push notification
// channel and a recurring poll — into one eventually-settling view of a
// job: pending, ready, failed or error. Both sources feed a single
// goroutine-owned reducer guarded by one settled flag, so the terminal
// transition happens exactly once no matter which channel wins the
// race. All timers and subscriptions live in a per-job Session and are
// torn down together on convergence, Stop, or job switch.
package watch

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/vidinsight/api/internal/model"
	"github.com/vidinsight/api/internal/store"
)

// State of the synchronized view.
type State string

const (
	StatePending State = "pending"
	StateReady   State = "ready"
	StateFailed  State = "failed"
	StateError   State = "error"
)

// Snapshot is one emitted view. Fallback marks a substituted record
// adopted from another job (see Session.adoptLatest); it is never
// silently presented as the requested job's result.
type Snapshot struct {
	VideoID         string
	State           State
	Phase           int
	Analysis        *model.AnalysisRecord
	Fallback        bool
	FallbackVideoID string
	Reason          string
}

// Terminal reports whether this snapshot settled the session.
func (s Snapshot) Terminal() bool {
	return s.State == StateReady || s.State == StateFailed || s.State == StateError
}

// Store is the pull channel: direct lookups against the job record store.
type Store interface {
	GetJob(ctx context.Context, id string) (*model.VideoJob, error)
	GetAnalysis(ctx context.Context, videoID string) (*model.AnalysisRecord, error)
	GetLatestAnalysis(ctx context.Context) (*model.AnalysisRecord, error)
}

// Subscriber is the push channel: best-effort change notifications with
// no ordering guarantee relative to the poll.
type Subscriber interface {
	Subscribe(ctx context.Context, tables ...model.ChangeTable) (<-chan model.ChangeEvent, func())
}

// Options tunes the session timers.
type Options struct {
	// PollInterval is the recurring pull cadence.
	PollInterval time.Duration
	// InitialPollDelay schedules one early pull before the first
	// recurring tick to catch fast completions.
	InitialPollDelay time.Duration
	// ProgressInterval advances the coarse phase counter while pending.
	// Display-only; it never affects convergence.
	ProgressInterval time.Duration
	// Timeout is the wall-clock bound from subscription start to a
	// forced error("timeout") transition.
	Timeout time.Duration
	// MaxPhase caps the progress counter.
	MaxPhase int
	// FallbackAfterPolls is how many consecutive empty pulls must pass
	// before the latest-record fallback may activate.
	FallbackAfterPolls int
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = 3 * time.Second
	}
	if o.InitialPollDelay <= 0 {
		o.InitialPollDelay = 750 * time.Millisecond
	}
	if o.ProgressInterval <= 0 {
		o.ProgressInterval = 4 * time.Second
	}
	if o.Timeout <= 0 {
		o.Timeout = 2 * time.Minute
	}
	if o.MaxPhase <= 0 {
		o.MaxPhase = 5
	}
	if o.FallbackAfterPolls <= 0 {
		o.FallbackAfterPolls = 3
	}
	return o
}

// Watcher creates sessions. At most one session is live per watcher:
// watching a new job id stops the previous session first, so no timer
// or subscription referencing a stale id survives the switch.
type Watcher struct {
	store Store
	sub   Subscriber
	opts  Options

	mu      sync.Mutex
	current *Session
}

func New(st Store, sub Subscriber, opts Options) *Watcher {
	return &Watcher{
		store: st,
		sub:   sub,
		opts:  opts.withDefaults(),
	}
}

// Watch starts a session for the given job id, tearing down any
// previous session synchronously. Local state never carries over
// between jobs.
func (w *Watcher) Watch(videoID string) *Session {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.current != nil {
		w.current.Stop()
	}

	s := &Session{
		videoID: videoID,
		store:   w.store,
		sub:     w.sub,
		opts:    w.opts,
		updates: make(chan Snapshot, 16),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	w.current = s
	go s.run()
	return s
}

// Session owns all suspension sources for one job id: the poll ticker,
// the progress ticker, the one-shot early poll and timeout timers, and
// the push subscription. Reaching any terminal state or calling Stop
// cancels all of them together.
type Session struct {
	videoID string
	store   Store
	sub     Subscriber
	opts    Options

	updates  chan Snapshot
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	// Owned by the run goroutine.
	phase      int
	emptyPolls int
	settled    bool
}

// Updates delivers snapshots until the session settles or stops; the
// channel is closed on teardown and no snapshot follows a terminal one.
func (s *Session) Updates() <-chan Snapshot {
	return s.updates
}

func (s *Session) VideoID() string {
	return s.videoID
}

// Stop tears the session down and waits until every timer and the
// subscription are cancelled.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	<-s.done
}

func (s *Session) run() {
	defer close(s.done)
	defer close(s.updates)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, unsub := s.sub.Subscribe(ctx, model.TableAnalyses, model.TableVideoJobs)
	defer unsub()

	poll := time.NewTicker(s.opts.PollInterval)
	defer poll.Stop()
	progress := time.NewTicker(s.opts.ProgressInterval)
	defer progress.Stop()
	timeout := time.NewTimer(s.opts.Timeout)
	defer timeout.Stop()
	early := time.NewTimer(s.opts.InitialPollDelay)
	defer early.Stop()

	s.emitPending()

	// Immediate first pull — the record may already exist.
	if s.poll(ctx) {
		return
	}

	for {
		select {
		case <-s.stop:
			return

		case <-timeout.C:
			s.emitTerminal(Snapshot{VideoID: s.videoID, State: StateError, Reason: "timeout"})
			return

		case <-early.C:
			if s.poll(ctx) {
				return
			}

		case <-poll.C:
			if s.poll(ctx) {
				return
			}

		case <-progress.C:
			if s.phase < s.opts.MaxPhase {
				s.phase++
			}
			s.emitPending()

		case ev, ok := <-events:
			if !ok {
				// Subscription died; the pull channel keeps working.
				events = nil
				continue
			}
			if s.handleEvent(ctx, ev) {
				return
			}
		}
	}
}

// poll runs one pull cycle and reports whether the session settled.
func (s *Session) poll(ctx context.Context) bool {
	rec, err := s.store.GetAnalysis(ctx, s.videoID)
	if err == nil {
		s.emitTerminal(Snapshot{VideoID: s.videoID, State: StateReady, Analysis: rec})
		return true
	}
	if !errors.Is(err, store.ErrAnalysisNotFound) {
		if store.IsSchemaDrift(err) {
			// Soft: the next poll after a schema fix can succeed.
			log.Printf("[Watch] schema drift polling analysis for %s: %v", s.videoID, err)
			return false
		}
		s.emitTerminal(Snapshot{VideoID: s.videoID, State: StateError, Reason: err.Error()})
		return true
	}

	// No record yet; the job status decides between pending and failed.
	job, err := s.store.GetJob(ctx, s.videoID)
	switch {
	case err == nil:
		if job.Status == model.StatusFailed {
			s.emitTerminal(Snapshot{VideoID: s.videoID, State: StateFailed, Reason: failureReason(job.ErrorMessage)})
			return true
		}
	case errors.Is(err, store.ErrJobNotFound):
		// Row not visible yet; keep waiting.
	case store.IsSchemaDrift(err):
		log.Printf("[Watch] schema drift polling job %s: %v", s.videoID, err)
		return false
	default:
		s.emitTerminal(Snapshot{VideoID: s.videoID, State: StateError, Reason: err.Error()})
		return true
	}

	s.emptyPolls++
	if s.emptyPolls >= s.opts.FallbackAfterPolls {
		return s.adoptLatest(ctx)
	}
	return false
}

// adoptLatest is the guarded last resort for single-job-at-a-time
// usage: when the requested record never appears but some analysis
// exists, display the newest one, visibly tagged as a substitution.
// Under concurrent multi-job use this misattributes results — a
// documented limitation, which is why the snapshot carries the owning
// job id.
func (s *Session) adoptLatest(ctx context.Context) bool {
	latest, err := s.store.GetLatestAnalysis(ctx)
	if err != nil || latest == nil {
		return false
	}

	snap := Snapshot{VideoID: s.videoID, State: StateReady, Analysis: latest}
	if latest.VideoID != s.videoID {
		snap.Fallback = true
		snap.FallbackVideoID = latest.VideoID
		log.Printf("[Watch] adopting latest analysis %s as fallback for %s", latest.VideoID, s.videoID)
	}
	s.emitTerminal(snap)
	return true
}

// handleEvent processes one push delivery and reports whether the
// session settled. Events for other jobs are ignored.
func (s *Session) handleEvent(ctx context.Context, ev model.ChangeEvent) bool {
	if ev.VideoID != s.videoID {
		return false
	}

	switch ev.Table {
	case model.TableAnalyses:
		rec, err := s.store.GetAnalysis(ctx, ev.VideoID)
		if err != nil {
			// The row may not be visible yet; the poll loop catches up.
			log.Printf("[Watch] analysis event for %s but fetch failed: %v", ev.VideoID, err)
			return false
		}
		s.emitTerminal(Snapshot{VideoID: s.videoID, State: StateReady, Analysis: rec})
		return true

	case model.TableVideoJobs:
		if ev.Status == model.StatusFailed {
			s.emitTerminal(Snapshot{VideoID: s.videoID, State: StateFailed, Reason: failureReason(&ev.ErrorMessage)})
			return true
		}
	}
	return false
}

// emitPending sends a progress snapshot without blocking; a slow
// consumer just misses intermediate phases.
func (s *Session) emitPending() {
	select {
	case s.updates <- Snapshot{VideoID: s.videoID, State: StatePending, Phase: s.phase}:
	default:
	}
}

// emitTerminal delivers the one terminal snapshot. First arrival wins;
// later deliveries for the same job are dropped here.
func (s *Session) emitTerminal(snap Snapshot) {
	if s.settled {
		return
	}
	s.settled = true
	snap.Phase = s.phase
	select {
	case s.updates <- snap:
	case <-s.stop:
	}
}

func failureReason(msg *string) string {
	if msg != nil && *msg != "" {
		return *msg
	}
	return "analysis failed"
}
