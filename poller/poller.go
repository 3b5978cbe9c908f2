package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Nexora-Open-Source/catalog-bulk-backend/types"
	"github.com/sirupsen/logrus"
)

// DefaultInterval is the delay between the handling of one response and the next poll
const DefaultInterval = 2 * time.Second

var (
	// ErrStalled is returned when the server flags the job as no longer advancing
	ErrStalled = errors.New("bulk job stalled")
	// ErrJobFailed is returned when the job reached the failed state
	ErrJobFailed = errors.New("bulk job failed")
	// ErrCancelled is returned when polling was cancelled by the caller
	ErrCancelled = errors.New("polling cancelled")
	// ErrTimeout is returned when MaxDuration elapsed before a terminal state
	ErrTimeout = errors.New("polling timed out")
	// ErrTooManyErrors is returned after MaxConsecutiveErrors failed polls in a row
	ErrTooManyErrors = errors.New("too many consecutive poll errors")
	// ErrAlreadyStarted is returned when Run is called twice
	ErrAlreadyStarted = errors.New("poller already started")
)

// State is the client-side poll state
type State string

const (
	StateIdle         State = "idle"
	StateInitializing State = "initializing"
	StatePolling      State = "polling"
	StateCompleted    State = "completed"
	StateFailed       State = "failed"
	StateCancelled    State = "cancelled"
)

// IsTerminal reports whether the state admits no further transitions
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// ProgressSource fetches progress snapshots
type ProgressSource interface {
	Progress(ctx context.Context, key types.ProgressKey) (*types.ProgressSnapshot, error)
}

// Options tunes the poll loop
type Options struct {
	Interval time.Duration
	// MaxConsecutiveErrors stops polling after that many transport errors in a row;
	// 0 means 3
	MaxConsecutiveErrors int
	// MaxDuration caps the whole loop; 0 disables the cap
	MaxDuration time.Duration
}

// Poller follows one progress key. A Poller is single use.
type Poller struct {
	source   ProgressSource
	renderer Renderer
	opts     Options
	logger   *logrus.Logger

	mu        sync.Mutex
	state     State
	cancelled bool
	stop      context.CancelFunc
	polls     int
}

// New creates a poller in the idle state
func New(source ProgressSource, renderer Renderer, opts Options, logger *logrus.Logger) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MaxConsecutiveErrors <= 0 {
		opts.MaxConsecutiveErrors = 3
	}
	if renderer == nil {
		renderer = NopRenderer{}
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Poller{
		source:   source,
		renderer: renderer,
		opts:     opts,
		logger:   logger,
		state:    StateIdle,
	}
}

// State returns the current state
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Polls returns how many poll requests were issued
func (p *Poller) Polls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.polls
}

// transition moves to next unless the current state is terminal
func (p *Poller) transition(next State) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.IsTerminal() {
		return false
	}
	p.state = next
	return true
}

// Cancel stops polling. The server-side job is not affected and no request is sent.
func (p *Poller) Cancel() {
	p.mu.Lock()
	p.cancelled = true
	stop := p.stop
	idle := p.state == StateIdle
	if idle {
		p.state = StateCancelled
	}
	p.mu.Unlock()

	if stop != nil {
		stop()
	}
	if idle {
		p.renderer.Cancelled(nil)
	}
}

func (p *Poller) wasCancelled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelled
}

// Run polls key until a terminal state and returns the last snapshot seen.
// A completed job returns a nil error.
func (p *Poller) Run(ctx context.Context, key types.ProgressKey) (*types.ProgressSnapshot, error) {
	var cancel context.CancelFunc
	if p.opts.MaxDuration > 0 {
		ctx, cancel = context.WithTimeout(ctx, p.opts.MaxDuration)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	p.mu.Lock()
	switch {
	case p.state == StateCancelled:
		p.mu.Unlock()
		return nil, ErrCancelled
	case p.state != StateIdle:
		p.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	p.state = StateInitializing
	p.stop = cancel
	p.mu.Unlock()

	log := p.logger.WithField("progress_key", key)
	p.renderer.Initializing(key)

	timer := time.NewTimer(p.opts.Interval)
	defer timer.Stop()

	var (
		last        *types.ProgressSnapshot
		consecutive int
	)
	for {
		select {
		case <-ctx.Done():
			return last, p.interrupted(ctx, last)
		case <-timer.C:
		}

		p.mu.Lock()
		p.polls++
		p.mu.Unlock()

		snap, err := p.source.Progress(ctx, key)
		if err != nil {
			if ctx.Err() != nil {
				return last, p.interrupted(ctx, last)
			}
			if errors.Is(err, ErrNotFound) {
				return last, p.fail(last, err)
			}
			consecutive++
			log.WithFields(logrus.Fields{
				"attempt": consecutive,
				"error":   err.Error(),
			}).Warn("Progress poll failed")
			if consecutive >= p.opts.MaxConsecutiveErrors {
				return last, p.fail(last, fmt.Errorf("%w: %v", ErrTooManyErrors, err))
			}
			timer.Reset(p.opts.Interval)
			continue
		}
		consecutive = 0
		last = snap

		switch {
		case snap.Status == types.StatusCompleted:
			if p.transition(StateCompleted) {
				p.renderer.Done(*snap)
			}
			return snap, nil
		case snap.Status == types.StatusFailed:
			reason := snap.FailureReason
			if reason == "" {
				reason = "no reason given"
			}
			return snap, p.fail(snap, fmt.Errorf("%w: %s", ErrJobFailed, reason))
		case snap.Stale:
			return snap, p.fail(snap, fmt.Errorf("%w: no progress since %s", ErrStalled, snap.UpdatedAt.Format(time.RFC3339)))
		}

		if !p.transition(StatePolling) {
			return snap, ErrCancelled
		}
		p.renderer.Update(*snap)

		// re-armed only once the previous response has been handled
		timer.Reset(p.opts.Interval)
	}
}

func (p *Poller) fail(last *types.ProgressSnapshot, err error) error {
	if p.transition(StateFailed) {
		p.renderer.Failed(last, err)
	}
	return err
}

func (p *Poller) interrupted(ctx context.Context, last *types.ProgressSnapshot) error {
	if !p.wasCancelled() && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return p.fail(last, ErrTimeout)
	}
	if p.transition(StateCancelled) {
		p.renderer.Cancelled(last)
	}
	return ErrCancelled
}
