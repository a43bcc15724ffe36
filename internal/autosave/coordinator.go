package autosave

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"pagebuilder/internal/domain"
)

// DefaultDelay is the inactivity window before an autosave fires.
const DefaultDelay = 30 * time.Second

// Timer is a cancellable scheduled task.
type Timer interface {
	Stop() bool
}

// Scheduler starts Timers. The default uses time.AfterFunc; tests swap in a
// manual one.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

type clock struct{}

func (clock) AfterFunc(d time.Duration, fn func()) Timer { return time.AfterFunc(d, fn) }

// Source is the live document being autosaved.
type Source interface {
	Snapshot() (*domain.Document, uint64)
	MarkSaved(revision uint64)
}

// Options configures a Coordinator. Zero values fall back to defaults.
type Options struct {
	Delay     time.Duration
	Timeout   time.Duration
	Tokens    domain.TokenSource
	Scheduler Scheduler
	Metrics   *Metrics
	Logger    *zap.Logger
}

// Coordinator debounces document changes into Page Store saves. Every
// Notify restarts the timer; at most one save runs at a time. Failures are
// logged and retried on the next window, never returned to the editor.
type Coordinator struct {
	siteID string
	pageID string
	store  domain.PageStore
	source Source

	delay   time.Duration
	timeout time.Duration
	tokens  domain.TokenSource
	sched   Scheduler
	breaker *gobreaker.CircuitBreaker
	metrics *Metrics
	logger  *zap.Logger

	saveMu sync.Mutex

	mu         sync.Mutex
	timer      Timer
	generation uint64
	pending    bool
	stopped    bool
	lastSaved  uint64
}

// New creates a Coordinator for one page.
func New(siteID, pageID string, store domain.PageStore, source Source, opts Options) *Coordinator {
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.Scheduler == nil {
		opts.Scheduler = clock{}
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	logger := opts.Logger.With(zap.String("siteID", siteID), zap.String("pageID", pageID))
	c := &Coordinator{
		siteID:  siteID,
		pageID:  pageID,
		store:   store,
		source:  source,
		delay:   opts.Delay,
		timeout: opts.Timeout,
		tokens:  opts.Tokens,
		sched:   opts.Scheduler,
		metrics: opts.Metrics,
		logger:  logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "autosave:" + siteID + "/" + pageID,
		MaxRequests: 1,
		Interval:    5 * time.Minute,
		Timeout:     2 * opts.Delay,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("autosave breaker state changed",
				zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	return c
}

// Notify reports a document change and restarts the debounce window.
func (c *Coordinator) Notify() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.scheduleLocked()
}

// Flush saves immediately, even when nothing changed since the last save,
// after waiting for any in-flight autosave. Unlike the timer path, its error
// is returned. A timer that fired during the flush is rescheduled.
func (c *Coordinator) Flush(ctx context.Context) error {
	c.saveMu.Lock()
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.generation++
	c.mu.Unlock()
	err := c.save(ctx, true)
	c.saveMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.stopped && c.pending {
		c.pending = false
		c.scheduleLocked()
	}
	return err
}

// Stop cancels the pending timer. Later Notify calls are ignored.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// State reports the breaker state guarding Page Store saves.
func (c *Coordinator) State() gobreaker.State { return c.breaker.State() }

func (c *Coordinator) scheduleLocked() {
	if c.timer != nil {
		c.timer.Stop()
	}
	c.generation++
	gen := c.generation
	c.timer = c.sched.AfterFunc(c.delay, func() { c.fire(gen) })
}

func (c *Coordinator) fire(gen uint64) {
	c.mu.Lock()
	if c.stopped || gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	if !c.saveMu.TryLock() {
		c.pending = true
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	err := c.save(ctx, false)
	cancel()
	c.saveMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	if err != nil {
		c.logger.Warn("autosave failed; retrying next window", zap.Error(err))
		c.scheduleLocked()
		return
	}
	if c.pending {
		c.pending = false
		c.scheduleLocked()
	}
}

// save pushes the current snapshot. Unless forced, a snapshot no newer than
// the last saved one is skipped. The caller holds saveMu.
func (c *Coordinator) save(ctx context.Context, force bool) error {
	doc, rev := c.source.Snapshot()
	c.mu.Lock()
	last := c.lastSaved
	c.mu.Unlock()
	if !force && rev <= last {
		c.metrics.Skipped.Inc()
		return nil
	}

	op := "autosave"
	if force {
		op = "save"
	}
	if c.tokens != nil {
		tok, err := c.tokens.Token(ctx)
		if err != nil {
			c.metrics.Attempts.WithLabelValues("token_error").Inc()
			return &domain.PersistenceError{Op: op, SiteID: c.siteID, PageID: c.pageID, Err: fmt.Errorf("refresh token: %w", err)}
		}
		ctx = domain.WithAccessToken(ctx, tok)
	}

	start := time.Now()
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.store.Save(ctx, c.siteID, c.pageID, doc)
	})
	c.metrics.Duration.Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.Attempts.WithLabelValues("error").Inc()
		return &domain.PersistenceError{Op: op, SiteID: c.siteID, PageID: c.pageID, Err: err}
	}
	c.metrics.Attempts.WithLabelValues("ok").Inc()

	c.mu.Lock()
	if rev > c.lastSaved {
		c.lastSaved = rev
	}
	c.mu.Unlock()
	c.source.MarkSaved(rev)
	c.logger.Debug("autosaved", zap.Uint64("revision", rev))
	return nil
}
