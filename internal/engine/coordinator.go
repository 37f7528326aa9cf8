package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eng540/Falsniper/internal/breaker"
	"github.com/eng540/Falsniper/internal/browser"
	"github.com/eng540/Falsniper/internal/captcha"
	"github.com/eng540/Falsniper/internal/clock"
	"github.com/eng540/Falsniper/internal/config"
	"github.com/eng540/Falsniper/internal/evidence"
	"github.com/eng540/Falsniper/internal/journal"
	"github.com/eng540/Falsniper/internal/logging"
	"github.com/eng540/Falsniper/internal/notifications"
	"github.com/eng540/Falsniper/internal/profile"
	"github.com/eng540/Falsniper/internal/schedule"
	"github.com/eng540/Falsniper/internal/session"
)

var _ Pager = (*browser.Driver)(nil)

const statsFlushInterval = 30 * time.Second

// Coordinator owns the hunting pack: one scout, the attackers, the shared
// target board, aggregate stats, and the run-wide stop signal. All shared
// mutable state lives here behind its own locks; workers touch it only
// through accessor methods.
type Coordinator struct {
	cfg      *config.Config
	prof     *profile.Profile
	logger   *slog.Logger
	notifier notifications.Service
	journal  *journal.Store
	evidence *evidence.Recorder
	solver   captcha.Solver
	prompter captcha.Prompter
	clk      clock.Clock
	brk      *breaker.Breaker
	sched    *schedule.Schedule
	board    *Board
	stats    *Stats
	newPager PagerFactory

	mu        sync.Mutex
	runID     string
	startedAt time.Time
	cancelRun context.CancelFunc
	booked    *BookedResult

	bookedOnce sync.Once
	wg         sync.WaitGroup
}

// BookedResult identifies the winning claim.
type BookedResult struct {
	Worker  string
	PageURL string
	At      time.Time
}

// RunResult summarizes one engine invocation.
type RunResult struct {
	RunID    string
	Outcome  string
	Booked   *BookedResult
	Stats    Snapshot
	Duration time.Duration
}

// Option overrides a collaborator, mostly for tests.
type Option func(*Coordinator)

// WithPagerFactory substitutes the page driver builder.
func WithPagerFactory(factory PagerFactory) Option {
	return func(c *Coordinator) { c.newPager = factory }
}

// WithNotifier substitutes the notification service.
func WithNotifier(service notifications.Service) Option {
	return func(c *Coordinator) { c.notifier = service }
}

// WithClock substitutes the time source.
func WithClock(clk clock.Clock) Option {
	return func(c *Coordinator) { c.clk = clk }
}

// WithSolver substitutes the captcha solver.
func WithSolver(solver captcha.Solver) Option {
	return func(c *Coordinator) { c.solver = solver }
}

// WithPrompter substitutes the manual captcha fallback.
func WithPrompter(prompter captcha.Prompter) Option {
	return func(c *Coordinator) { c.prompter = prompter }
}

// WithEvidence substitutes the evidence recorder.
func WithEvidence(recorder *evidence.Recorder) Option {
	return func(c *Coordinator) { c.evidence = recorder }
}

// New assembles a coordinator from configuration. Collaborators not
// overridden by options are built the production way: chromedp drivers,
// the HTTP solver when an endpoint is configured, Telegram for both
// notifications and the manual captcha relay.
func New(cfg *config.Config, prof *profile.Profile, store *journal.Store, logger *slog.Logger, opts ...Option) (*Coordinator, error) {
	sched, err := schedule.New(cfg.Timing)
	if err != nil {
		return nil, err
	}

	c := &Coordinator{
		cfg:     cfg,
		prof:    prof,
		journal: store,
		logger:  logging.NewComponentLogger(logger, "engine"),
		sched:   sched,
		stats:   NewStats(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.clk == nil {
		c.clk = clock.System()
	}
	if c.notifier == nil {
		c.notifier = notifications.NewService(cfg)
	}
	if c.brk == nil {
		c.brk = breaker.New(breaker.Settings{
			MaxFailures:  cfg.Breaker.MaxFailures,
			ResetTimeout: cfg.BreakerResetTimeout(),
			BaseDelay:    cfg.BreakerBaseDelay(),
			MaxDelay:     cfg.BreakerMaxDelay(),
		}, c.clk, logger)
	}
	if c.board == nil {
		c.board = NewBoard(cfg.TargetTTL(), c.clk)
	}
	if c.solver == nil && cfg.Solver.Endpoint != "" {
		c.solver = captcha.NewHTTPSolver(cfg.Solver.Endpoint,
			captcha.WithHTTPClient(&http.Client{Timeout: cfg.SolverTimeout()}))
	}
	if c.prompter == nil && cfg.Solver.ManualFallback {
		if relay := notifications.NewTelegram(cfg); relay != nil {
			c.prompter = relay
		}
	}
	if c.evidence == nil {
		recorder, err := evidence.NewRecorder(cfg, c.clk, logger)
		if err != nil {
			return nil, err
		}
		c.evidence = recorder
	}
	if c.newPager == nil {
		c.newPager = c.browserFactory()
	}
	return c, nil
}

func (c *Coordinator) browserFactory() PagerFactory {
	return func(ctx context.Context, index int) (Pager, error) {
		driver, err := browser.New(ctx, browser.Options{
			Headless:          c.cfg.Browser.Headless,
			UserAgent:         c.cfg.Browser.UserAgent,
			Width:             c.cfg.Browser.Width,
			Height:            c.cfg.Browser.Height,
			Proxy:             c.cfg.WorkerProxy(index),
			NavigationTimeout: c.cfg.NavigationTimeout(),
		}, c.logger)
		if err != nil {
			return nil, err
		}
		return driver, nil
	}
}

// Run executes one hunt: spawn the pack, wait for the first success or for
// every worker to retire, close out the journal. A Coordinator runs once.
func (c *Coordinator) Run(ctx context.Context) (*RunResult, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if c.runID != "" {
		c.mu.Unlock()
		return nil, errors.New("engine: coordinator already ran")
	}
	c.runID = uuid.NewString()[:8]
	c.startedAt = c.clk.Now()
	c.cancelRun = cancel
	c.mu.Unlock()

	logger := c.logger.With(logging.String(logging.FieldRunID, c.runID))
	workers := 1 + c.cfg.Workers.Attackers
	mode := c.sched.ModeAt(c.clk.Now())

	if c.journal != nil {
		if _, err := c.journal.StartRun(runCtx, c.runID, workers); err != nil {
			return nil, fmt.Errorf("start journal run: %w", err)
		}
	}
	logger.Info("hunt started",
		logging.Int("workers", workers),
		logging.String(logging.FieldMode, string(mode)),
		logging.String("target", c.cfg.Target.URL),
	)
	if err := c.notifier.NotifyStartup(runCtx, workers, string(mode)); err != nil {
		logger.Debug("startup notification failed", logging.Error(err))
	}
	if c.evidence != nil {
		if removed, err := c.evidence.Prune(); err != nil {
			logger.Debug("evidence prune failed", logging.Error(err))
		} else if removed > 0 {
			logger.Info("stale evidence pruned", logging.Int("removed", removed))
		}
	}

	for i := 0; i < workers; i++ {
		w := c.newWorker(i)
		c.wg.Add(1)
		go c.runWorker(runCtx, w)
	}

	flushDone := make(chan struct{})
	go c.flushLoop(runCtx, flushDone)

	c.wg.Wait()
	cancel()
	<-flushDone

	return c.finishRun(ctx, logger)
}

func (c *Coordinator) finishRun(ctx context.Context, logger *slog.Logger) (*RunResult, error) {
	// Workers are gone; close out on a context that survives the stop
	// signal so the journal and the goodbye message still land.
	endCtx, endCancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer endCancel()

	snap := c.stats.Snapshot()
	c.mu.Lock()
	booked := c.booked
	runID := c.runID
	startedAt := c.startedAt
	c.mu.Unlock()

	outcome := journal.OutcomeExhausted
	switch {
	case booked != nil:
		outcome = journal.OutcomeBooked
	case ctx.Err() != nil:
		outcome = journal.OutcomeAborted
	}

	if c.journal != nil {
		if err := c.journal.UpdateRunStats(endCtx, runID, snap.Scans, snap.TargetsFound, snap.Claims, snap.SubmitAttempts); err != nil {
			logger.Debug("final stats flush failed", logging.Error(err))
		}
		bookedBy, bookedURL := "", ""
		if booked != nil {
			bookedBy, bookedURL = booked.Worker, booked.PageURL
		}
		if err := c.journal.FinishRun(endCtx, runID, outcome, bookedBy, bookedURL); err != nil {
			logger.Warn("journal run close failed", logging.Error(err))
		}
	}

	if c.evidence != nil {
		if _, err := c.evidence.SaveStats(runID, snap); err != nil {
			logger.Debug("stats snapshot failed", logging.Error(err))
		}
	}

	uptime := c.clk.Now().Sub(startedAt)
	if err := c.notifier.NotifyShutdown(endCtx, uptime, snap.Scans, snap.Claims); err != nil {
		logger.Debug("shutdown notification failed", logging.Error(err))
	}
	logger.Info("hunt finished",
		logging.String(logging.FieldOutcome, outcome),
		logging.Duration("uptime", uptime),
		logging.Int("cycles", snap.Cycles),
		logging.Int("scans", snap.Scans),
		logging.Int("claims", snap.Claims),
		logging.Int("rebirths", snap.Rebirths),
	)

	return &RunResult{
		RunID:    runID,
		Outcome:  outcome,
		Booked:   booked,
		Stats:    snap,
		Duration: uptime,
	}, nil
}

func (c *Coordinator) newWorker(index int) *worker {
	role, id := RoleAttacker, fmt.Sprintf("attacker-%d", index)
	if index == 0 {
		role, id = RoleScout, "scout"
	}
	return &worker{
		id:     id,
		index:  index,
		role:   role,
		logger: c.logger.With(logging.String(logging.FieldWorker, id)),
	}
}

// announceBooked records the winning claim exactly once and stops the pack.
// Evidence and notifications run on a detached context so the stop signal
// cannot truncate them.
func (c *Coordinator) announceBooked(ctx context.Context, w *worker) {
	c.bookedOnce.Do(func() {
		pageURL, _ := w.pager.Location(ctx)
		now := c.clk.Now()
		c.mu.Lock()
		c.booked = &BookedResult{Worker: w.id, PageURL: pageURL, At: now}
		cancel := c.cancelRun
		c.mu.Unlock()

		if cancel != nil {
			cancel()
		}

		announceCtx, done := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer done()

		w.logger.Info("appointment booked",
			logging.String("page_url", pageURL),
			logging.Alert("booked"),
		)
		c.journalEvent(announceCtx, w.id, journal.KindBooked, pageURL)

		shot, err := w.pager.Screenshot(announceCtx)
		if err != nil {
			w.logger.Warn("booking screenshot failed", logging.Error(err))
		}
		if c.evidence != nil && len(shot) > 0 {
			html, _ := w.pager.PageHTML(announceCtx)
			if path, perr := c.evidence.CaptureBooking(w.id, shot, html); perr != nil {
				w.logger.Warn("booking evidence capture failed", logging.Error(perr))
			} else {
				w.logger.Info("booking evidence saved", logging.String("path", path))
			}
		}
		if nerr := c.notifier.NotifyBooked(announceCtx, w.id, pageURL, shot); nerr != nil {
			w.logger.Warn("booking notification failed", logging.Error(nerr))
		}
	})
}

// flushLoop persists run stats on an interval and watches for the attack
// window opening.
func (c *Coordinator) flushLoop(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(statsFlushInterval)
	defer ticker.Stop()

	lastMode := c.sched.ModeAt(c.clk.Now())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if c.journal != nil {
			snap := c.stats.Snapshot()
			if err := c.journal.UpdateRunStats(ctx, c.runID, snap.Scans, snap.TargetsFound, snap.Claims, snap.SubmitAttempts); err != nil && !errors.Is(err, context.Canceled) {
				c.logger.Debug("stats flush failed", logging.Error(err))
			}
		}

		mode := c.sched.ModeAt(c.clk.Now())
		if mode == schedule.ModeAttack && lastMode != schedule.ModeAttack {
			c.logger.Info("attack window open", logging.Alert("window_open"))
			if err := c.notifier.NotifyWindowOpen(ctx, c.clk.Now()); err != nil {
				c.logger.Debug("window notification failed", logging.Error(err))
			}
		}
		lastMode = mode
	}
}

// Booked returns the winning claim, if any.
func (c *Coordinator) Booked() *BookedResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.booked
}

// StatsSnapshot returns the current run counters.
func (c *Coordinator) StatsSnapshot() Snapshot {
	return c.stats.Snapshot()
}

func (c *Coordinator) sessionLimits() session.Limits {
	return session.Limits{
		MaxAge:             c.cfg.SessionMaxAge(),
		MaxIdle:            c.cfg.SessionMaxIdle(),
		MaxCaptchaAttempts: c.cfg.Session.MaxCaptchaAttempts,
		MaxFailures:        c.cfg.Session.MaxFailures,
	}
}

func (c *Coordinator) gateSettings() captcha.Settings {
	return captcha.Settings{}
}

func (c *Coordinator) journalEvent(ctx context.Context, worker, kind, detail string) {
	if c.journal == nil {
		return
	}
	c.mu.Lock()
	runID := c.runID
	c.mu.Unlock()
	if runID == "" {
		return
	}
	if err := c.journal.RecordEvent(ctx, runID, worker, kind, detail); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Debug("journal event failed",
			logging.String("kind", kind),
			logging.Error(err),
		)
	}
}

func (c *Coordinator) notifyError(ctx context.Context, err error, label string) {
	if nerr := c.notifier.NotifyError(ctx, err, label); nerr != nil {
		c.logger.Debug("error notification failed", logging.Error(nerr))
	}
}
