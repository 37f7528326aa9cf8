package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"time"

	"github.com/eng540/Falsniper/internal/breaker"
	"github.com/eng540/Falsniper/internal/captcha"
	"github.com/eng540/Falsniper/internal/journal"
	"github.com/eng540/Falsniper/internal/logging"
	"github.com/eng540/Falsniper/internal/profile"
	"github.com/eng540/Falsniper/internal/services"
	"github.com/eng540/Falsniper/internal/session"
)

// Role fixes what a worker is allowed to do for the life of the run.
type Role int

const (
	// RoleScout discovers targets and publishes them; it never claims.
	RoleScout Role = iota
	// RoleAttacker claims and commits on discovered targets.
	RoleAttacker
)

func (r Role) String() string {
	if r == RoleScout {
		return "scout"
	}
	return "attacker"
}

// errCircuitPaused aborts a cycle while the breaker holds navigation closed.
var errCircuitPaused = errors.New("engine: circuit open")

// errTargetGone abandons a claim whose day or slot evaporated.
var errTargetGone = errors.New("engine: target gone")

// worker is one member of the hunting pack. It owns its page driver,
// session, captcha gate, and state machine exclusively; everything shared
// lives on the Coordinator.
type worker struct {
	id    string
	index int
	role  Role

	pager   Pager
	sess    *session.Session
	gate    *captcha.Gate
	machine *Machine
	logger  *slog.Logger

	cycles int
}

const pagerBuildAttempts = 3

func (c *Coordinator) runWorker(ctx context.Context, w *worker) {
	defer c.wg.Done()
	defer func() {
		if w.pager != nil {
			w.pager.Close()
		}
	}()

	ctx = services.WithWorker(ctx, w.id)
	ctx = services.WithRole(ctx, w.role.String())
	ctx = services.WithRunID(ctx, c.runID)

	if err := c.openPager(ctx, w); err != nil {
		if !errors.Is(err, context.Canceled) {
			w.logger.Error("page driver unavailable, worker giving up", logging.Error(err))
			c.notifyError(ctx, err, w.id+" startup")
		}
		return
	}

	w.sess = session.New(c.sessionLimits(), c.clk)
	w.gate = captcha.NewGate(c.solver, c.prompter, c.prof, c.gateSettings(), w.logger)
	w.machine = NewMachine()
	w.logger.Info("worker started",
		logging.String(logging.FieldRole, w.role.String()),
		logging.String("session", w.sess.ID()),
	)

	for {
		if ctx.Err() != nil {
			return
		}
		if max := c.cfg.Workers.MaxCycles; max > 0 && w.cycles >= max {
			w.logger.Info("cycle budget spent, worker retiring", logging.Int("cycles", w.cycles))
			c.journalEvent(ctx, w.id, journal.KindWorkerExit, fmt.Sprintf("cycle budget %d spent", max))
			return
		}

		if reason, reborn := w.sess.NeedsRebirth(); reborn {
			if err := c.rebirth(ctx, w, reason); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				w.logger.Error("rebirth failed, worker giving up", logging.Error(err))
				c.notifyError(ctx, err, w.id+" rebirth")
				return
			}
			continue
		}

		w.cycles++
		c.stats.RecordCycle()

		err := c.workerCycle(ctx, w)
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled):
			return
		case errors.Is(err, errCircuitPaused):
			delay := c.brk.Delay()
			w.logger.Debug("circuit holding navigation", logging.Duration("delay", delay))
			if sleepCtx(ctx, delay) != nil {
				return
			}
			continue
		default:
			w.logger.Warn("cycle failed", logging.Error(err))
		}

		if w.machine.State() == StateSuccess {
			return
		}

		mode := c.sched.ModeAt(c.clk.Now())
		if sleepCtx(ctx, c.sched.SleepFor(mode)) != nil {
			return
		}
	}
}

// workerCycle runs one hunt cycle with panic containment: a panicking cycle
// is logged, the session condemned, and the worker carries on through a
// rebirth instead of taking the whole run down.
func (c *Coordinator) workerCycle(ctx context.Context, w *worker) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panic: %v", r)
			w.logger.Error("cycle panicked, forcing session rebirth", logging.Any("panic", r))
			c.journalEvent(ctx, w.id, journal.KindPanic, fmt.Sprint(r))
			w.machine.Fail()
			w.sess.Condemn("cycle panic")
		}
	}()

	switch w.machine.State() {
	case StateInit, StateFailed:
		if err := w.machine.To(StateDiscover); err != nil {
			return err
		}
	}

	if w.role == RoleScout {
		return c.scoutCycle(ctx, w)
	}
	return c.attackerCycle(ctx, w)
}

func (c *Coordinator) openPager(ctx context.Context, w *worker) error {
	var lastErr error
	for attempt := 1; attempt <= pagerBuildAttempts; attempt++ {
		pager, err := c.newPager(ctx, w.index)
		if err == nil {
			w.pager = pager
			return nil
		}
		lastErr = err
		w.logger.Warn("page driver start failed",
			logging.Int(logging.FieldAttempt, attempt),
			logging.Error(err),
		)
		if err := sleepCtx(ctx, time.Duration(attempt)*2*time.Second); err != nil {
			return err
		}
	}
	return lastErr
}

// rebirth tears down the worker's identity and starts over: cleared browser
// state, fresh session, forgotten checkpoints, machine back at Init.
func (c *Coordinator) rebirth(ctx context.Context, w *worker, reason string) error {
	w.logger.Info("session rebirth",
		logging.String("reason", reason),
		logging.String("old_session", w.sess.ID()),
	)
	c.stats.RecordRebirth()
	c.journalEvent(ctx, w.id, journal.KindRebirth, reason)

	if err := w.pager.Reset(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.logger.Warn("driver reset failed, rebuilding driver", logging.Error(err))
		w.pager.Close()
		w.pager = nil
		if err := c.openPager(ctx, w); err != nil {
			return fmt.Errorf("rebuild page driver: %w", err)
		}
	}

	w.sess = session.New(c.sessionLimits(), c.clk)
	w.gate.Reset()
	if err := w.machine.Reset(); err != nil {
		// A claim was still undecided; terminalize before the new session.
		w.machine.Fail()
		if err := w.machine.Reset(); err != nil {
			return err
		}
	}
	w.logger.Info("session reborn", logging.String("session", w.sess.ID()))
	return nil
}

func (c *Coordinator) scoutCycle(ctx context.Context, w *worker) error {
	dayURL, found, err := c.discoverDay(ctx, w)
	if err != nil || !found {
		return err
	}

	target := Target{DayURL: dayURL, FoundBy: w.id, DiscoveredAt: c.clk.Now()}
	c.board.Publish(target)
	c.stats.RecordTargetFound()
	c.journalEvent(ctx, w.id, journal.KindTargetFound, dayURL)
	w.logger.Info("target published", logging.String(logging.FieldDayURL, dayURL), logging.Alert("target_found"))
	if err := c.notifier.NotifyTargetFound(ctx, w.id, dayURL); err != nil {
		w.logger.Debug("target notification failed", logging.Error(err))
	}
	return nil
}

func (c *Coordinator) attackerCycle(ctx context.Context, w *worker) error {
	target, ok := c.board.Consume()
	if !ok && c.board.Wait(ctx, c.cfg.DiscoveryWait()) {
		target, ok = c.board.Consume()
	}
	if !ok {
		// Nothing published in time; hunt alone this cycle.
		dayURL, found, err := c.discoverDay(ctx, w)
		if err != nil || !found {
			return err
		}
		target = Target{DayURL: dayURL, FoundBy: w.id, DiscoveredAt: c.clk.Now()}
	}
	return c.attack(ctx, w, target)
}

// discoverDay scans the candidate months in profile priority order and
// returns the first open day link. Unreachable candidates advance to the
// next one; only a circuit pause or cancellation aborts the scan.
func (c *Coordinator) discoverDay(ctx context.Context, w *worker) (string, bool, error) {
	healthy := 0
	for _, offset := range c.prof.Discovery.MonthOffsets {
		if err := ctx.Err(); err != nil {
			return "", false, err
		}
		pageURL, err := monthURL(c.cfg.Target.URL, c.prof.Discovery, c.clk.Now(), offset)
		if err != nil {
			return "", false, err
		}

		if err := c.navigate(ctx, w, pageURL); err != nil {
			if errors.Is(err, errCircuitPaused) || ctx.Err() != nil {
				return "", false, err
			}
			w.logger.Debug("month candidate unreachable",
				logging.Int("offset", offset),
				logging.Error(err),
			)
			continue
		}
		c.stats.RecordScan()

		ok, err := c.passGate(ctx, w, captcha.CheckpointMonth)
		if err != nil {
			return "", false, err
		}
		if !ok {
			if _, condemned := w.sess.NeedsRebirth(); condemned {
				return "", false, nil
			}
			continue
		}
		healthy++

		links, err := w.pager.CollectLinks(ctx, c.prof.Discovery.DaySelectors)
		if err != nil {
			w.logger.Debug("day link scan failed",
				logging.Int("offset", offset),
				logging.Error(err),
			)
			continue
		}
		if len(links) == 0 {
			continue
		}

		c.stats.RecordDaysFound(len(links))
		w.sess.RecordNavigation(true)
		w.logger.Info("open day found",
			logging.Int("offset", offset),
			logging.Int("links", len(links)),
			logging.String(logging.FieldDayURL, links[0]),
		)
		return links[0], true, nil
	}

	w.sess.RecordNavigation(healthy > 0)
	return "", false, nil
}

// navigate runs one gated page load. Outcomes feed the shared breaker, not
// the session failure streak; phase-level results settle that.
func (c *Coordinator) navigate(ctx context.Context, w *worker, pageURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !c.brk.Allow() {
		return errCircuitPaused
	}

	timeout := c.cfg.NavigationTimeout()
	if score := w.sess.HealthScore(c.brk.State()); score < c.cfg.Navigation.DegradedHealthThreshold {
		if divisor := c.cfg.Navigation.DegradedTimeoutDivisor; divisor > 1 {
			timeout /= time.Duration(divisor)
		}
		w.logger.Debug("degraded health, tightening navigation timeout",
			logging.Int(logging.FieldHealth, score),
			logging.Duration("timeout", timeout),
		)
	}

	err := w.pager.Navigate(ctx, pageURL, timeout)
	w.sess.Touch()
	if err == nil {
		c.brk.Success()
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	class := classifyNavError(err)
	c.brk.Failure(class)
	return fmt.Errorf("navigate (%s): %w", class, err)
}

// passGate runs the checkpoint and folds the outcome into session and
// stats. It reports whether the cycle may proceed past the checkpoint.
func (c *Coordinator) passGate(ctx context.Context, w *worker, checkpoint captcha.Checkpoint) (bool, error) {
	outcome, attempts, err := w.gate.Pass(ctx, w.pager, checkpoint)
	return c.settleGate(ctx, w, checkpoint, outcome, attempts, err)
}

func (c *Coordinator) settleGate(ctx context.Context, w *worker, checkpoint captcha.Checkpoint, outcome captcha.Outcome, attempts int, gateErr error) (bool, error) {
	for i := 0; i < attempts; i++ {
		w.sess.RecordCaptchaAttempt()
	}

	switch outcome {
	case captcha.NoCaptcha:
		return true, nil
	case captcha.Solved:
		c.stats.RecordCaptchaSolved()
		return true, nil
	case captcha.WrongCode:
		c.stats.RecordCaptchaFailed()
		w.logger.Warn("checkpoint unsolved",
			logging.String("checkpoint", checkpoint.String()),
			logging.Error(gateErr),
		)
		return false, nil
	case captcha.PoisonedChallenge:
		c.stats.RecordCaptchaFailed()
		c.poisonSession(ctx, w, "checkpoint "+checkpoint.String()+" poisoned")
		return false, nil
	}
	if gateErr != nil {
		return false, gateErr
	}
	return false, nil
}

func (c *Coordinator) poisonSession(ctx context.Context, w *worker, reason string) {
	w.logger.Warn("session poisoned",
		logging.String("reason", reason),
		logging.String("session", w.sess.ID()),
		logging.Alert("session_poisoned"),
	)
	w.sess.Condemn(reason)
	c.journalEvent(ctx, w.id, journal.KindPoisoned, reason)
	c.captureFailure(ctx, w, "poisoned")
	if err := c.notifier.NotifySessionPoisoned(ctx, w.id, reason); err != nil {
		w.logger.Debug("poison notification failed", logging.Error(err))
	}
}

func (c *Coordinator) captureFailure(ctx context.Context, w *worker, label string) {
	if c.evidence == nil || !c.cfg.Evidence.CaptureOnFailure {
		return
	}
	shot, err := w.pager.Screenshot(ctx)
	if err != nil {
		w.logger.Debug("failure screenshot unavailable", logging.Error(err))
		return
	}
	html, _ := w.pager.PageHTML(ctx)
	c.evidence.CaptureDiagnostic(w.id, label, shot, html)
}

// monthURL builds a month-view URL for the anchor day offset months out.
// Pinning the day keeps every candidate inside its month regardless of
// month length.
func monthURL(base string, disc profile.Discovery, now time.Time, offset int) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse target url: %w", err)
	}
	anchored := time.Date(now.Year(), now.Month(), disc.AnchorDay, 12, 0, 0, 0, now.Location())
	when := anchored.AddDate(0, offset, 0)
	q := u.Query()
	q.Set(disc.DateParam, when.Format(disc.DateLayout))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// classifyNavError buckets a navigation failure for the breaker and logs.
func classifyNavError(err error) breaker.ErrorClass {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded):
		return breaker.ClassTimeout
	case isConnectionError(err):
		return breaker.ClassConnection
	default:
		return breaker.ClassOther
	}
}

func isConnectionError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
