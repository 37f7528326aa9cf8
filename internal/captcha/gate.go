package captcha

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/eng540/Falsniper/internal/logging"
	"github.com/eng540/Falsniper/internal/profile"
	"github.com/eng540/Falsniper/internal/services"
)

// Outcome classifies one pass through a captcha checkpoint.
type Outcome int

const (
	// NoCaptcha means the checkpoint had no challenge; pass through.
	NoCaptcha Outcome = iota
	// Solved means the code was accepted.
	Solved
	// WrongCode means every bounded retry was rejected.
	WrongCode
	// PoisonedChallenge means the session is burned: an unreadable or
	// frozen challenge, or a checkpoint this session already cleared
	// coming back. The worker must rebirth.
	PoisonedChallenge
)

func (o Outcome) String() string {
	switch o {
	case NoCaptcha:
		return "no-captcha"
	case Solved:
		return "solved"
	case WrongCode:
		return "wrong-code"
	case PoisonedChallenge:
		return "poisoned"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// ErrNoSolver reports that neither an automated solver nor a manual prompter
// is configured.
var ErrNoSolver = errors.New("captcha: no solver configured")

// Checkpoint identifies a gated step in the booking flow. The closed set
// keeps dispatch exhaustive; new gated pages mean a new constant, not a new
// string.
type Checkpoint int

const (
	CheckpointMonth Checkpoint = iota
	CheckpointDay
	CheckpointForm
)

func (c Checkpoint) String() string {
	switch c {
	case CheckpointMonth:
		return "month"
	case CheckpointDay:
		return "day"
	case CheckpointForm:
		return "form"
	default:
		return fmt.Sprintf("checkpoint(%d)", int(c))
	}
}

// Page is the slice of the browser driver the gate needs.
type Page interface {
	Visible(ctx context.Context, selector string, wait time.Duration) bool
	ElementScreenshot(ctx context.Context, selector string) ([]byte, error)
	Fill(ctx context.Context, selector, value string) error
	ClickFirst(ctx context.Context, selectors []string) (string, error)
	SubmitWithEnter(ctx context.Context, selector string) error
	PageHTML(ctx context.Context) (string, error)
}

// Settings bound the gate's local retry behaviour.
type Settings struct {
	// MaxRetries is how many wrong codes one checkpoint tolerates before
	// the gate gives up.
	MaxRetries int
	// Settle is how long the page gets to react after a submit.
	Settle time.Duration
	// Probe is the visibility wait when checking for a challenge.
	Probe time.Duration
}

func (s Settings) withDefaults() Settings {
	if s.MaxRetries <= 0 {
		s.MaxRetries = 3
	}
	if s.Settle <= 0 {
		s.Settle = 2 * time.Second
	}
	if s.Probe <= 0 {
		s.Probe = 3 * time.Second
	}
	return s
}

// Gate runs captcha checkpoints for one worker session. It remembers which
// checkpoints the session has cleared, so a cleared checkpoint reappearing
// is recognized as the server having invalidated the session. Not safe for
// concurrent use; each worker owns its own gate.
type Gate struct {
	solver   Solver
	prompter Prompter
	prof     *profile.Profile
	settings Settings
	logger   *slog.Logger

	seen     map[Checkpoint]bool
	lastHash [sha256.Size]byte
	hasHash  bool
}

// NewGate builds a gate. Either solver or prompter may be nil, not both.
func NewGate(solver Solver, prompter Prompter, prof *profile.Profile, settings Settings, logger *slog.Logger) *Gate {
	return &Gate{
		solver:   solver,
		prompter: prompter,
		prof:     prof,
		settings: settings.withDefaults(),
		logger:   logging.NewComponentLogger(logger, "captcha"),
		seen:     make(map[Checkpoint]bool),
	}
}

// Reset clears per-session memory. Call it when the worker session is
// reborn.
func (g *Gate) Reset() {
	g.seen = make(map[Checkpoint]bool)
	g.hasHash = false
}

// Pass runs the checkpoint named by checkpoint: detect, solve, submit,
// verify. It returns how many solve attempts were consumed so the caller
// can charge them against the session's captcha budget.
//
// A checkpoint this session already cleared showing a challenge again is
// reported as PoisonedChallenge without burning a solve attempt.
func (g *Gate) Pass(ctx context.Context, page Page, checkpoint Checkpoint) (Outcome, int, error) {
	if !page.Visible(ctx, g.prof.Form.CaptchaInput, g.settings.Probe) {
		return NoCaptcha, 0, nil
	}
	if g.seen[checkpoint] {
		g.logger.Warn("cleared checkpoint reappeared, session invalidated",
			logging.String("checkpoint", checkpoint.String()))
		return PoisonedChallenge, 0, nil
	}
	return g.solveLoop(ctx, page, checkpoint)
}

// Refresh re-solves a checkpoint the caller knows was deliberately
// re-issued, such as after a silently bounced submit. It never trips the
// reappearance rule.
func (g *Gate) Refresh(ctx context.Context, page Page, checkpoint Checkpoint) (Outcome, int, error) {
	if !page.Visible(ctx, g.prof.Form.CaptchaInput, g.settings.Probe) {
		return NoCaptcha, 0, nil
	}
	return g.solveLoop(ctx, page, checkpoint)
}

func (g *Gate) solveLoop(ctx context.Context, page Page, checkpoint Checkpoint) (Outcome, int, error) {
	var lastErr error
	for attempt := 1; attempt <= g.settings.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return WrongCode, attempt - 1, err
		}

		image, err := page.ElementScreenshot(ctx, g.prof.Form.CaptchaImage)
		if err != nil {
			return WrongCode, attempt - 1, fmt.Errorf("capture challenge: %w", err)
		}

		sum := sha256.Sum256(image)
		if g.hasHash && attempt > 1 && sum == g.lastHash {
			// The server did not issue a fresh challenge after a
			// rejected code. Retrying the same image is pointless.
			g.logger.Warn("challenge image frozen after rejection",
				logging.String("checkpoint", checkpoint.String()))
			return PoisonedChallenge, attempt - 1, nil
		}
		g.lastHash = sum
		g.hasHash = true

		code, err := g.solve(ctx, image)
		if errors.Is(err, ErrUnreadable) {
			return PoisonedChallenge, attempt, nil
		}
		if err != nil {
			lastErr = err
			g.logger.Warn("solve attempt failed",
				logging.String("checkpoint", checkpoint.String()),
				logging.Int(logging.FieldAttempt, attempt),
				logging.Error(err))
			continue
		}
		if !ValidCode(code) {
			g.logger.Debug("solver returned implausible code",
				logging.String("checkpoint", checkpoint.String()),
				logging.String("code", code))
			lastErr = fmt.Errorf("implausible code %q", code)
			continue
		}

		if err := g.submit(ctx, page, code); err != nil {
			return WrongCode, attempt, err
		}
		if err := sleepCtx(ctx, g.settings.Settle); err != nil {
			return WrongCode, attempt, err
		}

		if g.challengeStillUp(ctx, page) {
			g.logger.Info("code rejected, challenge reloaded",
				logging.String("checkpoint", checkpoint.String()),
				logging.Int(logging.FieldAttempt, attempt))
			continue
		}

		g.seen[checkpoint] = true
		g.logger.Info("checkpoint cleared",
			logging.String("checkpoint", checkpoint.String()),
			logging.Int(logging.FieldAttempt, attempt))
		return Solved, attempt, nil
	}
	return WrongCode, g.settings.MaxRetries, lastErr
}

func (g *Gate) solve(ctx context.Context, image []byte) (string, error) {
	if g.solver != nil {
		code, err := g.solver.Solve(ctx, image)
		if err == nil {
			return code, nil
		}
		if errors.Is(err, ErrUnreadable) || g.prompter == nil {
			return "", err
		}
		g.logger.Warn("solver unavailable, asking a human", logging.Error(err))
	}
	if g.prompter == nil {
		return "", ErrNoSolver
	}
	prompt := "Captcha checkpoint: reply with the code."
	if worker, ok := services.WorkerFromContext(ctx); ok {
		prompt = fmt.Sprintf("Captcha checkpoint for %s: reply with the code.", worker)
	}
	return g.prompter.RequestCode(ctx, image, prompt)
}

func (g *Gate) submit(ctx context.Context, page Page, code string) error {
	if err := page.Fill(ctx, g.prof.Form.CaptchaInput, code); err != nil {
		return fmt.Errorf("fill code: %w", err)
	}
	if _, err := page.ClickFirst(ctx, g.prof.Form.GateSubmits); err != nil {
		// No recognizable submit control; Enter usually works.
		if err := page.SubmitWithEnter(ctx, g.prof.Form.CaptchaInput); err != nil {
			return fmt.Errorf("submit code: %w", err)
		}
	}
	return nil
}

// challengeStillUp reports whether the page still shows the checkpoint
// after a submit, meaning the code was rejected.
func (g *Gate) challengeStillUp(ctx context.Context, page Page) bool {
	html, err := page.PageHTML(ctx)
	if err == nil && !strings.Contains(strings.ToLower(html), "captcha") {
		return false
	}
	return page.Visible(ctx, g.prof.Form.CaptchaInput, time.Second)
}

// ValidCode reports whether code looks like something a challenge would
// actually accept: short and alphanumeric.
func ValidCode(code string) bool {
	code = strings.TrimSpace(code)
	if len(code) < 3 || len(code) > 10 {
		return false
	}
	for _, r := range code {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
