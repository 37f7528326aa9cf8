package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/eng540/Falsniper/internal/logging"
	"github.com/eng540/Falsniper/internal/profile"
)

// SubmitOutcome classifies what the site returned for one submit attempt.
type SubmitOutcome int

const (
	SubmitUnknown SubmitOutcome = iota
	SubmitSuccess
	SubmitSilentBounce
	SubmitHardFail
)

func (o SubmitOutcome) String() string {
	switch o {
	case SubmitUnknown:
		return "unknown"
	case SubmitSuccess:
		return "success"
	case SubmitSilentBounce:
		return "silent_bounce"
	case SubmitHardFail:
		return "hard_fail"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// ErrSubmitExhausted reports a submit loop that spent all attempts without
// reaching a terminal page.
var ErrSubmitExhausted = errors.New("engine: submit attempts exhausted")

// ClassifySubmit decides what one submit attempt produced. The decision is
// total and checked in strict order: a success marker wins outright; a
// hard-fail or no-slots marker without one is a hard failure (a slot grabbed
// by someone else reads the same as a server rejection); an intact form with
// a cleared captcha field is a silent bounce; anything else is unknown.
// content must already be normalized with profile.NormalizeContent. The
// second return value is the marker that decided, if any.
func ClassifySubmit(content string, formVisible, captchaCleared bool, markers profile.Markers) (SubmitOutcome, string) {
	if marker := markers.SuccessIn(content); marker != "" {
		return SubmitSuccess, marker
	}
	if marker := markers.HardFailIn(content); marker != "" {
		return SubmitHardFail, marker
	}
	if marker := markers.NoSlotsIn(content); marker != "" {
		return SubmitHardFail, marker
	}
	if formVisible && captchaCleared {
		return SubmitSilentBounce, ""
	}
	return SubmitUnknown, ""
}

// SubmitHooks bind the submit loop to a concrete page and session.
type SubmitHooks struct {
	// Ensure clears the form checkpoint before the attempt.
	Ensure func(ctx context.Context) error
	// Submit fires the submit action, falling back internally as needed.
	Submit func(ctx context.Context) error
	// Classify reads the resulting page and names what happened.
	Classify func(ctx context.Context) (SubmitOutcome, string, error)
	// Recover repairs the form after a bounce, before the next attempt.
	Recover func(ctx context.Context, outcome SubmitOutcome) error
}

// RunSubmitLoop drives the bounded commit loop: ensure checkpoint, submit,
// classify, recover, repeat. Success and HardFail end the loop immediately;
// SilentBounce and Unknown retry until maxAttempts is spent, which returns
// ErrSubmitExhausted alongside the final outcome. The attempt count returned
// is how many submits actually fired.
func RunSubmitLoop(ctx context.Context, maxAttempts int, hooks SubmitHooks, logger *slog.Logger) (SubmitOutcome, int, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	last := SubmitUnknown
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return last, attempt - 1, err
		}
		if hooks.Ensure != nil {
			if err := hooks.Ensure(ctx); err != nil {
				return last, attempt - 1, fmt.Errorf("ensure checkpoint: %w", err)
			}
		}
		if err := hooks.Submit(ctx); err != nil {
			return last, attempt, fmt.Errorf("submit attempt %d: %w", attempt, err)
		}
		outcome, marker, err := hooks.Classify(ctx)
		if err != nil {
			return last, attempt, fmt.Errorf("classify attempt %d: %w", attempt, err)
		}
		last = outcome

		switch outcome {
		case SubmitSuccess:
			logger.Info("submit succeeded",
				logging.Int(logging.FieldAttempt, attempt),
				logging.String("marker", marker),
			)
			return SubmitSuccess, attempt, nil
		case SubmitHardFail:
			logger.Warn("submit rejected hard",
				logging.Int(logging.FieldAttempt, attempt),
				logging.String("marker", marker),
			)
			return SubmitHardFail, attempt, nil
		case SubmitSilentBounce:
			logger.Debug("submit bounced silently", logging.Int(logging.FieldAttempt, attempt))
		default:
			logger.Warn("submit result unclear, retrying", logging.Int(logging.FieldAttempt, attempt))
		}

		if attempt == maxAttempts {
			break
		}
		if hooks.Recover != nil {
			if err := hooks.Recover(ctx, outcome); err != nil {
				return last, attempt, fmt.Errorf("recover after attempt %d: %w", attempt, err)
			}
		}
	}
	return last, maxAttempts, ErrSubmitExhausted
}
