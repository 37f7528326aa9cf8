package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/eng540/Falsniper/internal/captcha"
	"github.com/eng540/Falsniper/internal/journal"
	"github.com/eng540/Falsniper/internal/logging"
	"github.com/eng540/Falsniper/internal/profile"
)

// attack drives one claim from a day URL to a terminal outcome. Crossing
// FormReady commits the worker to this slot: from there the machine only
// moves forward to Success or Failed.
func (c *Coordinator) attack(ctx context.Context, w *worker, target Target) error {
	c.stats.RecordClaim()
	c.journalEvent(ctx, w.id, journal.KindClaim, target.DayURL)
	w.logger.Info("claim started",
		logging.String(logging.FieldDayURL, target.DayURL),
		logging.String("found_by", target.FoundBy),
	)

	if err := w.machine.To(StateClaimDay); err != nil {
		return err
	}
	slotURL, err := c.claimDay(ctx, w, target.DayURL)
	if err != nil {
		return c.abandonClaim(ctx, w, "day", err)
	}

	if err := w.machine.To(StateClaimSlot); err != nil {
		return err
	}
	if err := c.claimSlot(ctx, w, slotURL); err != nil {
		return c.abandonClaim(ctx, w, "slot", err)
	}

	if err := w.machine.To(StateFormReady); err != nil {
		return err
	}
	w.logger.Info("booking form reached, committed to this slot",
		logging.String("slot_url", slotURL),
	)

	if err := w.machine.To(StateFormFill); err != nil {
		return err
	}
	if err := c.fillForm(ctx, w); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		// Form-fill failure is worker-fatal: the page is in an unknown
		// shape and this session cannot be trusted with another claim.
		w.machine.Fail()
		w.sess.Condemn("form fill failed")
		c.captureFailure(ctx, w, "form-fill")
		return fmt.Errorf("fill form: %w", err)
	}

	if err := w.machine.To(StateFormSubmit); err != nil {
		return err
	}
	return c.commit(ctx, w, target)
}

// abandonClaim routes a pre-form claim failure back to scanning. Claim
// failures before FormReady never abort the worker.
func (c *Coordinator) abandonClaim(ctx context.Context, w *worker, phase string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, errCircuitPaused) {
		return err
	}
	w.sess.RecordNavigation(false)
	if errors.Is(err, errTargetGone) {
		w.logger.Info("target gone, resuming scan", logging.String("phase", phase))
	} else {
		w.logger.Warn("claim phase failed, resuming scan",
			logging.String("phase", phase),
			logging.Error(err),
		)
	}
	return w.machine.To(StateDiscover)
}

// claimDay opens the day page and picks the first bookable slot link.
func (c *Coordinator) claimDay(ctx context.Context, w *worker, dayURL string) (string, error) {
	if err := c.navigate(ctx, w, dayURL); err != nil {
		return "", err
	}
	ok, err := c.passGate(ctx, w, captcha.CheckpointDay)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errTargetGone
	}

	links, err := w.pager.CollectLinks(ctx, c.prof.Discovery.SlotSelectors)
	if err != nil {
		return "", fmt.Errorf("collect slot links: %w", err)
	}
	if len(links) == 0 {
		return "", errTargetGone
	}
	c.stats.RecordSlotsFound(len(links))
	return links[0], nil
}

// claimSlot opens the slot page and confirms the booking form is up.
func (c *Coordinator) claimSlot(ctx context.Context, w *worker, slotURL string) error {
	if err := c.navigate(ctx, w, slotURL); err != nil {
		return err
	}
	ok, err := c.passGate(ctx, w, captcha.CheckpointForm)
	if err != nil {
		return err
	}
	if !ok {
		return errTargetGone
	}
	if !c.formFieldVisible(ctx, w) {
		return errTargetGone
	}
	return nil
}

func (c *Coordinator) formFieldVisible(ctx context.Context, w *worker) bool {
	for _, field := range c.prof.Form.Fields {
		if w.pager.Visible(ctx, field.Selector, time.Second) {
			return true
		}
	}
	return false
}

// fillForm types the applicant identity into the booking form. Profiles
// list selector variants for the same logical field, so absent selectors
// are routine; filling nothing at all is an error.
func (c *Coordinator) fillForm(ctx context.Context, w *worker) error {
	filled := 0
	for _, field := range c.prof.Form.Fields {
		value := c.identityValue(field.Value)
		if value == "" {
			continue
		}
		ok, err := w.pager.FillIfPresent(ctx, field.Selector, value)
		if err != nil {
			return err
		}
		if ok {
			filled++
		}
	}
	if filled == 0 {
		return errors.New("no form fields accepted input")
	}

	if sel := c.prof.Form.CategorySelect; sel != "" {
		matched, err := w.pager.SelectOption(ctx, sel, c.cfg.Target.Purpose)
		if err != nil {
			w.logger.Debug("category select failed", logging.Error(err))
		} else if !matched {
			if err := w.pager.SelectIndex(ctx, sel, 1); err != nil {
				w.logger.Debug("category fallback skipped", logging.Error(err))
			}
		}
	}

	w.sess.Touch()
	w.logger.Info("form filled", logging.Int("fields", filled))
	return nil
}

func (c *Coordinator) identityValue(token string) string {
	switch token {
	case profile.TokenLastName:
		return c.cfg.Identity.LastName
	case profile.TokenFirstName:
		return c.cfg.Identity.FirstName
	case profile.TokenEmail:
		return c.cfg.Identity.Email
	case profile.TokenPassport:
		return c.cfg.Identity.Passport
	case profile.TokenPhone:
		return c.cfg.Identity.Phone
	default:
		return ""
	}
}

// commit runs the bounded submit loop and settles the terminal outcome.
func (c *Coordinator) commit(ctx context.Context, w *worker, target Target) error {
	outcome, attempts, err := RunSubmitLoop(ctx, c.cfg.Submit.MaxAttempts, c.submitHooks(w), w.logger)
	c.stats.RecordSubmitAttempts(attempts)
	c.journalEvent(ctx, w.id, journal.KindSubmit,
		fmt.Sprintf("%s after %d attempts (target %s)", outcome, attempts, target.DayURL))

	if outcome == SubmitSuccess {
		if terr := w.machine.To(StateSuccess); terr != nil {
			return terr
		}
		w.sess.RecordNavigation(true)
		c.announceBooked(ctx, w)
		return nil
	}

	// Whatever stopped the loop, this target is spent.
	if terr := w.machine.To(StateFailed); terr != nil {
		return terr
	}
	w.sess.RecordNavigation(false)

	switch {
	case err == nil:
		w.logger.Warn("submit rejected, abandoning target",
			logging.String(logging.FieldOutcome, outcome.String()),
			logging.Int("attempts", attempts),
		)
		c.captureFailure(ctx, w, "submit-"+outcome.String())
		return nil
	case errors.Is(err, ErrSubmitExhausted):
		w.logger.Warn("submit attempts exhausted",
			logging.Int("attempts", attempts),
			logging.String("last_outcome", outcome.String()),
		)
		if nerr := c.notifier.NotifySubmitExhausted(ctx, w.id, attempts); nerr != nil {
			w.logger.Debug("exhaustion notification failed", logging.Error(nerr))
		}
		c.captureFailure(ctx, w, "submit-exhausted")
		return nil
	case errors.Is(err, context.Canceled):
		return err
	default:
		w.sess.Condemn("submit loop failed: " + err.Error())
		return fmt.Errorf("submit: %w", err)
	}
}

// submitHooks binds the generic submit loop to this worker's page, gate,
// and identity.
func (c *Coordinator) submitHooks(w *worker) SubmitHooks {
	return SubmitHooks{
		Ensure: func(ctx context.Context) error {
			outcome, attempts, err := w.gate.Refresh(ctx, w.pager, captcha.CheckpointForm)
			for i := 0; i < attempts; i++ {
				w.sess.RecordCaptchaAttempt()
			}
			switch outcome {
			case captcha.NoCaptcha:
				return nil
			case captcha.Solved:
				c.stats.RecordCaptchaSolved()
				return nil
			case captcha.PoisonedChallenge:
				c.stats.RecordCaptchaFailed()
				c.poisonSession(ctx, w, "form checkpoint poisoned mid-submit")
				if err == nil {
					err = errors.New("challenge poisoned")
				}
				return err
			default:
				c.stats.RecordCaptchaFailed()
				if err == nil {
					err = errors.New("form checkpoint unsolved")
				}
				return err
			}
		},
		Submit: func(ctx context.Context) error {
			if _, err := w.pager.ClickFirst(ctx, c.prof.Form.SubmitButtons); err == nil {
				return nil
			}
			return w.pager.SubmitWithEnter(ctx, c.prof.Form.CaptchaInput)
		},
		Classify: func(ctx context.Context) (SubmitOutcome, string, error) {
			html, err := w.pager.PageHTML(ctx)
			if err != nil {
				return SubmitUnknown, "", fmt.Errorf("read page: %w", err)
			}
			content := profile.NormalizeContent(html)
			formVisible := w.pager.Visible(ctx, c.prof.Form.CaptchaInput, time.Second) ||
				c.formFieldVisible(ctx, w)
			captchaCleared := false
			if value, verr := w.pager.Value(ctx, c.prof.Form.CaptchaInput); verr == nil {
				captchaCleared = strings.TrimSpace(value) == ""
			}
			outcome, marker := ClassifySubmit(content, formVisible, captchaCleared, c.prof.Markers)
			return outcome, marker, nil
		},
		Recover: func(ctx context.Context, outcome SubmitOutcome) error {
			// Bounced submits clear fields server-side; put them back.
			for _, field := range c.prof.Form.Fields {
				value := c.identityValue(field.Value)
				if value == "" {
					continue
				}
				if _, err := w.pager.FillIfPresent(ctx, field.Selector, value); err != nil {
					return fmt.Errorf("refill %q: %w", field.Selector, err)
				}
			}
			return nil
		},
	}
}
