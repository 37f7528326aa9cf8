package engine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/eng540/Falsniper/internal/engine"
	"github.com/eng540/Falsniper/internal/logging"
	"github.com/eng540/Falsniper/internal/profile"
)

func TestClassifySubmit(t *testing.T) {
	markers := profile.Default().Markers

	tests := []struct {
		name           string
		content        string
		formVisible    bool
		captchaCleared bool
		want           engine.SubmitOutcome
		wantMarker     string
	}{
		{
			name:       "success marker",
			content:    "vielen dank. ihre buchung wurde registriert. appointment number 4711",
			want:       engine.SubmitSuccess,
			wantMarker: "appointment number",
		},
		{
			name:       "hard fail marker",
			content:    "ein fehler ist aufgetreten. bitte versuchen sie es erneut.",
			want:       engine.SubmitHardFail,
			wantMarker: "ein fehler ist aufgetreten",
		},
		{
			name:       "slot taken reads as hard fail",
			content:    "leider sind keine termine mehr verfuegbar.",
			want:       engine.SubmitHardFail,
			wantMarker: "keine termine",
		},
		{
			name:       "session expiry is a hard fail",
			content:    "ihre sitzung abgelaufen. bitte beginnen sie erneut.",
			want:       engine.SubmitHardFail,
			wantMarker: "sitzung abgelaufen",
		},
		{
			name:       "success wins over hard fail",
			content:    "ein fehler ist aufgetreten beim versand. termin wurde gebucht.",
			want:       engine.SubmitSuccess,
			wantMarker: "termin wurde gebucht",
		},
		{
			name:           "intact form with cleared captcha bounces",
			content:        "bitte geben sie ihre daten ein",
			formVisible:    true,
			captchaCleared: true,
			want:           engine.SubmitSilentBounce,
		},
		{
			name:        "form visible but captcha untouched stays unknown",
			content:     "bitte geben sie ihre daten ein",
			formVisible: true,
			want:        engine.SubmitUnknown,
		},
		{
			name:    "no markers no form",
			content: "irgendeine zwischenseite ohne inhalt",
			want:    engine.SubmitUnknown,
		},
		{
			name:           "marker wins over form state",
			content:        "termin wurde gebucht",
			formVisible:    true,
			captchaCleared: true,
			want:           engine.SubmitSuccess,
			wantMarker:     "termin wurde gebucht",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, marker := engine.ClassifySubmit(tt.content, tt.formVisible, tt.captchaCleared, markers)
			if got != tt.want {
				t.Fatalf("outcome = %s, want %s", got, tt.want)
			}
			if marker != tt.wantMarker {
				t.Fatalf("marker = %q, want %q", marker, tt.wantMarker)
			}
		})
	}
}

// loopProbe counts hook invocations and plays back a scripted outcome per
// attempt, repeating the last entry when the script runs out.
type loopProbe struct {
	script   []engine.SubmitOutcome
	ensures  int
	submits  int
	recovers int
}

func (p *loopProbe) hooks() engine.SubmitHooks {
	return engine.SubmitHooks{
		Ensure: func(context.Context) error {
			p.ensures++
			return nil
		},
		Submit: func(context.Context) error {
			p.submits++
			return nil
		},
		Classify: func(context.Context) (engine.SubmitOutcome, string, error) {
			idx := p.submits - 1
			if idx >= len(p.script) {
				idx = len(p.script) - 1
			}
			return p.script[idx], "", nil
		},
		Recover: func(context.Context, engine.SubmitOutcome) error {
			p.recovers++
			return nil
		},
	}
}

func TestSubmitLoopExhaustsOnPersistentBounce(t *testing.T) {
	probe := &loopProbe{script: []engine.SubmitOutcome{engine.SubmitSilentBounce}}

	outcome, attempts, err := engine.RunSubmitLoop(context.Background(), 5, probe.hooks(), logging.NewNop())
	if !errors.Is(err, engine.ErrSubmitExhausted) {
		t.Fatalf("err = %v, want ErrSubmitExhausted", err)
	}
	if outcome != engine.SubmitSilentBounce {
		t.Fatalf("outcome = %s, want silent_bounce", outcome)
	}
	if attempts != 5 {
		t.Fatalf("attempts = %d, want 5", attempts)
	}
	if probe.submits != 5 {
		t.Fatalf("submits fired = %d, want 5", probe.submits)
	}
	// No recovery after the final attempt.
	if probe.recovers != 4 {
		t.Fatalf("recovers = %d, want 4", probe.recovers)
	}
	if probe.ensures != 5 {
		t.Fatalf("ensures = %d, want 5", probe.ensures)
	}
}

func TestSubmitLoopStopsOnSuccess(t *testing.T) {
	probe := &loopProbe{script: []engine.SubmitOutcome{engine.SubmitSilentBounce, engine.SubmitSuccess}}

	outcome, attempts, err := engine.RunSubmitLoop(context.Background(), 5, probe.hooks(), logging.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != engine.SubmitSuccess {
		t.Fatalf("outcome = %s, want success", outcome)
	}
	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2", attempts)
	}
	if probe.submits != 2 {
		t.Fatalf("submits fired = %d, want 2", probe.submits)
	}
}

func TestSubmitLoopStopsOnHardFail(t *testing.T) {
	probe := &loopProbe{script: []engine.SubmitOutcome{engine.SubmitHardFail}}

	outcome, attempts, err := engine.RunSubmitLoop(context.Background(), 5, probe.hooks(), logging.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != engine.SubmitHardFail {
		t.Fatalf("outcome = %s, want hard_fail", outcome)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1", attempts)
	}
	if probe.recovers != 0 {
		t.Fatalf("recovers = %d, want 0", probe.recovers)
	}
}

func TestSubmitLoopUnknownRetries(t *testing.T) {
	probe := &loopProbe{script: []engine.SubmitOutcome{engine.SubmitUnknown, engine.SubmitUnknown, engine.SubmitSuccess}}

	outcome, attempts, err := engine.RunSubmitLoop(context.Background(), 5, probe.hooks(), logging.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != engine.SubmitSuccess || attempts != 3 {
		t.Fatalf("got (%s, %d), want (success, 3)", outcome, attempts)
	}
}

func TestSubmitLoopEnsureFailureAborts(t *testing.T) {
	boom := errors.New("checkpoint poisoned")
	hooks := engine.SubmitHooks{
		Ensure:   func(context.Context) error { return boom },
		Submit:   func(context.Context) error { t.Fatal("submit must not fire"); return nil },
		Classify: func(context.Context) (engine.SubmitOutcome, string, error) { return engine.SubmitUnknown, "", nil },
	}

	_, attempts, err := engine.RunSubmitLoop(context.Background(), 3, hooks, logging.NewNop())
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped checkpoint error", err)
	}
	if attempts != 0 {
		t.Fatalf("attempts = %d, want 0", attempts)
	}
}

func TestSubmitLoopRecoverFailureAborts(t *testing.T) {
	boom := errors.New("refill failed")
	probe := &loopProbe{script: []engine.SubmitOutcome{engine.SubmitSilentBounce}}
	hooks := probe.hooks()
	hooks.Recover = func(context.Context, engine.SubmitOutcome) error { return boom }

	outcome, attempts, err := engine.RunSubmitLoop(context.Background(), 3, hooks, logging.NewNop())
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped recover error", err)
	}
	if outcome != engine.SubmitSilentBounce || attempts != 1 {
		t.Fatalf("got (%s, %d), want (silent_bounce, 1)", outcome, attempts)
	}
}

func TestSubmitLoopCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	probe := &loopProbe{script: []engine.SubmitOutcome{engine.SubmitSuccess}}
	_, attempts, err := engine.RunSubmitLoop(ctx, 3, probe.hooks(), logging.NewNop())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if attempts != 0 || probe.submits != 0 {
		t.Fatalf("expected no attempts on a dead context, got attempts=%d submits=%d", attempts, probe.submits)
	}
}

func TestSubmitLoopCoercesAttemptFloor(t *testing.T) {
	probe := &loopProbe{script: []engine.SubmitOutcome{engine.SubmitSilentBounce}}

	_, attempts, err := engine.RunSubmitLoop(context.Background(), 0, probe.hooks(), logging.NewNop())
	if !errors.Is(err, engine.ErrSubmitExhausted) {
		t.Fatalf("err = %v, want ErrSubmitExhausted", err)
	}
	if attempts != 1 || probe.submits != 1 {
		t.Fatalf("expected a single attempt, got attempts=%d submits=%d", attempts, probe.submits)
	}
}
