package clock_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/eng540/Falsniper/internal/clock"
	"github.com/eng540/Falsniper/internal/logging"
)

func dateServer(t *testing.T, offset time.Duration) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Date", time.Now().Add(offset).UTC().Format(http.TimeFormat))
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestSampleAppliesMedianOffset(t *testing.T) {
	ahead := dateServer(t, 90*time.Second)
	behind := dateServer(t, -30*time.Second)
	near := dateServer(t, 60*time.Second)

	c := clock.NewCorrected([]string{ahead.URL, behind.URL, near.URL}, 2*time.Second, time.Minute, logging.NewNop())
	if err := c.Sample(context.Background()); err != nil {
		t.Fatalf("Sample returned error: %v", err)
	}

	// Date headers quantize to whole seconds; allow generous tolerance around
	// the median sample (60s).
	offset := c.Offset()
	if offset < 55*time.Second || offset > 65*time.Second {
		t.Fatalf("unexpected offset: %v", offset)
	}
	if c.SampledAt().IsZero() {
		t.Fatal("expected sample timestamp")
	}

	now := c.Now()
	wall := time.Now()
	diff := now.Sub(wall) - offset
	if diff > time.Second || diff < -time.Second {
		t.Fatalf("Now not adjusted by offset: %v", diff)
	}
}

func TestSampleKeepsPreviousOffsetOnFailure(t *testing.T) {
	good := dateServer(t, 10*time.Second)
	c := clock.NewCorrected([]string{good.URL}, 2*time.Second, time.Minute, logging.NewNop())
	if err := c.Sample(context.Background()); err != nil {
		t.Fatalf("Sample returned error: %v", err)
	}
	before := c.Offset()
	if before == 0 {
		t.Fatal("expected nonzero offset")
	}

	good.Close()
	if err := c.Sample(context.Background()); err == nil {
		t.Fatal("expected error once server is gone")
	}
	if c.Offset() != before {
		t.Fatalf("offset changed after failed sample: %v != %v", c.Offset(), before)
	}
}

func TestUnsampledCorrectedMatchesSystem(t *testing.T) {
	c := clock.NewCorrected(nil, time.Second, time.Minute, logging.NewNop())
	if c.Offset() != 0 {
		t.Fatalf("expected zero offset before sampling, got %v", c.Offset())
	}
	if err := c.Sample(context.Background()); err == nil {
		t.Fatal("expected error with no servers")
	}
}

func TestManualClock(t *testing.T) {
	start := time.Date(2025, 6, 1, 1, 59, 0, 0, time.UTC)
	m := clock.NewManual(start)
	if !m.Now().Equal(start) {
		t.Fatalf("unexpected start: %v", m.Now())
	}
	m.Advance(90 * time.Second)
	if !m.Now().Equal(start.Add(90 * time.Second)) {
		t.Fatalf("unexpected time after advance: %v", m.Now())
	}
	m.Set(start.Add(time.Hour))
	if !m.Now().Equal(start.Add(time.Hour)) {
		t.Fatalf("unexpected time after set: %v", m.Now())
	}
}
