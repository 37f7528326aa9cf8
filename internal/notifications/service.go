package notifications

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/eng540/Falsniper/internal/config"
)

// Service defines the notification surface exposed to the booking engine.
// Delivery is best effort: callers log returned errors and move on, control
// flow never depends on a notification landing.
type Service interface {
	NotifyStartup(ctx context.Context, workers int, mode string) error
	NotifyTargetFound(ctx context.Context, worker, dayURL string) error
	NotifyWindowOpen(ctx context.Context, opensAt time.Time) error
	NotifyBooked(ctx context.Context, worker, pageURL string, screenshot []byte) error
	NotifySessionPoisoned(ctx context.Context, worker, reason string) error
	NotifySubmitExhausted(ctx context.Context, worker string, attempts int) error
	NotifyError(ctx context.Context, err error, label string) error
	NotifyShutdown(ctx context.Context, uptime time.Duration, scans, claims int) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by Telegram when bot
// credentials are configured. Otherwise a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if t := NewTelegram(cfg); t != nil {
		return t
	}
	return noopService{}
}

func (t *Telegram) NotifyStartup(ctx context.Context, workers int, mode string) error {
	mode = strings.TrimSpace(mode)
	if mode == "" {
		mode = "unknown"
	}
	text := fmt.Sprintf("<b>🎯 Falsniper armed</b>\n%d workers up, window mode: %s", workers, html.EscapeString(mode))
	return t.sendMessage(ctx, text, true)
}

func (t *Telegram) NotifyTargetFound(ctx context.Context, worker, dayURL string) error {
	text := fmt.Sprintf("<b>🔍 Target found</b>\n%s discovered an open day\n%s",
		html.EscapeString(strings.TrimSpace(worker)), html.EscapeString(strings.TrimSpace(dayURL)))
	return t.sendMessage(ctx, text, false)
}

func (t *Telegram) NotifyWindowOpen(ctx context.Context, opensAt time.Time) error {
	text := fmt.Sprintf("<b>⏰ Attack window open</b>\nopened %s", opensAt.Format("15:04:05 MST"))
	return t.sendMessage(ctx, text, false)
}

// NotifyBooked announces the win. The screenshot, when present, carries the
// confirmation page as proof.
func (t *Telegram) NotifyBooked(ctx context.Context, worker, pageURL string, screenshot []byte) error {
	caption := fmt.Sprintf("✅ APPOINTMENT BOOKED by %s\n%s",
		strings.TrimSpace(worker), strings.TrimSpace(pageURL))
	if len(screenshot) > 0 {
		return t.SendPhoto(ctx, screenshot, caption)
	}
	text := fmt.Sprintf("<b>✅ APPOINTMENT BOOKED</b>\nby %s\n%s",
		html.EscapeString(strings.TrimSpace(worker)), html.EscapeString(strings.TrimSpace(pageURL)))
	return t.sendMessage(ctx, text, false)
}

func (t *Telegram) NotifySessionPoisoned(ctx context.Context, worker, reason string) error {
	text := fmt.Sprintf("<b>☠️ Session poisoned</b>\n%s: %s",
		html.EscapeString(strings.TrimSpace(worker)), html.EscapeString(strings.TrimSpace(reason)))
	return t.sendMessage(ctx, text, true)
}

func (t *Telegram) NotifySubmitExhausted(ctx context.Context, worker string, attempts int) error {
	text := fmt.Sprintf("<b>⚠️ Submit loop exhausted</b>\n%s gave up after %d attempts",
		html.EscapeString(strings.TrimSpace(worker)), attempts)
	return t.sendMessage(ctx, text, false)
}

func (t *Telegram) NotifyError(ctx context.Context, err error, contextLabel string) error {
	var builder strings.Builder
	builder.WriteString("<b>❌ Error</b>")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" in ")
		builder.WriteString(html.EscapeString(contextLabel))
	}
	builder.WriteString("\n")
	if err != nil {
		builder.WriteString(html.EscapeString(strings.TrimSpace(err.Error())))
	} else {
		builder.WriteString("unknown")
	}
	return t.sendMessage(ctx, builder.String(), false)
}

func (t *Telegram) NotifyShutdown(ctx context.Context, uptime time.Duration, scans, claims int) error {
	uptime = uptime.Round(time.Second)
	if uptime < 0 {
		uptime = 0
	}
	text := fmt.Sprintf("<b>🛑 Falsniper stopped</b>\nuptime %s, %d scans, %d claim runs",
		uptime, scans, claims)
	return t.sendMessage(ctx, text, true)
}

func (t *Telegram) TestNotification(ctx context.Context) error {
	return t.sendMessage(ctx, "<b>🧪 Falsniper test</b>\nnotification path works", true)
}

type noopService struct{}

func (noopService) NotifyStartup(context.Context, int, string) error              { return nil }
func (noopService) NotifyTargetFound(context.Context, string, string) error       { return nil }
func (noopService) NotifyWindowOpen(context.Context, time.Time) error             { return nil }
func (noopService) NotifyBooked(context.Context, string, string, []byte) error    { return nil }
func (noopService) NotifySessionPoisoned(context.Context, string, string) error   { return nil }
func (noopService) NotifySubmitExhausted(context.Context, string, int) error      { return nil }
func (noopService) NotifyError(context.Context, error, string) error              { return nil }
func (noopService) NotifyShutdown(context.Context, time.Duration, int, int) error { return nil }
func (noopService) TestNotification(context.Context) error                        { return nil }
