package clock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/eng540/Falsniper/internal/logging"
)

// Corrected is a Clock that applies an offset sampled from the Date headers
// of well-known HTTP servers. Date granularity is one second, which is plenty
// for hitting a release window; what matters is surviving a local clock that
// drifts by minutes.
type Corrected struct {
	servers  []string
	client   *http.Client
	interval time.Duration
	logger   *slog.Logger

	mu        sync.RWMutex
	offset    time.Duration
	sampledAt time.Time
}

// NewCorrected builds a Corrected clock. It performs no network traffic until
// Sample or Run is called; until then Now matches the system clock.
func NewCorrected(servers []string, requestTimeout, sampleInterval time.Duration, logger *slog.Logger) *Corrected {
	if requestTimeout <= 0 {
		requestTimeout = 5 * time.Second
	}
	if sampleInterval <= 0 {
		sampleInterval = 5 * time.Minute
	}
	return &Corrected{
		servers:  append([]string(nil), servers...),
		client:   &http.Client{Timeout: requestTimeout},
		interval: sampleInterval,
		logger:   logging.NewComponentLogger(logger, "clock"),
	}
}

// Now returns the system time adjusted by the last sampled offset.
func (c *Corrected) Now() time.Time {
	return time.Now().Add(c.Offset())
}

// Offset returns the currently applied correction.
func (c *Corrected) Offset() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offset
}

// SampledAt returns when the offset was last refreshed, zero if never.
func (c *Corrected) SampledAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sampledAt
}

// Sample queries every configured server once and applies the median offset.
// A failed pass keeps the previous offset.
func (c *Corrected) Sample(ctx context.Context) error {
	offsets := make([]time.Duration, 0, len(c.servers))
	var lastErr error
	for _, server := range c.servers {
		offset, err := c.sampleServer(ctx, server)
		if err != nil {
			lastErr = err
			c.logger.Debug("clock sample failed", logging.String("server", server), logging.Error(err))
			continue
		}
		offsets = append(offsets, offset)
	}
	if len(offsets) == 0 {
		if lastErr == nil {
			lastErr = errors.New("no clock servers configured")
		}
		return fmt.Errorf("sample clock offset: %w", lastErr)
	}

	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })
	median := offsets[len(offsets)/2]

	c.mu.Lock()
	previous := c.offset
	c.offset = median
	c.sampledAt = time.Now()
	c.mu.Unlock()

	if diff := median - previous; diff > time.Second || diff < -time.Second {
		c.logger.Info("clock offset updated",
			logging.Duration("offset", median),
			logging.Int("samples", len(offsets)))
	}
	return nil
}

// Run refreshes the offset on a fixed interval until the context is done.
func (c *Corrected) Run(ctx context.Context) {
	if err := c.Sample(ctx); err != nil {
		c.logger.Warn("initial clock sample failed, using system time", logging.Error(err))
	}
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Sample(ctx); err != nil {
				c.logger.Warn("clock sample failed", logging.Error(err))
			}
		}
	}
}

func (c *Corrected) sampleServer(ctx context.Context, server string) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, server, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	rtt := time.Since(start)

	// Any response carries a usable Date header, even an error status.
	dateHeader := resp.Header.Get("Date")
	if dateHeader == "" {
		return 0, fmt.Errorf("no date header from %s", server)
	}
	serverTime, err := http.ParseTime(dateHeader)
	if err != nil {
		return 0, fmt.Errorf("parse date header: %w", err)
	}

	local := start.Add(rtt / 2)
	return serverTime.Sub(local), nil
}
