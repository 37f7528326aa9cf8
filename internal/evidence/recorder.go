package evidence

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/eng540/Falsniper/internal/clock"
	"github.com/eng540/Falsniper/internal/config"
	"github.com/eng540/Falsniper/internal/fileutil"
	"github.com/eng540/Falsniper/internal/logging"
)

// bookedDirName holds confirmation proof; it is exempt from pruning.
const bookedDirName = "booked"

// Recorder writes page captures to disk: throwaway diagnostics that age out,
// and booking proof that is kept forever.
type Recorder struct {
	dir    string
	maxAge time.Duration
	clock  clock.Clock
	logger *slog.Logger
}

// NewRecorder prepares the evidence directories.
func NewRecorder(cfg *config.Config, clk clock.Clock, logger *slog.Logger) (*Recorder, error) {
	dir := cfg.Paths.EvidenceDir
	if err := os.MkdirAll(filepath.Join(dir, bookedDirName), 0o755); err != nil {
		return nil, fmt.Errorf("create evidence dir: %w", err)
	}
	if clk == nil {
		clk = clock.System()
	}
	return &Recorder{
		dir:    dir,
		maxAge: cfg.EvidenceMaxAge(),
		clock:  clk,
		logger: logging.NewComponentLogger(logger, "evidence"),
	}, nil
}

// CaptureDiagnostic stores a screenshot and page source for later debugging.
// Either part may be empty. Failures are logged, not returned; losing a
// diagnostic never aborts the flow that produced it.
func (r *Recorder) CaptureDiagnostic(worker, label string, screenshot []byte, html string) string {
	base := r.baseName(worker, label)
	var pngPath string
	if len(screenshot) > 0 {
		pngPath = filepath.Join(r.dir, base+".png")
		if err := os.WriteFile(pngPath, screenshot, 0o644); err != nil {
			r.logger.Warn("write screenshot failed", logging.String("path", pngPath), logging.Error(err))
			pngPath = ""
		} else {
			r.logger.Debug("diagnostic captured",
				logging.String("path", pngPath),
				logging.String("size", humanize.Bytes(uint64(len(screenshot)))))
		}
	}
	if html != "" {
		htmlPath := filepath.Join(r.dir, base+".html")
		if err := os.WriteFile(htmlPath, []byte(html), 0o644); err != nil {
			r.logger.Warn("write page source failed", logging.String("path", htmlPath), logging.Error(err))
		}
	}
	return pngPath
}

// CaptureBooking preserves the confirmation page. The screenshot goes
// through a verified copy into the booked directory; this is the artifact
// the whole run exists for.
func (r *Recorder) CaptureBooking(worker string, screenshot []byte, html string) (string, error) {
	if len(screenshot) == 0 {
		return "", fmt.Errorf("booking capture without screenshot")
	}
	base := r.baseName(worker, "booked")

	tmp := filepath.Join(r.dir, base+".tmp")
	if err := os.WriteFile(tmp, screenshot, 0o644); err != nil {
		return "", fmt.Errorf("stage booking screenshot: %w", err)
	}
	defer os.Remove(tmp)

	final := filepath.Join(r.dir, bookedDirName, base+".png")
	if err := fileutil.CopyVerified(tmp, final); err != nil {
		return "", fmt.Errorf("preserve booking screenshot: %w", err)
	}

	if html != "" {
		htmlPath := filepath.Join(r.dir, bookedDirName, base+".html")
		if err := os.WriteFile(htmlPath, []byte(html), 0o644); err != nil {
			r.logger.Warn("write confirmation source failed", logging.String("path", htmlPath), logging.Error(err))
		}
	}

	r.logger.Info("booking proof preserved",
		logging.String("path", final),
		logging.String("size", humanize.Bytes(uint64(len(screenshot)))))
	return final, nil
}

// SaveStats writes a run statistics snapshot beside the diagnostics so a
// finished run leaves a machine-readable record of what it did.
func (r *Recorder) SaveStats(runID string, snapshot any) (string, error) {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode stats snapshot: %w", err)
	}
	path := filepath.Join(r.dir, r.baseName(runID, "stats")+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write stats snapshot: %w", err)
	}
	r.logger.Debug("stats snapshot written", logging.String("path", path))
	return path, nil
}

// Prune removes diagnostics older than the configured retention. Booking
// proof is never touched. Returns how many files were removed.
func (r *Recorder) Prune() (int, error) {
	if r.maxAge <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return 0, fmt.Errorf("read evidence dir: %w", err)
	}

	cutoff := r.clock.Now().Add(-r.maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(r.dir, entry.Name())
		if err := os.Remove(path); err != nil {
			r.logger.Warn("prune failed", logging.String("path", path), logging.Error(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		r.logger.Info("pruned old diagnostics", logging.Int("removed", removed))
	}
	return removed, nil
}

func (r *Recorder) baseName(worker, label string) string {
	ts := r.clock.Now().UTC().Format("20060102-150405.000")
	ts = strings.ReplaceAll(ts, ".", "-")
	return ts + "_" + sanitize(worker) + "_" + sanitize(label)
}

// sanitize keeps names shell- and filesystem-friendly.
func sanitize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "unknown"
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "unknown"
	}
	return out
}
