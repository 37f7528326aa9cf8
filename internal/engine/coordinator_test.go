package engine_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/eng540/Falsniper/internal/config"
	"github.com/eng540/Falsniper/internal/engine"
	"github.com/eng540/Falsniper/internal/journal"
	"github.com/eng540/Falsniper/internal/logging"
	"github.com/eng540/Falsniper/internal/profile"
	"github.com/eng540/Falsniper/internal/testsupport"
)

const (
	fakeDayURL    = "https://service.example.org/extern/appointment_showDay.do?dateStr=01.07.2025"
	fakeSlotURL   = "https://service.example.org/extern/appointment_showForm.do?slot=0900"
	fakeBookedURL = "https://service.example.org/extern/appointment_booked.do?nr=4711"
	fakeFullURL   = "https://service.example.org/extern/appointment_full.do"
)

// fakeSite is the shared scripted booking backend. The first submit wins
// the slot; everyone after that lands on the no-slots page, the way the
// real server settles a race.
type fakeSite struct {
	mu       sync.Mutex
	daysOpen bool
	panics   int
	winner   string
	submits  int
}

func newFakeSite(daysOpen bool) *fakeSite {
	return &fakeSite{daysOpen: daysOpen}
}

func (s *fakeSite) factory() engine.PagerFactory {
	return func(_ context.Context, index int) (engine.Pager, error) {
		id := "scout"
		if index > 0 {
			id = fmt.Sprintf("attacker-%d", index)
		}
		return &fakePager{site: s, worker: id}, nil
	}
}

func (s *fakeSite) dayLinks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panics > 0 {
		s.panics--
		panic("scripted page explosion")
	}
	if !s.daysOpen {
		return nil
	}
	return []string{fakeDayURL}
}

func (s *fakeSite) slotLinks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.daysOpen {
		return nil
	}
	return []string{fakeSlotURL}
}

func (s *fakeSite) submit(worker string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submits++
	if s.winner == "" {
		s.winner = worker
		return fakeBookedURL
	}
	return fakeFullURL
}

func (s *fakeSite) state() (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.winner, s.submits
}

// fakePager walks the scripted site. Each instance belongs to exactly one
// worker goroutine, so only the site needs locking.
type fakePager struct {
	site    *fakeSite
	worker  string
	current string
}

func (p *fakePager) page() string {
	switch {
	case strings.Contains(p.current, "showMonth"):
		return "month"
	case strings.Contains(p.current, "showDay"):
		return "day"
	case strings.Contains(p.current, "showForm"):
		return "form"
	case strings.Contains(p.current, "booked"):
		return "booked"
	case strings.Contains(p.current, "full"):
		return "full"
	default:
		return "blank"
	}
}

func (p *fakePager) Navigate(ctx context.Context, pageURL string, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.current = pageURL
	return nil
}

func (p *fakePager) Location(context.Context) (string, error) { return p.current, nil }

func (p *fakePager) PageHTML(context.Context) (string, error) {
	switch p.page() {
	case "booked":
		return "<html><body><h2>Vielen Dank</h2><p>Ihr Termin wurde gebucht. Terminnummer 4711.</p></body></html>", nil
	case "full":
		return "<html><body><p>Leider sind keine Termine verfuegbar.</p></body></html>", nil
	case "form":
		return "<html><body><form><input name='lastname'/></form></body></html>", nil
	default:
		return "<html><body>Kalender</body></html>", nil
	}
}

func (p *fakePager) CollectLinks(_ context.Context, selectors []string) ([]string, error) {
	wantsDays := false
	wantsSlots := false
	for _, sel := range selectors {
		if strings.Contains(sel, "showDay") {
			wantsDays = true
		}
		if strings.Contains(sel, "showForm") {
			wantsSlots = true
		}
	}
	switch {
	case p.page() == "month" && wantsDays:
		return p.site.dayLinks(), nil
	case p.page() == "day" && wantsSlots:
		return p.site.slotLinks(), nil
	default:
		return nil, nil
	}
}

func (p *fakePager) Visible(_ context.Context, selector string, _ time.Duration) bool {
	if strings.Contains(selector, "captcha") {
		return false
	}
	return p.page() == "form" && strings.HasPrefix(selector, "input[name=")
}

func (p *fakePager) Value(context.Context, string) (string, error) {
	if p.page() == "form" {
		return "", nil
	}
	return "", errors.New("fake: no such element")
}

func (p *fakePager) Fill(_ context.Context, selector, _ string) error {
	if p.page() != "form" {
		return fmt.Errorf("fake: fill %s outside form", selector)
	}
	return nil
}

func (p *fakePager) FillIfPresent(_ context.Context, selector, _ string) (bool, error) {
	if p.page() != "form" {
		return false, nil
	}
	return strings.HasPrefix(selector, "input[name="), nil
}

func (p *fakePager) Click(_ context.Context, selector string) error {
	if p.page() != "form" {
		return fmt.Errorf("fake: click %s outside form", selector)
	}
	return nil
}

func (p *fakePager) ClickFirst(_ context.Context, selectors []string) (string, error) {
	if p.page() != "form" || len(selectors) == 0 {
		return "", errors.New("fake: nothing clickable")
	}
	p.current = p.site.submit(p.worker)
	return selectors[0], nil
}

func (p *fakePager) SubmitWithEnter(context.Context, string) error {
	if p.page() != "form" {
		return errors.New("fake: no form to submit")
	}
	p.current = p.site.submit(p.worker)
	return nil
}

func (p *fakePager) SelectIndex(_ context.Context, _ string, _ int) error {
	if p.page() != "form" {
		return errors.New("fake: no select element")
	}
	return nil
}

func (p *fakePager) SelectOption(_ context.Context, _ string, _ string) (bool, error) {
	if p.page() != "form" {
		return false, errors.New("fake: no select element")
	}
	return true, nil
}

func (p *fakePager) Screenshot(context.Context) ([]byte, error) {
	return []byte("png-bytes"), nil
}

func (p *fakePager) ElementScreenshot(context.Context, string) ([]byte, error) {
	return []byte("challenge-bytes"), nil
}

func (p *fakePager) Reset(context.Context) error {
	p.current = ""
	return nil
}

func (p *fakePager) Close() {}

// fastConfig shrinks every sleep so a full run finishes in milliseconds.
func fastConfig(t *testing.T, attackers int) *config.Config {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithAttackers(attackers))
	cfg.Timing.Timezone = "UTC"
	cfg.Timing.PatrolSleepMinMS = 1
	cfg.Timing.PatrolSleepMaxMS = 2
	cfg.Timing.WarmupSleepMS = 1
	cfg.Timing.PreAttackSleepMS = 1
	cfg.Timing.AttackSleepMinMS = 1
	cfg.Timing.AttackSleepMaxMS = 2
	cfg.Workers.DiscoveryWaitSeconds = 0
	cfg.Workers.MaxCycles = 25
	cfg.Submit.MaxAttempts = 3
	return cfg
}

func newTestCoordinator(t *testing.T, cfg *config.Config, site *fakeSite) (*engine.Coordinator, *journal.Store) {
	t.Helper()
	store := testsupport.MustOpenJournal(t, cfg)
	prof := profile.Default()
	coord, err := engine.New(cfg, &prof, store, logging.NewNop(),
		engine.WithPagerFactory(site.factory()))
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return coord, store
}

func runToCompletion(t *testing.T, coord *engine.Coordinator) *engine.RunResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	res, err := coord.Run(ctx)
	if err != nil {
		t.Fatalf("coordinator run: %v", err)
	}
	return res
}

func eventsByKind(t *testing.T, store *journal.Store, runID string) map[string][]*journal.Event {
	t.Helper()
	events, err := store.EventsForRun(context.Background(), runID, 500)
	if err != nil {
		t.Fatalf("EventsForRun: %v", err)
	}
	byKind := make(map[string][]*journal.Event)
	for _, ev := range events {
		byKind[ev.Kind] = append(byKind[ev.Kind], ev)
	}
	return byKind
}

func TestRunBooksFirstOpenSlot(t *testing.T) {
	site := newFakeSite(true)
	cfg := fastConfig(t, 1)
	coord, store := newTestCoordinator(t, cfg, site)

	res := runToCompletion(t, coord)

	if res.Outcome != journal.OutcomeBooked {
		t.Fatalf("outcome = %s, want booked", res.Outcome)
	}
	if res.Booked == nil {
		t.Fatal("expected a booked result")
	}
	// The scout never claims; with one attacker the winner is known.
	if res.Booked.Worker != "attacker-1" {
		t.Fatalf("booked by %s, want attacker-1", res.Booked.Worker)
	}
	if res.Booked.PageURL != fakeBookedURL {
		t.Fatalf("booked url = %s, want %s", res.Booked.PageURL, fakeBookedURL)
	}

	winner, submits := site.state()
	if winner != "attacker-1" {
		t.Fatalf("site winner = %q, want attacker-1", winner)
	}
	if submits != 1 {
		t.Fatalf("site saw %d submits, want 1", submits)
	}

	byKind := eventsByKind(t, store, res.RunID)
	if got := len(byKind[journal.KindBooked]); got != 1 {
		t.Fatalf("booked events = %d, want exactly 1", got)
	}
	if len(byKind[journal.KindClaim]) == 0 {
		t.Fatal("expected at least one claim event")
	}

	run, err := store.GetRun(context.Background(), res.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Outcome != journal.OutcomeBooked || run.BookedBy != "attacker-1" {
		t.Fatalf("journal run = (%s, %s), want (booked, attacker-1)", run.Outcome, run.BookedBy)
	}
	if !run.Finished() {
		t.Fatal("expected the run row to be closed out")
	}
}

func TestRunExhaustsWhenNothingOpens(t *testing.T) {
	site := newFakeSite(false)
	cfg := fastConfig(t, 1)
	cfg.Workers.MaxCycles = 3
	coord, store := newTestCoordinator(t, cfg, site)

	res := runToCompletion(t, coord)

	if res.Outcome != journal.OutcomeExhausted {
		t.Fatalf("outcome = %s, want exhausted", res.Outcome)
	}
	if res.Booked != nil {
		t.Fatalf("unexpected booking: %+v", res.Booked)
	}
	if res.Stats.Claims != 0 {
		t.Fatalf("claims = %d, want 0 with no open days", res.Stats.Claims)
	}
	if res.Stats.Scans == 0 {
		t.Fatal("expected scans to be recorded")
	}

	byKind := eventsByKind(t, store, res.RunID)
	// Scout plus one attacker, each retiring on the cycle budget.
	if got := len(byKind[journal.KindWorkerExit]); got != 2 {
		t.Fatalf("worker_exit events = %d, want 2", got)
	}
}

func TestRunSurvivesWorkerPanic(t *testing.T) {
	site := newFakeSite(true)
	site.panics = 1

	// Scout only: the run stays alive past the panic, so the recovery
	// trail is fully journaled before anything cancels the context.
	cfg := fastConfig(t, 0)
	cfg.Workers.MaxCycles = 4
	coord, store := newTestCoordinator(t, cfg, site)

	res := runToCompletion(t, coord)

	if res.Outcome != journal.OutcomeExhausted {
		t.Fatalf("outcome = %s, want exhausted (the scout never books)", res.Outcome)
	}
	if res.Stats.Rebirths == 0 {
		t.Fatal("expected rebirth counter to move")
	}

	byKind := eventsByKind(t, store, res.RunID)
	if len(byKind[journal.KindPanic]) == 0 {
		t.Fatal("expected a panic event in the journal")
	}
	if len(byKind[journal.KindRebirth]) == 0 {
		t.Fatal("expected the panicking worker to be reborn")
	}
	// Work continued after the rebirth: the scout went on to publish.
	if len(byKind[journal.KindTargetFound]) == 0 {
		t.Fatal("expected target discovery to resume after the rebirth")
	}
}

func TestRunSingleWinnerAcrossAttackers(t *testing.T) {
	site := newFakeSite(true)
	cfg := fastConfig(t, 2)
	coord, store := newTestCoordinator(t, cfg, site)

	res := runToCompletion(t, coord)

	if res.Outcome != journal.OutcomeBooked {
		t.Fatalf("outcome = %s, want booked", res.Outcome)
	}
	winner, _ := site.state()
	if res.Booked == nil || res.Booked.Worker != winner {
		t.Fatalf("booked worker %v disagrees with site winner %q", res.Booked, winner)
	}
	if !strings.HasPrefix(winner, "attacker-") {
		t.Fatalf("winner = %q, want an attacker", winner)
	}

	byKind := eventsByKind(t, store, res.RunID)
	if got := len(byKind[journal.KindBooked]); got != 1 {
		t.Fatalf("booked events = %d, want exactly 1", got)
	}

	run, err := store.GetRun(context.Background(), res.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.BookedBy != winner {
		t.Fatalf("journal booked_by = %q, want %q", run.BookedBy, winner)
	}
}

func TestCoordinatorRunsOnce(t *testing.T) {
	site := newFakeSite(false)
	cfg := fastConfig(t, 0)
	cfg.Workers.MaxCycles = 1
	coord, _ := newTestCoordinator(t, cfg, site)

	runToCompletion(t, coord)

	if _, err := coord.Run(context.Background()); err == nil {
		t.Fatal("expected second run to be rejected")
	}
}

func TestRunAbortsOnContextCancel(t *testing.T) {
	site := newFakeSite(false)
	cfg := fastConfig(t, 1)
	cfg.Workers.MaxCycles = 0 // no budget, workers run until canceled
	coord, _ := newTestCoordinator(t, cfg, site)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(150 * time.Millisecond)
		cancel()
	}()

	res, err := coord.Run(ctx)
	if err != nil {
		t.Fatalf("coordinator run: %v", err)
	}
	if res.Outcome != journal.OutcomeAborted {
		t.Fatalf("outcome = %s, want aborted", res.Outcome)
	}
	if res.Booked != nil {
		t.Fatalf("unexpected booking: %+v", res.Booked)
	}
}
