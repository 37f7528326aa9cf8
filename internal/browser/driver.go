package browser

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/eng540/Falsniper/internal/logging"
)

// Options configure a Driver.
type Options struct {
	Headless          bool
	UserAgent         string
	Width             int
	Height            int
	Proxy             string
	NavigationTimeout time.Duration
}

// Driver owns one headless browser instance. Each worker holds exactly one
// Driver; nothing here is safe for concurrent use by multiple workers.
type Driver struct {
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	opts          Options
	logger        *slog.Logger
}

// New launches a browser. The allocator is parented on ctx, so cancelling it
// tears the browser down with everything else.
func New(ctx context.Context, opts Options, logger *slog.Logger) (*Driver, error) {
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = 25 * time.Second
	}

	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts,
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-first-run", true),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.Width > 0 && opts.Height > 0 {
		allocOpts = append(allocOpts, chromedp.WindowSize(opts.Width, opts.Height))
	}
	if opts.Proxy != "" {
		allocOpts = append(allocOpts, chromedp.ProxyServer(opts.Proxy))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	d := &Driver{
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		opts:          opts,
		logger:        logging.NewComponentLogger(logger, "browser"),
	}

	// Start the browser process now so launch failures surface here instead
	// of on the first navigation.
	if err := chromedp.Run(browserCtx); err != nil {
		d.Close()
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	return d, nil
}

// Close shuts the browser down.
func (d *Driver) Close() {
	if d.browserCancel != nil {
		d.browserCancel()
	}
	if d.allocCancel != nil {
		d.allocCancel()
	}
}

// run executes chromedp actions bounded by timeout, honouring caller
// cancellation.
func (d *Driver) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tctx, cancel := context.WithTimeout(d.browserCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(tctx, actions...)
}

// Reset wipes cookies and parks the browser on a blank page, giving the next
// session a clean identity without paying for a process relaunch.
func (d *Driver) Reset(ctx context.Context) error {
	err := d.run(ctx, d.opts.NavigationTimeout,
		network.ClearBrowserCookies(),
		chromedp.Navigate("about:blank"),
	)
	if err != nil {
		return fmt.Errorf("reset browser: %w", err)
	}
	return nil
}

// Navigate loads a URL and waits for the document to become ready. The
// timeout is the caller's business: healthy sessions get the full window,
// degraded ones a shorter one.
func (d *Driver) Navigate(ctx context.Context, pageURL string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = d.opts.NavigationTimeout
	}
	err := d.run(ctx, timeout,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("navigate %s: %w", trimURL(pageURL), err)
	}
	return nil
}

// Location returns the current page URL.
func (d *Driver) Location(ctx context.Context) (string, error) {
	var current string
	if err := d.run(ctx, 5*time.Second, chromedp.Location(&current)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return current, nil
}

// PageHTML returns the full serialized document.
func (d *Driver) PageHTML(ctx context.Context) (string, error) {
	var html string
	if err := d.run(ctx, 10*time.Second, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read page html: %w", err)
	}
	return html, nil
}

// CollectLinks gathers href attributes matched by any of the selectors,
// resolved against the current page URL and deduplicated in document order.
func (d *Driver) CollectLinks(ctx context.Context, selectors []string) ([]string, error) {
	base, err := d.Location(ctx)
	if err != nil {
		return nil, err
	}

	var hrefs []string
	for _, selector := range selectors {
		var nodes []*cdp.Node
		err := d.run(ctx, 5*time.Second,
			chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)),
		)
		if err != nil {
			return nil, fmt.Errorf("query %q: %w", selector, err)
		}
		for _, node := range nodes {
			if href := node.AttributeValue("href"); href != "" {
				hrefs = append(hrefs, href)
			}
		}
		if len(hrefs) > 0 {
			break
		}
	}
	return ResolveLinks(base, hrefs), nil
}

// Visible reports whether a selector is present and visible, giving the page
// up to wait to settle.
func (d *Driver) Visible(ctx context.Context, selector string, wait time.Duration) bool {
	if wait <= 0 {
		wait = time.Second
	}
	err := d.run(ctx, wait, chromedp.WaitVisible(selector, chromedp.ByQuery))
	return err == nil
}

// Fill clears a field and types the value into it.
func (d *Driver) Fill(ctx context.Context, selector, value string) error {
	err := d.run(ctx, 10*time.Second,
		chromedp.SetValue(selector, "", chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("fill %q: %w", selector, err)
	}
	return nil
}

// Value reads the current value of a form field.
func (d *Driver) Value(ctx context.Context, selector string) (string, error) {
	var value string
	err := d.run(ctx, 3*time.Second, chromedp.Value(selector, &value, chromedp.ByQuery))
	if err != nil {
		return "", fmt.Errorf("read value %q: %w", selector, err)
	}
	return value, nil
}

// FillIfPresent fills a field when the selector exists, reporting whether it
// did. Profiles list selector variants for the same logical field, so an
// absent selector is routine.
func (d *Driver) FillIfPresent(ctx context.Context, selector, value string) (bool, error) {
	var nodes []*cdp.Node
	err := d.run(ctx, 3*time.Second,
		chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)),
	)
	if err != nil {
		return false, fmt.Errorf("probe %q: %w", selector, err)
	}
	if len(nodes) == 0 {
		return false, nil
	}
	if err := d.Fill(ctx, selector, value); err != nil {
		return false, err
	}
	return true, nil
}

// Click clicks the first visible match for selector.
func (d *Driver) Click(ctx context.Context, selector string) error {
	err := d.run(ctx, 10*time.Second,
		chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible),
	)
	if err != nil {
		return fmt.Errorf("click %q: %w", selector, err)
	}
	return nil
}

// ClickFirst tries selectors in order and clicks the first one visible,
// returning the selector used.
func (d *Driver) ClickFirst(ctx context.Context, selectors []string) (string, error) {
	for _, selector := range selectors {
		if !d.Visible(ctx, selector, time.Second) {
			continue
		}
		if err := d.Click(ctx, selector); err != nil {
			logging.WithContext(ctx, d.logger).Debug("click failed, trying next selector",
				logging.String("selector", selector), logging.Error(err))
			continue
		}
		return selector, nil
	}
	return "", fmt.Errorf("no clickable element among %d selectors", len(selectors))
}

// SubmitWithEnter presses Enter inside the selector, the fallback when no
// submit button is found.
func (d *Driver) SubmitWithEnter(ctx context.Context, selector string) error {
	err := d.run(ctx, 5*time.Second,
		chromedp.SendKeys(selector, "\r", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("submit with enter: %w", err)
	}
	return nil
}

// SelectIndex picks an option by index on the first matching select element.
func (d *Driver) SelectIndex(ctx context.Context, selector string, index int) error {
	script := fmt.Sprintf(`(function() {
		var el = document.querySelector(%q);
		if (!el || el.options.length === 0) { return false; }
		var idx = %d;
		if (idx >= el.options.length) { idx = el.options.length - 1; }
		el.selectedIndex = idx;
		el.dispatchEvent(new Event('change', {bubbles: true}));
		return true;
	})()`, selector, index)

	var ok bool
	if err := d.run(ctx, 5*time.Second, chromedp.Evaluate(script, &ok)); err != nil {
		return fmt.Errorf("select option: %w", err)
	}
	if !ok {
		return fmt.Errorf("select %q not found", selector)
	}
	return nil
}

// SelectOption picks the first option whose text contains label, matched
// case-insensitively. It reports whether a match was selected.
func (d *Driver) SelectOption(ctx context.Context, selector, label string) (bool, error) {
	script := fmt.Sprintf(`(function() {
		var el = document.querySelector(%q);
		if (!el) { return false; }
		var needle = %q.toLowerCase();
		for (var i = 0; i < el.options.length; i++) {
			if (el.options[i].text.toLowerCase().indexOf(needle) !== -1) {
				el.selectedIndex = i;
				el.dispatchEvent(new Event('change', {bubbles: true}));
				return true;
			}
		}
		return false;
	})()`, selector, label)

	var ok bool
	if err := d.run(ctx, 5*time.Second, chromedp.Evaluate(script, &ok)); err != nil {
		return false, fmt.Errorf("select option %q: %w", label, err)
	}
	return ok, nil
}

// Screenshot captures the full viewport as PNG.
func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := d.run(ctx, 10*time.Second, chromedp.FullScreenshot(&buf, 90)); err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return buf, nil
}

// ElementScreenshot captures a single element, used to hand captcha images
// to the solver.
func (d *Driver) ElementScreenshot(ctx context.Context, selector string) ([]byte, error) {
	var buf []byte
	err := d.run(ctx, 10*time.Second,
		chromedp.Screenshot(selector, &buf, chromedp.NodeVisible, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("element screenshot %q: %w", selector, err)
	}
	return buf, nil
}

// ResolveLinks resolves hrefs against a base URL, dropping duplicates and
// fragments while preserving document order.
func ResolveLinks(base string, hrefs []string) []string {
	baseURL, err := url.Parse(base)
	if err != nil {
		baseURL = nil
	}

	seen := make(map[string]struct{}, len(hrefs))
	resolved := make([]string, 0, len(hrefs))
	for _, href := range hrefs {
		trimmed := strings.TrimSpace(href)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(strings.ToLower(trimmed), "javascript:") {
			continue
		}
		target := trimmed
		if baseURL != nil {
			if ref, err := url.Parse(trimmed); err == nil {
				target = baseURL.ResolveReference(ref).String()
			}
		}
		if _, ok := seen[target]; ok {
			continue
		}
		seen[target] = struct{}{}
		resolved = append(resolved, target)
	}
	return resolved
}

func trimURL(pageURL string) string {
	const max = 80
	if len(pageURL) <= max {
		return pageURL
	}
	return pageURL[:max] + "..."
}
