package engine

import (
	"context"
	"time"
)

// Pager is the page-driver capability the engine needs. browser.Driver is
// the production implementation; tests substitute a scripted fake. Every
// worker owns its Pager exclusively.
type Pager interface {
	Navigate(ctx context.Context, pageURL string, timeout time.Duration) error
	Location(ctx context.Context) (string, error)
	PageHTML(ctx context.Context) (string, error)
	CollectLinks(ctx context.Context, selectors []string) ([]string, error)
	Visible(ctx context.Context, selector string, wait time.Duration) bool
	Value(ctx context.Context, selector string) (string, error)
	Fill(ctx context.Context, selector, value string) error
	FillIfPresent(ctx context.Context, selector, value string) (bool, error)
	Click(ctx context.Context, selector string) error
	ClickFirst(ctx context.Context, selectors []string) (string, error)
	SubmitWithEnter(ctx context.Context, selector string) error
	SelectIndex(ctx context.Context, selector string, index int) error
	SelectOption(ctx context.Context, selector, label string) (bool, error)
	Screenshot(ctx context.Context) ([]byte, error)
	ElementScreenshot(ctx context.Context, selector string) ([]byte, error)
	Reset(ctx context.Context) error
	Close()
}

// PagerFactory builds the exclusive page driver for one worker. Index 0 is
// the scout; attackers follow in order.
type PagerFactory func(ctx context.Context, index int) (Pager, error)
