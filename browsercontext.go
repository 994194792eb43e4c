package cdpmux

import "context"

// BrowserContext wraps a Target.createBrowserContext-scoped incognito
// window: new tabs created through it are isolated from the default
// profile and from each other's siblings, per spec.md §6's Browser.new_context.
type BrowserContext struct {
	browser *Browser
	id      string
}

// ID returns the underlying browserContextId.
func (c *BrowserContext) ID() string { return c.id }

// NewTab creates a tab scoped to this context.
func (c *BrowserContext) NewTab(ctx context.Context, url string) (*Tab, error) {
	return c.browser.newTabIn(ctx, url, c.id)
}

// Dispose tears down the context and every tab still open within it.
func (c *BrowserContext) Dispose(ctx context.Context) error {
	return c.browser.tr.CallOnBrowser(ctx, "Target.disposeBrowserContext", map[string]any{"browserContextId": c.id}, nil)
}
