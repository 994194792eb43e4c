package cdpmux

import (
	"context"
	"sync"

	"github.com/nilsrask/cdpmux/router"
	"github.com/nilsrask/cdpmux/session"
)

// TargetInfo is the subset of CDP's TargetInfo this core cares about: just
// enough to decide page-ness and let a caller display/compare tabs. No
// other CDP type surface is exposed, per spec.md §1's Non-goals.
type TargetInfo struct {
	TargetID         string
	Type             string
	Title            string
	URL              string
	BrowserContextID string
}

// Tab is a handle to one attached page target. It attaches lazily: no
// Target.attachToTarget call is made until the first Call or Events use,
// per spec.md §4.5.
type Tab struct {
	browser  *Browser
	targetID string

	mu      sync.RWMutex
	info    TargetInfo
	session *session.Session
}

func newTab(b *Browser, wi wireTargetInfo) *Tab {
	return &Tab{
		browser:  b,
		targetID: wi.TargetID,
		info:     targetInfoFromWire(wi),
	}
}

func targetInfoFromWire(wi wireTargetInfo) TargetInfo {
	return TargetInfo{
		TargetID:         wi.TargetID,
		Type:             wi.Type,
		Title:            wi.Title,
		URL:              wi.URL,
		BrowserContextID: wi.BrowserContextID,
	}
}

func (t *Tab) updateInfo(wi wireTargetInfo) {
	t.mu.Lock()
	t.info = targetInfoFromWire(wi)
	t.mu.Unlock()
}

// TargetID returns the tab's stable target ID.
func (t *Tab) TargetID() string { return t.targetID }

// Info returns the tab's latest known TargetInfo.
func (t *Tab) Info() TargetInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.info
}

// ensureSession attaches on first use and reuses the session afterward.
func (t *Tab) ensureSession(ctx context.Context) (*session.Session, error) {
	t.mu.RLock()
	s := t.session
	t.mu.RUnlock()
	if s != nil {
		return s, nil
	}

	s, err := t.browser.sessions.Attach(ctx, t.targetID)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.session = s
	t.mu.Unlock()
	return s, nil
}

// Call issues a session-scoped CDP call against this tab, attaching first
// if necessary.
func (t *Tab) Call(ctx context.Context, method string, params, res any) error {
	s, err := t.ensureSession(ctx)
	if err != nil {
		return err
	}
	return t.browser.tr.CallOnTarget(ctx, s.ID, method, params, res)
}

// Events returns this tab's event subscription, attaching first if
// necessary.
func (t *Tab) Events(ctx context.Context) (*router.Subscription, error) {
	s, err := t.ensureSession(ctx)
	if err != nil {
		return nil, err
	}
	return t.browser.tr.ListenTarget(s.ID), nil
}

// Close detaches this tab's session, if any, and asks Chrome to close the
// target.
func (t *Tab) Close(ctx context.Context) error {
	t.mu.RLock()
	s := t.session
	t.mu.RUnlock()
	if s != nil {
		_ = t.browser.sessions.Detach(ctx, s.ID)
	}
	return t.browser.tr.CallOnBrowser(ctx, "Target.closeTarget", map[string]any{"targetId": t.targetID}, nil)
}
