package cdpmux

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

type stringReadCloser struct {
	io.Reader
}

func (stringReadCloser) Close() error { return nil }

func TestReadWebSocketURLFindsTheLine(t *testing.T) {
	t.Parallel()

	rc := stringReadCloser{strings.NewReader(
		"[1234:1234:INFO] starting up\n" +
			"DevTools listening on ws://127.0.0.1:9222/devtools/browser/abc-123\n" +
			"more noise that should never be read\n",
	)}

	url, err := readWebSocketURL(rc, nil)
	if err != nil {
		t.Fatal(err)
	}
	if url != "ws://127.0.0.1:9222/devtools/browser/abc-123" {
		t.Fatalf("got %q", url)
	}
}

func TestReadWebSocketURLForwardsOutput(t *testing.T) {
	t.Parallel()

	rc := stringReadCloser{strings.NewReader(
		"DevTools listening on ws://127.0.0.1:9222/devtools/browser/abc-123\nafter\n",
	)}
	var forwarded bytes.Buffer

	if _, err := readWebSocketURL(rc, &forwarded); err != nil {
		t.Fatal(err)
	}
	// Only the matched line is asserted: forwarding after it happens in a
	// background copy goroutine and is best-effort.
	if !bytes.Contains(forwarded.Bytes(), []byte("DevTools listening on")) {
		t.Fatalf("expected the matched line itself to have been forwarded, got %q", forwarded.String())
	}
}

func TestReadWebSocketURLErrorsWhenChromeExitsFirst(t *testing.T) {
	t.Parallel()

	rc := stringReadCloser{strings.NewReader("chrome crashed immediately\n")}
	if _, err := readWebSocketURL(rc, nil); err == nil {
		t.Fatal("expected an error when EOF arrives before the websocket url line")
	}
}

func TestFlagOptionSetsValue(t *testing.T) {
	t.Parallel()

	cfg := &execConfig{flags: make(map[string]any)}
	Flag("no-sandbox", true)(cfg)
	if v, _ := cfg.flags["no-sandbox"].(bool); !v {
		t.Fatal("expected no-sandbox to be set true")
	}
}

func TestHeadlessSetsExpectedFlags(t *testing.T) {
	t.Parallel()

	cfg := &execConfig{flags: make(map[string]any)}
	Headless(cfg)
	for _, name := range []string{"headless", "hide-scrollbars", "mute-audio"} {
		if v, _ := cfg.flags[name].(bool); !v {
			t.Fatalf("expected %s to be set", name)
		}
	}
}

func TestWindowSizeFormatsFlag(t *testing.T) {
	t.Parallel()

	cfg := &execConfig{flags: make(map[string]any)}
	WindowSize(1024, 768)(cfg)
	if cfg.flags["window-size"] != "1024,768" {
		t.Fatalf("got %v", cfg.flags["window-size"])
	}
}

func TestFindExecPathHonorsBrowserEnv(t *testing.T) {
	t.Setenv("BROWSER", "sh")

	got := findExecPath()
	if !strings.HasSuffix(got, "sh") {
		t.Fatalf("got %q, want $BROWSER (sh) to take priority", got)
	}
}

func TestFindExecPathIgnoresUnresolvableBrowserEnv(t *testing.T) {
	t.Setenv("BROWSER", "this-binary-should-not-exist-anywhere")

	// Falls through to the normal candidate search rather than returning
	// the unresolvable $BROWSER value.
	if got := findExecPath(); got == "this-binary-should-not-exist-anywhere" {
		t.Fatalf("got %q, want fallback search to run", got)
	}
}
