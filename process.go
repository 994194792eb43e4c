package cdpmux

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// execConfig collects the flags and knobs ExecOption builds up before
// Launch spawns the child process. Grounded on the teacher's ExecAllocator
// in allocate.go, trimmed to the single-shot launch this core needs (no
// Allocator interface, since cdpmux.Browser doesn't pool processes itself —
// see the pool package for that).
type execConfig struct {
	execPath string
	flags    map[string]any
	env      []string

	combinedOutput io.Writer
}

// ExecOption configures a child Chrome process launch.
type ExecOption func(*execConfig)

// defaultExecOptions mirrors the teacher's DefaultExecAllocatorOptions,
// after Puppeteer's default flag set.
var defaultExecOptions = []ExecOption{
	NoFirstRun,
	NoDefaultBrowserCheck,
	Headless,
	Flag("disable-background-networking", true),
	Flag("enable-features", "NetworkService,NetworkServiceInProcess"),
	Flag("disable-background-timer-throttling", true),
	Flag("disable-backgrounding-occluded-windows", true),
	Flag("disable-breakpad", true),
	Flag("disable-client-side-phishing-detection", true),
	Flag("disable-default-apps", true),
	Flag("disable-dev-shm-usage", true),
	Flag("disable-extensions", true),
	Flag("disable-features", "site-per-process,TranslateUI,BlinkGenPropertyTrees"),
	Flag("disable-hang-monitor", true),
	Flag("disable-ipc-flooding-protection", true),
	Flag("disable-popup-blocking", true),
	Flag("disable-prompt-on-repost", true),
	Flag("disable-renderer-backgrounding", true),
	Flag("disable-sync", true),
	Flag("force-color-profile", "srgb"),
	Flag("metrics-recording-only", true),
	Flag("safebrowsing-disable-auto-update", true),
	Flag("enable-automation", true),
	Flag("password-store", "basic"),
	Flag("use-mock-keychain", true),
}

// Flag passes --name=value (or bare --name for a true bool) to Chrome.
func Flag(name string, value any) ExecOption {
	return func(c *execConfig) { c.flags[name] = value }
}

// ExecPath uses path to execute the browser process.
func ExecPath(path string) ExecOption {
	return func(c *execConfig) {
		if full, err := exec.LookPath(path); err == nil {
			c.execPath = full
		} else {
			c.execPath = path
		}
	}
}

// Env appends NAME=value entries to the child process's environment.
func Env(vars ...string) ExecOption {
	return func(c *execConfig) { c.env = append(c.env, vars...) }
}

// UserDataDir sets the Chrome profile directory explicitly; if never set,
// Launch creates and later removes a temporary one.
func UserDataDir(dir string) ExecOption { return Flag("user-data-dir", dir) }

// WindowSize sets the initial window size.
func WindowSize(width, height int) ExecOption {
	return Flag("window-size", fmt.Sprintf("%d,%d", width, height))
}

// NoSandbox disables the sandbox.
func NoSandbox(c *execConfig) { Flag("no-sandbox", true)(c) }

// NoFirstRun disables the first-run dialog.
func NoFirstRun(c *execConfig) { Flag("no-first-run", true)(c) }

// NoDefaultBrowserCheck disables the default-browser check.
func NoDefaultBrowserCheck(c *execConfig) { Flag("no-default-browser-check", true)(c) }

// Headless runs without a UI, hiding scrollbars and muting audio like
// Puppeteer's default.
func Headless(c *execConfig) {
	Flag("headless", true)(c)
	Flag("hide-scrollbars", true)(c)
	Flag("mute-audio", true)(c)
}

// CombinedOutput forwards the child process's stdout/stderr to w.
func CombinedOutput(w io.Writer) ExecOption {
	return func(c *execConfig) { c.combinedOutput = w }
}

// wsURLReadTimeout bounds how long Launch waits for Chrome to print its
// DevTools WebSocket URL before giving up, matching allocate.go.
const wsURLReadTimeout = 20 * time.Second

// process is a launched Chrome child and the cleanup Shutdown must run.
type process struct {
	cmd         *exec.Cmd
	userDataDir string
	removeDir   bool
}

// launchProcess starts a Chrome child process and returns it along with the
// DevTools WebSocket URL scraped from its stderr, mirroring
// ExecAllocator.Allocate in the teacher's allocate.go.
func launchProcess(ctx context.Context, opts ...ExecOption) (*process, string, error) {
	cfg := &execConfig{flags: make(map[string]any)}
	for _, o := range append(append([]ExecOption{}, defaultExecOptions...), opts...) {
		o(cfg)
	}
	if cfg.execPath == "" {
		cfg.execPath = findExecPath()
	}

	var args []string
	for name, value := range cfg.flags {
		switch v := value.(type) {
		case string:
			args = append(args, fmt.Sprintf("--%s=%s", name, v))
		case bool:
			if v {
				args = append(args, fmt.Sprintf("--%s", name))
			}
		default:
			return nil, "", fmt.Errorf("%w: invalid flag value for %q", ErrLaunchFailed, name)
		}
	}

	removeDir := false
	dataDir, ok := cfg.flags["user-data-dir"].(string)
	if !ok {
		tempDir, err := os.MkdirTemp("", "cdpmux-")
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrLaunchFailed, err)
		}
		args = append(args, "--user-data-dir="+tempDir)
		dataDir = tempDir
		removeDir = true
	}
	if _, ok := cfg.flags["no-sandbox"]; !ok && os.Getuid() == 0 {
		args = append(args, "--no-sandbox")
	}
	if _, ok := cfg.flags["remote-debugging-port"]; !ok {
		args = append(args, "--remote-debugging-port=0")
	}
	args = append(args, "about:blank")

	cmd := exec.CommandContext(ctx, cfg.execPath, args...)
	setPdeathsig(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		if removeDir {
			os.RemoveAll(dataDir)
		}
		return nil, "", fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}
	cmd.Stderr = cmd.Stdout

	if len(cfg.env) > 0 {
		cmd.Env = append(os.Environ(), cfg.env...)
	}

	if err := cmd.Start(); err != nil {
		if removeDir {
			os.RemoveAll(dataDir)
		}
		return nil, "", fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}

	wsURL, err := readWebSocketURL(stdout, cfg.combinedOutput)
	if err != nil {
		cmd.Process.Kill()
		cmd.Wait()
		if removeDir {
			os.RemoveAll(dataDir)
		}
		return nil, "", fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}

	return &process{cmd: cmd, userDataDir: dataDir, removeDir: removeDir}, wsURL, nil
}

// readWebSocketURL scans Chrome's stderr for the "DevTools listening on"
// line, forwarding everything to forward if set. Chrome will sometimes
// fail to print the URL at all, so wsURLReadTimeout bounds this.
func readWebSocketURL(rc io.ReadCloser, forward io.Writer) (string, error) {
	prefix := []byte("DevTools listening on")
	var accumulated bytes.Buffer
	bufr := bufio.NewReader(rc)

	done := make(chan struct{})
	var wsURL string
	var readErr error
	go func() {
		defer close(done)
		for {
			line, err := bufr.ReadBytes('\n')
			if err != nil {
				readErr = fmt.Errorf("chrome exited before printing a websocket url: %s", accumulated.Bytes())
				return
			}
			if forward != nil {
				forward.Write(line)
			}
			if bytes.HasPrefix(line, prefix) {
				wsURL = string(bytes.TrimSpace(line[len(prefix):]))
				if forward != nil {
					go io.Copy(forward, bufr)
				} else {
					rc.Close()
				}
				return
			}
			accumulated.Write(line)
		}
	}()

	select {
	case <-done:
		return wsURL, readErr
	case <-time.After(wsURLReadTimeout):
		return "", fmt.Errorf("timed out waiting for websocket url")
	}
}

// kill terminates the child process and removes its temporary user data
// directory, if one was created.
func (p *process) kill() {
	if p == nil || p.cmd == nil || p.cmd.Process == nil {
		return
	}
	p.cmd.Process.Kill()
	p.cmd.Wait()
	if p.removeDir {
		os.RemoveAll(p.userDataDir)
	}
}

// findExecPath performs the same aggressive cross-platform search as the
// teacher's allocate.go, honoring $BROWSER first so a caller's explicit
// choice always wins over the guessed candidate list.
func findExecPath() string {
	if env := os.Getenv("BROWSER"); env != "" {
		if found, err := exec.LookPath(env); err == nil {
			return found
		}
	}

	for _, path := range [...]string{
		"headless_shell",
		"headless-shell",
		"chromium",
		"chromium-browser",
		"google-chrome",
		"google-chrome-stable",
		"google-chrome-beta",
		"google-chrome-unstable",
		"/usr/bin/google-chrome",

		"chrome",
		"chrome.exe",
		`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
		`C:\Program Files\Google\Chrome\Application\chrome.exe`,
		filepath.Join(os.Getenv("USERPROFILE"), `AppData\Local\Google\Chrome\Application\chrome.exe`),

		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	} {
		if found, err := exec.LookPath(path); err == nil {
			return found
		}
	}
	return "google-chrome"
}
