package cdpmux

// Error is a cdpmux sentinel error, matching the teacher's errors.go
// string-constant pattern.
type Error string

// Error satisfies the error interface.
func (err Error) Error() string { return string(err) }

// Error values.
const (
	// ErrLaunchFailed means the child Chrome process could not be started
	// or never printed its DevTools WebSocket URL in time.
	ErrLaunchFailed Error = "browser launch failed"

	// ErrNoInitialTab means WaitForInitialTab's timeout elapsed before
	// Target.targetCreated ever reported a page target.
	ErrNoInitialTab Error = "no initial tab appeared"

	// ErrTabNotFound means NewTab's timeout elapsed before the newly
	// created target ID appeared in the tab registry.
	ErrTabNotFound Error = "tab not found"

	// ErrBrowserClosed means the method was called after Shutdown.
	ErrBrowserClosed Error = "browser closed"
)
