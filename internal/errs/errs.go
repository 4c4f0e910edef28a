// Package errs defines the semantic error categories used across the
// operator node (spec §7). Components wrap a sentinel with context via
// fmt.Errorf("...: %w", ...) the way the teacher's node package wraps
// service start/stop failures; callers use errors.Is against the sentinels
// below to decide retry/propagation behavior.
package errs

import "errors"

var (
	// Config is missing or invalid environment configuration. Fatal at
	// startup; never returned from a running loop.
	Config = errors.New("config error")

	// Transport is a chain query/broadcast or external HTTP failure.
	// Retried on the next loop iteration.
	Transport = errors.New("transport error")

	// TxRejected is returned when the chain accepts the broadcast but the
	// transaction itself failed (non-zero response code).
	TxRejected = errors.New("tx rejected")

	// Protocol marks a locally observed invariant violation (empty
	// snapshot, no winner in range, missing beacon round on chain).
	Protocol = errors.New("protocol error")

	// StateLoss marks the absence of local state needed to proceed (missing
	// cached snapshot, missing local secret at reveal time). The affected
	// draw is left to expire on chain.
	StateLoss = errors.New("state loss")
)

// Is reports whether err is in the category identified by sentinel. It is a
// thin alias over errors.Is kept here so callers only import this package
// when checking categories.
func Is(err, sentinel error) bool {
	return errors.Is(err, sentinel)
}
