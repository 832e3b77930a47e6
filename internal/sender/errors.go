package sender

import "errors"

// Sentinel errors making up the error taxonomy from the design (§7):
// SendError, EncodeError, FatalError and UnexpectedError are represented as
// wrapped sentinels rather than a custom error hierarchy, matching the
// teacher's plain sentinel-error style (warehouse.ErrNoRowsToWrite,
// reaction.ErrInvalidAuthType).
var (
	// ErrSend marks a sink-reported delivery failure.
	ErrSend = errors.New("sender: send failed")

	// ErrEncode marks an encoder or filter failure.
	ErrEncode = errors.New("sender: encode failed")

	// ErrFatal marks a startup misconfiguration the process cannot recover
	// from (e.g. a required encoder that fails Verify).
	ErrFatal = errors.New("sender: fatal configuration error")

	// ErrClosed's message is the failure reason given to futures failed
	// because the sender has begun shutdown.
	ErrClosed = errors.New("sender: closed")

	// ErrAppendAfterSeal marks a defensive no-op: Append was called on a
	// batch that had already been sealed (swapped out of the current-batch
	// cell). This should not happen by construction, but is not escalated
	// to a panic since a racing scheduler tick and an in-flight Queue call
	// can legitimately interleave around the swap (see SPEC_FULL.md §4.2).
	ErrAppendAfterSeal = errors.New("sender: append after seal")
)
