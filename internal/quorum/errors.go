package quorum

import "errors"

var (
	// ErrAlreadyVoted is returned when an oracle submits a second
	// signature for a submission it already confirmed.
	ErrAlreadyVoted = errors.New("oracle already voted for this submission")

	// ErrAlreadyDeployed is returned when a wrapped asset already exists
	// for the debridge identifier.
	ErrAlreadyDeployed = errors.New("wrapped asset already deployed")

	// ErrNotFound is returned when no confirmed deploy record exists for
	// the debridge identifier.
	ErrNotFound = errors.New("no confirmed deploy record")

	// ErrLengthMismatch is returned by batch submission when the id and
	// signature slices differ in length.
	ErrLengthMismatch = errors.New("ids/signatures length mismatch")

	// ErrMetadataMismatch is returned when a repeat asset confirmation
	// carries metadata differing from the first vote's metadata.
	ErrMetadataMismatch = errors.New("asset metadata differs from first confirmation")

	// ErrNoSignatures is returned when an asset confirmation carries no
	// signatures. Such a call must never create deploy state: the first
	// actual vote fixes the canonical metadata for a token.
	ErrNoSignatures = errors.New("empty signature batch")
)
