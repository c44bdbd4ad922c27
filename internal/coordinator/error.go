package coordinator

// ErrorKind identifies a kind of coordination error. It has full support for
// errors.Is and errors.As, so the caller can directly check against an error
// kind when determining the reason for an error.
type ErrorKind string

const (
	// ErrCapacity indicates work issuance was attempted while the mining
	// ledger is at its outstanding-work capacity limit. Expected under load
	// and surfaced to the caller as a retryable condition.
	ErrCapacity = ErrorKind("ErrCapacity")

	// ErrWorkNotFound indicates a submitted solution does not match any
	// outstanding work: the entry is stale, already solved, or forged.
	ErrWorkNotFound = ErrorKind("ErrWorkNotFound")

	// ErrNoPayload indicates no candidate payload has been cached yet for
	// the requested miner and chain.
	ErrNoPayload = ErrorKind("ErrNoPayload")

	// ErrExtensionConflict indicates a solved header was valid but the
	// target chain had already advanced past its parent. Expected
	// contention during concurrent solves.
	ErrExtensionConflict = ErrorKind("ErrExtensionConflict")

	// ErrLedgerIntegrity indicates the mining ledger observed a duplicate
	// work hash for two distinct entries. This is a fatal node fault and
	// terminates the coordination facade.
	ErrLedgerIntegrity = ErrorKind("ErrLedgerIntegrity")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// Error identifies a coordination rule violation. It has full support for
// errors.Is and errors.As, so the caller can ascertain the specific reason
// for the error by checking the underlying error kind.
type Error struct {
	Description string
	Err         error
}

// Error satisfies the error interface and prints human-readable errors.
func (e Error) Error() string {
	return e.Description
}

// Unwrap returns the underlying wrapped error.
func (e Error) Unwrap() error {
	return e.Err
}

// coordError creates an Error given a set of arguments.
func coordError(kind ErrorKind, desc string) Error {
	return Error{Err: kind, Description: desc}
}
