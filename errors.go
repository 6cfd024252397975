package farmcode

import "errors"

var (
	// Configuration errors.
	ErrNoLoop = errors.New("farmcode: no control loop configured")

	// Store errors.
	ErrPointerExists = errors.New("farmcode: pointer already exists")

	// Not found errors.
	ErrPointerNotFound  = errors.New("farmcode: pointer not found")
	ErrJobNotFound      = errors.New("farmcode: job not found")
	ErrArtifactNotFound = errors.New("farmcode: artifact not found")

	// Journal errors. A missing journal is expected while a worker has not
	// started; a malformed one is a protocol violation.
	ErrNoJournal        = errors.New("farmcode: no journal entry")
	ErrMalformedJournal = errors.New("farmcode: malformed journal entry")

	// State errors.
	ErrInvalidTransition = errors.New("farmcode: invalid state transition")
	ErrSequenceInvalid   = errors.New("farmcode: invalid phase sequence")

	// Gateway errors.
	ErrCapacityUnavailable = errors.New("farmcode: worker capacity unavailable")
	ErrUnknownRole         = errors.New("farmcode: unknown worker role")
)
