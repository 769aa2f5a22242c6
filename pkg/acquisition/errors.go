package acquisition

import "errors"

// Fatal acquisition errors. The driver returns them wrapped; the program
// decides whether to exit.
var (
	ErrDeviceUnavailable    = errors.New("acquisition: device unavailable")
	ErrInvalidConfig        = errors.New("acquisition: invalid configuration")
	ErrInsufficientChannels = errors.New("acquisition: hardware has fewer channels than required")
	ErrNoCommandTemplate    = errors.New("acquisition: device cannot produce a timed command")
	ErrCommandInvalid       = errors.New("acquisition: command failed validation")
	ErrStartRejected        = errors.New("acquisition: start command rejected")
	ErrEndOfAcquisition     = errors.New("acquisition: end of acquisition")
)
