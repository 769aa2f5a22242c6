//go:build !linux

package daq

// Comedi is only available on Linux.
type Comedi struct {
	Device
}

// OpenComedi always fails outside Linux.
func OpenComedi(path string) (*Comedi, error) {
	return nil, ErrUnsupported
}
