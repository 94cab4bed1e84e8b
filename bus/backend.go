// Package bus multiplexes the pattern busses onto MIDI ports: the port
// registry, the runtime-selected port backends, the master bus with its
// per-port clock, and hot-plug handling.
package bus

import "errors"

var (
	ErrNoBackend    = errors.New("no MIDI backend")
	ErrPortNotFound = errors.New("MIDI port not found")
	ErrNoVirtual    = errors.New("backend has no virtual ports")
)

// Receiver gets every complete message read from an input port. The slice
// is only valid during the call.
type Receiver func(msg []byte)

type Output interface {
	Send(msg []byte) error
	Close() error
}

type Input interface {
	Close() error
}

// Backend is the port system the master bus talks to. It is chosen at run
// time: rtmidi through gomidi, a serial line, or the in-memory fake.
type Backend interface {
	Open() error
	Close() error
	Inputs() ([]string, error)
	Outputs() ([]string, error)
	OpenInput(name string, recv Receiver) (Input, error)
	OpenOutput(name string) (Output, error)
	VirtualInput(name string, recv Receiver) (Input, error)
	VirtualOutput(name string) (Output, error)
}
