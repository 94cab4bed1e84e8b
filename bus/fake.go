package bus

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// FakeBackend is an in-memory port system. Ports are plain names; what is
// sent is recorded per port and Inject delivers input.
type FakeBackend struct {
	OpenErr error
	// FailOpen makes opening the named port fail.
	FailOpen map[string]bool

	mu      sync.Mutex
	ins     []string
	outs    []string
	recv    map[string]Receiver
	sent    map[string][][]byte
	broken  map[string]bool
	opened  bool
	virtual []string
}

var errFakeSend = errors.New("fake send failure")

func NewFakeBackend(ins, outs []string) *FakeBackend {
	return &FakeBackend{
		FailOpen: map[string]bool{},
		ins:      slices.Clone(ins),
		outs:     slices.Clone(outs),
		recv:     map[string]Receiver{},
		sent:     map[string][][]byte{},
		broken:   map[string]bool{},
	}
}

func (f *FakeBackend) Open() error {
	if f.OpenErr != nil {
		return f.OpenErr
	}
	f.mu.Lock()
	f.opened = true
	f.mu.Unlock()
	return nil
}

func (f *FakeBackend) Close() error {
	f.mu.Lock()
	f.opened = false
	f.mu.Unlock()
	return nil
}

func (f *FakeBackend) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened
}

func (f *FakeBackend) Inputs() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.ins), nil
}

func (f *FakeBackend) Outputs() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.outs), nil
}

// Plug adds a port as if a device appeared; Unplug removes it.
func (f *FakeBackend) Plug(name string, input bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if input {
		f.ins = append(f.ins, name)
	} else {
		f.outs = append(f.outs, name)
	}
}

func (f *FakeBackend) Unplug(name string, input bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if input {
		f.ins = slices.DeleteFunc(f.ins, func(s string) bool { return s == name })
		delete(f.recv, name)
	} else {
		f.outs = slices.DeleteFunc(f.outs, func(s string) bool { return s == name })
	}
}

// Reorder replaces the enumeration order, as after a reboot.
func (f *FakeBackend) Reorder(ins, outs []string) {
	f.mu.Lock()
	f.ins, f.outs = slices.Clone(ins), slices.Clone(outs)
	f.mu.Unlock()
}

// Break makes every later send to the named output fail.
func (f *FakeBackend) Break(name string) {
	f.mu.Lock()
	f.broken[name] = true
	f.mu.Unlock()
}

// Sent returns the messages sent to the named output, in order.
func (f *FakeBackend) Sent(name string) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.sent[name])
}

func (f *FakeBackend) Reset() {
	f.mu.Lock()
	f.sent = map[string][][]byte{}
	f.mu.Unlock()
}

// Inject delivers msg as if read from the named input.
func (f *FakeBackend) Inject(name string, msg []byte) bool {
	f.mu.Lock()
	recv, ok := f.recv[name]
	f.mu.Unlock()
	if ok {
		recv(msg)
	}
	return ok
}

// Virtual lists the virtual ports created so far.
func (f *FakeBackend) Virtual() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.virtual)
}

func (f *FakeBackend) OpenInput(name string, recv Receiver) (Input, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailOpen[name] || !slices.Contains(f.ins, name) {
		return nil, fmt.Errorf("%w: %q", ErrPortNotFound, name)
	}
	f.recv[name] = recv
	return &fakePort{f: f, name: name, input: true}, nil
}

func (f *FakeBackend) OpenOutput(name string) (Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailOpen[name] || !slices.Contains(f.outs, name) {
		return nil, fmt.Errorf("%w: %q", ErrPortNotFound, name)
	}
	return &fakePort{f: f, name: name}, nil
}

func (f *FakeBackend) VirtualInput(name string, recv Receiver) (Input, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.virtual = append(f.virtual, name)
	f.recv[name] = recv
	return &fakePort{f: f, name: name, input: true}, nil
}

func (f *FakeBackend) VirtualOutput(name string) (Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.virtual = append(f.virtual, name)
	return &fakePort{f: f, name: name}, nil
}

type fakePort struct {
	f     *FakeBackend
	name  string
	input bool
}

func (p *fakePort) Send(msg []byte) error {
	p.f.mu.Lock()
	defer p.f.mu.Unlock()
	if p.f.broken[p.name] {
		return errFakeSend
	}
	p.f.sent[p.name] = append(p.f.sent[p.name], slices.Clone(msg))
	return nil
}

func (p *fakePort) Close() error {
	if p.input {
		p.f.mu.Lock()
		delete(p.f.recv, p.name)
		p.f.mu.Unlock()
	}
	return nil
}
