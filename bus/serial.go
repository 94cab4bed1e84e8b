package bus

import (
	"fmt"
	"io"
	"sync"

	"go.bug.st/serial"
)

const DEFAULT_BAUDRATE = 115200

// SerialBackend reads MIDI from serial devices. With a Keymap the device is
// a key matrix sending two-byte frames; without one the line carries plain
// MIDI bytes in both directions.
type SerialBackend struct {
	BaudRate int
	Keymap   Keymap
	Channel  uint8

	mu    sync.Mutex
	ports map[string]*serialPort
}

type serialPort struct {
	port serial.Port
	refs int
}

func (b *SerialBackend) Open() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ports == nil {
		b.ports = map[string]*serialPort{}
	}
	if b.BaudRate == 0 {
		b.BaudRate = DEFAULT_BAUDRATE
	}
	return nil
}

func (b *SerialBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var err error
	for name, p := range b.ports {
		if e := p.port.Close(); e != nil && err == nil {
			err = e
		}
		delete(b.ports, name)
	}
	return err
}

func (b *SerialBackend) Inputs() ([]string, error) {
	return serial.GetPortsList()
}

func (b *SerialBackend) Outputs() ([]string, error) {
	if b.Keymap != nil {
		return nil, nil
	}
	return serial.GetPortsList()
}

func (b *SerialBackend) acquire(name string) (serial.Port, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.ports[name]; ok {
		p.refs++
		return p.port, nil
	}
	port, err := serial.Open(name, &serial.Mode{BaudRate: b.BaudRate})
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrPortNotFound, name, err)
	}
	b.ports[name] = &serialPort{port: port, refs: 1}
	return port, nil
}

func (b *SerialBackend) release(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.ports[name]
	if !ok {
		return nil
	}
	p.refs--
	if p.refs > 0 {
		return nil
	}
	delete(b.ports, name)
	return p.port.Close()
}

func (b *SerialBackend) OpenInput(name string, recv Receiver) (Input, error) {
	port, err := b.acquire(name)
	if err != nil {
		return nil, err
	}
	if err := port.ResetInputBuffer(); err != nil {
		b.release(name)
		return nil, err
	}
	if b.Keymap != nil {
		go readFrames(port, &keyboard{keymap: b.Keymap, channel: b.Channel}, recv)
	} else {
		go readStream(port, recv)
	}
	return &serialHandle{b: b, name: name}, nil
}

func (b *SerialBackend) OpenOutput(name string) (Output, error) {
	if b.Keymap != nil {
		return nil, fmt.Errorf("%w: %q is a key matrix", ErrPortNotFound, name)
	}
	port, err := b.acquire(name)
	if err != nil {
		return nil, err
	}
	return &serialHandle{b: b, name: name, port: port}, nil
}

func (b *SerialBackend) VirtualInput(string, Receiver) (Input, error) { return nil, ErrNoVirtual }
func (b *SerialBackend) VirtualOutput(string) (Output, error)         { return nil, ErrNoVirtual }

type serialHandle struct {
	b    *SerialBackend
	name string
	port serial.Port
	once sync.Once
}

func (h *serialHandle) Send(msg []byte) error {
	_, err := h.port.Write(msg)
	return err
}

func (h *serialHandle) Close() (err error) {
	h.once.Do(func() { err = h.b.release(h.name) })
	return err
}

// readFrames ends when the port is closed.
func readFrames(r io.Reader, kb *keyboard, recv Receiver) {
	buf := make([]byte, 2)
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			return
		}
		if msg := kb.translate(buf[0], buf[1]); msg != nil {
			recv(msg.Bytes())
		}
	}
}

func readStream(r io.Reader, recv Receiver) {
	var p streamParser
	buf := make([]byte, 64)
	for {
		n, err := r.Read(buf)
		for _, c := range buf[:n] {
			p.feed(c, recv)
		}
		if err != nil {
			return
		}
	}
}

// streamParser splits a MIDI byte stream into messages, with running status
// and interleaved realtime bytes.
type streamParser struct {
	running byte
	msg     []byte
	want    int
	sysex   bool
}

func dataLength(status byte) int {
	switch {
	case status < 0xC0, status >= 0xE0 && status < 0xF0:
		return 2
	case status < 0xE0:
		return 1
	case status == 0xF1, status == 0xF3:
		return 1
	case status == 0xF2:
		return 2
	}
	return 0
}

func (p *streamParser) feed(c byte, emit Receiver) {
	switch {
	case c >= 0xF8:
		emit([]byte{c})
	case c == 0xF0:
		p.sysex = true
		p.running = 0
		p.msg = append(p.msg[:0], c)
	case c == 0xF7:
		if p.sysex {
			emit(append(p.msg, c))
		}
		p.sysex = false
		p.msg = p.msg[:0]
	case c >= 0x80:
		p.sysex = false
		p.running = 0
		if c < 0xF0 {
			p.running = c
		}
		p.msg = append(p.msg[:0], c)
		p.want = dataLength(c)
		if p.want == 0 {
			emit(p.msg)
			p.msg = p.msg[:0]
		}
	case p.sysex:
		p.msg = append(p.msg, c)
	default:
		if len(p.msg) == 0 {
			if p.running == 0 {
				return
			}
			p.msg = append(p.msg, p.running)
			p.want = dataLength(p.running)
		}
		p.msg = append(p.msg, c)
		if len(p.msg)-1 == p.want {
			emit(p.msg)
			p.msg = p.msg[:0]
		}
	}
}
