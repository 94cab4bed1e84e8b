package bus

import (
	"fmt"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // autoregisters driver
)

// GomidiBackend reaches ALSA, CoreMIDI or WinMM through the rtmidi driver.
type GomidiBackend struct{}

func (GomidiBackend) Open() error {
	if drivers.Get() == nil {
		return ErrNoBackend
	}
	return nil
}

func (GomidiBackend) Close() error {
	midi.CloseDriver()
	return nil
}

func (GomidiBackend) Inputs() ([]string, error) {
	var res []string
	for _, in := range midi.GetInPorts() {
		res = append(res, in.String())
	}
	return res, nil
}

func (GomidiBackend) Outputs() ([]string, error) {
	var res []string
	for _, out := range midi.GetOutPorts() {
		res = append(res, out.String())
	}
	return res, nil
}

func (GomidiBackend) OpenInput(name string, recv Receiver) (Input, error) {
	in, err := midi.FindInPort(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrPortNotFound, name)
	}
	return listen(in, recv)
}

func (GomidiBackend) OpenOutput(name string) (Output, error) {
	out, err := midi.FindOutPort(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrPortNotFound, name)
	}
	return sendTo(out)
}

func (GomidiBackend) VirtualInput(name string, recv Receiver) (Input, error) {
	drv, ok := drivers.Get().(*rtmididrv.Driver)
	if !ok {
		return nil, ErrNoVirtual
	}
	in, err := drv.OpenVirtualIn(name)
	if err != nil {
		return nil, err
	}
	return listen(in, recv)
}

func (GomidiBackend) VirtualOutput(name string) (Output, error) {
	drv, ok := drivers.Get().(*rtmididrv.Driver)
	if !ok {
		return nil, ErrNoVirtual
	}
	out, err := drv.OpenVirtualOut(name)
	if err != nil {
		return nil, err
	}
	return sendTo(out)
}

type gomidiInput struct {
	in   drivers.In
	stop func()
}

func listen(in drivers.In, recv Receiver) (Input, error) {
	stop, err := midi.ListenTo(in, func(msg midi.Message, absms int32) {
		recv(msg.Bytes())
	}, midi.UseSysEx())
	if err != nil {
		return nil, err
	}
	return &gomidiInput{in: in, stop: stop}, nil
}

func (i *gomidiInput) Close() error {
	i.stop()
	return i.in.Close()
}

type gomidiOutput struct {
	out  drivers.Out
	send func(midi.Message) error
}

func sendTo(out drivers.Out) (Output, error) {
	send, err := midi.SendTo(out)
	if err != nil {
		return nil, err
	}
	return &gomidiOutput{out: out, send: send}, nil
}

func (o *gomidiOutput) Send(msg []byte) error { return o.send(midi.Message(msg)) }
func (o *gomidiOutput) Close() error          { return o.out.Close() }
