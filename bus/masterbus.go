package bus

import (
	"fmt"
	"io"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/JeanRibes/seqloop/music"
	charmlog "github.com/charmbracelet/log"
	"gitlab.com/gomidi/midi/v2"
)

const (
	PollTimeout       = 10 * time.Millisecond
	DEFAULT_CLOCK_MOD = 64
	DEFAULT_CLIENT    = "seqloop"
	CLOCKS_PER_QN     = 24
	MIDI_CHANNELS     = 16
	CC_ALL_NOTES_OFF  = 123
)

type Options struct {
	ClientName string
	// Manual creates virtual ports instead of connecting to the system ones.
	Manual         bool
	VirtualOutputs int
	VirtualInputs  int
	PPQN           int
	// ClockMod is the Mod clock boundary, in sixteenth notes.
	ClockMod int
	Logger   *charmlog.Logger
}

type outPort struct {
	out      Output
	pending  [][]byte
	lastTick music.Pulse
}

type inPort struct {
	in Input
}

type inbound struct {
	bus int
	msg []byte
}

// MasterBus fans the pattern busses out to the backend's ports. Pattern
// bus numbers are nominal: with an active port map they are resolved to
// the system port with the same nickname.
type MasterBus struct {
	backend Backend
	opts    Options
	logger  *charmlog.Logger

	mu          sync.Mutex
	outs        []*outPort
	ins         []*inPort
	clocks      ClocksList
	inputs      InputsList
	outMap      ClocksList
	inMap       InputsList
	savedClocks ClocksList
	savedInputs InputsList

	qmu   sync.Mutex
	queue []inbound
	ready chan struct{}
}

func New(backend Backend, opts Options) *MasterBus {
	if opts.ClientName == "" {
		opts.ClientName = DEFAULT_CLIENT
	}
	if opts.PPQN <= 0 {
		opts.PPQN = music.DEFAULT_PPQN
	}
	if opts.ClockMod <= 0 {
		opts.ClockMod = DEFAULT_CLOCK_MOD
	}
	if opts.Manual && opts.VirtualOutputs <= 0 {
		opts.VirtualOutputs = 1
	}
	if opts.Manual && opts.VirtualInputs <= 0 {
		opts.VirtualInputs = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = charmlog.NewWithOptions(os.Stdout, charmlog.Options{
			Level:        charmlog.InfoLevel,
			ReportCaller: true,
		})
	}
	return &MasterBus{
		backend: backend,
		opts:    opts,
		logger:  logger.WithPrefix("bus"),
		ready:   make(chan struct{}, 1),
	}
}

func (b *MasterBus) PPQN() int { return b.opts.PPQN }

// Activate opens the backend and every port. A backend failure is returned;
// a port that cannot be opened is logged and left disabled.
func (b *MasterBus) Activate() error {
	if b.backend == nil {
		return ErrNoBackend
	}
	if err := b.backend.Open(); err != nil {
		return fmt.Errorf("activate %s: %w", b.opts.ClientName, err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.opts.Manual {
		for i := 0; i < b.opts.VirtualOutputs; i++ {
			name := fmt.Sprintf("%s out %d", b.opts.ClientName, i)
			out, err := b.backend.VirtualOutput(name)
			b.addOutput(name, out, err)
		}
		for i := 0; i < b.opts.VirtualInputs; i++ {
			name := fmt.Sprintf("%s in %d", b.opts.ClientName, i)
			in, err := b.backend.VirtualInput(name, b.receiver(len(b.ins)))
			b.addInput(name, in, err)
		}
		return nil
	}

	outs, err := b.backend.Outputs()
	if err != nil {
		return fmt.Errorf("activate %s: outputs: %w", b.opts.ClientName, err)
	}
	for _, name := range outs {
		out, err := b.backend.OpenOutput(name)
		b.addOutput(name, out, err)
	}
	ins, err := b.backend.Inputs()
	if err != nil {
		return fmt.Errorf("activate %s: inputs: %w", b.opts.ClientName, err)
	}
	for _, name := range ins {
		in, err := b.backend.OpenInput(name, b.receiver(len(b.ins)))
		b.addInput(name, in, err)
	}
	return nil
}

// Close shuts every port and the backend.
func (b *MasterBus) Close() error {
	b.mu.Lock()
	var closers []io.Closer
	for _, p := range b.outs {
		if p.out != nil {
			closers = append(closers, p.out)
			p.out = nil
		}
	}
	for _, p := range b.ins {
		if p.in != nil {
			closers = append(closers, p.in)
			p.in = nil
		}
	}
	b.mu.Unlock()
	for _, c := range closers {
		if err := c.Close(); err != nil {
			b.logger.Warn("close", "err", err)
		}
	}
	if b.backend == nil {
		return nil
	}
	return b.backend.Close()
}

func (b *MasterBus) addOutput(name string, out Output, err error) int {
	clock := ClockOff
	if saved := b.savedClocks.Lookup(ExtractNickname(name)); saved != NullBus {
		clock = b.savedClocks.Get(saved)
	}
	if err != nil {
		b.logger.Warn("cannot open output, disabled", "port", name, "err", err)
		out = nil
	}
	bus := b.clocks.Add(Entry{Available: err == nil, Clock: clock, Name: name})
	b.outs = append(b.outs, &outPort{out: out, lastTick: -1})
	b.logger.Info("output", "bus", bus, "port", name, "clock", clock)
	return bus
}

func (b *MasterBus) addInput(name string, in Input, err error) int {
	enabled := true
	if saved := b.savedInputs.Lookup(ExtractNickname(name)); saved != NullBus {
		enabled = b.savedInputs.Get(saved)
	}
	bus := b.inputs.AddPort(enabled, name)
	if err != nil {
		b.logger.Warn("cannot open input, disabled", "port", name, "err", err)
		b.inputs.SetAvailable(bus, false)
		in = nil
	}
	b.ins = append(b.ins, &inPort{in: in})
	b.logger.Info("input", "bus", bus, "port", name, "enabled", enabled)
	return bus
}

func (b *MasterBus) receiver(bus int) Receiver {
	return func(msg []byte) {
		b.mu.Lock()
		ok := b.inputs.IsAvailable(bus) && b.inputs.Get(bus)
		nominal := b.nominalInput(bus)
		b.mu.Unlock()
		if !ok || len(msg) == 0 {
			return
		}
		b.qmu.Lock()
		b.queue = append(b.queue, inbound{bus: nominal, msg: slices.Clone(msg)})
		b.qmu.Unlock()
		select {
		case b.ready <- struct{}{}:
		default:
		}
	}
}

func (b *MasterBus) pending() int {
	b.qmu.Lock()
	defer b.qmu.Unlock()
	return len(b.queue)
}

// PollForMIDI waits at most PollTimeout for input and returns the number of
// queued messages.
func (b *MasterBus) PollForMIDI() int {
	if n := b.pending(); n > 0 {
		return n
	}
	timer := time.NewTimer(PollTimeout)
	defer timer.Stop()
	select {
	case <-b.ready:
	case <-timer.C:
	}
	return b.pending()
}

// GetMIDIEvent pops the next inbound message into ev and returns the
// nominal input bus it came from. Realtime bytes are skipped.
func (b *MasterBus) GetMIDIEvent(ev *music.Event) (bus int, ok bool) {
	for {
		b.qmu.Lock()
		if len(b.queue) == 0 {
			b.qmu.Unlock()
			return NullBus, false
		}
		in := b.queue[0]
		b.queue = b.queue[1:]
		b.qmu.Unlock()

		e, ok := music.FromMessage(0, midi.Message(in.msg))
		if !ok {
			continue
		}
		*ev = *e
		return in.bus, true
	}
}

// usable is false for a port that is missing, failed or disabled in the
// clock settings.
func (b *MasterBus) usable(bus int) bool {
	if bus < 0 || bus >= len(b.outs) {
		return false
	}
	return b.outs[bus].out != nil && b.clocks.IsAvailable(bus) && b.clocks.Get(bus) != ClockDisabled
}

// output resolves a nominal bus to its open port, or nil.
func (b *MasterBus) output(nominal int) *outPort {
	bus := b.trueBus(nominal)
	if !b.usable(bus) {
		return nil
	}
	return b.outs[bus]
}

// Play buffers ev for the port bound to bus, on channel unless it is
// music.FreeChannel. Nothing happens for a disabled or unknown bus.
func (b *MasterBus) Play(bus int, ev *music.Event, channel uint8) bool {
	msg := ev.MessageOn(channel)
	if msg == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.output(bus)
	if p == nil {
		return false
	}
	p.pending = append(p.pending, msg.Bytes())
	return true
}

// Sysex sends data at once.
func (b *MasterBus) Sysex(bus int, data []byte) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.output(bus)
	if p == nil {
		return false
	}
	p.pending = append(p.pending, slices.Clone(data))
	b.flush()
	return true
}

// Flush sends what Play buffered, port by port in call order. A port that
// fails to send is disabled.
func (b *MasterBus) Flush() {
	b.mu.Lock()
	b.flush()
	b.mu.Unlock()
}

func (b *MasterBus) flush() {
	for bus, p := range b.outs {
		if len(p.pending) == 0 {
			continue
		}
		if b.usable(bus) {
			for _, msg := range p.pending {
				if err := p.out.Send(msg); err != nil {
					b.logger.Warn("send failed, bus disabled", "bus", bus, "port", b.clocks.Name(bus), "err", err)
					b.clocks.SetAvailable(bus, false)
					break
				}
			}
		}
		p.pending = p.pending[:0]
	}
}

// AllNotesOff sends All Notes Off on every channel of every enabled output.
func (b *MasterBus) AllNotesOff() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for bus, p := range b.outs {
		if !b.usable(bus) {
			continue
		}
		for ch := uint8(0); ch < MIDI_CHANNELS; ch++ {
			p.pending = append(p.pending, midi.ControlChange(ch, CC_ALL_NOTES_OFF, 0).Bytes())
		}
	}
	b.flush()
}

// PortStart adds a port that appeared, or re-enables the bus that had it.
func (b *MasterBus) PortStart(name string, input bool) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if input {
		bus := b.inputs.BusFromName(name)
		if bus == NullBus {
			in, err := b.backend.OpenInput(name, b.receiver(len(b.ins)))
			return b.addInput(name, in, err)
		}
		if b.inputs.IsAvailable(bus) {
			return bus
		}
		in, err := b.backend.OpenInput(name, b.receiver(bus))
		if err != nil {
			b.logger.Warn("cannot reopen input", "port", name, "err", err)
			return NullBus
		}
		b.ins[bus].in = in
		b.inputs.SetAvailable(bus, true)
		b.logger.Info("input back", "bus", bus, "port", name)
		return bus
	}
	bus := b.clocks.BusFromName(name)
	if bus == NullBus {
		out, err := b.backend.OpenOutput(name)
		return b.addOutput(name, out, err)
	}
	if b.clocks.IsAvailable(bus) {
		return bus
	}
	out, err := b.backend.OpenOutput(name)
	if err != nil {
		b.logger.Warn("cannot reopen output", "port", name, "err", err)
		return NullBus
	}
	if old := b.outs[bus].out; old != nil {
		old.Close()
	}
	b.outs[bus].out = out
	b.outs[bus].lastTick = -1
	b.clocks.SetAvailable(bus, true)
	b.logger.Info("output back", "bus", bus, "port", name)
	return bus
}

// PortExit disables the bus of a port that went away. The bus keeps its
// number so that a returning port gets it back.
func (b *MasterBus) PortExit(name string, input bool) bool {
	var closer io.Closer
	b.mu.Lock()
	if input {
		bus := b.inputs.BusFromName(name)
		if bus == NullBus {
			b.mu.Unlock()
			return false
		}
		if p := b.ins[bus]; p.in != nil {
			closer = p.in
			p.in = nil
		}
		b.inputs.SetAvailable(bus, false)
	} else {
		bus := b.clocks.BusFromName(name)
		if bus == NullBus {
			b.mu.Unlock()
			return false
		}
		p := b.outs[bus]
		if p.out != nil {
			closer = p.out
			p.out = nil
		}
		p.pending = p.pending[:0]
		b.clocks.SetAvailable(bus, false)
	}
	b.mu.Unlock()
	b.logger.Info("port gone", "port", name, "input", input)
	if closer != nil {
		if err := closer.Close(); err != nil {
			b.logger.Warn("close", "port", name, "err", err)
		}
	}
	return true
}

// Ports returns a snapshot of the system output and input tables.
func (b *MasterBus) Ports() (outs, ins []Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.clocks.Entries(), b.inputs.Entries()
}

// IsEnabled reports whether the nominal output bus reaches an open port.
func (b *MasterBus) IsEnabled(bus int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.output(bus) != nil
}

// SetClock and the other setters below take system bus numbers.
func (b *MasterBus) SetClock(bus int, clock Clock) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.clocks.Set(bus, clock)
}

func (b *MasterBus) GetClock(bus int) Clock {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.clocks.Get(bus)
}

func (b *MasterBus) SetInput(bus int, on bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inputs.Set(bus, on)
}

func (b *MasterBus) GetInput(bus int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inputs.Get(bus)
}

func (b *MasterBus) TrueBus(nominal int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.trueBus(nominal)
}

func (b *MasterBus) NominalBus(bus int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nominalBus(bus)
}

func (b *MasterBus) trueBus(nominal int) int {
	if !b.outMap.Active() {
		return nominal
	}
	return resolve(&b.outMap.PortsList, &b.clocks.PortsList, nominal)
}

func (b *MasterBus) nominalBus(bus int) int {
	if !b.outMap.Active() {
		return bus
	}
	return resolve(&b.clocks.PortsList, &b.outMap.PortsList, bus)
}

func (b *MasterBus) nominalInput(bus int) int {
	if !b.inMap.Active() {
		return bus
	}
	return resolve(&b.inputs.PortsList, &b.inMap.PortsList, bus)
}

// resolve finds the entry of to that matches entry bus of from, by
// nickname and then by alias.
func resolve(from, to *PortsList, bus int) int {
	e, ok := from.Get(bus)
	if !ok {
		return NullBus
	}
	if res := to.Lookup(e.Nickname); res != NullBus {
		return res
	}
	return to.BusFromAlias(e.Alias)
}

// InitClock prepares every clocked output to start at tick.
func (b *MasterBus) InitClock(tick music.Pulse) {
	b.eachClock(func(clock Clock, p *outPort) {
		switch {
		case clock == ClockPos && tick != 0:
			b.continueFrom(clock, p, tick)
		case clock == ClockMod || tick == 0:
			b.start(clock, p)
			modTicks := music.Pulse(b.opts.PPQN/4) * music.Pulse(b.opts.ClockMod)
			leftover := tick % modTicks
			starting := tick - leftover
			if leftover > 0 {
				starting += modTicks
			}
			p.lastTick = starting - 1
		}
	})
}

func (b *MasterBus) Start() {
	b.eachClock(b.start)
}

func (b *MasterBus) start(clock Clock, p *outPort) {
	p.lastTick = -1
	if clock.Enabled() {
		p.pending = append(p.pending, midi.Start().Bytes())
	}
}

func (b *MasterBus) Stop() {
	b.eachClock(func(clock Clock, p *outPort) {
		p.lastTick = -1
		if clock.Enabled() {
			p.pending = append(p.pending, midi.Stop().Bytes())
		}
	})
}

// ContinueFrom sends the song position of tick, in sixteenths, then
// Continue. Clocking resumes on the next sixteenth.
func (b *MasterBus) ContinueFrom(tick music.Pulse) {
	b.eachClock(func(clock Clock, p *outPort) {
		b.continueFrom(clock, p, tick)
	})
}

func (b *MasterBus) continueFrom(clock Clock, p *outPort, tick music.Pulse) {
	pp16th := music.Pulse(b.opts.PPQN / 4)
	leftover := tick % pp16th
	beats := tick / pp16th
	starting := tick - leftover
	if leftover > 0 {
		starting += pp16th
	}
	p.lastTick = starting - 1
	if clock.Enabled() {
		p.pending = append(p.pending, midi.SPP(uint16(beats)).Bytes(), midi.Continue().Bytes())
	}
}

// Clock emits the timing clocks due up to tick, one every PPQN/24 pulses.
func (b *MasterBus) Clock(tick music.Pulse) {
	ct := music.Pulse(b.opts.PPQN / CLOCKS_PER_QN)
	if ct < 1 {
		ct = 1
	}
	b.eachClock(func(clock Clock, p *outPort) {
		if !clock.Enabled() {
			return
		}
		for p.lastTick < tick {
			p.lastTick++
			if p.lastTick%ct == 0 {
				p.pending = append(p.pending, midi.TimingClock().Bytes())
			}
		}
	})
}

// eachClock runs fn on every open output, then flushes.
func (b *MasterBus) eachClock(fn func(Clock, *outPort)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.opts.PPQN < 4 {
		return
	}
	for bus, p := range b.outs {
		if !b.usable(bus) {
			continue
		}
		fn(b.clocks.Get(bus), p)
	}
	b.flush()
}
