package bus

import (
	"context"
	"time"
)

const DEFAULT_POLL_RATE = time.Second

// PortEvent reports a port that appeared or went away.
type PortEvent struct {
	Name      string
	Input     bool
	Connected bool
	Bus       int
}

// Watcher polls the backend's port lists and keeps the master bus in step
// with them.
type Watcher struct {
	bus      *MasterBus
	backend  Backend
	PollRate time.Duration
	events   chan PortEvent
	failed   map[string]bool
}

func NewWatcher(b *MasterBus) *Watcher {
	return &Watcher{
		bus:      b,
		backend:  b.backend,
		PollRate: DEFAULT_POLL_RATE,
		events:   make(chan PortEvent, 16),
		failed:   map[string]bool{},
	}
}

func (w *Watcher) Events() <-chan PortEvent {
	return w.events
}

// Run blocks until ctx is done, then closes the event channel.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.PollRate)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			close(w.events)
			return
		case <-ticker.C:
			w.Scan()
		}
	}
}

type portLists struct {
	ins, outs []string
	err       error
}

// Scan compares one enumeration with the master bus tables. Some drivers
// hang while enumerating; a scan that takes too long is skipped.
func (w *Watcher) Scan() {
	ch := make(chan portLists, 1)
	go func() {
		var res portLists
		res.ins, res.err = w.backend.Inputs()
		if res.err == nil {
			res.outs, res.err = w.backend.Outputs()
		}
		ch <- res
	}()
	var seen portLists
	select {
	case seen = <-ch:
	case <-time.After(3 * time.Second):
		w.bus.logger.Warn("port scan timed out")
		return
	}
	if seen.err != nil {
		w.bus.logger.Warn("port scan", "err", seen.err)
		return
	}
	outs, ins := w.bus.Ports()
	w.diff(ins, seen.ins, true)
	w.diff(outs, seen.outs, false)
}

func (w *Watcher) diff(known []Entry, names []string, input bool) {
	present := map[string]bool{}
	for _, name := range names {
		present[name] = true
	}
	available := map[string]bool{}
	for _, e := range known {
		if e.Available {
			available[e.Name] = true
		}
	}
	for name := range w.failed {
		if !present[name] {
			delete(w.failed, name)
		}
	}
	for _, name := range names {
		if available[name] || w.failed[name] {
			continue
		}
		bus := w.bus.PortStart(name, input)
		if bus == NullBus || !w.bus.available(bus, input) {
			w.failed[name] = true
			continue
		}
		w.notify(PortEvent{Name: name, Input: input, Connected: true, Bus: bus})
	}
	for _, e := range known {
		if e.Available && !present[e.Name] {
			if w.bus.PortExit(e.Name, input) {
				w.notify(PortEvent{Name: e.Name, Input: input, Bus: w.bus.busFromName(e.Name, input)})
			}
		}
	}
}

func (w *Watcher) notify(ev PortEvent) {
	select {
	case w.events <- ev:
	default:
	}
}

func (b *MasterBus) available(bus int, input bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if input {
		return b.inputs.IsAvailable(bus)
	}
	return b.clocks.IsAvailable(bus)
}

func (b *MasterBus) busFromName(name string, input bool) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if input {
		return b.inputs.BusFromName(name)
	}
	return b.clocks.BusFromName(name)
}
