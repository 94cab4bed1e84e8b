package transport

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/JeanRibes/seqloop/shared"
	charmlog "github.com/charmbracelet/log"
)

const TICK_RATE = time.Millisecond

// Run drives the transport until ctx is done: a ticker converts wall time
// to pulses, a second goroutine polls the inputs and SinkLoop carries the
// UI requests. The busses are silenced on the way out.
func (t *Transport) Run(ctx context.Context, cancel func(), SinkUI, SinkLoop chan shared.Message) {
	logger := t.logger
	ctx = context.WithValue(ctx, charmlog.ContextKey, logger)
	t.SetSink(SinkUI)
	logger.Info("start", "ppqn", t.set.PPQN, "bpm", t.BPM())

	for _, st := range t.set.Stats() {
		t.notify(shared.Message{Type: shared.PatternChanged, Number: st.Slot, Boolean: st.Playing, Number2: int(st.Length)})
	}

	go t.pollInput(ctx)

	ticker := time.NewTicker(TICK_RATE)
	defer ticker.Stop()
	last := time.Now()
loopchan:
	for {
		select {
		case <-ctx.Done():
			logger.Debug("context Done")
			break loopchan
		case now := <-ticker.C:
			t.elapse(now.Sub(last))
			last = now
		case msg := <-SinkLoop:
			if msg.Type == shared.Quit {
				logger.Info("quit requested")
				cancel()
				break loopchan
			}
			t.handle(msg)
		}
	}
	t.Stop()
	logger.Info("stop")
}

func (t *Transport) pollInput(ctx context.Context) {
	for ctx.Err() == nil {
		if t.bus.PollForMIDI() > 0 {
			t.HandleInput()
		}
	}
}

func (t *Transport) fail(err error) {
	t.logger.Error(err)
	t.Lock()
	t.notify(shared.Message{Type: shared.Error, String: err.Error()})
	t.Unlock()
}

func (t *Transport) handle(msg shared.Message) {
	logger := t.logger
	switch msg.Type {
	case shared.PlayPause:
		if t.IsRunning() {
			t.Pause()
		} else {
			t.Start()
		}
	case shared.Stop:
		t.Stop()
	case shared.Panic:
		t.Panic()
	case shared.Record:
		t.SetRecording(msg.Boolean)
		logger.Debug("record", "on", msg.Boolean)
	case shared.BPM:
		t.SetBPM(float64(msg.Number))
	case shared.PatternToggle:
		if !t.TogglePattern(msg.Number) {
			logger.Warn("tried to toggle empty slot", "slot", msg.Number)
		}
	case shared.PatternQueue:
		t.QueuePattern(msg.Number)
	case shared.PatternOneShot:
		t.OneShot(msg.Number)
	case shared.PatternArm:
		t.ArmPattern(msg.Number, msg.Boolean)
	case shared.PatternClear:
		t.ClearPattern(msg.Number)
	case shared.MuteGroup:
		if !t.ToggleMuteGroup(msg.Number) {
			logger.Warn("no such mute group", "group", msg.Number)
		}
	case shared.Quantize:
		p := t.set.Pattern(msg.Number)
		if p == nil {
			logger.Warn("tried to quantize empty slot", "slot", msg.Number)
			return
		}
		bpm := t.BPM()
		go func() {
			logger.Printf("quantize %s at %d BPM", p.Name(), int(math.Round(bpm)))
			if err := p.QuantizeSMF(bpm, t.set.PPQN); err != nil {
				t.fail(fmt.Errorf("quantize %s: %w", p.Name(), err))
				return
			}
			t.Lock()
			t.notify(shared.Message{Type: shared.Quantize, Number: msg.Number})
			t.Unlock()
		}()
	case shared.StateImport:
		logger.Debug("loading state", "file", msg.String)
		t.Stop()
		bpm, err := t.set.LoadFromFile(msg.String)
		if err != nil {
			t.fail(err)
			return
		}
		if bpm > 0 {
			t.SetBPM(bpm)
		}
		for _, st := range t.set.Stats() {
			t.Lock()
			t.notify(shared.Message{Type: shared.PatternChanged, Number: st.Slot, Boolean: st.Playing, Number2: int(st.Length)})
			t.Unlock()
		}
	case shared.StateExport:
		fileName := msg.String
		if !strings.HasSuffix(fileName, ".mid") {
			fileName += ".mid"
		}
		logger.Info("saving to", "filename", fileName)
		if err := t.set.SaveToFile(fileName, t.BPM()); err != nil {
			t.fail(err)
		}
	default:
		logger.Printf("unknown message type: %#v", msg.Type)
	}
}
