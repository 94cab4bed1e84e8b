package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/JeanRibes/seqloop/bus"
	"github.com/JeanRibes/seqloop/config"
	"github.com/JeanRibes/seqloop/control"
	"github.com/JeanRibes/seqloop/music"
	"github.com/JeanRibes/seqloop/mutes"
	"github.com/JeanRibes/seqloop/shared"
	"github.com/JeanRibes/seqloop/transport"
	charmlog "github.com/charmbracelet/log"
	"github.com/charmbracelet/lipgloss"
)

func newLogger(level string) *charmlog.Logger {
	lvl, err := charmlog.ParseLevel(level)
	if err != nil {
		lvl = charmlog.InfoLevel
	}
	logger := charmlog.NewWithOptions(os.Stderr, charmlog.Options{
		Level:        lvl,
		ReportCaller: lvl == charmlog.DebugLevel,
	})
	styles := charmlog.DefaultStyles()
	styles.Levels[charmlog.WarnLevel] = lipgloss.NewStyle().SetString("WARN").Bold(true).Foreground(lipgloss.Color("214"))
	styles.Levels[charmlog.ErrorLevel] = lipgloss.NewStyle().SetString("ERROR").Bold(true).Foreground(lipgloss.Color("204"))
	logger.SetStyles(styles)
	if err != nil {
		logger.Warn("bad log level, using info", "level", level)
	}
	return logger
}

func newBackend(cfg *config.Config) (bus.Backend, error) {
	switch cfg.Backend {
	case config.BACKEND_RTMIDI:
		return &bus.GomidiBackend{}, nil
	case config.BACKEND_SERIAL:
		b := &bus.SerialBackend{BaudRate: cfg.Serial.BaudRate, Channel: cfg.Serial.Channel}
		if cfg.Serial.Keymap != "" {
			keymap, err := bus.LoadKeymap(cfg.Serial.Keymap)
			if err != nil {
				return nil, err
			}
			b.Keymap = keymap
		}
		return b, nil
	case config.BACKEND_FAKE:
		return bus.NewFakeBackend([]string{"fake in"}, []string{"fake out"}), nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

func main() {
	configFile := flag.String("config", "seqloop.yaml", "YAML config file")
	backend := flag.String("backend", "", "port backend: rtmidi, serial or fake")
	level := flag.String("log", "", "log level")
	manual := flag.Bool("manual", false, "create virtual ports instead of connecting to the system ones")
	bpm := flag.Float64("bpm", 0, "tempo")
	fileName := flag.String("file", "", "load patterns from a MIDI file")
	mutesFile := flag.String("mutes", "", "mute groups file")
	portMap := flag.String("portmap", "", "port map file")
	list := flag.Bool("list", false, "list the ports and exit")
	useTUI := flag.Bool("tui", false, "show the terminal status view")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		charmlog.Fatal("config", "err", err)
	}
	if *backend != "" {
		cfg.Backend = *backend
	}
	if *level != "" {
		cfg.LogLevel = *level
	}
	if *manual {
		cfg.Manual = true
	}
	if *bpm != 0 {
		cfg.BPM = *bpm
	}
	if *fileName != "" {
		cfg.StateFile = *fileName
	}
	if *mutesFile != "" {
		cfg.Mutes.File = *mutesFile
	}
	if *portMap != "" {
		cfg.PortMapFile = *portMap
	}
	if err := cfg.Validate(); err != nil {
		charmlog.Fatal("config", "err", err)
	}

	logger := newLogger(cfg.LogLevel)
	if *useTUI {
		f, err := os.Create("seqloop.log")
		if err != nil {
			logger.Fatal("log file", "err", err)
		}
		defer f.Close()
		logger.SetOutput(f)
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	ctx = charmlog.WithContext(ctx, logger)

	backendImpl, err := newBackend(cfg)
	if err != nil {
		logger.Fatal("backend", "err", err)
	}
	mb := bus.New(backendImpl, bus.Options{
		ClientName:     cfg.ClientName,
		Manual:         cfg.Manual,
		VirtualOutputs: cfg.VirtualOutputs,
		VirtualInputs:  cfg.VirtualInputs,
		PPQN:           cfg.PPQN,
		ClockMod:       cfg.ClockMod,
		Logger:         logger,
	})

	pm := &bus.PortMap{}
	if cfg.PortMapFile != "" {
		loaded, err := bus.LoadPortMap(ctx, cfg.PortMapFile)
		switch {
		case errors.Is(err, os.ErrNotExist):
			logger.Info("no port map yet", "file", cfg.PortMapFile)
		case loaded != nil:
			pm = loaded
		default:
			logger.Warn("port map", "err", err)
		}
	}
	cfg.ApplyPorts(pm)
	mb.SetPortMap(pm)

	if err := mb.Activate(); err != nil {
		logger.Fatal("cannot activate the master bus", "err", err)
	}
	defer func() {
		if err := mb.Close(); err != nil {
			logger.Error(err)
		}
	}()

	if *list {
		outs, ins := mb.Ports()
		for i, e := range outs {
			fmt.Printf("out %2d %-6s %v %q\n", i, e.Clock, e.Available, e.Name)
		}
		for i, e := range ins {
			fmt.Printf("in  %2d %-6v %v %q\n", i, e.Enabled, e.Available, e.Name)
		}
		return
	}

	set := music.NewScreenset("seqloop", cfg.PPQN)
	if cfg.StateFile != "" {
		fileBPM, err := set.LoadFromFile(cfg.StateFile)
		if err != nil {
			logger.Fatal("load", "file", cfg.StateFile, "err", err)
		}
		if *bpm == 0 && fileBPM > 0 {
			cfg.BPM = fileBPM
		}
	}
	if len(set.Active()) == 0 {
		p, err := set.New(0)
		if err != nil {
			logger.Fatal(err)
		}
		p.SetArmed(true)
	}

	groups := mutes.New(cfg.Mutes.Rows, cfg.Mutes.Columns)
	cfg.ApplyMutes(groups)
	if cfg.Mutes.File != "" {
		if err := mutes.Load(ctx, cfg.Mutes.File, groups); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("mute groups", "err", err)
		}
	}

	out := control.NewOut(mb, logger)
	in := control.NewIn()
	if err := cfg.ApplyControl(out, in); err != nil {
		logger.Warn("control", "err", err)
	}

	tr := transport.New(set, mb, logger)
	tr.SetBPM(cfg.BPM)
	tr.SetControl(out, in)
	tr.SetMuteGroups(groups)

	SinkUI := make(chan shared.Message, 64)
	SinkLoop := make(chan shared.Message, 16)

	watcher := bus.NewWatcher(mb)
	go watcher.Run(ctx)
	go func() {
		for ev := range watcher.Events() {
			logger.Info("port", "name", ev.Name, "input", ev.Input, "connected", ev.Connected, "bus", ev.Bus)
			select {
			case SinkUI <- shared.Message{Type: shared.PortChanged, String: ev.Name, Boolean: ev.Connected, Number: ev.Bus}:
			default:
			}
		}
	}()

	if *useTUI {
		done := make(chan struct{})
		go func() {
			tr.Run(ctx, cancel, SinkUI, SinkLoop)
			close(done)
		}()
		if err := runTUI(ctx, tr, set, groups, SinkUI, SinkLoop); err != nil {
			logger.Error("tui", "err", err)
		}
		cancel()
		<-done
	} else {
		go logMessages(ctx, logger, SinkUI)
		tr.Run(ctx, cancel, SinkUI, SinkLoop)
	}

	if cfg.PortMapFile != "" {
		if err := bus.SavePortMap(ctx, cfg.PortMapFile, mb.PortMap()); err != nil {
			logger.Error(err)
		}
	}
	if cfg.Mutes.File != "" && groups.SaveTo != mutes.SaveToMIDI {
		if err := mutes.Save(ctx, cfg.Mutes.File, groups); err != nil {
			logger.Error(err)
		}
	}
}

// logMessages stands in for the UI when there is none.
func logMessages(ctx context.Context, logger *charmlog.Logger, SinkUI chan shared.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-SinkUI:
			if msg.Type == shared.Error {
				logger.Error(msg.String)
				continue
			}
			logger.Debug("ui", "type", msg.Type, "number", msg.Number, "on", msg.Boolean)
		}
	}
}
