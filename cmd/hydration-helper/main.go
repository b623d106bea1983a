// Command hydration-helper weighs a water bottle, tracks how much has been
// drunk, shows reminders on an LED strip and publishes readings to MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/grdaneault/hydration-helper/internal/anim"
	"github.com/grdaneault/hydration-helper/internal/config"
	"github.com/grdaneault/hydration-helper/internal/control"
	"github.com/grdaneault/hydration-helper/internal/forward"
	"github.com/grdaneault/hydration-helper/internal/logic"
	"github.com/grdaneault/hydration-helper/internal/mqtt"
	"github.com/grdaneault/hydration-helper/internal/pixel"
	"github.com/grdaneault/hydration-helper/internal/scale"
	"github.com/grdaneault/hydration-helper/internal/status"
	"github.com/grdaneault/hydration-helper/internal/store"
	"github.com/grdaneault/hydration-helper/internal/web"
)

// flags are the command line overrides. Only flags given on the command
// line replace config file values.
type flags struct {
	config     string
	broker     string
	httpAddr   string
	serial     string
	db         string
	debug      bool
	printState bool

	set map[string]bool
}

func parseFlags(args []string, out io.Writer) (flags, error) {
	var f flags
	fs := flag.NewFlagSet("hydration-helper", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(&f.config, "config", "", "YAML config file (empty for built-in defaults)")
	fs.StringVar(&f.broker, "broker", "", "MQTT broker address, e.g. tcp://192.168.1.200:1883 (empty disables MQTT)")
	fs.StringVar(&f.httpAddr, "http", "", "HTTP status address (empty disables)")
	fs.StringVar(&f.serial, "serial", "", "Serial port of the LED bridge (empty disables the strip)")
	fs.StringVar(&f.db, "db", "", "SQLite history database path (empty disables history)")
	fs.BoolVar(&f.debug, "debug", false, "Development logging at debug level")
	fs.BoolVar(&f.printState, "print-state", false, "Print one raw reading and exit")
	if err := fs.Parse(args); err != nil {
		return f, err
	}

	f.set = make(map[string]bool)
	fs.Visit(func(fl *flag.Flag) { f.set[fl.Name] = true })
	return f, nil
}

func (f flags) apply(cfg *config.Config) {
	if f.set["broker"] {
		cfg.MQTT.Broker = f.broker
	}
	if f.set["http"] {
		cfg.HTTP.Addr = f.httpAddr
	}
	if f.set["serial"] {
		cfg.Pixels.Serial = f.serial
	}
	if f.set["db"] {
		cfg.Store.Path = f.db
	}
}

func loadConfig(f flags, getenv func(string) string) (config.Config, error) {
	cfg, err := config.Load(f.config)
	if err != nil {
		return cfg, err
	}
	f.apply(&cfg)
	cfg.ApplyEnv(getenv)
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func main() {
	f, err := parseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		os.Exit(2)
	}

	log, err := newLogger(f.debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	cfg, err := loadConfig(f, os.Getenv)
	if err != nil {
		log.Fatal("load config", zap.Error(err))
	}

	if err := run(cfg, f.printState, log); err != nil {
		log.Fatal("fatal", zap.Error(err))
	}
}

func run(cfg config.Config, printOnly bool, log *zap.Logger) error {
	sensor, err := scale.OpenNAU7802(cfg.Scale.NAU7802())
	if err != nil {
		return fmt.Errorf("init scale: %w", err)
	}
	sc := scale.New(sensor, scale.NewFilter(cfg.Scale.StabilitySamples, cfg.Scale.StabilityLimitRaw, cfg.Scale.GramsPerRaw))
	defer sc.Close()

	if printOnly {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return printState(ctx, sc, os.Stdout)
	}

	strip := pixel.NewSerialStrip(io.Discard, cfg.Pixels.Count)
	if cfg.Pixels.Serial != "" {
		s, port, err := pixel.OpenSerialStrip(cfg.Pixels.Serial, cfg.Pixels.Baud, cfg.Pixels.Count)
		if err != nil {
			return fmt.Errorf("init strip: %w", err)
		}
		defer port.Close()
		strip = s
	} else {
		log.Info("no serial port configured, LED strip disabled")
	}
	strip.SetBrightness(cfg.Pixels.Brightness)

	// Left nil when no store is configured so the interfaces stay nil too.
	var (
		rec  forward.Recorder
		hist web.History
	)
	if cfg.Store.Path != "" {
		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()
		rec, hist = st, st
	}

	session := uuid.NewString()

	var (
		pub      mqtt.Publisher = mqtt.NopPublisher{}
		conn     mqtt.ConnectionStatus
		commands <-chan mqtt.Command
	)
	if cfg.MQTT.Broker != "" {
		rp, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:     cfg.MQTT.Broker,
			ClientID:   cfg.MQTT.ClientID + "-" + session[:8],
			Username:   cfg.MQTT.Username,
			Password:   cfg.MQTT.Password,
			Session:    session,
			BufferSize: cfg.MQTT.BufferSize,
			Log:        log.Named("mqtt"),
		})
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer rp.Close()
		pub, conn, commands = rp, rp, rp.Commands()
	} else {
		log.Info("no broker configured, MQTT disabled")
	}

	fwd := forward.New(pub, rec, cfg.Loop.QueueSize, log.Named("forward"))
	fwdCtx, stopForward := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Go(func() { fwd.Run(fwdCtx) })
	// Runs before the publisher and store are closed so queued items get out.
	defer func() {
		stopForward()
		wg.Wait()
	}()

	tracker := status.NewTracker(time.Now(), session, status.Config{
		Hydration: cfg.Hydration,
		Heartbeat: cfg.Loop.Heartbeat,
		FrameRate: cfg.Pixels.FrameRate,
		Broker:    cfg.MQTT.Broker,
		HTTPAddr:  cfg.HTTP.Addr,
		Serial:    cfg.Pixels.Serial,
	}, nil)

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, hist, log.Named("web"))
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("http server error", zap.Error(err))
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(ctx) //nolint:errcheck
		}()
		log.Info("http status server listening", zap.String("addr", cfg.HTTP.Addr))
	}

	engine := anim.NewEngine(strip, cfg.Pixels.FrameRate, log.Named("anim"))
	loop := control.New(control.Deps{
		Scale:     sc,
		Machine:   logic.NewMachine(cfg.Hydration, logic.DefaultAnimations(), engine, nil),
		Engine:    engine,
		Dimmer:    strip,
		Forwarder: fwd,
		Tracker:   tracker,
		Conn:      conn,
		Commands:  commands,
		Log:       log.Named("control"),
		Session:   session,
		Heartbeat: cfg.Loop.Heartbeat,
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	// A signal during startup cancels it; sigCh still holds the signal, so
	// Run below shuts down straight away.
	startCtx, stopStart := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = loop.Startup(startCtx)
	stopStart()
	switch {
	case errors.Is(err, context.Canceled):
		log.Info("startup interrupted")
	case err != nil:
		return fmt.Errorf("startup: %w", err)
	default:
		loop.PublishStartup()
	}

	log.Info("started",
		zap.String("session", session),
		zap.Duration("tick", cfg.Loop.Tick),
		zap.String("broker", cfg.MQTT.Broker),
		zap.Duration("heartbeat", cfg.Loop.Heartbeat))

	ticker := time.NewTicker(cfg.Loop.Tick)
	defer ticker.Stop()

	return loop.Run(ticker.C, sigCh)
}

// printState does one blocking raw read and prints it with its gram value.
func printState(ctx context.Context, sc *scale.Scale, w io.Writer) error {
	raw, err := sc.ReadRawBlocking(ctx, 10*time.Millisecond)
	if err != nil {
		return fmt.Errorf("read scale: %w", err)
	}
	fmt.Fprintf(w, "raw: %d, grams: %.1f, empty: %t\n", raw, sc.Grams(raw), raw <= scale.NotEmptyRaw)
	return nil
}
