package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/samaelod/netimp/capture"
	"github.com/samaelod/netimp/config"
	"github.com/samaelod/netimp/engine"
	"github.com/samaelod/netimp/tui"
	"github.com/samaelod/netimp/types"
)

const (
	debugLogPath   = "netimp-debug.log"
	autoCapture    = "auto"
	shutdownPeriod = time.Second
)

func newRootCmd() *cobra.Command {
	var o config.Options

	cmd := &cobra.Command{
		Use:   "netimp",
		Short: "UDP relay that drops and delays datagrams between one client and one server",
		Long: `netimp sits between a client and a server and forwards UDP datagrams
carrying the 0x03 0x03 marker. Each direction has its own drop percentage
and delay upper bound, adjustable live from the control panel.`,
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), o)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.ReceiverIP, "rip", "", "server IP address (IPv4 or IPv6)")
	f.IntVar(&o.ReceiverPort, "rport", 0, "server UDP port")
	f.IntVar(&o.BindPort, "port", 0, "local UDP port to listen on")
	f.StringVar(&o.BindIP, "bind-ip", "", "local address to listen on (default: outbound interface address)")
	f.IntVar(&o.SenderDrop, "dropd", 0, "percent of client->server datagrams to drop")
	f.IntVar(&o.ReceiverDrop, "dropa", 0, "percent of server->client datagrams to drop")
	f.IntVar(&o.DataDelay, "delays", 0, "upper bound of client->server delay, in ms")
	f.IntVar(&o.AckDelay, "delayr", 0, "upper bound of server->client delay, in ms")
	f.StringVar(&o.LogPath, "log", "", "event log file (default: <logs_dir>/<session>.log)")
	f.StringVar(&o.CapturePath, "capture", "", "write relayed datagrams to a pcap file")
	f.Lookup("capture").NoOptDefVal = autoCapture
	f.StringVar(&o.ProfilePath, "profile", "", "Lua profile applied at startup and on SIGHUP")
	f.StringVar(&o.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	f.IntVar(&o.MaxInFlight, "max-inflight", 0, "cap on delayed datagrams waiting to be sent (0: unbounded)")
	f.BoolVar(&o.Headless, "headless", false, "run without the control panel")
	f.StringVar(&o.ConfigPath, "config", "", "app config file, JSON or TOML")
	f.DurationVar(&o.Drain, "drain", 2*time.Second, "how long to wait for delayed datagrams on shutdown")

	cmd.MarkFlagRequired("rip")
	cmd.MarkFlagRequired("rport")
	cmd.MarkFlagRequired("port")

	cmd.AddCommand(newInspectCmd(), newReplayCmd())
	return cmd
}

func newLogger(headless bool) (*zap.Logger, error) {
	if !headless && version != "dev" {
		return zap.NewNop(), nil
	}

	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if !headless {
		// stderr belongs to the terminal UI
		cfg.OutputPaths = []string{debugLogPath}
		cfg.ErrorOutputPaths = []string{debugLogPath}
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

func run(ctx context.Context, o config.Options) error {
	if err := o.Validate(); err != nil {
		return err
	}

	appCfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := newLogger(o.Headless)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()

	session := petname.Generate(2, "-")
	log = log.With(zap.String("session", session))

	store, err := engine.NewStore(o.Impairment())
	if err != nil {
		return err
	}

	var profileStatus string
	if o.ProfilePath != "" {
		p, err := applyProfile(store, o.ProfilePath)
		if err != nil {
			return err
		}
		profileStatus = p.Status
		log.Info("profile applied", zap.String("path", o.ProfilePath))
	}

	logPath := o.LogPath
	if logPath == "" {
		if err := os.MkdirAll(appCfg.LogsDir, 0755); err != nil {
			return fmt.Errorf("failed to create logs directory: %w", err)
		}
		logPath = filepath.Join(appCfg.LogsDir, session+".log")
	}
	events, err := engine.NewLogger(logPath, appCfg.LogLines)
	if err != nil {
		return err
	}
	defer events.Close()

	var tap engine.Tap
	if o.CapturePath != "" {
		trace, err := openTrace(o.CapturePath, appCfg.CapturesDir, session)
		if err != nil {
			return err
		}
		defer func() {
			if err := trace.Close(); err != nil {
				log.Warn("closing capture", zap.Error(err))
			}
			if n := trace.Dropped(); n > 0 {
				log.Warn("capture fell behind", zap.Uint64("dropped", n))
			}
		}()
		tap = trace
	}

	conn, err := engine.Bind(o.Bind(), o.BindPort)
	if err != nil {
		return err
	}
	defer conn.Close()

	metrics := engine.NewMetrics()
	relay := engine.New(conn, store, events, engine.Options{
		Server:      o.Server(),
		MaxInFlight: int64(o.MaxInFlight),
		BufferSize:  appCfg.BufferSize,
		Metrics:     metrics,
		Tap:         tap,
		Log:         log,
	})
	if o.Headless {
		fmt.Fprintf(os.Stderr, "netimp %s: relaying %s <-> %s, events in %s\n",
			session, relay.Local(), relay.Server(), logPath)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return relay.Run(gctx)
	})

	if o.ProfilePath != "" {
		g.Go(func() error {
			return reloadOnHangup(gctx, o.ProfilePath, store, events, log)
		})
	}

	metricsAddr := o.MetricsAddr
	if metricsAddr == "" {
		metricsAddr = appCfg.MetricsAddr
	}
	if metricsAddr != "" {
		serveMetrics(gctx, g, metricsAddr, metrics, log)
	}

	if !o.Headless {
		panel := tui.New(relay, tui.Options{
			Version:       version,
			Session:       session,
			ProfilePath:   o.ProfilePath,
			ProfileStatus: profileStatus,
			RecentDir:     appCfg.RecentDir,
			Flags: func(cfg types.ImpairmentConfig) string {
				return config.Flags(o, cfg)
			},
		})
		g.Go(func() error {
			// quitting the panel stops the relay
			defer cancel()
			return tui.Run(gctx, panel)
		})
	}

	err = g.Wait()

	drainCtx, stop := context.WithTimeout(context.Background(), o.Drain)
	defer stop()
	if derr := relay.Drain(drainCtx); derr != nil {
		log.Warn("shutting down with delayed datagrams in flight",
			zap.Int64("in_flight", relay.InFlight()))
	}

	return err
}

// openTrace creates the capture file. The bare --capture flag names it
// after the session in the captures directory.
func openTrace(path, dir, session string) (*capture.Trace, error) {
	if path == autoCapture {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create captures directory: %w", err)
		}
		path = filepath.Join(dir, session+".pcap")
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create capture file: %w", err)
	}
	trace, err := capture.NewTrace(f, capture.DefaultSnapLen)
	if err != nil {
		f.Close()
		return nil, err
	}
	return trace, nil
}

func serveMetrics(ctx context.Context, g *errgroup.Group, addr string, m *engine.Metrics, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	g.Go(func() error {
		log.Info("serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownPeriod)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
