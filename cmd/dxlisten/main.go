// Command dxlisten connects to one or more DX cluster nodes, logs in with a
// callsign and streams the parsed spots to the console, the archive and the
// configured publishers.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"dxlistener/config"
	"dxlistener/listener"
	"dxlistener/manager"
	"dxlistener/stats"
	"dxlistener/ui"
)

const (
	envConfigPath     = "DXLISTEN_CONFIG"
	defaultConfigPath = "data/config"
	statsInterval     = time.Minute
)

type options struct {
	configPath  string
	host        string
	port        uint16
	call        string
	json        bool
	uiMode      string
	printConfig bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := pflag.NewFlagSet("dxlisten", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&o.configPath, "config", "c", "", "config file or directory (default $"+envConfigPath+" or "+defaultConfigPath+")")
	fs.StringVar(&o.host, "host", "", "single cluster host; skips the config clusters")
	fs.Uint16VarP(&o.port, "port", "p", 7300, "single cluster port")
	fs.StringVar(&o.call, "call", "", "login callsign (overrides config)")
	fs.BoolVar(&o.json, "json", false, "print spots as JSON lines")
	fs.StringVar(&o.uiMode, "ui", "", "console surface: headless or tview (overrides config)")
	fs.BoolVar(&o.printConfig, "print-config", false, "print the effective configuration and exit")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: dxlisten [flags]\n\n%s", fs.FlagUsages())
	}
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.host != "" && o.call == "" {
		return o, errors.New("--host requires --call")
	}
	return o, nil
}

// loadConfig builds the configuration from --host/--call alone, or loads it
// from --config, the environment or the default directory.
func loadConfig(o options) (*config.Config, error) {
	if o.host != "" {
		cfg := &config.Config{
			Callsign: o.call,
			Clusters: []config.ClusterConfig{{Name: o.host, Host: o.host, Port: int(o.port)}},
		}
		cfg.ApplyDefaults()
		cfg.LoadedFrom = "flags"
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	path := o.configPath
	if path == "" {
		path = strings.TrimSpace(os.Getenv(envConfigPath))
	}
	if path == "" {
		path = defaultConfigPath
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if o.call != "" {
		cfg.Callsign = strings.ToUpper(strings.TrimSpace(o.call))
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	opts, err := parseFlags(args, os.Stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "dxlisten: %v\n", err)
		return 2
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		return 1
	}
	if opts.uiMode != "" {
		cfg.UI.Mode = opts.uiMode
	}
	if opts.printConfig {
		cfg.Print()
		return 0
	}

	fanout, err := setupLogging(cfg.Logging, os.Stderr)
	log.SetFlags(0)
	log.SetOutput(fanout)
	defer fanout.Close()
	if err != nil {
		log.Printf("Logging: file sink disabled: %v", err)
	}
	log.Printf("Loaded configuration from %s", cfg.LoadedFrom)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	interactive := term.IsTerminal(int(os.Stdout.Fd()))
	var surface ui.Surface
	switch strings.ToLower(strings.TrimSpace(cfg.UI.Mode)) {
	case "", "headless":
	case "tview":
		if !interactive {
			log.Printf("UI disabled (tview requires an interactive console)")
			break
		}
		dash := ui.NewDashboard(time.Duration(cfg.UI.RefreshMS)*time.Millisecond, cfg.UI.MaxSpots)
		dash.WaitReady()
		fanout.SetConsole(dash.SystemWriter(), true)
		surface = dash
		defer dash.Stop()
	default:
		log.Printf("UI mode %q not recognized; running headless", cfg.UI.Mode)
	}

	var metrics *stats.Metrics
	if cfg.Metrics.Enabled {
		metrics = stats.NewMetrics(cfg.Metrics.Namespace)
	}
	tracker := stats.NewTracker(metrics)
	if metrics != nil {
		go func() {
			if err := stats.Serve(ctx, cfg.Metrics.Listen, stats.Handler(metrics, tracker)); err != nil {
				log.Printf("Metrics: %v", err)
			}
		}()
	}

	var out listener.Sink
	if surface != nil {
		out = surfaceSink{surface: surface}
	} else {
		out = newConsoleSink(os.Stdout, opts.json || !interactive)
	}

	pipe, err := buildPipeline(ctx, cfg, out, surface)
	if err != nil {
		log.Printf("Startup failed: %v", err)
		return 1
	}
	defer pipe.Close()
	if surface != nil {
		if n := pipe.backfill(cfg.UI.MaxSpots, surface.AppendSpot); n > 0 {
			log.Printf("Archive: replayed %d recent spots", n)
		}
	}

	mgr := manager.New(pipe.head, manager.Options{
		PollInterval:   time.Duration(cfg.Supervisor.PollIntervalMS) * time.Millisecond,
		ConnectTimeout: cfg.Listener.ConnectTimeout(),
		Reconnect:      cfg.Supervisor.Reconnect,
		BackoffBase:    time.Duration(cfg.Supervisor.BackoffBaseSeconds) * time.Second,
		BackoffMax:     time.Duration(cfg.Supervisor.BackoffMaxSeconds) * time.Second,
		OnReconnect:    tracker.Reconnected,
	})
	for _, cl := range cfg.EnabledClusters() {
		if err := mgr.Add(endpointFor(cfg, cl, tracker)); err != nil {
			log.Printf("Startup failed: %v", err)
			return 1
		}
	}

	if err := mgr.Start(ctx); err != nil {
		if connectedCount(mgr.Statuses()) == 0 && !cfg.Supervisor.Reconnect {
			log.Printf("Startup failed: no cluster connected: %v", err)
			_ = mgr.Stop()
			return 1
		}
		log.Printf("Some clusters failed to connect: %v", err)
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	if surface != nil {
		go func() {
			select {
			case <-surface.Done():
				cancelRun()
			case <-runCtx.Done():
			}
		}()
	}
	go reportStats(runCtx, tracker, mgr, pipe, surface)

	if err := mgr.Run(runCtx); err != nil {
		log.Printf("Shutdown: %v", err)
	}
	log.Printf("Shutdown complete: %s", summaryLine(tracker, pipe))
	return 0
}

// endpointFor maps one configured cluster onto listener settings.
func endpointFor(cfg *config.Config, cl config.ClusterConfig, tracker *stats.Tracker) manager.Endpoint {
	transport := cfg.Listener.Transport
	if cl.Transport != "" {
		transport = cl.Transport
	}
	return manager.Endpoint{
		Name: cl.Name,
		Handle: listener.Handle{
			Host:     cl.Host,
			Port:     uint16(cl.Port),
			Callsign: cfg.CallsignFor(cl),
		},
		Settings: listener.Settings{
			Name:          cl.Name,
			PollInterval:  cfg.Listener.PollInterval(),
			AuthRetries:   cfg.Listener.AuthRetries,
			Prompts:       cfg.Listener.Prompts,
			MaxLineLength: cfg.Listener.MaxLineLength,
			WriteTimeout:  cfg.Listener.WriteTimeout(),
			Transport:     listener.Transport(transport),
			Observer:      tracker,
		},
	}
}

func connectedCount(statuses []manager.Status) int {
	n := 0
	for _, st := range statuses {
		if st.Sessions > 0 {
			n++
		}
	}
	return n
}
