package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kidoman/embd"
	_ "github.com/kidoman/embd/host/all"
	_ "github.com/kidoman/embd/host/rpi"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"tailscale.com/tsweb"

	"github.com/banshee-data/navcore/internal/avoidance"
	"github.com/banshee-data/navcore/internal/config"
	"github.com/banshee-data/navcore/internal/fusion"
	"github.com/banshee-data/navcore/internal/httputil"
	"github.com/banshee-data/navcore/internal/lidar"
	"github.com/banshee-data/navcore/internal/monitoring"
	"github.com/banshee-data/navcore/internal/motion"
	"github.com/banshee-data/navcore/internal/navigation"
	"github.com/banshee-data/navcore/internal/navlog"
	"github.com/banshee-data/navcore/internal/serialport"
	"github.com/banshee-data/navcore/internal/ultrasonic"
	"github.com/banshee-data/navcore/internal/version"
)

// options holds the parsed command line.
type options struct {
	configPath string
	devMode    bool
	listen     string
	dbPath     string
	goalName   string
	goalXY     string
	startPose  string
	speed      float64
	turnRate   float64
	arena      string
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("navcore", flag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", "", "Path to a .json, .toml or .yaml config file (defaults when empty)")
	fs.BoolVar(&o.devMode, "dev", false, "Run with simulated sensors and a dry-run motor sink")
	fs.StringVar(&o.listen, "listen", ":8080", "Listen address for metrics and debug pages")
	fs.StringVar(&o.dbPath, "db", "navlog.db", "Path to the navigation journal")
	fs.StringVar(&o.goalName, "goal", "target", "Name of the goal recorded in the journal")
	fs.StringVar(&o.goalXY, "goal-xy", "", "Route to this x,y position (metres) before searching for the target")
	fs.StringVar(&o.startPose, "start", "0.5,0.5,0", "Starting x,y,heading for odometry")
	fs.Float64Var(&o.speed, "speed", 0.3, "Nominal forward speed in m/s, used for odometry")
	fs.Float64Var(&o.turnRate, "turn-rate", 90, "Nominal spin rate in degrees/s, used for odometry")
	fs.StringVar(&o.arena, "arena", "4x3", "Arena DEPTHxWIDTH in metres for route planning")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if o.listen == "" {
		return options{}, errors.New("listen address is required")
	}
	return o, nil
}

func main() {
	logger := monitoring.NewConsoleLogger(os.Stderr, "navcore")
	monitoring.UseZerolog(logger)
	log.SetFlags(0)
	log.SetOutput(logger)

	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("invalid arguments: %v", err)
	}
	if err := run(opts); err != nil {
		log.Fatalf("navcore: %v", err)
	}
}

// run wires the robot together and blocks until a signal or a control loop
// failure. Setup errors are returned so deferred cleanup still runs.
func run(opts options) error {
	monitoring.Logf("starting %s", version.String())

	cfg := config.DefaultNavConfig()
	if opts.configPath != "" {
		var err error
		cfg, err = config.LoadNavConfig(opts.configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	}

	start, err := parsePose(opts.startPose)
	if err != nil {
		return fmt.Errorf("bad -start: %w", err)
	}
	goal := navigation.Goal{Name: opts.goalName}
	var grid *navigation.StaticGrid
	if opts.goalXY != "" {
		target, err := parsePose(opts.goalXY)
		if err != nil {
			return fmt.Errorf("bad -goal-xy: %w", err)
		}
		depth, width, err := parseArena(opts.arena)
		if err != nil {
			return fmt.Errorf("bad -arena: %w", err)
		}
		grid = navigation.NewStaticGrid(navigation.Arena(depth, width, cfg.GetGridCellSizeM()))
		goal.X, goal.Y, goal.Routed = target.X, target.Y, true
	}

	store, err := navlog.Open(opts.dbPath)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer store.Close()
	journal := navigation.NewJournalQueue(store, navigation.DefaultJournalBacklog)
	defer func() {
		if err := journal.Close(cfg.GetShutdownTimeout()); err != nil {
			log.Printf("journal flush: %v", err)
		}
	}()

	if !opts.devMode {
		if err := embd.InitGPIO(); err != nil {
			return fmt.Errorf("failed to initialise GPIO: %w", err)
		}
		defer embd.CloseGPIO()
	}

	// Sensors
	rangefinderCfg := lidar.RangefinderConfig{
		Path: cfg.GetLidarPort(),
		Port: serialport.PortOptions{
			BaudRate: cfg.GetLidarBaudRate(),
		},
		Sectors:  cfg.SectorConfig(),
		OffsetMM: cfg.GetLidarOffsetMM(),
	}
	pinOpener := func() (ultrasonic.Pins, error) {
		pins, err := ultrasonic.OpenGPIOPins(cfg.GetTriggerPin(), cfg.GetEchoPin())
		if err != nil {
			return nil, err
		}
		return pins, nil
	}
	if opts.devMode {
		replay := newDevPort()
		rangefinderCfg.Path = "replay"
		rangefinderCfg.Opener = func(string, serialport.PortOptions) (serialport.Port, error) {
			return replay, nil
		}
		pinOpener = func() (ultrasonic.Pins, error) {
			return ultrasonic.NewFakePins(devEcho), nil
		}
	}
	rangefinder := lidar.NewRangefinder(rangefinderCfg)
	ranger := ultrasonic.New(pinOpener, ultrasonic.Config{
		MaxRangeMM:  cfg.GetUltrasonicMaxRangeMM(),
		EchoTimeout: cfg.GetEchoTimeout(),
		Period:      cfg.GetUltrasonicPeriod(),
	})
	hub := fusion.NewHub(rangefinder, ranger)

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := hub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start sensors: %w", err)
	}
	// the controller closes the hub on a normal exit; this covers setup failures
	defer hub.Close(cfg.GetShutdownTimeout())

	// Motors
	var sink motion.Sink
	if opts.devMode {
		sink = &motion.LogSink{}
	} else {
		driver, err := motion.OpenGPIODriver(cfg.GetMotorRightPin(), cfg.GetMotorLeftPin())
		if err != nil {
			return fmt.Errorf("failed to open motor driver: %w", err)
		}
		defer driver.Close()
		sink = driver
	}

	odometry := navigation.NewOdometry(sink, start, opts.speed, opts.turnRate, nil)

	var route *navigation.RouteFollower
	if grid != nil {
		route = navigation.NewRouteFollower(navigation.RouteConfig{
			Connectivity:        cfg.GetGridConnectivity(),
			HeadingToleranceDeg: cfg.GetHeadingToleranceDeg(),
			ReplanBackoff:       cfg.GetReplanBackoff(),
			MaxAttempts:         cfg.GetMaxReplanAttempts(),
		}, odometry, grid)
	}

	sup := navigation.NewSupervisor(navigation.SupervisorConfig{
		Sensors:       hub,
		Arbiter:       avoidance.New(cfg.ArbiterConfig(), nil),
		Vision:        noVision{},
		Route:         route,
		Journal:       journal,
		SearchCommand: cfg.GetSearchCommand(),
	})
	runID := sup.Begin(goal)
	monitoring.Logf("run %s started, goal %q", runID, goal.Name)

	controller := navigation.NewController(sup, hub, odometry, navigation.ControllerConfig{
		Period:          cfg.GetControlPeriod(),
		ShutdownTimeout: cfg.GetShutdownTimeout(),
		OnExit:          sup.End,
	})

	// control loop; a failure here shuts everything else down
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer stop()
		if err := controller.Run(ctx); err != nil {
			log.Printf("control loop failed: %v", err)
		}
		log.Print("control routine terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		monitoring.RegisterMetrics()

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		store.AttachAdminRoutes(mux)

		debug := tsweb.Debugger(mux)
		debug.KV("Version", version.String())
		debug.Handle("nav", "Supervisor, avoidance and route state (JSON)", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !httputil.RequireGet(w, r) {
				return
			}
			httputil.JSON(w, http.StatusOK, struct {
				Supervisor navigation.Status     `json:"supervisor"`
				Devices    []fusion.DeviceStatus `json:"devices"`
				Reading    fusion.Reading        `json:"reading"`
				Backlog    int                   `json:"journal_backlog"`
			}{sup.Status(), hub.Status(), hub.Reading(), journal.Backlog()})
		}))

		server := &http.Server{
			Addr:    opts.listen,
			Handler: mux,
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("failed to start server: %v", err)
				stop()
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
	return nil
}
