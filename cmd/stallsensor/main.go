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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/banshee-data/stallsensor/internal/autocorrect"
	"github.com/banshee-data/stallsensor/internal/config"
	"github.com/banshee-data/stallsensor/internal/console"
	"github.com/banshee-data/stallsensor/internal/db"
	"github.com/banshee-data/stallsensor/internal/door"
	"github.com/banshee-data/stallsensor/internal/metrics"
	"github.com/banshee-data/stallsensor/internal/monitoring"
	"github.com/banshee-data/stallsensor/internal/occupancy"
	"github.com/banshee-data/stallsensor/internal/radar"
	"github.com/banshee-data/stallsensor/internal/serialport"
	"github.com/banshee-data/stallsensor/internal/telemetry"
	"github.com/banshee-data/stallsensor/internal/timeutil"
	"github.com/banshee-data/stallsensor/internal/version"
	"github.com/banshee-data/stallsensor/internal/watchdog"
)

var (
	listen      = flag.String("listen", ":8080", "Listen address for /metrics and the debug routes")
	devMode     = flag.Bool("dev", false, "Run with a synthetic radar and a replayed door sensor")
	portName    = flag.String("port", "/dev/ttyUSB0", "Serial port of the INS radar")
	baudRate    = flag.Int("baud", serialport.DefaultBaudRate, "Radar serial baud rate")
	dbFile      = flag.String("db-path", "stallsensor.db", "Path to the sqlite database")
	tuningFile  = flag.String("tuning", "", "Optional tuning JSON file (see "+config.DefaultConfigPath+")")
	doorFixture = flag.String("door-fixture", "", "Door replay fixture for dev mode (built-in session if empty)")
	doorIDFlag  = flag.String("door-id", "", "Door sensor ID as AA,BB,CC; overrides the stored ID")
	logLevel    = flag.String("log-level", "info", "Log level: debug, info, warn or error")
	logFormat   = flag.String("log-format", "console", "Log format: console or json")
	watchdogDur = flag.Duration("watchdog", watchdog.DefaultPeriod, "Time allowed in a reset-permitted state before restarting")
	showVersion = flag.Bool("version", false, "Print the version and exit")
)

// MQTT flags
var (
	mqttBroker   = flag.String("mqtt-broker", "", "MQTT broker URL, e.g. tcp://localhost:1883 (telemetry is logged only if empty)")
	mqttClientID = flag.String("mqtt-client-id", "stallsensor", "MQTT client ID")
	mqttUser     = flag.String("mqtt-username", "", "MQTT username")
	mqttPassword = flag.String("mqtt-password", "", "MQTT password")
	mqttTopic    = flag.String("mqtt-topic", "stallsensor", "MQTT topic prefix")
	mqttQoS      = flag.Int("mqtt-qos", 1, "MQTT publish QoS")
)

// Constants
const (
	serviceName      = "stallsensor"
	devFramePeriod   = 50 * time.Millisecond
	consoleTimeout   = 2 * time.Second
	shutdownTimeout  = time.Second
	resetReasonBoot  = "UNKNOWN"
	resetReasonClean = "POWER_DOWN"
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println("stallsensor", version.String())
		return
	}

	logger, err := monitoring.Init(*logLevel, *logFormat, serviceName)
	if err != nil {
		log.Fatalf("failed to initialise logging: %v", err)
	}
	defer logger.Sync()

	tuning := &config.TuningConfig{}
	if *tuningFile != "" {
		tuning, err = config.LoadTuningConfig(*tuningFile)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
	}

	store, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer store.Close()

	thresholds, err := config.LoadThresholds(store)
	if err != nil {
		log.Fatalf("failed to load thresholds: %v", err)
	}
	doorID, err := loadDoorID(store, *doorIDFlag)
	if err != nil {
		log.Fatalf("failed to load door sensor ID: %v", err)
	}
	resetReason, err := takeResetReason(store)
	if err != nil {
		log.Fatalf("failed to read reset reason: %v", err)
	}
	autoCorrectOn, err := config.GetOrSeed(store, config.KeyAutoCorrect, "1")
	if err != nil {
		log.Fatalf("failed to read auto-correct setting: %v", err)
	}
	monitoring.Logf("stallsensor %s starting: door %s, reset reason %s, thresholds %+v",
		version.String(), doorID, resetReason, thresholds)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(registry)
	if err != nil {
		log.Fatalf("failed to register metrics: %v", err)
	}

	// Create a context that is cancelled on SIGINT/SIGTERM or by the watchdog.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	clock := timeutil.RealClock{}
	millis := timeutil.NewMilliClock(clock)
	var wg sync.WaitGroup

	// Radar: the hardware port, or a test port fed by the synthesizer.
	var port serialport.SerialPorter
	if *devMode {
		testPort := serialport.NewTestableSerialPort()
		synth := &radar.Synthesizer{Sink: testPort, Clock: clock, Period: devFramePeriod}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := synth.Run(ctx); err != nil {
				monitoring.Errorf("radar synthesizer: %v", err)
			}
		}()
		port = testPort
	} else {
		port, err = serialport.Open(*portName, serialport.PortOptions{BaudRate: *baudRate})
		if err != nil {
			log.Fatalf("failed to open radar port: %v", err)
		}
	}
	controller := radar.NewController(port, clock)
	if err := controller.Start(); err != nil {
		log.Fatalf("failed to start radar: %v", err)
	}
	reader := radar.NewReader(port, tuning.GetRadarQueueSize(), m)
	processor, err := radar.NewProcessor(reader.Samples(), processorConfig(tuning), m)
	if err != nil {
		log.Fatalf("invalid radar filter config: %v", err)
	}

	// Door sensor: BLE advertisements, or a scripted replay in dev mode.
	source, err := doorSource(*devMode, *doorFixture, doorID, clock)
	if err != nil {
		log.Fatalf("failed to set up door source: %v", err)
	}
	scanner := door.NewScanner(source, doorID, tuning.GetDoorQueueSize(), millis, m)
	tracker := door.NewTracker(scanner.Events(), m)

	// Telemetry fans out to MQTT (when configured), the event log and the
	// service log. Slow sinks sit behind their own bounded queues.
	sinks := []telemetry.Sink{db.EventSink{DB: store}}
	if *mqttBroker != "" {
		mq, err := telemetry.NewMQTTSink(telemetry.MQTTOptions{
			Broker:      *mqttBroker,
			ClientID:    *mqttClientID,
			Username:    *mqttUser,
			Password:    *mqttPassword,
			TopicPrefix: *mqttTopic,
			QoS:         byte(*mqttQoS),
		})
		if err != nil {
			log.Fatalf("failed to connect to MQTT broker: %v", err)
		}
		defer mq.Close()
		sinks = append(sinks, mq)
	}
	tail := telemetry.NewTail()
	fanout := telemetry.Fanout{tail, telemetry.PublisherFunc(func(event, payload string) {
		_ = telemetry.LogSink{}.Send(ctx, event, payload)
	})}
	for _, sink := range sinks {
		async := telemetry.NewAsync(sink, telemetry.DefaultQueueSize, m)
		fanout = append(fanout, async)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := async.Run(ctx); err != nil {
				monitoring.Errorf("telemetry %s: %v", sink.Name(), err)
			}
		}()
	}

	corrector := autocorrect.New(autocorrectConfig(tuning))
	corrector.SetEnabled(autoCorrectOn == "1")

	var restarting bool
	var restartMu sync.Mutex
	wd := watchdog.New(clock, *watchdogDur, func(reason string) {
		restartMu.Lock()
		restarting = true
		restartMu.Unlock()
		if err := store.Put(config.KeyResetReason, reason); err != nil {
			monitoring.Errorf("persist reset reason: %v", err)
		}
		cancel()
	})

	machine, err := occupancy.New(occupancy.Options{
		Thresholds:        thresholds,
		Radar:             processor,
		Door:              tracker,
		Publisher:         fanout,
		Clock:             millis,
		Corrector:         corrector,
		Store:             store,
		Resetter:          wd,
		Metrics:           m,
		ResetReason:       resetReason,
		HeartbeatInterval: durationMillis(tuning.GetHeartbeatInterval()),
		DebugInterval:     durationMillis(tuning.GetDebugInterval()),
		DebugTimeout:      durationMillis(tuning.GetDebugTimeout()),
	})
	if err != nil {
		log.Fatalf("failed to create occupancy engine: %v", err)
	}
	runner := occupancy.NewRunner(machine, clock, tuning.GetTickInterval())
	cons := console.New(store, consoleExec(runner, consoleTimeout), scanner)

	// Producers: radar reader, door scanner. Consumers: tick loop, watchdog.
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := reader.Run(ctx); err != nil {
			monitoring.Errorf("radar reader stopped: %v", err)
			cancel()
		}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		// Closing the port wakes a reader blocked without a timeout.
		if err := controller.Stop(); err != nil {
			monitoring.Warnf("stop radar: %v", err)
		}
		port.Close()
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := scanner.Run(ctx); err != nil {
			monitoring.Errorf("door scanner stopped: %v", err)
		}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := runner.Run(ctx); err != nil {
			monitoring.Errorf("occupancy runner stopped: %v", err)
		}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := wd.Run(ctx); err != nil {
			monitoring.Errorf("watchdog stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	if err := store.AttachAdminRoutes(mux); err != nil {
		log.Fatalf("failed to attach database admin routes: %v", err)
	}
	runner.AttachAdminRoutes(mux)
	cons.AttachAdminRoutes(mux)
	controller.AttachAdminRoutes(mux)
	tail.AttachAdminRoutes(mux)

	server := &http.Server{Addr: *listen, Handler: mux}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			monitoring.Errorf("HTTP server: %v", err)
			cancel()
		}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		monitoring.Logf("shutting down HTTP server...")
		// Streaming handlers only return once their subscription ends.
		tail.Close()

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()
		if err := server.Shutdown(shutdownCtx); err != nil {
			monitoring.Warnf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				monitoring.Warnf("HTTP server force close error: %v", err)
			}
		}
	}()

	wg.Wait()

	restartMu.Lock()
	defer restartMu.Unlock()
	if restarting {
		// A non-zero exit has the supervisor start a fresh process.
		monitoring.Logf("exiting for restart")
		store.Close()
		logger.Sync()
		os.Exit(1)
	}
	if err := store.Put(config.KeyResetReason, resetReasonClean); err != nil {
		monitoring.Warnf("persist reset reason: %v", err)
	}
	monitoring.Logf("graceful shutdown complete")
}
