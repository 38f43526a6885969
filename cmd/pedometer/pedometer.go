// Command pedometer reads an accelerometer over serial, classifies walking
// activity once per second and serves the results over HTTP.
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
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/motion.report/internal/api"
	"github.com/banshee-data/motion.report/internal/config"
	"github.com/banshee-data/motion.report/internal/motion"
	"github.com/banshee-data/motion.report/internal/publish"
	"github.com/banshee-data/motion.report/internal/report"
	"github.com/banshee-data/motion.report/internal/sensor"
	"github.com/banshee-data/motion.report/internal/serialmux"
	"github.com/banshee-data/motion.report/internal/timeutil"
	"github.com/banshee-data/motion.report/internal/version"
)

var (
	configPath    = flag.String("config", "", "Path to a classifier config JSON file (defaults built in)")
	port          = flag.String("port", "", "Serial port to use, overrides serial_port (ignored in dev and replay modes)")
	devFixture    = flag.String("dev", "", "Stream this fixture through a mock serial port instead of the device")
	replayFixture = flag.String("replay", "", "Replay this fixture directly into the classifier, paced at the sample interval")
	disableSensor = flag.Bool("disable-sensor", false, "Run without an accelerometer; serve the API only")
	listen        = flag.String("listen", ":8080", "Listen address")
	strict        = flag.Bool("strict", false, "Drop non-finite samples instead of ingesting them")
	kafkaBrokers  = flag.String("kafka-brokers", "", "Comma-separated Kafka brokers, overrides kafka_brokers")
	kafkaTopic    = flag.String("kafka-topic", "", "Kafka topic for evaluations, overrides kafka_topic")
	showVersion   = flag.Bool("version", false, "Print version and exit")
)

// Acquisition modes, reported by /api/status.
const (
	modeSerial   = "serial"
	modeDev      = "dev"
	modeReplay   = "replay"
	modeDisabled = "disabled"
)

// selectMode picks the acquisition mode from the flags. Only one of -dev,
// -replay and -disable-sensor may be given.
func selectMode(dev, replay string, disabled bool) (string, error) {
	mode, n := modeSerial, 0
	if dev != "" {
		mode, n = modeDev, n+1
	}
	if replay != "" {
		mode, n = modeReplay, n+1
	}
	if disabled {
		mode, n = modeDisabled, n+1
	}
	if n > 1 {
		return "", errors.New("-dev, -replay and -disable-sensor are mutually exclusive")
	}
	return mode, nil
}

// loadConfig reads the config file, if any, and applies flag overrides.
func loadConfig(path, portOverride, brokers, topic string, strictOverride bool) (*config.ClassifierConfig, error) {
	cfg := config.EmptyClassifierConfig()
	if path != "" {
		var err error
		if cfg, err = config.LoadClassifierConfig(path); err != nil {
			return nil, err
		}
	}
	if portOverride != "" {
		cfg.SerialPort = &portOverride
	}
	if brokers != "" {
		cfg.KafkaBrokers = nil
		for _, b := range strings.Split(brokers, ",") {
			cfg.KafkaBrokers = append(cfg.KafkaBrokers, strings.TrimSpace(b))
		}
	}
	if topic != "" {
		cfg.KafkaTopic = &topic
	}
	if strictOverride {
		cfg.StrictSamples = &strictOverride
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// logObserver prints the label of every evaluated window.
func logObserver(ev motion.Evaluation) {
	log.Printf("window %d: %s (variance=%.3f mean=%.3f samples=%d)",
		ev.Seq, ev.State.Label(), ev.Variance, ev.Mean, ev.Samples)
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	mode, err := selectMode(*devFixture, *replayFixture, *disableSensor)
	if err != nil {
		log.Fatal(err)
	}
	cfg, err := loadConfig(*configPath, *port, *kafkaBrokers, *kafkaTopic, *strict)
	if err != nil {
		log.Fatal(err)
	}
	motionCfg, err := cfg.MotionConfig()
	if err != nil {
		log.Fatalf("invalid classifier configuration: %v", err)
	}
	interval := cfg.GetSampleInterval()

	var m serialmux.SerialMuxInterface
	switch mode {
	case modeDev:
		data, err := os.ReadFile(*devFixture)
		if err != nil {
			log.Fatalf("failed to open fixtures file: %v", err)
		}
		m = serialmux.NewMockSerialMux(data, interval)
	case modeSerial:
		m, err = serialmux.NewRealSerialMux(cfg.GetSerialPort(), cfg.PortOptions())
		if err != nil {
			log.Fatalf("failed to open accelerometer port: %v", err)
		}
	default:
		m = serialmux.NewDisabledSerialMux()
	}
	defer m.Close()

	if err := m.Initialise(interval); err != nil {
		log.Fatalf("failed to initialise device: %v", err)
	}
	log.Printf("acquisition mode %s, sample interval %s, %d samples per window", mode, interval, motionCfg.SamplesPerWindow)

	clock := timeutil.RealClock{}
	recorder := report.NewRecorder(cfg.GetHistorySize(), clock)
	observers := motion.Observers{motion.ObserverFunc(logObserver), recorder}

	var publisher *publish.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		publisher, err = publish.New(cfg.KafkaBrokers, cfg.GetKafkaTopic(), recorder.Session())
		if err != nil {
			log.Fatalf("failed to create publisher: %v", err)
		}
		observers = append(observers, publisher)
		log.Printf("publishing evaluations to %s on %v", cfg.GetKafkaTopic(), cfg.KafkaBrokers)
	}

	classifier, err := motion.New(motionCfg, observers)
	if err != nil {
		log.Fatalf("failed to create classifier: %v", err)
	}

	var (
		src       sensor.Source
		statusSrc api.StatusProvider
	)
	switch mode {
	case modeReplay:
		samples, err := sensor.LoadFixture(*replayFixture)
		if err != nil {
			log.Fatalf("failed to load replay fixture: %v", err)
		}
		replay, err := sensor.NewReplaySource(samples, interval, clock, true)
		if err != nil {
			log.Fatalf("failed to create replay source: %v", err)
		}
		defer replay.Close()
		src = replay
	case modeDisabled:
	default:
		serialSrc := sensor.NewSerialSource(m, clock)
		defer serialSrc.Close()
		src, statusSrc = serialSrc, serialSrc
	}

	// Create a wait group for the HTTP server, serial monitor, sample pump
	// and publisher routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the monitor routine to manage IO on the serial port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := m.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to monitor serial port: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	if publisher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := publisher.Run(ctx); err != nil {
				log.Printf("publisher error: %v", err)
			}
			log.Print("publisher routine terminated")
		}()
	}

	// the pump is the only goroutine that calls Ingest
	if src != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sensor.Pump(ctx, src, classifier, cfg.GetStrictSamples()); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("sample pump stopped: %v", err)
			}
			log.Print("sample pump terminated")
		}()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(m, recorder, motionCfg, statusSrc, mode).ServeMux()
		m.AttachAdminRoutes(mux)

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			log.Printf("listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
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
}
