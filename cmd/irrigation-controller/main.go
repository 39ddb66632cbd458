// Command irrigation-controller reads soil moisture sensors and waters dry
// channels one at a time through a shared pump and per-channel valves.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/irrigation-controller/internal/config"
	"github.com/sweeney/irrigation-controller/internal/gpio"
	"github.com/sweeney/irrigation-controller/internal/logic"
	"github.com/sweeney/irrigation-controller/internal/loop"
	"github.com/sweeney/irrigation-controller/internal/metrics"
	"github.com/sweeney/irrigation-controller/internal/mqtt"
	"github.com/sweeney/irrigation-controller/internal/status"
	"github.com/sweeney/irrigation-controller/internal/trace"
	"github.com/sweeney/irrigation-controller/internal/web"
)

func main() {
	cfgPath := flag.String("config", "/etc/irrigation-controller/config.yaml", "Path to configuration file")
	broker := flag.String("broker", "", "MQTT broker address (overrides mqtt.broker)")
	httpAddr := flag.String("http", "", `HTTP status address (overrides http.addr, "off" disables)`)
	backend := flag.String("trace", "", "Trace backend: mqtt, console or none (overrides trace.backend)")
	verbose := flag.Bool("verbose", false, "Log every scheduler step and dropped duplicate")
	printState := flag.Bool("print-state", false, "Print current sensor readings and exit")

	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("fatal: load config: %v", err)
	}
	if err := applyOverrides(cfg, *broker, *httpAddr, *backend); err != nil {
		log.Fatalf("fatal: %v", err)
	}

	if err := run(cfg, *printState, *verbose); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// applyOverrides applies command-line values on top of the loaded config and
// validates the result.
func applyOverrides(cfg *config.Config, broker, httpAddr, backend string) error {
	if broker != "" {
		cfg.MQTT.Broker = broker
	}
	switch httpAddr {
	case "":
	case "off":
		cfg.HTTP.Addr = ""
	default:
		cfg.HTTP.Addr = httpAddr
	}
	if backend != "" {
		cfg.Trace.Backend = backend
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func run(cfg *config.Config, printState, verbose bool) error {
	// Initialize GPIO
	board, err := gpio.NewRealBoard(cfg.Pins())
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer board.Close()

	// Print state mode
	if printState {
		values, err := board.Read()
		if err != nil {
			return fmt.Errorf("read gpio: %w", err)
		}
		printReadings(os.Stdout, cfg, values)
		return nil
	}

	// Relays come up de-energized, but a previous run may have died mid-correction
	// on hardware that latches. Force everything off before monitoring starts.
	if err := gpio.AllOff(board, len(cfg.Channels), cfg.Process.HardwareCycleTime, nil); err != nil {
		log.Printf("startup all-off: %v", err)
	}

	// Initialize trace backend and system event publisher
	var (
		writer     trace.Writer
		events     systemPublisher = logEvents{}
		mqttStatus mqtt.ConnectionStatus
	)
	switch cfg.Trace.Backend {
	case config.BackendMQTT:
		pub, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:     cfg.MQTT.Broker,
			ClientID:   cfg.MQTT.ClientID,
			BufferSize: cfg.MQTT.BufferSize,
		})
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer pub.Close()
		writer, events, mqttStatus = pub, pub, pub
	case config.BackendConsole:
		writer = trace.NewConsoleWriter(nil)
	default:
		writer = trace.NullWriter{}
	}

	lp := loop.New(16)
	defer lp.Close()

	lc := trace.NewLifecycle(lp.Post)
	sink := trace.NewSink(writer, lc, cfg.Trace.Buffer, nil)
	defer sink.Close()
	if err := setupTrace(lc, cfg); err != nil {
		return fmt.Errorf("trace setup: %w", err)
	}

	// Build the channels around the relays
	pump := gpio.NewPumpRelay(board.Pump(), "pump", nil)
	channels := make([]*logic.Channel, len(cfg.Channels))
	ids := make([]string, len(cfg.Channels))
	for i, cc := range cfg.Channels {
		channels[i] = &logic.Channel{
			ID:         cc.ID,
			TraceIndex: i,
			Threshold:  cfg.Threshold(i),
			Valve:      gpio.NewValveRelay(board.Valve(i), cc.ValveName, nil),
			Pump:       pump,
		}
		ids[i] = cc.ID
	}

	sched, err := logic.NewScheduler(channels, lp, sink, logic.Config{
		Timing:      cfg.Timing(),
		TraceValues: cfg.TraceValues(),
		Debug:       verbose,
	})
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	// Initialize status tracker (before STARTUP so snapshot is available)
	startTime := time.Now()
	tracker := status.NewTracker(startTime, status.Config{
		SensorPeriod:  cfg.Process.SensorPeriod,
		BlockTime:     cfg.Process.BlockTime,
		FlowTime:      cfg.Process.FlowTime,
		HardwareCycle: cfg.Process.HardwareCycleTime,
		Heartbeat:     cfg.Heartbeat,
		TraceBackend:  cfg.Trace.Backend,
		Broker:        cfg.MQTT.Broker,
		HTTPAddr:      cfg.HTTP.Addr,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	c := &controller{
		board:      board,
		channels:   channels,
		sched:      sched,
		holdoff:    logic.NewHoldoff(cfg.Process.BlockTime, sched.LastCorrection),
		heartbeat:  logic.NewHeartbeat(cfg.Heartbeat, startTime),
		events:     events,
		mqttStatus: mqttStatus,
		traceStats: sink,
		tracker:    tracker,
		readings:   make([]status.ChannelStatus, len(channels)),
		cycle:      cfg.Process.HardwareCycleTime,
		now:        time.Now,
		sleep:      time.Sleep,
	}
	for i, ch := range channels {
		c.readings[i].ID = ch.ID
	}
	c.update()

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := events.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	// Start HTTP status server
	if cfg.HTTP.Addr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		if err := metrics.Register(reg, tracker, ids); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}

		srv := web.New(cfg.HTTP.Addr, tracker, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTP.Addr)
	}

	log.Printf("started: channels=%d sensor_period=%v block_time=%v flow=%v trace=%s",
		len(channels), cfg.Process.SensorPeriod, cfg.Process.BlockTime, cfg.Process.FlowTime, cfg.Trace.Backend)

	ticker := time.NewTicker(cfg.Process.SensorPeriod)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return c.runLoop(ticker.C, lp.C(), sigCh)
}

// setupTrace registers every sensor and the board with the trace backend.
// Any contract violation is returned and aborts startup.
func setupTrace(lc *trace.Lifecycle, cfg *config.Config) error {
	if err := lc.Init(func() { log.Printf("trace: %s backend ready", cfg.Trace.Backend) }); err != nil {
		return err
	}
	for _, ch := range cfg.Channels {
		if err := lc.AddSensor(ch.ID); err != nil {
			return err
		}
	}
	if err := lc.AddBoard(cfg.Hardware.Chip); err != nil {
		return err
	}
	return lc.Finalize()
}

func printReadings(w io.Writer, cfg *config.Config, values []int) {
	for i, ch := range cfg.Channels {
		if i >= len(values) {
			break
		}
		state := "ok"
		if values[i] < cfg.Threshold(i) {
			state = "DRY"
		}
		fmt.Fprintf(w, "%s: %d (%s, limit %d)\n", ch.ID, values[i], state, cfg.Threshold(i))
	}
}

// systemPublisher sends lifecycle events (STARTUP, HEARTBEAT, SHUTDOWN).
type systemPublisher interface {
	PublishSystem(event mqtt.SystemEvent) error
}

// logEvents writes system events to the log when no broker is configured.
type logEvents struct{}

func (logEvents) PublishSystem(event mqtt.SystemEvent) error {
	payload, err := mqtt.FormatSystemPayload(event)
	if err != nil {
		return err
	}
	log.Printf("system: %s", payload)
	return nil
}

// traceStats reports trace points lost before reaching the backend.
type traceStats interface {
	Dropped() int64
	Failed() int64
}

// controller owns everything the run loop touches. All fields are used from
// the run loop goroutine only.
type controller struct {
	board      gpio.Board
	channels   []*logic.Channel
	sched      *logic.Scheduler
	holdoff    *logic.Holdoff
	heartbeat  *logic.Heartbeat
	events     systemPublisher
	mqttStatus mqtt.ConnectionStatus // nil without a broker
	traceStats traceStats            // nil in tests that don't trace
	tracker    *status.Tracker
	readings   []status.ChannelStatus
	cycle      time.Duration
	now        func() time.Time
	sleep      func(time.Duration)
}

// runLoop reads sensors on every tick and runs scheduler timer callbacks as
// they come due. Both happen on this goroutine, so the scheduler never sees
// concurrent calls.
func (c *controller) runLoop(tick <-chan time.Time, callbacks <-chan func(), sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			c.shutdown(signalName(s))
			return nil

		case fn := <-callbacks:
			fn()
			c.update()

		case <-tick:
			t := c.now()
			c.sample(t)
			c.update()

			if hbData := c.heartbeat.Check(t, c.sched.Snapshot().Counts); hbData != nil {
				log.Printf("heartbeat: uptime=%v readings=%d corrections=%d skipped=%d queue=%d",
					hbData.Uptime, hbData.Counts.Readings, hbData.Counts.Corrections, hbData.Counts.Skipped,
					len(c.sched.Snapshot().Queue))

				// Refresh network info for heartbeat
				if net := readNetworkInfo(); net != nil {
					c.tracker.SetNetwork(net)
				}
				snap := c.tracker.Snapshot()
				hbEvent := mqtt.SystemEvent{
					Timestamp:  hbData.Timestamp,
					Event:      "HEARTBEAT",
					RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
				}
				if err := c.events.PublishSystem(hbEvent); err != nil {
					log.Printf("heartbeat publish error: %v", err)
				}
			}
		}
	}
}

// sample reads every sensor once and hands the classification to the
// scheduler, unless the channel is still inside its block time.
func (c *controller) sample(t time.Time) {
	values, err := c.board.Read()
	if err != nil {
		log.Printf("gpio read error: %v", err)
		return
	}

	for i, ch := range c.channels {
		if i >= len(values) {
			break
		}
		inRange := ch.InRange(values[i])
		c.readings[i].Value = values[i]
		c.readings[i].InRange = inRange
		c.readings[i].Read = true

		if !c.holdoff.Allow(ch.ID, t) {
			continue
		}
		c.sched.HandleReading(ch.ID, inRange)
	}
}

// update publishes the current state to the tracker for HTTP and metrics.
func (c *controller) update() {
	for i, ch := range c.channels {
		if last, ok := c.sched.LastCorrection(ch.ID); ok {
			c.readings[i].LastCorrection = last
		}
	}
	c.tracker.Update(c.sched.Snapshot(), c.readings)
	if c.mqttStatus != nil {
		c.tracker.SetMQTTConnected(c.mqttStatus.IsConnected())
	}
	if c.traceStats != nil {
		c.tracker.SetTraceStats(status.TraceStats{
			Dropped: c.traceStats.Dropped(),
			Failed:  c.traceStats.Failed(),
		})
	}
}

// shutdown publishes SHUTDOWN and then forces every valve closed and the pump
// off. A correction in progress is abandoned; its remaining timer callbacks
// are never run.
func (c *controller) shutdown(reason string) {
	c.update()
	snap := c.tracker.Snapshot()
	event := mqtt.SystemEvent{
		Timestamp:  c.now(),
		Event:      "SHUTDOWN",
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", reason),
	}
	if err := c.events.PublishSystem(event); err != nil {
		log.Printf("failed to publish shutdown event: %v", err)
	} else {
		log.Printf("published shutdown event")
	}

	if snap.Scheduler.Active {
		log.Printf("abandoning correction of %s at %s", snap.Scheduler.ActiveChannel, snap.Scheduler.Step)
	}
	if err := gpio.AllOff(c.board, len(c.channels), c.cycle, c.sleep); err != nil {
		log.Printf("shutdown all-off: %v", err)
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
