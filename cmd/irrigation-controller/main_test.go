package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/irrigation-controller/internal/config"
	"github.com/sweeney/irrigation-controller/internal/gpio"
	"github.com/sweeney/irrigation-controller/internal/logic"
	"github.com/sweeney/irrigation-controller/internal/mqtt"
	"github.com/sweeney/irrigation-controller/internal/status"
	"github.com/sweeney/irrigation-controller/internal/trace"
)

// TestEnvVarNames verifies the env var constants match what pi-helper writes
// to /run/pi-helper.env.
func TestEnvVarNames(t *testing.T) {
	want := map[string]string{
		"NETWORK_TYPE":        envNetworkType,
		"NETWORK_IP":          envNetworkIP,
		"NETWORK_STATUS":      envNetworkStatus,
		"NETWORK_GATEWAY":     envNetworkGateway,
		"NETWORK_WIFI_STATUS": envNetworkWifiStatus,
		"NETWORK_WIFI_SSID":   envNetworkWifiSSID,
	}
	for canonical, got := range want {
		if got != canonical {
			t.Errorf("env var constant: got %q, want %q", got, canonical)
		}
	}
}

func TestReadNetworkInfoAllSet(t *testing.T) {
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.100")
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkGateway, "192.168.1.1")
	t.Setenv(envNetworkWifiStatus, "connected")
	t.Setenv(envNetworkWifiSSID, "Greenhouse")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo")
	}
	want := status.NetworkInfo{
		Type:       "wifi",
		IP:         "192.168.1.100",
		Status:     "connected",
		Gateway:    "192.168.1.1",
		WifiStatus: "connected",
		SSID:       "Greenhouse",
	}
	if *info != want {
		t.Errorf("got %+v, want %+v", *info, want)
	}
}

func TestReadNetworkInfoNoneSet(t *testing.T) {
	t.Setenv(envNetworkStatus, "")
	if info := readNetworkInfo(); info != nil {
		t.Errorf("expected nil when NETWORK_STATUS is unset, got %+v", info)
	}
}

func TestSignalName(t *testing.T) {
	if got := signalName(syscall.SIGINT); got != "SIGINT" {
		t.Errorf("SIGINT: got %s", got)
	}
	if got := signalName(syscall.SIGTERM); got != "SIGTERM" {
		t.Errorf("SIGTERM: got %s", got)
	}
	if got := signalName(syscall.SIGHUP); got != "UNKNOWN" {
		t.Errorf("SIGHUP: got %s", got)
	}
}

// --- controller tests ---

var start = time.Date(2026, 6, 1, 6, 0, 0, 0, time.UTC)

var testTiming = logic.Timing{
	HardwareCycle: time.Second,
	PumpWarmup:    time.Second,
	PumpCooldown:  500 * time.Millisecond,
	Flow:          8 * time.Second,
}

// fakeClock returns a function that yields start, start+step, start+2*step, ...
// on successive calls. Not safe for concurrent use (only called from runLoop's goroutine).
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

type harness struct {
	c      *controller
	board  *gpio.FakeBoard
	timer  *logic.FakeTimer
	pub    *mqtt.FakePublisher
	sleeps []time.Duration
}

// newHarness builds a controller over a fake board with one channel per
// entry in ids. Every channel uses a dry limit of 700.
func newHarness(t *testing.T, ids []string, samples [][]int, blockTime, heartbeat time.Duration) *harness {
	t.Helper()
	h := &harness{
		board: gpio.NewFakeBoard(len(ids), samples),
		timer: logic.NewFakeTimer(start),
		pub:   mqtt.NewFakePublisher(),
	}

	pump := gpio.NewPumpRelay(h.board.Pump(), "pump", nil)
	channels := make([]*logic.Channel, len(ids))
	readings := make([]status.ChannelStatus, len(ids))
	for i, id := range ids {
		channels[i] = &logic.Channel{
			ID:         id,
			TraceIndex: i,
			Threshold:  700,
			Valve:      gpio.NewValveRelay(h.board.Valve(i), id, nil),
			Pump:       pump,
		}
		readings[i].ID = id
	}

	n := 0
	sched, err := logic.NewScheduler(channels, h.timer, &logic.FakeSink{}, logic.Config{
		Timing:      testTiming,
		TraceValues: logic.TraceValues{Off: []int{0, 2, 4}, On: []int{1, 3, 5}},
		Now:         h.timer.Now,
		NewRunID:    func() string { n++; return fmt.Sprintf("run-%d", n) },
	})
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	h.c = &controller{
		board:     h.board,
		channels:  channels,
		sched:     sched,
		holdoff:   logic.NewHoldoff(blockTime, sched.LastCorrection),
		heartbeat: logic.NewHeartbeat(heartbeat, start),
		events:    h.pub,
		tracker:   status.NewTracker(start, status.Config{}),
		readings:  readings,
		cycle:     testTiming.HardwareCycle,
		now:       h.timer.Now,
		sleep:     func(d time.Duration) { h.sleeps = append(h.sleeps, d) },
	}
	return h
}

func wantSets(t *testing.T, name string, out *gpio.FakeOutput, want ...bool) {
	t.Helper()
	if fmt.Sprint(out.Sets) != fmt.Sprint(want) {
		t.Errorf("%s sets: got %v, want %v", name, out.Sets, want)
	}
}

func TestSampleCorrectsDryChannel(t *testing.T) {
	h := newHarness(t, []string{"tomatoes", "peppers"}, [][]int{{0, gpio.FullScale}}, 110*time.Second, 0)

	h.c.sample(h.timer.Now())
	h.timer.RunUntilIdle(100)

	wantSets(t, "pump", h.board.PumpOut, true, false)
	wantSets(t, "tomatoes valve", h.board.ValveOuts[0], true, false)
	wantSets(t, "peppers valve", h.board.ValveOuts[1])

	snap := h.c.sched.Snapshot()
	if snap.Counts.Corrections != 1 {
		t.Errorf("Corrections: got %d, want 1", snap.Counts.Corrections)
	}
	if snap.Step != logic.StepIdle {
		t.Errorf("Step: got %s, want IDLE", snap.Step)
	}
}

func TestSampleCorrectsChannelsInTurn(t *testing.T) {
	h := newHarness(t, []string{"a", "b"}, [][]int{{0, 0}}, 110*time.Second, 0)

	h.c.sample(h.timer.Now())

	// Halfway through a's flow only a's valve is open.
	h.timer.Advance(5 * time.Second)
	if !h.board.ValveOuts[0].State || h.board.ValveOuts[1].State {
		t.Errorf("valves during a's flow: a=%v b=%v", h.board.ValveOuts[0].State, h.board.ValveOuts[1].State)
	}

	h.timer.RunUntilIdle(100)
	wantSets(t, "pump", h.board.PumpOut, true, false, true, false)
	wantSets(t, "a valve", h.board.ValveOuts[0], true, false)
	wantSets(t, "b valve", h.board.ValveOuts[1], true, false)
}

func TestSampleHoldoffDropsReadings(t *testing.T) {
	h := newHarness(t, []string{"tomatoes"}, [][]int{{0}}, 110*time.Second, 0)

	h.c.sample(h.timer.Now())
	h.timer.RunUntilIdle(100)
	readings := h.c.sched.Snapshot().Counts.Readings

	// Still dry 20s after the correction started: inside the block time.
	h.timer.Advance(20*time.Second - (h.timer.Now().Sub(start)))
	h.c.sample(h.timer.Now())
	if got := h.c.sched.Snapshot().Counts.Readings; got != readings {
		t.Errorf("reading inside block time reached scheduler: readings %d -> %d", readings, got)
	}
	if h.timer.Pending() != 0 {
		t.Error("correction scheduled inside block time")
	}
	if h.c.readings[0].Value != 0 || !h.c.readings[0].Read {
		t.Error("held-off reading should still be recorded for status")
	}

	// Past the block time the channel is corrected again.
	h.timer.Advance(91 * time.Second)
	h.c.sample(h.timer.Now())
	h.timer.RunUntilIdle(100)
	if got := h.c.sched.Snapshot().Counts.Corrections; got != 2 {
		t.Errorf("Corrections: got %d, want 2", got)
	}
}

func TestSampleReadErrorIsLogged(t *testing.T) {
	h := newHarness(t, []string{"tomatoes"}, [][]int{{0}}, 0, 0)
	h.board.ReadError = errors.New("bus fault")

	var logged bytes.Buffer
	log.SetOutput(&logged)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	h.c.sample(h.timer.Now())

	if !strings.Contains(logged.String(), "gpio read error: bus fault") {
		t.Errorf("read error not logged: %q", logged.String())
	}
	if h.c.readings[0].Read {
		t.Error("failed read should not update readings")
	}
}

func TestUpdateFeedsTracker(t *testing.T) {
	h := newHarness(t, []string{"tomatoes", "peppers"}, [][]int{{0, 900}}, 110*time.Second, 0)

	h.c.sample(h.timer.Now())
	h.timer.Advance(3 * time.Second)
	h.c.update()

	snap := h.c.tracker.Snapshot()
	if !snap.Scheduler.Active || snap.Scheduler.ActiveChannel != "tomatoes" {
		t.Errorf("scheduler: got %+v", snap.Scheduler)
	}
	if len(snap.Channels) != 2 || snap.Channels[1].Value != 900 || !snap.Channels[1].InRange {
		t.Errorf("channels: got %+v", snap.Channels)
	}
	if snap.Channels[0].LastCorrection.IsZero() {
		t.Error("tomatoes last correction not recorded")
	}
}

// runRunLoop drives runLoop with nTicks ticks and then the given signal.
func runRunLoop(t *testing.T, h *harness, nTicks int, sig os.Signal) error {
	t.Helper()
	tick := make(chan time.Time)
	sigCh := make(chan os.Signal, 1)

	errCh := make(chan error, 1)
	go func() {
		errCh <- h.c.runLoop(tick, nil, sigCh)
	}()

	for i := 0; i < nTicks; i++ {
		tick <- time.Time{}
	}
	sigCh <- sig

	return <-errCh
}

func TestRunLoopShutdownSIGTERM(t *testing.T) {
	h := newHarness(t, []string{"a", "b"}, [][]int{{gpio.FullScale, gpio.FullScale}}, 0, 0)

	if err := runRunLoop(t, h, 2, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(h.pub.SystemEvents) != 1 {
		t.Fatalf("expected 1 system event, got %d", len(h.pub.SystemEvents))
	}
	ev := h.pub.SystemEvents[0]
	if ev.Event != "SHUTDOWN" || ev.Reason != "SIGTERM" || !ev.Retained {
		t.Errorf("shutdown event: got %+v", ev)
	}

	var parsed status.StatusJSON
	if err := json.Unmarshal(ev.RawPayload, &parsed); err != nil {
		t.Fatalf("invalid shutdown payload: %v", err)
	}
	if parsed.Status.Reason != "SIGTERM" {
		t.Errorf("payload reason: got %q", parsed.Status.Reason)
	}
	if parsed.Status.Counts.Readings != 4 {
		t.Errorf("payload readings: got %d, want 4", parsed.Status.Counts.Readings)
	}

	// All-off: both valves then the pump, one cycle apart.
	wantSets(t, "a valve", h.board.ValveOuts[0], false)
	wantSets(t, "b valve", h.board.ValveOuts[1], false)
	wantSets(t, "pump", h.board.PumpOut, false)
	if len(h.sleeps) != 3 {
		t.Errorf("all-off gaps: got %v, want 3 x 1s", h.sleeps)
	}
}

func TestRunLoopShutdownMidCorrection(t *testing.T) {
	h := newHarness(t, []string{"tomatoes"}, [][]int{{0}}, 110*time.Second, 0)

	h.c.sample(h.timer.Now())
	h.timer.Advance(5 * time.Second)
	if !h.board.PumpOut.State || !h.board.ValveOuts[0].State {
		t.Fatal("expected pump running and valve open before shutdown")
	}

	if err := runRunLoop(t, h, 0, syscall.SIGINT); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if h.board.PumpOut.State || h.board.ValveOuts[0].State {
		t.Error("hardware left on after shutdown")
	}
	if len(h.pub.SystemEvents) != 1 {
		t.Fatalf("expected 1 system event, got %d", len(h.pub.SystemEvents))
	}
	var parsed status.StatusJSON
	if err := json.Unmarshal(h.pub.SystemEvents[0].RawPayload, &parsed); err != nil {
		t.Fatalf("invalid shutdown payload: %v", err)
	}
	if parsed.Status.Active == nil || parsed.Status.Active.Channel != "tomatoes" {
		t.Errorf("shutdown payload should show the abandoned run, got %+v", parsed.Status.Active)
	}
	if parsed.Status.Reason != "SIGINT" {
		t.Errorf("payload reason: got %q, want SIGINT", parsed.Status.Reason)
	}
}

func TestRunLoopRunsCallbacks(t *testing.T) {
	h := newHarness(t, []string{"tomatoes"}, [][]int{{gpio.FullScale}}, 0, 0)

	tick := make(chan time.Time)
	callbacks := make(chan func())
	sigCh := make(chan os.Signal, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- h.c.runLoop(tick, callbacks, sigCh)
	}()

	ran := 0
	callbacks <- func() { ran++ }
	callbacks <- func() { ran++ }
	sigCh <- syscall.SIGTERM

	if err := <-errCh; err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	if ran != 2 {
		t.Errorf("callbacks run: got %d, want 2", ran)
	}
}

func TestRunLoopHeartbeat(t *testing.T) {
	h := newHarness(t, []string{"tomatoes"}, [][]int{{gpio.FullScale}}, 0, time.Minute)
	h.c.now = fakeClock(start, 30*time.Second)

	// Ticks at 0s, 30s, 60s: one heartbeat, on the third.
	if err := runRunLoop(t, h, 3, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(h.pub.SystemEvents) != 2 {
		t.Fatalf("expected HEARTBEAT + SHUTDOWN, got %d events", len(h.pub.SystemEvents))
	}
	hb := h.pub.SystemEvents[0]
	if hb.Event != "HEARTBEAT" {
		t.Fatalf("first event: got %q, want HEARTBEAT", hb.Event)
	}
	if !hb.Timestamp.Equal(start.Add(time.Minute)) {
		t.Errorf("heartbeat timestamp: got %v", hb.Timestamp)
	}
	var parsed status.StatusJSON
	if err := json.Unmarshal(hb.RawPayload, &parsed); err != nil {
		t.Fatalf("invalid heartbeat payload: %v", err)
	}
	if parsed.Status.Event != "HEARTBEAT" || parsed.Status.Counts.Readings != 3 {
		t.Errorf("heartbeat payload: got %+v", parsed.Status)
	}
}

func TestRunLoopHeartbeatPublishErrorDoesNotStop(t *testing.T) {
	h := newHarness(t, []string{"tomatoes"}, [][]int{{gpio.FullScale}}, 0, time.Minute)
	h.c.now = fakeClock(start, time.Minute)
	h.pub.PublishSystemError = errors.New("broker down")

	if err := runRunLoop(t, h, 3, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	if got := h.c.sched.Snapshot().Counts.Readings; got != 3 {
		t.Errorf("readings after publish errors: got %d, want 3", got)
	}
}

// --- setup helpers ---

func loadTestConfig(t *testing.T) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
hardware:
  pump_pin: 5
channels:
  - id: tomatoes
    sensor_pin: 17
    valve_pin: 8
    dry_limit: 800
  - id: peppers
    sensor_pin: 27
    valve_pin: 4
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfg
}

func TestApplyOverrides(t *testing.T) {
	cfg := loadTestConfig(t)

	if err := applyOverrides(cfg, "tcp://10.0.0.2:1883", "off", "console"); err != nil {
		t.Fatalf("applyOverrides: %v", err)
	}
	if cfg.MQTT.Broker != "tcp://10.0.0.2:1883" {
		t.Errorf("Broker: got %s", cfg.MQTT.Broker)
	}
	if cfg.HTTP.Addr != "" {
		t.Errorf("HTTP.Addr: got %q, want disabled", cfg.HTTP.Addr)
	}
	if cfg.Trace.Backend != config.BackendConsole {
		t.Errorf("Backend: got %s", cfg.Trace.Backend)
	}

	if err := applyOverrides(cfg, "", ":9090", ""); err != nil {
		t.Fatalf("applyOverrides: %v", err)
	}
	if cfg.HTTP.Addr != ":9090" {
		t.Errorf("HTTP.Addr: got %q, want :9090", cfg.HTTP.Addr)
	}
}

func TestApplyOverridesRejectsBadBackend(t *testing.T) {
	cfg := loadTestConfig(t)
	if err := applyOverrides(cfg, "", "", "plotly"); err == nil {
		t.Error("expected error for unknown trace backend")
	}
}

func TestSetupTrace(t *testing.T) {
	cfg := loadTestConfig(t)
	var posted []func()
	lc := trace.NewLifecycle(func(fn func()) { posted = append(posted, fn) })

	if err := setupTrace(lc, cfg); err != nil {
		t.Fatalf("setupTrace: %v", err)
	}
	if !lc.Ready() {
		t.Error("lifecycle not finalized")
	}
	if lc.Sensors() != 2 {
		t.Errorf("sensors: got %d, want 2", lc.Sensors())
	}
	if len(posted) != 1 {
		t.Errorf("ready callback posted %d times, want 1", len(posted))
	}
}

func TestSetupTraceTwiceFails(t *testing.T) {
	cfg := loadTestConfig(t)
	lc := trace.NewLifecycle(nil)
	if err := setupTrace(lc, cfg); err != nil {
		t.Fatalf("first setupTrace: %v", err)
	}
	if err := setupTrace(lc, cfg); !errors.Is(err, trace.ErrDoubleInit) {
		t.Errorf("second setupTrace: got %v, want ErrDoubleInit", err)
	}
}

func TestPrintReadings(t *testing.T) {
	cfg := loadTestConfig(t)
	var out bytes.Buffer

	printReadings(&out, cfg, []int{750, gpio.FullScale})

	want := "tomatoes: 750 (DRY, limit 800)\npeppers: 1023 (ok, limit 700)\n"
	if out.String() != want {
		t.Errorf("got:\n%s\nwant:\n%s", out.String(), want)
	}
}

func TestLogEvents(t *testing.T) {
	var logged bytes.Buffer
	log.SetOutput(&logged)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	err := logEvents{}.PublishSystem(mqtt.SystemEvent{
		Timestamp: start,
		Event:     "SHUTDOWN",
		Reason:    "SIGINT",
	})
	if err != nil {
		t.Fatalf("PublishSystem: %v", err)
	}
	want := `system: {"system":{"timestamp":"2026-06-01T06:00:00Z","event":"SHUTDOWN","reason":"SIGINT"}}`
	if !strings.Contains(logged.String(), want) {
		t.Errorf("log: got %q, want it to contain %q", logged.String(), want)
	}
}
