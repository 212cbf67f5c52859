package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/proregia/pumpcore/ble"
	"github.com/proregia/pumpcore/controller"
	"github.com/proregia/pumpcore/session"
	"github.com/proregia/pumpcore/simpump"
	"github.com/proregia/pumpcore/store"
)

// Version is set at build time via ldflags.
var Version = "dev"

// demoMAC is the pump address used by the in-process simulation; a real
// deployment derives this from the paired pump's serial number via
// keyexchange.DeriveMAC instead.
var demoMAC = [6]byte{0xEC, 0x2A, 0xF0, 0x01, 0x02, 0x03}

func main() {
	logger, logFile := setupLogging()
	defer func() { _ = logFile.Close() }()

	fmt.Printf("=== pumpctl %s ===\n", Version)

	args := os.Args[1:]
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	cmd, rest := args[0], args[1:]

	sharedKey := make([]byte, 32)
	for i := range sharedKey {
		sharedKey[i] = byte(i)
	}
	pump, err := simpump.New(sharedKey, 1850, 64)
	if err != nil {
		fmt.Printf("failed to start simulated pump: %v\n", err)
		os.Exit(1)
	}
	dialer := &pumpDialer{pump: pump}

	appStore := store.NewMemory()
	c := newDemoController(appStore, dialer, sharedKey, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "status":
		runStatus(ctx, c)
	case "bolus":
		runBolus(ctx, c, rest)
	case "tbr":
		runTBR(ctx, c, rest)
	case "history":
		runHistory(ctx, c, rest)
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("usage: pumpctl <status|bolus|tbr|history> [flags]")
	fmt.Println("  status")
	fmt.Println("  bolus start --units=5 --duration=0")
	fmt.Println("  bolus cancel")
	fmt.Println("  tbr start --percent=50 --duration=120")
	fmt.Println("  tbr cancel")
	fmt.Println("  history events|alerts")
}

// newDemoController pre-pairs the store with a cryptor keyed identically
// to the simulated pump's, standing in for a completed relay key exchange.
func newDemoController(s store.Store, dialer controller.Dialer, sharedKey []byte, logger *slog.Logger) *controller.Controller {
	if err := preSeedCryptor(s, sharedKey); err != nil {
		fmt.Printf("failed to seed pairing state: %v\n", err)
		os.Exit(1)
	}
	return controller.New(controller.Options{
		Dialer:    dialer,
		Store:     s,
		Exchanger: nil,
		MAC:       demoMAC,
		MACString: "EC:2A:F0:01:02:03",
		Logger:    logger,
	})
}

// preSeedCryptor stands in for a completed relay key exchange: it installs
// a session cryptor under the same shared key the simulated pump holds,
// so the first episode finds a paired key rather than pumperr.ErrKeyMissing.
func preSeedCryptor(s store.Store, sharedKey []byte) error {
	_, err := session.NewCryptor(s, sharedKey, time.Now(), nil)
	return err
}

func runStatus(ctx context.Context, c *controller.Controller) {
	status, err := c.Status(ctx)
	if err != nil {
		fmt.Printf("status failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("mode=%d insulin=%.2fU battery=%d%%\n", status.DeliveryMode, status.InsulinUnits(), status.Battery)
}

func runBolus(ctx context.Context, c *controller.Controller, args []string) {
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}
	switch args[0] {
	case "start":
		fs := flag.NewFlagSet("bolus start", flag.ExitOnError)
		units := fs.Float64("units", 1, "total units to deliver")
		duration := fs.Int("duration", 0, "extended duration in minutes (0 for a fast bolus)")
		_ = fs.Parse(args[1:])
		err := c.StartBolus(ctx, uint32(*units*100), uint32(*duration), uint32(*units*100), ble.BolusTypeFast)
		if err != nil {
			fmt.Printf("bolus start failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("bolus started")
	case "cancel":
		if err := c.CancelBolus(ctx, ble.BolusTypeFast); err != nil {
			fmt.Printf("bolus cancel failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("bolus cancelled")
	default:
		usage()
		os.Exit(1)
	}
}

func runTBR(ctx context.Context, c *controller.Controller, args []string) {
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}
	switch args[0] {
	case "start":
		fs := flag.NewFlagSet("tbr start", flag.ExitOnError)
		percent := fs.Int("percent", 50, "basal rate percentage")
		duration := fs.Int("duration", 120, "duration in minutes")
		_ = fs.Parse(args[1:])
		if err := c.StartTBR(ctx, int32(*percent), int32(*duration)); err != nil {
			fmt.Printf("tbr start failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("TBR started")
	case "cancel":
		if err := c.CancelTBR(ctx); err != nil {
			fmt.Printf("tbr cancel failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("TBR cancelled")
	default:
		usage()
		os.Exit(1)
	}
}

func runHistory(ctx context.Context, c *controller.Controller, args []string) {
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}
	var stream ble.HistoryStream
	switch args[0] {
	case "events":
		stream = ble.EventsHistory
	case "alerts":
		stream = ble.AlertsHistory
	default:
		usage()
		os.Exit(1)
	}
	entries, err := c.FetchHistory(ctx, stream, 0)
	if err != nil {
		fmt.Printf("history fetch failed: %v\n", err)
		os.Exit(1)
	}
	if len(entries) == 0 {
		fmt.Println("no entries")
		return
	}
	for _, e := range entries {
		fmt.Printf("%s type=%d v1=%d v2=%d v3=%d\n", e.Timestamp.Format(time.RFC3339), e.Type, e.Value1, e.Value2, e.Value3)
	}
}

// pumpDialer hands out the simulated pump's facade on every connect, the
// same injection point a real adapter (OS BLE stack, GATT client) fills
// in production.
type pumpDialer struct {
	pump *simpump.Pump
}

func (d *pumpDialer) Connect(ctx context.Context, mac string) (ble.Facade, error) {
	return d.pump.Facade(), nil
}

func (d *pumpDialer) Disconnect(ctx context.Context, facade ble.Facade) error {
	return nil
}

func setupLogging() (*slog.Logger, *os.File) {
	logFile, err := os.OpenFile("pumpctl-debug.log", os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create log file: %v\n", err)
		os.Exit(1)
	}
	fileHandler := slog.NewJSONHandler(logFile, &slog.HandlerOptions{Level: slog.LevelDebug})
	stdoutHandler := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo})
	logger := slog.New(&multiHandler{handlers: []slog.Handler{fileHandler, stdoutHandler}})
	return logger, logFile
}

// multiHandler fans out slog records to multiple handlers.
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range m.handlers {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: next}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: next}
}
