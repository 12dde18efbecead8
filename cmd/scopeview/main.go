package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/e7canasta/scopeview/capture"
	"github.com/e7canasta/scopeview/internal/preview"
)

const version = "v0.1.0"

func main() {
	device := flag.String("device", "", "Device index, path or name fragment (empty = auto-detect)")
	backendName := flag.String("backend", "auto", "Capture backend: auto, dshow, msmf, v4l2, any")
	width := flag.Int("width", 0, "Requested frame width (0 = driver default)")
	height := flag.Int("height", 0, "Requested frame height (0 = driver default)")
	fps := flag.Float64("fps", 0, "Requested frame rate (0 = driver default)")
	fourcc := flag.String("fourcc", "auto", "Requested pixel format FOURCC (auto = driver default)")
	fallbackFourCC := flag.String("fallback-fourcc", "YUYV", "Pixel format tried when the requested one is refused")
	bufferSize := flag.Int("buffer-size", 0, "Driver frame queue size (0 = driver default)")
	listDevices := flag.Bool("list", false, "List capture devices and exit")
	maxEmpty := flag.Int("max-empty", 0, "Consecutive empty reads before a reopen (0 = default 60)")
	maxReconnects := flag.Int("max-reconnects", 0, "Failed reopen budget before giving up (0 = default 5)")
	noRetry := flag.Bool("no-retry", false, "Exit on the first stall instead of reopening")
	retryDelay := flag.Duration("retry-delay", 0, "Pause before each reopen attempt (0 = default 1s)")
	probeFrames := flag.Int("probe-frames", 0, "Reads attempted by the open probe (0 = default 5, -1 = skip)")
	maxFrames := flag.Int("max-frames", 0, "Stop after N frames (0 = unlimited)")
	warmupDur := flag.Duration("warmup", 0, "Measure pacing stability for this long before streaming (0 = skip)")
	serveAddr := flag.String("serve", "", "Serve a browser preview on this address (e.g. :8089)")
	useTUI := flag.Bool("tui", false, "Show the live dashboard instead of plain output")
	statsInterval := flag.Int("stats-interval", 10, "Seconds between stats reports (plain mode)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("scopeview %s\n", version)
		os.Exit(0)
	}

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logOut := os.Stdout
	if *useTUI {
		// Keep log lines off the dashboard.
		logOut = os.Stderr
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{
		Level: logLevel,
	})))

	if *listDevices {
		fmt.Println(capture.ListDevices())
		os.Exit(0)
	}

	backend, err := capture.ParseBackend(*backendName)
	if err != nil {
		log.Fatalf("Invalid backend: %v", err)
	}
	requested, err := capture.ParseFourCC(*fourcc)
	if err != nil {
		log.Fatalf("Invalid FOURCC: %v", err)
	}
	fallback, err := capture.ParseFourCC(*fallbackFourCC)
	if err != nil {
		log.Fatalf("Invalid fallback FOURCC: %v", err)
	}

	cfg := capture.Config{
		Selector: *device,
		Backend:  backend,
		Format: capture.FormatRequest{
			Width:          *width,
			Height:         *height,
			FPS:            *fps,
			FourCC:         requested,
			FallbackFourCC: fallback,
			BufferCount:    *bufferSize,
		},
		ProbeFrames:   *probeFrames,
		MaxEmpty:      *maxEmpty,
		MaxReconnects: *maxReconnects,
		DisableRetry:  *noRetry,
		RetryDelay:    *retryDelay,
		FrameLimit:    *maxFrames,
	}

	sup, err := capture.NewSupervisor(cfg)
	if err != nil {
		log.Fatalf("Failed to create supervisor: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	frames, err := sup.Start(ctx)
	if err != nil {
		log.Fatalf("Failed to open camera: %v", err)
	}
	if sup.UsedFallback() {
		fmt.Fprintf(os.Stderr, "Warning: vendor camera not found, using first capture device\n")
	}

	var srv *preview.Server
	if *serveAddr != "" {
		srv = preview.New(*serveAddr)
		if err := srv.Start(); err != nil {
			log.Fatalf("Failed to start preview server: %v", err)
		}
		defer srv.Stop()
	}

	if *warmupDur > 0 {
		fmt.Printf("Measuring stream stability for %s...\n", *warmupDur)
		stats, err := sup.Warmup(ctx, frames, *warmupDur)
		if err != nil {
			sup.Stop()
			log.Fatalf("Warmup failed: %v", err)
		}
		fmt.Printf("Warmup: %s\n", stats)
		if !stats.IsStable {
			fmt.Fprintf(os.Stderr, "Warning: stream pacing is unstable\n")
		}
	}

	if *useTUI {
		err = runDashboard(ctx, sup, frames, srv)
	} else {
		err = runPlain(ctx, sup, frames, srv, sigChan, *statsInterval)
	}

	if stopErr := sup.Stop(); stopErr != nil {
		slog.Error("Error stopping supervisor", "error", stopErr)
	}
	if err == nil {
		err = sup.Err()
	}
	if err != nil {
		log.Fatalf("Stream ended: %v", err)
	}
}

// runPlain is the headless loop: log each frame, report stats on a
// ticker, stop on signal or channel close.
func runPlain(ctx context.Context, sup *capture.Supervisor, frames <-chan capture.Frame, srv *preview.Server, sigChan <-chan os.Signal, statsInterval int) error {
	fmt.Printf("Capturing from %s at %s\n", sup.Device(), sup.Format())
	fmt.Printf("Press Ctrl+C to stop\n\n")

	ticker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer ticker.Stop()
	startTime := time.Now()

	for {
		select {
		case <-sigChan:
			fmt.Printf("\nReceived interrupt signal, shutting down...\n")
			return nil

		case <-ticker.C:
			printStats(sup.Stats(), time.Since(startTime))

		case frame, ok := <-frames:
			if !ok {
				return nil
			}
			fmt.Printf("[%s] Frame #%-6d | %dx%d %s | %6.1f KB\n",
				frame.Timestamp.Format("15:04:05.000"),
				frame.Seq,
				frame.Width, frame.Height, frame.PixelFormat,
				float64(len(frame.Data))/1024,
			)
			if srv != nil && frame.PixelFormat.Matches("MJPG") {
				srv.Broadcast(frame.Data)
			}
		}
	}
}

func printStats(st capture.Stats, uptime time.Duration) {
	fmt.Printf("\n")
	fmt.Printf("╭─────────────────────────────────────────────────────────╮\n")
	fmt.Printf("│ Capture Statistics (Uptime: %s)\n", uptime.Round(time.Second))
	fmt.Printf("├─────────────────────────────────────────────────────────┤\n")
	fmt.Printf("│ Device:             %s\n", st.Device)
	fmt.Printf("│ Mode:               %s %s\n", st.Resolution, st.FourCC)
	fmt.Printf("│ Frames Captured:    %6d frames\n", st.FrameCount)
	fmt.Printf("│ Real FPS:           %6.2f fps\n", st.FPSReal)
	fmt.Printf("│ Latency:            %6d ms\n", st.LatencyMS)
	fmt.Printf("│ Bytes Read:         %6.2f MB\n", float64(st.BytesRead)/1024/1024)
	fmt.Printf("│ Empty Reads:        %6d\n", st.EmptyReads)
	fmt.Printf("│ Reopens:            %6d\n", st.Reopens)
	fmt.Printf("│ Failed Reconnects:  %6d\n", st.Reconnects)
	fmt.Printf("│ Watchdog:           %s\n", st.WatchdogState)
	fmt.Printf("│ Connected:          %6v\n", st.IsConnected)
	fmt.Printf("╰─────────────────────────────────────────────────────────╯\n")
	fmt.Printf("\n")
}
