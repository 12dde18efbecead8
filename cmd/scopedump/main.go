// Command scopedump captures raw, unconverted frames from a camera
// and writes them to disk next to a JSON metadata file describing the
// requested and granted capture mode. Useful for inspecting what the
// sensor actually emits before any color conversion.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/e7canasta/scopeview/capture"
)

const version = "v0.1.0"

type frameMeta struct {
	Seq       uint64    `json:"seq"`
	Size      int       `json:"size"`
	Offset    int64     `json:"offset"`
	Timestamp time.Time `json:"timestamp"`
}

type modeMeta struct {
	FourCC string  `json:"fourcc"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
	FPS    float64 `json:"fps"`
}

type dumpMeta struct {
	Device    string      `json:"device"`
	Backend   string      `json:"backend"`
	Requested modeMeta    `json:"requested"`
	Captured  modeMeta    `json:"captured"`
	Frames    []frameMeta `json:"frames"`
}

func main() {
	device := flag.String("device", "", "Device index, path or name fragment (empty = auto-detect)")
	width := flag.Int("width", 0, "Requested frame width (0 = driver default)")
	height := flag.Int("height", 0, "Requested frame height (0 = driver default)")
	fps := flag.Float64("fps", 0, "Requested frame rate (0 = driver default)")
	fourcc := flag.String("fourcc", "auto", "Requested pixel format FOURCC (auto = driver default)")
	numFrames := flag.Int("frames", 60, "Number of frames to capture")
	output := flag.String("output", "dump.raw", "Output file for frame bytes, or - for stdout")
	metaPath := flag.String("meta", "", "Metadata JSON path (default: <output>.json, - output: stderr)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("scopedump %s\n", version)
		os.Exit(0)
	}
	if *numFrames <= 0 {
		log.Fatalf("Invalid frame count: %d (must be positive)", *numFrames)
	}

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))

	requested, err := capture.ParseFourCC(*fourcc)
	if err != nil {
		log.Fatalf("Invalid FOURCC: %v", err)
	}

	cfg := capture.Config{
		Selector: *device,
		Backend:  capture.BackendAuto,
		Format: capture.FormatRequest{
			Width:  *width,
			Height: *height,
			FPS:    *fps,
			FourCC: requested,
		},
		// Raw dump: no RGB conversion, stop after the requested count.
		NoConvert:  true,
		FrameLimit: *numFrames,
	}

	sup, err := capture.NewSupervisor(cfg)
	if err != nil {
		log.Fatalf("Failed to create supervisor: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintf(os.Stderr, "\nInterrupted, finishing up...\n")
		cancel()
	}()

	frames, err := sup.Start(ctx)
	if err != nil {
		log.Fatalf("Failed to open camera: %v", err)
	}
	defer sup.Stop()

	var out io.Writer = os.Stdout
	if *output != "-" {
		f, err := os.Create(*output)
		if err != nil {
			log.Fatalf("Failed to create output file: %v", err)
		}
		defer f.Close()
		out = f
	}

	granted := sup.Format()
	meta := dumpMeta{
		Device:  sup.Device().String(),
		Backend: sup.Device().Backend,
		Requested: modeMeta{
			FourCC: requested.String(),
			Width:  *width,
			Height: *height,
			FPS:    *fps,
		},
		Captured: modeMeta{
			FourCC: granted.FourCC.String(),
			Width:  granted.Width,
			Height: granted.Height,
			FPS:    granted.FPS,
		},
	}

	slog.Info("dumping raw frames",
		"device", meta.Device,
		"mode", granted.String(),
		"frames", *numFrames)

	var offset int64
	for frame := range frames {
		if _, err := out.Write(frame.Data); err != nil {
			log.Fatalf("Failed to write frame %d: %v", frame.Seq, err)
		}
		meta.Frames = append(meta.Frames, frameMeta{
			Seq:       frame.Seq,
			Size:      len(frame.Data),
			Offset:    offset,
			Timestamp: frame.Timestamp,
		})
		offset += int64(len(frame.Data))
	}
	if err := sup.Err(); err != nil {
		log.Fatalf("Capture failed after %d frames: %v", len(meta.Frames), err)
	}

	if err := writeMeta(meta, *output, *metaPath); err != nil {
		log.Fatalf("Failed to write metadata: %v", err)
	}

	fmt.Fprintf(os.Stderr, "Captured %d frames (%d bytes) in %s\n",
		len(meta.Frames), offset, meta.Captured.FourCC)
}

func writeMeta(meta dumpMeta, output, metaPath string) error {
	var w io.Writer
	switch {
	case metaPath == "-" || (metaPath == "" && output == "-"):
		w = os.Stderr
	case metaPath != "":
		f, err := os.Create(metaPath)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	default:
		path := output + ".json"
		if ext := filepath.Ext(output); ext == ".raw" {
			path = output[:len(output)-len(ext)] + ".json"
		}
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}
