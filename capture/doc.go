// Package capture acquires video frames from USB microscope cameras
// and keeps the stream alive through driver stalls and disconnects.
//
// The entry point is Supervisor. Build one from a Config, call Start
// to get a frame channel, and range over it:
//
//	sup, err := capture.NewSupervisor(capture.Config{
//		Selector: "MikrOkular",
//		Format:   capture.FormatRequest{Width: 1280, Height: 720, FourCC: "MJPG"},
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	frames, err := sup.Start(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer sup.Stop()
//	for frame := range frames {
//		process(frame)
//	}
//	if err := sup.Err(); err != nil {
//		log.Fatal(err)
//	}
//
// Device selection accepts a numeric index, a device path, a
// case-insensitive name fragment, or the empty string, which
// auto-detects the vendor camera and falls back to index 0.
//
// Format negotiation treats every request as advisory: the device is
// asked, the result is read back, and a mismatched pixel format gets
// one shot at the configured fallback before the stream proceeds with
// whatever the driver granted.
//
// While streaming, a watchdog counts consecutive empty reads. Past the
// threshold the supervisor closes and reopens the same device; failed
// reopen attempts draw down a lifetime reconnect budget, and once the
// budget is spent the channel closes with Err reporting ErrExhausted.
package capture
