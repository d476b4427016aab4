package command

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"

	"lansync/internal/session"
)

// signalContext is cancelled on Ctrl+C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// runFrames calls frame every interval with the elapsed time until ctx is
// done or frame returns false.
func runFrames(ctx context.Context, interval time.Duration, frame func(now time.Time, dt time.Duration) bool) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now
			if !frame(now, dt) {
				return
			}
		}
	}
}

// printEvent writes a one-line, colored description of a session event.
func printEvent(m session.Message) {
	id, _ := m.ID()
	switch m.Tag {
	case session.TagPlayerConnected:
		color.Green("+ participant %d joined", id)
	case session.TagPlayerDisconnected:
		color.Yellow("- participant %d left", id)
	case session.TagConnected:
		color.Green("✓ connected, waiting for an id")
	case session.TagIDAssigned:
		capacity, _ := m.Payload.Int("capacity")
		color.Cyan("✓ assigned id %d (capacity %d)", id, capacity)
	case session.TagServerFull:
		color.Red("✗ session is full")
	case session.TagConnectFailed:
		host, _ := m.Payload.String("host")
		color.Red("✗ could not reach %s", host)
	case session.TagDisconnected:
		color.Yellow("connection to host lost")
	default:
		color.HiBlack("[%d] %s %v", m.From, m.Tag, m.Payload)
	}
}
