package command

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"lansync/internal/codec"
	"lansync/internal/match"
	"lansync/internal/session"
	"lansync/internal/transport"
)

var joinMoveEvery time.Duration

// joinCmd represents the join command
var joinCmd = &cobra.Command{
	Use:   "join <address>",
	Short: "Join a LAN session",
	Long: `Connect to a host at address ("host" or "host:port") and follow the match.

The default game port is used when the address has none. The command exits
when the host is unreachable, the session is full or the connection drops.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJoin(args[0])
	},
}

func runJoin(address string) error {
	s := session.New(session.Config{
		DefaultPort: cfg.GamePort,
		Transport:   transport.Config{PeerTimeout: cfg.PeerTimeout},
		Logger:      logger,
	})
	if err := s.StartClient(address); err != nil {
		return fmt.Errorf("join %s: %w", address, err)
	}
	defer s.Stop()

	game := match.New(s, match.Config{TickInterval: cfg.TickInterval, Logger: logger})
	fmt.Printf("Connecting to %s...\n", s.HostAddr())

	ctx, stop := signalContext()
	defer stop()

	var (
		failure   error
		lastMove  time.Time
		lastTick  uint64
		moveCount int
	)
	runFrames(ctx, frameInterval(), func(now time.Time, dt time.Duration) bool {
		game.Frame(dt)
		for _, m := range game.Events() {
			printEvent(m)
			switch m.Tag {
			case session.TagServerFull:
				failure = fmt.Errorf("session at %s is full", s.HostAddr())
			case session.TagConnectFailed:
				failure = fmt.Errorf("could not connect to %s", s.HostAddr())
			case session.TagDisconnected:
				if failure == nil {
					failure = fmt.Errorf("disconnected from %s", s.HostAddr())
				}
				return false
			}
		}
		if failure != nil && !s.IsConnected() {
			return false
		}

		if joinMoveEvery > 0 && now.Sub(lastMove) >= joinMoveEvery {
			if e, ok := game.Local(); ok && e.Alive() {
				lastMove = now
				moveCount++
				x, _ := e.Fields.Float("x")
				e.Set("x", x+1)
				_ = game.Act(match.TagMove, codec.Payload{"x": x + 1, "seq": moveCount}, true)
			}
		}

		if tick := game.Tick(); tick/30 != lastTick/30 {
			if e, ok := game.Local(); ok {
				color.HiBlack("tick %d: %d entities, local %v", tick, len(game.World().IDs()), e.Fields)
			}
			lastTick = tick
		}
		return true
	})
	return failure
}

func init() {
	joinCmd.Flags().DurationVar(&joinMoveEvery, "move-every", 0, "send a move action at this interval, 0 disables")
}
