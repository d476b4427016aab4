package command

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"lansync/internal/discovery"
)

var (
	discoverWait  time.Duration
	discoverWatch bool
	discoverRedis bool
)

// discoverCmd represents the discover command
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "List sessions announced on the LAN",
	Long: `Listen on the discovery port and print the sessions hosts are announcing.

By default the command listens for --wait and prints what it found. With
--watch it keeps running and prints hosts as they appear and expire. With
--redis the shared registry at REDIS_URL is queried as well.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := discovery.Listen(discovery.ListenerConfig{
			Port:   cfg.DiscoveryPort,
			TTL:    cfg.DiscoveryTTL,
			Logger: logger,
		})
		if err != nil {
			return fmt.Errorf("listen for hosts: %w", err)
		}
		defer l.Close()

		if discoverWatch {
			return watchHosts(l)
		}

		fmt.Printf("Listening on port %d for %s...\n", cfg.DiscoveryPort, discoverWait)
		ctx, stop := signalContext()
		defer stop()
		select {
		case <-ctx.Done():
		case <-time.After(discoverWait):
		}

		hosts := l.Poll(time.Now())
		if discoverRedis {
			hosts = mergeRegistry(hosts)
		}
		printHosts(hosts)
		return nil
	},
}

func watchHosts(l *discovery.Listener) error {
	fmt.Printf("Watching port %d for hosts. Press Ctrl+C to stop.\n", cfg.DiscoveryPort)
	ctx, stop := signalContext()
	defer stop()

	seen := make(map[string]bool)
	runFrames(ctx, 250*time.Millisecond, func(now time.Time, _ time.Duration) bool {
		current := make(map[string]bool)
		for _, h := range l.Poll(now) {
			addr := h.GameAddr()
			current[addr] = true
			if !seen[addr] {
				color.Green("+ %s", describeHost(h))
			}
		}
		for addr := range seen {
			if !current[addr] {
				color.Yellow("- %s", addr)
			}
		}
		seen = current
		return true
	})
	return nil
}

// mergeRegistry adds registry entries the broadcast listener did not see.
func mergeRegistry(hosts []discovery.Host) []discovery.Host {
	if cfg.RedisURL == "" {
		color.Yellow("REDIS_URL is not set, skipping registry lookup")
		return hosts
	}
	registry, err := discovery.NewRedisRegistry(cfg.RedisURL, cfg.DiscoveryTTL)
	if err != nil {
		color.Yellow("registry unavailable: %v", err)
		return hosts
	}
	defer registry.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	announcements, err := registry.Lookup(ctx)
	if err != nil {
		color.Yellow("registry lookup failed: %v", err)
		return hosts
	}

	known := make(map[string]bool, len(hosts))
	for _, h := range hosts {
		known[h.SessionID] = true
	}
	for _, a := range announcements {
		if !known[a.SessionID] {
			hosts = append(hosts, discovery.Host{Announcement: a})
		}
	}
	return hosts
}

func describeHost(h discovery.Host) string {
	mode := ""
	if h.RelayOnly {
		mode = " relay-only"
	}
	return fmt.Sprintf("%s  %d/%d%s", h.GameAddr(), h.Participants, h.Capacity, mode)
}

func printHosts(hosts []discovery.Host) {
	if len(hosts) == 0 {
		color.Yellow("No sessions found.")
		return
	}
	color.Cyan("Found %d session(s):", len(hosts))
	for _, h := range hosts {
		if h.Full() {
			color.HiBlack("  %s  (full)", describeHost(h))
			continue
		}
		fmt.Printf("  %s\n", describeHost(h))
	}
}

func init() {
	discoverCmd.Flags().DurationVar(&discoverWait, "wait", 2*time.Second, "how long to listen before printing")
	discoverCmd.Flags().BoolVar(&discoverWatch, "watch", false, "keep listening and print changes")
	discoverCmd.Flags().BoolVar(&discoverRedis, "redis", false, "also query the registry at REDIS_URL")
}
