// LiteTouch Bridge - Gray Logic bridge for LiteTouch 5000LC lighting panels
//
// The litetouch binary runs the MQTT bridge daemon that connects a panel
// to the Gray Logic message bus, and offers one-shot commands for driving
// and inspecting a panel from a shell.
//
//	litetouch run                      # bridge daemon
//	litetouch load level 12 50         # set load 12 to 50%
//	litetouch switch toggle 14 3       # press keypad 14 button 3
//	litetouch led query 14 3           # read a button LED
//	litetouch monitor                  # print LED events
//	litetouch audit list               # recent bridge commands
//	litetouch db status                # command history schema
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCmd().ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
