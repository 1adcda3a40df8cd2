package mcp

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/Bobbins228/codeflare/internal/logging"
)

// ParentPollInterval is how often WatchParent checks the parent PID.
var ParentPollInterval = 2 * time.Second

// WatchParent cancels the server when the process that launched it goes
// away, so an orphaned stdio server does not linger. It never touches
// stdin, which belongs to the SDK's StdioTransport.
//
// The goroutine exits when ctx is canceled or parent death is detected.
func WatchParent(ctx context.Context, cancel context.CancelFunc) {
	watchParent(ctx, cancel, os.Getppid, ParentPollInterval)
}

func watchParent(ctx context.Context, cancel context.CancelFunc, getppid func() int, every time.Duration) {
	ppid := getppid()
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if getppid() != ppid {
					logging.New("mcp").Warn("parent process exited, shutting down", slog.Int("ppid", ppid))
					cancel()
					return
				}
			}
		}
	}()
}
