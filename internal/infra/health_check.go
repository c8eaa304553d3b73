package infra

import (
	"context"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
)

const checkExecInterval = 5 * time.Second

// MonitorExecutable signals once when the running binary is replaced on disk.
// The channel is closed without a signal when ctx ends or the binary cannot be stat'ed.
func MonitorExecutable(ctx context.Context) <-chan struct{} {
	return monitorFile(ctx, "", checkExecInterval)
}

func monitorFile(ctx context.Context, path string, interval time.Duration) <-chan struct{} {
	ch := make(chan struct{}, 1)
	entry := log.WithField("object", "MonitorExecutable")
	go func() {
		defer close(ch)

		if path == "" {
			exe, err := os.Executable()
			if err != nil {
				entry.WithField("error", err.Error()).Warn("cant resolve executable path")
				return
			}
			path = exe
		}
		stat, err := os.Stat(path)
		if err != nil {
			entry.WithField("error", err.Error()).Warn("cant stat executable")
			return
		}
		original := stat.ModTime()
		entry.WithField("path", path).Debug("watching executable")

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stat, err := os.Stat(path)
				if err != nil {
					entry.WithField("error", err.Error()).Debug("cant stat executable")
					continue
				}
				if !original.Equal(stat.ModTime()) {
					ch <- struct{}{}
					return
				}
			}
		}
	}()
	return ch
}
