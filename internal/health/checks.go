package health

import (
	"context"
	"fmt"
	"time"

	"github.com/therealutkarshpriyadarshi/edjournal/internal/tailer"
)

// WatcherCheck is unhealthy while any journal file or the directory cannot be
// read.
func WatcherCheck(status func() tailer.Status) HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		s := status()
		h := ComponentHealth{
			Status:  StatusHealthy,
			Message: "Watching journal",
			Metadata: map[string]any{
				"since": s.Since.Format(time.RFC3339),
			},
		}
		if !s.OK {
			h.Status = StatusUnhealthy
			h.Message = s.Message
			if len(s.Failures) > 0 {
				h.Metadata["failures"] = s.Failures
			}
		}
		return h
	}
}

// QueueCheck is degraded once utilization reaches degradedAt and unhealthy
// once the queue is full.
func QueueCheck(utilization func() float64, pending func() int, degradedAt float64) HealthCheck {
	if degradedAt <= 0 || degradedAt > 1 {
		degradedAt = 0.8
	}
	return func(ctx context.Context) ComponentHealth {
		u := utilization()
		h := ComponentHealth{
			Status:  StatusHealthy,
			Message: fmt.Sprintf("%.0f%% full", u*100),
			Metadata: map[string]any{
				"pending":     pending(),
				"utilization": u,
			},
		}
		switch {
		case u >= 1:
			h.Status = StatusUnhealthy
		case u >= degradedAt:
			h.Status = StatusDegraded
		}
		return h
	}
}

// ExtensionsCheck is degraded while an extension's last message to the user
// is an error.
func ExtensionsCheck(status func() string, count func() int) HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		h := ComponentHealth{
			Status:   StatusHealthy,
			Message:  "All extensions delivering",
			Metadata: map[string]any{"extensions": count()},
		}
		if msg := status(); msg != "" {
			h.Status = StatusDegraded
			h.Message = msg
		}
		return h
	}
}
