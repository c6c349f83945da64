package presence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Heartbeat refreshes mirror claims for locally connected users on a cron
// schedule so they outlive the mirror TTL.
type Heartbeat struct {
	Registry *Registry
	Interval time.Duration
	Timeout  time.Duration
	Logger   *slog.Logger

	cron *cron.Cron
}

func (h *Heartbeat) Start() error {
	interval := h.Interval
	if interval < time.Second {
		interval = 30 * time.Second
	}
	h.cron = cron.New()
	if _, err := h.cron.AddFunc(fmt.Sprintf("@every %s", interval), h.Beat); err != nil {
		return fmt.Errorf("presence: schedule heartbeat: %w", err)
	}
	h.cron.Start()
	if h.Logger != nil {
		h.Logger.Info("presence heartbeat scheduled", "interval", interval)
	}
	return nil
}

// Beat runs one refresh.
func (h *Heartbeat) Beat() {
	if h.Registry == nil {
		return
	}
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := h.Registry.Refresh(ctx); err != nil && h.Logger != nil {
		h.Logger.Warn("presence heartbeat failed", "err", err)
	}
}

// Stop waits for a running beat to finish.
func (h *Heartbeat) Stop() {
	if h.cron == nil {
		return
	}
	<-h.cron.Stop().Done()
}
