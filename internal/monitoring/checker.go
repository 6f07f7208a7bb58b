package monitoring

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/coldreach/coldreach/internal/config"
)

// firing is the last delivered alert of one type.
type firing struct {
	at       time.Time
	failures int
}

// Checker runs periodic outcome checks in the background. An alert type that
// keeps breaching is repeated at most once per cooldown, except that new
// delivery failures are reported as soon as they appear. A type that stops
// breaching is cleared and fires again on its next breach.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitorConfig
	now       func() time.Time

	mu     sync.Mutex
	firing map[AlertType]firing
}

// NewChecker creates a background alert checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitorConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
		now:       time.Now,
		firing:    make(map[AlertType]firing),
	}
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting outcome checker",
		zap.Duration("interval", interval),
		zap.Duration("cooldown", c.cooldown()),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("outcome checker stopped")
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

func (c *Checker) cooldown() time.Duration {
	if c.cfg.AlertCooldownSecs <= 0 {
		return time.Hour
	}
	return time.Duration(c.cfg.AlertCooldownSecs) * time.Second
}

// Check collects one snapshot of session outcomes and sends the alerts it
// triggers that are not suppressed. It returns the number of alerts
// delivered.
func (c *Checker) Check(ctx context.Context) int {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	snap, err := c.collector.Collect(ctx, c.cfg.LookbackWindowHours)
	if err != nil {
		log.Error("monitoring: failed to collect outcomes", zap.Error(err))
		return 0
	}
	log.Debug("monitoring: outcomes",
		zap.Int("sessions", snap.Sessions),
		zap.Int("sent", snap.Sent),
		zap.Int("exhausted", snap.Exhausted),
		zap.Int("errored", snap.Errored),
		zap.Int("cancelled", snap.Cancelled),
		zap.Int("delivery_failures", snap.DeliveryFailures()),
		zap.Float64("avg_attempts", snap.AvgAttempts),
	)

	alerts := c.alerter.Evaluate(snap)
	due := c.due(alerts, snap, log)
	if len(due) == 0 {
		return 0
	}

	sent := 0
	for _, a := range due {
		if c.alerter.SendAlerts(ctx, []Alert{a}) == 0 {
			continue
		}
		sent++
		c.mu.Lock()
		c.firing[a.Type] = firing{at: c.now(), failures: snap.DeliveryFailures()}
		c.mu.Unlock()
	}
	log.Info("monitoring: outcome check complete",
		zap.Int("alerts_triggered", len(alerts)),
		zap.Int("alerts_due", len(due)),
		zap.Int("alerts_sent", sent),
	)
	return sent
}

// due drops alerts still inside their cooldown and clears types that no
// longer breach.
func (c *Checker) due(alerts []Alert, snap *Snapshot, log *zap.Logger) []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	active := make(map[AlertType]bool, len(alerts))
	var out []Alert
	for _, a := range alerts {
		active[a.Type] = true
		prev, ok := c.firing[a.Type]
		switch {
		case !ok, now.Sub(prev.at) >= c.cooldown():
		case a.Type == AlertDeliveryFailure && snap.DeliveryFailures() > prev.failures:
		default:
			continue
		}
		out = append(out, a)
	}
	for t := range c.firing {
		if !active[t] {
			delete(c.firing, t)
			log.Info("monitoring: alert cleared", zap.String("type", string(t)))
		}
	}
	return out
}
