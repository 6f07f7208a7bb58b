package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"

	"github.com/coldreach/coldreach/internal/config"
	"github.com/coldreach/coldreach/internal/model"
)

func TestChecker_RunStopsOnCancel(t *testing.T) {
	cfg := config.MonitorConfig{CheckIntervalSecs: 1, LookbackWindowHours: 24, ErrorRateThreshold: 0.1}
	checker := NewChecker(NewCollector(&fakeLog{}), NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_DefaultInterval(t *testing.T) {
	checker := NewChecker(NewCollector(&fakeLog{}), NewAlerter(config.MonitorConfig{}), config.MonitorConfig{})
	assert.NotNil(t, checker)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)
}

func TestChecker_CheckSendsAlerts(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	cfg := thresholds()
	cfg.WebhookURL = ts.URL
	cfg.MinSessions = 1
	checker := NewChecker(NewCollector(&fakeLog{entries: sampleEntries()}), NewAlerter(cfg), cfg)

	// Error rate 0.4 and one delivery failure.
	assert.Equal(t, 2, checker.Check(context.Background()))
	assert.Equal(t, int32(2), received.Load())
}

func TestChecker_CheckCollectError(t *testing.T) {
	cfg := thresholds()
	cfg.WebhookURL = "http://127.0.0.1:0"
	checker := NewChecker(NewCollector(&fakeLog{err: eris.New("boom")}), NewAlerter(cfg), cfg)

	assert.Equal(t, 0, checker.Check(context.Background()))
}

func TestChecker_SuppressesRepeatsWithinCooldown(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	cfg := thresholds()
	cfg.WebhookURL = ts.URL
	cfg.MinSessions = 1
	cfg.AlertCooldownSecs = 600
	logs := &fakeLog{entries: sampleEntries()}
	checker := NewChecker(NewCollector(logs), NewAlerter(cfg), cfg)
	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	checker.now = func() time.Time { return now }

	assert.Equal(t, 2, checker.Check(context.Background()))

	// Same breach a minute later stays quiet.
	now = now.Add(time.Minute)
	assert.Equal(t, 0, checker.Check(context.Background()))

	// A new delivery failure is reported at once; the error rate is not.
	logs.entries = append(logs.entries, attempt(0.9, ""), session(model.OutcomeError, "delivery_error"))
	now = now.Add(time.Minute)
	assert.Equal(t, 1, checker.Check(context.Background()))

	// After the cooldown both fire again.
	now = now.Add(11 * time.Minute)
	assert.Equal(t, 2, checker.Check(context.Background()))
	assert.Equal(t, int32(5), received.Load())
}

func TestChecker_ClearedAlertFiresOnNextBreach(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	cfg := thresholds()
	cfg.WebhookURL = ts.URL
	cfg.MinSessions = 1
	logs := &fakeLog{entries: sampleEntries()}
	checker := NewChecker(NewCollector(logs), NewAlerter(cfg), cfg)

	assert.Equal(t, 2, checker.Check(context.Background()))

	healthy := []model.LogEntry{attempt(0.9, ""), session(model.OutcomeSent, "")}
	logs.entries = healthy
	assert.Equal(t, 0, checker.Check(context.Background()))
	assert.Empty(t, checker.firing)

	logs.entries = sampleEntries()
	assert.Equal(t, 2, checker.Check(context.Background()))
	assert.Equal(t, int32(4), received.Load())
}

func TestChecker_FailedWebhookIsRetriedNextTick(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	cfg := thresholds()
	cfg.WebhookURL = ts.URL
	cfg.MinSessions = 1
	checker := NewChecker(NewCollector(&fakeLog{entries: sampleEntries()}), NewAlerter(cfg), cfg)

	assert.Equal(t, 0, checker.Check(context.Background()))
	fail.Store(false)
	assert.Equal(t, 2, checker.Check(context.Background()))
}
