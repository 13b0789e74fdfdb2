package application

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gsiegel14/fasten-webhook-service/internal/infrastructure/metrics"
	"github.com/gsiegel14/fasten-webhook-service/internal/ports"
)

// MonitorStatus is the state of one connection's export deadline.
type MonitorStatus string

const (
	MonitorActive   MonitorStatus = "active"
	MonitorStopped  MonitorStatus = "stopped"
	MonitorTimedOut MonitorStatus = "timed_out"
)

const maxDiagnostics = 100

// MonitorContext is the connection context carried into diagnostics.
type MonitorContext struct {
	UserID   string
	Platform string
}

// TimeoutDiagnostic is emitted when an export deadline elapses without a
// terminal webhook.
type TimeoutDiagnostic struct {
	ID           string        `json:"id"`
	ConnectionID string        `json:"connection_id"`
	UserID       string        `json:"user_id,omitempty"`
	Platform     string        `json:"platform,omitempty"`
	Deadline     time.Duration `json:"deadline"`
	StartedAt    time.Time     `json:"started_at"`
	FiredAt      time.Time     `json:"fired_at"`
	KnownIssue   string        `json:"known_issue,omitempty"`
	ProbeStatus  string        `json:"probe_status,omitempty"`
}

// MonitorEntryView is a read-only snapshot of one monitoring entry.
type MonitorEntryView struct {
	ConnectionID string        `json:"connection_id"`
	UserID       string        `json:"user_id,omitempty"`
	Platform     string        `json:"platform,omitempty"`
	Status       MonitorStatus `json:"status"`
	Deadline     time.Duration `json:"deadline"`
	StartedAt    time.Time     `json:"started_at"`
}

type monitorEntry struct {
	connectionID string
	mc           MonitorContext
	status       MonitorStatus
	deadline     time.Duration
	startedAt    time.Time
	timer        *time.Timer
}

// TimeoutMonitorConfig holds the per-platform export deadlines.
type TimeoutMonitorConfig struct {
	DefaultDeadline time.Duration
	EpicDeadline    time.Duration
}

// DefaultTimeoutMonitorConfig returns the production deadlines. Epic bulk
// exports get a longer window; see knownIssueFor.
func DefaultTimeoutMonitorConfig() TimeoutMonitorConfig {
	return TimeoutMonitorConfig{
		DefaultDeadline: 30 * time.Minute,
		EpicDeadline:    90 * time.Minute,
	}
}

// TimeoutMonitor schedules one wall-clock deadline per connection awaiting
// export completion. The deadline firing never mutates connection or export
// state (the terminal webhook may still arrive late); it only marks the
// monitoring entry, emits a diagnostic, and runs a read-only provider probe.
type TimeoutMonitor struct {
	cfg      TimeoutMonitorConfig
	provider ports.ProviderClient
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	mu          sync.Mutex
	entries     map[string]*monitorEntry
	diagnostics []TimeoutDiagnostic
}

// NewTimeoutMonitor creates a monitor. provider may be nil; the diagnostic
// probe is then skipped.
func NewTimeoutMonitor(cfg TimeoutMonitorConfig, provider ports.ProviderClient, m *metrics.Metrics, logger zerolog.Logger) *TimeoutMonitor {
	if cfg.DefaultDeadline <= 0 {
		cfg.DefaultDeadline = DefaultTimeoutMonitorConfig().DefaultDeadline
	}
	if cfg.EpicDeadline <= 0 {
		cfg.EpicDeadline = DefaultTimeoutMonitorConfig().EpicDeadline
	}
	return &TimeoutMonitor{
		cfg:      cfg,
		provider: provider,
		metrics:  m,
		logger:   logger,
		entries:  make(map[string]*monitorEntry),
	}
}

func (m *TimeoutMonitor) deadlineFor(platform string) time.Duration {
	if strings.EqualFold(platform, "epic") {
		return m.cfg.EpicDeadline
	}
	return m.cfg.DefaultDeadline
}

func knownIssueFor(platform string) string {
	switch strings.ToLower(platform) {
	case "epic":
		return "Epic bulk exports routinely exceed an hour for large patient records"
	case "cerner":
		return "Cerner exports occasionally stall when the source system is under maintenance"
	default:
		return ""
	}
}

// Start schedules the deadline for a connection. Restarting an active entry
// resets its deadline.
func (m *TimeoutMonitor) Start(connectionID string, mc MonitorContext) {
	deadline := m.deadlineFor(mc.Platform)

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.entries[connectionID]; ok && existing.timer != nil {
		existing.timer.Stop()
	}

	entry := &monitorEntry{
		connectionID: connectionID,
		mc:           mc,
		status:       MonitorActive,
		deadline:     deadline,
		startedAt:    time.Now().UTC(),
	}
	entry.timer = time.AfterFunc(deadline, func() {
		m.onDeadline(connectionID)
	})
	m.entries[connectionID] = entry

	m.logger.Info().
		Str("connectionId", connectionID).
		Str("platform", mc.Platform).
		Dur("deadline", deadline).
		Msg("Export deadline scheduled")
}

// Stop cancels the deadline. Stopping an already-stopped, already-fired, or
// never-started monitor is a no-op.
func (m *TimeoutMonitor) Stop(connectionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[connectionID]
	if !ok || entry.status != MonitorActive {
		return
	}
	entry.timer.Stop()
	entry.status = MonitorStopped

	m.logger.Debug().
		Str("connectionId", connectionID).
		Msg("Export deadline cancelled")
}

func (m *TimeoutMonitor) onDeadline(connectionID string) {
	m.mu.Lock()
	entry, ok := m.entries[connectionID]
	if !ok || entry.status != MonitorActive {
		// Lost the race against Stop.
		m.mu.Unlock()
		return
	}
	entry.status = MonitorTimedOut

	diagnostic := TimeoutDiagnostic{
		ID:           uuid.NewString(),
		ConnectionID: connectionID,
		UserID:       entry.mc.UserID,
		Platform:     entry.mc.Platform,
		Deadline:     entry.deadline,
		StartedAt:    entry.startedAt,
		FiredAt:      time.Now().UTC(),
		KnownIssue:   knownIssueFor(entry.mc.Platform),
	}
	m.mu.Unlock()

	diagnostic.ProbeStatus = m.probe(connectionID)

	m.mu.Lock()
	m.diagnostics = append(m.diagnostics, diagnostic)
	if len(m.diagnostics) > maxDiagnostics {
		m.diagnostics = append(m.diagnostics[:0:0], m.diagnostics[len(m.diagnostics)-maxDiagnostics:]...)
	}
	m.mu.Unlock()

	m.metrics.TimeoutsFired.Inc()
	m.logger.Warn().
		Str("connectionId", connectionID).
		Str("platform", diagnostic.Platform).
		Dur("deadline", diagnostic.Deadline).
		Str("probeStatus", diagnostic.ProbeStatus).
		Str("knownIssue", diagnostic.KnownIssue).
		Msg("Export deadline elapsed without terminal webhook")
}

// probe performs the read-only provider health check. Probe failure is part
// of the diagnostic, never an error.
func (m *TimeoutMonitor) probe(connectionID string) string {
	if m.provider == nil {
		return ""
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	status, err := m.provider.ConnectionStatus(ctx, connectionID)
	if err != nil {
		m.logger.Warn().
			Err(err).
			Str("connectionId", connectionID).
			Msg("Timeout diagnostic probe failed")
		return "probe_failed"
	}
	return status
}

// Entry returns a snapshot of one monitoring entry.
func (m *TimeoutMonitor) Entry(connectionID string) (MonitorEntryView, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[connectionID]
	if !ok {
		return MonitorEntryView{}, false
	}
	return MonitorEntryView{
		ConnectionID: entry.connectionID,
		UserID:       entry.mc.UserID,
		Platform:     entry.mc.Platform,
		Status:       entry.status,
		Deadline:     entry.deadline,
		StartedAt:    entry.startedAt,
	}, true
}

// Report returns the recorded timeout diagnostics, oldest first.
func (m *TimeoutMonitor) Report() []TimeoutDiagnostic {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]TimeoutDiagnostic, len(m.diagnostics))
	copy(out, m.diagnostics)
	return out
}

// Stats returns entry counts by monitoring status.
func (m *TimeoutMonitor) Stats() map[MonitorStatus]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := make(map[MonitorStatus]int)
	for _, entry := range m.entries {
		stats[entry.status]++
	}
	return stats
}
