package application

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gsiegel14/fasten-webhook-service/internal/infrastructure/metrics"
	"github.com/gsiegel14/fasten-webhook-service/internal/ports"
)

func newTestMonitor(provider *stubProvider, defaultDeadline, epicDeadline time.Duration) *TimeoutMonitor {
	// Avoid storing a typed nil in the interface: a nil *stubProvider must
	// reach the monitor as a nil ProviderClient so the probe is skipped.
	var client ports.ProviderClient
	if provider != nil {
		client = provider
	}
	return NewTimeoutMonitor(TimeoutMonitorConfig{
		DefaultDeadline: defaultDeadline,
		EpicDeadline:    epicDeadline,
	}, client, metrics.NewNop(), zerolog.Nop())
}

func TestTimeoutMonitor_EpicGetsLongerDeadline(t *testing.T) {
	monitor := newTestMonitor(nil, 30*time.Minute, 90*time.Minute)

	monitor.Start("conn-epic", MonitorContext{UserID: "user-1", Platform: "Epic"})
	monitor.Start("conn-other", MonitorContext{UserID: "user-1", Platform: "cerner"})

	epic, ok := monitor.Entry("conn-epic")
	require.True(t, ok)
	assert.Equal(t, 90*time.Minute, epic.Deadline)

	other, ok := monitor.Entry("conn-other")
	require.True(t, ok)
	assert.Equal(t, 30*time.Minute, other.Deadline)
}

func TestTimeoutMonitor_StopCancelsDeadline(t *testing.T) {
	monitor := newTestMonitor(nil, 20*time.Millisecond, 20*time.Millisecond)

	monitor.Start("conn-1", MonitorContext{Platform: "cerner"})
	monitor.Stop("conn-1")

	time.Sleep(60 * time.Millisecond)

	entry, ok := monitor.Entry("conn-1")
	require.True(t, ok)
	assert.Equal(t, MonitorStopped, entry.Status)
	assert.Empty(t, monitor.Report())
}

func TestTimeoutMonitor_StopIsIdempotent(t *testing.T) {
	monitor := newTestMonitor(nil, time.Minute, time.Minute)

	monitor.Start("conn-1", MonitorContext{})
	monitor.Stop("conn-1")
	monitor.Stop("conn-1")
	monitor.Stop("conn-unknown")

	entry, ok := monitor.Entry("conn-1")
	require.True(t, ok)
	assert.Equal(t, MonitorStopped, entry.Status)
}

func TestTimeoutMonitor_DeadlineFiresDiagnostic(t *testing.T) {
	provider := &stubProvider{statusValue: "connected"}
	monitor := newTestMonitor(provider, 10*time.Millisecond, 10*time.Millisecond)

	monitor.Start("conn-1", MonitorContext{UserID: "user-1", Platform: "epic"})

	require.Eventually(t, func() bool {
		return len(monitor.Report()) == 1
	}, time.Second, 5*time.Millisecond)

	diagnostic := monitor.Report()[0]
	assert.NotEmpty(t, diagnostic.ID)
	assert.Equal(t, "conn-1", diagnostic.ConnectionID)
	assert.Equal(t, "user-1", diagnostic.UserID)
	assert.NotEmpty(t, diagnostic.KnownIssue)
	assert.Equal(t, "connected", diagnostic.ProbeStatus)

	entry, ok := monitor.Entry("conn-1")
	require.True(t, ok)
	assert.Equal(t, MonitorTimedOut, entry.Status)
	assert.Equal(t, int32(1), provider.statusCalls.Load())
}

func TestTimeoutMonitor_ProbeFailureIsRecorded(t *testing.T) {
	provider := &stubProvider{statusErr: assert.AnError}
	monitor := newTestMonitor(provider, 10*time.Millisecond, 10*time.Millisecond)

	monitor.Start("conn-1", MonitorContext{Platform: "cerner"})

	require.Eventually(t, func() bool {
		return len(monitor.Report()) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, "probe_failed", monitor.Report()[0].ProbeStatus)
}

func TestTimeoutMonitor_RestartResetsDeadline(t *testing.T) {
	monitor := newTestMonitor(nil, 40*time.Millisecond, 40*time.Millisecond)

	monitor.Start("conn-1", MonitorContext{})
	time.Sleep(25 * time.Millisecond)
	monitor.Start("conn-1", MonitorContext{})
	time.Sleep(25 * time.Millisecond)

	// 50ms elapsed in total but only 25ms since the restart.
	assert.Empty(t, monitor.Report())

	monitor.Stop("conn-1")
}

func TestTimeoutMonitor_StopAfterFireKeepsTimedOut(t *testing.T) {
	monitor := newTestMonitor(nil, 10*time.Millisecond, 10*time.Millisecond)

	monitor.Start("conn-1", MonitorContext{})
	require.Eventually(t, func() bool {
		entry, ok := monitor.Entry("conn-1")
		return ok && entry.Status == MonitorTimedOut
	}, time.Second, 5*time.Millisecond)

	// A late terminal webhook stops the monitor after the fact; the fired
	// entry keeps its timed_out status for the report.
	monitor.Stop("conn-1")

	entry, _ := monitor.Entry("conn-1")
	assert.Equal(t, MonitorTimedOut, entry.Status)
}

func TestTimeoutMonitor_Stats(t *testing.T) {
	monitor := newTestMonitor(nil, time.Minute, time.Minute)

	monitor.Start("conn-1", MonitorContext{})
	monitor.Start("conn-2", MonitorContext{})
	monitor.Stop("conn-2")

	stats := monitor.Stats()
	assert.Equal(t, 1, stats[MonitorActive])
	assert.Equal(t, 1, stats[MonitorStopped])
}
