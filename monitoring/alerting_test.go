package monitoring

import (
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []*Alert
}

func (n *recordingNotifier) Name() string { return "recording" }

func (n *recordingNotifier) Send(alert *Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}

func newTestAlertManager(t *testing.T) (*AlertManager, *recordingNotifier, *time.Time) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	am := newAlertManager(logger)
	t.Cleanup(am.Stop)

	notifier := &recordingNotifier{}
	am.AddNotifier(notifier)

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	am.now = func() time.Time { return now }
	return am, notifier, &now
}

func TestAlertManagerTriggersAndResolves(t *testing.T) {
	am, notifier, now := newTestAlertManager(t)

	stalled := true
	am.UpdateRuleCondition(RuleStalledJobs, func() bool { return stalled })

	am.evaluateAllRules()
	active := am.GetActiveAlerts()
	require.Len(t, active, 1)
	assert.Equal(t, AlertTypeStalledJobs, active[0].Type)
	assert.Equal(t, 1, notifier.count())

	// still firing on the next interval: no duplicate alert
	*now = now.Add(time.Minute)
	am.evaluateAllRules()
	assert.Len(t, am.GetActiveAlerts(), 1)
	assert.Equal(t, 1, notifier.count())

	stalled = false
	*now = now.Add(time.Minute)
	am.evaluateAllRules()
	assert.Empty(t, am.GetActiveAlerts())
}

func TestAlertManagerHonorsRuleInterval(t *testing.T) {
	am, _, now := newTestAlertManager(t)

	calls := 0
	am.UpdateRuleCondition(RuleHighFailureRate, func() bool {
		calls++
		return false
	})

	am.evaluateAllRules()
	*now = now.Add(time.Minute)
	am.evaluateAllRules()
	assert.Equal(t, 1, calls)

	*now = now.Add(5 * time.Minute)
	am.evaluateAllRules()
	assert.Equal(t, 2, calls)
}

func TestAlertManagerManualAlert(t *testing.T) {
	am, notifier, _ := newTestAlertManager(t)

	am.TriggerManualAlert(AlertTypeStoreError, SeverityCritical, "Store down", "redis unreachable", map[string]string{"store": "redis"})
	active := am.GetActiveAlerts()
	require.Len(t, active, 1)
	assert.Equal(t, 1, notifier.count())

	am.ResolveAlert(active[0].ID)
	assert.Empty(t, am.GetActiveAlerts())
}
