// Package monitoring provides alerting capabilities for the catalog bulk backend
package monitoring

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// AlertSeverity represents the severity level of an alert
type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

// AlertType represents the type of alert
type AlertType string

const (
	AlertTypeQueueFull       AlertType = "queue_full"
	AlertTypeStalledJobs     AlertType = "stalled_jobs"
	AlertTypeHighFailureRate AlertType = "high_failure_rate"
	AlertTypeStoreError      AlertType = "store_error"
)

// Default rule names, used with UpdateRuleCondition
const (
	RuleQueueBackpressure = "Bulk Queue Backpressure"
	RuleStalledJobs       = "Stalled Bulk Jobs"
	RuleHighFailureRate   = "High Item Failure Rate"
)

// Alert represents an alert
type Alert struct {
	ID          string                 `json:"id"`
	Type        AlertType              `json:"type"`
	Severity    AlertSeverity          `json:"severity"`
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	Timestamp   time.Time              `json:"timestamp"`
	Labels      map[string]string      `json:"labels"`
	Annotations map[string]interface{} `json:"annotations"`
	Resolved    bool                   `json:"resolved"`
	ResolvedAt  *time.Time             `json:"resolved_at,omitempty"`
}

// AlertRule defines a rule for generating alerts
type AlertRule struct {
	Name        string
	Type        AlertType
	Severity    AlertSeverity
	Condition   func() bool
	Title       string
	Description string
	Labels      map[string]string
	Enabled     bool
	Interval    time.Duration
}

// Notifier interface for sending alert notifications
type Notifier interface {
	Send(alert *Alert) error
	Name() string
}

// LogNotifier sends alerts to the log
type LogNotifier struct {
	logger *logrus.Logger
}

// NewLogNotifier creates a new log notifier
func NewLogNotifier(logger *logrus.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Name() string {
	return "log"
}

func (n *LogNotifier) Send(alert *Alert) error {
	level := logrus.InfoLevel
	switch alert.Severity {
	case SeverityHigh:
		level = logrus.WarnLevel
	case SeverityCritical:
		level = logrus.ErrorLevel
	}

	n.logger.WithFields(logrus.Fields{
		"alert_id":    alert.ID,
		"alert_type":  alert.Type,
		"severity":    alert.Severity,
		"labels":      alert.Labels,
		"annotations": alert.Annotations,
	}).Log(level, fmt.Sprintf("ALERT: %s - %s", alert.Title, alert.Description))

	return nil
}

// AlertManager evaluates rules on a ticker, raises alerts when a condition holds and
// resolves them once it clears.
type AlertManager struct {
	alerts        map[string]*Alert
	mutex         sync.RWMutex
	logger        *logrus.Logger
	rules         []AlertRule
	lastEvaluated map[string]time.Time
	notifiers     []Notifier
	now           func() time.Time
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewAlertManager creates a new alert manager with the default bulk rules and starts
// the evaluation loop.
func NewAlertManager(logger *logrus.Logger) *AlertManager {
	am := newAlertManager(logger)
	go am.evaluateRules(30 * time.Second)
	return am
}

func newAlertManager(logger *logrus.Logger) *AlertManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &AlertManager{
		alerts:        make(map[string]*Alert),
		logger:        logger,
		rules:         getDefaultAlertRules(),
		lastEvaluated: make(map[string]time.Time),
		notifiers:     []Notifier{NewLogNotifier(logger)},
		now:           time.Now,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// getDefaultAlertRules returns the rules for bulk processing. Conditions are wired by
// the caller with UpdateRuleCondition.
func getDefaultAlertRules() []AlertRule {
	never := func() bool { return false }
	return []AlertRule{
		{
			Name:        RuleQueueBackpressure,
			Type:        AlertTypeQueueFull,
			Severity:    SeverityMedium,
			Condition:   never,
			Title:       "Bulk job queue under backpressure",
			Description: "The bulk job queue is rejecting new jobs",
			Labels:      map[string]string{"service": "catalog-bulk-backend"},
			Enabled:     true,
			Interval:    time.Minute,
		},
		{
			Name:        RuleStalledJobs,
			Type:        AlertTypeStalledJobs,
			Severity:    SeverityHigh,
			Condition:   never,
			Title:       "Bulk jobs stalled",
			Description: "Progress merges are failing and jobs were marked failed",
			Labels:      map[string]string{"service": "catalog-bulk-backend"},
			Enabled:     true,
			Interval:    time.Minute,
		},
		{
			Name:        RuleHighFailureRate,
			Type:        AlertTypeHighFailureRate,
			Severity:    SeverityHigh,
			Condition:   never,
			Title:       "High bulk item failure rate",
			Description: "Bulk item failure rate has exceeded threshold",
			Labels:      map[string]string{"service": "catalog-bulk-backend"},
			Enabled:     true,
			Interval:    5 * time.Minute,
		},
	}
}

// evaluateRules runs the alert evaluation loop
func (am *AlertManager) evaluateRules(tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-am.ctx.Done():
			return
		case <-ticker.C:
			am.evaluateAllRules()
		}
	}
}

// evaluateAllRules evaluates every enabled rule whose interval has elapsed
func (am *AlertManager) evaluateAllRules() {
	now := am.now()

	am.mutex.Lock()
	var due []AlertRule
	for _, rule := range am.rules {
		if !rule.Enabled {
			continue
		}
		if last, ok := am.lastEvaluated[rule.Name]; ok && now.Sub(last) < rule.Interval {
			continue
		}
		am.lastEvaluated[rule.Name] = now
		due = append(due, rule)
	}
	am.mutex.Unlock()

	for _, rule := range due {
		if rule.Condition() {
			am.triggerAlert(rule)
		} else {
			am.resolveType(rule.Type)
		}
	}
}

// triggerAlert creates and sends an alert unless one of the same type is active
func (am *AlertManager) triggerAlert(rule AlertRule) {
	now := am.now()
	alert := &Alert{
		ID:          fmt.Sprintf("%s-%d", rule.Type, now.UnixNano()),
		Type:        rule.Type,
		Severity:    rule.Severity,
		Title:       rule.Title,
		Description: rule.Description,
		Timestamp:   now,
		Labels:      rule.Labels,
		Annotations: map[string]interface{}{"rule": rule.Name},
	}

	am.mutex.Lock()
	for _, existing := range am.alerts {
		if existing.Type == rule.Type && !existing.Resolved {
			am.mutex.Unlock()
			return
		}
	}
	am.alerts[alert.ID] = alert
	am.mutex.Unlock()

	am.sendNotifications(alert)
}

// resolveType resolves the active alerts of the given type
func (am *AlertManager) resolveType(alertType AlertType) {
	am.mutex.Lock()
	var ids []string
	for id, alert := range am.alerts {
		if alert.Type == alertType && !alert.Resolved {
			ids = append(ids, id)
		}
	}
	am.mutex.Unlock()

	for _, id := range ids {
		am.ResolveAlert(id)
	}
}

// sendNotifications sends the alert to all notifiers
func (am *AlertManager) sendNotifications(alert *Alert) {
	am.mutex.RLock()
	notifiers := append([]Notifier(nil), am.notifiers...)
	am.mutex.RUnlock()

	for _, notifier := range notifiers {
		if err := notifier.Send(alert); err != nil {
			am.logger.WithError(err).WithField("notifier", notifier.Name()).Error("Failed to send alert notification")
		}
	}
}

// TriggerManualAlert manually triggers an alert
func (am *AlertManager) TriggerManualAlert(alertType AlertType, severity AlertSeverity, title, description string, labels map[string]string) {
	now := am.now()
	alert := &Alert{
		ID:          fmt.Sprintf("%s-%d", alertType, now.UnixNano()),
		Type:        alertType,
		Severity:    severity,
		Title:       title,
		Description: description,
		Timestamp:   now,
		Labels:      labels,
		Annotations: make(map[string]interface{}),
	}

	am.mutex.Lock()
	am.alerts[alert.ID] = alert
	am.mutex.Unlock()

	am.sendNotifications(alert)
}

// ResolveAlert resolves an alert
func (am *AlertManager) ResolveAlert(alertID string) {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	if alert, exists := am.alerts[alertID]; exists && !alert.Resolved {
		now := am.now()
		alert.Resolved = true
		alert.ResolvedAt = &now

		am.logger.WithFields(logrus.Fields{
			"alert_id": alertID,
			"type":     alert.Type,
		}).Info("Alert resolved")
	}
}

// GetActiveAlerts returns all unresolved alerts, oldest first
func (am *AlertManager) GetActiveAlerts() []*Alert {
	am.mutex.RLock()
	defer am.mutex.RUnlock()

	var activeAlerts []*Alert
	for _, alert := range am.alerts {
		if !alert.Resolved {
			activeAlerts = append(activeAlerts, alert)
		}
	}
	sort.Slice(activeAlerts, func(i, j int) bool {
		return activeAlerts[i].Timestamp.Before(activeAlerts[j].Timestamp)
	})

	return activeAlerts
}

// AddNotifier adds a new notifier
func (am *AlertManager) AddNotifier(notifier Notifier) {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	am.notifiers = append(am.notifiers, notifier)
}

// UpdateRuleCondition updates the condition function for a rule
func (am *AlertManager) UpdateRuleCondition(ruleName string, condition func() bool) {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	for i, rule := range am.rules {
		if rule.Name == ruleName {
			am.rules[i].Condition = condition
			break
		}
	}
}

// Stop stops the alert manager
func (am *AlertManager) Stop() {
	am.cancel()
}
