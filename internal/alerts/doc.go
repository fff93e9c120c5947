// Package alerts implements threshold alerts with trigger/resolve
// hysteresis and a bounded trigger history. State changes are passed to a
// Notifier; WebhookNotifier delivers them to Slack, Teams, PagerDuty or
// generic HTTP targets.
package alerts
