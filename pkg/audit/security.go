// Package audit provides security audit logging for SIEM consumption.
// It logs security-relevant events in structured JSON format for easy parsing
// and integration with security information and event management systems.
package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventUnsafeIdentifier is logged when identifier screening rejects a
	// schema, table, or column name before query construction.
	EventUnsafeIdentifier SecurityEventType = "unsafe_identifier"
	// EventDatasourceConnect is logged when a connection to an external
	// datasource is established.
	EventDatasourceConnect SecurityEventType = "datasource_connect"
	// EventTableSample is logged for each table sampled from a datasource
	// (optional, can be high volume when analyzing whole schemas).
	EventTableSample SecurityEventType = "table_sample"
)

// SecurityEvent represents an auditable security event with all relevant context
// for SIEM ingestion and analysis.
type SecurityEvent struct {
	Timestamp  time.Time         `json:"timestamp"`
	EventType  SecurityEventType `json:"event_type"`
	EventID    uuid.UUID         `json:"event_id"`
	Datasource string            `json:"datasource,omitempty"`
	Details    any               `json:"details"`
	Severity   string            `json:"severity"` // info, warning, critical
}

// IdentifierRejectionDetails contains specifics of a rejected identifier.
type IdentifierRejectionDetails struct {
	Identifier  string `json:"identifier"`
	Position    string `json:"position"` // schema, table, or column
	Reason      string `json:"reason"`
	Fingerprint string `json:"fingerprint,omitempty"` // libinjection fingerprint for pattern analysis
}

// SecurityAuditor logs security events for SIEM consumption.
// Events are logged in structured JSON format with appropriate severity levels.
type SecurityAuditor struct {
	logger *zap.Logger
}

// NewSecurityAuditor creates a new security auditor with a dedicated logger namespace.
// The logger is automatically configured with "security_audit" namespace for easy
// filtering in SIEM systems.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	// Create a child logger with security-specific namespace for SIEM parsing
	securityLogger := logger.Named("security_audit")
	return &SecurityAuditor{logger: securityLogger}
}

// LogUnsafeIdentifier records a rejected identifier with full context.
// This is logged at ERROR level with "critical" severity for immediate
// alerting: identifiers are interpolated into generated SQL, so a rejection
// here is the screen that stopped an injection attempt.
//
// Example usage:
//
//	auditor.LogUnsafeIdentifier("mssql", audit.IdentifierRejectionDetails{
//	    Identifier:  "orders; DROP TABLE users--",
//	    Position:    "table",
//	    Reason:      "identifier matches a SQL injection pattern",
//	    Fingerprint: "s&1c",
//	})
func (a *SecurityAuditor) LogUnsafeIdentifier(datasource string, details IdentifierRejectionDetails) {
	event := SecurityEvent{
		Timestamp:  time.Now().UTC(),
		EventType:  EventUnsafeIdentifier,
		EventID:    uuid.New(),
		Datasource: datasource,
		Details:    details,
		Severity:   "critical",
	}

	// Serialize event to JSON for SIEM ingestion
	// Ignoring error as marshaling known types should never fail
	eventJSON, _ := json.Marshal(event)

	// Log at ERROR level to ensure visibility in monitoring systems
	a.logger.Error("Unsafe identifier rejected",
		zap.String("event_json", string(eventJSON)),
		zap.String("datasource", datasource),
		zap.String("identifier", details.Identifier),
		zap.String("position", details.Position),
		zap.String("reason", details.Reason),
		zap.String("fingerprint", details.Fingerprint),
		zap.String("severity", "critical"),
	)
}

// LogDatasourceConnect records an established datasource connection for
// audit trail. Hosts should be pre-sanitized so credentials never reach the
// log stream.
func (a *SecurityAuditor) LogDatasourceConnect(datasource, host string) {
	event := SecurityEvent{
		Timestamp:  time.Now().UTC(),
		EventType:  EventDatasourceConnect,
		EventID:    uuid.New(),
		Datasource: datasource,
		Details: map[string]string{
			"host": host,
		},
		Severity: "info",
	}

	eventJSON, _ := json.Marshal(event)

	a.logger.Info("Datasource connection established",
		zap.String("event_json", string(eventJSON)),
		zap.String("datasource", datasource),
		zap.String("host", host),
		zap.String("severity", "info"),
	)
}

// LogTableSample records a sampled table for audit trail.
// This is logged at INFO level and can be enabled/disabled based on audit
// requirements. Note: this can generate high log volume when analyzing
// schemas with many tables.
func (a *SecurityAuditor) LogTableSample(datasource, schema, table string, rows int) {
	event := SecurityEvent{
		Timestamp:  time.Now().UTC(),
		EventType:  EventTableSample,
		EventID:    uuid.New(),
		Datasource: datasource,
		Details: map[string]any{
			"schema": schema,
			"table":  table,
			"rows":   rows,
		},
		Severity: "info",
	}

	eventJSON, _ := json.Marshal(event)

	a.logger.Info("Table sampled",
		zap.String("event_json", string(eventJSON)),
		zap.String("datasource", datasource),
		zap.String("schema", schema),
		zap.String("table", table),
		zap.Int("rows", rows),
		zap.String("severity", "info"),
	)
}
