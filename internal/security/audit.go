package security

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Auditor emits structured security-audit events. It owns no sink;
// callers hand it whatever zap logger the process configured.
type Auditor struct {
	log *zap.Logger
}

// NewAuditor wraps a zap logger. A nil logger yields a no-op auditor.
func NewAuditor(log *zap.Logger) *Auditor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Auditor{log: log.Named("audit")}
}

// Rejection records a security rejection with a sanitized echo of the
// offending input.
func (a *Auditor) Rejection(event string, context map[string]string) {
	a.log.Warn("security rejection",
		zap.String("event_id", uuid.NewString()),
		zap.String("event", event),
		zap.Any("security_context", SanitizeMap(context)),
	)
}

// Action records a sensitive but permitted operation (cascade delete,
// force claim).
func (a *Auditor) Action(event string, context map[string]string) {
	a.log.Info("security-relevant action",
		zap.String("event_id", uuid.NewString()),
		zap.String("event", event),
		zap.Any("security_context", SanitizeMap(context)),
	)
}
