// Package audit registra eventos de seguridad (logins, refresh, revocaciones)
// como entradas estructuradas del logger con component=audit.
package audit

import (
	"context"

	"github.com/dropDatabas3/tokenauthority/internal/observability/logger"
	"go.uber.org/zap"
)

const (
	EventLogin            = "login"
	EventLoginFailed      = "login.failed"
	EventRefresh          = "refresh"
	EventRevocationAdd    = "revocation.add"
	EventRevocationRemove = "revocation.remove"
)

// Log escribe un evento de auditoría. Nunca incluir tokens ni secretos en fields.
func Log(ctx context.Context, event string, fields ...zap.Field) {
	fs := make([]zap.Field, 0, len(fields)+2)
	fs = append(fs, logger.Component("audit"), zap.String("event", event))
	fs = append(fs, fields...)
	logger.From(ctx).Info("audit", fs...)
}
