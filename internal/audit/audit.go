// Package audit registra acciones de seguridad (claims, borrados, biometría)
// en una pista separada del log operativo. Hoy sale por zap con un marker
// fijo; un sink a DB externa puede colgarse de acá sin tocar a los callers.
package audit

import (
	"context"

	"go.uber.org/zap"

	"github.com/dropDatabas3/homesentry/internal/observability/logger"
)

// Eventos conocidos. String suelto también vale, pero estos son los que
// buscan los dashboards.
const (
	DeviceClaimed  = "device.claimed"
	DeviceRemoved  = "device.removed"
	FacesAdded     = "faces.added"
	FacesDeleted   = "faces.deleted"
	SessionRevoked = "session.revoked"
)

// Log emite un evento de auditoría con los campos dados. Usa el logger del
// contexto para heredar request_id.
func Log(ctx context.Context, event string, fields ...zap.Field) {
	all := make([]zap.Field, 0, len(fields)+1)
	all = append(all, zap.String("audit", event))
	all = append(all, fields...)
	logger.From(ctx).Info("audit", all...)
}
