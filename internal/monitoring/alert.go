package monitoring

import (
	"github.com/rs/zerolog/log"
)

// MockAlert sends a mock alert (logs for now)
func MockAlert(message, tenantCode string, labels map[string]string) {
	log.Error().
		Str("alert", message).
		Str("tenant_code", tenantCode).
		Fields(labels).
		Msg("ALERT: Tenant issue detected")
}
