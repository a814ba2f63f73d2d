package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

const (
	tenantHeader = "X-Tenant-ID"
	tenantLocal  = "tenant_id"
)

// TenantScope extracts the tenant identifier every ledger operation is scoped
// by. Resolution of tenants from credentials lives upstream; this boundary
// only insists the header is present.
func TenantScope() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenant := strings.TrimSpace(c.Get(tenantHeader))
		if tenant == "" {
			return fiber.NewError(fiber.StatusBadRequest, "missing "+tenantHeader+" header")
		}
		c.Locals(tenantLocal, tenant)
		return c.Next()
	}
}

// TenantID returns the tenant extracted by TenantScope, or empty.
func TenantID(c *fiber.Ctx) string {
	tenant, _ := c.Locals(tenantLocal).(string)
	return tenant
}
