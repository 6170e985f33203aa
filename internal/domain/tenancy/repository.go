package tenancy

import (
	"context"

	"github.com/tenancy/backend/internal/domain/shared"
)

// TenantRepository defines the data-access operations for tenants
type TenantRepository interface {
	shared.CRUD[uint, TenantCreate, TenantUpdate, Tenant]
	GetByName(ctx context.Context, name string) (*Tenant, error)
}

// SiteRepository defines the data-access operations for sites
type SiteRepository interface {
	shared.CRUD[uint, SiteCreate, SiteUpdate, Site]
	ListByTenant(ctx context.Context, tenantID uint, q shared.Query) ([]Site, error)
}
