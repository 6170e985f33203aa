package persistence

import (
	"context"
	"maps"

	"github.com/tenancy/backend/internal/domain/shared"
	"github.com/tenancy/backend/internal/domain/tenancy"
	"github.com/tenancy/backend/internal/infrastructure/persistence/crud"
	"github.com/tenancy/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// SiteBinding wires site shapes into the generic engine. Every read loads
// the owning tenant.
func SiteBinding() crud.Binding[models.SiteModel, tenancy.SiteCreate, tenancy.Site] {
	return crud.Binding[models.SiteModel, tenancy.SiteCreate, tenancy.Site]{
		FromCreate: models.SiteModelFromCreate,
		ToRead:     (*models.SiteModel).ToDomain,
		Preload:    []string{"Tenant"},
	}
}

// SiteCRUD implements tenancy.SiteRepository on the generic engine
type SiteCRUD struct {
	*crud.Base[models.SiteModel, tenancy.SiteCreate, tenancy.SiteUpdate, tenancy.Site]
}

var _ tenancy.SiteRepository = (*SiteCRUD)(nil)

// NewSiteCRUD binds a SiteCRUD to db
func NewSiteCRUD(db *gorm.DB, opts ...crud.Option) *SiteCRUD {
	return &SiteCRUD{
		Base: crud.MustNew[models.SiteModel, tenancy.SiteCreate, tenancy.SiteUpdate](db, SiteBinding(), opts...),
	}
}

// Get returns the site with the given id, or nil
func (r *SiteCRUD) Get(ctx context.Context, id uint) (*tenancy.Site, error) {
	return r.Base.Get(ctx, id)
}

// Remove deletes the site, returning it as it was
func (r *SiteCRUD) Remove(ctx context.Context, id uint) (*tenancy.Site, error) {
	return r.Base.Remove(ctx, id)
}

// ListByTenant returns the sites owned by tenantID, narrowed further by q.
// The tenant constraint overrides any tenant_id equality already in q.
func (r *SiteCRUD) ListByTenant(ctx context.Context, tenantID uint, q shared.Query) ([]tenancy.Site, error) {
	equal := maps.Clone(q.Equal)
	if equal == nil {
		equal = make(map[string]any, 1)
	}
	delete(equal, "TenantID")
	equal["tenant_id"] = tenantID
	q.Equal = equal
	return r.GetMultiple(ctx, q)
}
