package persistence

import (
	"context"

	"github.com/tenancy/backend/internal/domain/shared"
	"github.com/tenancy/backend/internal/domain/tenancy"
	"github.com/tenancy/backend/internal/infrastructure/persistence/crud"
	"github.com/tenancy/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// TenantBinding wires tenant shapes into the generic engine. Removing a
// tenant removes its sites first.
func TenantBinding() crud.Binding[models.TenantModel, tenancy.TenantCreate, tenancy.Tenant] {
	return crud.Binding[models.TenantModel, tenancy.TenantCreate, tenancy.Tenant]{
		FromCreate: models.TenantModelFromCreate,
		ToRead:     (*models.TenantModel).ToDomain,
		Cascade: []crud.Dependent{
			{Model: &models.SiteModel{}, ForeignKey: "tenant_id"},
		},
	}
}

// TenantCRUD implements tenancy.TenantRepository on the generic engine
type TenantCRUD struct {
	*crud.Base[models.TenantModel, tenancy.TenantCreate, tenancy.TenantUpdate, tenancy.Tenant]
}

var _ tenancy.TenantRepository = (*TenantCRUD)(nil)

// NewTenantCRUD binds a TenantCRUD to db
func NewTenantCRUD(db *gorm.DB, opts ...crud.Option) *TenantCRUD {
	return &TenantCRUD{
		Base: crud.MustNew[models.TenantModel, tenancy.TenantCreate, tenancy.TenantUpdate](db, TenantBinding(), opts...),
	}
}

// Get returns the tenant with the given id, or nil
func (r *TenantCRUD) Get(ctx context.Context, id uint) (*tenancy.Tenant, error) {
	return r.Base.Get(ctx, id)
}

// Remove deletes the tenant and its sites, returning the tenant as it was
func (r *TenantCRUD) Remove(ctx context.Context, id uint) (*tenancy.Tenant, error) {
	return r.Base.Remove(ctx, id)
}

// GetByName returns the tenant with exactly this name, or nil
func (r *TenantCRUD) GetByName(ctx context.Context, name string) (*tenancy.Tenant, error) {
	list, err := r.GetMultiple(ctx, shared.Query{Filter: shared.Eq("name", name), Limit: 1})
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return &list[0], nil
}
