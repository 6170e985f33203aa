package tenancy

import "github.com/tenancy/backend/internal/domain/shared"

// SiteCreate holds the fields needed to create a site under a tenant
type SiteCreate struct {
	Name     string  `json:"name" validate:"required,min=1,max=200"`
	Address  *string `json:"address,omitempty" validate:"omitempty,max=500"`
	TenantID uint    `json:"tenant_id" validate:"required"`
}

// SiteUpdate is a partial update of a site. Address may be cleared with an
// explicit null; TenantID moves the site to another tenant.
type SiteUpdate struct {
	ID       uint                 `json:"id" validate:"required"`
	Name     shared.Field[string] `json:"name,omitzero" validate:"omitempty,min=1,max=200"`
	Address  shared.Field[string] `json:"address,omitzero" validate:"omitempty,max=500"`
	TenantID shared.Field[uint]   `json:"tenant_id,omitzero" validate:"omitempty,gt=0"`
}

// Key returns the identifier of the site to update
func (u SiteUpdate) Key() any {
	return u.ID
}

// Fields returns the provided fields keyed by column name
func (u SiteUpdate) Fields() shared.Changes {
	c := shared.Changes{}
	shared.Put(c, "name", u.Name)
	shared.Put(c, "address", u.Address)
	shared.Put(c, "tenant_id", u.TenantID)
	return c
}

// Site is the read shape of a site, with its tenant resolved
type Site struct {
	shared.BaseEntity
	Name     string  `json:"name"`
	Address  *string `json:"address"`
	TenantID uint    `json:"tenant_id"`
	Tenant   Tenant  `json:"tenant"`
}
