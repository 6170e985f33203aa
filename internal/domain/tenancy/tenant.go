// Package tenancy defines the shapes exchanged with the tenant and site
// data-access layer: a create input, an update input and a read output per
// entity. The persisted records live in the persistence models package.
package tenancy

import "github.com/tenancy/backend/internal/domain/shared"

// TenantCreate holds the fields needed to register a tenant
type TenantCreate struct {
	Name string `json:"name" validate:"required,min=1,max=200"`
}

// TenantUpdate is a partial update of a tenant. Only provided fields change.
type TenantUpdate struct {
	ID   uint                 `json:"id" validate:"required"`
	Name shared.Field[string] `json:"name,omitzero" validate:"omitempty,min=1,max=200"`
}

// Key returns the identifier of the tenant to update
func (u TenantUpdate) Key() any {
	return u.ID
}

// Fields returns the provided fields keyed by column name
func (u TenantUpdate) Fields() shared.Changes {
	c := shared.Changes{}
	shared.Put(c, "name", u.Name)
	return c
}

// Tenant is the read shape of a tenant
type Tenant struct {
	shared.BaseEntity
	Name string `json:"name"`
}
