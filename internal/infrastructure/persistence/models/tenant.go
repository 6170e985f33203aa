package models

import "github.com/tenancy/backend/internal/domain/tenancy"

// TenantModel is the persistence model for a tenant.
// Deleting a tenant removes its sites through the foreign key.
type TenantModel struct {
	BaseModel
	Name  string      `gorm:"type:varchar(200);not null;uniqueIndex"`
	Sites []SiteModel `gorm:"foreignKey:TenantID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the table name for GORM
func (TenantModel) TableName() string {
	return "tenants"
}

// ToDomain converts the persistence model to the tenant read shape
func (m *TenantModel) ToDomain() tenancy.Tenant {
	return tenancy.Tenant{
		BaseEntity: m.BaseModel.ToDomain(),
		Name:       m.Name,
	}
}

// TenantModelFromCreate builds a new, unsaved model from a create input
func TenantModelFromCreate(in tenancy.TenantCreate) *TenantModel {
	return &TenantModel{
		Name: in.Name,
	}
}
