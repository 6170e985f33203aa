// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from the tenancy shapes to keep the domain layer
// free from ORM concerns.
//
// Key Principles:
// 1. Domain shapes carry no GORM tags
// 2. Persistence models contain all GORM annotations, table names and relationships
// 3. Mapper functions convert create inputs to models and models to read shapes
// 4. The generic CRUD engine only ever touches persistence models
//
// Structure:
// - base.go: BaseModel (identifier and timestamps)
// - tenant.go: TenantModel, owning sites (ON DELETE CASCADE)
// - site.go: SiteModel, belonging to a tenant
package models
