package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tenancy/backend/internal/domain/shared"
	"github.com/tenancy/backend/internal/domain/tenancy"
)

func requireValidationError(t *testing.T, err error) *shared.ValidationError {
	t.Helper()
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrInvalidInput))
	var verr *shared.ValidationError
	require.True(t, errors.As(err, &verr))
	return verr
}

func TestValidator_CreateShapes(t *testing.T) {
	v := New()

	t.Run("valid tenant", func(t *testing.T) {
		assert.NoError(t, v.Struct(tenancy.TenantCreate{Name: "Acme"}))
	})

	t.Run("missing tenant name", func(t *testing.T) {
		verr := requireValidationError(t, v.Struct(tenancy.TenantCreate{}))
		require.Len(t, verr.Details, 1)
		assert.Equal(t, "name", verr.Details[0].Field)
		assert.Equal(t, "This field is required", verr.Details[0].Message)
	})

	t.Run("site without tenant", func(t *testing.T) {
		verr := requireValidationError(t, v.Struct(tenancy.SiteCreate{Name: "HQ"}))
		assert.True(t, verr.HasField("tenant_id"))
	})
}

func TestValidator_UpdateShapes(t *testing.T) {
	v := New()

	t.Run("unset fields are not validated", func(t *testing.T) {
		assert.NoError(t, v.Struct(tenancy.SiteUpdate{ID: 1}))
	})

	t.Run("explicit null skips value rules", func(t *testing.T) {
		assert.NoError(t, v.Struct(tenancy.SiteUpdate{ID: 1, Address: shared.Null[string]()}))
	})

	t.Run("set empty name violates min length", func(t *testing.T) {
		verr := requireValidationError(t, v.Struct(tenancy.TenantUpdate{ID: 1, Name: shared.Set("")}))
		require.Len(t, verr.Details, 1)
		assert.Equal(t, "name", verr.Details[0].Field)
		assert.Equal(t, "Must be at least 1 characters", verr.Details[0].Message)
	})

	t.Run("set zero tenant id is rejected", func(t *testing.T) {
		verr := requireValidationError(t, v.Struct(tenancy.SiteUpdate{ID: 1, TenantID: shared.Set[uint](0)}))
		assert.True(t, verr.HasField("tenant_id"))
	})

	t.Run("missing id", func(t *testing.T) {
		verr := requireValidationError(t, v.Struct(tenancy.TenantUpdate{Name: shared.Set("Acme")}))
		assert.True(t, verr.HasField("id"))
	})
}

func TestDecode(t *testing.T) {
	v := New()

	t.Run("decodes and validates", func(t *testing.T) {
		in, err := Decode[tenancy.SiteCreate](v, []byte(`{"name":"HQ","tenant_id":1}`))
		require.NoError(t, err)
		assert.Equal(t, "HQ", in.Name)
		assert.Nil(t, in.Address)
		assert.Equal(t, uint(1), in.TenantID)
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		_, err := Decode[tenancy.TenantCreate](v, []byte(`{"name":"Acme","plan":"pro"}`))
		verr := requireValidationError(t, err)
		require.Len(t, verr.Details, 1)
		assert.Equal(t, "plan", verr.Details[0].Field)
		assert.Equal(t, "Unknown field", verr.Details[0].Message)
	})

	t.Run("rejects wrong types", func(t *testing.T) {
		_, err := Decode[tenancy.SiteCreate](v, []byte(`{"name":"HQ","tenant_id":"one"}`))
		requireValidationError(t, err)
	})

	t.Run("rejects trailing data", func(t *testing.T) {
		_, err := Decode[tenancy.TenantCreate](v, []byte(`{"name":"Acme"} {}`))
		requireValidationError(t, err)
	})

	t.Run("update keeps null and unset apart", func(t *testing.T) {
		in, err := Decode[tenancy.SiteUpdate](v, []byte(`{"id":1,"address":null}`))
		require.NoError(t, err)
		assert.Equal(t, shared.Changes{"address": nil}, in.Fields())
	})

	t.Run("validation runs after decoding", func(t *testing.T) {
		_, err := Decode[tenancy.TenantUpdate](v, []byte(`{"id":1,"name":""}`))
		verr := requireValidationError(t, err)
		assert.True(t, verr.HasField("name"))
	})
}
