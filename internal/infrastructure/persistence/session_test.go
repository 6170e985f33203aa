package persistence

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tenancy/backend/internal/domain/tenancy"
	"github.com/tenancy/backend/internal/infrastructure/config"
	"github.com/tenancy/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewSession(t *testing.T) {
	ctx := context.Background()

	t.Run("each session gets its own id", func(t *testing.T) {
		db := newTestDatabase(t, nil)
		a, b := db.NewSession(ctx), db.NewSession(ctx)

		_, err := uuid.Parse(a.ID())
		assert.NoError(t, err)
		assert.NotEqual(t, a.ID(), b.ID())
		assert.NotNil(t, a.DB())
		assert.NotNil(t, a.Logger())
	})

	t.Run("session id reaches the bound context", func(t *testing.T) {
		db := newTestDatabase(t, nil)
		s := db.NewSession(ctx)
		assert.Equal(t, s.ID(), logger.GetSessionID(s.DB().Statement.Context))
	})

	t.Run("operation and SQL logs carry the session id", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		db := newTestDatabase(t, zap.New(core), func(c *config.Config) { c.Database.LogLevel = "info" })
		logs.TakeAll()
		s := db.NewSession(ctx)

		_, err := s.Tenants().Add(ctx, tenancy.TenantCreate{Name: "Acme"})
		require.NoError(t, err)

		added := logs.FilterMessage("Record added").All()
		require.Len(t, added, 1)
		assert.Equal(t, s.ID(), added[0].ContextMap()["session_id"])
		assert.Equal(t, "tenants", added[0].ContextMap()["table"])

		queries := logs.FilterMessage("SQL Query").All()
		require.NotEmpty(t, queries)
		for _, entry := range queries {
			assert.Equal(t, s.ID(), entry.ContextMap()["session_id"])
			assert.NotContains(t, entry.ContextMap()["sql"], "Acme")
		}
	})

	t.Run("full SQL logging shows bound values", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		db := newTestDatabase(t, zap.New(core), func(c *config.Config) {
			c.Database.LogLevel = "info"
			c.Telemetry.DBLogFullSQL = true
		})
		logs.TakeAll()

		_, err := db.NewSession(ctx).Tenants().Add(ctx, tenancy.TenantCreate{Name: "Acme"})
		require.NoError(t, err)

		var shown bool
		for _, entry := range logs.FilterMessage("SQL Query").All() {
			if sql, _ := entry.ContextMap()["sql"].(string); strings.Contains(sql, "Acme") {
				shown = true
			}
		}
		assert.True(t, shown)
	})

	t.Run("sessions on a plain GORM handle still work", func(t *testing.T) {
		db := newTestDatabase(t, nil)
		s := NewSession(ctx, db.DB, nil)

		acme, err := s.Tenants().Add(ctx, tenancy.TenantCreate{Name: "Acme"})
		require.NoError(t, err)
		assert.Equal(t, "Acme", acme.Name)
	})
}
