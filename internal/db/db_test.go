package db

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableIdent(t *testing.T) {
	assert.Equal(t, `"cw_air_data"`, TableIdent("cw_air_data"))
	assert.Equal(t, `"cw_soil_data"`, TableIdent("cw_soil_data"))
	assert.Equal(t, `"cw_air_data"`, TableIdent(`cw_air_data"; DROP TABLE cw_devices; --`))
	assert.Equal(t, `"cw_air_data"`, TableIdent(""))
	assert.Equal(t, `"cw_air_data"`, TableIdent("public.cw_air_data"))
}

func TestScopeContext(t *testing.T) {
	ctx := context.Background()
	_, ok := ClaimsFromContext(ctx)
	assert.False(t, ok)

	user := WithClaims(ctx, []byte(`{"sub":"u1"}`), "u1")
	claims, ok := ClaimsFromContext(user)
	require.True(t, ok)
	assert.JSONEq(t, `{"sub":"u1"}`, string(claims))
	role, _ := RoleFromContext(user)
	assert.Equal(t, RoleAuthenticated, role)

	anon := WithAnonymous(ctx)
	role, ok = RoleFromContext(anon)
	require.True(t, ok)
	assert.Equal(t, RoleAnon, role)

	_, ok = scopeFromContext(Unscoped(user))
	assert.False(t, ok)
}

func TestScopeStatements(t *testing.T) {
	s, _ := scopeFromContext(WithClaims(context.Background(), []byte(`{"sub":"u1"}`), "u1"))
	stmts := s.statements()
	require.Len(t, stmts, 3)
	assert.Equal(t, `SET LOCAL ROLE "authenticated"`, stmts[0].sql)
	assert.Equal(t, []any{`{"sub":"u1"}`}, stmts[1].args)
	assert.Equal(t, []any{"u1"}, stmts[2].args)

	s, _ = scopeFromContext(WithAnonymous(context.Background()))
	stmts = s.statements()
	require.Len(t, stmts, 2)
	assert.Equal(t, `SET LOCAL ROLE "anon"`, stmts[0].sql)
	assert.Equal(t, []any{`{"role":"anon"}`}, stmts[1].args)
}

func TestDevicePageSQLStartsAtCursor(t *testing.T) {
	assert.Contains(t, devicePageSQL, "dev_eui >= $1")
	assert.NotContains(t, devicePageSQL, "dev_eui > $1")
}

func TestPlainValue(t *testing.T) {
	var n pgtype.Numeric
	require.NoError(t, n.Scan("21.75"))
	assert.Equal(t, 21.75, plainValue(n))

	assert.Nil(t, plainValue(pgtype.Numeric{}))

	id := uuid.MustParse("6f1c2a9e-7d43-4d8a-9a51-0c1b2d3e4f50")
	assert.Equal(t, id.String(), plainValue([16]byte(id)))

	local := time.Date(2025, 1, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
	assert.Equal(t, time.UTC, plainValue(local).(time.Time).Location())

	assert.Equal(t, "x", plainValue("x"))
}

func TestNotFound(t *testing.T) {
	assert.ErrorIs(t, notFound(pgx.ErrNoRows), ErrNotFound)
	assert.Nil(t, notFound(nil))
}
