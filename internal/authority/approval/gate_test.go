package approval

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	authoritydomain "github.com/DikshantJangra/hoperxpharma-sub011/internal/authority/domain"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/config"
)

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func newGate(t *testing.T, db *gorm.DB, roles ...config.RoleAssignment) authoritydomain.ApprovalGate {
	t.Helper()
	cfg := config.Config{}
	cfg.Authority.ApproverRoles = roles
	gate, err := NewGate(Params{DB: db, Cfg: cfg, Log: zap.NewNop()})
	require.NoError(t, err)
	return gate
}

func TestGate_SubjectsAndRoles(t *testing.T) {
	gate := newGate(t, openDB(t), config.RoleAssignment{Subject: "ann", Role: "manager"})

	require.NoError(t, gate.Grant("42", "buyer", []string{" u-1 ", "manager", "u-1", ""}))

	assert.NoError(t, gate.Authorize("42", "u-1"))
	assert.NoError(t, gate.Authorize("42", "ann"))
	assert.ErrorIs(t, gate.Authorize("42", "buyer"), authoritydomain.ErrNotApprover)
	assert.ErrorIs(t, gate.Authorize("42", "bob"), authoritydomain.ErrNotApprover)
	assert.ErrorIs(t, gate.Authorize("42", " "), authoritydomain.ErrNotApprover)
	assert.ErrorIs(t, gate.Authorize("43", "u-1"), authoritydomain.ErrNotApprover)
}

func TestGate_RequesterIsDeniedEvenWhenNamed(t *testing.T) {
	gate := newGate(t, openDB(t), config.RoleAssignment{Subject: "ann", Role: "manager"})

	require.NoError(t, gate.Grant("42", "ann", []string{"ann", "manager"}))
	assert.ErrorIs(t, gate.Authorize("42", "ann"), authoritydomain.ErrNotApprover)
}

func TestGate_GrantReplacesAndRevokeClears(t *testing.T) {
	gate := newGate(t, openDB(t))

	require.NoError(t, gate.Grant("42", "", []string{"u-1"}))
	require.NoError(t, gate.Grant("42", "", []string{"u-2"}))
	assert.ErrorIs(t, gate.Authorize("42", "u-1"), authoritydomain.ErrNotApprover)
	assert.NoError(t, gate.Authorize("42", "u-2"))

	require.NoError(t, gate.Revoke("42"))
	assert.ErrorIs(t, gate.Authorize("42", "u-2"), authoritydomain.ErrNotApprover)
}

func TestGate_GrantsSurviveReload(t *testing.T) {
	db := openDB(t)
	require.NoError(t, newGate(t, db).Grant("42", "buyer", []string{"u-1"}))

	reloaded := newGate(t, db)
	assert.NoError(t, reloaded.Authorize("42", "u-1"))
	assert.ErrorIs(t, reloaded.Authorize("42", "buyer"), authoritydomain.ErrNotApprover)
}
