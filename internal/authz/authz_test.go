package authz

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "tranche/pkg/domain"
	dErrors "tranche/pkg/domain-errors"
)

func TestGrantRequireRevoke(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	officer := id.AccountID(uuid.New())

	err := store.Require(ctx, officer, RoleComplianceOfficer)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))

	require.NoError(t, store.Grant(ctx, officer, RoleComplianceOfficer))
	require.NoError(t, store.Require(ctx, officer, RoleComplianceOfficer))

	// Holding one role does not imply another.
	err = store.Require(ctx, officer, RoleTransferAgent)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))

	require.NoError(t, store.Revoke(ctx, officer, RoleComplianceOfficer))
	err = store.Require(ctx, officer, RoleComplianceOfficer)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
}

func TestGrantValidation(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	err := store.Grant(ctx, id.AccountID(uuid.New()), Role("superuser"))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	err = store.Grant(ctx, id.ZeroAccount, RoleAdmin)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}
