package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	pkgerrors "github.com/mahara-hq/mahara-backend/pkg/errors"
)

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "uq_wallets_owner_currency"}

	assert.True(t, IsUniqueViolation(pgErr, ""))
	assert.True(t, IsUniqueViolation(pgErr, "uq_wallets_owner_currency"))
	assert.False(t, IsUniqueViolation(pgErr, "uq_other"))
	assert.True(t, IsUniqueViolation(fmt.Errorf("recording: %w", pgErr), "uq_wallets_owner_currency"))

	notUnique := &pgconn.PgError{Code: "23503"}
	assert.False(t, IsUniqueViolation(notUnique, ""))

	sqliteErr := errors.New("UNIQUE constraint failed: wallet_transactions.idempotency_key")
	assert.True(t, IsUniqueViolation(sqliteErr, ""))
	assert.True(t, IsUniqueViolation(sqliteErr, "idempotency_key"))

	// A wrapper whose Error() omits the cause text must still match.
	wrapped := pkgerrors.Wrap(pkgerrors.CodeConflict, sqliteErr, "idempotency key reused")
	assert.True(t, IsUniqueViolation(wrapped, ""))
	assert.True(t, IsUniqueViolation(wrapped, "idempotency_key"))

	assert.False(t, IsUniqueViolation(nil, ""))
	assert.False(t, IsUniqueViolation(errors.New("timeout"), ""))
}
