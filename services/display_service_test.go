package services

import (
	"context"
	"testing"
	"time"

	"hospital-queue/internal/status"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestDisplayService_IssueCode(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer mock.ClearExpect()
	service := NewDisplayService(db)

	// The stored value is a bcrypt hash of a random code.
	mock.Regexp().ExpectSet("display:code:doc-1", `^\$2[aby]\$.+`, 24*time.Hour).SetVal("OK")

	code, err := service.IssueCode(context.Background(), "doc-1")

	require.NoError(t, err)
	assert.Len(t, code, 8, "4 random bytes hex encoded")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDisplayService_VerifyCode(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer mock.ClearExpect()
	service := NewDisplayService(db)
	ctx := context.Background()

	hash, err := bcrypt.GenerateFromPassword([]byte("7F2A"), bcrypt.MinCost)
	require.NoError(t, err)

	mock.ExpectGet("display:code:doc-1").SetVal(string(hash))
	assert.NoError(t, service.VerifyCode(ctx, "doc-1", "7F2A"))

	mock.ExpectGet("display:code:doc-1").SetVal(string(hash))
	assert.ErrorIs(t, service.VerifyCode(ctx, "doc-1", "0000"), status.ErrForbidden)

	mock.ExpectGet("display:code:doc-2").RedisNil()
	assert.ErrorIs(t, service.VerifyCode(ctx, "doc-2", "7F2A"), status.ErrForbidden)

	assert.NoError(t, mock.ExpectationsWereMet())
}
