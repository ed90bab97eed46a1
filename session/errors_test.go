package session

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Format(t *testing.T) {
	cause := errors.New("relation does not exist")
	err := ErrReconstructFailed.WithOp("execute").WithCause(cause)

	assert.Equal(t, "execute: [RECONSTRUCT_FAILED] statement reconstruction failed: relation does not exist", err.Error())
	assert.Equal(t, "[NOT_CONNECTED] not connected", ErrNotConnected.Error())
}

func TestError_IsComparesCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", ErrNotConnected.WithOp("exec"))

	assert.ErrorIs(t, err, ErrNotConnected)
	assert.NotErrorIs(t, err, ErrStatementClosed)
	assert.Equal(t, CodeNotConnected, GetErrorCode(err))
	assert.Empty(t, GetErrorCode(errors.New("plain")))
}

func TestError_WithDoesNotMutateSentinel(t *testing.T) {
	_ = ErrStatementClosed.WithOp("fetch").WithCause(errors.New("x"))

	assert.Empty(t, ErrStatementClosed.Op)
	assert.Nil(t, ErrStatementClosed.Cause)
}
