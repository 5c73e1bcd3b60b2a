package core_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coder-hombre/Voice-of-the-Village-sub000/pkg/core"
)

func TestEngineError_Format(t *testing.T) {
	err := core.NewEngineError("CleanupExpired", core.ErrStorageOperation)
	require.Error(t, err)
	assert.Equal(t, "villagemem: CleanupExpired: storage operation failed", err.Error())
}

func TestEngineError_Unwrap(t *testing.T) {
	err := core.NewEngineError("RestoreFromBackup", core.ErrBackupFailed)
	assert.ErrorIs(t, err, core.ErrBackupFailed)

	var engineErr *core.EngineError
	require.True(t, errors.As(err, &engineErr))
	assert.Equal(t, "RestoreFromBackup", engineErr.Op)
}

func TestNewEngineError_NilPassthrough(t *testing.T) {
	assert.NoError(t, core.NewEngineError("AnyOp", nil))
}

func TestEngineError_WrappedChain(t *testing.T) {
	inner := core.NewEngineError("Load", core.ErrAgentNotFound)
	outer := core.NewEngineError("ProcessConversation", inner)

	assert.ErrorIs(t, outer, core.ErrAgentNotFound)
}
