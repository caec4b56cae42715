package app

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DocMeNN/DocMeNN-sub000/internal/testing/guard"
)

func TestTestModeFollowsGuardVariable(t *testing.T) {
	require.Equal(t, guard.Env, testModeEnv)

	t.Setenv(testModeEnv, "1")
	RefreshTestMode()
	require.True(t, InTestMode())

	t.Setenv(testModeEnv, "0")
	RefreshTestMode()
	require.False(t, InTestMode())
}
