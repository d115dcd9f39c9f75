package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestNewDevelopment builds the colorized development logger.
func TestNewDevelopment(t *testing.T) {
	t.Parallel()

	logger, err := New(true)
	require.NoError(t, err)
	require.NotNil(t, logger)
	logger.Debug("dev logger ready")
}

// TestNewProduction builds the JSON production logger.
func TestNewProduction(t *testing.T) {
	t.Parallel()

	logger, err := New(false)
	require.NoError(t, err)
	require.NotNil(t, logger)
	logger.Info("prod logger ready")
}
