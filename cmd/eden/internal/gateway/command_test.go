package gateway

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGatewayCommand(t *testing.T) {
	cmd := NewGatewayCommand()

	require.NotNil(t, cmd)

	assert.Equal(t, "gateway", cmd.Use)
	assert.Contains(t, cmd.Aliases, "g")

	assert.Nil(t, cmd.Run)
	assert.NotNil(t, cmd.RunE)

	assert.NotNil(t, cmd.Flags().Lookup("debug"))
}

func TestNewLoggerLevels(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, newLogger(false).GetLevel())
	assert.Equal(t, zerolog.DebugLevel, newLogger(true).GetLevel())
}
