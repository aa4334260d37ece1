package db

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farewatch/internal/config"
	"farewatch/internal/types"
)

func TestBuildPoolConfig(t *testing.T) {
	cfg := config.DatabaseConfig{
		URL:             config.SecretString("postgres://farewatch:pw@localhost:5432/farewatch"),
		MaxConns:        7,
		MinConns:        3,
		MaxConnLifetime: 15 * time.Minute,
	}

	poolCfg, err := buildPoolConfig(cfg)
	require.NoError(t, err)

	assert.Equal(t, int32(7), poolCfg.MaxConns)
	assert.Equal(t, int32(3), poolCfg.MinConns)
	assert.Equal(t, 15*time.Minute, poolCfg.MaxConnLifetime)
	assert.Equal(t, "farewatch", poolCfg.ConnConfig.Database)
}

func TestBuildPoolConfigRejectsBadURL(t *testing.T) {
	cfg := config.DatabaseConfig{URL: config.SecretString("postgres://bad url\x00")}

	_, err := buildPoolConfig(cfg)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}
