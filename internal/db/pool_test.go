package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolConfig(t *testing.T) {
	const url = "postgres://tycoon@localhost:5432/tycoon"

	cfg, err := poolConfig(Options{URL: url})
	require.NoError(t, err)
	assert.Equal(t, int32(8), cfg.MaxConns)
	assert.Equal(t, int32(1), cfg.MinConns)
	assert.Equal(t, 30*time.Minute, cfg.MaxConnLifetime)
	assert.Equal(t, "localhost", cfg.ConnConfig.Host)

	cfg, err = poolConfig(Options{URL: url, MaxConns: 3, MinConns: 5})
	require.NoError(t, err)
	assert.Equal(t, int32(3), cfg.MaxConns)
	assert.Equal(t, int32(3), cfg.MinConns, "min is clamped to max")

	_, err = poolConfig(Options{URL: "postgres://%zz"})
	assert.ErrorContains(t, err, "parse database url")
}
