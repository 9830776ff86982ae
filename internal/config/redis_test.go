package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisOptionsPlainAddr(t *testing.T) {
	opt, err := redisOptions(&Config{RedisURL: "localhost:6379", RedisPassword: "secret", RedisDB: 1})
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opt.Addr)
	assert.Equal(t, "secret", opt.Password)
	assert.Equal(t, 1, opt.DB)
}

func TestRedisOptionsShortAddr(t *testing.T) {
	// Exactly eight characters, shorter than "rediss://".
	opt, err := redisOptions(&Config{RedisURL: "ab:12345"})
	require.NoError(t, err)
	assert.Equal(t, "ab:12345", opt.Addr)
}

func TestRedisOptionsURLSchemes(t *testing.T) {
	opt, err := redisOptions(&Config{RedisURL: "redis://localhost:6379/2"})
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opt.Addr)
	assert.Equal(t, 2, opt.DB)

	opt, err = redisOptions(&Config{RedisURL: "rediss://example.com:6380"})
	require.NoError(t, err)
	assert.Equal(t, "example.com:6380", opt.Addr)
	assert.NotNil(t, opt.TLSConfig)

	_, err = redisOptions(&Config{RedisURL: "redis://%zz"})
	require.Error(t, err)
}
