package redis_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/execution-simulator/internal/testutil"
	"github.com/ethpandaops/execution-simulator/pkg/redis"
)

func TestNew(t *testing.T) {
	s := testutil.NewMiniredis(t)

	client, err := redis.New(&redis.Config{Address: "redis://" + s.Addr()})
	require.NoError(t, err)

	defer client.Close()

	require.NoError(t, client.Ping(context.Background()).Err())
}

func TestConfig_Validate(t *testing.T) {
	config := &redis.Config{}
	assert.Error(t, config.Validate())

	config = &redis.Config{Address: "localhost:6379"}
	require.NoError(t, config.Validate())
	assert.Equal(t, "execution-simulator", config.Prefix)

	config = &redis.Config{Address: "localhost:6379", TTL: -1}
	assert.Error(t, config.Validate())
}
