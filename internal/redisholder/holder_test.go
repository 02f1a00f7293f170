package redisholder

import (
	"context"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trunov/assethub/internal/config"
)

func TestBuildSingleNode(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h, err := Build(ctx, &config.RedisConfig{Addr: mr.Addr(), DialTimeout: 1, ReadTimeout: 1, WriteTimeout: 1})
	require.NoError(t, err)
	defer h.Close()

	require.NoError(t, h.Get().Set(ctx, "k", "v", 0).Err())
	v, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}

func TestBuildFallsBackToNextNode(t *testing.T) {
	mr := miniredis.RunT(t)

	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	h, err := Build(context.Background(), &config.RedisConfig{
		Addr:        "127.0.0.1:1",
		Nodes:       []config.RedisNode{{Host: mr.Host(), Port: port}},
		DialTimeout: 1,
	})
	require.NoError(t, err)
	defer h.Close()

	assert.NoError(t, h.Get().Ping(context.Background()).Err())
}

func TestBuildFailsWithoutReachableServer(t *testing.T) {
	_, err := Build(context.Background(), &config.RedisConfig{
		Nodes:       []config.RedisNode{{Host: "127.0.0.1", Port: 1}},
		DialTimeout: 1,
	})
	assert.Error(t, err)

	_, err = Build(context.Background(), &config.RedisConfig{})
	assert.ErrorContains(t, err, "no redis address")
}

func TestHolderSwapRoutesToNewClient(t *testing.T) {
	a := miniredis.RunT(t)
	b := miniredis.RunT(t)

	h := NewHolder(redis.NewClient(&redis.Options{Addr: a.Addr()}))
	old := h.swap(redis.NewClient(&redis.Options{Addr: b.Addr()}))
	require.NotNil(t, old)
	require.NoError(t, old.Close())

	require.NoError(t, h.Get().Set(context.Background(), "k", "b", 0).Err())
	assert.True(t, b.Exists("k"))
	assert.False(t, a.Exists("k"))
	require.NoError(t, h.Close())
}
