package infra

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	client, err := NewRedisClient(ctx, "redis://"+mr.Addr()+"/0", "")
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Set(ctx, "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestConstructorsRejectMissingAddresses(t *testing.T) {
	ctx := context.Background()

	_, err := NewRedisClient(ctx, "", "etiktak")
	assert.Error(t, err)
	_, err = NewPostgresPool(ctx, "", "etiktak")
	assert.Error(t, err)
	_, err = NewKafkaProducer(ctx, nil)
	assert.Error(t, err)
	_, err = NewKafkaConsumer(ctx, nil, "group", "topic")
	assert.Error(t, err)
}

func TestNewRedisClientBadURL(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "://nope", "")
	assert.Error(t, err)
}
