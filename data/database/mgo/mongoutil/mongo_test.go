package mongoutil

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestCheckBuildsURI(t *testing.T) {
	c := &Config{Address: []string{"h1:27017", "h2:27017"}, Database: "collab", Username: "u", Password: "p@ss"}
	require.NoError(t, c.check())
	assert.Equal(t, defaultMaxPoolSize, c.MaxPoolSize)
	assert.Equal(t, defaultMaxRetry, c.MaxRetry)
	assert.Equal(t, "mongodb://u:p%40ss@h1:27017,h2:27017/collab?authSource=collab&maxPoolSize=50", c.Uri)

	c = &Config{Address: []string{"h1"}, Database: "collab", AuthSource: "admin", MaxPoolSize: 5}
	require.NoError(t, c.check())
	assert.Equal(t, "mongodb://h1/collab?authSource=admin&maxPoolSize=5", c.Uri)
}

func TestCheckKeepsExplicitURI(t *testing.T) {
	c := &Config{Uri: "mongodb://db:27017/?replicaSet=rs0", Address: []string{"ignored"}, Database: "collab"}
	require.NoError(t, c.check())
	assert.Equal(t, "mongodb://db:27017/?replicaSet=rs0", c.Uri)
}

func TestCheckRejects(t *testing.T) {
	assert.Error(t, (&Config{Database: "x"}).check())
	assert.Error(t, (&Config{Uri: "mongodb://h"}).check())
}

func TestRetryable(t *testing.T) {
	ctx := context.Background()
	assert.True(t, retryable(ctx, errors.New("dial tcp: refused")))
	assert.False(t, retryable(ctx, mongo.CommandError{Code: 18}))
	assert.False(t, retryable(ctx, fmt.Errorf("wrapped: %w", mongo.CommandError{Code: 13})))
	assert.True(t, retryable(ctx, mongo.CommandError{Code: 11600}))

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	assert.False(t, retryable(cctx, errors.New("dial")))
}

func TestNewMongoDBInvalidConfig(t *testing.T) {
	_, err := NewMongoDB(context.Background(), &Config{})
	assert.Error(t, err)
}
