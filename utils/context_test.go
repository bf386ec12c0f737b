package utils

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWithOptionalTimeout(t *testing.T) {
	ctx, cancel := WithOptionalTimeout(context.Background(), 0)
	defer cancel()
	_, ok := ctx.Deadline()
	assert.False(t, ok)
	assert.NoError(t, ctx.Err())

	ctx, cancel = WithOptionalTimeout(context.Background(), -time.Second)
	defer cancel()
	assert.NoError(t, ctx.Err())

	ctx, cancel = WithOptionalTimeout(context.Background(), time.Minute)
	defer cancel()
	deadline, ok := ctx.Deadline()
	assert.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
}
