package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCronAdd(t *testing.T) {
	c := NewCron()
	assert.NoError(t, c.Add("metrics-sweep", "@every 6h", func(context.Context) {}))
	assert.NoError(t, c.Add("disabled", "", func(context.Context) {}))
	assert.Error(t, c.Add("broken", "not a spec", func(context.Context) {}))
	assert.Equal(t, 1, c.Len())
}
