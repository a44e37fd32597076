package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueueJobRejectsWhenQueueFull(t *testing.T) {
	drain := func() {
		for {
			select {
			case <-jobQueue:
			default:
				return
			}
		}
	}
	drain()
	defer drain()

	for i := 0; i < cap(jobQueue); i++ {
		require.NoError(t, enqueueJob("job"))
	}

	err := enqueueJob("overflow")
	assert.Error(t, err)
}
