package main

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActiveRequestInterrupt(t *testing.T) {
	var r activeRequest
	assert.False(t, r.interrupt(), "idle interrupt")

	ctx, done := r.begin()
	assert.True(t, r.interrupt())
	assert.Error(t, ctx.Err())
	done()

	assert.False(t, r.interrupt(), "request already finished")
}

func TestActiveRequestConcurrentInterrupt(t *testing.T) {
	var r activeRequest
	stop := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				r.interrupt()
			}
		}
	}()

	for i := 0; i < 1000; i++ {
		_, done := r.begin()
		done()
	}
	close(stop)
	wg.Wait()

	assert.False(t, r.interrupt())
}

func TestHandleCommand(t *testing.T) {
	assert.True(t, handleCommand("/quit", nil))
	assert.True(t, handleCommand("/Q now", nil))
}
