package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/chazu/chainsaw/driver"
)

// ErrWorkerStopped is returned by Do after Stop.
var ErrWorkerStopped = errors.New("runtime worker stopped")

// runtimeRequest represents a unit of work to be executed on the worker goroutine.
type runtimeRequest struct {
	fn   func(*driver.Driver) (any, error)
	done chan runtimeResult
}

// runtimeResult holds the return value from a runtime operation.
type runtimeResult struct {
	value any
	err   error
}

// RuntimeWorker serializes all runtime access through a single goroutine.
// A Runtime is single-threaded; every handler goes through the worker.
type RuntimeWorker struct {
	driver   *driver.Driver
	requests chan runtimeRequest
	quit     chan struct{}
}

// NewRuntimeWorker creates a RuntimeWorker and starts the processing goroutine.
func NewRuntimeWorker(d *driver.Driver) *RuntimeWorker {
	w := &RuntimeWorker{
		driver:   d,
		requests: make(chan runtimeRequest, 64),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *RuntimeWorker) loop() {
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

// execute runs fn on the driver, recovering from panics.
func (w *RuntimeWorker) execute(fn func(*driver.Driver) (any, error)) (result runtimeResult) {
	defer func() {
		if r := recover(); r != nil {
			result.err = fmt.Errorf("runtime worker: %v", r)
		}
	}()
	result.value, result.err = fn(w.driver)
	return result
}

// Do submits fn for execution on the worker goroutine and blocks until it
// completes or ctx is done. A canceled request that was already queued
// still runs; its result is discarded.
func (w *RuntimeWorker) Do(ctx context.Context, fn func(*driver.Driver) (any, error)) (any, error) {
	req := runtimeRequest{
		fn:   fn,
		done: make(chan runtimeResult, 1),
	}
	select {
	case w.requests <- req:
	case <-w.quit:
		return nil, ErrWorkerStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case result := <-req.done:
		return result.value, result.err
	case <-w.quit:
		return nil, ErrWorkerStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop shuts down the worker goroutine. It must be called at most once.
func (w *RuntimeWorker) Stop() {
	close(w.quit)
}
