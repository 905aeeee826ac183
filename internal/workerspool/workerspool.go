// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package workerspool implements a small pool of goroutines with bounded parallelism,
// used to decode images and to split generation work across a batch.
package workerspool

import (
	"context"
	"runtime"
	"sync"
)

// Pool runs tasks in goroutines, limiting how many run at the same time.
type Pool struct {
	// maxParallelism is the limit of tasks running in parallel. If 0 tasks run inline,
	// if negative it is unlimited.
	maxParallelism int
	mu             sync.Mutex
	cond           sync.Cond // Should be signaled whenever numRunning is decreased.
	numRunning     int
	wg             sync.WaitGroup
}

// New return a new Pool of workers with the default parallelism (runtime.NumCPU()).
func New() *Pool {
	return NewWithParallelism(runtime.NumCPU())
}

// NewWithParallelism returns a new Pool with the given parallelism.
// If maxParallelism is 0 tasks are run inline; if it is negative, parallelism is unlimited.
func NewWithParallelism(maxParallelism int) *Pool {
	w := &Pool{maxParallelism: maxParallelism}
	w.cond = sync.Cond{L: &w.mu}
	return w
}

// lockedIsFull returns whether all available workers are in use.
//
// It must be called with Pool.mu acquired.
func (w *Pool) lockedIsFull() bool {
	if w.maxParallelism < 0 {
		return false
	}
	return w.numRunning >= w.maxParallelism
}

// Go waits until there is a worker available and runs task in a goroutine.
//
// If ctx is cancelled while waiting, task is not run and ctx.Err() is returned.
// If parallelism is disabled (maxParallelism is 0), it runs the task inline and returns when it is finished.
func (w *Pool) Go(ctx context.Context, task func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if w.maxParallelism == 0 {
		task()
		return nil
	}

	// Wake up waiters if the context is cancelled, so they don't block on cond.Wait forever.
	stop := context.AfterFunc(ctx, func() {
		w.mu.Lock()
		w.cond.Broadcast()
		w.mu.Unlock()
	})
	defer stop()

	w.mu.Lock()
	defer w.mu.Unlock()
	for w.lockedIsFull() {
		if err := ctx.Err(); err != nil {
			return err
		}
		w.cond.Wait()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	w.numRunning++
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		task()
		w.mu.Lock()
		w.numRunning--
		w.cond.Signal()
		w.mu.Unlock()
	}()
	return nil
}

// Wait blocks until all tasks started with Go have finished.
func (w *Pool) Wait() {
	w.wg.Wait()
}

// Running returns the number of tasks currently running.
func (w *Pool) Running() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.numRunning
}

// ForEach runs fn(ii) for ii in [0, n) on the pool and waits for all of them to finish.
// It returns ctx.Err() if the context was cancelled before all tasks were started; tasks already
// started are still waited for.
func (w *Pool) ForEach(ctx context.Context, n int, fn func(ii int)) error {
	var wg sync.WaitGroup
	var err error
	for ii := range n {
		wg.Add(1)
		if err = w.Go(ctx, func() {
			defer wg.Done()
			fn(ii)
		}); err != nil {
			wg.Done()
			break
		}
	}
	wg.Wait()
	return err
}
