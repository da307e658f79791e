package coro

import (
	"context"
	"fmt"
)

// Pool is a fixed set of worker threads, numbered from 0.
type Pool struct {
	threads []*thread
}

type thread struct {
	id int

	// token holds a value while nobody runs on the thread.
	token chan struct{}
}

type taskKey struct{}

// task is the scheduling state of one goroutine.
//
// Only the goroutine owning the task reads or writes it.
type task struct {
	pool *Pool

	// current is the thread held, or -1.
	current int
}

// NewPool creates a pool with the given number of threads.
func NewPool(threads int) *Pool {
	if threads <= 0 {
		panic(fmt.Sprintf("coro: a pool needs at least one thread, got %d", threads))
	}

	p := &Pool{threads: make([]*thread, threads)}

	for i := range p.threads {
		t := &thread{id: i, token: make(chan struct{}, 1)}
		t.token <- struct{}{}
		p.threads[i] = t
	}

	return p
}

// Threads returns the number of threads in the pool.
func (p *Pool) Threads() int {
	return len(p.threads)
}

func (p *Pool) checkThread(thread int) {
	if thread < 0 || thread >= len(p.threads) {
		panic(fmt.Sprintf("coro: thread %d out of range [0, %d)", thread, len(p.threads)))
	}
}

// taskFrom returns the task of this pool stored in ctx, if any.
func (p *Pool) taskFrom(ctx context.Context) *task {
	tk, ok := ctx.Value(taskKey{}).(*task)
	if !ok || tk.pool != p {
		return nil
	}
	return tk
}

// newTask returns a fresh task that holds no thread, and a context carrying it.
func (p *Pool) newTask(ctx context.Context) (context.Context, *task) {
	tk := &task{pool: p, current: -1}
	return context.WithValue(ctx, taskKey{}, tk), tk
}

func (p *Pool) acquire(tk *task, thread int) {
	<-p.threads[thread].token
	tk.current = thread
}

func (p *Pool) release(tk *task) {
	if tk.current < 0 {
		return
	}

	t := p.threads[tk.current]
	tk.current = -1
	t.token <- struct{}{}
}

// Current returns the thread the task in ctx is running on, or -1 if ctx does not belong
// to a task of this pool, or the task currently holds no thread.
func (p *Pool) Current(ctx context.Context) int {
	tk := p.taskFrom(ctx)
	if tk == nil {
		return -1
	}
	return tk.current
}

// AssertOnThread panics if the task in ctx is not currently running on thread.
func (p *Pool) AssertOnThread(ctx context.Context, thread int) {
	if cur := p.Current(ctx); cur != thread {
		panic(
			fmt.Sprintf(
				"coro: contract violation: must be called on thread %d, but running on thread %d; "+
					"use OnThread to hop to it",
				thread,
				cur,
			),
		)
	}
}
