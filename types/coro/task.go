package coro

import "context"

// Spawn starts a new task that runs fn on thread, once it gets hold of it.
//
// Spawn does not wait. The context passed to fn carries the values of ctx, and is cancelled with it.
func (p *Pool) Spawn(ctx context.Context, thread int, fn func(ctx context.Context)) {
	p.checkThread(thread)

	tctx, tk := p.newTask(ctx)

	go func() {
		p.acquire(tk, thread)
		defer p.release(tk)

		fn(tctx)
	}()
}

// Run spawns fn on thread and suspends the caller until it returns.
//
// If ctx ends first, Run returns its error while fn keeps running.
func (p *Pool) Run(ctx context.Context, thread int, fn func(ctx context.Context)) error {
	done := make(chan struct{})

	p.Spawn(ctx, thread, func(ctx context.Context) {
		defer close(done)
		fn(ctx)
	})

	return p.Wait(ctx, done)
}

// OnThread moves the current task onto thread, suspending until it is scheduled there.
//
// If ctx does not carry a task of this pool, the caller becomes one; the returned context
// must be used for everything done on the thread. The returned func hops back to the thread
// the task was on before, or releases the thread if it was on none. Hops must be undone in
// reverse order.
func (p *Pool) OnThread(ctx context.Context, thread int) (context.Context, func()) {
	p.checkThread(thread)

	tk := p.taskFrom(ctx)
	if tk == nil {
		ctx, tk = p.newTask(ctx)
	}

	prev := tk.current
	if prev == thread {
		return ctx, func() {}
	}

	p.release(tk)
	p.acquire(tk, thread)

	return ctx, func() {
		p.AssertOnThread(ctx, thread)

		p.release(tk)
		if prev >= 0 {
			p.acquire(tk, prev)
		}
	}
}

// Blocking runs fn with the current task's thread released, and takes the thread back afterwards.
//
// Use it around anything that may block for a while.
func (p *Pool) Blocking(ctx context.Context, fn func()) {
	tk := p.taskFrom(ctx)

	held := -1
	if tk != nil {
		held = tk.current
		p.release(tk)
	}

	defer func() {
		if held >= 0 {
			p.acquire(tk, held)
		}
	}()

	fn()
}

// Wait suspends the current task until done is closed, or ctx ends, in which case it returns ctx's error.
//
// The task's thread is released while waiting.
func (p *Pool) Wait(ctx context.Context, done <-chan struct{}) (err error) {
	p.Blocking(ctx, func() {
		select {
		case <-done:
		case <-ctx.Done():
			err = ctx.Err()
		}
	})

	return err
}
