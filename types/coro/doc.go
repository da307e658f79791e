// Package coro provides a fixed pool of cooperatively scheduled worker threads.
//
// A thread is not a goroutine. It is a run token: a task "runs on thread T" while it holds T's token,
// and at most one task holds a given token at a time. State owned by a thread can therefore be touched
// without locks, as long as every access happens from a task that currently holds that thread.
//
// Tasks are goroutines that carry their scheduling state in a context.Context:
//   - [Pool.Spawn] starts a new task that runs once it acquires the requested thread.
//   - [Pool.OnThread] hops the current task to another thread and returns a func that hops back.
//   - [Pool.Wait] and [Pool.Blocking] suspend the current task, releasing its thread while suspended.
//
// A task that blocks (channel operations, I/O, locks) without going through Wait or Blocking keeps its
// thread, and stalls every other task waiting for it.
//
// A task's context must not be handed to other goroutines; spawn a new task instead.
package coro
