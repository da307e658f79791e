package types

// Contains miscellaneous functions and types

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// Incomparable is a zero-width incomparable type. If added as the
// first field in a struct, it marks that struct as not comparable
// (can't do == or be a map key) and usually doesn't add any width to
// the struct (unless the struct has only small fields).
//
// Be making a struct incomparable, you can prevent misuse (prevent
// people from using ==), but also you can shrink generated binaries,
// as the compiler can omit equality funcs from the binary.
//
// (Taken from the tailscale types library)
type Incomparable [0]func()

// NoCopy may be embedded into structs which must not be copied after first use.
//
// go vet's copylocks check flags copies of any struct carrying it.
type NoCopy struct{}

func (*NoCopy) Lock()   {}
func (*NoCopy) Unlock() {}

// IsContextDone does a quick check on a context to see if its dead.
func IsContextDone(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

const LevelTrace slog.Level = -8

// Map is a generic slice mapping function taken from https://stackoverflow.com/a/71624929/8700553,
// since golang loves to not give its developers any usable tools.
func Map[T, U any](ts []T, f func(T) U) []U {
	us := make([]U, len(ts))
	for i := range ts {
		us[i] = f(ts[i])
	}
	return us
}

// RunCheck ensures that only one instance of a run loop is running at all times.
type RunCheck struct {
	*atomic.Bool
}

func MakeRunCheck() RunCheck {
	return RunCheck{
		&atomic.Bool{},
	}
}

// CheckOrMark atomically checks if its already running, else marks as running, returns a false value if the instance is already running.
func (rc *RunCheck) CheckOrMark() bool {
	return rc.CompareAndSwap(false, true)
}
