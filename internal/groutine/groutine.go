// Package groutine starts named goroutines. Names are attached as pprof labels
// so goroutine dumps of a running monitor show which worker is which.
package groutine

import (
	"context"
	"runtime/pprof"
	"sync"
)

type ctxKey string

const goroutineNameKey ctxKey = "goroutine_name"

// Go starts fn on a new goroutine labelled name.
// If parentCtx is nil, context.Background() is used.
func Go(parentCtx context.Context, name string, fn func(ctx context.Context)) {
	if parentCtx == nil {
		parentCtx = context.Background()
	}

	labels := pprof.Labels("goroutine_name", name)

	go pprof.Do(parentCtx, labels, func(ctx context.Context) {
		ctx = context.WithValue(ctx, goroutineNameKey, name)
		fn(ctx)
	})
}

// GetName retrieves the goroutine name from the context.
func GetName(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(goroutineNameKey).(string); ok {
		return v
	}
	return ""
}

// Group tracks a set of named goroutines so their owner can wait for all of
// them on shutdown.
type Group struct {
	wg sync.WaitGroup
}

// Go starts fn like the package-level Go and tracks it.
func (g *Group) Go(parentCtx context.Context, name string, fn func(ctx context.Context)) {
	g.wg.Add(1)
	Go(parentCtx, name, func(ctx context.Context) {
		defer g.wg.Done()
		fn(ctx)
	})
}

// Wait blocks until every tracked goroutine has returned.
func (g *Group) Wait() {
	g.wg.Wait()
}
