// Package core orders the HTTP middleware registered through server options.
package core

import (
	"cmp"
	"slices"

	"github.com/Keksclan/zoraprofiles/middleware"
)

// Fixed positions of the built-in middleware. Lower values run first, i.e.
// further out. Custom middleware registered without an explicit order runs
// after all of them, just in front of the handler.
const (
	OrderRequestID = 100
	OrderTracing   = 200
	OrderLogging   = 300
	OrderMetrics   = 400
	OrderRecovery  = 500
	OrderCustom    = 1000
)

type entry struct {
	mw    middleware.Middleware
	order int
}

// MiddlewareBuilder collects middleware and returns it sorted by order.
// Entries with the same order keep their registration order.
type MiddlewareBuilder struct {
	entries []entry
}

// Add registers mw at the given order. A nil mw is ignored.
func (b *MiddlewareBuilder) Add(order int, mw middleware.Middleware) {
	if mw == nil {
		return
	}
	b.entries = append(b.entries, entry{mw: mw, order: order})
}

// Replace registers mw at order, dropping anything already registered there.
// It keeps options such as WithRecovery idempotent.
func (b *MiddlewareBuilder) Replace(order int, mw middleware.Middleware) {
	b.entries = slices.DeleteFunc(b.entries, func(e entry) bool { return e.order == order })
	b.Add(order, mw)
}

// Build returns the middleware, outermost first.
func (b *MiddlewareBuilder) Build() []middleware.Middleware {
	sorted := slices.Clone(b.entries)
	slices.SortStableFunc(sorted, func(a, c entry) int {
		return cmp.Compare(a.order, c.order)
	})
	out := make([]middleware.Middleware, len(sorted))
	for i, e := range sorted {
		out[i] = e.mw
	}
	return out
}
