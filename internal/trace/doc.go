// Package trace records spans and point events for the engine pipelines.
//
// Components open spans around their asynchronous phases (a parse run, an
// archive flush, a mirror flush, a layout reconcile) so a stalled or
// thrashing pipeline can be diagnosed from a trace file:
//
//	unimozer watch --trace=trace.ndjson --trace-level=detail ./project
//
// # Levels
//
//   - off: nothing
//   - error: events are kept in the ring only and dumped on failure
//   - phase: session and component spans
//   - detail: per-file events as well
//   - debug: everything
//
// # Propagation
//
//	ctx = trace.WithTracer(ctx, tracer)
//	ctx, span := trace.Start(ctx, trace.ScopeComponent, "parse.run")
//	defer span.End("")
package trace
