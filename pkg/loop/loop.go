// Package loop drives a watch session: one initial build, then one gated
// build per relevant change.
package loop

import (
	"context"
	"log/slog"

	"github.com/housecat-inc/qtex/pkg/build"
	"github.com/housecat-inc/qtex/pkg/gate"
	"github.com/housecat-inc/qtex/pkg/metrics"
	"github.com/housecat-inc/qtex/pkg/watch"
)

type In struct {
	Build   func(context.Context) build.Outcome
	Events  <-chan watch.Event
	Filter  watch.Filter
	Gate    *gate.Gate
	Logger  *slog.Logger
	Metrics metrics.Recorder
	Report  func(build.Outcome)
}

// Run returns nil when Events is closed or ctx is done. Events are handled
// one at a time, so a build in progress holds back the next event.
func Run(ctx context.Context, in In) error {
	l := in.Logger
	if l == nil {
		l = slog.Default()
	}
	rec := in.Metrics
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}

	// The first build stamps the gate like any other, so an edit landing
	// right after a fast failure still waits out the quiet period.
	acquired := in.Gate.TryAcquire()
	out := in.Build(ctx)
	if acquired {
		in.Gate.Release()
	}
	if ctx.Err() != nil {
		return nil
	}
	in.Report(out)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-in.Events:
			if !ok {
				return nil
			}
			if !in.Filter.Relevant(ev) {
				rec.EventIgnored()
				l.Debug("ignored", "kind", ev.Kind, "paths", ev.Paths)
				continue
			}
			if !in.Gate.TryAcquire() {
				rec.EventDebounced()
				l.Debug("debounced", "paths", ev.Paths, "running", in.Gate.Running())
				continue
			}

			l.Debug("change", "kind", ev.Kind, "paths", ev.Paths)
			out := in.Build(ctx)
			in.Gate.Release()
			if ctx.Err() != nil {
				return nil
			}
			in.Report(out)
		}
	}
}
