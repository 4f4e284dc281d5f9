// Package report turns build outcomes into log lines and JSON events.
//
// Watch sessions always write one JSON object per attempt to Out, tagged
// with the event name. Single runs write an untagged object only when JSON
// is set.
package report

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"

	"github.com/housecat-inc/qtex/pkg/build"
	"github.com/housecat-inc/qtex/pkg/session"
)

// Event is one JSON line. Field order is the encoded key order.
type Event struct {
	Event   string `json:"event,omitempty"`
	Success *bool  `json:"success,omitempty"`
	Valid   *bool  `json:"valid,omitempty"`
	Error   string `json:"error,omitempty"`
}

type Reporter struct {
	JSON   bool
	Logger *slog.Logger
	Out    io.Writer
	Watch  bool

	mu sync.Mutex
}

// NewEvent builds the JSON object for one outcome.
func NewEvent(o build.Outcome, watch bool) Event {
	ok := o.OK()
	var e Event
	if o.Mode == session.ModeVerify {
		e.Valid = &ok
	} else {
		e.Success = &ok
	}
	if watch {
		e.Event = string(o.Mode)
		if e.Event == "" {
			e.Event = string(session.ModeCompile)
		}
	}
	if o.Err != nil {
		e.Error = o.Err.Error()
	}
	return e
}

func (r *Reporter) Report(o build.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Watch || r.JSON {
		if err := json.NewEncoder(r.Out).Encode(NewEvent(o, r.Watch)); err != nil {
			r.logger().Error("write event", "error", err)
		}
	}
	if r.JSON {
		return
	}
	r.log(o)
}

func (r *Reporter) log(o build.Outcome) {
	l := r.logger()
	for _, w := range o.Warnings {
		l.Warn("warning", "message", w)
	}

	switch {
	case o.Mode == session.ModeVerify && o.OK():
		l.Info("valid", "files", o.Files, "elapsed", o.Elapsed)
	case o.Mode == session.ModeVerify:
		failed(l, "invalid", o)
	case o.OK():
		l.Info("compiled",
			"output", o.Output,
			"files", o.Files,
			"files_received", o.FilesReceived,
			"compile_ms", o.CompileTime,
			"elapsed", o.Elapsed,
		)
	default:
		failed(l, "compilation failed", o)
	}
}

// failed logs one line per validator finding, or the bare error when there
// are none.
func failed(l *slog.Logger, msg string, o build.Outcome) {
	if len(o.Findings) == 0 {
		l.Error(msg, "error", o.Err)
		return
	}
	for _, f := range o.Findings {
		if f.Line != nil {
			l.Error("finding", "line", *f.Line, "message", f.Message)
		} else {
			l.Error("finding", "message", f.Message)
		}
	}
	l.Error(msg, "findings", len(o.Findings))
}

func (r *Reporter) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}
