package build

import (
	"bytes"
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/natefinch/atomic"

	"github.com/housecat-inc/qtex/pkg/api"
	"github.com/housecat-inc/qtex/pkg/bundle"
	"github.com/housecat-inc/qtex/pkg/bus"
	"github.com/housecat-inc/qtex/pkg/metrics"
	"github.com/housecat-inc/qtex/pkg/session"
)

// Remote is the compilation service.
type Remote interface {
	Compile(ctx context.Context, files []bundle.File) (api.CompileOut, error)
	Validate(ctx context.Context, files []bundle.File) (api.ValidateOut, error)
}

type Config struct {
	Collect func(bundle.In) ([]bundle.File, error)
	Now     func() time.Time
	Write   func(path string, data []byte) error
}

func DefaultConfig() Config {
	return Config{
		Collect: bundle.Collect,
		Now:     time.Now,
		Write: func(path string, data []byte) error {
			return atomic.WriteFile(path, bytes.NewReader(data))
		},
	}
}

type In struct {
	Bus         *bus.Bus
	Config      Config
	Logger      *slog.Logger
	Metrics     metrics.Recorder
	Prevalidate bool
	Remote      Remote
	Session     *session.Session
}

// Outcome is the result of one attempt. Err is nil on success.
type Outcome struct {
	CompileTime   string
	Elapsed       time.Duration
	Err           error
	Files         int
	FilesReceived string
	Findings      []api.Finding
	Mode          session.Mode
	Output        string
	Warnings      []string
}

func (o Outcome) OK() bool {
	return o.Err == nil
}

// Run performs one build attempt for the session. It never retries, and a
// missing bus only skips the notification.
func Run(ctx context.Context, in In) Outcome {
	cfg := in.Config
	if cfg.Collect == nil {
		cfg = DefaultConfig()
	}
	l := in.Logger
	if l == nil {
		l = slog.Default()
	}
	rec := in.Metrics
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	s := in.Session

	start := cfg.Now()
	var out Outcome
	switch s.Mode {
	case session.ModeVerify:
		out = verify(ctx, cfg, in)
	default:
		out = compile(ctx, cfg, l, in)
	}
	out.Mode = s.Mode
	out.Elapsed = cfg.Now().Sub(start)

	rec.BuildFinished(string(s.Mode), out.OK(), out.Elapsed)
	if !out.OK() {
		return out
	}

	if s.Mode == session.ModeCompile && in.Bus != nil {
		in.Bus.Publish(bus.Notification(out.Output))
	}
	return out
}

func compile(ctx context.Context, cfg Config, l *slog.Logger, in In) Outcome {
	s := in.Session
	files, err := cfg.Collect(bundle.In{Dir: s.Dir, Exts: bundle.CompileExts, Ignore: s.Ignore, Skip: s.Output})
	if err != nil {
		return Outcome{Err: errors.Wrap(err, "collect")}
	}

	if in.Prevalidate {
		if out, ok := prevalidate(ctx, l, in.Remote, files); !ok {
			out.Files = len(files)
			return out
		}
	}

	res, err := in.Remote.Compile(ctx, files)
	if err != nil {
		return Outcome{Err: err, Files: len(files)}
	}

	path := s.OutputPath()
	if err := cfg.Write(path, res.PDF); err != nil {
		return Outcome{Err: errors.Wrapf(err, "write %s", path), Files: len(files)}
	}

	return Outcome{
		CompileTime:   res.CompileTime,
		Files:         len(files),
		FilesReceived: res.FilesReceived,
		Output:        path,
	}
}

// prevalidate runs the validator ahead of a compile. Findings fail the build;
// a validator that cannot be reached is logged and the compile goes ahead.
func prevalidate(ctx context.Context, l *slog.Logger, remote Remote, files []bundle.File) (Outcome, bool) {
	var sources []bundle.File
	for _, f := range files {
		if bundle.IsSource(f.Name) {
			sources = append(sources, f)
		}
	}

	res, err := remote.Validate(ctx, sources)
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{Err: err}, false
		}
		l.Warn("prevalidate skipped", "error", err)
		return Outcome{}, true
	}
	if res.Valid {
		return Outcome{}, true
	}
	return Outcome{
		Err:      errors.Newf("validation failed:\n%s", res.Summary()),
		Findings: res.Errors,
		Warnings: res.Warnings,
	}, false
}

func verify(ctx context.Context, cfg Config, in In) Outcome {
	s := in.Session
	files, err := cfg.Collect(bundle.In{Dir: s.Dir, Exts: bundle.VerifyExts, Ignore: s.Ignore})
	if err != nil {
		return Outcome{Err: errors.Wrap(err, "collect")}
	}

	res, err := in.Remote.Validate(ctx, files)
	if err != nil {
		return Outcome{Err: err, Files: len(files)}
	}
	if !res.Valid {
		return Outcome{
			Err:      errors.New(res.Summary()),
			Files:    len(files),
			Findings: res.Errors,
			Warnings: res.Warnings,
		}
	}
	return Outcome{Files: len(files), Warnings: res.Warnings}
}
