package qtex

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/cli/browser"
	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/housecat-inc/qtex/pkg/api"
	"github.com/housecat-inc/qtex/pkg/build"
	"github.com/housecat-inc/qtex/pkg/bus"
	"github.com/housecat-inc/qtex/pkg/config"
	"github.com/housecat-inc/qtex/pkg/logs"
	"github.com/housecat-inc/qtex/pkg/loop"
	"github.com/housecat-inc/qtex/pkg/metrics"
	"github.com/housecat-inc/qtex/pkg/port"
	"github.com/housecat-inc/qtex/pkg/preview"
	"github.com/housecat-inc/qtex/pkg/report"
	"github.com/housecat-inc/qtex/pkg/session"
	"github.com/housecat-inc/qtex/pkg/version"
	"github.com/housecat-inc/qtex/pkg/watch"
)

type Config struct {
	Env      config.Env
	NoColor  bool
	OpenFile func(string) error
	OpenURL  func(string) error
	Port     port.Config
	Remote   func(server string) build.Remote
	Session  session.Config
	Stderr   io.Writer
	Stdout   io.Writer
}

func DefaultConfig() Config {
	return Config{
		Env:      config.DefaultEnv(),
		OpenFile: browser.OpenFile,
		OpenURL:  browser.OpenURL,
		Port:     port.DefaultConfig(),
		Remote:   func(server string) build.Remote { return api.NewClient(server) },
		Session:  session.DefaultConfig(),
		Stderr:   os.Stderr,
		Stdout:   os.Stdout,
	}
}

type In struct {
	Dir     string
	Flags   config.Flags
	JSON    bool
	Verbose bool
	Verify  bool
	Watch   bool
}

// Run executes one invocation and returns the process exit code: 0 on
// success, 1 on a failed build or a startup failure. Watch modes return 0
// once ctx is cancelled.
func Run(ctx context.Context, cfg Config, in In) int {
	l := logs.New(logs.In{NoColor: cfg.NoColor, Verbose: in.Verbose, W: cfg.Stderr})
	slog.SetDefault(l)
	if !in.JSON {
		l.Info("qtex", "version", version.Get())
	}

	settings, err := config.Load(cfg.Env, in.Dir, in.Flags)
	if err != nil {
		l.Error("config", "error", err)
		return 1
	}

	mode := session.ModeCompile
	if in.Verify {
		mode = session.ModeVerify
	}
	sess, err := session.New(cfg.Session, session.In{Dir: in.Dir, Ignore: settings.Ignore, Mode: mode, Output: settings.Output})
	if err != nil {
		l.Error(err.Error())
		return 1
	}
	l = l.With("session", sess.ID)
	l.Debug("session", "dir", sess.Dir, "mode", sess.Mode, "server", settings.Server, "providers", settings.Providers, "ignore", sess.Ignore)

	r := runner{
		cfg:      cfg,
		logger:   l,
		remote:   cfg.Remote(settings.Server),
		reporter: &report.Reporter{JSON: in.JSON, Logger: l, Out: cfg.Stdout, Watch: in.Watch},
		session:  sess,
		settings: settings,
	}
	if !in.Watch {
		return r.once(ctx)
	}
	return r.watch(ctx)
}

type runner struct {
	cfg      Config
	logger   *slog.Logger
	remote   build.Remote
	reporter *report.Reporter
	session  *session.Session
	settings config.Out
}

func (r *runner) attempt(ctx context.Context, b *bus.Bus, rec metrics.Recorder) build.Outcome {
	return build.Run(ctx, build.In{
		Bus:         b,
		Logger:      r.logger,
		Metrics:     rec,
		Prevalidate: r.settings.Prevalidate,
		Remote:      r.remote,
		Session:     r.session,
	})
}

func (r *runner) once(ctx context.Context) int {
	out := r.attempt(ctx, nil, nil)
	r.reporter.Report(out)
	if !out.OK() {
		return 1
	}
	if r.settings.Open && r.session.Mode == session.ModeCompile {
		if err := r.cfg.OpenFile(out.Output); err != nil {
			r.logger.Warn("open", "error", err)
		}
	}
	return 0
}

// watch runs until ctx is cancelled. Only compile sessions serve a preview.
func (r *runner) watch(ctx context.Context) int {
	l := r.logger
	rec := metrics.NewPrometheusRecorder(prom.NewRegistry())

	var b *bus.Bus
	bound := 0
	view := ""
	if r.session.Mode == session.ModeCompile {
		b = bus.New(bus.DefaultBuffer, rec)
		srv := preview.New(preview.In{
			Bus:     b,
			Logger:  l,
			Metrics: rec.Handler(),
			Output:  r.session.OutputPath(),
			Port:    r.settings.Port,
			PortCfg: r.cfg.Port,
		})
		if _, err := srv.Start(); err != nil {
			l.Error("failed to start server", "error", err)
			return 1
		}
		defer srv.Close()
		view = srv.ViewURL()
		bound = srv.Port()
	}

	w := watch.New(r.session.Dir, r.session.Ignore, l)
	if err := w.Start(); err != nil {
		l.Error("failed to watch", "error", err)
		return 1
	}
	defer w.Stop()

	l.Info("watching", "dir", r.session.Dir, "mode", r.session.Mode)
	if view != "" {
		l.Info("view", "url", view, "port", bound)
	}

	var opened sync.Once
	err := loop.Run(ctx, loop.In{
		Build:   func(ctx context.Context) build.Outcome { return r.attempt(ctx, b, rec) },
		Events:  w.Events(),
		Filter:  r.session.Filter(),
		Gate:    r.session.Gate,
		Logger:  l,
		Metrics: rec,
		Report: func(out build.Outcome) {
			r.reporter.Report(out)
			if view == "" || !r.settings.Open {
				return
			}
			opened.Do(func() {
				if err := r.cfg.OpenURL(view); err != nil {
					l.Warn("open", "error", err)
				}
			})
		},
	})
	if err != nil {
		l.Error("watch", "error", err)
		return 1
	}
	return 0
}
