package session

import (
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/housecat-inc/qtex/pkg/gate"
	"github.com/housecat-inc/qtex/pkg/watch"
)

type Mode string

const (
	ModeCompile Mode = "compile"
	ModeVerify  Mode = "verify"
)

type Config struct {
	Abs          func(string) (string, error)
	EvalSymlinks func(string) (string, error)
	Gate         gate.Config
	NewID        func() string
	Stat         func(string) (os.FileInfo, error)
}

func DefaultConfig() Config {
	return Config{
		Abs:          filepath.Abs,
		EvalSymlinks: filepath.EvalSymlinks,
		Gate:         gate.DefaultConfig(),
		NewID:        func() string { return uuid.NewString() },
		Stat:         os.Stat,
	}
}

type In struct {
	Dir    string
	Ignore []string
	Mode   Mode
	Output string
}

// Session is the run-scoped state of one watched directory. Dir is resolved
// once; the Gate holds the only mutable state.
type Session struct {
	Dir    string
	Exts   []string
	Gate   *gate.Gate
	ID     string
	Ignore []string
	Mode   Mode
	Output string
}

func New(cfg Config, in In) (*Session, error) {
	dir := in.Dir
	if dir == "" {
		dir = "."
	}
	abs, err := cfg.Abs(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", dir)
	}
	if resolved, err := cfg.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	info, err := cfg.Stat(abs)
	if err != nil {
		return nil, errors.Wrapf(err, "stat %s", abs)
	}
	if !info.IsDir() {
		return nil, errors.Newf("'%s' is not a directory", dir)
	}

	if in.Output == "" || filepath.Base(in.Output) != in.Output {
		return nil, errors.Newf("invalid output filename %q", in.Output)
	}

	mode := in.Mode
	if mode == "" {
		mode = ModeCompile
	}
	exts := watch.CompileExts
	if mode == ModeVerify {
		exts = watch.VerifyExts
	}

	return &Session{
		Dir:    abs,
		Exts:   exts,
		Gate:   gate.New(cfg.Gate),
		ID:     cfg.NewID(),
		Ignore: in.Ignore,
		Mode:   mode,
		Output: in.Output,
	}, nil
}

func (s *Session) Filter() watch.Filter {
	return watch.Filter{Exts: s.Exts, Output: s.Output}
}

// OutputPath is where compiled artifacts are written.
func (s *Session) OutputPath() string {
	return filepath.Join(s.Dir, s.Output)
}
