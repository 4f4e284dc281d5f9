package config

import (
	"os"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/housecat-inc/qtex/pkg/api"
)

const (
	DefaultOutput = "output.pdf"
	DefaultPort   = 4343
	FileName      = ".qtex.yaml"
)

type Env struct {
	Getenv   func(string) string
	ReadFile func(string) ([]byte, error)
}

func DefaultEnv() Env {
	return Env{
		Getenv:   os.Getenv,
		ReadFile: os.ReadFile,
	}
}

func TestEnv(vars map[string]string, files map[string]string) Env {
	return Env{
		Getenv: func(key string) string { return vars[key] },
		ReadFile: func(name string) ([]byte, error) {
			if content, ok := files[name]; ok {
				return []byte(content), nil
			}
			return nil, os.ErrNotExist
		},
	}
}

func EnvOr[T string | int](env Env, key string, fallback T) T {
	v := env.Getenv(key)
	if v == "" {
		return fallback
	}
	switch any(fallback).(type) {
	case string:
		return any(v).(T)
	case int:
		n, err := strconv.Atoi(v)
		if err != nil {
			return fallback
		}
		return any(n).(T)
	}
	return fallback
}

// File is the optional project file in the watched directory. Ignore holds
// glob patterns for directories that are neither watched nor uploaded.
type File struct {
	Ignore      []string `yaml:"ignore"`
	Open        bool     `yaml:"open"`
	Output      string   `yaml:"output"`
	Port        int      `yaml:"port"`
	Prevalidate bool     `yaml:"prevalidate"`
	Server      string   `yaml:"server"`
}

// Flags are command line values. Zero values are unset.
type Flags struct {
	Open        bool
	Output      string
	Port        int
	Prevalidate bool
	Server      string
}

type Out struct {
	Ignore      []string
	Open        bool
	Output      string
	Port        int
	Prevalidate bool
	Providers   []string
	Server      string
}

// Load resolves settings with flags over environment over the project file
// over defaults.
func Load(env Env, dir string, flags Flags) (Out, error) {
	out := Out{
		Output: DefaultOutput,
		Port:   DefaultPort,
		Server: api.DefaultURL,
	}

	f, ok, err := ReadFile(env, dir)
	if err != nil {
		return Out{}, err
	}
	if ok {
		out.Providers = append(out.Providers, FileName)
		out.Ignore = f.Ignore
		out.Open = f.Open
		out.Prevalidate = f.Prevalidate
		out.Output = or(f.Output, out.Output)
		out.Port = or(f.Port, out.Port)
		out.Server = or(f.Server, out.Server)
	}

	if env.Getenv("QTEX_SERVER") != "" || env.Getenv("QTEX_PORT") != "" {
		out.Providers = append(out.Providers, "env")
	}
	out.Port = EnvOr(env, "QTEX_PORT", out.Port)
	out.Server = EnvOr(env, "QTEX_SERVER", out.Server)

	out.Open = out.Open || flags.Open
	out.Prevalidate = out.Prevalidate || flags.Prevalidate
	out.Output = or(flags.Output, out.Output)
	out.Port = or(flags.Port, out.Port)
	out.Server = or(flags.Server, out.Server)

	if out.Port < 0 || out.Port > 65535 {
		return Out{}, errors.Newf("invalid port %d", out.Port)
	}
	if filepath.Base(out.Output) != out.Output {
		return Out{}, errors.Newf("invalid output filename %q", out.Output)
	}
	for _, p := range out.Ignore {
		if _, err := filepath.Match(p, ""); err != nil {
			return Out{}, errors.Wrapf(err, "invalid ignore pattern %q", p)
		}
	}
	return out, nil
}

// ReadFile parses FileName in dir. A missing file is not an error, and
// neither is a dir that is not a directory; callers validate dir themselves.
func ReadFile(env Env, dir string) (File, bool, error) {
	path := filepath.Join(dir, FileName)
	data, err := env.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
		return File{}, false, nil
	}
	if err != nil {
		return File{}, false, errors.Wrapf(err, "read %s", path)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, false, errors.Wrapf(err, "parse %s", path)
	}
	return f, true, nil
}

func or[T comparable](v, fallback T) T {
	var zero T
	if v == zero {
		return fallback
	}
	return v
}
