package watch_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/housecat-inc/qtex/pkg/watch"
)

func waitFor(t *testing.T, events <-chan watch.Event, match func(watch.Event) bool) bool {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			if match(ev) {
				return true
			}
		case <-timeout:
			return false
		}
	}
}

func hasPath(path string) func(watch.Event) bool {
	return func(ev watch.Event) bool {
		for _, p := range ev.Paths {
			if p == path {
				return true
			}
		}
		return false
	}
}

func TestWatcherReportsWrites(t *testing.T) {
	a := assert.New(t)
	r := require.New(t)

	dir := t.TempDir()
	main := filepath.Join(dir, "main.tex")
	r.NoError(os.WriteFile(main, []byte(`\documentclass{article}`), 0o644))

	w := watch.New(dir, nil, nil)
	r.NoError(w.Start())
	t.Cleanup(w.Stop)

	r.NoError(os.WriteFile(main, []byte(`\documentclass{report}`), 0o644))
	a.True(waitFor(t, w.Events(), hasPath(main)))
}

func TestWatcherFollowsNewDirectories(t *testing.T) {
	a := assert.New(t)
	r := require.New(t)

	dir := t.TempDir()
	w := watch.New(dir, nil, nil)
	r.NoError(w.Start())
	t.Cleanup(w.Stop)

	sub := filepath.Join(dir, "chapters")
	r.NoError(os.Mkdir(sub, 0o755))
	a.True(waitFor(t, w.Events(), hasPath(sub)))

	// the new directory is registered asynchronously
	time.Sleep(100 * time.Millisecond)
	intro := filepath.Join(sub, "intro.tex")
	r.NoError(os.WriteFile(intro, []byte("hi"), 0o644))
	a.True(waitFor(t, w.Events(), hasPath(intro)))
}

func TestWatcherSkipsIgnoredDirectories(t *testing.T) {
	a := assert.New(t)
	r := require.New(t)

	dir := t.TempDir()
	for _, sub := range []string{"_minted-main", "vendor", "chapters"} {
		r.NoError(os.Mkdir(filepath.Join(dir, sub), 0o755))
	}
	w := watch.New(dir, []string{"_minted*"}, nil)
	r.NoError(w.Start())
	t.Cleanup(w.Stop)

	r.NoError(os.WriteFile(filepath.Join(dir, "_minted-main", "a.tex"), []byte("x"), 0o644))
	r.NoError(os.WriteFile(filepath.Join(dir, "vendor", "b.tex"), []byte("x"), 0o644))
	intro := filepath.Join(dir, "chapters", "intro.tex")
	r.NoError(os.WriteFile(intro, []byte("x"), 0o644))

	var seen []string
	a.True(waitFor(t, w.Events(), func(ev watch.Event) bool {
		seen = append(seen, ev.Paths...)
		return hasPath(intro)(ev)
	}))
	for _, p := range seen {
		a.NotContains(p, "_minted-main")
		a.NotContains(p, "vendor")
	}
}

func TestSkipDir(t *testing.T) {
	tests := []struct {
		_name    string
		out      bool
		path     string
		patterns []string
	}{
		{_name: "hidden", path: "/p/.git", out: true},
		{_name: "node_modules", path: "/p/node_modules", out: true},
		{_name: "vendor", path: "/p/vendor", out: true},
		{_name: "pattern", path: "/p/_minted-main", patterns: []string{"_minted*"}, out: true},
		{_name: "plain", path: "/p/chapters", patterns: []string{"_minted*"}, out: false},
	}
	for _, tt := range tests {
		t.Run(tt._name, func(t *testing.T) {
			a := assert.New(t)
			a.Equal(tt.out, watch.SkipDir(tt.path, tt.patterns))
		})
	}
}

func TestWatcherStopClosesEvents(t *testing.T) {
	a := assert.New(t)
	r := require.New(t)

	w := watch.New(t.TempDir(), nil, nil)
	r.NoError(w.Start())
	w.Stop()

	a.False(waitFor(t, w.Events(), func(watch.Event) bool { return false }))
}

func TestWatcherMissingDir(t *testing.T) {
	a := assert.New(t)
	w := watch.New(filepath.Join(t.TempDir(), "nope"), nil, nil)
	a.Error(w.Start())
}

func TestMatchesAny(t *testing.T) {
	tests := []struct {
		_name    string
		out      bool
		path     string
		patterns []string
	}{
		{_name: "name glob", path: "/p/build", patterns: []string{"build"}, out: true},
		{_name: "wildcard", path: "/p/_minted-main", patterns: []string{"_minted*"}, out: true},
		{_name: "no match", path: "/p/figures", patterns: []string{"_minted*"}, out: false},
		{_name: "no patterns", path: "/p/figures", out: false},
	}
	for _, tt := range tests {
		t.Run(tt._name, func(t *testing.T) {
			a := assert.New(t)
			a.Equal(tt.out, watch.MatchesAny(tt.path, tt.patterns))
		})
	}
}
