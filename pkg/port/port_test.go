package port

import (
	"net"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func occupy(t *testing.T) (net.Listener, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.New(t).NoError(err)
	t.Cleanup(func() { ln.Close() })
	return ln, ln.Addr().(*net.TCPAddr).Port
}

func TestBindFreePort(t *testing.T) {
	a := assert.New(t)
	r := require.New(t)

	reclaims := 0
	ln, got, err := Bind(TestConfig(func(int) error { reclaims++; return nil }), 0)
	r.NoError(err)
	defer ln.Close()

	a.NotZero(got)
	a.Equal(0, reclaims)
}

func TestBindReclaim(t *testing.T) {
	tests := []struct {
		_name      string
		err        bool
		release    bool
		reclaimErr error
	}{
		{
			_name:   "stale holder killed",
			release: true,
		},
		{
			_name:   "holder survives",
			release: false,
			err:     true,
		},
		{
			_name:      "reclaim errors and holder survives",
			reclaimErr: errors.New("lsof: not found"),
			err:        true,
		},
	}
	for _, tt := range tests {
		t.Run(tt._name, func(t *testing.T) {
			a := assert.New(t)
			holder, p := occupy(t)

			var calls []int
			cfg := TestConfig(func(port int) error {
				calls = append(calls, port)
				if tt.release {
					holder.Close()
				}
				return tt.reclaimErr
			})

			start := time.Now()
			ln, got, err := Bind(cfg, p)
			a.Equal([]int{p}, calls)
			a.GreaterOrEqual(time.Since(start), cfg.Delay)
			if tt.err {
				a.Error(err)
				return
			}
			a.NoError(err)
			a.Equal(p, got)
			ln.Close()
		})
	}
}

func TestBindOtherErrorSkipsReclaim(t *testing.T) {
	a := assert.New(t)

	reclaims := 0
	cfg := TestConfig(func(int) error { reclaims++; return nil })
	cfg.Listen = func(string, string) (net.Listener, error) {
		return nil, errors.New("permission denied")
	}

	_, _, err := Bind(cfg, 80)
	a.Error(err)
	a.Equal(0, reclaims)
}

func TestParseLsof(t *testing.T) {
	tests := []struct {
		_name string
		in    string
		out   []int
	}{
		{_name: "empty", in: "", out: nil},
		{_name: "single", in: "4242\n", out: []int{4242}},
		{_name: "duplicates and junk", in: "12\n\nabc\n12\n13\n", out: []int{12, 13}},
	}
	for _, tt := range tests {
		t.Run(tt._name, func(t *testing.T) {
			a := assert.New(t)
			a.Equal(tt.out, ParseLsof(tt.in))
		})
	}
}

func TestParseNetstat(t *testing.T) {
	a := assert.New(t)
	out := `
Active Connections

  Proto  Local Address          Foreign Address        State           PID
  TCP    0.0.0.0:4343           0.0.0.0:0              LISTENING       5120
  TCP    127.0.0.1:43430        0.0.0.0:0              LISTENING       777
  TCP    127.0.0.1:4343         127.0.0.1:52000        ESTABLISHED     5120
  TCP    [::]:4343              [::]:0                 LISTENING       5120
  TCP    [::]:4343              [::]:0                 LISTENING       6000
`
	a.Equal([]int{5120, 6000}, ParseNetstat(out, 4343))
	a.Empty(ParseNetstat(out, 8080))
}
