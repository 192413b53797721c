package tool

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewArgsCallgrindDefaults(t *testing.T) {
	args, err := NewArgs(Callgrind)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"--tool=callgrind",
		"--I1=32768,8,64",
		"--D1=32768,8,64",
		"--LL=8388608,16,64",
		"--cache-sim=yes",
		"--collect-atstart=no",
		"--compress-strings=no",
		"--compress-pos=no",
	}, args.Slice())
}

func TestNewArgsOverridesAndIgnores(t *testing.T) {
	args, err := NewArgs(Callgrind,
		[]string{"--cache-sim=no", "dump-instr=yes"},
		[]string{"--tool=memcheck", "--callgrind-out-file=/tmp/x", "--toggle-collect=foo*", "-v"},
	)
	require.NoError(t, err)

	v, ok := args.Get("cache-sim")
	require.True(t, ok)
	assert.Equal(t, "no", v)
	v, _ = args.Get("dump-instr")
	assert.Equal(t, "yes", v)
	_, ok = args.Get("tool")
	assert.False(t, ok)
	assert.Equal(t, []string{"foo*"}, args.Toggles())

	args.InsertToggleCollect("*cgbench_run*")
	args.InsertToggleCollect("*cgbench_run*")
	assert.Equal(t, []string{"foo*", "*cgbench_run*"}, args.Toggles())

	slice := args.Slice()
	assert.Equal(t, "--tool=callgrind", slice[0])
	assert.Contains(t, slice, "-v")
	assert.Contains(t, slice, "--toggle-collect=*cgbench_run*")
}

func TestNewArgsRejectsPositional(t *testing.T) {
	_, err := NewArgs(Memcheck, []string{"leak-check"})
	assert.Error(t, err)
}

func TestOutputAndLogArgs(t *testing.T) {
	out := NewOutputPath(afero.NewMemMapFs(), OutKind(), Callgrind, OldBaseline(), "/t", "m", "b")

	args, err := NewArgs(Callgrind)
	require.NoError(t, err)
	args.SetOutputArg(out, "%p")
	args.SetLogArg(out.ToLogOutput(), "")
	slice := args.Slice()
	assert.Contains(t, slice, "--callgrind-out-file=/t/m/b/callgrind.b.out.%p")
	assert.Contains(t, slice, "--log-file=/t/m/b/callgrind.b.log")

	mem, err := NewArgs(Memcheck)
	require.NoError(t, err)
	mem.SetOutputArg(out.ToToolOutput(Memcheck), "")
	mem.SetLogArg(out.ToToolOutput(Memcheck).ToLogOutput(), "")
	assert.Equal(t, []string{"--tool=memcheck", "--log-file=/t/m/b/memcheck.b.log"}, mem.Slice())
}

func TestArgsCloneIsIndependent(t *testing.T) {
	args, err := NewArgs(Callgrind)
	require.NoError(t, err)
	clone := args.Clone()
	clone.InsertToggleCollect("x")
	assert.Empty(t, args.Toggles())
}
