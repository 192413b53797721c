package api

import (
	"strings"
	"testing"

	"github.com/mwiater/cgbench/internal/callgrind"
	"github.com/mwiater/cgbench/internal/flamegraph"
	"github.com/mwiater/cgbench/internal/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const libTree = `{
  "config": {
    "envs": ["FOO=1"],
    "callgrind_args": ["--dump-instr=yes"],
    "regression": {"limits": [{"event": "Ir", "percentage": 5}]}
  },
  "has_setup": true,
  "groups": [
    {
      "id": "fib_group",
      "config": {"envs": ["BAR"], "tools": [{"tool": "memcheck"}]},
      "compare_by_id": true,
      "benches": [
        {
          "config": {"flamegraph": {"event_kinds": ["Ir"]}},
          "benches": [
            {"id": "short", "function": "bench_fib", "args": "10"},
            {"id": "long", "function": "bench_fib", "args": "30",
             "config": {"regression": {"fail_fast": true}, "tools": [{"tool": "memcheck", "enabled": false}]}}
          ]
        }
      ]
    }
  ]
}`

func ptr[T any](v T) *T { return &v }

func TestParseLibraryTree(t *testing.T) {
	groups, err := Parse(strings.NewReader(libTree), ModeLibrary)
	require.NoError(t, err)
	require.Len(t, groups.Groups, 1)
	assert.True(t, groups.HasSetup)

	group := groups.Groups[0]
	assert.True(t, group.CompareByID)
	require.Len(t, group.Benches, 1)
	require.Len(t, group.Benches[0].Benches, 2)

	short := group.Benches[0].Benches[0]
	assert.Equal(t, "bench_fib.short", short.Name())
	assert.Equal(t, tool.ModulePath("benches::fib_group::bench_fib"), short.ModulePath("benches", group.ID))
}

func TestParseRejectsInvalidTrees(t *testing.T) {
	cases := map[string]string{
		"missing groups":      `{}`,
		"unknown field":       `{"groups": [], "extra": 1}`,
		"bad group id":        `{"groups": [{"id": "a b", "benches": []}]}`,
		"unknown event":       `{"config": {"flamegraph": {"event_kinds": ["Cycles"]}}, "groups": []}`,
		"callgrind as tool":   `{"config": {"tools": [{"tool": "callgrind"}]}, "groups": []}`,
		"invalid stdin":       `{"config": {"stdin": "tty"}, "groups": []}`,
		"duplicate group ids": `{"groups": [{"id": "a", "benches": []}, {"id": "a", "benches": []}]}`,
		"not json":            `{`,
	}
	for name, tree := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tree), ModeLibrary)
			assert.Error(t, err)
		})
	}
}

func TestParseBinaryTreeRequiresCommand(t *testing.T) {
	tree := `{"groups": [{"id": "g", "benches": [{"benches": [{"function": "f"}]}]}]}`
	_, err := Parse(strings.NewReader(tree), ModeBinary)
	assert.ErrorContains(t, err, "has no command")

	_, err = Parse(strings.NewReader(tree), ModeLibrary)
	assert.NoError(t, err)
}

func TestMergeCascade(t *testing.T) {
	groups, err := Parse(strings.NewReader(libTree), ModeLibrary)
	require.NoError(t, err)
	group := groups.Groups[0]
	list := group.Benches[0]
	long := list.Benches[1]

	merged := groups.Config.Merge(group.Config, list.Config, long.Config)
	assert.Equal(t, []string{"FOO=1", "BAR"}, merged.Envs)
	assert.Equal(t, []string{"--dump-instr=yes"}, merged.CallgrindArgs)
	require.Len(t, merged.Tools, 2)
	require.NotNil(t, merged.Regression)
	assert.Equal(t, []callgrind.Limit{{Kind: callgrind.Ir, Percentage: 5}}, merged.Regression.Limits)
	assert.True(t, *merged.Regression.FailFast)

	// The cascade does not alter the levels it was built from.
	assert.Nil(t, groups.Config.Regression.FailFast)
	assert.Len(t, groups.Config.Envs, 1)
}

func TestResolveLibraryDefaults(t *testing.T) {
	r, err := Config{}.Resolve(ModeLibrary)
	require.NoError(t, err)
	assert.True(t, r.EnvClear)
	assert.Equal(t, DefaultEntryPoint, r.EntryPoint)
	assert.Equal(t, []string{DefaultEntryPoint}, r.CallgrindArgs.Toggles())
	assert.Nil(t, r.Flamegraph)
	assert.Nil(t, r.Regression)
	assert.Equal(t, DefaultTruncateDescription, r.TruncateDescription)
	assert.Empty(t, r.Tools)
}

func TestResolveEntryPoint(t *testing.T) {
	r, err := Config{}.Resolve(ModeBinary)
	require.NoError(t, err)
	assert.Empty(t, r.EntryPoint)
	assert.Empty(t, r.CallgrindArgs.Toggles())

	r, err = Config{EntryPoint: ptr("none")}.Resolve(ModeLibrary)
	require.NoError(t, err)
	assert.Empty(t, r.EntryPoint)

	r, err = Config{EntryPoint: ptr("*my_main*")}.Resolve(ModeBinary)
	require.NoError(t, err)
	assert.Equal(t, "*my_main*", r.EntryPoint)

	_, err = Config{EntryPoint: ptr("[")}.Resolve(ModeLibrary)
	assert.Error(t, err)
}

func TestResolveFoldsTools(t *testing.T) {
	cfg := Config{Tools: []ToolConfig{
		{Tool: tool.Memcheck, Args: []string{"--leak-check=full"}},
		{Tool: tool.DHAT},
		{Tool: tool.Memcheck, Enabled: ptr(false), OutfileModifier: "%p"},
	}}
	r, err := cfg.Resolve(ModeLibrary)
	require.NoError(t, err)
	require.Len(t, r.Tools, 2)
	assert.Equal(t, tool.Memcheck, r.Tools[0].Tool)
	assert.False(t, r.Tools[0].Enabled)
	assert.Equal(t, "%p", r.Tools[0].OutfileModifier)
	v, ok := r.Tools[0].Args.Get("leak-check")
	assert.True(t, ok)
	assert.Equal(t, "full", v)
	assert.True(t, r.Tools[1].Enabled)
	assert.Equal(t, tool.Configs{r.Tools[1]}, r.Tools.Enabled())
}

func TestResolveFlamegraphAndRegression(t *testing.T) {
	kind := flamegraph.KindRegular
	cfg := Config{
		Flamegraph: &FlamegraphConfig{Kind: &kind, MinWidth: ptr(2.0)},
		Regression: &RegressionConfig{},
	}
	r, err := cfg.Resolve(ModeLibrary)
	require.NoError(t, err)
	require.NotNil(t, r.Flamegraph)
	assert.Equal(t, flamegraph.KindRegular, r.Flamegraph.Kind)
	assert.Equal(t, []callgrind.EventKind{callgrind.EstimatedCycles}, r.Flamegraph.EventKinds)
	assert.Equal(t, 2.0, r.Flamegraph.MinWidth)
	require.NotNil(t, r.Regression)
	assert.Equal(t, callgrind.DefaultLimits, r.Regression.Limits)
}

func TestResolveRunOptions(t *testing.T) {
	exit := tool.ExitCode(2)
	stdin := tool.SetupPipeStdin()
	cfg := Config{EnvClear: ptr(false), CurrentDir: ptr("/work"), ExitWith: &exit, Stdin: &stdin}
	r, err := cfg.Resolve(ModeBinary)
	require.NoError(t, err)
	assert.False(t, r.RunOptions.EnvClear)
	assert.Equal(t, "/work", r.RunOptions.CurrentDir)
	assert.Equal(t, exit, r.RunOptions.ExitWith)
	require.NotNil(t, r.RunOptions.Stdin)
	assert.True(t, r.RunOptions.Stdin.IsSetupPipe())
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("--bin-bench")
	require.NoError(t, err)
	assert.Equal(t, ModeBinary, m)
	m, err = ParseMode("--lib-bench")
	require.NoError(t, err)
	assert.Equal(t, ModeLibrary, m)
	_, err = ParseMode("--bench")
	assert.Error(t, err)
}

func TestSchemaIsValidJSON(t *testing.T) {
	assert.NoError(t, ValidateSchema([]byte(`{"groups": []}`)))
	assert.Contains(t, string(Schema()), `"$schema"`)
}
