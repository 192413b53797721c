package tool

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const memcheckLog = `==1234== Memcheck, a memory error detector
==1234== Copyright (C) 2002-2022, and GNU GPL'd, by Julian Seward et al.
==1234== Using Valgrind-3.22.0 and LibVEX; rerun with -h for copyright info
==1234== Command: /project/target/release/bench --cgbench-run group 0 0 bench::group::fib
==1234== Parent PID: 1200
==1234==
==1234== Invalid read of size 4
==1234==    at 0x10915E: main (bench.c:6)
==1234==
==1234== HEAP SUMMARY:
==1234==     in use at exit: 0 bytes in 0 blocks
==1234==   total heap usage: 2 allocs, 2 frees, 1,024 bytes allocated
==1234==
==1234== All heap blocks were freed -- no leaks are possible
==1234==
==1234== ERROR SUMMARY: 1 errors from 1 contexts (suppressed: 0 from 0)
`

func TestLogfileParser(t *testing.T) {
	fs := afero.NewMemMapFs()
	out := NewOutputPath(fs, OutKind(), Memcheck, OldBaseline(), "/project/target/cgbench", "bench::group::fib", "fib")
	log := out.ToLogOutput()
	require.NoError(t, afero.WriteFile(fs, log.Path(), []byte(memcheckLog), 0o644))

	summaries, err := LogfileParser{ProjectRoot: "/project"}.Parse(log)
	require.NoError(t, err)
	require.Len(t, summaries, 1)

	s := summaries[0]
	assert.Equal(t, 1234, s.PID)
	assert.Equal(t, 1200, s.ParentPID)
	assert.Equal(t, filepath.FromSlash("target/release/bench")+" --cgbench-run group 0 0 bench::group::fib", s.Command)
	require.NotNil(t, s.ErrorSummary)
	assert.Equal(t, uint64(1), s.ErrorSummary.Errors)
	assert.True(t, s.HasErrors())
	assert.Contains(t, s.Fields, Field{Key: "in use at exit", Value: "0 bytes in 0 blocks"})
	assert.Contains(t, s.Fields, Field{Key: "total heap usage", Value: "2 allocs, 2 frees, 1,024 bytes allocated"})
	assert.Contains(t, s.Details, "Invalid read of size 4")
	assert.Equal(t, log.Path(), s.LogPath)
}

func TestLogfileParserMissingDirectory(t *testing.T) {
	out := NewOutputPath(afero.NewMemMapFs(), LogKind(), Memcheck, OldBaseline(), "/nowhere", "m", "b")
	summaries, err := LogfileParser{}.Parse(out)
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

func TestParseMergeAttachesOld(t *testing.T) {
	fs := afero.NewMemMapFs()
	log := NewOutputPath(fs, LogKind(), Memcheck, OldBaseline(), "/p", "m", "b")
	require.NoError(t, afero.WriteFile(fs, log.Path(), []byte(memcheckLog), 0o644))

	parser := LogfileParser{}
	old, err := parser.Parse(log)
	require.NoError(t, err)

	merged, err := parser.ParseMerge(log, old)
	require.NoError(t, err)
	require.Len(t, merged, 1)
	require.NotNil(t, merged[0].Old)
	assert.Equal(t, 1234, merged[0].Old.PID)
}
