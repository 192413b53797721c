package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/k0kubun/pp"
	"github.com/mwiater/cgbench/internal/api"
	"github.com/mwiater/cgbench/internal/appconfig"
	"github.com/mwiater/cgbench/internal/bencherr"
	"github.com/mwiater/cgbench/internal/benchmark"
	"github.com/mwiater/cgbench/internal/format"
	"github.com/mwiater/cgbench/internal/logging"
	"github.com/mwiater/cgbench/internal/tool"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/mod/semver"
)

// newFs is the filesystem the artifacts are written to.
var newFs = afero.NewOsFs

// runBenchmarks reads the benchmark tree and runs it. args are the driver,
// its cgbench version, the mode flag and the module path.
func runBenchmarks(cfg appconfig.Config, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	driver, version, modeArg, module := args[0], args[1], args[2], args[3]
	if err := checkVersion(version); err != nil {
		return err
	}
	mode, err := api.ParseMode(modeArg)
	if err != nil {
		return err
	}

	tree, err := readTree(cfg.Input, stdin, mode)
	if err != nil {
		return err
	}
	meta, err := newMeta(cfg, driver, mode, tool.ModulePath(module), stdout)
	if err != nil {
		return err
	}
	groups, err := benchmark.NewGroups(tree, meta)
	if err != nil {
		return err
	}
	if cfg.Debug {
		pp.Fprintln(stderr, groups)
	}

	logging.L().Debug("running benchmarks",
		zap.String("driver", driver),
		zap.String("mode", mode.String()),
		zap.String("module", module),
		zap.Int("groups", len(groups.Groups)))
	return groups.Run(benchmark.New(cfg), meta)
}

// checkVersion fails unless the driver was built against this version of
// the protocol.
func checkVersion(caller string) error {
	v := "v" + strings.TrimPrefix(strings.TrimSpace(caller), "v")
	if !semver.IsValid(v) {
		return fmt.Errorf("invalid cgbench version %q reported by the benchmark driver", caller)
	}
	if semver.Compare(v, "v"+api.Version) != 0 {
		return &bencherr.VersionMismatchError{Engine: api.Version, Caller: caller}
	}
	return nil
}

func readTree(input string, stdin io.Reader, mode api.Mode) (*api.BenchmarkGroups, error) {
	if input == "" {
		return api.Parse(stdin, mode)
	}
	f, err := os.Open(input)
	if err != nil {
		return nil, bencherr.NewIOError("open benchmark tree", input, err)
	}
	defer f.Close()
	return api.Parse(f, mode)
}

func newMeta(cfg appconfig.Config, driver string, mode api.Mode, module tool.ModulePath, stdout io.Writer) (*benchmark.Meta, error) {
	root := cfg.ProjectRoot
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, bencherr.NewIOError("determine project root", ".", err)
		}
		root = wd
	}
	target := cfg.TargetDirOrDefault()
	if !filepath.IsAbs(target) {
		target = filepath.Join(root, target)
	}

	noCapture, err := cfg.NoCaptureMode()
	if err != nil {
		return nil, err
	}
	limits, err := cfg.Limits()
	if err != nil {
		return nil, err
	}
	output, err := cfg.Output()
	if err != nil {
		return nil, err
	}
	summaryFormat, err := cfg.SummaryFormat()
	if err != nil {
		return nil, err
	}

	return &benchmark.Meta{
		Mode:          mode,
		Driver:        driver,
		Module:        module,
		TargetDir:     target,
		ProjectRoot:   root,
		Valgrind:      cfg.Valgrind,
		NoCapture:     noCapture,
		CallgrindArgs: cfg.ExtraCallgrindArgs(),
		Limits:        limits,
		FailFast:      cfg.RegressionFailFast,
		Summary:       summaryFormat,
		Printer:       format.NewPrinter(stdout, output),
		Fs:            newFs(),
	}, nil
}
