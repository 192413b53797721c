package tool

import (
	"os"

	"github.com/mwiater/cgbench/internal/logging"
	"go.uber.org/zap"
)

// Config is the configuration of one secondary tool.
type Config struct {
	Tool            ValgrindTool
	Enabled         bool
	Args            Args
	OutfileModifier string
}

// Configs are the secondary tools of a bench in run order.
type Configs []Config

// RunEnv is what tool runs need to know about the invocation.
type RunEnv struct {
	Valgrind    string
	ProjectRoot string
}

// ScopedRun wraps a single tool run. It is given a function to call exactly
// once with the scope the run happens in, e.g. a sandbox directory and a
// running setup process. Implementations restore their state before
// returning.
type ScopedRun func(run func(Scope) error) error

// HasEnabled reports whether any secondary tool is enabled.
func (c Configs) HasEnabled() bool {
	for _, cfg := range c {
		if cfg.Enabled {
			return true
		}
	}
	return false
}

// Enabled returns the enabled tools.
func (c Configs) Enabled() Configs {
	var out Configs
	for _, cfg := range c {
		if cfg.Enabled {
			out = append(out, cfg)
		}
	}
	return out
}

// OutputPaths projects out onto every enabled tool.
func (c Configs) OutputPaths(out OutputPath) []OutputPath {
	var paths []OutputPath
	for _, cfg := range c.Enabled() {
		paths = append(paths, out.ToToolOutput(cfg.Tool))
	}
	return paths
}

// Run runs every enabled tool once, sequentially. Old summaries are read
// from the baseline log before the run. With saveBaseline the target slot is
// cleared first, otherwise the caller already shifted the paths.
func (c Configs) Run(env RunEnv, executable string, exeArgs []string, opts RunOptions, out OutputPath, saveBaseline bool, module ModulePath, scoped ScopedRun) ([]Summary, error) {
	if scoped == nil {
		scoped = func(run func(Scope) error) error { return run(Scope{}) }
	}
	parser := LogfileParser{ProjectRoot: env.ProjectRoot}

	var summaries []Summary
	for _, cfg := range c.Enabled() {
		toolOut := out.ToToolOutput(cfg.Tool)
		logPath := toolOut.ToLogOutput()

		old, err := parser.Parse(logPath.ToBasePath())
		if err != nil {
			return nil, err
		}
		if saveBaseline {
			if err := toolOut.Clear(); err != nil {
				return nil, err
			}
			if err := logPath.Clear(); err != nil {
				return nil, err
			}
		}

		args := cfg.Args.Clone()
		args.SetOutputArg(toolOut, cfg.OutfileModifier)
		args.SetLogArg(logPath, cfg.OutfileModifier)

		cmd := NewCommand(cfg.Tool, env.Valgrind, NoCaptureFalse)
		var output *Output
		err = scoped(func(scope Scope) error {
			var runErr error
			output, runErr = cmd.Run(args, executable, exeArgs, opts, logPath, module, scope)
			return runErr
		})
		if err != nil {
			return nil, err
		}
		if output != nil {
			logging.DumpOutput(cfg.Tool.ID(), output.Stdout, output.Stderr)
		}

		summary, err := c.summarize(parser, cfg.Tool, toolOut, logPath, old)
		if err != nil {
			return nil, err
		}
		if err := logPath.DumpLog(os.Stderr); err != nil {
			logging.L().Warn("dumping log failed", zap.Error(err))
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// RunLoadedVsBase reads the logs of the enabled tools without running them.
// out must already address the loaded baseline.
func (c Configs) RunLoadedVsBase(env RunEnv, out OutputPath) ([]Summary, error) {
	parser := LogfileParser{ProjectRoot: env.ProjectRoot}
	var summaries []Summary
	for _, cfg := range c.Enabled() {
		toolOut := out.ToToolOutput(cfg.Tool)
		logPath := toolOut.ToLogOutput()
		old, err := parser.Parse(logPath.ToBasePath())
		if err != nil {
			return nil, err
		}
		summary, err := c.summarize(parser, cfg.Tool, toolOut, logPath, old)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (c Configs) summarize(parser LogfileParser, tool ValgrindTool, toolOut, logPath OutputPath, old []LogfileSummary) (Summary, error) {
	logs, err := parser.ParseMerge(logPath, old)
	if err != nil {
		return Summary{}, err
	}
	summary := Summary{Tool: tool, Summaries: logs}
	if summary.LogPaths, err = logPath.RealPaths(); err != nil {
		return Summary{}, err
	}
	if tool.HasOutputFile() {
		if summary.OutPaths, err = toolOut.RealPaths(); err != nil {
			return Summary{}, err
		}
	}
	return summary, nil
}
