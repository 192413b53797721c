package benchmark

import (
	"path/filepath"

	"github.com/mwiater/cgbench/internal/api"
	"github.com/mwiater/cgbench/internal/bencherr"
	"github.com/mwiater/cgbench/internal/logging"
	"github.com/mwiater/cgbench/internal/util"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// sandbox is a temporary directory a binary bench runs in. The directory is
// handed to the processes explicitly; the working directory of cgbench
// itself never changes.
type sandbox struct {
	fs  afero.Fs
	dir string
}

func newSandbox(fs afero.Fs, cfg api.Sandbox, projectRoot string) (*sandbox, error) {
	dir, err := afero.TempDir(fs, "", "cgbench-sandbox-")
	if err != nil {
		return nil, bencherr.NewIOError("create sandbox", dir, err)
	}
	sb := &sandbox{fs: fs, dir: dir}
	if cfg.Fixtures == "" {
		return sb, nil
	}

	src := cfg.Fixtures
	if !filepath.IsAbs(src) {
		src = filepath.Join(projectRoot, src)
	}
	if err := util.CopyDir(fs, src, dir); err != nil {
		sb.remove()
		return nil, bencherr.NewIOError("copy fixtures", src, err)
	}
	logging.L().Debug("sandbox created", zap.String("dir", dir), zap.String("fixtures", src))
	return sb, nil
}

func (s *sandbox) remove() {
	if err := s.fs.RemoveAll(s.dir); err != nil {
		logging.L().Warn("removing sandbox failed", zap.String("dir", s.dir), zap.Error(err))
	}
}
