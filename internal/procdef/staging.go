package procdef

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/opereon/opereon-sub000/internal/errs"
)

// StagingLayout fixes paths inside one staged ProcExec directory, per
// spec.md §6's "On-disk layout of a staged ProcExec":
//
//	<timestamp>_<procname>/_proc.yaml
//	<timestamp>_<procname>/<step_index>_<host>/output.log
//	<timestamp>_<procname>/<step_index>_<host>/_step.yaml
//	<timestamp>_<procname>/<step_index>_<host>/_task_*.yaml
type StagingLayout struct {
	Root string // <staging_root>/<timestamp>_<procname>
}

// Stage creates a fresh staging directory under root for def, writing
// _proc.yaml, and returns the layout for subsequent step/task staging.
func Stage(root string, procName string, def Definition, now time.Time) (StagingLayout, error) {
	dirName := fmt.Sprintf("%d_%s", now.Unix(), procName)
	dir := filepath.Join(root, dirName)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return StagingLayout{}, errs.Wrap(errs.KindIO, "E_STAGE_MKDIR", "procdef: create staging dir "+dir, err)
	}

	raw, err := yaml.Marshal(def)
	if err != nil {
		return StagingLayout{}, errs.Wrap(errs.KindIO, "E_STAGE_MARSHAL", "procdef: marshal _proc.yaml", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "_proc.yaml"), raw, 0o644); err != nil {
		return StagingLayout{}, errs.Wrap(errs.KindIO, "E_STAGE_WRITE", "procdef: write _proc.yaml", err)
	}

	return StagingLayout{Root: dir}, nil
}

// StepDir returns the path of one step's host-scoped subdirectory,
// creating it if absent.
func (l StagingLayout) StepDir(stepIndex int, host string) (string, error) {
	dir := filepath.Join(l.Root, fmt.Sprintf("%d_%s", stepIndex, host))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errs.Wrap(errs.KindIO, "E_STAGE_MKDIR", "procdef: create step dir "+dir, err)
	}
	return dir, nil
}

// WriteStep serializes a Step to <stepDir>/_step.yaml.
func (l StagingLayout) WriteStep(stepDir string, step Step) error {
	raw, err := yaml.Marshal(step)
	if err != nil {
		return errs.Wrap(errs.KindIO, "E_STAGE_MARSHAL", "procdef: marshal _step.yaml", err)
	}
	return writeFile(filepath.Join(stepDir, "_step.yaml"), raw)
}

// WriteTask serializes one task to <stepDir>/_task_<index>.yaml.
func (l StagingLayout) WriteTask(stepDir string, taskIndex int, task Task) error {
	raw, err := yaml.Marshal(task)
	if err != nil {
		return errs.Wrap(errs.KindIO, "E_STAGE_MARSHAL", "procdef: marshal _task file", err)
	}
	name := fmt.Sprintf("_task_%d.yaml", taskIndex)
	return writeFile(filepath.Join(stepDir, name), raw)
}

// OutputLogPath returns the path output.log lives at within a step dir.
func (l StagingLayout) OutputLogPath(stepDir string) string {
	return filepath.Join(stepDir, "output.log")
}

func writeFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errs.Wrap(errs.KindIO, "E_STAGE_WRITE", "procdef: write "+path, err)
	}
	return nil
}
