// Package procdef implements spec.md §6's on-disk procedure/step/task
// schema and the staging directory layout a ProcExec operation drives.
package procdef

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/opereon/opereon-sub000/internal/errs"
	"github.com/opereon/opereon-sub000/internal/opcontext"
)

// Kind discriminates the four procedure kinds a definition may declare.
type Kind string

const (
	KindExec   Kind = "exec"
	KindCheck  Kind = "check"
	KindUpdate Kind = "update"
	KindProbe  Kind = "probe"
)

// EventMask is the tri-state change mask a watch entry matches against
// (any combination of added/removed/modified), spec.md §6's
// `event_mask∈{+|-|=|* or any combo}`.
type EventMask string

const (
	EventAdded    = '+'
	EventRemoved  = '-'
	EventModified = '='
	EventAny      = '*'
)

// Matches reports whether mask permits the given single-character event.
func (m EventMask) Matches(event byte) bool {
	if strings.ContainsRune(string(m), EventAny) {
		return true
	}
	return strings.ContainsRune(string(m), rune(event))
}

// Task is one task within a Step, tagged by opcontext.TaskKind. Only the
// fields relevant to Kind are populated; spec.md §6 lists the scope
// variables per kind (cmd, args, env, src_path, dst_path, chown, chmod,
// cwd, run_as).
type Task struct {
	Kind opcontext.TaskKind `yaml:"kind" toml:"kind"`

	Cmd    string            `yaml:"cmd,omitempty" toml:"cmd,omitempty"`
	Args   []string          `yaml:"args,omitempty" toml:"args,omitempty"`
	Env    map[string]string `yaml:"env,omitempty" toml:"env,omitempty"`
	Cwd    string            `yaml:"cwd,omitempty" toml:"cwd,omitempty"`
	RunAs  string            `yaml:"run_as,omitempty" toml:"run_as,omitempty"`

	Script string `yaml:"script,omitempty" toml:"script,omitempty"` // TaskScript body

	Switch map[string]Task `yaml:"switch,omitempty" toml:"switch,omitempty"` // TaskSwitch branches, keyed by opath expr

	TemplateSrc string `yaml:"template_src,omitempty" toml:"template_src,omitempty"`
	TemplateDst string `yaml:"template_dst,omitempty" toml:"template_dst,omitempty"`

	SrcPath string `yaml:"src_path,omitempty" toml:"src_path,omitempty"`
	DstPath string `yaml:"dst_path,omitempty" toml:"dst_path,omitempty"`
	Chown   string `yaml:"chown,omitempty" toml:"chown,omitempty"`
	Chmod   string `yaml:"chmod,omitempty" toml:"chmod,omitempty"`
}

// Step is one entry of a procedure's `run` list: an optional dynamic
// `hosts` opath expression plus an ordered task list.
type Step struct {
	Label string `yaml:"label,omitempty" toml:"label,omitempty"`
	Hosts string `yaml:"hosts,omitempty" toml:"hosts,omitempty"`
	Tasks []Task `yaml:"tasks" toml:"tasks"`
}

// Definition is one procedure document, per spec.md §6's "Procedure
// definition properties".
type Definition struct {
	Proc  Kind   `yaml:"proc" toml:"proc"`
	ID    string `yaml:"id,omitempty" toml:"id,omitempty"`
	Label string `yaml:"label,omitempty" toml:"label,omitempty"`

	Watch     map[string]EventMask `yaml:"watch,omitempty" toml:"watch,omitempty"`
	WatchFile map[string]EventMask `yaml:"watch_file,omitempty" toml:"watch_file,omitempty"`

	Run []Step `yaml:"run" toml:"run"`
}

// Validate checks that Proc is one of the four known kinds and that Run
// has at least one step. Watch fields are not checked: a procedure of any
// kind may carry watch or watch_file entries and still validates.
func (d Definition) Validate() error {
	switch d.Proc {
	case KindExec, KindCheck, KindUpdate, KindProbe:
	default:
		return errs.New(errs.KindDefs, "E_PROC_KIND", fmt.Sprintf("procdef: unknown proc kind %q", d.Proc))
	}
	if len(d.Run) == 0 {
		return errs.New(errs.KindDefs, "E_PROC_EMPTY_RUN", "procdef: procedure has no steps")
	}
	return nil
}

// Load parses a procedure definition from path, dispatching on extension
// (.yaml/.yml/.json all decode via yaml.v3, a JSON superset; .toml via
// BurntSushi/toml).
func Load(path string) (Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, errs.Wrap(errs.KindDefs, "E_PROC_READ", "procdef: read "+path, err)
	}

	var def Definition
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(raw, &def); err != nil {
			return Definition{}, errs.Wrap(errs.KindDefs, "E_PROC_PARSE", "procdef: decode toml "+path, err)
		}
	default: // .yaml, .yml, .json
		if err := yaml.Unmarshal(raw, &def); err != nil {
			return Definition{}, errs.Wrap(errs.KindDefs, "E_PROC_PARSE", "procdef: decode "+path, err)
		}
	}

	if err := def.Validate(); err != nil {
		return Definition{}, err
	}
	return def, nil
}
