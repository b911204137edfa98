package procdef_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opereon/opereon-sub000/internal/opcontext"
	"github.com/opereon/opereon-sub000/internal/procdef"
)

func TestEventMaskAnyMatchesEverything(t *testing.T) {
	m := procdef.EventMask(string(rune(procdef.EventAny)))
	assert.True(t, m.Matches(procdef.EventAdded))
	assert.True(t, m.Matches(procdef.EventRemoved))
	assert.True(t, m.Matches(procdef.EventModified))
}

func TestEventMaskMatchesOnlyListedEvents(t *testing.T) {
	m := procdef.EventMask(string([]rune{procdef.EventAdded, procdef.EventRemoved}))
	assert.True(t, m.Matches(procdef.EventAdded))
	assert.True(t, m.Matches(procdef.EventRemoved))
	assert.False(t, m.Matches(procdef.EventModified))
}

func TestValidateRejectsUnknownKind(t *testing.T) {
	def := procdef.Definition{Proc: "bogus", Run: []procdef.Step{{}}}
	assert.Error(t, def.Validate())
}

func TestValidateRejectsEmptyRun(t *testing.T) {
	def := procdef.Definition{Proc: procdef.KindExec}
	assert.Error(t, def.Validate())
}

func TestValidateAcceptsWellFormedDefinition(t *testing.T) {
	def := procdef.Definition{Proc: procdef.KindCheck, Run: []procdef.Step{{Tasks: []procdef.Task{{Kind: opcontext.TaskCommand, Cmd: "true"}}}}}
	assert.NoError(t, def.Validate())
}

func TestLoadDecodesYAMLByExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "proc.yaml")
	body := "proc: exec\nid: demo\nrun:\n  - label: step1\n    tasks:\n      - kind: command\n        cmd: echo\n        args: [hi]\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	def, err := procdef.Load(path)
	require.NoError(t, err)
	assert.Equal(t, procdef.KindExec, def.Proc)
	assert.Equal(t, "demo", def.ID)
	require.Len(t, def.Run, 1)
	assert.Equal(t, "step1", def.Run[0].Label)
	require.Len(t, def.Run[0].Tasks, 1)
	assert.Equal(t, "echo", def.Run[0].Tasks[0].Cmd)
}

func TestLoadDecodesTOMLByExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "proc.toml")
	body := "proc = \"check\"\nid = \"demo\"\n\n[[run]]\nlabel = \"step1\"\n\n[[run.tasks]]\nkind = \"command\"\ncmd = \"true\"\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	def, err := procdef.Load(path)
	require.NoError(t, err)
	assert.Equal(t, procdef.KindCheck, def.Proc)
}

func TestLoadRejectsMalformedDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "proc.yaml")
	require.NoError(t, os.WriteFile(path, []byte(": not valid yaml :::"), 0o644))

	_, err := procdef.Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := procdef.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestStageCreatesDirAndWritesProcYAML(t *testing.T) {
	root := t.TempDir()
	def := procdef.Definition{Proc: procdef.KindExec, ID: "demo", Run: []procdef.Step{{Tasks: []procdef.Task{{Kind: opcontext.TaskCommand, Cmd: "true"}}}}}

	layout, err := procdef.Stage(root, "demo", def, time.Unix(1700000000, 0))
	require.NoError(t, err)
	assert.DirExists(t, layout.Root)
	assert.FileExists(t, filepath.Join(layout.Root, "_proc.yaml"))
	assert.Contains(t, layout.Root, "1700000000_demo")
}

func TestStepDirAndWriteStepAndWriteTask(t *testing.T) {
	root := t.TempDir()
	def := procdef.Definition{Proc: procdef.KindExec, Run: []procdef.Step{{Tasks: []procdef.Task{{Kind: opcontext.TaskCommand, Cmd: "true"}}}}}
	layout, err := procdef.Stage(root, "demo", def, time.Unix(1700000000, 0))
	require.NoError(t, err)

	stepDir, err := layout.StepDir(0, "local")
	require.NoError(t, err)
	assert.DirExists(t, stepDir)

	require.NoError(t, layout.WriteStep(stepDir, def.Run[0]))
	assert.FileExists(t, filepath.Join(stepDir, "_step.yaml"))

	require.NoError(t, layout.WriteTask(stepDir, 0, def.Run[0].Tasks[0]))
	assert.FileExists(t, filepath.Join(stepDir, "_task_0.yaml"))

	assert.Equal(t, filepath.Join(stepDir, "output.log"), layout.OutputLogPath(stepDir))
}
