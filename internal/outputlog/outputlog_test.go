package outputlog_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opereon/opereon-sub000/internal/outputlog"
)

func TestAppendAndEntriesPreserveOrder(t *testing.T) {
	l := outputlog.New()
	l.Append(outputlog.Out, []byte("first"))
	l.Append(outputlog.Err, []byte("second"))

	entries := l.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, outputlog.Out, entries[0].Kind)
	assert.Equal(t, outputlog.Err, entries[1].Kind)
}

func TestAppendCommandRecordsArgv(t *testing.T) {
	l := outputlog.New()
	l.AppendCommand([]string{"rsync", "-a", "src/", "dst/"})
	rendered := l.Render()
	assert.Contains(t, rendered, "$ ")
	assert.Contains(t, rendered, "rsync")
}

func TestAppendStatusRecordsExitLine(t *testing.T) {
	l := outputlog.New()
	l.AppendStatus("exit 0")
	assert.Contains(t, l.Render(), "* exit 0\n")
}

func TestRenderUsesPerKindSigils(t *testing.T) {
	l := outputlog.New()
	l.Append(outputlog.In, []byte("stdin line"))
	l.Append(outputlog.Out, []byte("stdout line"))
	l.Append(outputlog.Err, []byte("stderr line"))

	rendered := l.Render()
	lines := strings.Split(strings.TrimRight(rendered, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "< stdin line", lines[0])
	assert.Equal(t, "> stdout line", lines[1])
	assert.Equal(t, "! stderr line", lines[2])
}

func TestConsumeStdoutSplitsByLine(t *testing.T) {
	l := outputlog.New()
	err := l.ConsumeStdout(strings.NewReader("line one\nline two\n"))
	require.NoError(t, err)

	entries := l.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, outputlog.Out, entries[0].Kind)
	assert.Equal(t, outputlog.Out, entries[1].Kind)
	assert.Contains(t, l.Render(), "line one")
	assert.Contains(t, l.Render(), "line two")
}

func TestConsumeStderrSplitsByLine(t *testing.T) {
	l := outputlog.New()
	err := l.ConsumeStderr(strings.NewReader("oops\n"))
	require.NoError(t, err)
	assert.Contains(t, l.Render(), "! oops")
}

func TestEntriesReturnsASnapshotNotALiveView(t *testing.T) {
	l := outputlog.New()
	l.Append(outputlog.Out, []byte("a"))
	snap := l.Entries()
	l.Append(outputlog.Out, []byte("b"))
	assert.Len(t, snap, 1, "a previously taken snapshot must not observe later appends")
}
