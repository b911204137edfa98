package scriptprep

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildWrapsScriptBodyInHeredoc(t *testing.T) {
	out, err := Build("echo hello", Options{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "#!/usr/bin/env bash\n"))
	assert.Contains(t, out, "cat > /dev/shm/op_")
	assert.Contains(t, out, "echo hello\n")
	assert.Contains(t, out, "chmod +x /dev/shm/op_")
	assert.Contains(t, out, "STATUS=$?\n")
	assert.Contains(t, out, "exit $STATUS\n")
}

func TestBuildIncludesCwdWhenSet(t *testing.T) {
	out, err := Build("true", Options{Cwd: "/srv/app"})
	require.NoError(t, err)
	assert.Contains(t, out, "cd '/srv/app'\n")
}

func TestBuildOmitsCwdWhenUnset(t *testing.T) {
	out, err := Build("true", Options{})
	require.NoError(t, err)
	assert.NotContains(t, out, "cd ")
}

func TestBuildExportsEnvInSortedOrder(t *testing.T) {
	out, err := Build("true", Options{Env: map[string]string{"ZEBRA": "1", "ALPHA": "2"}})
	require.NoError(t, err)
	alphaIdx := strings.Index(out, "export ALPHA=")
	zebraIdx := strings.Index(out, "export ZEBRA=")
	require.NotEqual(t, -1, alphaIdx)
	require.NotEqual(t, -1, zebraIdx)
	assert.Less(t, alphaIdx, zebraIdx)
}

func TestBuildQuotesArgs(t *testing.T) {
	out, err := Build("true", Options{Args: []string{"has space", "it's"}})
	require.NoError(t, err)
	assert.Contains(t, out, `'has space'`)
	assert.Contains(t, out, `'it'"'"'s'`)
}

func TestBuildGeneratesDistinctTempPathsPerCall(t *testing.T) {
	a, err := Build("true", Options{})
	require.NoError(t, err)
	b, err := Build("true", Options{})
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "each build must use a fresh random temp path")
}
