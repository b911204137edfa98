package logging_test

import (
	"bytes"
	"testing"

	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/assert"

	"github.com/opereon/opereon-sub000/internal/logging"
)

func TestNewWritesJSONAtOrAboveLevel(t *testing.T) {
	var buf bytes.Buffer
	log := logging.New(&buf, logiface.LevelInformational)

	log.Info().Str("component", "test").Log("hello")
	assert.Contains(t, buf.String(), `"hello"`)
}

func TestNewSuppressesBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	log := logging.New(&buf, logiface.LevelInformational)

	log.Debug().Log("should be dropped")
	assert.Empty(t, buf.String())
}

func TestDiscardNeverPanicsOnLog(t *testing.T) {
	assert.NotPanics(t, func() {
		logging.Discard().Info().Log("dropped")
	})
}

func TestForTagsComponentField(t *testing.T) {
	var buf bytes.Buffer
	root := logging.New(&buf, logiface.LevelInformational)
	child := logging.For(root, "engine")

	child.Info().Log("tagged")
	assert.Contains(t, buf.String(), `"component":"engine"`)
}

func TestForWithNilRootFallsBackToDiscard(t *testing.T) {
	assert.NotPanics(t, func() {
		logging.For(nil, "engine").Info().Log("dropped")
	})
}
