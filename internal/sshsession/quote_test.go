package sshsession

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShellQuoteWrapsPlainString(t *testing.T) {
	assert.Equal(t, "'hello'", shellQuote("hello"))
}

func TestShellQuoteEscapesEmbeddedSingleQuote(t *testing.T) {
	got := shellQuote("it's")
	assert.Equal(t, `'it'"'"'s'`, got)
}

func TestQuoteCommandOrdersEnvBeforeCmdAndArgs(t *testing.T) {
	got := quoteCommand("echo", []string{"hi there"}, map[string]string{"FOO": "bar"})
	assert.True(t, strings.HasPrefix(got, "FOO='bar' "))
	assert.Contains(t, got, "'echo'")
	assert.Contains(t, got, "'hi there'")
}

func TestQuoteCommandNoEnvOrArgs(t *testing.T) {
	got := quoteCommand("ls", nil, nil)
	assert.Equal(t, "'ls'", got)
}

func TestQuoteCommandQuotesArgsWithSpecialChars(t *testing.T) {
	got := quoteCommand("bash", []string{"-c", "echo $HOME && rm -rf /"}, nil)
	assert.Contains(t, got, `'echo $HOME && rm -rf /'`)
}
