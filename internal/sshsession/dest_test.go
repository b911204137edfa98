package sshsession

import (
	"os/user"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDestDefaultsPortAndCurrentUser(t *testing.T) {
	d, err := ParseDest("ssh://example.com", Auth{Method: AuthDefault})
	require.NoError(t, err)
	assert.Equal(t, "example.com", d.Hostname)
	assert.EqualValues(t, 22, d.Port)

	cur, _ := user.Current()
	assert.Equal(t, cur.Username, d.Username)
}

func TestParseDestWithUserAndPort(t *testing.T) {
	d, err := ParseDest("ssh://deploy@example.com:2222", Auth{Method: AuthPublicKey, IdentityFile: "/id_rsa"})
	require.NoError(t, err)
	assert.Equal(t, "example.com", d.Hostname)
	assert.Equal(t, "deploy", d.Username)
	assert.EqualValues(t, 2222, d.Port)
	assert.Equal(t, AuthPublicKey, d.Auth.Method)
}

func TestParseDestRejectsWrongScheme(t *testing.T) {
	_, err := ParseDest("http://example.com", Auth{})
	assert.Error(t, err)
}

func TestParseDestRejectsMissingHost(t *testing.T) {
	_, err := ParseDest("ssh://", Auth{})
	assert.Error(t, err)
}

func TestParseDestRejectsInvalidPort(t *testing.T) {
	_, err := ParseDest("ssh://example.com:notaport", Auth{})
	assert.Error(t, err)
}

func TestDestStringOmitsDefaultPort(t *testing.T) {
	d := Dest{Hostname: "example.com", Port: 22, Username: "deploy"}
	assert.Equal(t, "ssh://deploy@example.com", d.String())
}

func TestDestStringIncludesNonDefaultPort(t *testing.T) {
	d := Dest{Hostname: "example.com", Port: 2222, Username: "deploy"}
	assert.Equal(t, "ssh://deploy@example.com:2222", d.String())
}

func TestDestRoundTripsThroughParseDest(t *testing.T) {
	original := Dest{Hostname: "example.com", Port: 2222, Username: "deploy"}
	parsed, err := ParseDest(original.String(), Auth{})
	require.NoError(t, err)
	assert.Equal(t, original.Hostname, parsed.Hostname)
	assert.Equal(t, original.Port, parsed.Port)
	assert.Equal(t, original.Username, parsed.Username)
}

func TestCacheKeyIgnoresAuthMethod(t *testing.T) {
	a := Dest{Hostname: "h", Port: 22, Username: "u", Auth: Auth{Method: AuthDefault}}
	b := Dest{Hostname: "h", Port: 22, Username: "u", Auth: Auth{Method: AuthPassword, Password: "secret"}}
	assert.Equal(t, a.CacheKey(), b.CacheKey())
}

func TestCacheKeyDiffersByEndpoint(t *testing.T) {
	a := Dest{Hostname: "h1", Port: 22, Username: "u"}
	b := Dest{Hostname: "h2", Port: 22, Username: "u"}
	assert.NotEqual(t, a.CacheKey(), b.CacheKey())
}
