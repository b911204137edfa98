// Package sshsession implements the L1 remote transport layer: a cached
// pool of OpenSSH ControlMaster sockets, opened by shelling out to the
// real ssh binary (never golang.org/x/crypto/ssh — that package cannot
// attach to a socket an external ssh -M process owns), and command/script
// spawns multiplexed through them.
package sshsession

import (
	"fmt"
	"net/url"
	"os/user"
	"strconv"

	"github.com/opereon/opereon-sub000/internal/errs"
)

// AuthMethod selects how a session authenticates.
type AuthMethod string

const (
	AuthDefault   AuthMethod = "default"
	AuthPublicKey AuthMethod = "public-key"
	AuthPassword  AuthMethod = "password"
)

// Auth carries the authentication method and whichever of its parameters
// apply (IdentityFile for AuthPublicKey, Password for AuthPassword).
type Auth struct {
	Method       AuthMethod
	IdentityFile string
	Password     string
}

// Dest identifies an SSH destination: host, port, user, and how to
// authenticate. Two Dests with the same Host/Port/Username share a cached
// session regardless of Auth (the control socket is keyed by endpoint
// identity, not credentials).
type Dest struct {
	Hostname string
	Port     uint16
	Username string
	Auth     Auth
}

// ParseDest parses an "ssh://[user@]host[:port]" URL into a Dest. An empty
// username resolves to the current OS user, and a missing port defaults to
// 22, matching the ssh:// convention.
func ParseDest(raw string, auth Auth) (Dest, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Dest{}, errs.Wrap(errs.KindConfig, "E_SSH_DEST_PARSE", "invalid ssh destination: "+raw, err)
	}
	if u.Scheme != "" && u.Scheme != "ssh" {
		return Dest{}, errs.New(errs.KindConfig, "E_SSH_DEST_SCHEME", "unsupported scheme in ssh destination: "+u.Scheme)
	}
	if u.Hostname() == "" {
		return Dest{}, errs.New(errs.KindConfig, "E_SSH_DEST_HOST", "ssh destination missing host: "+raw)
	}

	username := u.User.Username()
	if username == "" {
		cur, err := user.Current()
		if err != nil {
			return Dest{}, errs.Wrap(errs.KindConfig, "E_SSH_DEST_USER", "cannot resolve current user", err)
		}
		username = cur.Username
	}

	port := uint16(22)
	if p := u.Port(); p != "" {
		n, err := strconv.ParseUint(p, 10, 16)
		if err != nil {
			return Dest{}, errs.Wrap(errs.KindConfig, "E_SSH_DEST_PORT", "invalid port in ssh destination: "+raw, err)
		}
		port = uint16(n)
	}

	return Dest{Hostname: u.Hostname(), Port: port, Username: username, Auth: auth}, nil
}

// String renders the round-trip "ssh://user@host[:port]" form; the default
// port 22 is omitted.
func (d Dest) String() string {
	if d.Port == 22 {
		return fmt.Sprintf("ssh://%s@%s", d.Username, d.Hostname)
	}
	return fmt.Sprintf("ssh://%s@%s:%d", d.Username, d.Hostname, d.Port)
}

// CacheKey is the session cache key: endpoint identity, independent of
// auth method (spec.md's "user-host-port" scheme).
func (d Dest) CacheKey() string {
	return fmt.Sprintf("%s-%s-%d", d.Username, d.Hostname, d.Port)
}
