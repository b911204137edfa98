// Package rsyncadapter implements the L2 rsync execution adapter from
// spec.md §4.7: argv construction, a `--itemize-changes` comparison parser,
// and a `--progress` copy parser, both depending on rsync's output staying
// byte-for-byte stable across the `--out-format` strings used here.
package rsyncadapter

import "strings"

// Params describes one rsync invocation: current directory, one or more
// source paths (optionally prefixed by a remote host), a destination path,
// and the ownership/permission/remote-shell options common to both Compare
// and Copy.
type Params struct {
	CurrentDir string

	SrcHostname string // empty for a local source
	SrcUsername string
	SrcPaths    []string

	DstHostname string // empty for a local destination
	DstUsername string
	DstPath     string

	Chmod       string // empty uses --perms instead of --chmod=<value>
	Chown       string // empty omits --chown
	RemoteShell string // empty omits -e <shell>; see internal/sshsession.Session.RemoteShellCmd
}

// baseArgv renders the argv shared by Compare and Copy: source paths,
// destination, and permission/ownership/remote-shell flags. Neither
// rsync's binary name nor the mode-specific flags are included.
func (p Params) baseArgv() []string {
	var argv []string

	for _, src := range p.SrcPaths {
		argv = append(argv, printHost(p.SrcHostname, p.SrcUsername)+src)
	}
	argv = append(argv, printHost(p.DstHostname, p.DstUsername)+p.DstPath)

	if p.Chmod != "" {
		argv = append(argv, "--chmod", p.Chmod)
	} else {
		argv = append(argv, "--perms")
	}

	argv = append(argv, "--group", "--owner")

	if p.Chown != "" {
		argv = append(argv, "--chown", p.Chown)
	}

	if p.RemoteShell != "" {
		argv = append(argv, "-e", p.RemoteShell)
	}

	return argv
}

func printHost(hostname, username string) string {
	if hostname == "" {
		return ""
	}
	if username != "" {
		return username + "@" + hostname + ":"
	}
	return hostname + ":"
}

// CompareArgv renders the full argv (rsync binary name excluded) for a
// `--dry-run` comparison, per spec.md §4.7: "Compare adds: --verbose
// --recursive --dry-run --super --archive --delete -ii
// --out-format=###%i [%f][%l]", optionally --checksum.
func (p Params) CompareArgv(checksum bool) []string {
	argv := append(p.baseArgv(),
		"--verbose", "--recursive", "--dry-run", "--super", "--archive", "--delete",
		"-ii", "--out-format=###%i [%f][%l]",
	)
	if checksum {
		argv = append(argv, "--checksum")
	}
	return argv
}

// CopyArgv renders the full argv (rsync binary name excluded) for a copy,
// per spec.md §4.7: "Copy adds: --progress --super --recursive --links
// --times --out-format=[%f][%l]" (TERM=xterm-256color is set on the
// spawned process's environment, not the argv — see Copy.Spawn).
func (p Params) CopyArgv() []string {
	return append(p.baseArgv(),
		"--progress", "--super", "--recursive", "--links", "--times",
		"--out-format=[%f][%l]",
	)
}

// argvString renders argv as a single space-joined command line, for logging
// (OutputLog.AppendCommand already structures argv; this is for ad hoc
// diagnostics that want the shell-equivalent form).
func argvString(bin string, argv []string) string {
	return bin + " " + strings.Join(argv, " ")
}
