package sshsession

import "strings"

// quoteCommand renders cmd/args/env as a single POSIX shell command line,
// suitable as the trailing argument to `ssh user@host <command>` (OpenSSH
// concatenates argv after the destination into one string run through the
// remote user's shell, so it must already be one shell-safe string here).
func quoteCommand(cmd string, args []string, env map[string]string) string {
	var b strings.Builder
	for k, v := range env {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(shellQuote(v))
		b.WriteByte(' ')
	}
	b.WriteString(shellQuote(cmd))
	for _, a := range args {
		b.WriteByte(' ')
		b.WriteString(shellQuote(a))
	}
	return b.String()
}

// shellQuote wraps s in single quotes, escaping any embedded single quote
// via the standard '"'"' POSIX idiom.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
