// Package scriptprep builds the bash wrapper spec.md §4.6 describes for
// running a script body (local or over an SSH session's stdin) as a
// single shell invocation: write the body to a ramdisk temp file via a
// heredoc, chmod it executable, run it with arguments, capture its exit
// status, delete the temp file, and propagate the status as the wrapper's
// own exit code.
package scriptprep

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Options configures the generated wrapper.
type Options struct {
	Cwd  string            // if non-empty, "cd" into this directory first
	Env  map[string]string // exported before the script runs
	Args []string          // positional arguments passed to the script
}

// Build renders the bash wrapper script for scriptBody. The wrapped
// script's stdout/stderr pass straight through; only its exit status is
// captured and re-raised, matching the source's STATUS=$?/exit $STATUS
// idiom.
func Build(scriptBody string, opts Options) (string, error) {
	tmpPath, err := tempShmPath()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("#!/usr/bin/env bash\n")

	if opts.Cwd != "" {
		fmt.Fprintf(&b, "cd %s\n", shellQuote(opts.Cwd))
	}

	for _, k := range sortedKeys(opts.Env) {
		fmt.Fprintf(&b, "export %s=%s\n", k, shellQuote(opts.Env[k]))
	}

	delim := "%%EOF%%"
	fmt.Fprintf(&b, "cat > %s <<-'%s'\n", tmpPath, delim)
	b.WriteString(strings.TrimRight(scriptBody, "\n"))
	b.WriteByte('\n')
	fmt.Fprintf(&b, "%s\n", delim)

	fmt.Fprintf(&b, "chmod +x %s\n", tmpPath)

	b.WriteByte('(')
	b.WriteString(tmpPath)
	for _, a := range opts.Args {
		b.WriteByte(' ')
		b.WriteString(shellQuote(a))
	}
	b.WriteString(")\n")

	b.WriteString("STATUS=$?\n")
	fmt.Fprintf(&b, "rm -f %s\n", tmpPath)
	b.WriteString("exit $STATUS\n")

	return b.String(), nil
}

// tempShmPath generates a ramdisk path of the form /dev/shm/op_<hex>,
// matching the source's rng.gen::<u64>() naming.
func tempShmPath() (string, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return "/dev/shm/op_" + hex.EncodeToString(buf[:]), nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
