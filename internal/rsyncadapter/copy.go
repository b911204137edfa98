package rsyncadapter

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/opereon/opereon-sub000/internal/errs"
	"github.com/opereon/opereon-sub000/internal/outputlog"
)

// ProgressInfo is one file transferred during a Copy, as reported by
// rsync's --progress output: a running byte count and whether this file
// has finished transferring.
type ProgressInfo struct {
	FileName    string
	LoadedBytes float64
	IsCompleted bool
}

// Copy runs `rsync --progress ...` and streams ProgressInfo updates as
// rsync reports them (spec.md §4.7's FileCopyExec leaf).
type Copy struct {
	Bin string // defaults to "rsync"
}

// Spawn starts the copy and returns a channel of progress updates plus a
// function that blocks until the process exits and returns its error (the
// same split pattern internal/engine's Impls use to enqueue work without
// blocking Init). The channel is closed once stdout reaches EOF or a parse
// error makes further updates meaningless.
func (c Copy) Spawn(ctx context.Context, params Params, log *outputlog.OutputLog) (<-chan ProgressInfo, func() error, error) {
	bin := c.Bin
	if bin == "" {
		bin = "rsync"
	}
	argv := params.CopyArgv()
	if log != nil {
		log.AppendCommand(append([]string{bin}, argv...))
	}

	cmd := exec.CommandContext(ctx, bin, argv...)
	cmd.Dir = params.CurrentDir
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, errs.Wrap(errs.KindIO, "E_RSYNC_STDOUT_PIPE", "rsyncadapter: stdout pipe", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, errs.Wrap(errs.KindIO, "E_RSYNC_STDERR_PIPE", "rsyncadapter: stderr pipe", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, errs.Wrap(errs.KindRsyncSpawn, "E_RSYNC_SPAWN", "rsyncadapter: start", err)
	}

	out := make(chan ProgressInfo)

	var (
		g        errgroup.Group
		parseErr error
	)
	g.Go(func() error {
		defer close(out)
		parseErr = parseProgressStream(stdout, log, out)
		return nil
	})
	g.Go(func() error {
		if log != nil {
			return log.ConsumeStderr(stderr)
		}
		_, err := io.Copy(io.Discard, stderr)
		return err
	})

	wait := func() error {
		_ = g.Wait()
		waitErr := cmd.Wait()
		if log != nil {
			log.AppendStatus(exitStatusLine(cmd, waitErr))
		}
		if waitErr != nil {
			return errs.Wrap(errs.KindRsyncProcess, "E_RSYNC_FAILED", "rsync copy failed", waitErr)
		}
		if parseErr != nil {
			return errs.Wrap(errs.KindRsyncParse, "E_RSYNC_PARSE", "rsync copy output parse failed", parseErr)
		}
		return nil
	}

	return out, wait, nil
}

// parseProgressStream implements spec.md §4.7's copy-progress grammar:
// the first line ("sending incremental file list") is skipped; a
// "[path][size]" line introduces a new file (directories, whose path ends
// in "/" or "/.", produce no progress events); every following
// space-separated, non-empty-field line is a progress update — 4 fields
// mid-transfer, 6 fields ("file_idx" present) on completion.
func parseProgressStream(r io.Reader, log *outputlog.OutputLog, out chan<- ProgressInfo) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	first := true
	var current string
	var skipCurrent bool

	for sc.Scan() {
		line := sc.Text()
		if log != nil {
			log.Append(outputlog.Out, []byte(line))
		}

		if first {
			first = false
			continue
		}
		if line == "" {
			continue
		}

		if path, ok := parseFileHeader(line); ok {
			current = path
			skipCurrent = strings.HasSuffix(path, "/") || strings.HasSuffix(path, "/.")
			continue
		}

		if skipCurrent {
			continue
		}

		fields := nonEmptyFields(line)
		switch len(fields) {
		case 4:
			bytesF, err := parseByteCount(fields[0])
			if err != nil {
				return err
			}
			out <- ProgressInfo{FileName: current, LoadedBytes: bytesF, IsCompleted: false}
		case 6:
			bytesF, err := parseByteCount(fields[0])
			if err != nil {
				return err
			}
			out <- ProgressInfo{FileName: current, LoadedBytes: bytesF, IsCompleted: true}
		default:
			return fmt.Errorf("rsyncadapter: expected 4 or 6 progress fields, got %d (%q)", len(fields), line)
		}
	}
	return sc.Err()
}

// parseFileHeader recognizes a "[path][size]" header line, mirroring
// parseLine's bracket-splitting but tolerating the absence of a size
// field (rsync omits it for directories).
func parseFileHeader(line string) (string, bool) {
	if !strings.HasPrefix(line, "[") {
		return "", false
	}
	parts := make([]string, 0, 2)
	for _, p := range strings.Split(line, "[") {
		p = strings.TrimSuffix(p, "]")
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return "", false
	}
	return parts[0], true
}

func nonEmptyFields(line string) []string {
	raw := strings.Fields(line)
	fields := make([]string, 0, len(raw))
	for _, f := range raw {
		if f != "" {
			fields = append(fields, f)
		}
	}
	return fields
}

func parseByteCount(s string) (float64, error) {
	s = strings.ReplaceAll(s, ",", "")
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("rsyncadapter: invalid byte count %q: %w", s, err)
	}
	return float64(n), nil
}
