package rsyncadapter

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/opereon/opereon-sub000/internal/errs"
	"github.com/opereon/opereon-sub000/internal/outputlog"
)

// FileType is the itemize-changes type character at details[1] (rsync's
// -ii output, spec.md §4.7).
type FileType byte

const (
	FileTypeUnknown   FileType = 0
	FileTypeRegular   FileType = 'f'
	FileTypeDirectory FileType = 'd'
	FileTypeSymlink   FileType = 'L'
	FileTypeDevice    FileType = 'D'
	FileTypeSpecial   FileType = 'S'
)

// State classifies one itemize-changes line beyond its per-attribute
// ModFlags: a file can be new, gone, unchanged, about to be deleted, or
// changed in some attribute captured by ModFlags.
type State int

const (
	StateChanged State = iota
	StateMissing    // "+++++++++": not present at the destination yet
	StateIdentical  // all 9 flag bytes are spaces: no change detected
	StateExtraneous // "*deleting  ": present at dst, absent at src, to be removed
)

// ModFlags is the tri-state (yes/no/unknown) per-attribute diff rsync
// reports in the 9 bytes after the file-type character: each field is nil
// when rsync printed '?' (attribute not checked), true when the
// corresponding on-char was printed, false for '.'/' '/'+'.
type ModFlags struct {
	Checksum  *bool
	Size      *bool
	ModTime   *bool
	Perms     *bool
	Owner     *bool
	Group     *bool
	UpdateTime *bool // rsync's 'T' (time of an update, distinct from ModTime's 't')
	ACL       *bool
	ExtAttr   *bool
}

// DiffInfo is one parsed itemize-changes line.
type DiffInfo struct {
	State    State
	FileType FileType
	Flags    ModFlags
	Path     string
	Size     string // raw %l field; empty when rsync omitted it
}

// parseModFlags decodes the 9-byte tri-state attribute field (details[2:11]
// of an itemize-changes line), per the Rust original's bit-for-bit
// ModFlags::parse.
func parseModFlags(b string) (ModFlags, error) {
	if len(b) != 9 {
		return ModFlags{}, fmt.Errorf("rsyncadapter: mod-flags field must be 9 bytes, got %q", b)
	}
	tri := func(c byte) (*bool, error) {
		switch c {
		case '?':
			return nil, nil
		case '.', ' ', '+':
			v := false
			return &v, nil
		default:
			v := true
			return &v, nil
		}
	}
	fields := [9]**bool{}
	var flags ModFlags
	fields[0] = &flags.Checksum
	fields[1] = &flags.Size
	fields[2] = &flags.ModTime
	fields[3] = &flags.Perms
	fields[4] = &flags.Owner
	fields[5] = &flags.Group
	fields[6] = &flags.UpdateTime
	fields[7] = &flags.ACL
	fields[8] = &flags.ExtAttr
	for i := range fields {
		v, err := tri(b[i])
		if err != nil {
			return ModFlags{}, err
		}
		*fields[i] = v
	}
	return flags, nil
}

// parseLine decodes one "###%i [%f][%l]" itemize-changes line (the "###"
// prefix already stripped by the caller). The 11-byte detail string
// occupies the first 11 bytes; the remainder is "[path][size]".
func parseLine(line string) (DiffInfo, error) {
	if len(line) < 11 {
		return DiffInfo{}, fmt.Errorf("rsyncadapter: itemize line too short: %q", line)
	}
	details := line[:11]
	rest := strings.TrimPrefix(line[11:], " ")

	parts := make([]string, 0, 2)
	for _, p := range strings.Split(rest, "[") {
		p = strings.TrimSuffix(p, "]")
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) != 2 {
		return DiffInfo{}, fmt.Errorf("rsyncadapter: expected [path][size], got %q", rest)
	}

	info := DiffInfo{Path: parts[0], Size: parts[1]}

	switch {
	case details == "*deleting  ":
		info.State = StateExtraneous
		return info, nil
	case details[2:] == "+++++++++":
		info.State = StateMissing
		info.FileType = FileType(details[1])
		return info, nil
	case details[2:] == "         ":
		info.State = StateIdentical
		info.FileType = FileType(details[1])
		return info, nil
	}

	flags, err := parseModFlags(details[2:])
	if err != nil {
		return DiffInfo{}, err
	}
	info.State = StateChanged
	info.FileType = FileType(details[1])
	info.Flags = flags
	return info, nil
}

// Compare runs `rsync --dry-run -ii ...` and parses its itemize-changes
// output into a slice of DiffInfo values (spec.md §4.7's FileCompareExec
// leaf).
type Compare struct {
	Bin      string // defaults to "rsync"
	Checksum bool
}

// Diffs is the result of a completed Compare.Spawn: every parsed
// itemize-changes line, in output order. The exit status is not kept here;
// Spawn reports a failed rsync run as an error instead.
type Diffs struct {
	Entries []DiffInfo
}

// Spawn runs the comparison to completion (it is not a streaming API: the
// dry-run output for a manifest-sized tree is small enough to buffer
// whole), following the same stdout-parser/stderr-drain/wait three-thread
// split every other adapter in this module uses.
func (c Compare) Spawn(ctx context.Context, params Params, log *outputlog.OutputLog) (Diffs, error) {
	bin := c.Bin
	if bin == "" {
		bin = "rsync"
	}
	argv := params.CompareArgv(c.Checksum)
	if log != nil {
		log.AppendCommand(append([]string{bin}, argv...))
	}

	cmd := exec.CommandContext(ctx, bin, argv...)
	cmd.Dir = params.CurrentDir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Diffs{}, errs.Wrap(errs.KindIO, "E_RSYNC_STDOUT_PIPE", "rsyncadapter: stdout pipe", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Diffs{}, errs.Wrap(errs.KindIO, "E_RSYNC_STDERR_PIPE", "rsyncadapter: stderr pipe", err)
	}

	if err := cmd.Start(); err != nil {
		return Diffs{}, errs.Wrap(errs.KindRsyncSpawn, "E_RSYNC_SPAWN", "rsyncadapter: start", err)
	}

	var (
		entries  []DiffInfo
		parseErr error
	)
	var g errgroup.Group
	g.Go(func() error {
		entries, parseErr = parseCompareStream(stdout, log)
		return nil
	})
	g.Go(func() error {
		if log != nil {
			return log.ConsumeStderr(stderr)
		}
		_, err := io.Copy(io.Discard, stderr)
		return err
	})
	_ = g.Wait()

	waitErr := cmd.Wait()
	if log != nil {
		log.AppendStatus(exitStatusLine(cmd, waitErr))
	}

	if waitErr != nil {
		return Diffs{}, errs.Wrap(errs.KindRsyncProcess, "E_RSYNC_FAILED", "rsync comparison failed", waitErr)
	}
	if parseErr != nil {
		return Diffs{}, errs.Wrap(errs.KindRsyncParse, "E_RSYNC_PARSE", "rsync comparison output parse failed", parseErr)
	}
	return Diffs{Entries: entries}, nil
}

// parseCompareStream reads itemize-changes lines from r, collecting every
// parsed DiffInfo up to the first malformed line. A parse failure is
// fatal to the parse (matching the source: itemize output is expected to be well-formed), but
// the remainder of stdout is still drained first so the child process is
// never left blocked on a full pipe buffer.
func parseCompareStream(r io.Reader, log *outputlog.OutputLog) ([]DiffInfo, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		entries  []DiffInfo
		firstErr error
	)
	for sc.Scan() {
		line := sc.Text()
		if log != nil {
			log.Append(outputlog.Out, []byte(line))
		}
		trimmed, ok := strings.CutPrefix(line, "###")
		if !ok {
			continue
		}
		info, err := parseLine(trimmed)
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("rsyncadapter: %w (line %q)", err, line)
			continue
		}
		if err == nil && firstErr == nil {
			entries = append(entries, info)
		}
	}
	if err := sc.Err(); err != nil && firstErr == nil {
		firstErr = err
	}
	return entries, firstErr
}

func exitStatusLine(cmd *exec.Cmd, err error) string {
	if err != nil {
		return "exit " + err.Error()
	}
	if cmd.ProcessState != nil {
		return fmt.Sprintf("exit %d", cmd.ProcessState.ExitCode())
	}
	return "exit 0"
}
