// Package sandbox implements the Sandbox Driver: a thin wrapper around the
// `isolate` binary that owns exactly one numbered box for its lifetime and
// maps its meta-report to a verdict.
package sandbox

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// IsolatePath is the location of the isolate binary, matching the location
// every isolate package installs to.
var IsolatePath = "/usr/local/bin/isolate"

// Driver owns a single sandbox slot (box ID) for its lifetime.
type Driver struct {
	BoxID        int
	boxDir       string
	metadataPath string
	initialized  bool
}

// New constructs a Driver for the given box id. Call Init before Run.
func New(boxID int) *Driver {
	return &Driver{BoxID: boxID}
}

// Init invokes `isolate --init` for this box, idempotent within the
// driver's lifetime.
func (d *Driver) Init(ctx context.Context) error {
	if d.initialized {
		return nil
	}

	cmd := exec.CommandContext(ctx, IsolatePath, "--init", "--cg", fmt.Sprintf("-b%d", d.BoxID))
	out, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("isolate --init box %d: %w", d.BoxID, err)
	}

	dir := strings.TrimSpace(string(out))
	if dir == "" {
		return fmt.Errorf("isolate --init box %d: empty output", d.BoxID)
	}
	d.boxDir = filepath.Join(dir, "box")
	d.metadataPath = filepath.Join(os.TempDir(), fmt.Sprintf("isolate-meta-%d.txt", d.BoxID))
	d.initialized = true
	return nil
}

// Path returns the host path of the sandbox's /box working directory.
func (d *Driver) Path() string { return d.boxDir }

// CopyIn copies a file from the host into the sandbox under dstName.
func (d *Driver) CopyIn(srcHostPath, dstName string) error {
	return copyFile(srcHostPath, filepath.Join(d.boxDir, dstName))
}

// CopyOut copies a file named srcName inside the sandbox to a host path.
func (d *Driver) CopyOut(srcName, dstHostPath string) error {
	return copyFile(filepath.Join(d.boxDir, srcName), dstHostPath)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// Run invokes `isolate --run` with arguments derived from spec, waits for
// the process to terminate (subject to a host-side wall deadline), and
// parses the meta-report into a RunOutcome.
func (d *Driver) Run(ctx context.Context, spec RunSpec) (RunOutcome, error) {
	if !d.initialized {
		return RunOutcome{}, fmt.Errorf("sandbox box %d not initialized", d.BoxID)
	}

	args := d.buildArgs(spec)

	deadline := 2*time.Duration(spec.WallTimeUs)*time.Microsecond + 5*time.Second
	runCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	cmd := exec.CommandContext(runCtx, IsolatePath, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	runErr := cmd.Run()

	if runCtx.Err() == context.DeadlineExceeded {
		killProcessGroup(cmd)
		return RunOutcome{Outcome: InternalError, Message: "wall deadline exceeded, isolator killed"}, nil
	}

	exitCode := exitCodeOf(runErr)
	if exitCode != 0 && exitCode != 1 {
		return RunOutcome{Outcome: InternalError, ExitCode: exitCode, Message: "isolate exited abnormally"}, nil
	}

	meta, err := parseMetaFile(d.metadataPath)
	if err != nil {
		return RunOutcome{Outcome: InternalError, Message: err.Error()}, nil
	}

	return mapOutcome(meta, spec), nil
}

func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if ok := asExitError(err, &exitErr); ok {
		return exitErr.ExitCode()
	}
	return -1
}

func asExitError(err error, target **exec.ExitError) bool {
	if ee, ok := err.(*exec.ExitError); ok {
		*target = ee
		return true
	}
	return false
}

// Cleanup invokes `isolate --cleanup`. Always safe to call, including on an
// uninitialized driver (in which case it is a no-op).
func (d *Driver) Cleanup(ctx context.Context) error {
	if !d.initialized {
		return nil
	}
	cmd := exec.CommandContext(ctx, IsolatePath, "--cleanup", "--cg", fmt.Sprintf("-b%d", d.BoxID))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("isolate --cleanup box %d: %w", d.BoxID, err)
	}
	d.initialized = false
	return nil
}

func (d *Driver) buildArgs(spec RunSpec) []string {
	args := []string{fmt.Sprintf("-b%d", d.BoxID), "--cg", fmt.Sprintf("--meta=%s", d.metadataPath)}

	for _, env := range spec.Env {
		args = append(args, "-E", env)
	}
	for _, dir := range spec.BindDirs {
		args = append(args, fmt.Sprintf("--dir=%s", dir))
	}
	if spec.Processes > 0 {
		args = append(args, fmt.Sprintf("--processes=%d", spec.Processes))
	}
	if spec.OpenFiles > 0 {
		args = append(args, fmt.Sprintf("--open-files=%d", spec.OpenFiles))
	}
	if spec.FSizeKB > 0 {
		args = append(args, fmt.Sprintf("--fsize=%d", spec.FSizeKB))
	}
	if spec.WallTimeUs > 0 {
		args = append(args, fmt.Sprintf("--wall-time=%s", seconds(spec.WallTimeUs)))
	}
	if spec.CPUTimeUs > 0 {
		args = append(args, fmt.Sprintf("--time=%s", seconds(spec.CPUTimeUs)))
	}
	if spec.ExtraTimeUs > 0 {
		args = append(args, fmt.Sprintf("--extra-time=%s", seconds(spec.ExtraTimeUs)))
	}
	if spec.MemoryKB > 0 {
		args = append(args, fmt.Sprintf("--cg-mem=%d", spec.MemoryKB))
	}
	if spec.StackKB > 0 {
		args = append(args, fmt.Sprintf("--stack=%d", spec.StackKB))
	}
	if spec.StdinPath != "" {
		args = append(args, fmt.Sprintf("--stdin=%s", spec.StdinPath))
	}
	if spec.StdoutPath != "" {
		args = append(args, fmt.Sprintf("--stdout=%s", spec.StdoutPath))
	}
	if spec.StderrToStdout {
		args = append(args, "--stderr-to-stdout")
	}
	args = append(args, "--share-net", "--run", "--")
	args = append(args, spec.Argv...)
	return args
}

func seconds(us int64) string {
	return strconv.FormatFloat(float64(us)/1e6, 'f', 3, 64)
}

// parseMetaFile reads the isolate meta-report (a simple key:value text
// file). Missing file is reported to the caller, who maps it to
// InternalError per the meta-report interpretation table.
func parseMetaFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("meta-report missing: %w", err)
	}
	defer f.Close()

	meta := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			continue
		}
		meta[line[:idx]] = line[idx+1:]
	}
	return meta, scanner.Err()
}
