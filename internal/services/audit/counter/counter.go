// Package counter drives the external HDFS row-counter subprocess
package counter

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	perr "hdfsaudit/internal/platform/errors"
	"hdfsaudit/internal/platform/logger"
	pstrings "hdfsaudit/internal/platform/strings"
	"hdfsaudit/internal/services/audit/domain"
)

// Capture and shutdown bounds
const (
	defaultMaxCaptureBytes = 8 << 20 // 8 MiB per stream
	stderrTailBytes        = 4 << 10
	killWaitDelay          = 5 * time.Second
	defaultDelimiter       = `\n`
)

// Options configures the counter driver
type Options struct {
	// JarPath locates the counter artifact; required
	JarPath string

	// JavaHome, when set, selects JavaHome/bin/java over PATH lookup
	JavaHome string

	// HadoopConfDir is passed to the subprocess via flag and environment
	HadoopConfDir string

	// Timeout bounds one invocation's wall clock; zero means unbounded
	// (run-level cancellation still applies)
	Timeout time.Duration

	// MaxCaptureBytes caps each captured stream
	MaxCaptureBytes int
}

// Driver launches and supervises one counter subprocess per job
type Driver struct {
	opt  Options
	java string
	log  *logger.Logger
}

var _ domain.Counter = (*Driver)(nil)

// New validates the jar path and builds a driver
func New(opt Options) (*Driver, error) {
	if opt.JarPath == "" {
		return nil, perr.Configf("counter jar path not provided, set --jar or HDFS_COUNTER_JAR")
	}
	if _, err := os.Stat(opt.JarPath); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeConfig, "counter jar not found: %s", opt.JarPath)
	}
	if opt.MaxCaptureBytes <= 0 {
		opt.MaxCaptureBytes = defaultMaxCaptureBytes
	}

	java := "java"
	if opt.JavaHome != "" {
		java = filepath.Join(opt.JavaHome, "bin", "java")
	}
	return &Driver{opt: opt, java: java, log: logger.Named("counter")}, nil
}

// Count runs the subprocess for one job and returns a normalized report.
// Failures never propagate as errors; they become failed reports
func (d *Driver) Count(ctx context.Context, job domain.AuditJob) domain.CountReport {
	args := []string{
		"-jar", d.opt.JarPath,
		"--path", job.HDFSPath,
		"--format", job.Format,
		"--threads", strconv.Itoa(job.Threads),
	}
	if job.Format == "textfile" {
		delim := job.Delimiter
		if delim == "" {
			delim = defaultDelimiter
		}
		args = append(args, "--delimiter", delim)
	}
	if d.opt.HadoopConfDir != "" {
		args = append(args, "--hadoop-conf", d.opt.HadoopConfDir)
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if d.opt.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, d.opt.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, d.java, args...)
	cmd.Env = os.Environ()
	if d.opt.HadoopConfDir != "" {
		cmd.Env = append(cmd.Env, "HADOOP_CONF_DIR="+d.opt.HadoopConfDir)
	}

	stdout := &capWriter{max: d.opt.MaxCaptureBytes}
	stderr := &capWriter{max: d.opt.MaxCaptureBytes}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	// the jar forks worker JVM threads; kill the whole group on cancellation
	// so nothing keeps counting after the run is gone
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = killWaitDelay

	d.log.Info().
		Str("table", job.TableName).
		Str("path", job.HDFSPath).
		Str("format", job.Format).
		Int("threads", job.Threads).
		Msg("launching counter")

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start).Milliseconds()

	if runCtx.Err() != nil {
		msg := fmt.Sprintf("cancelled: %v", runCtx.Err())
		if d.opt.Timeout > 0 && runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			msg = fmt.Sprintf("timeout after %s", d.opt.Timeout)
		}
		d.log.Error().Str("path", job.HDFSPath).Msg(msg)
		return domain.FailedCount(job.HDFSPath, msg, elapsed)
	}

	exitCode := 0
	if runErr != nil {
		if ee, ok := runErr.(*exec.ExitError); ok {
			exitCode = ee.ExitCode()
		} else {
			msg := fmt.Sprintf("launch failed: %v", runErr)
			d.log.Error().Str("path", job.HDFSPath).Msg(msg)
			return domain.FailedCount(job.HDFSPath, msg, elapsed)
		}
	}

	if tail := stderr.Tail(stderrTailBytes); tail != "" {
		d.log.Warn().Str("path", job.HDFSPath).Str("stderr", tail).Msg("counter stderr")
	}

	report, ok := extractReport(stdout.Bytes())
	if !ok {
		msg := fmt.Sprintf("invalid JSON output, exit code %d", exitCode)
		if tail := stderr.Tail(stderrTailBytes); tail != "" {
			msg += "; stderr: " + tail
		}
		d.log.Error().Str("path", job.HDFSPath).Int("exit_code", exitCode).Msg("counter output unparseable")
		return domain.FailedCount(job.HDFSPath, msg, elapsed)
	}

	if report.Path == "" {
		report.Path = job.HDFSPath
	}
	if report.DurationMS == 0 {
		report.DurationMS = elapsed
	}

	// the JSON status is authoritative; the exit code only corroborates it
	if advisory := statusFromExit(exitCode); advisory != report.Status {
		d.log.Warn().
			Str("path", job.HDFSPath).
			Int("exit_code", exitCode).
			Str("json_status", report.Status).
			Msg("exit code disagrees with report status, trusting JSON")
	}

	d.log.Info().
		Str("path", job.HDFSPath).
		Int64("rows", report.RowCount).
		Int("files", report.FileCount).
		Str("status", report.Status).
		Int("exit_code", exitCode).
		Msg("count finished")
	return report
}

// statusFromExit maps the advisory exit code to a report status
func statusFromExit(code int) string {
	switch code {
	case 0:
		return domain.StatusSuccess
	case 2:
		return domain.StatusPartial
	default:
		return domain.StatusFailed
	}
}

// capWriter buffers up to max bytes and discards the rest, reporting the
// full length so the child never blocks on a full pipe
type capWriter struct {
	buf       []byte
	max       int
	truncated bool
}

func (w *capWriter) Write(p []byte) (int, error) {
	n := len(p)
	room := w.max - len(w.buf)
	if room <= 0 {
		if n > 0 {
			w.truncated = true
		}
		return n, nil
	}
	if n > room {
		p = p[:room]
		w.truncated = true
	}
	w.buf = append(w.buf, p...)
	return n, nil
}

func (w *capWriter) Bytes() []byte { return w.buf }

// Tail returns the last n bytes as a trimmed string
func (w *capWriter) Tail(n int) string {
	return strings.TrimSpace(pstrings.Tail(string(w.buf), n))
}
