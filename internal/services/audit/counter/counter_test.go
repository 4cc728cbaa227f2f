package counter

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"hdfsaudit/internal/platform/testkit"
	"hdfsaudit/internal/services/audit/domain"
)

// fakeJava installs a stub java binary under a JAVA_HOME layout and returns
// the home dir. The stub records its arguments to $ARGS_OUT when set
func fakeJava(t *testing.T, script string) string {
	t.Helper()
	home := t.TempDir()
	bin := filepath.Join(home, "bin")
	if err := os.MkdirAll(bin, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	full := "#!/bin/sh\n" + `if [ -n "$ARGS_OUT" ]; then printf '%s\n' "$@" > "$ARGS_OUT"; fi` + "\n" + script
	if err := os.WriteFile(filepath.Join(bin, "java"), []byte(full), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return home
}

func fakeJar(t *testing.T) string {
	t.Helper()
	return testkit.WriteFile(t, t.TempDir(), "hdfs-counter.jar", "PK")
}

func testJob() domain.AuditJob {
	return domain.AuditJob{
		TaskName:  "dw_user_daily",
		TableName: "dw.user_daily",
		HDFSPath:  "/warehouse/dw/user_daily/dt=20260116",
		Format:    "orc",
		Threads:   4,
		Period:    domain.DailyPeriod("20260116"),
	}
}

func TestNew_RequiresJar(t *testing.T) {
	t.Parallel()

	if _, err := New(Options{}); err == nil {
		t.Fatalf("expected error without jar path")
	}
	if _, err := New(Options{JarPath: "/no/such/file.jar"}); err == nil {
		t.Fatalf("expected error for missing jar")
	}
}

func TestCount_SuccessWithLogNoise(t *testing.T) {
	home := fakeJava(t, `
echo "2026-01-17 13:02:01 INFO starting"
echo '{"row_count":42,"file_count":3,"success_file_count":3,"total_size_bytes":1000,"status":"success","duration_ms":9}'
exit 0
`)
	d, err := New(Options{JarPath: fakeJar(t), JavaHome: home})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	argsOut := filepath.Join(t.TempDir(), "args.txt")
	t.Setenv("ARGS_OUT", argsOut)

	rep := d.Count(context.Background(), testJob())
	if rep.Status != domain.StatusSuccess || rep.RowCount != 42 {
		t.Fatalf("report = %+v", rep)
	}

	args, _ := os.ReadFile(argsOut)
	got := string(args)
	testkit.MustContain(t, got, "--path")
	testkit.MustContain(t, got, "/warehouse/dw/user_daily/dt=20260116")
	testkit.MustContain(t, got, "--format")
	testkit.MustContain(t, got, "--threads")
	if strings.Contains(got, "--delimiter") {
		t.Fatalf("delimiter must not be passed for orc: %s", got)
	}
}

func TestCount_TextfileGetsDelimiter(t *testing.T) {
	home := fakeJava(t, `echo '{"row_count":1,"status":"success"}'`)
	d, err := New(Options{JarPath: fakeJar(t), JavaHome: home})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	argsOut := filepath.Join(t.TempDir(), "args.txt")
	t.Setenv("ARGS_OUT", argsOut)

	job := testJob()
	job.Format = "textfile"
	job.Delimiter = `\n`
	if rep := d.Count(context.Background(), job); rep.Status != domain.StatusSuccess {
		t.Fatalf("report = %+v", rep)
	}

	args, _ := os.ReadFile(argsOut)
	testkit.MustContain(t, string(args), "--delimiter")
}

func TestCount_HadoopConfPassedThrough(t *testing.T) {
	home := fakeJava(t, `echo '{"row_count":1,"status":"success"}'`)
	d, err := New(Options{JarPath: fakeJar(t), JavaHome: home, HadoopConfDir: "/etc/hadoop/conf"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	argsOut := filepath.Join(t.TempDir(), "args.txt")
	t.Setenv("ARGS_OUT", argsOut)

	if rep := d.Count(context.Background(), testJob()); rep.Status != domain.StatusSuccess {
		t.Fatalf("report = %+v", rep)
	}
	args, _ := os.ReadFile(argsOut)
	testkit.MustContain(t, string(args), "--hadoop-conf")
	testkit.MustContain(t, string(args), "/etc/hadoop/conf")
}

func TestCount_NonJSONFailureCarriesStderr(t *testing.T) {
	t.Parallel()

	home := fakeJava(t, `
echo "Exception in thread main java.io.IOException: no such path" >&2
exit 1
`)
	d, err := New(Options{JarPath: fakeJar(t), JavaHome: home})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rep := d.Count(context.Background(), testJob())
	if rep.Status != domain.StatusFailed || rep.RowCount != -1 {
		t.Fatalf("report = %+v", rep)
	}
	testkit.MustContain(t, rep.ErrorJSON(), "no such path")
}

func TestCount_JSONWinsOverExitCode(t *testing.T) {
	t.Parallel()

	// subprocess says partial in JSON but exits 0; the JSON is authoritative
	home := fakeJava(t, `
echo '{"row_count":5,"status":"partial","errors":[{"path":"/p","message":"bad stripe"}]}'
exit 0
`)
	d, err := New(Options{JarPath: fakeJar(t), JavaHome: home})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rep := d.Count(context.Background(), testJob())
	if rep.Status != domain.StatusPartial || rep.RowCount != 5 {
		t.Fatalf("report = %+v", rep)
	}
}

func TestCount_Timeout(t *testing.T) {
	t.Parallel()

	home := fakeJava(t, `sleep 10`)
	d, err := New(Options{JarPath: fakeJar(t), JavaHome: home, Timeout: 150 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	start := time.Now()
	rep := d.Count(context.Background(), testJob())
	if time.Since(start) > 5*time.Second {
		t.Fatalf("timeout did not fire promptly")
	}
	if rep.Status != domain.StatusFailed || rep.RowCount != -1 {
		t.Fatalf("report = %+v", rep)
	}
	testkit.MustContain(t, rep.ErrorJSON(), "timeout")
}

func TestCount_Cancellation(t *testing.T) {
	t.Parallel()

	home := fakeJava(t, `sleep 10`)
	d, err := New(Options{JarPath: fakeJar(t), JavaHome: home})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	rep := d.Count(ctx, testJob())
	if rep.Status != domain.StatusFailed {
		t.Fatalf("report = %+v", rep)
	}
	testkit.MustContain(t, rep.ErrorJSON(), "cancelled")
}

func TestCount_DurationFilledWhenMissing(t *testing.T) {
	t.Parallel()

	home := fakeJava(t, `sleep 0.05; echo '{"row_count":1,"status":"success"}'`)
	d, err := New(Options{JarPath: fakeJar(t), JavaHome: home})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rep := d.Count(context.Background(), testJob())
	if rep.DurationMS <= 0 {
		t.Fatalf("duration_ms = %d, want measured elapsed", rep.DurationMS)
	}
}
