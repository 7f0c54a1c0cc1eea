package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"deepstore-hq/deepstore/pkg/archive"
	"deepstore-hq/deepstore/pkg/collect"
	"deepstore-hq/deepstore/pkg/history"
	"deepstore-hq/deepstore/pkg/lock"
	"deepstore-hq/deepstore/pkg/notify"
	"deepstore-hq/deepstore/pkg/retention"
)

var testCodec = archive.MustCodec("archive_", "YYYY-MM-DD")

type fakeDumper struct {
	err error
}

func (d *fakeDumper) Name() string { return "fake" }

func (d *fakeDumper) Dump(_ context.Context, dir string) (string, error) {
	if d.err != nil {
		return "", d.err
	}
	path := filepath.Join(dir, "app.sql")
	return path, os.WriteFile(path, []byte("CREATE TABLE users (id INT);\n"), 0o644)
}

type fakeTransport struct {
	mu        sync.Mutex
	files     map[string]bool
	uploadErr error
	listErr   error
	closed    bool
}

func newFakeTransport(names ...string) *fakeTransport {
	t := &fakeTransport{files: map[string]bool{}}
	for _, n := range names {
		t.files[n] = true
	}
	return t
}

func (t *fakeTransport) Name() string { return "remote" }

func (t *fakeTransport) Upload(_ context.Context, localPath, name string) error {
	if t.uploadErr != nil {
		return t.uploadErr
	}
	if _, err := os.Stat(localPath); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.files[name] = true
	return nil
}

func (t *fakeTransport) List(context.Context) ([]string, error) {
	if t.listErr != nil {
		return nil, t.listErr
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	var names []string
	for n := range t.files {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (t *fakeTransport) Delete(_ context.Context, name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.files, name)
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *fakeTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// blockingDumper holds the dump stage open until release is closed.
type blockingDumper struct {
	started chan struct{}
	release chan struct{}
}

func (d *blockingDumper) Name() string { return "blocking" }

func (d *blockingDumper) Dump(_ context.Context, dir string) (string, error) {
	close(d.started)
	<-d.release
	path := filepath.Join(dir, "app.sql")
	return path, os.WriteFile(path, []byte("--\n"), 0o644)
}

func (t *fakeTransport) names() []string {
	names, _ := t.List(context.Background())
	return names
}

type recordingNotifier struct {
	events []notify.Event
}

func (n *recordingNotifier) Notify(_ context.Context, e notify.Event) error {
	n.events = append(n.events, e)
	return errors.New("webhook unreachable")
}

type fakeHistory struct {
	runs   []history.Run
	pruned []time.Time
}

func (h *fakeHistory) Record(_ context.Context, r history.Run) error {
	h.runs = append(h.runs, r)
	return nil
}

func (h *fakeHistory) Prune(_ context.Context, cutoff time.Time) (int64, error) {
	h.pruned = append(h.pruned, cutoff)
	return 0, nil
}

type fakeMetrics struct {
	mu      sync.Mutex
	runs    []string
	stages  map[string]int
	skipped int
}

func (m *fakeMetrics) RecordRun(status string, _ time.Duration, _ int64, _ time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, status)
}

func (m *fakeMetrics) RecordStage(stage string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stages == nil {
		m.stages = map[string]int{}
	}
	m.stages[stage]++
}

func (m *fakeMetrics) RecordSkipped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skipped++
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func tarEntries(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	tr := tar.NewReader(gz)
	var names []string
	for {
		h, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		names = append(names, h.Name)
	}
	return names
}

type fixture struct {
	runner    *Runner
	root      string
	backupDir string
	transport *fakeTransport
	notifier  *recordingNotifier
	history   *fakeHistory
	metrics   *fakeMetrics
}

// newFixture builds a runner whose backup directory lives inside the
// source tree and already holds three older archives.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	backupDir := filepath.Join(root, "backups")

	writeFile(t, filepath.Join(root, "app", "invoice.pdf"), "pdf")
	writeFile(t, filepath.Join(root, "logs", "laravel.log"), "log")
	for _, d := range []string{"2024-03-05", "2024-03-06", "2024-03-07"} {
		writeFile(t, filepath.Join(backupDir, "archive_"+d+".tar.gz"), "old")
	}

	f := &fixture{
		root:      root,
		backupDir: backupDir,
		transport: newFakeTransport("archive_2024-03-01.tar.gz", "archive_2024-03-02.tar.gz", "archive_2024-03-03.tar.gz"),
		notifier:  &recordingNotifier{},
		history:   &fakeHistory{},
		metrics:   &fakeMetrics{},
	}

	policy := retention.Policy{LatestToKeep: 2}
	f.runner = &Runner{
		BackupDir:        backupDir,
		SourceDir:        root,
		CommandName:      "deepstore:store",
		Codec:            testCodec,
		CompressionLevel: -1,
		Dumper:           &fakeDumper{},
		Collector: collect.New(collect.Rules{
			ExcludeDirectories: []string{"logs"},
			SkipPaths:          []string{backupDir},
		}, quietLogger()),
		Transport:       f.transport,
		Retention:       retention.NewEnforcer(testCodec, policy, quietLogger()),
		RemoteRetention: true,
		Locker:          lock.NewFile(filepath.Join(backupDir, ".deepstore.lock"), time.Hour),
		Notifier:        f.notifier,
		History:         f.history,
		HistoryMaxAge:   24 * time.Hour,
		Metrics:         f.metrics,
		Logger:          quietLogger(),
		Now: func() time.Time {
			return time.Date(2024, 3, 10, 2, 0, 0, 0, time.UTC)
		},
	}
	return f
}

func TestRunner_Run(t *testing.T) {
	f := newFixture(t)

	report, err := f.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if report.Status != StatusSuccess || !report.Created || !report.Uploaded {
		t.Errorf("report = %+v", report)
	}
	if report.Archive != "archive_2024-03-10.tar.gz" {
		t.Errorf("Archive = %q", report.Archive)
	}
	if report.ArchiveSize <= 0 {
		t.Errorf("ArchiveSize = %d", report.ArchiveSize)
	}

	want := []string{"archive_2024-03-07.tar.gz", "archive_2024-03-10.tar.gz"}
	got := listDir(t, f.backupDir)
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("backup dir = %v, want %v", got, want)
	}

	remote := f.transport.names()
	wantRemote := []string{"archive_2024-03-03.tar.gz", "archive_2024-03-10.tar.gz"}
	if strings.Join(remote, ",") != strings.Join(wantRemote, ",") {
		t.Errorf("remote = %v, want %v", remote, wantRemote)
	}

	entries := strings.Join(tarEntries(t, report.ArchivePath), "\n")
	if !strings.Contains(entries, "sql/app.sql") || !strings.Contains(entries, "storage/app/invoice.pdf") {
		t.Errorf("archive entries missing dump or files:\n%s", entries)
	}
	if strings.Contains(entries, "backups") || strings.Contains(entries, "laravel.log") {
		t.Errorf("archive contains skipped paths:\n%s", entries)
	}

	if len(f.notifier.events) != 1 {
		t.Fatalf("notifications = %d, want 1", len(f.notifier.events))
	}
	ev := f.notifier.events[0]
	if ev.Status != notify.StatusSuccess || ev.Command != "deepstore:store" || ev.Archive != report.Archive || ev.RunID != report.RunID {
		t.Errorf("event = %+v", ev)
	}
	if ev.Time != "2024-03-10 02:00:00" {
		t.Errorf("event time = %q", ev.Time)
	}

	if len(f.history.runs) != 1 {
		t.Fatalf("history runs = %d", len(f.history.runs))
	}
	run := f.history.runs[0]
	if run.Status != StatusSuccess || run.LocalDeleted != 2 || run.RemoteDeleted != 2 || !run.Uploaded {
		t.Errorf("history run = %+v", run)
	}
	if len(f.history.pruned) != 1 {
		t.Errorf("history pruned %d times", len(f.history.pruned))
	}

	for _, stage := range []string{StagePrepare, StageDump, StageCollect, StageArchive, StageUpload, StageRetentionLocal, StageRetentionRemote} {
		if _, ok := report.Stages[stage]; !ok {
			t.Errorf("stage %s not recorded", stage)
		}
		if f.metrics.stages[stage] != 1 {
			t.Errorf("metrics stage %s = %d", stage, f.metrics.stages[stage])
		}
	}
	if len(f.metrics.runs) != 1 || f.metrics.runs[0] != StatusSuccess {
		t.Errorf("metrics runs = %v", f.metrics.runs)
	}
}

func TestRunner_DumpFailure(t *testing.T) {
	f := newFixture(t)
	f.runner.Dumper = &fakeDumper{err: errors.New("mysqldump: access denied")}

	report, err := f.runner.Run(context.Background())

	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageDump {
		t.Fatalf("Run() error = %v, want dump StageError", err)
	}
	if !strings.HasPrefix(err.Error(), "database dump failed") {
		t.Errorf("error message = %q", err.Error())
	}
	if report.Status != StatusFailed || report.Created {
		t.Errorf("report = %+v", report)
	}

	// No archive was created, so retention must not touch anything.
	got := listDir(t, f.backupDir)
	if len(got) != 3 {
		t.Errorf("backup dir = %v, want the three old archives", got)
	}
	if len(f.transport.names()) != 3 {
		t.Error("remote archives changed after failed dump")
	}

	if len(f.notifier.events) != 1 || f.notifier.events[0].Status != notify.StatusFailed {
		t.Errorf("events = %+v", f.notifier.events)
	}
	if f.notifier.events[0].Archive != "" {
		t.Error("failed event names an archive that was never created")
	}
	if len(f.history.runs) != 1 || f.history.runs[0].Error == "" {
		t.Errorf("history = %+v", f.history.runs)
	}
}

func TestRunner_UploadFailure(t *testing.T) {
	f := newFixture(t)
	f.transport.uploadErr = errors.New("connection refused")

	report, err := f.runner.Run(context.Background())
	if err == nil || !strings.HasPrefix(err.Error(), "remote transfer failed") {
		t.Fatalf("Run() error = %v", err)
	}
	if !report.Created || report.Uploaded {
		t.Errorf("report = %+v", report)
	}
	if _, err := os.Stat(report.ArchivePath); err != nil {
		t.Errorf("local archive missing after failed upload: %v", err)
	}

	// Local retention still runs because the archive exists.
	if report.LocalRetention == nil || len(report.LocalRetention.Deleted) != 2 {
		t.Errorf("local retention = %+v", report.LocalRetention)
	}
	if report.RemoteRetention != nil {
		t.Error("remote retention ran without a successful upload")
	}
	if len(f.transport.names()) != 3 {
		t.Error("remote archives changed after failed upload")
	}
}

func TestRunner_RetentionErrorsDoNotFailRun(t *testing.T) {
	f := newFixture(t)
	f.transport.listErr = errors.New("ssh: handshake failed")

	report, err := f.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Status != StatusSuccess {
		t.Errorf("Status = %s", report.Status)
	}
	if len(report.RetentionErrors) != 1 || !strings.Contains(report.RetentionErrors[0], "remote retention failed") {
		t.Errorf("RetentionErrors = %v", report.RetentionErrors)
	}
	if f.history.runs[0].RetentionErrors == "" {
		t.Error("retention errors not recorded in history")
	}
}

func TestRunner_Locked(t *testing.T) {
	f := newFixture(t)

	release, err := f.runner.Locker.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer release(context.Background())

	report, err := f.runner.Run(context.Background())
	if !errors.Is(err, lock.ErrLocked) {
		t.Fatalf("Run() error = %v, want ErrLocked", err)
	}
	if report.Status != StatusSkipped {
		t.Errorf("Status = %s", report.Status)
	}
	if len(f.notifier.events) != 0 {
		t.Error("skipped run sent a notification")
	}
	if f.metrics.skipped != 1 || len(f.metrics.runs) != 0 {
		t.Errorf("metrics skipped=%d runs=%v", f.metrics.skipped, f.metrics.runs)
	}
	if len(f.history.runs) != 1 || f.history.runs[0].Status != StatusSkipped {
		t.Errorf("history = %+v", f.history.runs)
	}
	if len(listDir(t, f.backupDir)) != 4 {
		t.Error("skipped run touched the backup directory")
	}
}

func TestRunner_RemovesStaging(t *testing.T) {
	for _, dumpErr := range []error{nil, errors.New("boom")} {
		f := newFixture(t)
		f.runner.Dumper = &fakeDumper{err: dumpErr}
		f.runner.Run(context.Background())

		for _, name := range listDir(t, f.backupDir) {
			if strings.HasPrefix(name, "temp_") {
				t.Errorf("staging directory %s left behind (dump error %v)", name, dumpErr)
			}
		}
	}
}

func TestRunner_NoRemote(t *testing.T) {
	f := newFixture(t)
	f.runner.Transport = nil

	report, err := f.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Uploaded || report.RemoteRetention != nil {
		t.Errorf("report = %+v", report)
	}
	if _, ok := report.Stages[StageUpload]; ok {
		t.Error("upload stage ran without a transport")
	}
}

func TestRunner_RetentionDisabled(t *testing.T) {
	f := newFixture(t)
	f.runner.Retention = nil

	if _, err := f.runner.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := listDir(t, f.backupDir); len(got) != 4 {
		t.Errorf("backup dir = %v, want the three old archives and the new one", got)
	}
}

func TestReport_HistoryRun(t *testing.T) {
	start := time.Date(2024, 3, 10, 2, 0, 0, 0, time.UTC)
	r := &Report{
		RunID:           "id",
		Command:         "deepstore:store",
		Status:          StatusFailed,
		StartedAt:       start,
		FinishedAt:      start.Add(90 * time.Second),
		Duration:        90 * time.Second,
		Archive:         "archive_2024-03-10.tar.gz",
		RetentionErrors: []string{"a", "b"},
		Error:           "remote transfer failed: timeout",
	}

	run := r.HistoryRun()
	if run.Archive != "" {
		t.Error("archive recorded although it was never created")
	}
	if run.DurationMS != 90000 || run.RetentionErrors != "a; b" || run.Error != r.Error {
		t.Errorf("run = %+v", run)
	}

	r.Created = true
	if r.HistoryRun().Archive != r.Archive {
		t.Error("created archive not recorded")
	}
}

func TestStageError(t *testing.T) {
	cause := errors.New("exit status 2")
	tests := []struct {
		stage string
		want  string
	}{
		{StageDump, "database dump failed: exit status 2"},
		{StageArchive, "could not create tar.gz archive: exit status 2"},
		{StageUpload, "remote transfer failed: exit status 2"},
		{"custom", "custom failed: exit status 2"},
	}
	for _, tt := range tests {
		err := &StageError{Stage: tt.stage, Err: cause}
		if err.Error() != tt.want {
			t.Errorf("Error() = %q, want %q", err.Error(), tt.want)
		}
		if !errors.Is(err, cause) {
			t.Error("StageError does not unwrap")
		}
	}
}

func TestRunner_RetireWaitsForRun(t *testing.T) {
	f := newFixture(t)
	d := &blockingDumper{started: make(chan struct{}), release: make(chan struct{})}
	f.runner.Dumper = d

	runDone := make(chan struct{})
	go func() {
		f.runner.Run(context.Background())
		close(runDone)
	}()
	<-d.started

	retired := make(chan error, 1)
	go func() { retired <- f.runner.Retire() }()

	select {
	case <-retired:
		t.Fatal("Retire() returned while a run was in progress")
	case <-time.After(100 * time.Millisecond):
	}
	if f.transport.isClosed() {
		t.Fatal("transport closed during an in-flight run")
	}

	close(d.release)
	<-runDone

	select {
	case err := <-retired:
		if err != nil {
			t.Fatalf("Retire() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Retire() did not return after the run finished")
	}
	if !f.transport.isClosed() {
		t.Error("transport not closed after Retire()")
	}
}
