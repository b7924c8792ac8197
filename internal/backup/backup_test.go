package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanizio/cardeal/internal/database"
	"github.com/yanizio/cardeal/internal/jobqueue"
)

func seedDB(t *testing.T, path, note string) {
	t.Helper()
	db, err := database.OpenSQLiteFile(path)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(`CREATE TABLE notes (body TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO notes (body) VALUES (?)`, note)
	require.NoError(t, err)
}

func fixed(sources ...Source) SourceFunc {
	return func(context.Context) ([]Source, error) { return sources, nil }
}

func at(hour int) func() time.Time {
	return func() time.Time { return time.Date(2025, 6, 1, hour, 30, 0, 0, time.Local) }
}

func TestRunCopiesEverySource(t *testing.T) {
	dir := t.TempDir()
	master := filepath.Join(dir, "master.db")
	demo := filepath.Join(dir, "tenant_demo.db")
	seedDB(t, master, "m")
	seedDB(t, demo, "d")

	svc, err := New(Config{Dir: filepath.Join(dir, "backups"), RetentionDays: 7},
		fixed(Source{"master", master}, Source{"tenant_demo", demo}), WithClock(at(3)))
	require.NoError(t, err)

	res, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Copied, 2)
	assert.Equal(t, filepath.Join(dir, "backups", "tenant_demo_20250601_033000.db"), res.Copied[1])

	copyDB, err := database.OpenSQLiteFile(res.Copied[1])
	require.NoError(t, err)
	defer copyDB.Close()
	var body string
	require.NoError(t, copyDB.Get(&body, `SELECT body FROM notes`))
	assert.Equal(t, "d", body)

	files, err := svc.List()
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestRunContinuesPastFailedSource(t *testing.T) {
	dir := t.TempDir()
	ok := filepath.Join(dir, "ok.db")
	seedDB(t, ok, "x")

	svc, err := New(Config{Dir: filepath.Join(dir, "b")},
		fixed(Source{"missing", filepath.Join(dir, "nope.db")}, Source{"ok", ok}), WithClock(at(3)))
	require.NoError(t, err)

	res, err := svc.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"missing"}, res.Failed)
	assert.Len(t, res.Copied, 1)
}

func TestCleanupHonoursRetention(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "tenant_demo_20250101_030000.db")
	fresh := filepath.Join(dir, "tenant_demo_20250601_030000.db")
	other := filepath.Join(dir, "notes.txt")
	for _, p := range []string{old, fresh, other} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))
	}
	ten := time.Now().AddDate(0, 0, -10)
	require.NoError(t, os.Chtimes(old, ten, ten))
	require.NoError(t, os.Chtimes(other, ten, ten))

	svc, err := New(Config{Dir: dir, RetentionDays: 7}, fixed())
	require.NoError(t, err)
	n, err := svc.Cleanup()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)
	assert.FileExists(t, other, "non-backup files are left alone")

	keep, err := New(Config{Dir: dir}, fixed())
	require.NoError(t, err)
	n, err = keep.Cleanup()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTaskRunsOncePerDayInsideWindow(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "m.db")
	seedDB(t, src, "m")

	var calls atomic.Int32
	sources := func(context.Context) ([]Source, error) {
		calls.Add(1)
		return []Source{{"master", src}}, nil
	}
	hour := 10
	clock := func() time.Time { return time.Date(2025, 6, 1, hour, 0, 0, 0, time.Local) }
	svc, err := New(Config{Dir: filepath.Join(dir, "b"), WindowStart: 2, WindowEnd: 4}, sources, WithClock(clock))
	require.NoError(t, err)
	task := svc.Task()
	assert.Equal(t, TaskName, task.Name())

	require.NoError(t, task.Run(context.Background()))
	assert.Zero(t, calls.Load(), "outside window")

	hour = 2
	require.NoError(t, task.Run(context.Background()))
	assert.Equal(t, int32(1), calls.Load())

	hour = 4
	require.NoError(t, task.Run(context.Background()))
	assert.Equal(t, int32(1), calls.Load(), "already ran today")
}

func TestInWindowBounds(t *testing.T) {
	svc, err := New(Config{Dir: t.TempDir(), WindowStart: 2, WindowEnd: 4}, fixed())
	require.NoError(t, err)
	for h, want := range map[int]bool{1: false, 2: true, 4: true, 5: false} {
		assert.Equal(t, want, svc.InWindow(time.Date(2025, 1, 1, h, 59, 0, 0, time.Local)), h)
	}
}

type syncQueue struct{ n int }

func (q *syncQueue) Enqueue(_ string, fn jobqueue.Func) (string, error) {
	q.n++
	return "job", fn(context.Background())
}

type recordingUploader struct{ paths []string }

func (u *recordingUploader) Upload(_ context.Context, p string) error {
	u.paths = append(u.paths, p)
	return nil
}

func TestRunQueuesUploads(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "m.db")
	seedDB(t, src, "m")

	up := &recordingUploader{}
	q := &syncQueue{}
	svc, err := New(Config{Dir: filepath.Join(dir, "b")}, fixed(Source{"master", src}),
		WithClock(at(3)), WithUploader(up, q))
	require.NoError(t, err)

	res, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Queued)
	assert.Equal(t, res.Copied, up.paths)
}

func TestSourceListErrorAborts(t *testing.T) {
	boom := errors.New("master down")
	svc, err := New(Config{Dir: t.TempDir()}, func(context.Context) ([]Source, error) { return nil, boom })
	require.NoError(t, err)
	_, err = svc.Run(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{}, fixed())
	assert.Error(t, err)
	_, err = New(Config{Dir: "x"}, nil)
	assert.Error(t, err)
}
