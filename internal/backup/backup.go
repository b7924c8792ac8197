// internal/backup/backup.go
//
// Daily database snapshots.
//
// Context
// -------
// Every SQLite database the runtime owns (the master registry when it is a
// SQLite file, plus one file per active tenant) is copied into the backup
// directory as `<name>_<YYYYMMDD_HHMMSS>.db`.  Copies are taken with
// `VACUUM INTO`, which produces a consistent snapshot even while request
// traffic holds the source open in WAL mode.  Files older than the
// retention period are deleted after each run.
//
// The maintenance task fires hourly but copies at most once per calendar
// day, and only while the local hour is inside [WindowStart, WindowEnd].
// When an Uploader is configured, each fresh copy is handed to the job
// queue so network I/O never holds the scheduler tick.
//
// Notes
// -----
//   - RetentionDays <= 0 keeps everything.
//   - A failed source does not stop the others; the run reports every
//     failure joined into one error.
package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/cardeal/internal/database"
	"github.com/yanizio/cardeal/internal/jobqueue"
	"github.com/yanizio/cardeal/internal/logger"
	"github.com/yanizio/cardeal/internal/scheduler"
)

// TaskName is the scheduler name of the daily backup.
const TaskName = "daily_backup"

const stampLayout = "20060102_150405"

// Source is one database to copy.  Name becomes the file prefix.
type Source struct {
	Name string
	Path string
}

// SourceFunc lists the databases to copy on each run.
type SourceFunc func(ctx context.Context) ([]Source, error)

// Uploader ships a finished backup file off-site.
type Uploader interface {
	Upload(ctx context.Context, path string) error
}

// Enqueuer is the part of jobqueue.Queue the service needs.
type Enqueuer interface {
	Enqueue(name string, fn jobqueue.Func) (string, error)
}

// Config controls where and when copies are made.
type Config struct {
	Dir           string
	RetentionDays int
	WindowStart   int
	WindowEnd     int
}

// Result summarises one run.
type Result struct {
	Copied  []string `json:"copied"`
	Failed  []string `json:"failed"`
	Removed int      `json:"removed"`
	Queued  int      `json:"queued"`
}

// File describes one backup on disk.
type File struct {
	Name    string    `json:"name"`
	Path    string    `json:"-"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"created_at"`
}

// Service takes and prunes backups.  Construct with New.
type Service struct {
	cfg      Config
	sources  SourceFunc
	now      func() time.Time
	log      *zap.SugaredLogger
	uploader Uploader
	queue    Enqueuer

	mu      sync.Mutex
	lastDay string
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithLogger sets the logger.
func WithLogger(l *zap.SugaredLogger) Option { return func(s *Service) { s.log = logger.OrNop(l) } }

// WithUploader ships each new copy through u on queue q.
func WithUploader(u Uploader, q Enqueuer) Option {
	return func(s *Service) { s.uploader, s.queue = u, q }
}

// New returns a Service writing into cfg.Dir.
func New(cfg Config, sources SourceFunc, opts ...Option) (*Service, error) {
	if cfg.Dir == "" {
		return nil, errors.New("backup: dir required")
	}
	if sources == nil {
		return nil, errors.New("backup: source func required")
	}
	s := &Service{cfg: cfg, sources: sources, now: time.Now, log: zap.NewNop().Sugar()}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// InWindow reports whether t's local hour is inside the backup window.
func (s *Service) InWindow(t time.Time) bool {
	h := t.Hour()
	return h >= s.cfg.WindowStart && h <= s.cfg.WindowEnd
}

// Task returns the scheduler task.  It skips silently outside the window
// and after a successful copy earlier the same day.
func (s *Service) Task() scheduler.Task {
	return scheduler.TaskFunc(TaskName, func(ctx context.Context) error {
		now := s.now()
		day := now.Format("2006-01-02")

		s.mu.Lock()
		done := s.lastDay == day
		s.mu.Unlock()
		if done || !s.InWindow(now) {
			return nil
		}

		res, err := s.Run(ctx)
		if len(res.Copied) > 0 {
			s.mu.Lock()
			s.lastDay = day
			s.mu.Unlock()
		}
		return err
	})
}

// Run copies every source, prunes old files, and queues uploads.
func (s *Service) Run(ctx context.Context) (Result, error) {
	var res Result
	if err := os.MkdirAll(s.cfg.Dir, 0o750); err != nil {
		return res, fmt.Errorf("backup: dir: %w", err)
	}
	srcs, err := s.sources(ctx)
	if err != nil {
		return res, fmt.Errorf("backup: list sources: %w", err)
	}

	stamp := s.now().Format(stampLayout)
	var errs []error
	for _, src := range srcs {
		dst := filepath.Join(s.cfg.Dir, fmt.Sprintf("%s_%s.db", src.Name, stamp))
		if err := Snapshot(ctx, src.Path, dst); err != nil {
			res.Failed = append(res.Failed, src.Name)
			errs = append(errs, fmt.Errorf("%s: %w", src.Name, err))
			s.log.Errorw("backup failed", "source", src.Name, "err", err)
			continue
		}
		res.Copied = append(res.Copied, dst)
	}

	removed, err := s.Cleanup()
	res.Removed = removed
	if err != nil {
		errs = append(errs, err)
	}

	if s.uploader != nil && s.queue != nil {
		for _, p := range res.Copied {
			p := p // per-iteration copy; module targets go1.21 loop semantics
			_, err := s.queue.Enqueue("backup_upload", func(ctx context.Context) error {
				return s.uploader.Upload(ctx, p)
			})
			if err != nil {
				errs = append(errs, fmt.Errorf("queue upload %s: %w", filepath.Base(p), err))
				continue
			}
			res.Queued++
		}
	}

	s.log.Infow("backup finished",
		"copied", len(res.Copied), "failed", len(res.Failed),
		"removed", res.Removed, "queued", res.Queued)
	return res, errors.Join(errs...)
}

// Cleanup deletes backups older than the retention period.
func (s *Service) Cleanup() (int, error) {
	if s.cfg.RetentionDays <= 0 {
		return 0, nil
	}
	cutoff := s.now().AddDate(0, 0, -s.cfg.RetentionDays)
	files, err := s.List()
	if err != nil {
		return 0, err
	}
	n := 0
	var errs []error
	for _, f := range files {
		if !f.ModTime.Before(cutoff) {
			continue
		}
		if err := os.Remove(f.Path); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

// List returns the backups on disk, newest name first.
func (s *Service) List() ([]File, error) {
	entries, err := os.ReadDir(s.cfg.Dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("backup: read dir: %w", err)
	}
	var out []File
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".db") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, File{
			Name:    e.Name(),
			Path:    filepath.Join(s.cfg.Dir, e.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name > out[j].Name })
	return out, nil
}

// Snapshot writes a consistent copy of the SQLite database at src to dst.
// dst must not exist.
func Snapshot(ctx context.Context, src, dst string) error {
	if _, err := os.Stat(src); err != nil {
		return err
	}
	db, err := database.OpenSQLiteFile(src)
	if err != nil {
		return err
	}
	defer db.Close()
	if _, err := db.ExecContext(ctx, `VACUUM INTO ?`, dst); err != nil {
		return fmt.Errorf("vacuum into: %w", err)
	}
	return nil
}
