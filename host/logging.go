// Copyright 2021 Jonathan Amsterdam.

package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/kballard/go-shellquote"
)

// Extra levels accepted by LOG_MINLEVEL and LOG_MAXLEVEL.
const (
	LevelTrace = slog.LevelDebug - 4
	LevelFatal = slog.LevelError + 4
)

const (
	maxLogSize         = 1024 * 1000
	defaultArchiveDays = 15
	historyDirName     = "History"
	archiveTimeLayout  = "2006-01-02_15-04-05"
)

// logSettings are read from the configuration files.
type logSettings struct {
	min, max    slog.Level
	archiveDays int
	dir         string
	json        bool
}

func readLogSettings(p *Params, startDir string) (logSettings, error) {
	var s logSettings
	var err error
	if s.min, err = parseLevel(p.String("LOG_MINLEVEL", "info")); err != nil {
		return s, fmt.Errorf("LOG_MINLEVEL: %w", err)
	}
	if s.max, err = parseLevel(p.String("LOG_MAXLEVEL", "fatal")); err != nil {
		return s, fmt.Errorf("LOG_MAXLEVEL: %w", err)
	}
	if s.min > s.max {
		return s, fmt.Errorf("LOG_MINLEVEL %s is above LOG_MAXLEVEL %s", levelName(s.min), levelName(s.max))
	}
	s.archiveDays = p.Int("LOG_MAXARCHIVEDAYS", defaultArchiveDays)
	s.dir = p.String("LOGS", "Log")
	if !filepath.IsAbs(s.dir) {
		s.dir = filepath.Join(startDir, s.dir)
	}
	switch f := strings.ToLower(p.String("LOG_FORMAT", "text")); f {
	case "text":
	case "json":
		s.json = true
	default:
		return s, fmt.Errorf("LOG_FORMAT: unknown format %q", f)
	}
	return s, nil
}

// parseLevel accepts the slog level names plus trace and fatal.
func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace, nil
	case "fatal":
		return LevelFatal, nil
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, err
	}
	return l, nil
}

func levelName(l slog.Level) string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelFatal:
		return "FATAL"
	}
	return l.String()
}

// setupLogging creates app.Logger, writing to cfg.LogConsole and to
// <LogDir>/<app.Name>.log. If the file cannot be opened, logging goes to
// the console only. The returned function closes the file.
func setupLogging(app *App, cfg *Config) (func() error, error) {
	settings, err := readLogSettings(app.Params, cfg.StartDir)
	if err != nil {
		return nil, err
	}
	app.LogDir = settings.dir

	header := banner(app, cfg.Now())
	io.WriteString(cfg.LogConsole, header)

	var fileErr error
	var file *rotatingFile
	w := cfg.LogConsole
	file, fileErr = openRotatingFile(settings.dir, app.Name, settings.archiveDays, cfg.Now)
	if fileErr == nil {
		file.header = func() string { return banner(app, cfg.Now()) }
		if _, err := io.WriteString(file, header); err != nil {
			fileErr = err
			file.Close()
			file = nil
		} else {
			w = io.MultiWriter(cfg.LogConsole, file)
		}
	}

	hopts := &slog.HandlerOptions{
		Level: settings.min,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey && len(groups) == 0 {
				if l, ok := a.Value.Any().(slog.Level); ok {
					a.Value = slog.StringValue(levelName(l))
				}
			}
			return a
		},
	}
	var h slog.Handler
	if settings.json {
		h = slog.NewJSONHandler(w, hopts)
	} else {
		h = slog.NewTextHandler(w, hopts)
	}
	app.Logger = slog.New(&levelWindow{Handler: h, max: settings.max}).With("instance", app.InstanceID)
	app.Params.logger = app.Logger

	if fileErr != nil {
		app.Logger.Warn("log file unavailable, logging to console only", "dir", settings.dir, "err", fileErr)
	}
	if len(app.ConfigFiles) == 0 {
		app.Logger.Warn("no configuration files found", "start", cfg.StartDir)
	}
	return func() error {
		if file == nil {
			return nil
		}
		return file.Close()
	}, nil
}

// banner is written to the console at startup and at the top of each log file.
func banner(app *App, now time.Time) string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	files := "NONE"
	if len(app.ConfigFiles) > 0 {
		files = strings.Join(app.ConfigFiles, ", ")
	}
	rule := strings.Repeat("=", 80)
	var b strings.Builder
	fmt.Fprintln(&b, rule)
	for _, row := range [][2]string{
		{"Service Name", app.Name},
		{"Computer Name", host},
		{"PID", fmt.Sprint(os.Getpid())},
		{"OS", runtime.GOOS},
		{"OS Arch.", runtime.GOARCH},
		{"Go Ver.", runtime.Version()},
		{"Instance", app.InstanceID},
		{"Command Line", shellquote.Join(append([]string{app.Name}, app.Args...)...)},
		{"Config Files", files},
		{"LogFolder", app.LogDir},
		{"Started at", now.Format(time.RFC3339)},
	} {
		fmt.Fprintf(&b, "%-15s%s\n", row[0]+":", row[1])
	}
	fmt.Fprintln(&b, rule)
	return b.String()
}

// levelWindow drops records above max. The wrapped handler enforces the minimum.
type levelWindow struct {
	slog.Handler
	max slog.Level
}

func (h *levelWindow) Enabled(ctx context.Context, l slog.Level) bool {
	return l <= h.max && h.Handler.Enabled(ctx, l)
}

func (h *levelWindow) Handle(ctx context.Context, r slog.Record) error {
	if r.Level > h.max {
		return nil
	}
	return h.Handler.Handle(ctx, r)
}

func (h *levelWindow) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelWindow{Handler: h.Handler.WithAttrs(attrs), max: h.max}
}

func (h *levelWindow) WithGroup(name string) slog.Handler {
	return &levelWindow{Handler: h.Handler.WithGroup(name), max: h.max}
}

// rotatingFile appends to <dir>/<name>.log. When the file would grow past
// maxSize it is moved to <dir>/History and a fresh file is started.
// Archives older than archiveDays are removed after each rotation.
type rotatingFile struct {
	mu          sync.Mutex
	dir, name   string
	f           *os.File
	size        int64
	maxSize     int64
	archiveDays int
	now         func() time.Time
	header      func() string
}

func openRotatingFile(dir, name string, archiveDays int, now func() time.Time) (*rotatingFile, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	r := &rotatingFile{
		dir:         dir,
		name:        name,
		maxSize:     maxLogSize,
		archiveDays: archiveDays,
		now:         now,
	}
	if err := r.open(); err != nil {
		return nil, err
	}
	if r.size > r.maxSize {
		if err := r.rotate(); err != nil {
			r.f.Close()
			return nil, err
		}
	}
	return r, nil
}

func (r *rotatingFile) path() string {
	return filepath.Join(r.dir, r.name+".log")
}

func (r *rotatingFile) open() error {
	f, err := os.OpenFile(r.path(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	r.f = f
	r.size = fi.Size()
	return nil
}

func (r *rotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return 0, fs.ErrClosed
	}
	if r.size > 0 && r.size+int64(len(p)) > r.maxSize {
		if err := r.rotate(); err != nil {
			return 0, err
		}
		if r.header != nil {
			n, err := io.WriteString(r.f, r.header())
			r.size += int64(n)
			if err != nil {
				return 0, err
			}
		}
	}
	n, err := r.f.Write(p)
	r.size += int64(n)
	return n, err
}

func (r *rotatingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	return err
}

// rotate moves the current file to the history directory and reopens.
func (r *rotatingFile) rotate() error {
	if err := r.f.Close(); err != nil {
		return err
	}
	r.f = nil
	hist := filepath.Join(r.dir, historyDirName)
	if err := os.MkdirAll(hist, 0o755); err != nil {
		return err
	}
	base := fmt.Sprintf("%s_%s", r.name, r.now().Format(archiveTimeLayout))
	dst := filepath.Join(hist, base+".log")
	for i := 1; ; i++ {
		if _, err := os.Stat(dst); errors.Is(err, fs.ErrNotExist) {
			break
		}
		dst = filepath.Join(hist, fmt.Sprintf("%s_%d.log", base, i))
	}
	if err := os.Rename(r.path(), dst); err != nil {
		return err
	}
	if err := r.open(); err != nil {
		return err
	}
	return r.prune(hist)
}

// prune removes archives older than archiveDays. Zero or less keeps everything.
func (r *rotatingFile) prune(hist string) error {
	if r.archiveDays <= 0 {
		return nil
	}
	entries, err := os.ReadDir(hist)
	if err != nil {
		return err
	}
	cutoff := r.now().AddDate(0, 0, -r.archiveDays)
	prefix := r.name + "_"
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) || filepath.Ext(e.Name()) != ".log" {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		if fi.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(hist, e.Name())); err != nil {
				return err
			}
		}
	}
	return nil
}
