package scopedb

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig configures NewLogger. Zero values take the defaults noted.
type LogConfig struct {
	// Level: debug, info, warn or error. LOG_LEVEL overrides it.
	// Default: info in development and test, error in production.
	Level string

	// Directory for rotated log files (production only). Default: logs.
	Directory string

	MaxSizeMB  int // Default: 100
	MaxBackups int // Default: 3
	MaxAgeDays int // Default: 28

	// AppName names the log file. Default: app.
	AppName string

	// Output replaces stdout. Used by tests.
	Output io.Writer
}

// LogConfigProvider is implemented by configs that carry log settings.
// config.Config implements it.
type LogConfigProvider interface {
	GetLogLevel() string
	GetLogDirectory() string
	GetLogMaxSizeMB() int
	GetLogMaxBackups() int
	GetLogMaxAgeDays() int
	GetAppName() string
}

// NewLogger creates the application logger.
//
// Development and test log colored text to stdout. Production logs JSON to
// stdout and to a lumberjack-rotated file. When logCfg is nil the settings
// come from cfg if it implements LogConfigProvider.
func NewLogger(cfg Config, logCfg *LogConfig) *slog.Logger {
	if logCfg == nil {
		logCfg = &LogConfig{}
		if p, ok := cfg.(LogConfigProvider); ok {
			logCfg = &LogConfig{
				Level:      p.GetLogLevel(),
				Directory:  p.GetLogDirectory(),
				MaxSizeMB:  p.GetLogMaxSizeMB(),
				MaxBackups: p.GetLogMaxBackups(),
				MaxAgeDays: p.GetLogMaxAgeDays(),
				AppName:    p.GetAppName(),
			}
		}
	}

	out := logCfg.Output
	if out == nil {
		out = os.Stdout
	}

	local := cfg.IsDevelopment() || cfg.IsTest()
	opts := &slog.HandlerOptions{Level: parseLevel(logCfg.Level, local)}
	opts.AddSource = opts.Level == slog.LevelDebug

	if local {
		return slog.New(&colorHandler{w: out, level: opts.Level.Level()})
	}

	w, err := rotatingWriter(logCfg)
	if err != nil {
		return slog.New(slog.NewJSONHandler(out, opts))
	}
	return slog.New(slog.NewJSONHandler(io.MultiWriter(out, w), opts))
}

func parseLevel(configured string, local bool) slog.Level {
	s := configured
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		s = env
	}
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	if local {
		return slog.LevelInfo
	}
	return slog.LevelError
}

func rotatingWriter(cfg *LogConfig) (io.Writer, error) {
	dir := orDefault(cfg.Directory, "logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &lumberjack.Logger{
		Filename:   filepath.Join(dir, orDefault(cfg.AppName, "app")+".log"),
		MaxSize:    positiveOr(cfg.MaxSizeMB, 100),
		MaxBackups: positiveOr(cfg.MaxBackups, 3),
		MaxAge:     positiveOr(cfg.MaxAgeDays, 28),
		Compress:   true,
	}, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func positiveOr(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}

// colorHandler prints "15:04:05 LEVEL message key=value" with ANSI colors.
// Group names prefix the keys of attrs added after them.
type colorHandler struct {
	w      io.Writer
	level  slog.Level
	prefix string
	attrs  []slog.Attr
}

const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiYellow = "\033[33m"
	ansiBlue   = "\033[34m"
	ansiGray   = "\033[90m"
)

func levelColor(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return ansiRed
	case l >= slog.LevelWarn:
		return ansiYellow
	case l >= slog.LevelInfo:
		return ansiBlue
	default:
		return ansiGray
	}
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(ansiGray + r.Time.Format("15:04:05") + ansiReset + " ")
	b.WriteString(levelColor(r.Level) + r.Level.String() + ansiReset + " ")
	b.WriteString(r.Message)

	for _, a := range h.attrs {
		b.WriteString(" " + ansiGray + a.Key + "=" + ansiReset + a.Value.String())
	}
	r.Attrs(func(a slog.Attr) bool {
		b.WriteString(" " + ansiGray + h.prefix + a.Key + "=" + ansiReset + a.Value.String())
		return true
	})
	b.WriteByte('\n')

	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cp := *h
	cp.attrs = append([]slog.Attr{}, h.attrs...)
	for _, a := range attrs {
		cp.attrs = append(cp.attrs, slog.Attr{Key: h.prefix + a.Key, Value: a.Value})
	}
	return &cp
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	cp := *h
	cp.prefix = h.prefix + name + "."
	return &cp
}
