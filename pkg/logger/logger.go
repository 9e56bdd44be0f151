// Package logger builds the process slog.Logger. Text output goes through
// charmbracelet/log; JSON output is one Entry per line. Both honor per-component
// level overrides keyed by the "component" attribute.
package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	charmLog "github.com/charmbracelet/log"

	"warden/pkg/config"
)

const (
	formatText = "text"
	formatJSON = "json"
)

// Entry is one line of JSON output.
type Entry struct {
	Level     string         `json:"level"`
	Timestamp string         `json:"timestamp"`
	Component string         `json:"component,omitempty"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
	Caller    string         `json:"caller,omitempty"`
}

// envSettings are the WARDEN_LOG_* overrides applied on top of config.
type envSettings struct {
	Format    string `env:"WARDEN_LOG_FORMAT"`
	Level     string `env:"WARDEN_LOG_LEVEL"`
	AddSource *bool  `env:"WARDEN_LOG_ADD_SOURCE"`
}

type options struct {
	format     string
	level      slog.Level
	addSource  bool
	components levelTable
}

// New builds the process logger writing to stderr.
func New(cfg config.LoggingConfig) (*slog.Logger, error) {
	return NewWithWriter(cfg, os.Stderr)
}

// NewWithWriter builds a logger writing to writer, for callers that own the
// terminal (the console channel logs to a file instead).
func NewWithWriter(cfg config.LoggingConfig, writer io.Writer) (*slog.Logger, error) {
	opts, err := resolve(cfg)
	if err != nil {
		return nil, err
	}

	// The output handler accepts everything down to the most verbose
	// component; componentFilter applies the per-component floor.
	floor := opts.components.floor(opts.level)

	var out slog.Handler
	if opts.format == formatText {
		out = charmLog.NewWithOptions(writer, charmLog.Options{
			Level:           charmLevel(floor),
			ReportTimestamp: true,
			ReportCaller:    opts.addSource,
			Formatter:       charmLog.TextFormatter,
		})
	} else {
		out = &jsonHandler{level: floor, addSource: opts.addSource, writer: writer, mu: &sync.Mutex{}}
	}

	return slog.New(&componentFilter{next: out, base: opts.level, level: opts.level, table: opts.components}), nil
}

func resolve(cfg config.LoggingConfig) (options, error) {
	var overrides envSettings
	if err := env.Parse(&overrides); err != nil {
		return options{}, fmt.Errorf("parse logging environment: %w", err)
	}

	opts := options{
		format:    strings.ToLower(strings.TrimSpace(cfg.Format)),
		addSource: cfg.AddSource,
	}
	if value := strings.TrimSpace(overrides.Format); value != "" {
		opts.format = strings.ToLower(value)
	}
	switch opts.format {
	case "":
		opts.format = formatText
	case formatText, formatJSON:
	default:
		return options{}, fmt.Errorf("unsupported log format %q", opts.format)
	}

	levelText := cfg.Level
	if value := strings.TrimSpace(overrides.Level); value != "" {
		levelText = value
	}
	level, err := parseLevel(levelText)
	if err != nil {
		return options{}, err
	}
	opts.level = level

	if overrides.AddSource != nil {
		opts.addSource = *overrides.AddSource
	}

	opts.components = make(levelTable, len(cfg.Components))
	for component, text := range cfg.Components {
		level, err := parseLevel(text)
		if err != nil {
			return options{}, fmt.Errorf("component %s: %w", component, err)
		}
		opts.components[strings.TrimSpace(component)] = level
	}

	return opts, nil
}

func parseLevel(input string) (slog.Level, error) {
	switch text := strings.ToLower(strings.TrimSpace(input)); text {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unsupported log level %q", text)
	}
}

func charmLevel(level slog.Level) charmLog.Level {
	switch {
	case level <= slog.LevelDebug:
		return charmLog.DebugLevel
	case level <= slog.LevelInfo:
		return charmLog.InfoLevel
	case level <= slog.LevelWarn:
		return charmLog.WarnLevel
	default:
		return charmLog.ErrorLevel
	}
}

// levelTable maps a component prefix ("dispatch", "plugin.lua") to its level.
type levelTable map[string]slog.Level

// lookup returns the level of the longest prefix matching component on a
// dot boundary.
func (t levelTable) lookup(component string, fallback slog.Level) slog.Level {
	level, matched := fallback, -1
	for prefix, candidate := range t {
		if component != prefix && !strings.HasPrefix(component, prefix+".") {
			continue
		}
		if len(prefix) > matched {
			level, matched = candidate, len(prefix)
		}
	}
	return level
}

func (t levelTable) floor(fallback slog.Level) slog.Level {
	floor := fallback
	for _, level := range t {
		floor = min(floor, level)
	}
	return floor
}

// componentFilter gates records by the level of the logger's component.
type componentFilter struct {
	next  slog.Handler
	base  slog.Level
	level slog.Level
	table levelTable
}

func (f *componentFilter) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= f.level && f.next.Enabled(ctx, level)
}

func (f *componentFilter) Handle(ctx context.Context, record slog.Record) error {
	return f.next.Handle(ctx, record)
}

func (f *componentFilter) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *f
	next.next = f.next.WithAttrs(attrs)
	for _, attr := range attrs {
		if attr.Key == "component" {
			next.level = f.table.lookup(attr.Value.String(), f.base)
		}
	}
	return &next
}

func (f *componentFilter) WithGroup(name string) slog.Handler {
	next := *f
	next.next = f.next.WithGroup(name)
	return &next
}

type jsonHandler struct {
	level     slog.Level
	addSource bool
	writer    io.Writer
	attrs     []slog.Attr
	groups    []string
	mu        *sync.Mutex
}

func (h *jsonHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *jsonHandler) Handle(_ context.Context, record slog.Record) error {
	stamp := record.Time
	if stamp.IsZero() {
		stamp = time.Now()
	}
	entry := Entry{
		Level:     strings.ToLower(record.Level.String()),
		Timestamp: stamp.UTC().Format(time.RFC3339Nano),
		Message:   record.Message,
	}

	fields := make(map[string]any)
	for _, attr := range h.attrs {
		h.apply(fields, &entry, attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		h.apply(fields, &entry, attr)
		return true
	})
	if len(fields) > 0 {
		entry.Fields = fields
	}

	if h.addSource {
		if source := record.Source(); source != nil {
			entry.Caller = fmt.Sprintf("%s:%d", filepath.Base(source.File), source.Line)
		}
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.writer.Write(append(line, '\n'))
	return err
}

func (h *jsonHandler) apply(fields map[string]any, entry *Entry, attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return
	}

	if attr.Key == "component" && len(h.groups) == 0 {
		entry.Component = attr.Value.String()
		return
	}

	key := attr.Key
	if len(h.groups) > 0 {
		key = strings.Join(h.groups, ".") + "." + attr.Key
	}
	fields[key] = plainValue(attr.Value)
}

// plainValue converts a slog value into something encoding/json renders
// readably. Errors become their message.
func plainValue(value slog.Value) any {
	switch value.Kind() {
	case slog.KindDuration:
		return value.Duration().String()
	case slog.KindTime:
		return value.Time().UTC().Format(time.RFC3339Nano)
	case slog.KindGroup:
		group := value.Group()
		out := make(map[string]any, len(group))
		for _, item := range group {
			out[item.Key] = plainValue(item.Value.Resolve())
		}
		return out
	case slog.KindAny:
		if err, ok := value.Any().(error); ok {
			return err.Error()
		}
		return value.Any()
	default:
		return value.Any()
	}
}

func (h *jsonHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

func (h *jsonHandler) WithGroup(name string) slog.Handler {
	next := *h
	next.groups = append(append([]string{}, h.groups...), name)
	return &next
}
