package plugin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

// Report summarizes one directory load.
type Report struct {
	Dir      string
	LoadedAt time.Time
	Loaded   []string
	Skipped  []string
	Errors   []error
	// DirErr is non-nil when the directory itself could not be read.
	DirErr error
}

// Registry keeps the ordered set of plugins dispatch runs. Compiled-in
// plugins registered with Register run first, then directory plugins in file
// name order.
type Registry struct {
	dir      string
	loaders  map[string]Loader
	disabled map[string]bool
	log      *slog.Logger

	mu       sync.RWMutex
	static   []Plugin
	dynamic  []Plugin
	last     Report
	dirFault bool
}

// NewRegistry builds an empty registry over dir.
func NewRegistry(dir string, log *slog.Logger, loaders ...Loader) *Registry {
	if log == nil {
		log = slog.Default()
	}
	byExt := make(map[string]Loader, len(loaders))
	for _, loader := range loaders {
		byExt[strings.ToLower(loader.Extension())] = loader
	}
	return &Registry{
		dir:      dir,
		loaders:  byExt,
		disabled: make(map[string]bool),
		log:      log.With("component", "plugin.registry"),
	}
}

// Dir returns the watched plugin directory.
func (r *Registry) Dir() string {
	return r.dir
}

// Extensions lists the recognized script suffixes.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.loaders))
	for ext := range r.loaders {
		exts = append(exts, ext)
	}
	slices.Sort(exts)
	return exts
}

// Disable skips plugins with the given names on subsequent loads.
func (r *Registry) Disable(names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name != "" {
			r.disabled[name] = true
		}
	}
}

// Register adds a compiled-in plugin.
func (r *Registry) Register(p Plugin) {
	if p == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.static = append(r.static, p)
}

// Load reads the directory and replaces the directory plugins. Per-file
// failures are recorded in the report and never abort sibling loads. A
// missing or unreadable directory leaves an empty directory set and returns
// an error wrapping ErrDirectoryUnavailable.
func (r *Registry) Load(ctx context.Context) (Report, error) {
	report := Report{Dir: r.dir, LoadedAt: time.Now().UTC()}

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		report.DirErr = fmt.Errorf("%w: %s: %v", ErrDirectoryUnavailable, r.dir, err)
		r.swap(nil, report)
		return report, report.DirErr
	}

	r.mu.RLock()
	disabled := make(map[string]bool, len(r.disabled))
	for name := range r.disabled {
		disabled[name] = true
	}
	r.mu.RUnlock()

	loaded := make([]Plugin, 0, len(entries))
	for _, entry := range entries {
		if ctx.Err() != nil {
			closePlugins(loaded)
			return report, ctx.Err()
		}
		if entry.IsDir() {
			continue
		}
		loader, ok := r.loaders[strings.ToLower(filepath.Ext(entry.Name()))]
		if !ok {
			continue
		}

		path := filepath.Join(r.dir, entry.Name())
		name := NameFromPath(path)
		if disabled[name] {
			report.Skipped = append(report.Skipped, name)
			continue
		}

		p, err := loader.Load(path)
		if err != nil {
			var loadErr *LoadError
			if !errors.As(err, &loadErr) {
				err = &LoadError{Path: path, Err: err}
			}
			r.log.Error("Failed to load plugin", "path", path, "error", err)
			report.Errors = append(report.Errors, err)
			continue
		}

		r.log.Debug("Plugin loaded", "plugin", p.Name(), "path", path)
		loaded = append(loaded, p)
		report.Loaded = append(report.Loaded, p.Name())
	}

	r.swap(loaded, report)
	return report, nil
}

// Reload is Load under the name callers use for change signals.
func (r *Registry) Reload(ctx context.Context) (Report, error) {
	report, err := r.Load(ctx)
	if err == nil {
		r.log.Info("Plugins reloaded", "dir", r.dir, "loaded", len(report.Loaded), "errors", len(report.Errors))
	}
	return report, err
}

func (r *Registry) swap(loaded []Plugin, report Report) {
	r.mu.Lock()
	previous := r.dynamic
	r.dynamic = loaded
	r.last = report
	logDirFault := report.DirErr != nil && !r.dirFault
	r.dirFault = report.DirErr != nil
	r.mu.Unlock()

	if logDirFault {
		r.log.Warn("Plugin directory unavailable, continuing without directory plugins", "dir", r.dir, "error", report.DirErr)
	}
	closePlugins(previous)
}

// Snapshot returns the current ordered plugin list.
func (r *Registry) Snapshot() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Plugin, 0, len(r.static)+len(r.dynamic))
	out = append(out, r.static...)
	return append(out, r.dynamic...)
}

// Names lists the current plugin names in run order.
func (r *Registry) Names() []string {
	snapshot := r.Snapshot()
	names := make([]string, 0, len(snapshot))
	for _, p := range snapshot {
		names = append(names, p.Name())
	}
	return names
}

// LastReport returns the report of the most recent load.
func (r *Registry) LastReport() Report {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last
}

// Close releases every directory plugin.
func (r *Registry) Close() error {
	r.mu.Lock()
	previous := r.dynamic
	r.dynamic = nil
	r.mu.Unlock()
	return closePlugins(previous)
}

func closePlugins(plugins []Plugin) error {
	var errs []error
	for _, p := range plugins {
		if closer, ok := p.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close plugin %s: %w", p.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}
