// Package watch reloads a configuration when the file, any template it
// uses, or a policy file changes.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/hyperconf/hyperconf/pkg/config"
	"github.com/hyperconf/hyperconf/pkg/policy"
	"github.com/hyperconf/hyperconf/pkg/telemetry"
	"github.com/hyperconf/hyperconf/pkg/templates"
)

// Result is the outcome of one load.
type Result struct {
	// Root is the loaded tree, nil when Err is set.
	Root *config.Node
	// Err is the load or policy reload error.
	Err error
	// Policy holds the evaluation of Root when a policy engine is attached.
	Policy *policy.Result
	// Trigger is the changed file, empty for the initial load.
	Trigger string
	// Templates lists the template files the load used.
	Templates []string
	// At is when the load finished.
	At time.Time
}

// Config holds watcher configuration options.
type Config struct {
	// File is the configuration to load.
	File string `validate:"required"`
	// Strict enables strict loading.
	Strict bool
	// PolicyPaths are watched and reloaded into the policy engine.
	PolicyPaths []string
	// Debounce coalesces bursts of events.
	Debounce time.Duration `validate:"gte=0"`
}

// DefaultConfig returns defaults for watching file.
func DefaultConfig(file string) Config {
	return Config{
		File:     file,
		Debounce: 250 * time.Millisecond,
	}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the watcher logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(w *Watcher) {
		w.logger = logger.With().Str("component", "watcher").Logger()
	}
}

// WithMetrics records reloads in m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(w *Watcher) {
		w.metrics = m
	}
}

// WithEvents publishes reloads to ep.
func WithEvents(ep *telemetry.EventPublisher) Option {
	return func(w *Watcher) {
		w.events = ep
	}
}

// WithPolicyEngine evaluates every loaded tree with e.
func WithPolicyEngine(e *policy.Engine) Option {
	return func(w *Watcher) {
		w.engine = e
	}
}

// WithRegistryOptions applies opts to the registry built for each load.
func WithRegistryOptions(opts ...templates.Option) Option {
	return func(w *Watcher) {
		w.registryOpts = append(w.registryOpts, opts...)
	}
}

// Watcher monitors a configuration and its dependencies and reloads it
// after changes.
type Watcher struct {
	cfg          Config
	file         string
	registryOpts []templates.Option
	engine       *policy.Engine
	logger       zerolog.Logger
	metrics      *telemetry.Metrics
	events       *telemetry.EventPublisher

	fsWatcher *fsnotify.Watcher
	mu        sync.Mutex
	watched   map[string]bool // directories
	tracked   map[string]bool // files that trigger a reload
	policyDir []string
	results   chan Result
}

// New creates a watcher for cfg.File.
func New(cfg Config, opts ...Option) (*Watcher, error) {
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid watch config: %w", err)
	}
	abs, err := filepath.Abs(cfg.File)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", cfg.File, err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	w := &Watcher{
		cfg:       cfg,
		file:      abs,
		logger:    zerolog.Nop(),
		fsWatcher: fsw,
		watched:   make(map[string]bool),
		tracked:   make(map[string]bool),
		results:   make(chan Result, 1),
	}
	for _, opt := range opts {
		opt(w)
	}
	for _, p := range cfg.PolicyPaths {
		abs, err := filepath.Abs(p)
		if err != nil {
			_ = fsw.Close()
			return nil, fmt.Errorf("resolving %s: %w", p, err)
		}
		w.policyDir = append(w.policyDir, abs)
	}
	return w, nil
}

// Results delivers one Result per load. It is closed when Run returns.
func (w *Watcher) Results() <-chan Result {
	return w.results
}

// Run loads the configuration, then reloads it after every relevant change
// until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.results)
	defer w.fsWatcher.Close()

	if err := w.watchPolicies(); err != nil {
		return err
	}
	if !w.deliver(ctx, w.load(ctx, "")) {
		return nil
	}

	var (
		timer   *time.Timer
		trigger string
	)
	timerC := func() <-chan time.Time {
		if timer != nil {
			return timer.C
		}
		return nil
	}

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			if !w.isRelevantEvent(event) {
				continue
			}
			trigger = filepath.Clean(event.Name)
			if timer == nil {
				timer = time.NewTimer(w.cfg.Debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.cfg.Debounce)
			}

		case <-timerC():
			timer = nil
			if !w.deliver(ctx, w.reload(ctx, trigger)) {
				return nil
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("file watch error")

		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		}
	}
}

func (w *Watcher) deliver(ctx context.Context, r Result) bool {
	select {
	case w.results <- r:
		return true
	case <-ctx.Done():
		return false
	}
}

func (w *Watcher) reload(ctx context.Context, trigger string) Result {
	w.logger.Info().Str("trigger", trigger).Msg("change detected, reloading")

	if w.engine != nil && w.isPolicyFile(trigger) {
		if err := w.engine.Reload(ctx, w.policyDir...); err != nil {
			w.metrics.RecordReload(err)
			w.logger.Warn().Err(err).Msg("policy reload failed")
			return Result{Err: fmt.Errorf("reloading policies: %w", err), Trigger: trigger, At: time.Now()}
		}
		// New policy directories may have appeared.
		if err := w.watchPolicies(); err != nil {
			w.logger.Warn().Err(err).Msg("watching policy paths")
		}
	}

	r := w.load(ctx, trigger)
	w.metrics.RecordReload(r.Err)
	if r.Err == nil {
		_ = w.events.PublishConfigReloaded(w.file, trigger)
	}
	return r
}

// load builds the tree against a fresh registry so that edited templates
// are parsed again.
func (w *Watcher) load(ctx context.Context, trigger string) (r Result) {
	r.Trigger = trigger
	defer func() { r.At = time.Now() }()

	reg, err := templates.NewRegistry(w.registryOpts...)
	if err != nil {
		r.Err = err
		return r
	}
	loader, err := config.NewLoader(reg,
		config.WithStrict(w.cfg.Strict),
		config.WithLogger(w.logger),
		config.WithMetrics(w.metrics),
		config.WithEvents(w.events),
	)
	if err != nil {
		r.Err = err
		return r
	}

	r.Root, r.Err = loader.LoadFile(ctx, w.file)
	r.Templates = reg.LoadedFiles()

	// A failed load still tracks the templates it reached so fixing one of
	// them triggers the next attempt.
	w.track(r.Templates)

	if r.Err != nil {
		w.logger.Warn().Err(r.Err).Str("file", w.file).Msg("load failed")
		return r
	}
	if w.engine != nil {
		r.Policy, r.Err = w.engine.Evaluate(ctx, r.Root)
	}
	return r
}

// track replaces the tracked file set with the configuration and the
// on-disk template files, adding watches on their directories.
func (w *Watcher) track(templateFiles []string) {
	tracked := map[string]bool{w.file: true}
	for _, f := range templateFiles {
		if strings.HasPrefix(f, templates.BundledPrefix) {
			continue
		}
		tracked[filepath.Clean(f)] = true
	}
	w.tracked = tracked

	for f := range tracked {
		if err := w.watchDir(filepath.Dir(f)); err != nil {
			w.logger.Warn().Err(err).Str("file", f).Msg("cannot watch template directory")
		}
	}
}

// watchPolicies watches every policy directory and its subdirectories, or
// the parent directory of a single policy file.
func (w *Watcher) watchPolicies() error {
	for _, p := range w.policyDir {
		info, err := os.Stat(p)
		if err != nil {
			return fmt.Errorf("policy path %s: %w", p, err)
		}
		if !info.IsDir() {
			if err := w.watchDir(filepath.Dir(p)); err != nil {
				return err
			}
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return w.watchDir(path)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (w *Watcher) watchDir(dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watched[dir] {
		return nil
	}
	if err := w.fsWatcher.Add(dir); err != nil {
		return fmt.Errorf("watching directory %s: %w", dir, err)
	}
	w.watched[dir] = true
	w.logger.Debug().Str("dir", dir).Msg("watching directory")
	return nil
}

// Watched returns the watched directories, sorted.
func (w *Watcher) Watched() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	dirs := make([]string, 0, len(w.watched))
	for d := range w.watched {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	return dirs
}

// isRelevantEvent checks if the event should trigger a reload. Editors that
// save by rename show up as Create on the target name.
func (w *Watcher) isRelevantEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	name := filepath.Clean(event.Name)
	return w.tracked[name] || w.isPolicyFile(name)
}

func (w *Watcher) isPolicyFile(name string) bool {
	if !policy.IsPolicyFile(name) {
		return false
	}
	for _, p := range w.policyDir {
		if name == p || strings.HasPrefix(name, p+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
