package fileinstall

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/bft-labs/repoboot/pkg/assembly"
	"github.com/bft-labs/repoboot/pkg/log"
	"github.com/bft-labs/repoboot/pkg/registry"
)

// Config holds configuration options for the activator.
type Config struct {
	// Dir is the watched directory. Defaults to the registry's config.dir
	// property.
	Dir string

	// DebounceDelay is the delay to wait after a file change before
	// reloading it.
	// Default: 100 milliseconds
	DebounceDelay time.Duration

	// Factories resolves the component names used in descriptors.
	Factories Factories

	Logger log.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DebounceDelay: 100 * time.Millisecond,
		Factories:     Factories{},
	}
}

// installed is a component created from a descriptor file.
type installed struct {
	sum [sha256.Size]byte
	ref *registry.Reference
}

// Activator installs components from descriptor files for the lifetime of
// a registry.
type Activator struct {
	cfg    Config
	logger log.Logger

	mu        sync.Mutex
	dir       string
	reg       *registry.Registry
	installed map[string]installed
	timers    map[string]*time.Timer

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ registry.Activator = (*Activator)(nil)

// New creates an activator with the given configuration.
func New(cfg Config) *Activator {
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = 100 * time.Millisecond
	}
	if cfg.Factories == nil {
		cfg.Factories = Factories{}
	}
	return &Activator{
		cfg:       cfg,
		logger:    log.OrNoop(cfg.Logger),
		installed: make(map[string]installed),
		timers:    make(map[string]*time.Timer),
	}
}

// Name returns the activator identifier.
func (a *Activator) Name() string {
	return "fileinstall"
}

// Start installs existing descriptors and begins watching the directory.
func (a *Activator) Start(ctx context.Context, reg *registry.Registry) error {
	dir := a.cfg.Dir
	if dir == "" {
		dir = reg.Property(assembly.PropConfigDir)
	}
	if dir == "" {
		return errors.New("fileinstall: no directory configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("fileinstall: create %s: %w", dir, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fileinstall: create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("fileinstall: watch %s: %w", dir, err)
	}

	a.mu.Lock()
	a.dir = dir
	a.reg = reg
	a.mu.Unlock()

	// Watching starts before the scan so no change between the two is lost;
	// a file seen by both is installed once thanks to the content checksum.
	if err := a.scan(ctx); err != nil {
		watcher.Close()
		return err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.logger.Info("file install started", log.String("dir", dir))

	a.wg.Add(1)
	go a.watchLoop(watchCtx, watcher)
	return nil
}

// Stop ends watching. Installed components stay registered until the
// registry removes them.
func (a *Activator) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()

	a.mu.Lock()
	for name, t := range a.timers {
		t.Stop()
		delete(a.timers, name)
	}
	a.mu.Unlock()
	return nil
}

// Installed returns the names of the files with a registered component.
func (a *Activator) Installed() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	names := make([]string, 0, len(a.installed))
	for name := range a.installed {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// scan installs every descriptor present in the directory. Files are parsed
// concurrently and installed in name order.
func (a *Activator) scan(ctx context.Context) error {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return fmt.Errorf("fileinstall: read %s: %w", a.dir, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && isDescriptor(e.Name()) {
			names = append(names, e.Name())
		}
	}

	results := make([]parsed, len(names))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			p, err := readDescriptor(filepath.Join(a.dir, name), name)
			if err != nil {
				p.err = err
			}
			results[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, p := range results {
		a.apply(p)
	}
	return nil
}

func isDescriptor(name string) bool {
	return strings.HasSuffix(name, Ext) && !strings.HasPrefix(name, ".")
}

func (a *Activator) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer a.wg.Done()
	defer watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			name := filepath.Base(event.Name)
			if !isDescriptor(name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			a.debounceReload(ctx, name)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			a.logger.Error("file install watcher error", log.Err(err))
		}
	}
}

func (a *Activator) debounceReload(ctx context.Context, name string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if t, ok := a.timers[name]; ok {
		t.Stop()
	}
	a.timers[name] = time.AfterFunc(a.cfg.DebounceDelay, func() {
		a.mu.Lock()
		delete(a.timers, name)
		a.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		a.reload(name)
	})
}

// reload brings the component of file name in line with its content.
func (a *Activator) reload(name string) {
	p, err := readDescriptor(filepath.Join(a.dir, name), name)
	if errors.Is(err, fs.ErrNotExist) {
		a.uninstall(name)
		return
	}
	if err != nil {
		p.err = err
	}
	a.apply(p)
}

func (a *Activator) apply(p parsed) {
	a.mu.Lock()
	defer a.mu.Unlock()

	cur, has := a.installed[p.name]
	if has && cur.sum == p.sum {
		return
	}
	if p.err != nil {
		a.logger.Warn("skipping descriptor",
			log.String("file", p.name),
			log.Err(p.err))
		return
	}

	ref, err := a.installLocked(p)
	if err != nil {
		a.logger.Warn("cannot install component",
			log.String("file", p.name),
			log.String("component", p.desc.Component),
			log.Err(err))
		return
	}
	a.installed[p.name] = installed{sum: p.sum, ref: ref}

	// The replacement is registered before the old instance goes away so
	// the type never disappears in between.
	if has {
		a.removeLocked(p.name, cur.ref)
	}
	a.logger.Info("component installed",
		log.String("file", p.name),
		log.String("component", p.desc.Component),
		log.Bool("replaced", has))
}

func (a *Activator) installLocked(p parsed) (*registry.Reference, error) {
	f, ok := a.cfg.Factories[p.desc.Component]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownComponent, p.desc.Component)
	}
	inst, err := f.New(p.desc.Properties)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", p.desc.Component, err)
	}
	ref, err := a.reg.Register(f.Type, inst,
		registry.WithRanking(p.desc.Ranking),
		registry.WithSource("fileinstall:"+p.name))
	if err != nil {
		stopInstance(inst)
		return nil, err
	}
	return ref, nil
}

func (a *Activator) uninstall(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	cur, ok := a.installed[name]
	if !ok {
		return
	}
	delete(a.installed, name)
	a.removeLocked(name, cur.ref)
	a.logger.Info("component uninstalled", log.String("file", name))
}

func (a *Activator) removeLocked(name string, ref *registry.Reference) {
	if err := a.reg.UnregisterRef(ref); err != nil {
		a.logger.Debug("component already gone",
			log.String("file", name),
			log.Err(err))
		return
	}
	stopInstance(ref.Instance)
}

func stopInstance(inst any) {
	if s, ok := inst.(registry.Stopper); ok {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	}
}
