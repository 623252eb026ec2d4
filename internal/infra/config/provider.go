package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const reloadDebounce = 200 * time.Millisecond

// Update carries a reloaded configuration to subscribers.
type Update struct {
	Config   Config
	Revision uint64
}

// DynamicProvider loads a config file and watches it for changes. Each
// successful reload bumps the revision and fans out to subscribers; a reload
// that fails validation keeps the previous revision live.
type DynamicProvider struct {
	logger *zap.Logger
	loader *Loader
	path   string

	mu       sync.Mutex
	current  Config
	revision uint64
	subs     map[chan Update]struct{}

	watchOnce sync.Once
}

// NewDynamicProvider loads the config once and prepares the watcher.
func NewDynamicProvider(ctx context.Context, path string, logger *zap.Logger) (*DynamicProvider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	loader := NewLoader(logger)
	cfg, err := loader.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	return &DynamicProvider{
		logger:   logger.Named("config_provider"),
		loader:   loader,
		path:     path,
		current:  cfg,
		revision: 1,
		subs:     make(map[chan Update]struct{}),
	}, nil
}

// Current returns the most recently validated config.
func (p *DynamicProvider) Current() Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Subscribe delivers updates until ctx is done. Slow subscribers miss
// intermediate revisions rather than blocking the reload path.
func (p *DynamicProvider) Subscribe(ctx context.Context) <-chan Update {
	ch := make(chan Update, 1)
	p.mu.Lock()
	p.subs[ch] = struct{}{}
	p.mu.Unlock()

	go func() {
		<-ctx.Done()
		p.mu.Lock()
		delete(p.subs, ch)
		close(ch)
		p.mu.Unlock()
	}()
	return ch
}

// Watch starts the file watcher. Subsequent calls are no-ops.
func (p *DynamicProvider) Watch(ctx context.Context) error {
	var startErr error
	p.watchOnce.Do(func() {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			startErr = fmt.Errorf("create watcher: %w", err)
			return
		}
		// Watch the directory: editors often replace the file atomically,
		// which drops a watch placed on the file itself.
		dir := filepath.Dir(p.path)
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			startErr = fmt.Errorf("watch %s: %w", dir, err)
			return
		}
		go p.watchLoop(ctx, watcher)
	})
	return startErr
}

func (p *DynamicProvider) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer func() { _ = watcher.Close() }()

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	target := filepath.Clean(p.path)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, func() {
				p.reload(ctx)
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.Warn("config watcher error", zap.Error(err))
		}
	}
}

func (p *DynamicProvider) reload(ctx context.Context) {
	cfg, err := p.loader.Load(ctx, p.path)
	if err != nil {
		p.logger.Warn("config reload rejected, keeping previous revision",
			zap.String("path", p.path),
			zap.Error(err),
		)
		return
	}

	p.mu.Lock()
	p.current = cfg
	p.revision++
	update := Update{Config: cfg, Revision: p.revision}
	for ch := range p.subs {
		select {
		case ch <- update:
		default:
		}
	}
	p.mu.Unlock()

	p.logger.Info("config reloaded",
		zap.String("path", p.path),
		zap.Uint64("revision", update.Revision),
	)
}
