package plugin

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/mukha/internal/logging"
)

var (
	// ErrPluginNotFound is returned when no plugin has the requested name.
	ErrPluginNotFound = errors.New("plugin not found")
	// ErrCommandNotFound is returned when a plugin does not list a command.
	ErrCommandNotFound = errors.New("plugin command not found")
)

// Manager discovers plugins below a directory.
type Manager struct {
	dir     string
	log     logrus.FieldLogger
	plugins map[string]*Plugin
	mu      sync.RWMutex
}

// NewManager creates a manager for dir. Call Discover to load plugins.
func NewManager(dir string, log logrus.FieldLogger) *Manager {
	return &Manager{
		dir:     dir,
		log:     logging.Component(log, "plugin"),
		plugins: make(map[string]*Plugin),
	}
}

// Discover rescans the plugin directory. Subdirectories without a readable,
// valid manifest are skipped. A missing directory yields no plugins.
func (m *Manager) Discover() error {
	found := make(map[string]*Plugin)
	defer func() {
		m.mu.Lock()
		m.plugins = found
		m.mu.Unlock()
	}()

	if m.dir == "" {
		return nil
	}
	entries, err := os.ReadDir(m.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("scan plugins: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(m.dir, entry.Name())
		p, err := loadPlugin(path)
		if err != nil {
			m.log.WithError(err).WithField("dir", path).Debug("Skipping plugin directory")
			continue
		}
		found[p.Manifest.Name] = p
	}
	m.log.WithField("count", len(found)).Info("Plugins discovered")
	return nil
}

func loadPlugin(path string) (*Plugin, error) {
	data, err := os.ReadFile(filepath.Join(path, ManifestFile))
	if err != nil {
		return nil, err
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if manifest.Name == "" || manifest.Executable == "" {
		return nil, errors.New("manifest needs name and executable")
	}
	return &Plugin{
		Manifest:   manifest,
		Path:       path,
		Executable: filepath.Join(path, manifest.Executable),
	}, nil
}

// Get returns the plugin called name.
func (m *Manager) Get(name string) (*Plugin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.plugins[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrPluginNotFound)
	}
	return p, nil
}

// Resolve returns the plugin called name after checking it accepts command.
func (m *Manager) Resolve(name, command string) (*Plugin, error) {
	p, err := m.Get(name)
	if err != nil {
		return nil, err
	}
	if !p.Manifest.Supports(command) {
		return nil, fmt.Errorf("%s/%s: %w", name, command, ErrCommandNotFound)
	}
	return p, nil
}

// List returns the discovered plugins sorted by name.
func (m *Manager) List() []*Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Plugin, 0, len(m.plugins))
	for _, p := range m.plugins {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Manifest.Name < out[j].Manifest.Name })
	return out
}

// Dir returns the plugin directory.
func (m *Manager) Dir() string { return m.dir }
