package config

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"adDecisioning/domain"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var ErrImmutable = errors.New("config: field cannot change at runtime")

// LoadRuntime reads the decisioning YAML over the built-in defaults. Keys
// missing from the file keep their default. A missing file yields the
// defaults.
func LoadRuntime(path string, validate *validator.Validate) (domain.DecisioningConfig, error) {
	cfg := domain.DefaultDecisioningConfig()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := validate.Struct(cfg); err != nil {
		return cfg, fmt.Errorf("validate %s: %w", path, err)
	}
	return cfg, nil
}

// Manager holds the live decisioning configuration and fans changes out
// to subscribers.
type Manager struct {
	validate *validator.Validate
	current  atomic.Pointer[domain.DecisioningConfig]

	mu          sync.Mutex
	subscribers []func(domain.DecisioningConfig)
}

func NewManager(initial domain.DecisioningConfig, validate *validator.Validate) (*Manager, error) {
	if err := validate.Struct(initial); err != nil {
		return nil, err
	}
	m := &Manager{validate: validate}
	m.current.Store(&initial)
	return m, nil
}

func (m *Manager) Current() domain.DecisioningConfig { return *m.current.Load() }

// Subscribe registers fn for every applied config. fn is invoked once
// immediately with the current config.
func (m *Manager) Subscribe(fn func(domain.DecisioningConfig)) {
	m.mu.Lock()
	m.subscribers = append(m.subscribers, fn)
	m.mu.Unlock()
	fn(m.Current())
}

// Apply validates next and makes it current. The bandit context dimension
// is fixed for the life of the process since stored arm matrices depend
// on it.
func (m *Manager) Apply(next domain.DecisioningConfig) error {
	if err := m.validate.Struct(next); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.Current()
	if next.Bandit.Dimension != cur.Bandit.Dimension {
		return fmt.Errorf("bandit.dimension %d -> %d: %w", cur.Bandit.Dimension, next.Bandit.Dimension, ErrImmutable)
	}

	m.current.Store(&next)
	for _, fn := range m.subscribers {
		fn(next)
	}
	return nil
}
