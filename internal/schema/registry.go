package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ReservedIdentityKey is the record field that carries the serialized identity.
// Duplicated from the identity package to keep schema free of dependencies.
const ReservedIdentityKey = "__recordIdentifierKey__"

// ReservedActionsKey is the data index of the injected row-action column.
const ReservedActionsKey = "__actions__"

// ErrTableNotFound is returned when a table name is not registered.
var ErrTableNotFound = errors.New("table not found")

var (
	registry   = make(map[string]TableConfig)
	registryMu sync.RWMutex
)

// Register validates and adds a table configuration to the registry.
func Register(cfg TableConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[cfg.Name]; exists {
		return fmt.Errorf("table already registered: %s", cfg.Name)
	}

	registry[cfg.Name] = cfg
	return nil
}

// MustRegister is Register for init-time use. Panics on error.
func MustRegister(cfg TableConfig) {
	if err := Register(cfg); err != nil {
		panic(err)
	}
}

// Get returns a table configuration by name.
func Get(name string) (TableConfig, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	cfg, ok := registry[name]
	return cfg, ok
}

// Lookup is Get with an error suitable for handlers.
func Lookup(name string) (TableConfig, error) {
	cfg, ok := Get(name)
	if !ok {
		return TableConfig{}, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	return cfg, nil
}

// All returns all registered tables sorted by name.
func All() []TableConfig {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]TableConfig, 0, len(registry))
	for _, cfg := range registry {
		result = append(result, cfg)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}

// TableCount returns the number of registered tables.
func TableCount() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}

// Clear removes all registered tables.
// Primarily useful for testing.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]TableConfig)
}

// Validate checks a table configuration for problems that would make the
// engine misbehave. Returns an error describing all failures.
func (c TableConfig) Validate() error {
	var errs []string

	if strings.TrimSpace(c.Name) == "" {
		errs = append(errs, "name is required")
	}

	seen := make(map[string]bool, len(c.Properties))
	for i, p := range c.Properties {
		switch {
		case p.DataIndex == "":
			errs = append(errs, fmt.Sprintf("propertiesConfig[%d]: dataIndex is required", i))
		case p.DataIndex == ReservedIdentityKey, p.DataIndex == ReservedActionsKey:
			errs = append(errs, fmt.Sprintf("propertiesConfig[%d]: dataIndex %q is reserved", i, p.DataIndex))
		case seen[p.DataIndex]:
			errs = append(errs, fmt.Sprintf("propertiesConfig[%d]: duplicate dataIndex %q", i, p.DataIndex))
		}
		seen[p.DataIndex] = true
	}

	if c.Api.URL != "" && c.Api.ResponseKey == "" {
		errs = append(errs, "apiConfig.responseKey is required when apiUrl is set")
	}

	actionNames := make(map[string]bool, len(c.Actions))
	for i, a := range c.Actions {
		if a.Name == "" {
			errs = append(errs, fmt.Sprintf("actions[%d]: name is required", i))
		} else if actionNames[a.Name] {
			errs = append(errs, fmt.Sprintf("actions[%d]: duplicate name %q", i, a.Name))
		}
		actionNames[a.Name] = true
		if a.Api.URL == "" {
			errs = append(errs, fmt.Sprintf("actions[%d]: apiConfig.apiUrl is required", i))
		}
	}
	if len(c.Actions) > 0 && len(c.IdentifierColumns()) == 0 {
		errs = append(errs, "actions require at least one isIdentifier property")
	}

	if len(errs) > 0 {
		return fmt.Errorf("table %q invalid:\n  - %s", c.Name, strings.Join(errs, "\n  - "))
	}
	return nil
}
