package logging

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// ModuleConfig holds hierarchical, dot-notation module log level overrides,
// e.g. setting "graph.filler" to Debug while the default stays Info.
type ModuleConfig struct {
	mu         sync.RWMutex
	defaultLvl slog.Level
	overrides  map[string]slog.Level
	sortedKeys []string
}

// NewModuleConfig builds a ModuleConfig with the given default level.
func NewModuleConfig(defaultLevel slog.Level) *ModuleConfig {
	return &ModuleConfig{defaultLvl: defaultLevel, overrides: map[string]slog.Level{}}
}

// SetModuleLevel overrides the level for a module name or dot-prefix.
func (c *ModuleConfig) SetModuleLevel(module string, level slog.Level) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.overrides[module] = level
	c.updateSortedKeys()
}

// SetDefaultLevel changes the fallback level used when no override matches.
func (c *ModuleConfig) SetDefaultLevel(level slog.Level) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaultLvl = level
}

// LevelFor resolves the effective level for a module name, preferring the
// longest matching dot-prefix override.
func (c *ModuleConfig) LevelFor(module string) slog.Level {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, key := range c.sortedKeys {
		if module == key || strings.HasPrefix(module, key+".") {
			return c.overrides[key]
		}
	}
	return c.defaultLvl
}

func (c *ModuleConfig) updateSortedKeys() {
	keys := make([]string, 0, len(c.overrides))
	for k := range c.overrides {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })
	c.sortedKeys = keys
}
