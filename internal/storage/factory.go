package storage

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aibom-registry/aibom-registry/internal/config"
)

// FactoryFunc builds a backend from the archive configuration
type FactoryFunc func(*config.ArchiveConfig) (Storage, error)

var factories = make(map[string]FactoryFunc)

// Register makes a backend available under name
func Register(name string, factory FactoryFunc) {
	factories[name] = factory
}

// Backends lists the registered backend names
func Backends() []string {
	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NewStorage builds the backend named by cfg.Backend
func NewStorage(cfg *config.ArchiveConfig) (Storage, error) {
	factory, ok := factories[cfg.Backend]
	if !ok {
		return nil, fmt.Errorf("unsupported storage backend: %q (registered: %s)", cfg.Backend, strings.Join(Backends(), ", "))
	}
	return factory(cfg)
}
