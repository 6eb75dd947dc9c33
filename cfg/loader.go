// Package cfg holds the typed configuration for the crawler and the
// loaders that produce it (viper-backed file loader, mock loader for tests).
package cfg

import (
	"sync"
)

var (
	loader     Loader
	loaderOnce sync.Once
)

// Loader produces a fully populated Config.
type Loader interface {
	Load() (*Config, error)
}

func NewLoader(l Loader) (Loader, error) {
	loaderOnce.Do(func() {
		loader = l
	})
	return loader, nil
}
