package health

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/motto/internal/catalog"
	"github.com/MrWong99/motto/internal/config"
)

// CatalogChecker reports ready once cat holds at least one command.
func CatalogChecker(cat *catalog.Catalog) Checker {
	return Checker{
		Name: "catalog",
		Check: func(context.Context) error {
			if cat == nil || cat.Len() == 0 {
				return errors.New("no commands loaded")
			}
			return nil
		},
	}
}

// ConfigChecker reports ready while current returns a valid configuration.
// current is typically [config.Watcher.Current].
func ConfigChecker(current func() *config.Config) Checker {
	return Checker{
		Name: "config",
		Check: func(context.Context) error {
			cfg := current()
			if cfg == nil {
				return errors.New("no config loaded")
			}
			if err := config.Validate(cfg); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			return nil
		},
	}
}
