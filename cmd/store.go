package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/synthpop/internal/cache"
)

// initStore opens and migrates the configured join cache.
func initStore(ctx context.Context) (cache.Store, error) {
	switch cfg.Cache.Driver {
	case "none":
		return cache.NopStore{}, nil
	case "sqlite":
		path := cfg.Cache.Path
		if path == "" {
			path = "synthpop_cache.db"
		}
		st, err := cache.NewSQLite(path)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "migrate cache")
		}
		return st, nil
	case "postgres":
		st, err := cache.NewPostgres(ctx, cfg.Cache.DatabaseURL, nil)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "migrate cache")
		}
		return st, nil
	default:
		return nil, eris.Errorf("unsupported cache driver: %s", cfg.Cache.Driver)
	}
}
