package storage

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"bizscout/config"
	"bizscout/httputil"
)

// Open connects the backend named by cfg.Storage.Backend.
func Open(ctx context.Context, cfg *config.Config, api *http.Client) (ListingStore, error) {
	switch cfg.Storage.Backend {
	case "", "sqlite":
		log.Printf("Storage: sqlite at %s", cfg.DBPath)
		return NewSQLiteStore(cfg.DBPath)
	case "postgres":
		if cfg.Storage.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
		log.Printf("Storage: postgres at %s", httputil.MaskURL(cfg.Storage.DatabaseURL))
		return NewPostgresStore(ctx, cfg.Storage.DatabaseURL)
	case "supabase":
		if cfg.Supabase.URL == "" || cfg.Supabase.ServiceKey == "" {
			return nil, fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY are required for the supabase backend")
		}
		log.Printf("Storage: supabase table %s at %s", cfg.Supabase.Table, cfg.Supabase.URL)
		return NewSupabaseStore(&cfg.Supabase, api), nil
	case "memory":
		log.Println("Storage: in-memory (nothing is persisted)")
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
