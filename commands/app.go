package commands

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/viper"

	"bizscout/config"
	"bizscout/httputil"
	"bizscout/logging"
	"bizscout/scraper"
	"bizscout/storage"
	"bizscout/transport"
)

// app is everything a command needs, built from the environment.
type app struct {
	cfg          *config.Config
	store        storage.ListingStore
	ledger       storage.RunLedger
	sources      map[string]scraper.Source
	orchestrator *scraper.Orchestrator

	closers []func() error
}

// setup loads config and wires storage, transport and sources. A dry run
// keeps listings in memory and skips the archive upload.
func setup(ctx context.Context, dryRun bool) (*app, error) {
	a := &app{}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if dir := viper.GetString("sites_dir"); dir != "" && dir != cfg.SitesDir {
		sites, err := config.LoadSiteConfigs(dir)
		if err != nil {
			return nil, fmt.Errorf("load sites from %s: %w", dir, err)
		}
		cfg.SitesDir = dir
		cfg.Sites = sites
	}
	a.cfg = cfg

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	logFile, err := logging.Setup(cfg.LogPath)
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		if viper.GetBool("quiet") {
			log.SetOutput(logFile)
		}
		a.closers = append(a.closers, logFile.Close)
	}
	level := cfg.LogLevel
	if viper.GetBool("debug") {
		level = "debug"
	}
	logging.SetLevel(level)

	log.Printf("Loaded %d site configs from %s", len(cfg.Sites), cfg.SitesDir)
	for _, id := range cfg.SiteIDs() {
		site := cfg.Sites[id]
		logging.Debugf("  - %s (%s, adapter %s, primary %s)", site.Name, id, site.Adapter, site.Primary)
	}

	clients := httputil.NewClients(cfg.Proxy)
	if cfg.Proxy.URL != "" {
		log.Printf("Proxy: %s", httputil.MaskURL(cfg.Proxy.URL))
	}

	if dryRun {
		a.store = storage.NewMemoryStore()
	} else {
		a.store, err = storage.Open(ctx, cfg, clients.API)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open storage: %w", err)
		}
	}
	a.closers = append(a.closers, a.store.Close)

	if ledger, ok := a.store.(storage.RunLedger); ok {
		a.ledger = ledger
	} else {
		// Remote listing stores keep run history in a local SQLite ledger.
		sqlite, err := storage.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open run ledger: %w", err)
		}
		log.Printf("Run ledger: sqlite at %s", cfg.DBPath)
		a.ledger = sqlite
		a.closers = append(a.closers, sqlite.Close)
	}

	dataDir := ""
	if cfg.Browser.UserDataDir != "" {
		if dataDir, err = transport.UserDataDir(cfg.Browser.UserDataDir); err != nil {
			log.Printf("Warning: %v, using a throwaway browser profile", err)
			dataDir = ""
		}
	}
	browser := transport.NewBrowserEngine(cfg.Browser.Engine, dataDir)
	direct := transport.NewDirectFetcher(clients.Scraping.Transport, browser, httputil.BrowserHeaders(), cfg.Scraper.UserAgent)
	a.closers = append(a.closers, direct.Close)

	fetchers := scraper.Fetchers{Direct: direct}
	if cfg.ProxyRender.Enabled() {
		fetchers.ProxyRender = transport.NewProxyRenderFetcher(cfg.ProxyRender.Endpoint, cfg.ProxyRender.APIKey, clients.API)
		log.Printf("Proxy render: %s", httputil.MaskURL(cfg.ProxyRender.Endpoint))
	}

	a.sources = scraper.NewSources(cfg, fetchers)
	a.orchestrator = scraper.NewOrchestrator(cfg, a.sources, a.store)
	a.orchestrator.SetLedger(a.ledger)

	if cfg.S3.Enabled() && !dryRun {
		archiver, err := storage.NewReportArchiver(ctx, cfg.S3)
		if err != nil {
			log.Printf("Warning: session archive disabled: %v", err)
		} else {
			a.orchestrator.SetArchiver(archiver)
			log.Printf("Session archive: s3://%s/%s", cfg.S3.Bucket, cfg.S3.Prefix)
		}
	}

	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Printf("Warning: close: %v", err)
		}
	}
	a.closers = nil
}
