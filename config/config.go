package config

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Storage     StorageConfig
	Supabase    SupabaseConfig
	S3          S3Config
	Proxy       ProxyConfig
	ProxyRender ProxyRenderConfig
	Browser     BrowserConfig
	Scheduler   SchedulerConfig
	Scraper     ScraperConfig
	Enrichment  EnrichmentConfig
	API         APIConfig
	DBPath      string
	LogPath     string
	LogLevel    string
	SitesDir    string
	Sites       map[string]*SiteConfig
}

type StorageConfig struct {
	Backend     string // sqlite, postgres, supabase, memory
	DatabaseURL string
}

type SupabaseConfig struct {
	URL        string
	ServiceKey string
	Table      string
}

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // DO Spaces, R2, MinIO
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
}

func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

// ProxyConfig is the outbound HTTP proxy for direct fetches.
type ProxyConfig struct {
	URL string
}

// ProxyRenderConfig points at a ScrapingBee-compatible render service.
type ProxyRenderConfig struct {
	Endpoint string
	APIKey   string
}

func (c ProxyRenderConfig) Enabled() bool {
	return c.APIKey != ""
}

type BrowserConfig struct {
	Engine      string // chromedp or playwright
	UserDataDir string
}

type SchedulerConfig struct {
	Interval time.Duration
	Cron     string
}

type ScraperConfig struct {
	MaxPages        int
	DelayMS         int
	TimeoutMS       int
	Headless        bool
	Concurrency     int
	SourceStaggerMS int
	UserAgent       string
}

type EnrichmentConfig struct {
	Interval time.Duration
	Batch    int
}

type APIConfig struct {
	Addr string
}

type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Adapter  string `yaml:"adapter"`
	BaseURL  string `yaml:"base_url"`
	Primary  string `yaml:"primary"` // direct or proxy_render
	RenderJS bool   `yaml:"render_js"`
	Identity string `yaml:"identity"` // name_url (default) or url
	Enabled  *bool  `yaml:"enabled"`
}

func (s *SiteConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

func (s *SiteConfig) IdentityByURL() bool {
	return s.Identity == "url"
}

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Storage: StorageConfig{
			Backend:     getEnv("STORAGE_BACKEND", "sqlite"),
			DatabaseURL: os.Getenv("DATABASE_URL"),
		},
		Supabase: SupabaseConfig{
			URL:        os.Getenv("SUPABASE_URL"),
			ServiceKey: os.Getenv("SUPABASE_SERVICE_KEY"),
			Table:      getEnv("SUPABASE_TABLE", "business_listings"),
		},
		S3: S3Config{
			Bucket:          os.Getenv("S3_BUCKET"),
			Region:          getEnv("S3_REGION", "us-east-1"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
			Prefix:          getEnv("S3_PREFIX", "sessions"),
		},
		Proxy: ProxyConfig{
			URL: os.Getenv("PROXY_URL"),
		},
		ProxyRender: ProxyRenderConfig{
			Endpoint: getEnv("PROXY_RENDER_ENDPOINT", "https://app.scrapingbee.com/api/v1/"),
			APIKey:   os.Getenv("SCRAPINGBEE_API_KEY"),
		},
		Browser: BrowserConfig{
			Engine:      getEnv("BROWSER_ENGINE", "chromedp"),
			UserDataDir: getEnv("BROWSER_DATA_DIR", "browser_data"),
		},
		Scheduler: SchedulerConfig{
			Cron: os.Getenv("SCRAPE_CRON"),
		},
		Scraper: ScraperConfig{
			MaxPages:        getEnvInt("SCRAPE_MAX_PAGES", 1),
			DelayMS:         getEnvInt("SCRAPE_DELAY_MS", 2500),
			TimeoutMS:       getEnvInt("SCRAPE_TIMEOUT_MS", 45000),
			Headless:        getEnvBool("SCRAPE_HEADLESS", true),
			Concurrency:     getEnvInt("SCRAPE_CONCURRENCY", 3),
			SourceStaggerMS: getEnvInt("SCRAPE_SOURCE_STAGGER_MS", 0),
			UserAgent:       getEnv("USER_AGENT", DefaultUserAgent),
		},
		Enrichment: EnrichmentConfig{
			Interval: getEnvDuration("ENRICH_INTERVAL", 30*time.Minute),
			Batch:    getEnvInt("ENRICH_BATCH", 10),
		},
		API: APIConfig{
			Addr: getEnv("API_ADDR", ":8080"),
		},
		DBPath:   getEnv("DB_PATH", "bizscout.db"),
		LogPath:  getEnv("LOG_PATH", "bizscout.log"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		SitesDir: getEnv("SITES_DIR", "config/sites"),
		Sites:    make(map[string]*SiteConfig),
	}

	cfg.Scheduler.Interval = getEnvDuration("SCRAPE_INTERVAL", 0)

	if err := cfg.loadSiteConfigs(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DefaultRunOptions returns the run options implied by the environment.
func (c *Config) DefaultRunOptions() RunOptions {
	return RunOptions{
		MaxPages:             c.Scraper.MaxPages,
		DelayBetweenRequests: c.Scraper.DelayMS,
		TimeoutMS:            c.Scraper.TimeoutMS,
		Headless:             c.Scraper.Headless,
	}
}

// SiteIDs returns enabled site IDs in a stable order.
func (c *Config) SiteIDs() []string {
	ids := make([]string, 0, len(c.Sites))
	for id, site := range c.Sites {
		if site.IsEnabled() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (c *Config) loadSiteConfigs() error {
	sites, err := LoadSiteConfigs(c.SitesDir)
	if err != nil {
		return err
	}
	c.Sites = sites
	return nil
}

// LoadSiteConfigs reads every *.yaml file in dir. A missing directory is
// not an error.
func LoadSiteConfigs(dir string) (map[string]*SiteConfig, error) {
	sites := make(map[string]*SiteConfig)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return sites, nil
		}
		return nil, err
	}

	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}

		var site SiteConfig
		if err := yaml.Unmarshal(data, &site); err != nil {
			return nil, err
		}
		if site.ID == "" {
			site.ID = strings.TrimSuffix(entry.Name(), ext)
		}
		if site.Adapter == "" {
			site.Adapter = site.ID
		}
		if site.Primary == "" {
			site.Primary = "direct"
		}

		sites[site.ID] = &site
	}

	return sites, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
