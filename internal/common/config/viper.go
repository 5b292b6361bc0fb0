package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the struct that holds the configuration of the application
type Config struct {
	App        AppConfig        `json:"app"`
	RabbitMq   RabbitMQConfig   `json:"rabbitmq"`
	Resolver   ResolverConfig   `json:"resolver"`
	Downloader DownloaderConfig `json:"downloader"`
	WebPanel   WebPanelConfig   `json:"webpanel"`
}

type AppConfig struct {
	Name     string `json:"name"`
	LogLevel int    `json:"logLevel"`
	Env      string `json:"env"`
}

type RabbitMQConfig struct {
	URL              string        `json:"url"`
	Exchange         ExchangeNames `json:"exchange"`
	Queue            QueueNames    `json:"queue"`
	ReconnectRetries int           `json:"reconnectRetries"`
	ReconnectTimeout int           `json:"reconnectTimeout"`
}

// ResolverConfig configures the channel resolver. ListingAPI and VideoInfoAPI
// point at the CNTV endpoints by default and are overridable for testing and
// for the day the site moves them. Rewrites is the host-substitution rule set
// applied to resolved manifest URLs; Proxy routes all resolver traffic when
// the direct CDN host rejects this network origin.
type ResolverConfig struct {
	ListingAPI     string            `json:"listingApi"`
	VideoInfoAPI   string            `json:"videoInfoApi"`
	PageSize       int               `json:"pageSize"`
	UserAgent      string            `json:"userAgent"`
	Timeout        int               `json:"timeout"`
	Proxy          string            `json:"proxy"`
	Rewrites       map[string]string `json:"rewrites"`
	EnableSniffer  bool              `json:"enableSniffer"`
	SnifferTimeout int               `json:"snifferTimeout"`
}

type DownloaderConfig struct {
	Concurrency     int    `json:"concurrency"`
	FragmentThreads int    `json:"fragmentThreads"`
	OutputDir       string `json:"outputDir"`
	YtDlpDir        string `json:"ytDlpDir"`
	SkipCheck       bool   `json:"skipCheck"`
}

type WebPanelConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type ExchangeNames struct {
	Task string `json:"task"`
	Log  string `json:"log"`
}

type QueueNames struct {
	CommandQueue string `json:"commandQueue"`
	EpisodeQueue string `json:"episodeQueue"`
	LogQueue     string `json:"logQueue"`
}

// Load reads config.json from the working directory, layered under any
// environment overrides. A .env file is honored first so containerized
// deployments can keep everything in one place.
func Load() (*Config, error) {
	// Missing .env is fine, the file is optional
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// RABBITMQ_URL wins over the file, viper's AutomaticEnv does not map
	// nested keys
	if envURL := os.Getenv("RABBITMQ_URL"); envURL != "" {
		config.RabbitMq.URL = envURL
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "cctvdownloader")
	v.SetDefault("app.logLevel", 4)
	v.SetDefault("app.env", "production")

	v.SetDefault("resolver.listingApi", "https://api.cntv.cn/NewVideo/getVideoListByColumn")
	v.SetDefault("resolver.videoInfoApi", "https://vdn.apps.cntv.cn/api/getHttpVideoInfo.do")
	v.SetDefault("resolver.pageSize", 100)
	v.SetDefault("resolver.userAgent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("resolver.timeout", 15)
	v.SetDefault("resolver.snifferTimeout", 30)
	// The listing API hands out manifest URLs on hosts that 403 anything
	// without the expected referer context. These direct hosts serve the
	// same paths without the check.
	v.SetDefault("resolver.rewrites", map[string]string{
		"hls.cntv.lxdns.com":  "hls.cntv.myalicdn.com",
		"hls.cntv.myhwcdn.cn": "hls.cntv.myalicdn.com",
	})

	v.SetDefault("downloader.concurrency", 4)
	v.SetDefault("downloader.fragmentThreads", 8)
	v.SetDefault("downloader.outputDir", "/data/videos")
	v.SetDefault("downloader.ytDlpDir", "/app/yt_dlp")

	v.SetDefault("rabbitmq.exchange.task", "cctvdownloader")
	v.SetDefault("rabbitmq.exchange.log", "cctvdownloader_log")
	v.SetDefault("rabbitmq.queue.commandQueue", "resolver_commands")
	v.SetDefault("rabbitmq.queue.episodeQueue", "episode_tasks")
	v.SetDefault("rabbitmq.queue.logQueue", "pipeline_log")
	v.SetDefault("rabbitmq.reconnectRetries", 5)
	v.SetDefault("rabbitmq.reconnectTimeout", 5000)

	v.SetDefault("webpanel.host", "0.0.0.0")
	v.SetDefault("webpanel.port", 8080)
}

// Get config for app
func (c *Config) GetAppConfig() *AppConfig {
	return &c.App
}

// Get config for the resolver
func (c *Config) GetResolverConfig() *ResolverConfig {
	return &c.Resolver
}

// Get config for downloader
func (c *Config) GetDownloaderConfig() *DownloaderConfig {
	return &c.Downloader
}

// Get config for web panel
func (c *Config) GetWebPanelConfig() *WebPanelConfig {
	return &c.WebPanel
}

// Get config for RabbitMQ
func (c *Config) GetRabbitMQConfig() *RabbitMQConfig {
	return &c.RabbitMq
}
