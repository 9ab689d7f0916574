package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	MOENV   MOENVConfig   `yaml:"moenv" mapstructure:"moenv"`
	Fetch   FetchConfig   `yaml:"fetch" mapstructure:"fetch"`
	Paths   PathsConfig   `yaml:"paths" mapstructure:"paths"`
	Output  OutputConfig  `yaml:"output" mapstructure:"output"`
	Convert ConvertConfig `yaml:"convert" mapstructure:"convert"`
	ArcGIS  ArcGISConfig  `yaml:"arcgis" mapstructure:"arcgis"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// MOENVConfig configures dataset discovery on the MOENV open-data platform.
type MOENVConfig struct {
	SearchURL  string `yaml:"search_url" mapstructure:"search_url"`
	ResourceID string `yaml:"resource_id" mapstructure:"resource_id"`
	Limit      int    `yaml:"limit" mapstructure:"limit"`
}

// FetchConfig configures the HTTP client.
type FetchConfig struct {
	TimeoutSecs        int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent          string `yaml:"user_agent" mapstructure:"user_agent"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify" mapstructure:"insecure_skip_verify"`
}

// PathsConfig holds working directories.
type PathsConfig struct {
	TempDir string `yaml:"temp_dir" mapstructure:"temp_dir"`
	RawDir  string `yaml:"raw_dir" mapstructure:"raw_dir"`
}

// OutputConfig configures the GeoJSON and CSV artifacts.
type OutputConfig struct {
	GeoJSON      string `yaml:"geojson" mapstructure:"geojson"`
	CSV          string `yaml:"csv" mapstructure:"csv"`
	HeaderPolicy string `yaml:"header_policy" mapstructure:"header_policy"` // "first" or "union"
	CSVBOM       bool   `yaml:"csv_bom" mapstructure:"csv_bom"`
}

// ConvertConfig selects the shapefile converter.
type ConvertConfig struct {
	Tool        string `yaml:"tool" mapstructure:"tool"` // "ogr2ogr" or "native"
	OGR2OGRPath string `yaml:"ogr2ogr_path" mapstructure:"ogr2ogr_path"`
	Charset     string `yaml:"charset" mapstructure:"charset"`
}

// ArcGISConfig configures regional ArcGIS export downloads.
type ArcGISConfig struct {
	Manifest          string  `yaml:"manifest" mapstructure:"manifest"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DUMPSITE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("moenv.search_url", "https://data.moenv.gov.tw/api/frontstage/datastore.search")
	v.SetDefault("moenv.resource_id", "4bc290c9-93f6-4b47-afde-6fce87c91a4b")
	v.SetDefault("moenv.limit", 100)
	v.SetDefault("fetch.timeout_secs", 60)
	v.SetDefault("fetch.user_agent", "dumpsite-cli/1.0")
	v.SetDefault("fetch.insecure_skip_verify", false)
	v.SetDefault("paths.temp_dir", "tmp")
	v.SetDefault("paths.raw_dir", "raw")
	v.SetDefault("output.geojson", "docs/json/points.json")
	v.SetDefault("output.csv", "docs/csv/points.csv")
	v.SetDefault("output.header_policy", "first")
	v.SetDefault("output.csv_bom", false)
	v.SetDefault("convert.tool", "ogr2ogr")
	v.SetDefault("convert.ogr2ogr_path", "ogr2ogr")
	v.SetDefault("convert.charset", "big5")
	v.SetDefault("arcgis.manifest", "regions.yaml")
	v.SetDefault("arcgis.requests_per_second", 1.0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks enumerated settings and bounds. All problems are reported
// together.
func (c *Config) Validate() error {
	var problems []string

	switch c.Output.HeaderPolicy {
	case "", "first", "union":
	default:
		problems = append(problems, "output.header_policy must be first or union")
	}
	if c.Output.GeoJSON == "" && c.Output.CSV == "" {
		problems = append(problems, "output.geojson or output.csv is required")
	}

	switch c.Convert.Tool {
	case "ogr2ogr", "native":
	default:
		problems = append(problems, "convert.tool must be ogr2ogr or native")
	}

	if c.MOENV.Limit < 1 {
		problems = append(problems, "moenv.limit must be > 0")
	}
	if c.Fetch.TimeoutSecs < 1 {
		problems = append(problems, "fetch.timeout_secs must be > 0")
	}
	if c.ArcGIS.RequestsPerSecond < 0 {
		problems = append(problems, "arcgis.requests_per_second must be >= 0")
	}
	if c.Paths.TempDir == "" {
		problems = append(problems, "paths.temp_dir is required")
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		problems = append(problems, "log.format must be json or console")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
