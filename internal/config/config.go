package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Data        DataConfig       `yaml:"data" mapstructure:"data"`
	CRS         string           `yaml:"crs" mapstructure:"crs"`
	Granularity string           `yaml:"granularity" mapstructure:"granularity"`
	Join        JoinConfig       `yaml:"join" mapstructure:"join"`
	Census      CensusConfig     `yaml:"census" mapstructure:"census"`
	Allocation  AllocationConfig `yaml:"allocation" mapstructure:"allocation"`
	Filters     FiltersConfig    `yaml:"filters" mapstructure:"filters"`
	Cache       CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Metrics     MetricsConfig    `yaml:"metrics" mapstructure:"metrics"`
	Log         LogConfig        `yaml:"log" mapstructure:"log"`
}

// DataConfig locates the input datasets and names their key columns.
type DataConfig struct {
	GNAFPath         string `yaml:"gnaf_path" mapstructure:"gnaf_path"`
	GNAFPattern      string `yaml:"gnaf_pattern" mapstructure:"gnaf_pattern"`
	GNAFDelimiter    string `yaml:"gnaf_delimiter" mapstructure:"gnaf_delimiter"`
	AddressIDColumn  string `yaml:"address_id_column" mapstructure:"address_id_column"`
	LongitudeColumn  string `yaml:"longitude_column" mapstructure:"longitude_column"`
	LatitudeColumn   string `yaml:"latitude_column" mapstructure:"latitude_column"`
	AddressCRS       string `yaml:"address_crs" mapstructure:"address_crs"`
	ShapefilePath    string `yaml:"shapefile_path" mapstructure:"shapefile_path"`
	ShapefileCRS     string `yaml:"shapefile_crs" mapstructure:"shapefile_crs"`
	SA1CodeColumn    string `yaml:"sa1_code_column" mapstructure:"sa1_code_column"`
	SA2CodeColumn    string `yaml:"sa2_code_column" mapstructure:"sa2_code_column"`
	CensusPath       string `yaml:"census_path" mapstructure:"census_path"`
	CensusPattern    string `yaml:"census_pattern" mapstructure:"census_pattern"`
	CensusCodeColumn string `yaml:"census_code_column" mapstructure:"census_code_column"`
	OutputPath       string `yaml:"output_path" mapstructure:"output_path"`
	ReportPath       string `yaml:"report_path" mapstructure:"report_path"`
}

// JoinConfig configures the address-to-region spatial join.
type JoinConfig struct {
	Workers            int     `yaml:"workers" mapstructure:"workers"`
	UnassignedStrategy string  `yaml:"unassigned_strategy" mapstructure:"unassigned_strategy"`
	MaxNearestDistance float64 `yaml:"max_nearest_distance" mapstructure:"max_nearest_distance"`
}

// CensusConfig declares the feature schema of the census tables.
type CensusConfig struct {
	Features      []string `yaml:"features" mapstructure:"features"`
	TotalPrefix   string   `yaml:"total_prefix" mapstructure:"total_prefix"`
	MissingAsZero bool     `yaml:"missing_as_zero" mapstructure:"missing_as_zero"`
	Sheet         string   `yaml:"sheet" mapstructure:"sheet"`
	SkipRows      int      `yaml:"skip_rows" mapstructure:"skip_rows"`
}

// AllocationConfig configures the census-to-address allocation.
type AllocationConfig struct {
	Seed    uint64 `yaml:"seed" mapstructure:"seed"`
	Workers int    `yaml:"workers" mapstructure:"workers"`
	Mode    string `yaml:"mode" mapstructure:"mode"`
}

// FiltersConfig restricts the run to a subset of regions.
type FiltersConfig struct {
	States      []string `yaml:"states" mapstructure:"states"`
	RegionCodes []string `yaml:"region_codes" mapstructure:"region_codes"`
}

// CacheConfig selects the backend for cached spatial joins.
type CacheConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// MetricsConfig configures the node-exporter textfile dump.
type MetricsConfig struct {
	Textfile string `yaml:"textfile" mapstructure:"textfile"`
}

type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SYNTHPOP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("crs", "EPSG:7844")
	v.SetDefault("granularity", "sa1")
	v.SetDefault("data.gnaf_path", "data/gnaf")
	v.SetDefault("data.gnaf_pattern", `[A-Z]+_ADDRESS_DEFAULT_GEOCODE_psv`)
	v.SetDefault("data.gnaf_delimiter", "|")
	v.SetDefault("data.address_id_column", "ADDRESS_DETAIL_PID")
	v.SetDefault("data.longitude_column", "LONGITUDE")
	v.SetDefault("data.latitude_column", "LATITUDE")
	v.SetDefault("data.address_crs", "EPSG:7844")
	v.SetDefault("data.shapefile_path", "data/SA1_2021_AUST_GDA2020.shp")
	v.SetDefault("data.sa1_code_column", "SA1_CODE21")
	v.SetDefault("data.sa2_code_column", "SA2_CODE21")
	v.SetDefault("data.census_path", "data/census")
	v.SetDefault("data.census_pattern", `2021Census_G\d+[A-Z]?_AUST_SA1`)
	v.SetDefault("data.census_code_column", "SA1_CODE_2021")
	v.SetDefault("data.output_path", "allocated.csv")
	v.SetDefault("data.report_path", "allocation_report.yaml")
	v.SetDefault("join.workers", 8)
	v.SetDefault("join.unassigned_strategy", "keep")
	v.SetDefault("join.max_nearest_distance", 0.01)
	v.SetDefault("census.total_prefix", "Tot_")
	v.SetDefault("allocation.seed", 42)
	v.SetDefault("allocation.workers", 8)
	v.SetDefault("allocation.mode", "single")
	v.SetDefault("cache.driver", "sqlite")
	v.SetDefault("cache.path", "synthpop_cache.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks the fields a command needs. Mode is "join" or "allocate";
// allocate implies everything join needs.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "join", "allocate":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.CRS == "" {
		errs = append(errs, "crs is required")
	}
	if c.Data.GNAFPath == "" {
		errs = append(errs, "data.gnaf_path is required")
	}
	if c.Data.ShapefilePath == "" {
		errs = append(errs, "data.shapefile_path is required")
	}
	switch c.Granularity {
	case "sa1", "sa2":
	default:
		errs = append(errs, fmt.Sprintf("granularity must be sa1 or sa2, got %q", c.Granularity))
	}
	switch c.Join.UnassignedStrategy {
	case "keep", "filter", "nearest":
	default:
		errs = append(errs, fmt.Sprintf("join.unassigned_strategy must be keep, filter or nearest, got %q", c.Join.UnassignedStrategy))
	}
	if c.Join.Workers < 1 || c.Join.Workers > 256 {
		errs = append(errs, fmt.Sprintf("join.workers must be between 1 and 256, got %d", c.Join.Workers))
	}
	if c.Join.MaxNearestDistance < 0 {
		errs = append(errs, "join.max_nearest_distance must be >= 0")
	}
	switch c.Cache.Driver {
	case "none":
	case "sqlite":
		if c.Cache.Path == "" {
			errs = append(errs, "cache.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Cache.DatabaseURL == "" {
			errs = append(errs, "cache.database_url is required for the postgres driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("cache.driver must be sqlite, postgres or none, got %q", c.Cache.Driver))
	}

	if mode == "allocate" {
		if len(c.Census.Features) == 0 {
			errs = append(errs, "census.features must not be empty")
		}
		if c.Data.CensusPath == "" {
			errs = append(errs, "data.census_path is required")
		}
		if c.Data.OutputPath == "" {
			errs = append(errs, "data.output_path is required")
		}
		switch c.Allocation.Mode {
		case "single", "multi":
		default:
			errs = append(errs, fmt.Sprintf("allocation.mode must be single or multi, got %q", c.Allocation.Mode))
		}
		if c.Allocation.Workers < 1 || c.Allocation.Workers > 256 {
			errs = append(errs, fmt.Sprintf("allocation.workers must be between 1 and 256, got %d", c.Allocation.Workers))
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// RegionColumn returns the polygon attribute holding the region code for
// the configured granularity.
func (c *Config) RegionColumn() string {
	if c.Granularity == "sa2" {
		return c.Data.SA2CodeColumn
	}
	return c.Data.SA1CodeColumn
}

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
