package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/juju/errors"
	"github.com/mcuadros/go-defaults"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/lightartw/textanalyze/types"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	DefaultEnvFile = ".env"
	envPrefix      = "TEXTANALYZE_"
)

// Config is the application configuration of the analysis tool.
type Config struct {
	InputFile string `yaml:"input_file" default:"data/input.csv"`
	ReportDir string `yaml:"report_dir" default:"output/reports"`

	Database DatabaseConfig `yaml:"database"`
	Crawler  CrawlerConfig  `yaml:"crawler"`
	LLM      LLMConfig      `yaml:"llm"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Daily    DailyConfig    `yaml:"daily_report"`
	Workflow WorkflowConfig `yaml:"workflow"`
}

type DatabaseConfig struct {
	/**
	 * default: sqlite
	 * one of sqlite, postgres, memory. memory is only meant for testing.
	 */
	Driver     string         `yaml:"driver" default:"sqlite"`
	SQLitePath string         `yaml:"sqlite_path" default:"data/text_factor.db"`
	Postgres   PostgresConfig `yaml:"postgres"`
}

type PostgresConfig struct {
	Host     string `yaml:"host" default:"localhost"`
	Port     int    `yaml:"port" default:"5432"`
	User     string `yaml:"user" default:"postgres"`
	Password string `yaml:"password"`
	Database string `yaml:"database" default:"textanalyze"`
	SSLMode  string `yaml:"sslmode" default:"disable"`
}

type CrawlerConfig struct {
	Timeout   time.Duration `yaml:"timeout" default:"10s"`
	UserAgent string        `yaml:"user_agent" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"`
}

type LLMConfig struct {
	BaseURL string `yaml:"base_url" default:"https://api.deepseek.com/v1"`
	/**
	 * an empty key switches the agents to the offline mock completer.
	 */
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model" default:"deepseek-chat"`
	Temperature float64       `yaml:"temperature" default:"0.2"`
	Timeout     time.Duration `yaml:"timeout" default:"60s"`
}

type AnalysisConfig struct {
	// MaxContentLength bounds the article text sent to the LLM, in runes.
	MaxContentLength int `yaml:"max_content_length" default:"1000000"`
	SimilarDays      int `yaml:"similar_days" default:"30"`
	SimilarLimit     int `yaml:"similar_limit" default:"5"`
}

// DailyConfig drives the daily market report.
type DailyConfig struct {
	// DaysBack is the number of event days, ending on the report date, the
	// report looks at.
	DaysBack  int  `yaml:"days_back" default:"7"`
	MaxEvents int  `yaml:"max_events" default:"50"`
	Detailed  bool `yaml:"detailed" default:"true"`
	Summary   bool `yaml:"summary" default:"true"`
}

type WorkflowConfig struct {
	RetryCount int           `yaml:"retry_count" default:"2"`
	RetryDelay time.Duration `yaml:"retry_delay" default:"1s"`
	MaxWorkers int           `yaml:"max_workers" default:"5"`
	Parallel   bool          `yaml:"parallel" default:"true"`
}

func Default() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

/**
 * Load builds the configuration in layers: defaults, then the optional YAML
 * file at path, then the environment. envFile is loaded into the environment
 * first without overriding variables that are already set; a missing
 * DefaultEnvFile is ignored, any other missing env file is an error.
 */
func Load(path, envFile string) (*Config, error) {
	if envFile == "" {
		envFile = DefaultEnvFile
	}
	if err := godotenv.Load(envFile); err != nil {
		if !os.IsNotExist(err) || envFile != DefaultEnvFile {
			return nil, errors.Annotatef(err, "failed to load env file %s", envFile)
		}
	}

	cfg := Default()
	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Annotatef(err, "failed to read config %s", path)
		}
		if err := yaml.Unmarshal(content, cfg); err != nil {
			return nil, errors.Annotatef(err, "failed to parse config %s", path)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, errors.Trace(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return cfg, nil
}

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		if v, ok := lookup(key); ok && v != "" {
			n, err := cast.ToIntE(v)
			if err != nil {
				return errors.NotValidf("%s=%q", key, v)
			}
			*dst = n
		}
		return nil
	}
	flag := func(key string, dst *bool) error {
		if v, ok := lookup(key); ok && v != "" {
			b, err := cast.ToBoolE(v)
			if err != nil {
				return errors.NotValidf("%s=%q", key, v)
			}
			*dst = b
		}
		return nil
	}

	str(envPrefix+"INPUT_FILE", &c.InputFile)
	str(envPrefix+"REPORT_DIR", &c.ReportDir)
	str(envPrefix+"DB_DRIVER", &c.Database.Driver)
	str(envPrefix+"SQLITE_PATH", &c.Database.SQLitePath)
	str(envPrefix+"PG_HOST", &c.Database.Postgres.Host)
	str(envPrefix+"PG_USER", &c.Database.Postgres.User)
	str(envPrefix+"PG_PASSWORD", &c.Database.Postgres.Password)
	str(envPrefix+"PG_DATABASE", &c.Database.Postgres.Database)
	str(envPrefix+"PG_SSLMODE", &c.Database.Postgres.SSLMode)
	str("LLM_API_KEY", &c.LLM.APIKey)
	str("LLM_BASE_URL", &c.LLM.BaseURL)
	str("LLM_MODEL", &c.LLM.Model)

	for key, dst := range map[string]*int{
		envPrefix + "PG_PORT":            &c.Database.Postgres.Port,
		envPrefix + "MAX_WORKERS":        &c.Workflow.MaxWorkers,
		envPrefix + "RETRY_COUNT":        &c.Workflow.RetryCount,
		envPrefix + "MAX_CONTENT_LENGTH": &c.Analysis.MaxContentLength,
		envPrefix + "SIMILAR_DAYS":       &c.Analysis.SimilarDays,
		envPrefix + "SIMILAR_LIMIT":      &c.Analysis.SimilarLimit,
		envPrefix + "DAILY_DAYS_BACK":    &c.Daily.DaysBack,
		envPrefix + "DAILY_MAX_EVENTS":   &c.Daily.MaxEvents,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}
	return flag(envPrefix+"PARALLEL", &c.Workflow.Parallel)
}

func (c *Config) Validate() error {
	var problems []string
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.SQLitePath == "" {
			problems = append(problems, "sqlite path is empty")
		}
	case DriverPostgres, DriverMemory:
	default:
		problems = append(problems, "unknown database driver "+c.Database.Driver)
	}
	if c.Workflow.MaxWorkers < 1 {
		problems = append(problems, "max workers must be at least 1")
	}
	if c.Workflow.RetryCount < 0 {
		problems = append(problems, "retry count is negative")
	}
	if c.Analysis.MaxContentLength <= 0 {
		problems = append(problems, "max content length must be positive")
	}
	if c.Analysis.SimilarDays < 0 || c.Analysis.SimilarLimit < 0 {
		problems = append(problems, "similar events window is negative")
	}
	if c.Daily.DaysBack < 1 || c.Daily.MaxEvents < 1 {
		problems = append(problems, "daily report needs at least one day and one event")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		problems = append(problems, "llm temperature out of [0, 2]")
	}
	if len(problems) > 0 {
		return errors.NotValidf("config (%s)", strings.Join(problems, "; "))
	}
	return nil
}

// UseMockLLM reports whether no API key is configured.
func (c *Config) UseMockLLM() bool {
	return strings.TrimSpace(c.LLM.APIKey) == ""
}

func (c *Config) SimilarLookback() time.Duration {
	return time.Duration(c.Analysis.SimilarDays) * 24 * time.Hour
}

// StoreOptions maps the database section onto repository options.
func (c *Config) StoreOptions() []types.StoreOption {
	switch c.Database.Driver {
	case DriverPostgres:
		pg := c.Database.Postgres
		return []types.StoreOption{types.WithPostgresConfig(&types.PostgresConfig{
			Host:     pg.Host,
			Port:     pg.Port,
			User:     pg.User,
			Password: pg.Password,
			Database: pg.Database,
			SSLMode:  pg.SSLMode,
		})}
	case DriverMemory:
		return []types.StoreOption{types.EnableMemStore()}
	default:
		return []types.StoreOption{types.WithSQLitePath(c.Database.SQLitePath)}
	}
}

func (c *Config) BatchOptions() []types.BatchOption {
	opts := []types.BatchOption{types.SetMaxWorkers(c.Workflow.MaxWorkers)}
	if !c.Workflow.Parallel {
		opts = append(opts, types.DisableParallel())
	}
	return opts
}
