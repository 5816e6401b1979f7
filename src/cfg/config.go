package cfg

import (
	"os"

	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"
)

const EnvPrefix = "HEAPDB"

const (
	EnvDev  Environment = "dev"
	EnvProd Environment = "prod"

	DefaultEnv = EnvDev
)

var ErrInvalidConfig = errors.New("invalid config")

type Environment string

func (e Environment) Validate() error {
	if e != EnvDev && e != EnvProd {
		return errors.Wrapf(ErrInvalidConfig, "environment must be either dev or prod, got %q", e)
	}

	return nil
}

// Config is read from HEAPDB_* environment variables, optionally seeded from
// a .env file.
type Config struct {
	Environment Environment `default:"dev"`

	// DataDir is the directory relative files of tables opened one by one are
	// resolved against. Manifest tables resolve against the manifest instead.
	DataDir   string `split_words:"true" default:"."`
	PageSize  int    `split_words:"true" default:"4096"`
	PoolPages int    `split_words:"true" default:"50"`

	IOCostPerPage      int `split_words:"true" default:"1000"`
	HistogramBuckets   int `split_words:"true" default:"100"`
	AnalyzeParallelism int `split_words:"true" default:"4"`

	// Cron specs of the background jobs; empty disables the job.
	FlushSchedule   string `split_words:"true"`
	AnalyzeSchedule string `split_words:"true"`
}

func Default() Config {
	return Config{
		Environment:        DefaultEnv,
		DataDir:            ".",
		PageSize:           4096,
		PoolPages:          50,
		IOCostPerPage:      1000,
		HistogramBuckets:   100,
		AnalyzeParallelism: 4,
	}
}

// Load reads the .env file at path (or ./.env when path is empty and the
// file exists) and then the environment. Variables already set in the
// environment take precedence over the file.
func Load(path string) (Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return Config{}, errors.Wrapf(err, "load env file %s", path)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, errors.Wrap(err, "load .env")
	}

	var config Config
	if err := envconfig.Process(EnvPrefix, &config); err != nil {
		return Config{}, errors.Errorf("process env: %w: %w", ErrInvalidConfig, err)
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}

	return config, nil
}

func (c Config) Validate() error {
	if err := c.Environment.Validate(); err != nil {
		return err
	}

	positive := []struct {
		name  string
		value int
	}{
		{"page size", c.PageSize},
		{"pool pages", c.PoolPages},
		{"io cost per page", c.IOCostPerPage},
		{"histogram buckets", c.HistogramBuckets},
		{"analyze parallelism", c.AnalyzeParallelism},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return errors.Wrapf(ErrInvalidConfig, "%s must be positive, got %d", p.name, p.value)
		}
	}

	for _, expr := range []string{c.FlushSchedule, c.AnalyzeSchedule} {
		if expr == "" {
			continue
		}
		if _, err := cron.ParseStandard(expr); err != nil {
			return errors.Errorf("schedule %q: %w: %w", expr, ErrInvalidConfig, err)
		}
	}

	return nil
}
