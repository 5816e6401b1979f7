package cfg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unsetEnv clears key for the duration of the test.
func unsetEnv(t *testing.T, key string) {
	t.Helper()

	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"HEAPDB_ENVIRONMENT", "HEAPDB_DATA_DIR", "HEAPDB_PAGE_SIZE", "HEAPDB_POOL_PAGES",
		"HEAPDB_IO_COST_PER_PAGE", "HEAPDB_HISTOGRAM_BUCKETS", "HEAPDB_ANALYZE_PARALLELISM",
		"HEAPDB_FLUSH_SCHEDULE", "HEAPDB_ANALYZE_SCHEDULE",
	} {
		unsetEnv(t, key)
	}

	config, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), config)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("HEAPDB_ENVIRONMENT", "prod")
	t.Setenv("HEAPDB_POOL_PAGES", "7")
	t.Setenv("HEAPDB_IO_COST_PER_PAGE", "250")
	t.Setenv("HEAPDB_FLUSH_SCHEDULE", "@every 30s")

	config, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, EnvProd, config.Environment)
	assert.Equal(t, 7, config.PoolPages)
	assert.Equal(t, 250, config.IOCostPerPage)
	assert.Equal(t, "@every 30s", config.FlushSchedule)
}

func TestLoadFromFile(t *testing.T) {
	unsetEnv(t, "HEAPDB_PAGE_SIZE")
	unsetEnv(t, "HEAPDB_HISTOGRAM_BUCKETS")
	t.Setenv("HEAPDB_HISTOGRAM_BUCKETS", "16")

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("HEAPDB_PAGE_SIZE=8192\nHEAPDB_HISTOGRAM_BUCKETS=32\n"), 0o600))

	config, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8192, config.PageSize)
	assert.Equal(t, 16, config.HistogramBuckets, "environment wins over the file")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
}

func TestLoadInvalid(t *testing.T) {
	t.Setenv("HEAPDB_POOL_PAGES", "lots")

	_, err := Load("")
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	require.NoError(t, Default().Validate())

	cases := map[string]func(*Config){
		"environment": func(c *Config) { c.Environment = "staging" },
		"page size":   func(c *Config) { c.PageSize = 0 },
		"pool pages":  func(c *Config) { c.PoolPages = -1 },
		"buckets":     func(c *Config) { c.HistogramBuckets = 0 },
		"parallelism": func(c *Config) { c.AnalyzeParallelism = 0 },
		"schedule":    func(c *Config) { c.AnalyzeSchedule = "every tuesday" },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := Default()
			mutate(&c)
			require.ErrorIs(t, c.Validate(), ErrInvalidConfig)
		})
	}
}
