package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFile(t *testing.T) {
	var config Config
	require.NoError(t, config.LoadConfigFile("testdata/config.json"))

	assert.Equal(t, DriverFixture, config.Store.Driver)
	assert.Equal(t, "hierarchy.yaml", config.Store.Fixture)
	assert.Equal(t, DefaultPool, config.Store.Pool)
	assert.Equal(t, DefaultLimit, config.Store.Limit)
	assert.Equal(t, "contains", config.Selection.DefaultMode)
	assert.Equal(t, 1, config.Selection.MinCoverages)
	assert.Equal(t, 4, config.Selection.MaxDepth)
	assert.Equal(t, "-", config.Metrics.LogDir)
	assert.True(t, config.Metrics.Prometheus)
	assert.Equal(t, int64(DefaultMaxLogFileSize), config.Metrics.MaxLogFileSize)
	assert.Equal(t, DefaultMaxLogFiles, config.Metrics.MaxLogFiles)
	assert.Equal(t, "debug", config.LogLevel)
}

func TestLoadConfigFileDefaultsToPostgres(t *testing.T) {
	var config Config
	require.NoError(t, config.LoadConfigFile("testdata/postgres.json"))
	assert.Equal(t, DriverPostgres, config.Store.Driver)
	assert.Equal(t, 2, config.Store.Pool)
}

func TestLoadConfigFileEnvOverrides(t *testing.T) {
	t.Setenv("EOSELECT_DSN", "dbname=other")
	t.Setenv("EOSELECT_MAX_LOG_FILE_SIZE", "2048")

	var config Config
	require.NoError(t, config.LoadConfigFile("testdata/postgres.json"))
	assert.Equal(t, "dbname=other", config.Store.DSN)
	assert.Equal(t, int64(2048), config.Metrics.MaxLogFileSize)

	t.Setenv("EOSELECT_MAX_LOG_FILE_SIZE", "big")
	assert.ErrorIs(t, config.LoadConfigFile("testdata/postgres.json"), ErrInvalidConfig)
}

func TestLoadConfigFileErrors(t *testing.T) {
	var config Config
	assert.ErrorIs(t, config.LoadConfigFile("testdata/bad_driver.json"), ErrInvalidConfig)
	assert.Error(t, config.LoadConfigFile("testdata/missing.json"))
}

func TestValidate(t *testing.T) {
	cases := map[string]Config{
		"postgres without dsn":  {Store: StoreConfig{Driver: DriverPostgres}},
		"fixture without path":  {Store: StoreConfig{Driver: DriverFixture}},
		"unknown mode":          {Store: StoreConfig{Driver: DriverFixture, Fixture: "f"}, Selection: SelectionConfig{DefaultMode: "touches"}},
		"negative min":          {Store: StoreConfig{Driver: DriverFixture, Fixture: "f"}, Selection: SelectionConfig{MinCoverages: -1}},
		"negative depth":        {Store: StoreConfig{Driver: DriverFixture, Fixture: "f"}, Selection: SelectionConfig{MaxDepth: -1}},
		"negative maximum area": {Store: StoreConfig{Driver: DriverFixture, Fixture: "f"}, Selection: SelectionConfig{MaxArea: -1}},
	}
	for name, config := range cases {
		assert.ErrorIs(t, config.Validate(), ErrInvalidConfig, name)
	}

	ok := Config{Store: StoreConfig{Driver: DriverFixture, Fixture: "f"}, Selection: SelectionConfig{DefaultMode: "Within"}}
	assert.NoError(t, ok.Validate())
}

func TestDumpConfig(t *testing.T) {
	out, err := DumpConfig(&Config{Store: StoreConfig{Driver: DriverFixture, Fixture: "f.yaml"}})
	require.NoError(t, err)
	assert.Contains(t, out, `"fixture": "f.yaml"`)
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("warn", false)
	require.NoError(t, err)
	assert.NotNil(t, logger)

	logger, err = NewLogger("", true)
	require.NoError(t, err)
	assert.NotNil(t, logger)

	_, err = NewLogger("loud", false)
	assert.Error(t, err)
}
