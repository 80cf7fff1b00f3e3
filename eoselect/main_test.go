package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nci/eoselect/metrics"
	"github.com/nci/eoselect/selection"
	"github.com/nci/eoselect/utils"
)

func writeConfig(t *testing.T, mutate func(c *utils.Config)) string {
	fixture, err := filepath.Abs("testdata/hierarchy.yaml")
	require.NoError(t, err)

	config := utils.Config{
		LogLevel: "error",
		Store:    utils.StoreConfig{Driver: utils.DriverFixture, Fixture: fixture},
	}
	if mutate != nil {
		mutate(&config)
	}
	raw, err := json.Marshal(config)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, raw, 0644))
	return path
}

func run(t *testing.T, args ...string) ([]map[string]interface{}, error) {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()

	var records []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &rec), line)
		records = append(records, rec)
	}
	return records, err
}

func field(records []map[string]interface{}, key string) []interface{} {
	out := make([]interface{}, len(records))
	for i, r := range records {
		out[i] = r[key]
	}
	return out
}

func TestResolveCommand(t *testing.T) {
	conf := writeConfig(t, nil)

	records, err := run(t, "resolve", "--conf", conf, "A")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"A", "B", "C"}, field(records, "identifier"))
	assert.Equal(t, "collection", records[0]["kind"])

	records, err = run(t, "resolve", "--conf", conf, "--subset", `t("2020-01-01","2020-01-31")`, "A")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"A", "B"}, field(records, "identifier"))
}

func TestSelectCommand(t *testing.T) {
	conf := writeConfig(t, nil)

	records, err := run(t, "select", "--conf", conf, "--subset", `t("2020-01-01","2020-01-31")`, "A")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "D", records[0]["identifier"])
	assert.Equal(t, "2020-01-10T00:00:00.000Z", records[0]["begin"])
	assert.Equal(t, []interface{}{130.0, -30.0, 131.0, -29.0}, records[0]["bbox"])

	records, err = run(t, "select", "--conf", conf, "--order", "-begin", "--where", "cloud_cover > 0", "A", "G")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"E", "D"}, field(records, "identifier"))

	records, err = run(t, "select", "--conf", conf, "--point", "140.5,-19.5", "A")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"E"}, field(records, "identifier"))
}

func TestSelectQuery(t *testing.T) {
	conf := writeConfig(t, nil)

	records, err := run(t, "select", "--conf", conf, "--query", "coverage=A&order=begin&limit=1")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"D"}, field(records, "identifier"))

	records, err = run(t, "select", "--conf", conf, "--query", "coverage=A&order=begin&limit=1", "--limit", "5", "G")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"D", "G", "E"}, field(records, "identifier"))
}

func TestSelectErrors(t *testing.T) {
	conf := writeConfig(t, nil)

	_, err := run(t, "select", "--conf", conf, "A", "X")
	assert.True(t, errors.Is(err, selection.ErrUnknownIdentifier))
	assert.Equal(t, metrics.OutcomeUnknown, outcomeOf(err))

	_, err = run(t, "select", "--conf", conf, "--min", "3", "A")
	assert.True(t, errors.Is(err, selection.ErrInsufficientResults))
	assert.Equal(t, metrics.OutcomeInsufficient, outcomeOf(err))

	for _, args := range [][]string{
		{"--point", "east,west", "A"},
		{"--point", "1,2", "--bbox", "0,0,1,1", "A"},
		{"--bbox", "10,0,0,10", "A"},
		{"--subset", `t("yesterday")`, "A"},
		{"--where", "cloud_cover <", "A"},
		{"--geometry", "CIRCLE(0 0)", "A"},
		{},
	} {
		_, err = run(t, append([]string{"select", "--conf", conf}, args...)...)
		require.Error(t, err, "%v", args)
		assert.Equal(t, metrics.OutcomeInvalid, outcomeOf(err), "%v: %v", args, err)
	}

	_, err = run(t, "select", "--conf", filepath.Join(t.TempDir(), "missing.json"), "A")
	assert.Error(t, err)
}

func TestSelectMaxArea(t *testing.T) {
	conf := writeConfig(t, func(c *utils.Config) {
		c.Selection.MaxArea = 1
	})

	_, err := run(t, "select", "--conf", conf, "--bbox", "0,0,10,10", "A")
	assert.True(t, errors.Is(err, errGeometryTooLarge))

	records, err := run(t, "select", "--conf", conf, "--geometry", "POLYGON((130 -30,130.5 -30,130.5 -29.5,130 -29.5,130 -30))", "A")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"D"}, field(records, "identifier"))
}

func TestSampleCommand(t *testing.T) {
	conf := writeConfig(t, nil)

	records, err := run(t, "sample", "--conf", conf,
		"--begin", "2020-01-01", "--end", "2020-01-31",
		"--x", "130.505", "--y", "-29.255", "A")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "D", records[0]["identifier"])
	assert.Equal(t, []interface{}{50.0, 25.0}, records[0]["pixel"])

	records, err = run(t, "sample", "--conf", conf,
		"--begin", "2021-01-01", "--end", "2021-12-31",
		"--x", "140.5", "--y", "-19.5", "A")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "coverage has no geotransform", records[0]["error"])

	_, err = run(t, "sample", "--conf", conf, "--begin", "2021-01-01", "--x", "1", "--y", "1", "A")
	assert.Error(t, err)
}

func TestMetricsTextfile(t *testing.T) {
	textfile := filepath.Join(t.TempDir(), "eoselect.prom")
	logDir := t.TempDir()
	conf := writeConfig(t, func(c *utils.Config) {
		c.Metrics = utils.MetricsConfig{LogDir: logDir, Prometheus: true, TextFile: textfile}
	})

	_, err := run(t, "select", "--conf", conf, "A")
	require.NoError(t, err)

	raw, err := os.ReadFile(textfile)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `eoselect_selections_total{outcome="ok"} 1`)

	entries, err := os.ReadDir(logDir)
	require.NoError(t, err)
	var logged strings.Builder
	for _, e := range entries {
		b, err := os.ReadFile(filepath.Join(logDir, e.Name()))
		require.NoError(t, err)
		logged.Write(b)
	}
	assert.Contains(t, logged.String(), `"num_coverages":2`)
}

func TestCheckConf(t *testing.T) {
	conf := writeConfig(t, nil)

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"check-conf", "--conf", conf})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), `"driver": "fixture"`)

	bad := writeConfig(t, func(c *utils.Config) {
		c.Selection.DefaultMode = "touches"
	})
	root = newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"check-conf", "--conf", bad})
	assert.True(t, errors.Is(root.Execute(), utils.ErrInvalidConfig))
}

func TestFixtureRelativeToConfig(t *testing.T) {
	dir := t.TempDir()
	raw, err := os.ReadFile("testdata/hierarchy.yaml")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "archive.yaml"), raw, 0644))
	conf := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(conf, []byte(`{"log_level":"error","store":{"driver":"fixture","fixture":"archive.yaml"}}`), 0644))

	records, err := run(t, "resolve", "--conf", conf, "Z")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"Z"}, field(records, "identifier"))
}
