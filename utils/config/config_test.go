package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/scenario-gateway/utils/config"
	"gopkg.in/yaml.v2"
)

const sample = `
input:
  uri: mongodb://localhost:27017
  map:
    db: srt
    col: map_town
  scenario:
    file: data/scenario.yaml
control:
  step:
    start: 0
    total: 600
    interval: 0.1
  snap_distance: 3
output:
  sqlite: out/trajectory.db
`

func TestParseConfig(t *testing.T) {
	var c config.Config
	require.NoError(t, yaml.UnmarshalStrict([]byte(sample), &c))
	assert.Equal(t, "srt", c.Input.Map.GetDb())
	assert.Equal(t, "map_town", c.Input.Map.GetColl())
	require.NotNil(t, c.Input.Scenario)
	assert.Equal(t, "data/scenario.yaml", c.Input.Scenario.File)
	assert.Equal(t, int32(600), c.Control.Step.Total)
	assert.Equal(t, "out/trajectory.db", c.Output.SQLite)
	assert.Empty(t, c.Output.Dat)

	var bad config.Config
	assert.Error(t, yaml.UnmarshalStrict([]byte("control:\n  unknown: 1\n"), &bad))
}

func TestRuntimeConfigDefaults(t *testing.T) {
	var c config.Config
	require.NoError(t, yaml.UnmarshalStrict([]byte(sample), &c))
	rc := config.NewRuntimeConfig(c)
	assert.Equal(t, 3.0, rc.C.SnapDistance)
	assert.Equal(t, config.DefaultSnapTolerance, rc.C.SnapTolerance)
	assert.Equal(t, 0.1, rc.C.Step.Interval)
	assert.Equal(t, rc.C, rc.All.Control)

	empty := config.Control{}.WithDefaults()
	assert.Equal(t, config.DefaultSnapDistance, empty.SnapDistance)
	assert.Equal(t, config.DefaultInterval, empty.Step.Interval)
}
