package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	reach "github.com/digineo/go-reach"
	"github.com/digineo/go-reach/internal/config"
	"github.com/digineo/go-reach/monitor"
	"github.com/digineo/go-reach/rules"
)

func TestAddTargetsFromRules(t *testing.T) {
	file, err := rules.Load("../../testdata/network-rules.yaml")
	require.NoError(t, err)

	mon := monitor.New(nil, time.Second)
	rows, err := addTargets(mon, file, nil, nil, true)
	require.NoError(t, err)
	assert.Len(t, rows, 7)
	assert.Len(t, mon.Keys(), 7)
	assert.Equal(t, "network/google-dns", rows[1].key)

	mon = monitor.New(nil, time.Second)
	rows, err = addTargets(mon, file, nil, nil, false)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(rows), 7)
	assert.Len(t, mon.Keys(), len(rows))
}

func TestAddTargetsFromAddresses(t *testing.T) {
	mon := monitor.New(nil, time.Second)

	rows, err := addTargets(mon, nil, []string{"127.0.0.1", "localhost"}, []uint16{22}, false)
	require.NoError(t, err)
	assert.Equal(t, []row{
		{key: "127.0.0.1", address: "127.0.0.1"},
		{key: "localhost", address: "localhost"},
	}, rows)
	assert.Equal(t, []string{"127.0.0.1", "localhost"}, mon.Keys())

	_, err = addTargets(mon, nil, []string{""}, nil, false)
	assert.Error(t, err)
}

func TestLoadRulesAppliesPolicy(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(os.WriteFile(path, []byte(`
literal_policy: reverse
timeouts:
  dns: 2s
rules:
  - name: doc
    address: 192.0.2.1
    resolvable: false
`), 0o600))

	cfg := config.Config{Timeouts: reach.DefaultTimeouts()}
	file, err := loadRules(&cfg, path, flag.NewFlagSet("test", flag.ContinueOnError))
	require.NoError(err)
	require.NotNil(file)
	assert.Equal(reach.LiteralReverse, cfg.EngineOptions().Literals)
	assert.Equal(2*time.Second, cfg.Timeouts.DNS)

	file, err = loadRules(&cfg, "", nil)
	assert.NoError(err)
	assert.Nil(file)

	_, err = loadRules(&cfg, filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(err)
}
