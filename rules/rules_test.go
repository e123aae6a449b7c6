package rules

import (
	"testing"
	"time"

	reach "github.com/digineo/go-reach"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBundled(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	f, err := Load("../testdata/network-rules.yaml")
	require.NoError(err)
	require.Len(f.Rules, 7)
	assert.Equal(reach.LiteralSelf, f.Policy())
	assert.Equal(time.Second, f.Timeouts.ICMP)
	assert.Equal(10*time.Second, f.Timeouts.Command)

	google := f.Rules[1]
	assert.Equal("network/google-dns", google.Title())
	require.NotNil(google.Reachable)
	assert.True(*google.Reachable)
	assert.Nil(google.Resolvable)
	assert.Equal([]uint16{53, 443}, google.Ports.Open)
	assert.Equal([]uint16{80}, google.Ports.Closed)

	target, err := google.Target()
	require.NoError(err)
	assert.Equal([]uint16{53, 80, 443}, target.Ports())

	checks := google.CheckSet()
	assert.True(checks.Reachability)
	assert.True(checks.Ports)
	assert.False(checks.Resolvability)
	assert.Empty(checks.HTTP)

	ubuntu := f.Rules[5]
	require.Len(ubuntu.HTTP, 2)
	assert.Equal(3*time.Second, ubuntu.HTTP[0].ConnectTimeout)
	assert.Equal("200", ubuntu.HTTP[0].NotStatus)
	assert.Len(ubuntu.CheckSet().HTTP, 2)

	assert.Len(f.Select("network"), 4)
	assert.Len(f.Select("application/openai", "broadcast"), 2)
	assert.Len(f.Select(), 7)
}

func TestParseJSON(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	f, err := Parse([]byte(`{
  "literal_policy": "reverse",
  "timeouts": {"tcp": "250ms"},
  "rules": [
    {"name": "dns", "address": "1.1.1.1", "reachable": true, "ports": {"open": [53]}},
    {"name": "cmd", "address": "localhost", "command": {"run": "printf 200", "stdout": "200", "exit_code": 0}}
  ]
}`))
	require.NoError(err)
	assert.Equal(reach.LiteralReverse, f.Policy())
	assert.Equal(250*time.Millisecond, f.Timeouts.TCP)
	require.Len(f.Rules, 2)
	require.NotNil(f.Rules[1].Command)
	assert.Equal("200", *f.Rules[1].Command.Stdout)
	assert.Equal(0, *f.Rules[1].Command.ExitCode)
	assert.Equal("printf 200", f.Rules[1].CheckSet().Command)
}

func TestParseInvalid(t *testing.T) {
	for name, doc := range map[string]string{
		"empty":          ``,
		"no rules":       `rules: []`,
		"unknown key":    "rules:\n  - name: a\n    address: 1.1.1.1\n    reachable: true\n    colour: red\n",
		"no name":        "rules:\n  - address: 1.1.1.1\n    reachable: true\n",
		"no address":     "rules:\n  - name: a\n    reachable: true\n",
		"port zero":      "rules:\n  - name: a\n    address: 1.1.1.1\n    ports: {open: [0]}\n",
		"open closed":    "rules:\n  - name: a\n    address: 1.1.1.1\n    ports: {open: [80], closed: [80]}\n",
		"no expectation": "rules:\n  - name: a\n    address: 1.1.1.1\n",
		"duplicate":      "rules:\n  - {name: a, address: 1.1.1.1, reachable: true}\n  - {name: a, address: 1.1.1.2, reachable: true}\n",
		"policy":         "literal_policy: maybe\nrules:\n  - {name: a, address: 1.1.1.1, reachable: true}\n",
		"status":         "rules:\n  - name: a\n    address: a.example\n    http: [{url: 'http://a.example', status: '200', not_status: '200'}]\n",
		"same url":       "rules:\n  - name: a\n    address: a.example\n    http: [{url: 'http://a.example', status: '200'}, {url: 'http://a.example', connect_timeout: 1s, status: '301'}]\n",
		"bad duration":   "timeouts: {icmp: soon}\nrules:\n  - {name: a, address: 1.1.1.1, reachable: true}\n",
	} {
		_, err := Parse([]byte(doc))
		assert.Error(t, err, name)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("testdata/does-not-exist.yaml")
	assert.Error(t, err)
}
