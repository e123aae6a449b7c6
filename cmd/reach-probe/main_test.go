package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePorts(t *testing.T) {
	assert := assert.New(t)

	ports, err := parsePorts("22, 80,443")
	assert.NoError(err)
	assert.Equal([]uint16{22, 80, 443}, ports)

	for _, s := range []string{"0", "65536", "ssh", "22,,80"} {
		_, err := parsePorts(s)
		assert.Error(err, s)
	}
}

func TestParseSize(t *testing.T) {
	assert := assert.New(t)

	n, err := parseSize("1400")
	assert.NoError(err)
	assert.EqualValues(1400, n)

	n, err = parseSize("65535")
	assert.NoError(err)
	assert.EqualValues(65535, n)

	for _, s := range []string{"65536", "70000", "-1", "big"} {
		_, err := parseSize(s)
		assert.Error(err, s)
	}
}
