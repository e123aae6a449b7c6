package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const ms = time.Millisecond

func BenchmarkAdd(b *testing.B) {
	h := NewHistory(8)
	for i := 0; i < b.N; i++ {
		h.Add(time.Duration(i), Up)
	}
}

func BenchmarkCompute(b *testing.B) {
	h := NewHistory(8)
	for i := 0; i < b.N; i++ {
		h.Add(time.Duration(i), Up)
		h.Compute()
	}
}

func TestComputeEmpty(t *testing.T) {
	h := NewHistory(4)
	assert.Nil(t, h.Compute())
}

func TestComputeDown(t *testing.T) {
	assert := assert.New(t)

	h := NewHistory(4)
	h.Add(2, Down)
	h.Add(0, Failed)

	metrics := h.Compute()
	assert.EqualValues(2, metrics.Checks)
	assert.EqualValues(1, metrics.Down)
	assert.EqualValues(1, metrics.Failed)
	assert.EqualValues(0, metrics.Availability)
	assert.EqualValues(0, metrics.Best)
	assert.EqualValues(0, metrics.Worst)
	assert.EqualValues(0, metrics.Median)
	assert.EqualValues(0, metrics.Mean)
	assert.EqualValues(0, metrics.StdDev)
}

func TestComputeMedian(t *testing.T) {
	assert := assert.New(t)

	h := NewHistory(5)
	h.Add(300*ms, Up)
	h.Add(200*ms, Up)
	h.Add(100*ms, Up)
	h.Add(0, Up)
	assert.EqualValues(150*ms, h.Compute().Median)

	h.Add(400*ms, Up)
	assert.EqualValues(200*ms, h.Compute().Median)
}

func TestCompute(t *testing.T) {
	assert := assert.New(t)

	{ // populate with 5 entries
		h := NewHistory(8)
		h.Add(0, Up)
		h.Add(100*ms, Up)
		h.Add(100*ms, Up)
		h.Add(0, Down)
		h.Add(100*ms, Up)

		assert.Equal(h.count, 5)
		assert.EqualValues(1, h.Compute().Down)
		assert.InDelta(0.8, h.Compute().Availability, 1e-9)
	}

	{
		// test zero variance
		h := NewHistory(8)
		h.Add(100*ms, Up)
		h.Add(100*ms, Up)
		h.Add(0, Down)

		metrics := h.Compute()
		assert.EqualValues(100*ms, metrics.Best)
		assert.EqualValues(100*ms, metrics.Worst)
		assert.EqualValues(100*ms, metrics.Mean)
		assert.EqualValues(100*ms, metrics.Median)
		assert.EqualValues(0, metrics.StdDev)
		assert.EqualValues(3, metrics.Checks)
		assert.EqualValues(1, metrics.Down)

		// results getting worse
		h.Add(200*ms, Up)
		h.Add(100*ms, Up)
		h.Add(0, Down)

		metrics = h.Compute()
		assert.EqualValues(100*ms, metrics.Best)
		assert.EqualValues(200*ms, metrics.Worst)
		assert.EqualValues(125*ms, metrics.Mean)
		assert.EqualValues(100*ms, metrics.Median)
		assert.EqualValues(43301270, metrics.StdDev)
		assert.EqualValues(6, metrics.Checks)
		assert.EqualValues(2, metrics.Down)

		// finally something better
		h.Add(0, Up)
		metrics = h.Compute()
		assert.EqualValues(0*ms, metrics.Best)
		assert.EqualValues(200*ms, metrics.Worst)
		assert.EqualValues(100*ms, metrics.Mean)
		assert.EqualValues(100*ms, metrics.Median)
		assert.EqualValues(63245553, metrics.StdDev)
		assert.EqualValues(7, metrics.Checks)
		assert.EqualValues(2, metrics.Down)
	}
}

func TestFailedNotCountedAsDown(t *testing.T) {
	assert := assert.New(t)

	h := NewHistory(4)
	h.Add(10*ms, Up)
	h.Add(0, Failed)
	h.Add(0, Failed)

	metrics := h.Compute()
	assert.EqualValues(3, metrics.Checks)
	assert.EqualValues(0, metrics.Down)
	assert.EqualValues(2, metrics.Failed)
	assert.EqualValues(1, metrics.Availability)
}

func TestHistoryCapacity(t *testing.T) {
	assert := assert.New(t)

	h := NewHistory(3)
	assert.Equal(h.count, 0)
	h.Add(1, Up)
	h.Add(2, Down)
	assert.Equal(h.count, 2)
	assert.Equal(h.position, 2)
	h.Add(1, Up)
	assert.Equal(h.count, 3)
	assert.Equal(h.position, 0)

	h.Add(0, Up)
	assert.Equal(h.count, 3)
	assert.Equal(h.position, 1)
	assert.EqualValues(1, h.Compute().Down)

	// overwrite the negative result
	h.Add(0, Up)
	assert.EqualValues(0, h.Compute().Down)

	// clear
	h.ComputeAndClear()
	assert.Equal(h.count, 0)
	assert.Equal(h.position, 0)
}
