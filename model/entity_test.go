package model

import (
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityExtent(t *testing.T) {
	begin := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	band := Number(3)
	e := &Entity{
		Identifier: "cov",
		BeginTime:  &begin,
		Footprint:  orb.Polygon{{{10, -5}, {20, -5}, {20, 5}, {10, 5}, {10, -5}}},
		Extents:    map[string]Extent{"band": {Low: &band, High: &band}},
	}

	ext := e.Extent(AxisTime)
	require.NotNil(t, ext.Low)
	assert.Nil(t, ext.High)
	assert.True(t, ext.Low.Time().Equal(begin))

	ext = e.Extent(AxisX)
	require.NotNil(t, ext.Low)
	require.NotNil(t, ext.High)
	assert.Equal(t, 10.0, ext.Low.Float())
	assert.Equal(t, 20.0, ext.High.Float())

	ext = e.Extent(AxisY)
	assert.Equal(t, -5.0, ext.Low.Float())
	assert.Equal(t, 5.0, ext.High.Float())

	ext = e.Extent("band")
	assert.Equal(t, 3.0, ext.Low.Float())

	ext = e.Extent("elevation")
	assert.Nil(t, ext.Low)
	assert.Nil(t, ext.High)

	noFootprint := &Entity{Identifier: "bare"}
	assert.Nil(t, noFootprint.Extent(AxisX).Low)
}

func TestValueCompare(t *testing.T) {
	a := Time(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	b := Time(time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC))

	c, ok := a.Compare(b)
	assert.True(t, ok)
	assert.Equal(t, -1, c)

	c, ok = b.Compare(a)
	assert.True(t, ok)
	assert.Equal(t, 1, c)

	c, ok = Number(2).Compare(Number(2))
	assert.True(t, ok)
	assert.Equal(t, 0, c)

	_, ok = a.Compare(Number(1))
	assert.False(t, ok)

	assert.Equal(t, "2020-01-01T00:00:00.000Z", a.String())
	assert.Equal(t, "2.5", Number(2.5).String())
}

func TestParseKind(t *testing.T) {
	k, ok := ParseKind("collection")
	assert.True(t, ok)
	assert.Equal(t, KindCollection, k)

	_, ok = ParseKind("layer")
	assert.False(t, ok)
	assert.Equal(t, "coverage", KindCoverage.String())
}
