package stp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPathCostTables(t *testing.T) {
	cases := []struct {
		speed    uint32
		extended uint32
		legacy   uint32
	}{
		{Speed10M, 2_000_000, 100},
		{Speed100M, 200_000, 19},
		{Speed1G, 20_000, 4},
		{Speed10G, 2_000, 2},
		{Speed25G, 800, 1},
		{Speed40G, 500, 1},
		{Speed100G, 200, 1},
		{Speed400G, 50, 1},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.extended, PathCostForSpeed(tc.speed, true), "extended %d Mb/s", tc.speed)
		assert.Equal(t, tc.legacy, PathCostForSpeed(tc.speed, false), "legacy %d Mb/s", tc.speed)
	}

	assert.Zero(t, PathCostForSpeed(123, true), "unknown speed")
}

func TestPathCostBounds(t *testing.T) {
	minCost, maxCost := pathCostBounds(true)
	assert.Equal(t, uint32(1), minCost)
	assert.Equal(t, uint32(200_000_000), maxCost)

	minCost, maxCost = pathCostBounds(false)
	assert.Equal(t, uint32(1), minCost)
	assert.Equal(t, uint32(65_535), maxCost)
}
