package stp

// Port speeds in Mb/s as reported by the interface database.
const (
	Speed10M  uint32 = 10
	Speed100M uint32 = 100
	Speed1G   uint32 = 1_000
	Speed10G  uint32 = 10_000
	Speed25G  uint32 = 25_000
	Speed40G  uint32 = 40_000
	Speed100G uint32 = 100_000
	Speed400G uint32 = 400_000
)

// 802.1t extended path costs (20,000,000,000 / speed in Kb/s).
const (
	MinPortPathCost  uint32 = 1
	MaxPortPathCost  uint32 = 200_000_000
	PathCost10M      uint32 = 2_000_000
	PathCost100M     uint32 = 200_000
	PathCost1G       uint32 = 20_000
	PathCost10G      uint32 = 2_000
	PathCost25G      uint32 = 800
	PathCost40G      uint32 = 500
	PathCost100G     uint32 = 200
	PathCost400G     uint32 = 50
)

// 802.1D-1998 legacy path costs.
const (
	LegacyMinPortPathCost uint32 = 1
	LegacyMaxPortPathCost uint32 = 65_535
	LegacyPathCost10M     uint32 = 100
	LegacyPathCost100M    uint32 = 19
	LegacyPathCost1G      uint32 = 4
	LegacyPathCost10G     uint32 = 2
	LegacyPathCost25G     uint32 = 1
	LegacyPathCost40G     uint32 = 1
	LegacyPathCost100G    uint32 = 1
	LegacyPathCost400G    uint32 = 1
)

// PathCostForSpeed returns the default port path cost for a link speed.
// Extend selects the 802.1t table; otherwise the 802.1D-1998 table is
// used. Unknown speeds return 0.
func PathCostForSpeed(speedMbps uint32, extend bool) uint32 {
	type costs struct{ extended, legacy uint32 }
	var c costs
	switch speedMbps {
	case Speed10M:
		c = costs{PathCost10M, LegacyPathCost10M}
	case Speed100M:
		c = costs{PathCost100M, LegacyPathCost100M}
	case Speed1G:
		c = costs{PathCost1G, LegacyPathCost1G}
	case Speed10G:
		c = costs{PathCost10G, LegacyPathCost10G}
	case Speed25G:
		c = costs{PathCost25G, LegacyPathCost25G}
	case Speed40G:
		c = costs{PathCost40G, LegacyPathCost40G}
	case Speed100G:
		c = costs{PathCost100G, LegacyPathCost100G}
	case Speed400G:
		c = costs{PathCost400G, LegacyPathCost400G}
	default:
		return 0
	}
	if extend {
		return c.extended
	}
	return c.legacy
}

// pathCostBounds returns the valid configured path cost range for the
// current extend-mode setting.
func pathCostBounds(extend bool) (uint32, uint32) {
	if extend {
		return MinPortPathCost, MaxPortPathCost
	}
	return LegacyMinPortPathCost, LegacyMaxPortPathCost
}
