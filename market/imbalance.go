package market

// OIImbalance calculates the open-interest imbalance between long and short positions.
// Imbalance = (Long - Short) / (Long + Short), clamped to [-1, 1].
// A non-positive total yields 0.
func OIImbalance(oiLong float64, oiShort float64) float64 {
	total := oiLong + oiShort
	if total <= 0 {
		return 0
	}
	raw := (oiLong - oiShort) / total
	if raw > 1 {
		return 1
	}
	if raw < -1 {
		return -1
	}
	return raw
}
