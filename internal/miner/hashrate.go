package miner

import "fmt"

var hashrateUnits = [...]string{"H/s", "KH/s", "MH/s", "GH/s", "TH/s", "PH/s"}

// FormatHashrate renders a hashrate value for display: scale by 1000 into
// the largest unit with value >= 1, then use 0/1/2 fractional digits
// depending on magnitude so the string never looks falsely precise.
func FormatHashrate(hashrate float64) string {
	if hashrate == 0 {
		return "0 H/s"
	}

	value := hashrate
	unitIndex := 0
	for value >= 1000.0 && unitIndex < len(hashrateUnits)-1 {
		value /= 1000.0
		unitIndex++
	}

	switch {
	case value >= 100.0:
		return fmt.Sprintf("%.0f %s", value, hashrateUnits[unitIndex])
	case value >= 10.0:
		return fmt.Sprintf("%.1f %s", value, hashrateUnits[unitIndex])
	default:
		return fmt.Sprintf("%.2f %s", value, hashrateUnits[unitIndex])
	}
}
