package utils

import "math"

func RoundTo(n float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))
	return math.Round(n*pow) / pow
}

// SatoshisToBTC converts an explorer's integer satoshi value to decimal BTC.
func SatoshisToBTC(sats uint64) float64 {
	return float64(sats) / 1e8
}
