// Package heatindex computes the temperature-humidity index (THI) used to
// scale feeding portions in hot or cold weather.
package heatindex

import (
	"math"

	"snackloader/internal/model"
)

// DewPoint approximates the dew point in °C from temperature (°C) and
// relative humidity (%).
func DewPoint(t, h float64) float64 {
	return t - (100-h)/5
}

// THI returns the temperature-humidity index for the given readings.
func THI(t, h float64) float64 {
	return t + 0.36*DewPoint(t, h) + 41.2
}

// Index returns the THI of the environment. ok is false when either reading
// is missing, zero or not finite; a zero reading is treated as a sensor with
// no data.
func Index(env model.Environment) (thi float64, ok bool) {
	if !usable(env.TemperatureC) || !usable(env.HumidityPct) {
		return 0, false
	}
	v := THI(*env.TemperatureC, *env.HumidityPct)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func usable(v *float64) bool {
	if v == nil {
		return false
	}
	return *v != 0 && !math.IsNaN(*v) && !math.IsInf(*v, 0)
}

// Band is a heat-stress class derived from THI.
type Band int

// Bands in increasing heat stress.
const (
	BandCool    Band = iota // thi < 70
	BandComfort             // 70 <= thi <= 75
	BandWarm                // 75 < thi <= 80
	BandHot                 // 80 < thi <= 85
	BandDanger              // thi > 85
)

// Classify maps a THI value to its band.
func Classify(thi float64) Band {
	switch {
	case thi < 70:
		return BandCool
	case thi <= 75:
		return BandComfort
	case thi <= 80:
		return BandWarm
	case thi <= 85:
		return BandHot
	default:
		return BandDanger
	}
}

// Multiplier is the portion scale factor of the band. BandDanger is a hard stop.
func (b Band) Multiplier() float64 {
	switch b {
	case BandCool:
		return 1.10
	case BandWarm:
		return 0.90
	case BandHot:
		return 0.80
	case BandDanger:
		return 0
	default:
		return 1.00
	}
}

func (b Band) String() string {
	switch b {
	case BandCool:
		return "cool"
	case BandComfort:
		return "comfort"
	case BandWarm:
		return "warm"
	case BandHot:
		return "hot"
	case BandDanger:
		return "danger"
	}
	return "unknown"
}
