package linkbudget

import (
	"math"

	"github.com/mathasilv/AgroSat-IoT-sub000/internal/model"
)

const (
	earthRadiusKm  = 6371.0
	speedOfLight   = 299792458.0
	thermalNoiseDb = -174.0 // dBm/Hz at 290K

	DefaultMinMarginDb = 3.0
)

// Params are the radio and geometry inputs of a link-budget calculation.
type Params struct {
	FrequencyHz     float64
	BandwidthHz     float64
	SpreadingFactor int
	TxPowerDbm      float64
	AntennaGainDbi  float64
	PeerGainDbi     float64
	NoiseFigureDb   float64
	MinMarginDb     float64
}

// Result is a one-shot link-budget estimate. It is recomputed on demand and
// never persisted.
type Result struct {
	DistanceKm     float64
	PathLossDb     float64
	SensitivityDbm float64
	MarginDb       float64
	RecommendedSF  int
	Viable         bool
}

// demodulation SNR floor per spreading factor, SX127x datasheet values.
var snrFloorDb = map[int]float64{
	7:  -7.5,
	8:  -10,
	9:  -12.5,
	10: -15,
	11: -17.5,
	12: -20,
}

// Calculate estimates whether the relay-to-collector geometry supports
// reliable communication with the given radio parameters.
func Calculate(self, peer model.GeoPoint, p Params) Result {
	return CalculateAtDistance(slantRangeKm(self, peer), p)
}

// CalculateAtDistance is Calculate with the slant range already known.
func CalculateAtDistance(dist float64, p Params) Result {
	loss := freeSpacePathLossDb(dist, p.FrequencyHz)
	sens := sensitivityDbm(p.SpreadingFactor, p.BandwidthHz, p.NoiseFigureDb)
	margin := p.TxPowerDbm + p.AntennaGainDbi + p.PeerGainDbi - loss - sens

	minMargin := p.MinMarginDb
	if minMargin == 0 {
		minMargin = DefaultMinMarginDb
	}
	return Result{
		DistanceKm:     dist,
		PathLossDb:     loss,
		SensitivityDbm: sens,
		MarginDb:       margin,
		RecommendedSF:  RecommendSF(dist),
		Viable:         margin >= minMargin,
	}
}

// RecommendSF maps distance to a spreading factor as a monotonic step
// function over distance bands. There is no hysteresis near the band edges.
func RecommendSF(distanceKm float64) int {
	switch {
	case distanceKm <= 50:
		return 7
	case distanceKm <= 150:
		return 8
	case distanceKm <= 300:
		return 9
	case distanceKm <= 600:
		return 10
	case distanceKm <= 1200:
		return 11
	default:
		return 12
	}
}

// slantRangeKm combines the haversine great-circle ground distance with the
// altitude difference between the two endpoints.
func slantRangeKm(a, b model.GeoPoint) float64 {
	lat1 := a.LatDeg * math.Pi / 180
	lat2 := b.LatDeg * math.Pi / 180
	dLat := (b.LatDeg - a.LatDeg) * math.Pi / 180
	dLon := (b.LonDeg - a.LonDeg) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	ground := 2 * earthRadiusKm * math.Asin(math.Sqrt(h))

	dAltKm := (b.AltMeters - a.AltMeters) / 1000
	return math.Sqrt(ground*ground + dAltKm*dAltKm)
}

func freeSpacePathLossDb(distanceKm, freqHz float64) float64 {
	if distanceKm <= 0 || freqHz <= 0 {
		return 0
	}
	d := distanceKm * 1000
	return 20 * math.Log10(4*math.Pi*d*freqHz/speedOfLight)
}

func sensitivityDbm(sf int, bandwidthHz, noiseFigureDb float64) float64 {
	floor, ok := snrFloorDb[sf]
	if !ok {
		floor = snrFloorDb[12]
	}
	return thermalNoiseDb + 10*math.Log10(bandwidthHz) + noiseFigureDb + floor
}
