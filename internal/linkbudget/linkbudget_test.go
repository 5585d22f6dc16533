package linkbudget

import (
	"testing"

	"github.com/mathasilv/AgroSat-IoT-sub000/internal/model"
)

func params() Params {
	return Params{
		FrequencyHz:     868100000,
		BandwidthHz:     125000,
		SpreadingFactor: 12,
		TxPowerDbm:      14,
		AntennaGainDbi:  2.15,
		PeerGainDbi:     6,
		NoiseFigureDb:   6,
		MinMarginDb:     3,
	}
}

func TestCalculate_MarginDecreasesWithDistance(t *testing.T) {
	t.Parallel()

	self := model.GeoPoint{LatDeg: 0, LonDeg: 0, AltMeters: 0}
	near := Calculate(self, model.GeoPoint{LatDeg: 0, LonDeg: 0, AltMeters: 100000}, params())
	far := Calculate(self, model.GeoPoint{LatDeg: 0, LonDeg: 0, AltMeters: 500000}, params())

	if near.DistanceKm <= 99 || near.DistanceKm >= 101 {
		t.Fatalf("near distance=%.1f", near.DistanceKm)
	}
	if far.DistanceKm <= 499 || far.DistanceKm >= 501 {
		t.Fatalf("far distance=%.1f", far.DistanceKm)
	}
	if far.MarginDb > near.MarginDb {
		t.Fatalf("margin increased with distance: near=%.1f far=%.1f", near.MarginDb, far.MarginDb)
	}
	if far.PathLossDb <= near.PathLossDb {
		t.Fatalf("path loss: near=%.1f far=%.1f", near.PathLossDb, far.PathLossDb)
	}
}

func TestCalculate_SlantRangeUsesAltitudeAndGround(t *testing.T) {
	t.Parallel()

	// ~111 km of latitude plus 550 km of altitude: slant must exceed both.
	self := model.GeoPoint{LatDeg: 0, LonDeg: 0, AltMeters: 0}
	peer := model.GeoPoint{LatDeg: 1, LonDeg: 0, AltMeters: 550000}
	res := Calculate(self, peer, params())
	if res.DistanceKm < 550 || res.DistanceKm > 570 {
		t.Fatalf("slant=%.1f", res.DistanceKm)
	}
}

func TestCalculate_ViabilityThreshold(t *testing.T) {
	t.Parallel()

	self := model.GeoPoint{}
	peer := model.GeoPoint{AltMeters: 400000}
	p := params()

	res := Calculate(self, peer, p)
	if res.Viable != (res.MarginDb >= p.MinMarginDb) {
		t.Fatalf("viable=%v margin=%.1f", res.Viable, res.MarginDb)
	}

	// Pushing transmit power far below any workable level must not be viable.
	p.TxPowerDbm = -100
	if got := Calculate(self, peer, p); got.Viable {
		t.Fatalf("viable at %0.f dBm, margin=%.1f", p.TxPowerDbm, got.MarginDb)
	}
}

func TestSensitivity_ImprovesWithSpreadingFactor(t *testing.T) {
	t.Parallel()

	p := params()
	p.SpreadingFactor = 7
	sf7 := Calculate(model.GeoPoint{}, model.GeoPoint{AltMeters: 100000}, p)
	p.SpreadingFactor = 12
	sf12 := Calculate(model.GeoPoint{}, model.GeoPoint{AltMeters: 100000}, p)

	if sf12.SensitivityDbm >= sf7.SensitivityDbm {
		t.Fatalf("sf7=%.1f sf12=%.1f", sf7.SensitivityDbm, sf12.SensitivityDbm)
	}
	if sf12.MarginDb <= sf7.MarginDb {
		t.Fatalf("margin sf7=%.1f sf12=%.1f", sf7.MarginDb, sf12.MarginDb)
	}
}

func TestRecommendSF_Monotonic(t *testing.T) {
	t.Parallel()

	distances := []float64{10, 50, 51, 150, 151, 300, 500, 601, 1200, 1201, 5000}
	prev := 0
	for _, d := range distances {
		sf := RecommendSF(d)
		if sf < 7 || sf > 12 {
			t.Fatalf("sf=%d at %.0f km", sf, d)
		}
		if sf < prev {
			t.Fatalf("sf dropped to %d at %.0f km", sf, d)
		}
		prev = sf
	}
	if RecommendSF(10) != 7 || RecommendSF(5000) != 12 {
		t.Fatalf("band edges: %d %d", RecommendSF(10), RecommendSF(5000))
	}
}
