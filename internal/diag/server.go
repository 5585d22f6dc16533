package diag

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/mathasilv/AgroSat-IoT-sub000/internal/model"
	"github.com/mathasilv/AgroSat-IoT-sub000/internal/relay"
)

// Source is the running scheduler seen through its diagnostics surface.
type Source interface {
	Status() relay.Status
	Nodes() []model.GroundNodeRecord
}

// Server exposes a read-only HTTP diagnostics endpoint for ground testing.
// It never mutates relay state.
type Server struct {
	listen string
	src    Source
}

// NewServer constructs a diagnostics server.
func NewServer(listen string, src Source) *Server {
	return &Server{listen: listen, src: src}
}

// ListenAndServe runs the HTTP server until the listener fails.
func (s *Server) ListenAndServe() error {
	server := &http.Server{
		Addr:              s.listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("diagnostics listening on %s", s.listen)
	return server.ListenAndServe()
}

// Handler returns the route table. Exposed separately so tests can drive it
// without a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/nodes", s.handleNodes)
	return mux
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.src.Status())
}

func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	nodes := s.src.Nodes()
	out := make([]nodeView, 0, len(nodes))
	for _, rec := range nodes {
		out = append(out, nodeView{
			NodeID:           rec.NodeID,
			Seq:              rec.Seq,
			SoilMoisturePct:  rec.SoilMoisturePct,
			AmbientTempC:     rec.AmbientTempC,
			HumidityPct:      rec.HumidityPct,
			IrrigationActive: rec.IrrigationActive,
			RSSIDbm:          rec.Quality.RSSIDbm,
			SNRDb:            rec.Quality.SNRDb,
			PacketsReceived:  rec.PacketsReceived,
			PacketsLost:      rec.PacketsLost,
			LastReceiveAt:    rec.LastReceiveAt,
			Tier:             rec.Tier.String(),
			Forwarded:        rec.Forwarded,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// nodeView flattens a store record for JSON output.
type nodeView struct {
	NodeID           uint8     `json:"node_id"`
	Seq              uint16    `json:"seq"`
	SoilMoisturePct  float64   `json:"soil_moisture_pct"`
	AmbientTempC     float64   `json:"ambient_temp_c"`
	HumidityPct      float64   `json:"humidity_pct"`
	IrrigationActive bool      `json:"irrigation_active"`
	RSSIDbm          int       `json:"rssi_dbm"`
	SNRDb            float64   `json:"snr_db"`
	PacketsReceived  uint32    `json:"packets_received"`
	PacketsLost      uint32    `json:"packets_lost"`
	LastReceiveAt    time.Time `json:"last_receive_at"`
	Tier             string    `json:"tier"`
	Forwarded        bool      `json:"forwarded"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	_ = encoder.Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
