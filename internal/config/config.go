package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	DefaultCallsign         = "AGROSAT-1"
	DefaultMaxNodes         = 12
	DefaultMaxFrameBytes    = 128
	DefaultTelemetrySec     = 60
	DefaultPollMs           = 200
	DefaultMaintenanceSec   = 600
	DefaultForwardResetSec  = 300
	DefaultNodeTTLSec       = 1800
	DefaultFrameSpacingMs   = 500
	DefaultBaud             = 57600
	DefaultFrequencyHz      = 868100000
	DefaultBandwidthHz      = 125000
	DefaultSpreadingFactor  = 9
	DefaultCodingRate       = 5
	DefaultPreambleLength   = 8
	DefaultTxPowerDbm       = 14
	DefaultLowBatteryVolts  = 3.5
	DefaultLowBatteryTxDbm  = 10
	DefaultCCARSSIDbm       = -90
	DefaultTxAttempts       = 3
	DefaultBackoffMinMs     = 50
	DefaultBackoffMaxMs     = 150
	DefaultMinRSSIDbm       = -120
	DefaultMinSNRDb         = -12
	DefaultDutyWindowSec    = 3600
	DefaultDutyBudgetPct    = 10
	DefaultAntennaGainDbi   = 2.15
	DefaultCollectorGainDbi = 6
	DefaultNoiseFigureDb    = 6
	DefaultMinMarginDb      = 3
	DefaultUplinkQueueSize  = 16
	DefaultUplinkTimeoutSec = 10
	DefaultDataDir          = "./data"
	DefaultSatelliteCSV     = "satellite.csv"
	DefaultNodesCSV         = "nodes.csv"
)

// Config is the full relay subsystem configuration.
type Config struct {
	Relay      RelayConfig      `yaml:"relay"`
	Radio      RadioConfig      `yaml:"radio"`
	DutyCycle  DutyCycleConfig  `yaml:"duty_cycle"`
	LinkBudget LinkBudgetConfig `yaml:"link_budget"`
	Uplink     UplinkConfig     `yaml:"uplink"`
	Storage    StorageConfig    `yaml:"storage"`
	Diag       DiagConfig       `yaml:"diag"`
}

// RelayConfig drives the scheduler loop and the node store.
type RelayConfig struct {
	Callsign                string `yaml:"callsign"`
	MaxNodes                int    `yaml:"max_nodes"`
	MaxFrameBytes           int    `yaml:"max_frame_bytes"`
	TelemetryIntervalSec    int    `yaml:"telemetry_interval_sec"`
	PollIntervalMs          int    `yaml:"poll_interval_ms"`
	MaintenanceIntervalSec  int    `yaml:"maintenance_interval_sec"`
	ForwardResetIntervalSec int    `yaml:"forward_reset_interval_sec"`
	NodeTTLSec              int    `yaml:"node_ttl_sec"`
	FrameSpacingMs          int    `yaml:"frame_spacing_ms"`
}

// RadioConfig must match the receiving collector station.
type RadioConfig struct {
	Port                 string  `yaml:"port"`
	Baud                 int     `yaml:"baud"`
	FrequencyHz          int     `yaml:"frequency_hz"`
	BandwidthHz          int     `yaml:"bandwidth_hz"`
	SpreadingFactor      int     `yaml:"spreading_factor"`
	CodingRate           int     `yaml:"coding_rate"`
	SyncWord             int     `yaml:"sync_word"`
	PreambleLength       int     `yaml:"preamble_length"`
	CRC                  *bool   `yaml:"crc"`
	TxPowerDbm           int     `yaml:"tx_power_dbm"`
	LowBatteryVolts      float64 `yaml:"low_battery_volts"`
	LowBatteryTxPowerDbm int     `yaml:"low_battery_tx_power_dbm"`
	CCARSSIDbm           int     `yaml:"cca_rssi_dbm"`
	TxAttempts           int     `yaml:"tx_attempts"`
	BackoffMinMs         int     `yaml:"backoff_min_ms"`
	BackoffMaxMs         int     `yaml:"backoff_max_ms"`
	MinRSSIDbm           int     `yaml:"min_rssi_dbm"`
	MinSNRDb             float64 `yaml:"min_snr_db"`
}

// DutyCycleConfig is the regulatory transmit budget.
type DutyCycleConfig struct {
	WindowSec int     `yaml:"window_sec"`
	BudgetPct float64 `yaml:"budget_pct"`
}

// LinkBudgetConfig describes the collector geometry and RF gains.
type LinkBudgetConfig struct {
	AntennaGainDbi   float64 `yaml:"antenna_gain_dbi"`
	CollectorGainDbi float64 `yaml:"collector_gain_dbi"`
	NoiseFigureDb    float64 `yaml:"noise_figure_db"`
	MinMarginDb      float64 `yaml:"min_margin_db"`
	CollectorLatDeg  float64 `yaml:"collector_lat_deg"`
	CollectorLonDeg  float64 `yaml:"collector_lon_deg"`
	CollectorAltM    float64 `yaml:"collector_alt_m"`
	AdaptSF          bool    `yaml:"adapt_sf"`
}

// UplinkConfig is the secondary best-effort HTTP uplink. Empty URL disables
// it entirely.
type UplinkConfig struct {
	URL         string   `yaml:"url"`
	QueueSize   int      `yaml:"queue_size"`
	TimeoutSec  int      `yaml:"timeout_sec"`
	STUNServers []string `yaml:"stun_servers"`
}

// StorageConfig is the external CSV storage collaborator.
type StorageConfig struct {
	DataDir      string `yaml:"data_dir"`
	SatelliteCSV string `yaml:"satellite_csv"`
	NodesCSV     string `yaml:"nodes_csv"`
}

// DiagConfig is the read-only local status endpoint. Empty listen disables.
type DiagConfig struct {
	Listen string `yaml:"listen"`
}

// Load reads and parses a YAML config file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}

	ApplyDefaults(&cfg)
	return cfg, nil
}

// Save writes a YAML config file to disk.
func Save(path string, cfg Config) error {
	ApplyDefaults(&cfg)
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate performs minimal validation for required fields.
func Validate(cfg Config) error {
	if cfg.Relay.MaxFrameBytes < 35 {
		return fmt.Errorf("relay.max_frame_bytes too small for a single frame")
	}
	if cfg.Radio.SpreadingFactor < 7 || cfg.Radio.SpreadingFactor > 12 {
		return fmt.Errorf("radio.spreading_factor must be 7..12")
	}
	if cfg.Radio.CodingRate < 5 || cfg.Radio.CodingRate > 8 {
		return fmt.Errorf("radio.coding_rate must be 5..8 (4/5..4/8)")
	}
	if cfg.Radio.BackoffMaxMs < cfg.Radio.BackoffMinMs {
		return fmt.Errorf("radio.backoff_max_ms below backoff_min_ms")
	}
	if cfg.DutyCycle.BudgetPct <= 0 || cfg.DutyCycle.BudgetPct > 100 {
		return fmt.Errorf("duty_cycle.budget_pct must be in (0,100]")
	}
	if cfg.Uplink.URL != "" && cfg.Uplink.QueueSize <= 0 {
		return fmt.Errorf("uplink.queue_size must be positive")
	}
	return nil
}

// ApplyDefaults fills in default values when empty.
func ApplyDefaults(cfg *Config) {
	r := &cfg.Relay
	if r.Callsign == "" {
		r.Callsign = DefaultCallsign
	}
	if r.MaxNodes == 0 {
		r.MaxNodes = DefaultMaxNodes
	}
	if r.MaxFrameBytes == 0 {
		r.MaxFrameBytes = DefaultMaxFrameBytes
	}
	if r.TelemetryIntervalSec == 0 {
		r.TelemetryIntervalSec = DefaultTelemetrySec
	}
	if r.PollIntervalMs == 0 {
		r.PollIntervalMs = DefaultPollMs
	}
	if r.MaintenanceIntervalSec == 0 {
		r.MaintenanceIntervalSec = DefaultMaintenanceSec
	}
	if r.ForwardResetIntervalSec == 0 {
		r.ForwardResetIntervalSec = DefaultForwardResetSec
	}
	if r.NodeTTLSec == 0 {
		r.NodeTTLSec = DefaultNodeTTLSec
	}
	if r.FrameSpacingMs == 0 {
		r.FrameSpacingMs = DefaultFrameSpacingMs
	}

	rd := &cfg.Radio
	if rd.Baud == 0 {
		rd.Baud = DefaultBaud
	}
	if rd.FrequencyHz == 0 {
		rd.FrequencyHz = DefaultFrequencyHz
	}
	if rd.BandwidthHz == 0 {
		rd.BandwidthHz = DefaultBandwidthHz
	}
	if rd.SpreadingFactor == 0 {
		rd.SpreadingFactor = DefaultSpreadingFactor
	}
	if rd.CodingRate == 0 {
		rd.CodingRate = DefaultCodingRate
	}
	if rd.SyncWord == 0 {
		rd.SyncWord = 0x34
	}
	if rd.PreambleLength == 0 {
		rd.PreambleLength = DefaultPreambleLength
	}
	if rd.CRC == nil {
		enabled := true
		rd.CRC = &enabled
	}
	if rd.TxPowerDbm == 0 {
		rd.TxPowerDbm = DefaultTxPowerDbm
	}
	if rd.LowBatteryVolts == 0 {
		rd.LowBatteryVolts = DefaultLowBatteryVolts
	}
	if rd.LowBatteryTxPowerDbm == 0 {
		rd.LowBatteryTxPowerDbm = DefaultLowBatteryTxDbm
	}
	if rd.CCARSSIDbm == 0 {
		rd.CCARSSIDbm = DefaultCCARSSIDbm
	}
	if rd.TxAttempts == 0 {
		rd.TxAttempts = DefaultTxAttempts
	}
	if rd.BackoffMinMs == 0 {
		rd.BackoffMinMs = DefaultBackoffMinMs
	}
	if rd.BackoffMaxMs == 0 {
		rd.BackoffMaxMs = DefaultBackoffMaxMs
	}
	if rd.MinRSSIDbm == 0 {
		rd.MinRSSIDbm = DefaultMinRSSIDbm
	}
	if rd.MinSNRDb == 0 {
		rd.MinSNRDb = DefaultMinSNRDb
	}

	if cfg.DutyCycle.WindowSec == 0 {
		cfg.DutyCycle.WindowSec = DefaultDutyWindowSec
	}
	if cfg.DutyCycle.BudgetPct == 0 {
		cfg.DutyCycle.BudgetPct = DefaultDutyBudgetPct
	}

	lb := &cfg.LinkBudget
	if lb.AntennaGainDbi == 0 {
		lb.AntennaGainDbi = DefaultAntennaGainDbi
	}
	if lb.CollectorGainDbi == 0 {
		lb.CollectorGainDbi = DefaultCollectorGainDbi
	}
	if lb.NoiseFigureDb == 0 {
		lb.NoiseFigureDb = DefaultNoiseFigureDb
	}
	if lb.MinMarginDb == 0 {
		lb.MinMarginDb = DefaultMinMarginDb
	}

	if cfg.Uplink.QueueSize == 0 {
		cfg.Uplink.QueueSize = DefaultUplinkQueueSize
	}
	if cfg.Uplink.TimeoutSec == 0 {
		cfg.Uplink.TimeoutSec = DefaultUplinkTimeoutSec
	}

	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = DefaultDataDir
	}
	if cfg.Storage.SatelliteCSV == "" {
		cfg.Storage.SatelliteCSV = DefaultSatelliteCSV
	}
	if cfg.Storage.NodesCSV == "" {
		cfg.Storage.NodesCSV = DefaultNodesCSV
	}
}
