package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mathasilv/AgroSat-IoT-sub000/internal/config"
	"github.com/mathasilv/AgroSat-IoT-sub000/internal/diag"
	"github.com/mathasilv/AgroSat-IoT-sub000/internal/dutycycle"
	"github.com/mathasilv/AgroSat-IoT-sub000/internal/linkbudget"
	"github.com/mathasilv/AgroSat-IoT-sub000/internal/model"
	"github.com/mathasilv/AgroSat-IoT-sub000/internal/nodestore"
	"github.com/mathasilv/AgroSat-IoT-sub000/internal/radio"
	"github.com/mathasilv/AgroSat-IoT-sub000/internal/relay"
	"github.com/mathasilv/AgroSat-IoT-sub000/internal/session"
	"github.com/mathasilv/AgroSat-IoT-sub000/internal/storage"
	"github.com/mathasilv/AgroSat-IoT-sub000/internal/uplink"
	"github.com/mathasilv/AgroSat-IoT-sub000/internal/wire"
)

const usage = `agrorelay - agricultural sensor-node relay payload

Usage:
  agrorelay run --config <path> [--dry-run] [--lat <deg> --lon <deg> --alt <m>]
  agrorelay stats --config <path> [--window 1h] [--path <nodes.csv>]
  agrorelay decode --hex <bytes>|--ascii <line>
  agrorelay budget --config <path> [--distance-km <km>|--lat <deg> --lon <deg> --alt <m>] [--sf <7..12>]
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cmd := os.Args[1]
	switch cmd {
	case "-h", "--help", "help":
		fmt.Print(usage)
	case "run":
		handleRun(os.Args[2:])
	case "stats":
		handleStats(os.Args[2:])
	case "decode":
		handleDecode(os.Args[2:])
	case "budget":
		handleBudget(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

// staticSnapshots stands in for the flight computer during ground testing:
// position and battery are fixed, only the timestamp advances.
type staticSnapshots struct {
	pos     model.GeoPoint
	battery float64
}

func (s staticSnapshots) Snapshot() model.SatelliteSnapshot {
	return model.SatelliteSnapshot{
		Timestamp:    time.Now().UTC(),
		Position:     s.pos,
		BatteryVolts: s.battery,
	}
}

func handleRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	dryRun := fs.Bool("dry-run", false, "use the loopback radio instead of the serial modem")
	lat := fs.Float64("lat", 0, "platform latitude in degrees")
	lon := fs.Float64("lon", 0, "platform longitude in degrees")
	alt := fs.Float64("alt", 0, "platform altitude in meters")
	battery := fs.Float64("battery", 3.9, "platform battery voltage")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal(err)
	}
	if err := config.Validate(cfg); err != nil {
		fatal(err)
	}

	var drv radio.Driver
	if *dryRun || cfg.Radio.Port == "" {
		drv = radio.NewLoopback()
		log.Printf("radio driver=loopback")
	} else {
		drv, err = radio.OpenSerialModem(cfg.Radio.Port, cfg.Radio.Baud)
		if err != nil {
			fatal(err)
		}
		log.Printf("radio driver=serial port=%s baud=%d", cfg.Radio.Port, cfg.Radio.Baud)
	}

	link := radio.NewLink(drv, radio.Config{
		FrequencyHz:          cfg.Radio.FrequencyHz,
		SpreadingFactor:      cfg.Radio.SpreadingFactor,
		BandwidthHz:          cfg.Radio.BandwidthHz,
		CodingRate:           cfg.Radio.CodingRate,
		PreambleLength:       cfg.Radio.PreambleLength,
		SyncWord:             cfg.Radio.SyncWord,
		CRCEnabled:           cfg.Radio.CRC != nil && *cfg.Radio.CRC,
		TxPowerDbm:           cfg.Radio.TxPowerDbm,
		CCARSSIDbm:           cfg.Radio.CCARSSIDbm,
		TxAttempts:           cfg.Radio.TxAttempts,
		BackoffMin:           time.Duration(cfg.Radio.BackoffMinMs) * time.Millisecond,
		BackoffMax:           time.Duration(cfg.Radio.BackoffMaxMs) * time.Millisecond,
		MinRSSIDbm:           cfg.Radio.MinRSSIDbm,
		MinSNRDb:             cfg.Radio.MinSNRDb,
		LowBatteryVolts:      cfg.Radio.LowBatteryVolts,
		LowBatteryTxPowerDbm: cfg.Radio.LowBatteryTxPowerDbm,
	}, nil)
	defer link.Close()

	if err := link.Configure(); err != nil {
		fatal(err)
	}

	guard := dutycycle.New(time.Duration(cfg.DutyCycle.WindowSec)*time.Second, cfg.DutyCycle.BudgetPct)
	store := nodestore.New(cfg.Relay.MaxNodes, nodestore.DefaultThresholds())
	sess := &session.Session{}

	opts := relay.Options{
		Budget:    budgetParams(cfg),
		Collector: collectorPoint(cfg),
		AdaptSF:   cfg.LinkBudget.AdaptSF,
		Recorder: storage.Recorder{
			SatellitePath: filepath.Join(cfg.Storage.DataDir, cfg.Storage.SatelliteCSV),
			NodesPath:     filepath.Join(cfg.Storage.DataDir, cfg.Storage.NodesCSV),
		},
	}

	ctx, cancel := signalContext()
	defer cancel()

	if cfg.Uplink.URL != "" {
		up := uplink.New(cfg.Uplink.URL, cfg.Uplink.QueueSize,
			time.Duration(cfg.Uplink.TimeoutSec)*time.Second, cfg.Uplink.STUNServers)
		go up.Run(ctx)
		opts.Publisher = up
	}

	snapshots := staticSnapshots{
		pos:     model.GeoPoint{LatDeg: *lat, LonDeg: *lon, AltMeters: *alt},
		battery: *battery,
	}
	sched := relay.New(cfg.Relay, link, store, guard, sess, snapshots, relay.SystemClock{}, opts)

	if cfg.Diag.Listen != "" {
		srv := diag.NewServer(cfg.Diag.Listen, sched)
		go func() {
			if err := srv.ListenAndServe(); err != nil {
				log.Printf("diagnostics server exited: %v", err)
			}
		}()
	}

	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fatal(err)
	}
}

func handleStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	window := fs.Duration("window", time.Hour, "time window")
	path := fs.String("path", "", "node CSV path override")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal(err)
	}

	csvPath := *path
	if csvPath == "" {
		csvPath = filepath.Join(cfg.Storage.DataDir, cfg.Storage.NodesCSV)
	}

	rows, err := storage.ReadNodeCSV(csvPath)
	if err != nil {
		fatal(err)
	}

	cutoff := time.Now().UTC().Add(-*window)
	summary := storage.Summarize(rows, cutoff)
	if summary.Count == 0 {
		fmt.Fprintln(os.Stdout, "no rows in window")
		return
	}

	fmt.Fprintf(os.Stdout, "rows=%d from=%s to=%s\n", summary.Count, summary.From.Format(time.RFC3339), summary.To.Format(time.RFC3339))
	fmt.Fprintf(os.Stdout, "rssi avg=%.1fdBm min=%.0fdBm max=%.0fdBm snr avg=%.1fdB loss=%.2f%%\n",
		summary.AvgRSSIDbm, summary.MinRSSIDbm, summary.MaxRSSIDbm, summary.AvgSNRDb, summary.LossPct)
	for id, n := range summary.RowsPerNode {
		fmt.Fprintf(os.Stdout, "node=%d rows=%d\n", id, n)
	}
}

func handleDecode(args []string) {
	fs := flag.NewFlagSet("decode", flag.ExitOnError)
	hexFrame := fs.String("hex", "", "hex-encoded binary report")
	asciiFrame := fs.String("ascii", "", "ASCII report line")
	_ = fs.Parse(args)

	var raw []byte
	switch {
	case *hexFrame != "":
		b, err := hex.DecodeString(*hexFrame)
		if err != nil {
			fatal(err)
		}
		raw = b
	case *asciiFrame != "":
		raw = []byte(*asciiFrame)
	default:
		fatal(errors.New("--hex or --ascii is required"))
	}

	report, err := wire.DecodeReport(raw)
	if err != nil {
		fatal(err)
	}
	fmt.Fprintf(os.Stdout, "node=%d seq=%d soil=%.1f%% temp=%.1fC humidity=%.1f%% irrigation=%v\n",
		report.NodeID, report.Seq, report.SoilMoisturePct, report.AmbientTempC, report.HumidityPct, report.IrrigationActive)
}

func handleBudget(args []string) {
	fs := flag.NewFlagSet("budget", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	distanceKm := fs.Float64("distance-km", 0, "slant range override in km")
	lat := fs.Float64("lat", 0, "platform latitude in degrees")
	lon := fs.Float64("lon", 0, "platform longitude in degrees")
	alt := fs.Float64("alt", 0, "platform altitude in meters")
	sf := fs.Int("sf", 0, "spreading factor override")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal(err)
	}

	p := budgetParams(cfg)
	if *sf != 0 {
		p.SpreadingFactor = *sf
	}

	var res linkbudget.Result
	if *distanceKm > 0 {
		res = linkbudget.CalculateAtDistance(*distanceKm, p)
	} else {
		self := model.GeoPoint{LatDeg: *lat, LonDeg: *lon, AltMeters: *alt}
		res = linkbudget.Calculate(self, collectorPoint(cfg), p)
	}

	fmt.Fprintf(os.Stdout, "distance=%.1fkm path_loss=%.1fdB sensitivity=%.1fdBm\n",
		res.DistanceKm, res.PathLossDb, res.SensitivityDbm)
	fmt.Fprintf(os.Stdout, "margin=%.1fdB viable=%v recommended_sf=%d\n",
		res.MarginDb, res.Viable, res.RecommendedSF)
}

func budgetParams(cfg config.Config) linkbudget.Params {
	return linkbudget.Params{
		FrequencyHz:     float64(cfg.Radio.FrequencyHz),
		BandwidthHz:     float64(cfg.Radio.BandwidthHz),
		SpreadingFactor: cfg.Radio.SpreadingFactor,
		TxPowerDbm:      float64(cfg.Radio.TxPowerDbm),
		AntennaGainDbi:  cfg.LinkBudget.AntennaGainDbi,
		PeerGainDbi:     cfg.LinkBudget.CollectorGainDbi,
		NoiseFigureDb:   cfg.LinkBudget.NoiseFigureDb,
		MinMarginDb:     cfg.LinkBudget.MinMarginDb,
	}
}

func collectorPoint(cfg config.Config) model.GeoPoint {
	return model.GeoPoint{
		LatDeg:    cfg.LinkBudget.CollectorLatDeg,
		LonDeg:    cfg.LinkBudget.CollectorLonDeg,
		AltMeters: cfg.LinkBudget.CollectorAltM,
	}
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		var cfg config.Config
		config.ApplyDefaults(&cfg)
		return cfg, nil
	}
	return config.Load(path)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signals
		cancel()
	}()
	return ctx, cancel
}

func fatal(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
