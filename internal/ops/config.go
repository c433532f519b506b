// Package ops loads the trader configuration: a JSON file overlaid by
// TRADER_* environment variables, resolved against a fresh registry.
package ops

import (
	"os"
	"time"

	"github.com/bytedance/sonic"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/yanun0323/decimal"
	"github.com/yanun0323/errors"

	"tradecore/internal/mdg"
)

// File mirrors the JSON config layout.
type File struct {
	Mode        string           `json:"mode"`
	ListenOnly  bool             `json:"listenOnly"`
	FeeOptimize bool             `json:"feeOptimize"`
	PriceScale  int              `json:"priceScale"`
	Timezone    string           `json:"timezone"`
	Venues      []VenueConfig    `json:"venues"`
	Symbols     []SymbolConfig   `json:"symbols"`
	FeeRoutes   []FeeRouteConfig `json:"feeRoutes"`
	Seqno       SeqnoConfig      `json:"seqno"`
	Risk        RiskConfig       `json:"risk"`
	Reject      RejectConfig     `json:"reject"`
	Feed        FeedConfig       `json:"feed"`
	Recorder    RecorderConfig   `json:"recorder"`
	Journal     JournalConfig    `json:"journal"`
	Alerts      AlertConfig      `json:"alerts"`
	Snapshot    SnapshotConfig   `json:"snapshot"`
	Profiling   ProfilingConfig  `json:"profiling"`
}

// VenueConfig describes one execution venue.
type VenueConfig struct {
	Name    string `json:"name"`
	Account string `json:"account"`
	// Data marks venues whose market data feeds the book.
	Data         bool          `json:"data"`
	RequireQuote bool          `json:"requireQuote"`
	Latency      LatencyConfig `json:"latency"`
	Chaos        ChaosConfig   `json:"chaos"`
}

// LatencyConfig is the simulated delay table of a venue.
type LatencyConfig struct {
	Sequencing Duration `json:"sequencing"`
	Live       Duration `json:"live"`
	Reply      Duration `json:"reply"`
	Cancel     Duration `json:"cancel"`
}

// ChaosConfig perturbs simulated acknowledgements.
type ChaosConfig struct {
	Seed          int64    `json:"seed"`
	DropRate      float64  `json:"dropRate"`
	DuplicateRate float64  `json:"duplicateRate"`
	ReorderWindow int      `json:"reorderWindow"`
	MaxDelay      Duration `json:"maxDelay"`
}

// SymbolConfig describes one tradable symbol.
type SymbolConfig struct {
	Name        string          `json:"name"`
	Venue       string          `json:"venue"`
	MaxOrderQty int64           `json:"maxOrderQty"`
	MaxNotional decimal.Decimal `json:"maxNotional"`
	Locates     int64           `json:"locates"`
}

// FeeRouteConfig sends orders aimed at From to To instead.
type FeeRouteConfig struct {
	From string `json:"from"`
	To   string `json:"to"`
	Flag string `json:"flag"`
}

// SeqnoConfig configures order id allocation.
type SeqnoConfig struct {
	Offset    uint32 `json:"offset"`
	Increment uint32 `json:"increment"`
	// Reserve is how far ahead of the issued counter the stored mark runs.
	Reserve uint32 `json:"reserve"`
	// Store is a pebble directory keeping the daily high-water mark.
	Store string `json:"store"`
}

// RiskConfig holds run-wide pre-trade limits. Zero disables a limit.
type RiskConfig struct {
	KillSwitch           bool            `json:"killSwitch"`
	MaxOrderQty          int64           `json:"maxOrderQty"`
	MaxOrderNotional     decimal.Decimal `json:"maxOrderNotional"`
	OrderRateLimit       int             `json:"orderRateLimit"`
	OrderRateWindow      Duration        `json:"orderRateWindow"`
	MaxPriceDeviationBps int64           `json:"maxPriceDeviationBps"`
}

// RejectConfig configures the reject guard. A negative threshold disables it.
type RejectConfig struct {
	Threshold int    `json:"threshold"`
	Policy    string `json:"policy"`
}

// FeedConfig selects the event source.
type FeedConfig struct {
	// Source is "paper" or "replay".
	Source      string              `json:"source"`
	Interval    Duration            `json:"interval"`
	QueueSize   int                 `json:"queueSize"`
	ReplayDir   string              `json:"replayDir"`
	ReplaySpeed float64             `json:"replaySpeed"`
	Generator   mdg.GeneratorConfig `json:"generator"`
}

// RecorderConfig records inbound live events when Dir is set.
type RecorderConfig struct {
	Dir             string   `json:"dir"`
	SegmentMaxBytes int64    `json:"segmentMaxBytes"`
	SegmentMaxAge   Duration `json:"segmentMaxAge"`
}

// JournalConfig writes order updates to Postgres when DSN is set.
type JournalConfig struct {
	DSN           string   `json:"dsn"`
	BatchSize     int      `json:"batchSize"`
	FlushInterval Duration `json:"flushInterval"`
}

// AlertConfig selects alert sinks in addition to the log.
type AlertConfig struct {
	LogFile      string   `json:"logFile"`
	KafkaBrokers []string `json:"kafkaBrokers"`
	KafkaTopic   string   `json:"kafkaTopic"`
}

// SnapshotConfig writes position snapshots periodically when Path is set.
type SnapshotConfig struct {
	Path     string   `json:"path"`
	Interval Duration `json:"interval"`
}

// ProfilingConfig enables pyroscope when ServerAddress is set.
type ProfilingConfig struct {
	ServerAddress   string `json:"serverAddress"`
	ApplicationName string `json:"applicationName"`
}

// Env lists the TRADER_* overrides. Unset variables leave the file value.
type Env struct {
	Mode            string        `env:"MODE"`
	ListenOnly      *bool         `env:"LISTEN_ONLY"`
	KillSwitch      *bool         `env:"KILL_SWITCH"`
	FeedSource      string        `env:"FEED_SOURCE"`
	FeedInterval    time.Duration `env:"FEED_INTERVAL"`
	ReplayDir       string        `env:"REPLAY_DIR"`
	RecordDir       string        `env:"RECORD_DIR"`
	SeqnoStore      string        `env:"SEQNO_STORE"`
	RejectThreshold *int          `env:"REJECT_THRESHOLD"`
	RejectPolicy    string        `env:"REJECT_POLICY"`
	JournalDSN      string        `env:"JOURNAL_DSN"`
	AlertLogFile    string        `env:"ALERT_LOG_FILE"`
	KafkaBrokers    []string      `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic      string        `env:"KAFKA_TOPIC"`
	SnapshotPath    string        `env:"SNAPSHOT_PATH"`
	PyroscopeURL    string        `env:"PYROSCOPE_URL"`
}

const envPrefix = "TRADER_"

// Load reads the JSON file at path, loads .env when present, overlays the
// process environment and resolves the result.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, errors.Wrap(err, "read config")
	}
	_ = godotenv.Load()
	return Decode(data, nil)
}

// Decode parses data and overlays environ, or the process environment when
// environ is nil.
func Decode(data []byte, environ map[string]string) (Loaded, error) {
	var file File
	if err := sonic.Unmarshal(data, &file); err != nil {
		return Loaded{}, errors.Wrap(err, "decode config")
	}
	var overlay Env
	if err := env.ParseWithOptions(&overlay, env.Options{Prefix: envPrefix, Environment: environ}); err != nil {
		return Loaded{}, errors.Wrap(err, "parse environment")
	}
	overlay.apply(&file)
	return Resolve(file)
}

func (e Env) apply(f *File) {
	setString(&f.Mode, e.Mode)
	setString(&f.Feed.Source, e.FeedSource)
	setString(&f.Feed.ReplayDir, e.ReplayDir)
	setString(&f.Recorder.Dir, e.RecordDir)
	setString(&f.Seqno.Store, e.SeqnoStore)
	setString(&f.Reject.Policy, e.RejectPolicy)
	setString(&f.Journal.DSN, e.JournalDSN)
	setString(&f.Alerts.LogFile, e.AlertLogFile)
	setString(&f.Alerts.KafkaTopic, e.KafkaTopic)
	setString(&f.Snapshot.Path, e.SnapshotPath)
	setString(&f.Profiling.ServerAddress, e.PyroscopeURL)
	if e.ListenOnly != nil {
		f.ListenOnly = *e.ListenOnly
	}
	if e.KillSwitch != nil {
		f.Risk.KillSwitch = *e.KillSwitch
	}
	if e.RejectThreshold != nil {
		f.Reject.Threshold = *e.RejectThreshold
	}
	if e.FeedInterval > 0 {
		f.Feed.Interval = Duration(e.FeedInterval)
	}
	if len(e.KafkaBrokers) > 0 {
		f.Alerts.KafkaBrokers = e.KafkaBrokers
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
