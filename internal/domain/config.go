package domain

import (
	"time"
)

// CentralityMetric selects which node centrality drives hub detection.
type CentralityMetric string

const (
	MetricDegree      CentralityMetric = "degree"
	MetricBetweenness CentralityMetric = "betweenness"
	MetricEigenvector CentralityMetric = "eigenvector"
	MetricPageRank    CentralityMetric = "pagerank"
)

// CommunityAlgorithm selects the partitioning algorithm.
type CommunityAlgorithm string

const (
	CommunityLouvain      CommunityAlgorithm = "louvain"
	CommunityGirvanNewman CommunityAlgorithm = "girvan-newman"
)

// PageRankConfig bounds the PageRank power iteration.
type PageRankConfig struct {
	Damping       float64 `json:"damping"`
	MaxIterations int     `json:"maxIterations"`
	Tolerance     float64 `json:"tolerance"` // L1 change between iterations
}

// Validate fails fast on out-of-range iteration bounds.
func (c PageRankConfig) Validate() error {
	if c.Damping <= 0 || c.Damping >= 1 {
		return configError("pagerank damping must be in (0,1), got %v", c.Damping)
	}
	if c.MaxIterations <= 0 {
		return configError("pagerank maxIterations must be positive, got %d", c.MaxIterations)
	}
	if c.Tolerance <= 0 {
		return configError("pagerank tolerance must be positive, got %v", c.Tolerance)
	}
	return nil
}

// CommunityConfig drives community detection.
type CommunityConfig struct {
	Algorithm CommunityAlgorithm `json:"algorithm"`

	// Epsilon is the minimum modularity improvement that keeps the
	// Louvain local-move phase running.
	Epsilon float64 `json:"epsilon"`

	// MaxPasses caps Louvain aggregation rounds.
	MaxPasses int `json:"maxPasses"`
}

func (c CommunityConfig) Validate() error {
	switch c.Algorithm {
	case CommunityLouvain, CommunityGirvanNewman:
	default:
		return configError("unknown community algorithm %q", c.Algorithm)
	}
	if c.Epsilon <= 0 {
		return configError("community epsilon must be positive, got %v", c.Epsilon)
	}
	if c.MaxPasses <= 0 {
		return configError("community maxPasses must be positive, got %d", c.MaxPasses)
	}
	return nil
}

// CycleConfig tunes laundering-loop detection.
type CycleConfig struct {
	MinLength int `json:"minLength"`
	MaxLength int `json:"maxLength"`

	// MaxDuration excludes cycles whose member transactions span more
	// wall-clock time than this; spread-out cycles are likely
	// coincidental rather than designed loops.
	MaxDuration time.Duration `json:"maxDuration"`

	// MinAmountThreshold anchors the amount component of the score; a
	// cycle moving 10x this amount saturates that component.
	MinAmountThreshold float64 `json:"minAmountThreshold"`

	ScoreThreshold float64 `json:"scoreThreshold"`

	// MaxCycles is the enumeration safety cap. When tripped, detection
	// returns the cycles found so far with a truncation flag.
	MaxCycles int `json:"maxCycles"`
}

func (c CycleConfig) Validate() error {
	if c.MinLength < 3 {
		return configError("cycle minLength must be at least 3, got %d", c.MinLength)
	}
	if c.MaxLength < c.MinLength {
		return configError("cycle maxLength %d below minLength %d", c.MaxLength, c.MinLength)
	}
	if c.MaxDuration <= 0 {
		return configError("cycle maxDuration must be positive, got %v", c.MaxDuration)
	}
	if c.MinAmountThreshold <= 0 {
		return configError("cycle minAmountThreshold must be positive, got %v", c.MinAmountThreshold)
	}
	if c.ScoreThreshold < 0 || c.ScoreThreshold > 1 {
		return configError("cycle scoreThreshold must be in [0,1], got %v", c.ScoreThreshold)
	}
	if c.MaxCycles <= 0 {
		return configError("cycle maxCycles must be positive, got %d", c.MaxCycles)
	}
	return nil
}

// SmurfingConfig tunes fan-in fractionation detection.
type SmurfingConfig struct {
	MinIncomingTransactions int `json:"minIncomingTransactions"`
	DistinctSenders         int `json:"distinctSenders"`

	// MaxTransactionAmount models the reporting threshold being evaded;
	// only contributions at or below it count.
	MaxTransactionAmount float64 `json:"maxTransactionAmount"`

	// AmountVarianceThreshold is the maximum coefficient of variation
	// (std dev / mean) for amounts to qualify as deliberate splitting.
	AmountVarianceThreshold float64 `json:"amountVarianceThreshold"`

	// Window is the sliding window over incoming transactions. Zero
	// means all incoming edges are considered regardless of time.
	Window time.Duration `json:"window"`

	ScoreThreshold float64 `json:"scoreThreshold"`
}

func (c SmurfingConfig) Validate() error {
	if c.MinIncomingTransactions < 1 {
		return configError("smurfing minIncomingTransactions must be positive, got %d", c.MinIncomingTransactions)
	}
	if c.DistinctSenders < 1 {
		return configError("smurfing distinctSenders must be positive, got %d", c.DistinctSenders)
	}
	if c.MaxTransactionAmount <= 0 {
		return configError("smurfing maxTransactionAmount must be positive, got %v", c.MaxTransactionAmount)
	}
	if c.AmountVarianceThreshold <= 0 {
		return configError("smurfing amountVarianceThreshold must be positive, got %v", c.AmountVarianceThreshold)
	}
	if c.Window < 0 {
		return configError("smurfing window must not be negative, got %v", c.Window)
	}
	if c.ScoreThreshold < 0 || c.ScoreThreshold > 1 {
		return configError("smurfing scoreThreshold must be in [0,1], got %v", c.ScoreThreshold)
	}
	return nil
}

// AnomalyConfig tunes the network-anomaly sub-checks.
type AnomalyConfig struct {
	// Hub detection.
	HubMetric           CentralityMetric `json:"hubMetric"`
	OutlierStdDevs      float64          `json:"outlierStdDevs"`
	HubDegreeThreshold  int              `json:"hubDegreeThreshold"`

	// Bridge detection.
	BridgeBetweennessThreshold float64 `json:"bridgeBetweennessThreshold"`

	// Isolated-cluster detection.
	IsolationMinSize     int     `json:"isolationMinSize"`
	IsolationMinDensity  float64 `json:"isolationMinDensity"`
	IsolationCrossEdges  int     `json:"isolationCrossEdges"` // low-connectivity cutoff (exclusive)

	// Burst detection: many outgoing transactions in a short window.
	BurstEnabled   bool          `json:"burstEnabled"`
	BurstThreshold int           `json:"burstThreshold"`
	BurstWindow    time.Duration `json:"burstWindow"`

	PageRank  PageRankConfig  `json:"pageRank"`
	Community CommunityConfig `json:"community"`
}

func (c AnomalyConfig) Validate() error {
	switch c.HubMetric {
	case MetricDegree, MetricBetweenness, MetricEigenvector, MetricPageRank:
	default:
		return configError("unknown hub metric %q", c.HubMetric)
	}
	if c.OutlierStdDevs <= 0 {
		return configError("anomaly outlierStdDevs must be positive, got %v", c.OutlierStdDevs)
	}
	if c.HubDegreeThreshold <= 0 {
		return configError("anomaly hubDegreeThreshold must be positive, got %d", c.HubDegreeThreshold)
	}
	if c.BridgeBetweennessThreshold <= 0 || c.BridgeBetweennessThreshold > 1 {
		return configError("anomaly bridgeBetweennessThreshold must be in (0,1], got %v", c.BridgeBetweennessThreshold)
	}
	if c.IsolationMinSize < 2 {
		return configError("anomaly isolationMinSize must be at least 2, got %d", c.IsolationMinSize)
	}
	if c.IsolationMinDensity <= 0 || c.IsolationMinDensity > 1 {
		return configError("anomaly isolationMinDensity must be in (0,1], got %v", c.IsolationMinDensity)
	}
	if c.IsolationCrossEdges < 0 {
		return configError("anomaly isolationCrossEdges must not be negative, got %d", c.IsolationCrossEdges)
	}
	if c.BurstEnabled {
		if c.BurstThreshold <= 0 {
			return configError("anomaly burstThreshold must be positive, got %d", c.BurstThreshold)
		}
		if c.BurstWindow <= 0 {
			return configError("anomaly burstWindow must be positive, got %v", c.BurstWindow)
		}
	}
	if err := c.PageRank.Validate(); err != nil {
		return err
	}
	return c.Community.Validate()
}

// DetectionConfig bundles the per-detector options for one engine run.
type DetectionConfig struct {
	Cycle    CycleConfig    `json:"cycle"`
	Smurfing SmurfingConfig `json:"smurfing"`
	Anomaly  AnomalyConfig  `json:"anomaly"`

	// HighRiskThreshold is the score above which findings are counted
	// as high risk in the run summary and published as alerts.
	HighRiskThreshold float64 `json:"highRiskThreshold"`
}

func (c DetectionConfig) Validate() error {
	if err := c.Cycle.Validate(); err != nil {
		return err
	}
	if err := c.Smurfing.Validate(); err != nil {
		return err
	}
	if err := c.Anomaly.Validate(); err != nil {
		return err
	}
	if c.HighRiskThreshold < 0 || c.HighRiskThreshold > 1 {
		return configError("highRiskThreshold must be in [0,1], got %v", c.HighRiskThreshold)
	}
	return nil
}

// DefaultPageRankConfig returns the standard power-iteration bounds.
func DefaultPageRankConfig() PageRankConfig {
	return PageRankConfig{
		Damping:       0.85,
		MaxIterations: 100,
		Tolerance:     1e-6,
	}
}

// DefaultCommunityConfig returns Louvain with the standard epsilon.
func DefaultCommunityConfig() CommunityConfig {
	return CommunityConfig{
		Algorithm: CommunityLouvain,
		Epsilon:   1e-7,
		MaxPasses: 10,
	}
}

// DefaultCycleConfig returns the stock laundering-loop thresholds.
func DefaultCycleConfig() CycleConfig {
	return CycleConfig{
		MinLength:          3,
		MaxLength:          10,
		MaxDuration:        72 * time.Hour,
		MinAmountThreshold: 10000,
		ScoreThreshold:     0.7,
		MaxCycles:          10000,
	}
}

// DefaultSmurfingConfig returns the stock fractionation thresholds.
// The 48h window mirrors the typical structuring pattern of spreading
// deposits over two days.
func DefaultSmurfingConfig() SmurfingConfig {
	return SmurfingConfig{
		MinIncomingTransactions: 5,
		DistinctSenders:         3,
		MaxTransactionAmount:    10000,
		AmountVarianceThreshold: 0.3,
		Window:                  48 * time.Hour,
		ScoreThreshold:          0.6,
	}
}

// DefaultAnomalyConfig returns the stock network-anomaly thresholds.
func DefaultAnomalyConfig() AnomalyConfig {
	return AnomalyConfig{
		HubMetric:                  MetricPageRank,
		OutlierStdDevs:             2.5,
		HubDegreeThreshold:         20,
		BridgeBetweennessThreshold: 0.5,
		IsolationMinSize:           3,
		IsolationMinDensity:        0.3,
		IsolationCrossEdges:        2,
		BurstEnabled:               true,
		BurstThreshold:             20,
		BurstWindow:                2 * time.Hour,
		PageRank:                   DefaultPageRankConfig(),
		Community:                  DefaultCommunityConfig(),
	}
}

// DefaultDetectionConfig returns defaults for all three detectors.
func DefaultDetectionConfig() DetectionConfig {
	return DetectionConfig{
		Cycle:             DefaultCycleConfig(),
		Smurfing:          DefaultSmurfingConfig(),
		Anomaly:           DefaultAnomalyConfig(),
		HighRiskThreshold: 0.7,
	}
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// Config is the complete Kestrel configuration.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Detection DetectionConfig `json:"detection"`
	Cache     CacheConfig     `json:"cache"`
	EventBus  EventBusConfig  `json:"eventBus"`
	Logging   LoggingConfig   `json:"logging"`
}

// DefaultConfig returns the single-process configuration: in-memory
// metric cache and channel event bus.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 60,
		},
		Detection: DefaultDetectionConfig(),
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 1024,
			LocalTTL:     10 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// DistributedConfig returns the multi-node configuration: Redis-backed
// two-phase metric cache and NATS alert bus.
func DistributedConfig() *Config {
	cfg := DefaultConfig()
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   256,
		LocalTTL:       time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	return cfg
}
