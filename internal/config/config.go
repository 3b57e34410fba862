// Package config provides configuration types and loading for swarmcog.
package config

import "time"

// Config is the root configuration struct.
// Top-level groups: Space, Scheduler, Swarm, Timeline, Events, Log.
type Config struct {
	Space     SpaceConfig     `json:"space"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Swarm     SwarmConfig     `json:"swarm"`
	Timeline  TimelineConfig  `json:"timeline"`
	Events    EventsConfig    `json:"events"`
	Log       LogConfig       `json:"log"`
}

// ---------------------------------------------------------------------------
// Space – the shared knowledge graph
// ---------------------------------------------------------------------------

// SpaceConfig names the shared knowledge store.
type SpaceConfig struct {
	Name string `json:"name" envconfig:"NAME"`
}

// ---------------------------------------------------------------------------
// Scheduler – cognitive cycle workers
// ---------------------------------------------------------------------------

// SchedulerConfig contains settings for the cognitive scheduler.
type SchedulerConfig struct {
	Workers       int           `json:"workers" envconfig:"WORKERS"`
	Mode          string        `json:"mode" envconfig:"MODE"` // "synchronous", "asynchronous", "distributed"
	CycleInterval time.Duration `json:"cycleInterval" envconfig:"CYCLE_INTERVAL"`
}

// ---------------------------------------------------------------------------
// Swarm – agent limits and maintenance jobs
// ---------------------------------------------------------------------------

// SwarmConfig contains orchestration settings.
type SwarmConfig struct {
	MaxAgents    int           `json:"maxAgents" envconfig:"MAX_AGENTS"`
	DefaultTrust float64       `json:"defaultTrust" envconfig:"DEFAULT_TRUST"`
	TickInterval time.Duration `json:"tickInterval" envconfig:"TICK_INTERVAL"`
	DecayCron    string        `json:"decayCron" envconfig:"DECAY_CRON"`
	SnapshotCron string        `json:"snapshotCron" envconfig:"SNAPSHOT_CRON"`
	LockPath     string        `json:"lockPath" envconfig:"LOCK_PATH"`
}

// ---------------------------------------------------------------------------
// Timeline – SQLite persistence
// ---------------------------------------------------------------------------

// TimelineConfig contains persistence settings.
type TimelineConfig struct {
	Enabled     bool   `json:"enabled" envconfig:"ENABLED"`
	DBPath      string `json:"dbPath" envconfig:"DB_PATH"`
	RecordTasks bool   `json:"recordTasks" envconfig:"RECORD_TASKS"`
}

// ---------------------------------------------------------------------------
// Events – Kafka export and inject
// ---------------------------------------------------------------------------

// EventsConfig contains settings for the cognitive event bus and its Kafka
// bridge.
type EventsConfig struct {
	BufferSize    int           `json:"bufferSize" envconfig:"BUFFER_SIZE"`
	KafkaEnabled  bool          `json:"kafkaEnabled" envconfig:"KAFKA_ENABLED"`
	KafkaBrokers  string        `json:"kafkaBrokers" envconfig:"KAFKA_BROKERS"`
	Topic         string        `json:"topic" envconfig:"TOPIC"`
	InjectTopic   string        `json:"injectTopic" envconfig:"INJECT_TOPIC"`
	ConsumerGroup string        `json:"consumerGroup" envconfig:"KAFKA_CONSUMER_GROUP"`
	BatchSize     int           `json:"batchSize" envconfig:"BATCH_SIZE"`
	FlushInterval time.Duration `json:"flushInterval" envconfig:"FLUSH_INTERVAL"`
}

// ---------------------------------------------------------------------------
// Log – slog handler
// ---------------------------------------------------------------------------

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `json:"level" envconfig:"LEVEL"`   // debug, info, warn, error
	Format string `json:"format" envconfig:"FORMAT"` // text, json
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Space: SpaceConfig{
			Name: "swarm_agentspace",
		},
		Scheduler: SchedulerConfig{
			Workers:       4,
			Mode:          "asynchronous",
			CycleInterval: time.Second,
		},
		Swarm: SwarmConfig{
			MaxAgents:    50,
			DefaultTrust: 0.5,
			TickInterval: 60 * time.Second,
			DecayCron:    "* * * * *",
			SnapshotCron: "*/5 * * * *",
			LockPath:     "~/.swarmcog/swarmcog.lock",
		},
		Timeline: TimelineConfig{
			Enabled:     true,
			DBPath:      "~/.swarmcog/timeline.db",
			RecordTasks: true,
		},
		Events: EventsConfig{
			BufferSize:    1024,
			KafkaEnabled:  false,
			KafkaBrokers:  "localhost:9092",
			Topic:         "swarmcog.events",
			InjectTopic:   "swarmcog.inject",
			ConsumerGroup: "swarmcog",
			BatchSize:     100,
			FlushInterval: time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
