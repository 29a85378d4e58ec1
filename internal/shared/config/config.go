package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server     ServerConfig
	Mongo      MongoConfig
	Neo4j      Neo4jConfig
	Influx     InfluxConfig
	Cassandra  CassandraConfig
	Redis      RedisConfig
	Journal    JournalConfig
	DeadLetter DeadLetterConfig
	Dispatcher DispatcherConfig
	Reconciler ReconcilerConfig
	Simulation SimulationConfig
	Auth       AuthConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

// MongoConfig holds connection settings for the authoritative document store.
type MongoConfig struct {
	URI      string
	Database string
	// WriteTimeout bounds the majority-acknowledged write wait.
	WriteTimeout time.Duration
}

// Neo4jConfig holds connection settings for the care-relationship graph.
type Neo4jConfig struct {
	URI      string
	Username string
	Password string
}

// InfluxConfig holds connection settings for the vital-sign time series.
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// CassandraConfig holds connection settings for the analytics history.
type CassandraConfig struct {
	Hosts    []string
	Port     int
	Keyspace string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (r RedisConfig) String() string {
	return fmt.Sprintf("redis://%s/%d", r.Addr, r.DB)
}

// JournalConfig holds the Postgres connection for the outcome journal.
type JournalConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	Enabled  bool
}

func (j JournalConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		j.Host, j.Port, j.User, j.Password, j.Database, j.SSLMode,
	)
}

// DeadLetterConfig holds the EventStoreDB connection for the dead-letter stream.
type DeadLetterConfig struct {
	// Host is the EventStoreDB server hostname
	Host string
	// Port is the gRPC port (default 2113)
	Port int
	// Insecure disables TLS (for development)
	Insecure bool
	// Username for authentication (optional)
	Username string
	// Password for authentication (optional)
	Password string
	// Stream is the dead-letter stream name
	Stream  string
	Enabled bool
}

// DispatcherConfig bounds the event worker pool.
type DispatcherConfig struct {
	// Workers is the number of partitioned event workers
	Workers int
	// QueueSize is the per-worker buffered queue depth (backpressure bound)
	QueueSize int
}

// ReconcilerConfig paces directory reconciliation runs.
type ReconcilerConfig struct {
	// RatePerSecond caps relationship replays per second (0 = unlimited)
	RatePerSecond int
	Burst         int
}

// SimulationConfig drives the demo vital-sign generator. Never consulted by
// the alert evaluator.
type SimulationConfig struct {
	Enabled    bool
	Interval   time.Duration
	NormalLow  float64
	NormalHigh float64
	// SpikeChance is the probability of an out-of-band reading per tick
	SpikeChance float64
}

type AuthConfig struct {
	JWTSecret string
}

func Load() (*Config, error) {
	return &Config{
		Server: ServerConfig{
			Port: getEnvInt("SERVER_PORT", 8080),
			Env:  getEnv("ENV", "development"),
		},
		Mongo: MongoConfig{
			URI:          getEnv("MONGO_URI", "mongodb://localhost:27017"),
			Database:     getEnv("MONGO_DATABASE", "HealthcareSystem"),
			WriteTimeout: getEnvDuration("MONGO_WRITE_TIMEOUT", 5*time.Second),
		},
		Neo4j: Neo4jConfig{
			URI:      getEnv("NEO4J_URI", "bolt://localhost:7687"),
			Username: getEnv("NEO4J_USERNAME", "neo4j"),
			Password: getEnv("NEO4J_PASSWORD", "neo4j123"),
		},
		Influx: InfluxConfig{
			URL:    getEnv("INFLUX_URL", "http://localhost:8086"),
			Token:  getEnv("INFLUX_TOKEN", ""),
			Org:    getEnv("INFLUX_ORG", "healthcare"),
			Bucket: getEnv("INFLUX_BUCKET", "patient_measurements"),
		},
		Cassandra: CassandraConfig{
			Hosts:    getEnvSlice("CASSANDRA_HOSTS", []string{"127.0.0.1"}),
			Port:     getEnvInt("CASSANDRA_PORT", 9042),
			Keyspace: getEnv("CASSANDRA_KEYSPACE", "healthcare"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Journal: JournalConfig{
			Host:     getEnv("JOURNAL_DB_HOST", "localhost"),
			Port:     getEnvInt("JOURNAL_DB_PORT", 5432),
			User:     getEnv("JOURNAL_DB_USER", "caresync"),
			Password: getEnv("JOURNAL_DB_PASSWORD", "caresync"),
			Database: getEnv("JOURNAL_DB_NAME", "caresync"),
			SSLMode:  getEnv("JOURNAL_DB_SSLMODE", "disable"),
			Enabled:  getEnvBool("JOURNAL_ENABLED", true),
		},
		DeadLetter: DeadLetterConfig{
			Host:     getEnv("EVENTSTORE_HOST", "localhost"),
			Port:     getEnvInt("EVENTSTORE_PORT", 2113),
			Insecure: getEnvBool("EVENTSTORE_INSECURE", true),
			Username: getEnv("EVENTSTORE_USERNAME", ""),
			Password: getEnv("EVENTSTORE_PASSWORD", ""),
			Stream:   getEnv("DEADLETTER_STREAM", "sync-deadletter"),
			Enabled:  getEnvBool("DEADLETTER_ENABLED", true),
		},
		Dispatcher: DispatcherConfig{
			Workers:   getEnvInt("DISPATCHER_WORKERS", 4),
			QueueSize: getEnvInt("DISPATCHER_QUEUE_SIZE", 256),
		},
		Reconciler: ReconcilerConfig{
			RatePerSecond: getEnvInt("RECONCILER_RATE_PER_SECOND", 100),
			Burst:         getEnvInt("RECONCILER_BURST", 10),
		},
		Simulation: SimulationConfig{
			Enabled:     getEnvBool("SIMULATION_ENABLED", false),
			Interval:    getEnvDuration("SIMULATION_INTERVAL", 2*time.Second),
			NormalLow:   getEnvFloat("SIMULATION_NORMAL_LOW", 65),
			NormalHigh:  getEnvFloat("SIMULATION_NORMAL_HIGH", 85),
			SpikeChance: getEnvFloat("SIMULATION_SPIKE_CHANCE", 0.1),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-in-prod"),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, v := range splitAndTrim(value, ",") {
			if v != "" {
				result = append(result, v)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

func splitAndTrim(s, sep string) []string {
	var result []string
	for _, part := range splitString(s, sep) {
		trimmed := trimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func splitString(s, sep string) []string {
	if s == "" {
		return nil
	}
	var result []string
	start := 0
	for i := 0; i <= len(s)-len(sep); i++ {
		if s[i:i+len(sep)] == sep {
			result = append(result, s[start:i])
			start = i + len(sep)
			i += len(sep) - 1
		}
	}
	result = append(result, s[start:])
	return result
}

func trimSpace(s string) string {
	start := 0
	end := len(s)
	for start < end && (s[start] == ' ' || s[start] == '\t') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t') {
		end--
	}
	return s[start:end]
}
