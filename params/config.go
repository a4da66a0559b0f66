package params

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/uhyunpark/matchpipe/pkg/app/core/mailbox"
)

type Pipeline struct {
	// InboxCapacity bounds every component inbox. Senders block when full.
	InboxCapacity int
	Verbose       bool
}

type Node struct {
	LogFile string // empty: console only
	// APIAddr enables the HTTP/WebSocket server when non-empty.
	APIAddr string
}

type Storage struct {
	AuditDBPath   string // empty: in-memory journal
	EngineWALPath string // empty: no engine WAL
}

type Kafka struct {
	Brokers []string // empty: trade publishing disabled
	Topic   string
}

type Feeder struct {
	Enabled bool
	Orders  int
}

type Config struct {
	Pipeline Pipeline
	Node     Node
	Storage  Storage
	Kafka    Kafka
	Feeder   Feeder
}

func Default() Config {
	return Config{
		Pipeline: Pipeline{
			InboxCapacity: mailbox.DefaultCapacity,
		},
		Node: Node{
			LogFile: "data/node.log",
		},
		Kafka: Kafka{
			Topic: "trades",
		},
		Feeder: Feeder{
			Orders: 1000,
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	if capStr := os.Getenv("PIPELINE_INBOX_CAPACITY"); capStr != "" {
		if n, err := strconv.Atoi(capStr); err == nil && n > 0 {
			cfg.Pipeline.InboxCapacity = n
		}
	}
	cfg.Pipeline.Verbose = os.Getenv("VERBOSE") != ""

	cfg.Node.LogFile = getEnv("LOG_FILE", cfg.Node.LogFile)
	if cfg.Node.LogFile == "none" {
		cfg.Node.LogFile = ""
	}
	cfg.Node.APIAddr = getEnv("API_ADDR", cfg.Node.APIAddr)

	cfg.Storage.AuditDBPath = getEnv("AUDIT_DB_PATH", "")
	cfg.Storage.EngineWALPath = getEnv("ENGINE_WAL_PATH", "")

	// Brokers from comma-separated list, e.g. "localhost:9092,localhost:9093"
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.Kafka.Brokers = append(cfg.Kafka.Brokers, b)
			}
		}
	}
	cfg.Kafka.Topic = getEnv("KAFKA_TOPIC", cfg.Kafka.Topic)

	if txgen := os.Getenv("ENABLE_TXGEN"); txgen != "" {
		cfg.Feeder.Enabled = txgen == "true"
	}
	if n := os.Getenv("TXGEN_ORDERS"); n != "" {
		if v, err := strconv.Atoi(n); err == nil && v > 0 {
			cfg.Feeder.Orders = v
		}
	}

	return cfg
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
