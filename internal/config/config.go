// Package config holds the settings of both binaries. Values come from an
// optional env file, then the process environment, over the defaults in load.go.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Application ApplicationConfig
	Logging     LoggingConfig
	Server      ServerConfig
	Kafka       KafkaConfig
	Postgres    PostgresConfig
	MongoDB     MongoDBConfig
	Outbox      OutboxConfig
	WorkerPool  WorkerPoolConfig
	Ledger      LedgerConfig
	Mpesa       MpesaConfig

	// Source is the env file the values were read from, empty when none was found
	Source string
}

type ApplicationConfig struct {
	Env  string
	Name string
}

type LoggingConfig struct {
	Level string
}

type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
}

// KafkaConfig is shared by the ledger event producer, its consumer and the DLQ producer
type KafkaConfig struct {
	Brokers           string
	LedgerEventsTopic string
	NumPartitions     int
	ReplicationFactor int
	ConsumerGroup     string
	MinBytes          int
	MaxBytes          int
	MaxWait           time.Duration
	StartOffset       int64
	DLQTopic          string
}

type PostgresConfig struct {
	URL             string
	MaxConns        int32
	MinConns        int32
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	MigrationsPath  string
}

// MongoDBConfig points at the audit ledger database
type MongoDBConfig struct {
	URI             string
	Database        string
	Timeout         time.Duration
	MaxPoolSize     uint64
	MinPoolSize     uint64
	MaxConnIdleTime time.Duration
}

type OutboxConfig struct {
	PollingInterval  time.Duration
	BatchSize        int
	MaxRetryAttempts int // publish attempts before a message is parked as FAILED_TO_PUBLISH
}

// WorkerPoolConfig bounds the number of ledger operations in flight
type WorkerPoolConfig struct {
	Size      int
	MaxQueued int // callers allowed to wait for a free worker
}

type LedgerConfig struct {
	LockTimeout              time.Duration // wait for account row locks before reporting contention
	MaxRetries               int
	RetryBaseDelay           time.Duration
	AccountNumberMaxAttempts int
	BcryptCost               int
}

// MpesaConfig holds the Daraja credentials and the circuit breaker settings of
// the STK push client. Credentials have no defaults.
type MpesaConfig struct {
	BaseURL            string
	ConsumerKey        string
	ConsumerSecret     string
	ShortCode          string
	Passkey            string
	CallbackURL        string
	AccountReference   string
	TransactionDesc    string
	Timeout            time.Duration
	BreakerMaxRequests uint32        // requests let through while half-open
	BreakerInterval    time.Duration // how often closed-state counts are cleared
	BreakerTimeout     time.Duration // how long the breaker stays open
	BreakerMaxFailures uint32        // consecutive failures that open the breaker
}

// problems collects every invalid setting so startup reports them all at once
type problems []string

func (p *problems) positive(key string, ok bool) {
	if !ok {
		*p = append(*p, fmt.Sprintf("%s must be greater than 0", key))
	}
}

func (p *problems) required(key, value string) {
	if strings.TrimSpace(value) == "" {
		*p = append(*p, fmt.Sprintf("%s is required", key))
	}
}

func (p *problems) add(msg string) {
	*p = append(*p, msg)
}

func (p problems) err() error {
	if len(p) == 0 {
		return nil
	}
	return errors.New(strings.Join(p, ", "))
}

func (c *Config) validate() error {
	var p problems

	p.positive("SERVER_PORT", c.Server.Port > 0)
	p.positive("SERVER_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout > 0)
	p.positive("SERVER_READ_TIMEOUT", c.Server.ReadTimeout > 0)
	p.positive("SERVER_WRITE_TIMEOUT", c.Server.WriteTimeout > 0)
	p.positive("SERVER_IDLE_TIMEOUT", c.Server.IdleTimeout > 0)

	c.Kafka.check(&p)

	p.required("POSTGRES_URL", c.Postgres.URL)
	p.positive("POSTGRES_MAX_CONNS", c.Postgres.MaxConns > 0)
	p.positive("POSTGRES_MIN_CONNS", c.Postgres.MinConns > 0)
	if c.Postgres.MinConns > c.Postgres.MaxConns {
		p.add("POSTGRES_MIN_CONNS cannot exceed POSTGRES_MAX_CONNS")
	}
	p.positive("POSTGRES_MAX_CONN_LIFETIME", c.Postgres.ConnMaxLifetime > 0)
	p.positive("POSTGRES_MAX_CONN_IDLE_TIME", c.Postgres.ConnMaxIdleTime > 0)

	p.required("MONGO_URI", c.MongoDB.URI)
	p.required("MONGO_DATABASE", c.MongoDB.Database)
	p.positive("MONGO_TIMEOUT", c.MongoDB.Timeout > 0)
	p.positive("MONGO_MAX_POOL_SIZE", c.MongoDB.MaxPoolSize > 0)
	p.positive("MONGO_MIN_POOL_SIZE", c.MongoDB.MinPoolSize > 0)
	p.positive("MONGO_MAX_CONN_IDLE_TIME", c.MongoDB.MaxConnIdleTime > 0)

	p.positive("OUTBOX_POLLING_INTERVAL", c.Outbox.PollingInterval > 0)
	p.positive("OUTBOX_BATCH_SIZE", c.Outbox.BatchSize > 0)
	p.positive("OUTBOX_MAX_RETRY_ATTEMPTS", c.Outbox.MaxRetryAttempts > 0)
	p.positive("WORKER_POOL_SIZE", c.WorkerPool.Size > 0)
	p.positive("WORKER_POOL_MAX_QUEUED", c.WorkerPool.MaxQueued > 0)

	c.Ledger.check(&p)
	c.Mpesa.check(&p)

	return p.err()
}

func (k KafkaConfig) check(p *problems) {
	p.required("KAFKA_BROKERS", k.Brokers)
	p.required("KAFKA_LEDGER_EVENTS_TOPIC", k.LedgerEventsTopic)
	p.required("KAFKA_CONSUMER_GROUP", k.ConsumerGroup)
	p.required("KAFKA_DLQ_TOPIC", k.DLQTopic)
	if k.DLQTopic != "" && k.DLQTopic == k.LedgerEventsTopic {
		p.add("KAFKA_DLQ_TOPIC must differ from KAFKA_LEDGER_EVENTS_TOPIC")
	}
	p.positive("KAFKA_CONSUMER_MIN_BYTES", k.MinBytes > 0)
	p.positive("KAFKA_CONSUMER_MAX_BYTES", k.MaxBytes > 0)
	p.positive("KAFKA_CONSUMER_MAX_WAIT", k.MaxWait > 0)
}

func (l LedgerConfig) check(p *problems) {
	p.positive("LEDGER_LOCK_TIMEOUT", l.LockTimeout > 0)
	if l.MaxRetries < 0 {
		p.add("LEDGER_MAX_RETRIES cannot be negative")
	}
	p.positive("LEDGER_RETRY_BASE_DELAY", l.RetryBaseDelay > 0)
	p.positive("ACCOUNT_NUMBER_MAX_ATTEMPTS", l.AccountNumberMaxAttempts > 0)
	if l.BcryptCost < 4 || l.BcryptCost > 31 {
		p.add("BCRYPT_COST must be between 4 and 31")
	}
}

func (m MpesaConfig) check(p *problems) {
	p.required("MPESA_BASE_URL", m.BaseURL)
	p.positive("MPESA_TIMEOUT", m.Timeout > 0)
	p.positive("MPESA_BREAKER_MAX_FAILURES", m.BreakerMaxFailures > 0)
}
