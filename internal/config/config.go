package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Sandbox  SandboxConfig
	Executor ExecutorConfig
	Queue    QueueConfig
	Limiter  LimiterConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port         string   `env:"PORT" env-default:"8080"`
	ReadTimeout  int      `env:"SERVER_READ_TIMEOUT" env-default:"15"`   // seconds
	WriteTimeout int      `env:"SERVER_WRITE_TIMEOUT" env-default:"180"` // seconds
	IdleTimeout  int      `env:"SERVER_IDLE_TIMEOUT" env-default:"60"`   // seconds
	MaxBodyBytes int64    `env:"SERVER_MAX_BODY_BYTES" env-default:"4194304"`
	CORSOrigins  []string `env:"CORS_ALLOWED_ORIGINS" env-default:"*" env-separator:","`
}

type SandboxConfig struct {
	Backend        string  `env:"SANDBOX_BACKEND" env-default:"docker"` // docker or process
	MaxConcurrent  int     `env:"SANDBOX_MAX_CONCURRENT" env-default:"8"`
	PullImages     bool    `env:"SANDBOX_PULL_IMAGES" env-default:"true"`
	DockerUser     string  `env:"SANDBOX_DOCKER_USER" env-default:"nobody"`
	DockerCPUs     float64 `env:"SANDBOX_DOCKER_CPUS" env-default:"1"`
	WorkDirSize    string  `env:"SANDBOX_WORKDIR_SIZE" env-default:"256m"`
	ProcessBaseDir string  `env:"SANDBOX_PROCESS_DIR"`
	ProcessPath    string  `env:"SANDBOX_PROCESS_PATH"`
	ProcessCgroup  bool    `env:"SANDBOX_PROCESS_CGROUP" env-default:"true"`
}

type ExecutorConfig struct {
	AggregateTimeout time.Duration `env:"EXEC_AGGREGATE_TIMEOUT" env-default:"120s"`
	CaseWorkers      int           `env:"EVAL_CASE_WORKERS" env-default:"1"`
	DefaultCPUTime   time.Duration `env:"EXEC_DEFAULT_CPU_TIME" env-default:"2s"`
	DefaultWallTime  time.Duration `env:"EXEC_DEFAULT_WALL_TIME" env-default:"5s"`
	DefaultMemoryMB  int64         `env:"EXEC_DEFAULT_MEMORY_MB" env-default:"256"`
	OutputBytes      int           `env:"EXEC_OUTPUT_LIMIT_BYTES" env-default:"65536"`
	MaxCPUTime       time.Duration `env:"EXEC_MAX_CPU_TIME" env-default:"10s"`
	MaxWallTime      time.Duration `env:"EXEC_MAX_WALL_TIME" env-default:"20s"`
	MaxMemoryMB      int64         `env:"EXEC_MAX_MEMORY_MB" env-default:"1024"`
}

type QueueConfig struct {
	Capacity    int           `env:"QUEUE_CAPACITY" env-default:"100"`
	Workers     int           `env:"QUEUE_WORKERS" env-default:"5"`
	WaitTimeout time.Duration `env:"QUEUE_WAIT_TIMEOUT" env-default:"150s"`
}

type LimiterConfig struct {
	GlobalRPS       float64       `env:"RATE_GLOBAL_RPS" env-default:"100"`
	PerClientRPS    float64       `env:"RATE_CLIENT_RPS" env-default:"10"`
	PerClientBurst  int           `env:"RATE_CLIENT_BURST" env-default:"20"`
	MaxConcurrent   int           `env:"RATE_MAX_CONCURRENT" env-default:"50"`
	CleanupInterval time.Duration `env:"RATE_CLEANUP_INTERVAL" env-default:"5m"`
	ClientIdle      time.Duration `env:"RATE_CLIENT_IDLE" env-default:"10m"`
}

// RedisConfig selects the Redis job store when Addr is set; jobs are kept
// in memory otherwise.
type RedisConfig struct {
	Addr     string        `env:"REDIS_ADDR"`
	Password string        `env:"REDIS_PASSWORD"`
	DB       int           `env:"REDIS_DB" env-default:"0"`
	JobTTL   time.Duration `env:"JOB_TTL" env-default:"24h"`
}

// KafkaConfig enables report events when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string `env:"KAFKA_BROKERS" env-separator:","`
	Topic   string   `env:"KAFKA_REPORTS_TOPIC" env-default:"coderunner.reports"`
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL" env-default:"info"`
	Format string `env:"LOG_FORMAT" env-default:"console"` // console or json
}

func LoadConfig() (*Config, error) {
	// a missing .env file is fine, the environment may be set already
	_ = godotenv.Load()

	conf := &Config{}
	if err := cleanenv.ReadEnv(conf); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func (c *Config) Validate() error {
	switch c.Sandbox.Backend {
	case "docker", "process":
	default:
		return fmt.Errorf("invalid SANDBOX_BACKEND %q: want docker or process", c.Sandbox.Backend)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("invalid LOG_FORMAT %q: want console or json", c.Log.Format)
	}
	if c.Sandbox.MaxConcurrent < 1 {
		return fmt.Errorf("SANDBOX_MAX_CONCURRENT must be at least 1")
	}
	if c.Queue.Workers < 1 || c.Queue.Capacity < 1 {
		return fmt.Errorf("QUEUE_WORKERS and QUEUE_CAPACITY must be at least 1")
	}
	if c.Executor.DefaultMemoryMB > c.Executor.MaxMemoryMB {
		return fmt.Errorf("EXEC_DEFAULT_MEMORY_MB exceeds EXEC_MAX_MEMORY_MB")
	}
	return nil
}
