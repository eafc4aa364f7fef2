package config

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	conf, err := LoadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if conf.Server.Port != "8080" || conf.Sandbox.Backend != "docker" {
		t.Fatalf("unexpected defaults %+v", conf)
	}
	if conf.Executor.DefaultCPUTime != 2*time.Second || conf.Executor.AggregateTimeout != 2*time.Minute {
		t.Fatalf("unexpected executor defaults %+v", conf.Executor)
	}
	if conf.Redis.Addr != "" || len(conf.Kafka.Brokers) != 0 {
		t.Fatal("optional backends must be disabled by default")
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "9090")
	t.Setenv("SANDBOX_BACKEND", "process")
	t.Setenv("EVAL_CASE_WORKERS", "4")
	t.Setenv("EXEC_AGGREGATE_TIMEOUT", "45s")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	conf, err := LoadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if conf.Server.Port != "9090" || conf.Sandbox.Backend != "process" || conf.Executor.CaseWorkers != 4 {
		t.Fatalf("env not applied: %+v", conf)
	}
	if conf.Executor.AggregateTimeout != 45*time.Second {
		t.Fatalf("unexpected aggregate timeout %s", conf.Executor.AggregateTimeout)
	}
	if len(conf.Kafka.Brokers) != 2 || conf.Kafka.Brokers[1] != "k2:9092" {
		t.Fatalf("unexpected brokers %v", conf.Kafka.Brokers)
	}
}

func TestLoadConfigRejectsUnknownBackend(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SANDBOX_BACKEND", "firecracker")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected validation error")
	}
}
