package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	RPCURL        string
	RPCTimeout    time.Duration
	HTTPAddr      string
	RedisAddr     string
	CacheTTL      time.Duration
	CacheDepth    uint64
	HistoryDriver string
	HistoryDSN    string
	HistoryLimit  int
	HeadPoll      time.Duration
	KafkaBrokers  []string
	KafkaTopic    string
	OtelEndpoint  string
	LogLevel      string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
}

type EnvSource interface {
	Lookup(key string) (string, bool)
}

type EnvMap map[string]string

func (e EnvMap) Lookup(key string) (string, bool) {
	value, ok := e[key]
	return value, ok
}

func FromEnviron() EnvSource {
	env := make(EnvMap)
	for _, entry := range os.Environ() {
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		env[parts[0]] = parts[1]
	}
	return env
}

func Load(source EnvSource) (Config, error) {
	if source == nil {
		return Config{}, errors.New("env source is required")
	}

	rpcURL, err := providerURL(source)
	if err != nil {
		return Config{}, err
	}

	rpcTimeout, err := parseDurationEnv(source, "RPC_TIMEOUT", 10*time.Second)
	if err != nil {
		return Config{}, err
	}
	cacheTTL, err := parseDurationEnv(source, "CACHE_TTL", time.Hour)
	if err != nil {
		return Config{}, err
	}
	cacheDepth, err := parseUintEnv(source, "CACHE_MIN_CONFIRMATIONS", 12)
	if err != nil {
		return Config{}, err
	}
	headPoll, err := parseOptionalDurationEnv(source, "HEAD_POLL_INTERVAL")
	if err != nil {
		return Config{}, err
	}
	historyLimit, err := parseUintEnv(source, "HISTORY_LIMIT", 10)
	if err != nil {
		return Config{}, err
	}
	logMaxSize, err := parseUintEnv(source, "LOG_MAX_SIZE_MB", 100)
	if err != nil {
		return Config{}, err
	}
	logMaxBackups, err := parseUintEnv(source, "LOG_MAX_BACKUPS", 3)
	if err != nil {
		return Config{}, err
	}

	httpAddr := ":8080"
	if raw, ok := source.Lookup("HTTP_ADDR"); ok && raw != "" {
		httpAddr = raw
	}

	redisAddr, _ := source.Lookup("REDIS_ADDR")
	redisAddr = strings.TrimSpace(redisAddr)

	historyDriver := "sqlite"
	if raw, ok := source.Lookup("HISTORY_DRIVER"); ok && strings.TrimSpace(raw) != "" {
		historyDriver = strings.ToLower(strings.TrimSpace(raw))
	}
	switch historyDriver {
	case "sqlite", "mysql", "none":
	default:
		return Config{}, fmt.Errorf("invalid HISTORY_DRIVER: %q", historyDriver)
	}

	historyDSN, _ := source.Lookup("HISTORY_DSN")
	historyDSN = strings.TrimSpace(historyDSN)
	if historyDSN == "" {
		switch historyDriver {
		case "sqlite":
			historyDSN = "data/explorer.db"
		case "mysql":
			historyDSN = "root:@tcp(127.0.0.1:3306)/bcexplorer?parseTime=true"
		}
	}

	kafkaBrokers := parseList(source, "KAFKA_BROKERS")
	kafkaTopic, ok := source.Lookup("KAFKA_TOPIC")
	if !ok || strings.TrimSpace(kafkaTopic) == "" {
		kafkaTopic = "bcexplorer-lookups"
	}

	otelEndpoint, _ := source.Lookup("OTEL_EXPORTER_OTLP_ENDPOINT")
	logLevel, _ := source.Lookup("LOG_LEVEL")
	logFile, _ := source.Lookup("LOG_FILE")

	return Config{
		RPCURL:        rpcURL,
		RPCTimeout:    rpcTimeout,
		HTTPAddr:      httpAddr,
		RedisAddr:     redisAddr,
		CacheTTL:      cacheTTL,
		CacheDepth:    cacheDepth,
		HistoryDriver: historyDriver,
		HistoryDSN:    historyDSN,
		HistoryLimit:  int(historyLimit),
		HeadPoll:      headPoll,
		KafkaBrokers:  kafkaBrokers,
		KafkaTopic:    kafkaTopic,
		OtelEndpoint:  strings.TrimSpace(otelEndpoint),
		LogLevel:      logLevel,
		LogFile:       strings.TrimSpace(logFile),
		LogMaxSizeMB:  int(logMaxSize),
		LogMaxBackups: int(logMaxBackups),
	}, nil
}

// providerURL prefers RPC_URL and otherwise derives a hosted endpoint from
// ALCHEMY_API_KEY and NETWORK.
func providerURL(source EnvSource) (string, error) {
	if raw, ok := source.Lookup("RPC_URL"); ok && strings.TrimSpace(raw) != "" {
		return strings.TrimSpace(raw), nil
	}
	apiKey, ok := source.Lookup("ALCHEMY_API_KEY")
	if !ok || strings.TrimSpace(apiKey) == "" {
		return "", errors.New("RPC_URL or ALCHEMY_API_KEY is required")
	}
	network := "eth-mainnet"
	if raw, ok := source.Lookup("NETWORK"); ok && strings.TrimSpace(raw) != "" {
		network = strings.ToLower(strings.TrimSpace(raw))
	}
	return fmt.Sprintf("https://%s.g.alchemy.com/v2/%s", network, strings.TrimSpace(apiKey)), nil
}

func parseUintEnv(source EnvSource, key string, defaultValue uint64) (uint64, error) {
	raw, ok := source.Lookup(key)
	if !ok || raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func parseDurationEnv(source EnvSource, key string, defaultValue time.Duration) (time.Duration, error) {
	raw, ok := source.Lookup(key)
	if !ok || raw == "" {
		return defaultValue, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return value, nil
}

// parseOptionalDurationEnv treats an unset key or "0" as disabled.
func parseOptionalDurationEnv(source EnvSource, key string) (time.Duration, error) {
	raw, ok := source.Lookup(key)
	if !ok || raw == "" || raw == "0" {
		return 0, nil
	}
	return parseDurationEnv(source, key, 0)
}

func parseList(source EnvSource, key string) []string {
	raw, ok := source.Lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	var values []string
	for _, item := range strings.Split(raw, ",") {
		value := strings.TrimSpace(item)
		if value == "" {
			continue
		}
		values = append(values, value)
	}
	return values
}
