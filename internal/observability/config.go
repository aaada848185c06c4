package observability

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/clinicbilling/internal/config"
	"github.com/smallbiznis/clinicbilling/internal/observability/logger"
	gormlogger "gorm.io/gorm/logger"
)

// envPrefix marks service-specific overrides. Unprefixed names are the
// fallback.
const envPrefix = "CLINICBILLING_"

const (
	defaultServiceName   = "clinicbilling"
	defaultSlowQuery     = 200 * time.Millisecond
	productionSampling   = 0.1
	developmentSampling  = 1.0
	environmentProd      = "production"
	environmentDev       = "development"
	environmentTest      = "test"
	defaultOTLPProtocol  = "grpc"
	protocolHTTPProtobuf = "http/protobuf"
)

// Config holds observability settings for the billing service.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string
	// SlowQueryThreshold marks statements that get logged at warn level.
	SlowQueryThreshold time.Duration

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

// LoadConfig derives observability settings from the application config.
// Production defaults to JSON logs, tracing on and 10% sampling; every other
// environment gets console logs and full sampling with tracing off.
func LoadConfig(cfg config.Config) Config {
	environment := normalizeEnvironment(lookup(cfg.Environment, "DEPLOYMENT_ENV", "ENVIRONMENT"))
	production := environment == environmentProd

	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = defaultServiceName
	}

	logFormat := "console"
	sampling := developmentSampling
	if production {
		logFormat = "json"
		sampling = productionSampling
	}

	return Config{
		ServiceName:          lookup(serviceName, "SERVICE_NAME", "OTEL_SERVICE_NAME"),
		Environment:          environment,
		Version:              lookup(cfg.AppVersion, "SERVICE_VERSION"),
		LogLevel:             strings.ToLower(lookup("info", "LOG_LEVEL")),
		LogFormat:            strings.ToLower(lookup(logFormat, "LOG_FORMAT")),
		SlowQueryThreshold:   lookupDuration(defaultSlowQuery, "DB_SLOW_QUERY_THRESHOLD"),
		OtelEnabled:          lookupBool(production, "OTEL_ENABLED"),
		OtelExporterEndpoint: lookup(cfg.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT"),
		OtelExporterProtocol: normalizeProtocol(lookup(defaultOTLPProtocol, "OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", "OTEL_EXPORTER_OTLP_PROTOCOL")),
		OtelSamplingRatio:    clampRatio(lookupFloat(sampling, "OTEL_SAMPLING_RATIO")),
	}
}

// Debug enables verbose logging and development-mode gin.
func (c Config) Debug() bool {
	if strings.EqualFold(strings.TrimSpace(c.LogLevel), "debug") {
		return true
	}
	switch normalizeEnvironment(c.Environment) {
	case environmentDev, environmentTest:
		return true
	default:
		return false
	}
}

// GormLogger maps the settings onto the query logger. Debug mode logs every
// statement; otherwise only slow queries and errors.
func (c Config) GormLogger() logger.GormLoggerConfig {
	cfg := logger.DefaultGormLoggerConfig()
	if c.SlowQueryThreshold > 0 {
		cfg.SlowThreshold = c.SlowQueryThreshold
	}
	// Repositories report absent rows as nil results.
	cfg.IgnoreRecordNotFound = true
	if c.Debug() {
		cfg.Level = gormlogger.Info
	}
	return cfg
}

func normalizeEnvironment(env string) string {
	env = strings.ToLower(strings.TrimSpace(env))
	switch env {
	case "prod", "production", "live":
		return environmentProd
	case "dev", "development", "local", "":
		return environmentDev
	case "test", "testing", "ci":
		return environmentTest
	default:
		return env
	}
}

func normalizeProtocol(protocol string) string {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf", "https":
		return protocolHTTPProtobuf
	case "grpc", "":
		return defaultOTLPProtocol
	default:
		return protocol
	}
}

func clampRatio(ratio float64) float64 {
	if ratio < 0 {
		return 0
	}
	if ratio > 1 {
		return 1
	}
	return ratio
}

// lookup returns the first non-empty value among the prefixed and plain
// forms of keys, or def.
func lookup(def string, keys ...string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(os.Getenv(envPrefix + key)); value != "" {
			return value
		}
	}
	for _, key := range keys {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			return value
		}
	}
	return strings.TrimSpace(def)
}

func lookupBool(def bool, keys ...string) bool {
	switch strings.ToLower(lookup("", keys...)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func lookupFloat(def float64, keys ...string) float64 {
	parsed, err := strconv.ParseFloat(lookup("", keys...), 64)
	if err != nil {
		return def
	}
	return parsed
}

func lookupDuration(def time.Duration, keys ...string) time.Duration {
	parsed, err := time.ParseDuration(lookup("", keys...))
	if err != nil || parsed < 0 {
		return def
	}
	return parsed
}
