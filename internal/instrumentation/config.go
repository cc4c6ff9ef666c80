package instrumentation

import (
	"fmt"
	"time"

	"github.com/teemow/openproject-mcp/internal/config"
)

// Config holds the OpenTelemetry settings. LoadConfig fills it from the
// environment variables named in the env comments.
type Config struct {
	ServiceName       string `mapstructure:"service_name" validate:"required"` // env OTEL_SERVICE_NAME
	ServiceVersion    string `mapstructure:"service_version"`
	ServiceInstanceID string `mapstructure:"service_instance_id"` // env OTEL_SERVICE_INSTANCE_ID
	K8sNamespace      string `mapstructure:"k8s_namespace"`       // env K8S_NAMESPACE, POD_NAMESPACE
	K8sPodName        string `mapstructure:"k8s_pod_name"`        // env K8S_POD_NAME, HOSTNAME

	// Enabled turns metrics and tracing on. env INSTRUMENTATION_ENABLED
	Enabled bool `mapstructure:"enabled"`

	MetricsExporter string `mapstructure:"metrics_exporter" validate:"omitempty,oneof=prometheus otlp stdout"` // env METRICS_EXPORTER
	TracingExporter string `mapstructure:"tracing_exporter" validate:"omitempty,oneof=otlp stdout none"`       // env TRACING_EXPORTER

	// OTLPEndpoint is host:port without scheme, required by either OTLP exporter.
	// env OTEL_EXPORTER_OTLP_ENDPOINT
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`

	// OTLPInsecure sends OTLP over plain HTTP. Local development only.
	// env OTEL_EXPORTER_OTLP_INSECURE
	OTLPInsecure bool `mapstructure:"otlp_insecure"`

	TraceSamplingRate float64 `mapstructure:"trace_sampling_rate" validate:"gte=0,lte=1"` // env OTEL_TRACES_SAMPLER_ARG

	// DetailedLabels adds the work package id to backend operation metrics.
	// Every task id becomes a new time series. env METRICS_DETAILED_LABELS
	DetailedLabels bool `mapstructure:"detailed_labels"`

	AuditLogging AuditLoggingConfig `mapstructure:"audit_logging"`
}

// AuditLoggingConfig holds configuration for audit logging.
type AuditLoggingConfig struct {
	Enabled bool `mapstructure:"enabled"` // env AUDIT_LOGGING_ENABLED

	// IncludeArguments adds the tool arguments to audit log entries.
	// env AUDIT_LOGGING_INCLUDE_ARGUMENTS
	IncludeArguments bool `mapstructure:"include_arguments"`
}

// DefaultConfig returns the built-in defaults, without reading the environment.
func DefaultConfig() Config {
	return Config{
		ServiceName:       DefaultServiceName,
		ServiceVersion:    "unknown",
		Enabled:           true,
		MetricsExporter:   ExporterPrometheus,
		TracingExporter:   ExporterNone,
		TraceSamplingRate: 0.1,
		AuditLogging: AuditLoggingConfig{
			Enabled: true,
		},
	}
}

// LoadConfig reads the instrumentation settings through l, so the env file
// given to the server also feeds them.
func LoadConfig(l *config.Loader) (Config, error) {
	def := DefaultConfig()
	l.Bind("service_name", def.ServiceName, "OTEL_SERVICE_NAME")
	l.Bind("service_version", def.ServiceVersion)
	l.Bind("service_instance_id", def.ServiceInstanceID, "OTEL_SERVICE_INSTANCE_ID")
	l.Bind("k8s_namespace", def.K8sNamespace, "K8S_NAMESPACE", "POD_NAMESPACE")
	l.Bind("k8s_pod_name", def.K8sPodName, "K8S_POD_NAME", "HOSTNAME")
	l.Bind("enabled", def.Enabled, "INSTRUMENTATION_ENABLED")
	l.Bind("metrics_exporter", def.MetricsExporter, "METRICS_EXPORTER")
	l.Bind("tracing_exporter", def.TracingExporter, "TRACING_EXPORTER")
	l.Bind("otlp_endpoint", def.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	l.Bind("otlp_insecure", def.OTLPInsecure, "OTEL_EXPORTER_OTLP_INSECURE")
	l.Bind("trace_sampling_rate", def.TraceSamplingRate, "OTEL_TRACES_SAMPLER_ARG")
	l.Bind("detailed_labels", def.DetailedLabels, "METRICS_DETAILED_LABELS")
	l.Bind("audit_logging.enabled", def.AuditLogging.Enabled, "AUDIT_LOGGING_ENABLED")
	l.Bind("audit_logging.include_arguments", def.AuditLogging.IncludeArguments, "AUDIT_LOGGING_INCLUDE_ARGUMENTS")

	var c Config
	if err := l.Decode(&c); err != nil {
		return Config{}, fmt.Errorf("invalid instrumentation config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks the validate tags and that an OTLP exporter has an endpoint.
func (c *Config) Validate() error {
	if err := config.ValidateStruct(c); err != nil {
		return fmt.Errorf("invalid instrumentation config: %w", err)
	}
	if c.OTLPEndpoint == "" && (c.TracingExporter == ExporterOTLP || c.MetricsExporter == ExporterOTLP) {
		return fmt.Errorf("invalid instrumentation config: OTLP endpoint is required by the otlp exporter")
	}
	return nil
}

// Constants for metric label values.
const (
	// DefaultServiceName is the OpenTelemetry service name.
	DefaultServiceName = "openproject-mcp"

	// Status values
	StatusSuccess = "success"
	StatusError   = "error"

	// ServiceOpenProject is the backend service label.
	ServiceOpenProject = "openproject"

	// Exporter types
	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"

	// Metric recording intervals
	DefaultMetricInterval = 10 * time.Second
)

// Backend operation names, used as metric labels and span name suffixes.
const (
	OperationQueryOrder = "query_order"
	OperationList       = "list"
	OperationGet        = "get"
	OperationAIReady    = "ai_ready"
)
