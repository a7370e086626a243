package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LookupFunc resolves an environment variable. os.LookupEnv in production.
type LookupFunc func(key string) (string, bool)

// Environment variable names. The ALFRESCO_* names follow the property keys
// of the original deployment.
const (
	EnvPubSub             = "EVENTGATEWAY_PUBSUB"
	EnvBrokerURL          = "ALFRESCO_EVENTS_BROKER_URL"
	EnvGatewayURL         = "ALFRESCO_EVENTS_GATEWAY_URL"
	EnvTopic              = "ALFRESCO_EVENTS_TOPIC"
	EnvClientID           = "ALFRESCO_EVENTS_CLIENT_ID"
	EnvSubscription       = "ALFRESCO_EVENTS_SUBSCRIPTION"
	EnvParentNodeID       = "ALFRESCO_PREDICATE_PARENT_ID"
	EnvContentType        = "ALFRESCO_PREDICATE_CONTENT_TYPE"
	EnvFolderType         = "ALFRESCO_PREDICATE_FOLDER_TYPE"
	EnvForwardSink        = "EVENTGATEWAY_FORWARD_SINK"
	EnvFunctionName       = "ALFRESCO_AWS_LAMBDA_FUNCTION_NAME"
	EnvFunctionURL        = "EVENTGATEWAY_FUNCTION_URL"
	EnvForwardConcurrency = "EVENTGATEWAY_FORWARD_CONCURRENCY"
	EnvAWSRegion          = "ALFRESCO_AWS_LAMBDA_REGION"
	EnvAWSAccountID       = "AWS_ACCOUNT_ID"
	EnvAWSAccessKeyID     = "AWS_ACCESS_KEY_ID"
	EnvAWSSecretAccessKey = "AWS_SECRET_ACCESS_KEY"
	EnvAWSEndpoint        = "AWS_ENDPOINT_URL"
	EnvResolveBackoff     = "EVENTGATEWAY_RESOLVE_BACKOFF"
	EnvResolveMaxAttempts = "EVENTGATEWAY_RESOLVE_MAX_ATTEMPTS"
	EnvResolveTimeout     = "EVENTGATEWAY_RESOLVE_TIMEOUT"
	EnvMetricsEnabled     = "EVENTGATEWAY_METRICS_ENABLED"
	EnvMetricsPort        = "EVENTGATEWAY_METRICS_PORT"
	EnvLogLevel           = "EVENTGATEWAY_LOG_LEVEL"
)

// Load builds the configuration from defaults, then the optional YAML file at
// path, then environment variables looked up through lookup. The result is
// not validated.
func Load(path string, lookup LookupFunc) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if lookup == nil {
		lookup = os.LookupEnv
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config, lookup LookupFunc) error {
	strs := map[string]*string{
		EnvPubSub:             &cfg.PubSubSystem,
		EnvBrokerURL:          &cfg.BrokerURL,
		EnvGatewayURL:         &cfg.GatewayURL,
		EnvTopic:              &cfg.TopicName,
		EnvClientID:           &cfg.ClientID,
		EnvSubscription:       &cfg.SubscriptionName,
		EnvParentNodeID:       &cfg.ParentNodeID,
		EnvContentType:        &cfg.ContentNodeType,
		EnvFolderType:         &cfg.FolderNodeType,
		EnvForwardSink:        &cfg.ForwardSink,
		EnvFunctionName:       &cfg.FunctionName,
		EnvFunctionURL:        &cfg.FunctionURL,
		EnvAWSRegion:          &cfg.AWSRegion,
		EnvAWSAccountID:       &cfg.AWSAccountID,
		EnvAWSAccessKeyID:     &cfg.AWSAccessKeyID,
		EnvAWSSecretAccessKey: &cfg.AWSSecretAccessKey,
		EnvAWSEndpoint:        &cfg.AWSEndpoint,
		EnvLogLevel:           &cfg.LogLevel,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		EnvForwardConcurrency: &cfg.ForwardConcurrency,
		EnvResolveMaxAttempts: &cfg.ResolveMaxAttempts,
		EnvMetricsPort:        &cfg.MetricsPort,
	}
	for key, dst := range ints {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}

	durations := map[string]*time.Duration{
		EnvResolveBackoff: &cfg.ResolveBackoff,
		EnvResolveTimeout: &cfg.ResolveTimeout,
	}
	for key, dst := range durations {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}

	if v, ok := lookup(EnvMetricsEnabled); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMetricsEnabled, err)
		}
		cfg.MetricsEnabled = b
	}
	return nil
}
