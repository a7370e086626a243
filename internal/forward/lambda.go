package forward

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsmiddleware "github.com/aws/aws-sdk-go-v2/aws/middleware"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"github.com/drblury/eventgateway/internal/event"
	"github.com/drblury/eventgateway/internal/runtime/config"
	"github.com/drblury/eventgateway/internal/runtime/logging"
)

// LambdaInvoker is the subset of the Lambda client used for forwarding.
type LambdaInvoker interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// ConfigLoader allows overriding the AWS config loader for testing.
var ConfigLoader = awsconfig.LoadDefaultConfig

// LambdaClientFactory allows overriding the Lambda client creation for testing.
var LambdaClientFactory = func(cfg aws.Config, optFns ...func(*lambda.Options)) LambdaInvoker {
	return lambda.NewFromConfig(cfg, optFns...)
}

// NewLambdaClient loads the AWS configuration for the function region and
// returns a client honouring a custom endpoint such as LocalStack.
func NewLambdaClient(ctx context.Context, cfg *config.Config, logger logging.ServiceLogger) (LambdaInvoker, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithAppID("event-gateway/" + Version),
	}
	if cfg.AWSRegion != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.AWSRegion))
	}
	if cfg.AWSAccessKeyID != "" && cfg.AWSSecretAccessKey != "" {
		logger.Info("Using static AWS credentials from config", nil)
		opts = append(opts, awsconfig.WithCredentialsProvider(aws.CredentialsProviderFunc(
			func(context.Context) (aws.Credentials, error) {
				return aws.Credentials{
					AccessKeyID:     cfg.AWSAccessKeyID,
					SecretAccessKey: cfg.AWSSecretAccessKey,
				}, nil
			},
		)))
	}

	awsCfg, err := ConfigLoader(ctx, opts...)
	if err != nil {
		logger.Error("Failed to load AWS default config", err, logging.LogFields{"region": cfg.AWSRegion})
		return nil, fmt.Errorf("forward: load aws config: %w", err)
	}
	if cfg.AWSRegion != "" {
		awsCfg.Region = cfg.AWSRegion
	}

	var clientOpts []func(*lambda.Options)
	if cfg.AWSEndpoint != "" {
		endpoint := cfg.AWSEndpoint
		clientOpts = append(clientOpts, func(o *lambda.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}
	logger.Info("Created Lambda client", logging.LogFields{
		"region":          awsCfg.Region,
		"function":        cfg.FunctionName,
		"custom_endpoint": cfg.AWSEndpoint != "",
	})
	return LambdaClientFactory(awsCfg, clientOpts...), nil
}

// LambdaForwarder invokes a function asynchronously with the event payload.
type LambdaForwarder struct {
	client       LambdaInvoker
	functionName string
}

func NewLambdaForwarder(client LambdaInvoker, functionName string) *LambdaForwarder {
	return &LambdaForwarder{client: client, functionName: functionName}
}

func (f *LambdaForwarder) Forward(ctx context.Context, payload []byte, ev event.Event) (Ack, error) {
	target := "lambda:" + f.functionName
	out, err := f.client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(f.functionName),
		InvocationType: types.InvocationTypeEvent,
		Payload:        payload,
	})
	if err != nil {
		return Ack{}, &ForwardError{Target: target, EventID: ev.ID, Err: err}
	}

	status := int(out.StatusCode)
	if out.FunctionError != nil {
		return Ack{}, &ForwardError{Target: target, EventID: ev.ID, StatusCode: status, Err: errors.New(aws.ToString(out.FunctionError))}
	}
	if status < 200 || status > 299 {
		return Ack{}, &ForwardError{Target: target, EventID: ev.ID, StatusCode: status, Err: errors.New("unexpected invoke status")}
	}

	requestID, _ := awsmiddleware.GetRequestIDMetadata(out.ResultMetadata)
	return Ack{Target: target, StatusCode: status, RequestID: requestID}, nil
}
