package transport

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-aws/sns"
	"github.com/ThreeDotsLabs/watermill-aws/sqs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	amazonsns "github.com/aws/aws-sdk-go-v2/service/sns"
	amazonsqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	smithyendpoints "github.com/aws/smithy-go/endpoints"

	"github.com/drblury/scriptflow/internal/runtime/config"
)

// Seams replaced in tests.
var (
	AWSDefaultConfigLoader  = awsconfig.LoadDefaultConfig
	SNSTopicResolverFactory = sns.NewGenerateArnTopicResolver
	SNSPublisherFactory     = func(cfg sns.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
		return sns.NewPublisher(cfg, logger)
	}
	SNSSubscriberFactory = func(cfg sns.SubscriberConfig, sqsCfg sqs.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
		return sns.NewSubscriber(cfg, sqsCfg, logger)
	}
)

const (
	localstackAccountID = "000000000000"
	awsAccountIDLength  = 12

	// recordQueueSuffix names the SQS queue subscribed to a record topic:
	// "{topic}-scriptflow".
	recordQueueSuffix = "scriptflow"
)

// snsTarget is the account, region and optional endpoint override that
// record topic ARNs are generated against.
type snsTarget struct {
	account  string
	region   string
	endpoint *url.URL
}

func (t snsTarget) fields() watermill.LogFields {
	fields := watermill.LogFields{"account_id": t.account, "region": t.region}
	if t.endpoint != nil {
		fields["endpoint"] = t.endpoint.String()
	}
	return fields
}

// awsTransport publishes records to SNS topics and consumes them through one
// SQS queue per topic.
func awsTransport(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error) {
	awsCfg, err := loadAWSConfig(ctx, conf, logger)
	if err != nil {
		return Transport{}, err
	}
	target, err := resolveSNSTarget(conf, awsCfg.Region, logger)
	if err != nil {
		return Transport{}, err
	}
	logger.Info("Resolved SNS target for record topics", target.fields())

	publisher, err := newSNSPublisher(target, awsCfg, logger)
	if err != nil {
		return Transport{}, err
	}
	subscriber, err := newSNSSubscriber(target, awsCfg, logger)
	if err != nil {
		_ = publisher.Close()
		return Transport{}, err
	}
	return Transport{Publisher: publisher, Subscriber: subscriber}, nil
}

// loadAWSConfig loads the default AWS chain and then pins region, static
// credentials and base endpoint from conf. The pins are reapplied after
// loading since the loader is not guaranteed to honour its options.
func loadAWSConfig(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (aws.Config, error) {
	if conf == nil {
		conf = &config.Config{}
	}

	var opts []func(*awsconfig.LoadOptions) error
	if conf.AWSRegion != "" {
		opts = append(opts, awsconfig.WithRegion(conf.AWSRegion))
	}
	hasStaticKeys := conf.AWSAccessKeyID != "" && conf.AWSSecretAccessKey != ""
	if hasStaticKeys {
		opts = append(opts, awsconfig.WithCredentialsProvider(staticCredentials(conf.AWSAccessKeyID, conf.AWSSecretAccessKey)))
	}

	awsCfg, err := AWSDefaultConfigLoader(ctx, opts...)
	if err != nil {
		logger.Error("Could not load AWS config for record transport", err, watermill.LogFields{"region": conf.AWSRegion})
		return aws.Config{}, err
	}
	if conf.AWSRegion != "" {
		awsCfg.Region = conf.AWSRegion
	}
	if conf.AWSEndpoint != "" {
		awsCfg.BaseEndpoint = aws.String(conf.AWSEndpoint)
	}
	logger.Debug("Loaded AWS config", watermill.LogFields{
		"region":        awsCfg.Region,
		"static_keys":   hasStaticKeys,
		"base_endpoint": conf.AWSEndpoint,
	})
	return awsCfg, nil
}

// resolveSNSTarget settles the account used in generated topic ARNs. With an
// endpoint override (LocalStack) a missing or malformed account falls back to
// the LocalStack default.
func resolveSNSTarget(conf *config.Config, loadedRegion string, logger watermill.LoggerAdapter) (snsTarget, error) {
	target := snsTarget{region: loadedRegion}
	if conf == nil {
		return target, nil
	}
	if conf.AWSRegion != "" {
		target.region = conf.AWSRegion
	}
	target.account = strings.Trim(conf.AWSAccountID, "\"' ")

	if conf.AWSEndpoint == "" {
		return target, nil
	}
	endpoint, err := url.Parse(conf.AWSEndpoint)
	if err != nil {
		return snsTarget{}, fmt.Errorf("invalid AWS endpoint %q: %w", conf.AWSEndpoint, err)
	}
	target.endpoint = endpoint

	if len(target.account) != awsAccountIDLength {
		logger.Info("Using LocalStack account for record topics", watermill.LogFields{"configured_account_id": target.account})
		target.account = localstackAccountID
	}
	return target, nil
}

func newSNSPublisher(target snsTarget, awsCfg aws.Config, logger watermill.LoggerAdapter) (message.Publisher, error) {
	resolver, err := SNSTopicResolverFactory(target.account, target.region)
	if err != nil {
		logger.Error("Could not build SNS topic resolver for publisher", err, target.fields())
		return nil, err
	}
	pubCfg := sns.PublisherConfig{
		TopicResolver: resolver,
		AWSConfig:     awsCfg,
		Marshaler:     sns.DefaultMarshalerUnmarshaler{},
	}
	if target.endpoint != nil {
		base := target.endpoint.String()
		pubCfg.OptFns = append(pubCfg.OptFns, func(o *amazonsns.Options) {
			o.BaseEndpoint = aws.String(base)
		})
	}
	return SNSPublisherFactory(pubCfg, logger)
}

func newSNSSubscriber(target snsTarget, awsCfg aws.Config, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	resolver, err := SNSTopicResolverFactory(target.account, target.region)
	if err != nil {
		logger.Error("Could not build SNS topic resolver for subscriber", err, target.fields())
		return nil, err
	}
	snsOpts, sqsOpts := endpointResolvers(target.endpoint)

	return SNSSubscriberFactory(
		sns.SubscriberConfig{
			AWSConfig:            aws.Config{Credentials: aws.AnonymousCredentials{}},
			OptFns:               snsOpts,
			TopicResolver:        resolver,
			GenerateSqsQueueName: recordQueueName(recordQueueSuffix),
		},
		sqs.SubscriberConfig{
			AWSConfig: awsCfg,
			OptFns:    sqsOpts,
		},
		logger,
	)
}

// endpointResolvers points both SNS and SQS clients at endpoint. A nil
// endpoint keeps the SDK defaults.
func endpointResolvers(endpoint *url.URL) ([]func(*amazonsns.Options), []func(*amazonsqs.Options)) {
	if endpoint == nil {
		return nil, nil
	}
	override := smithyendpoints.Endpoint{URI: *endpoint}
	return []func(*amazonsns.Options){
			amazonsns.WithEndpointResolverV2(sns.OverrideEndpointResolver{Endpoint: override}),
		}, []func(*amazonsqs.Options){
			amazonsqs.WithEndpointResolverV2(sqs.OverrideEndpointResolver{Endpoint: override}),
		}
}

func recordQueueName(suffix string) func(context.Context, sns.TopicArn) (string, error) {
	return func(_ context.Context, arn sns.TopicArn) (string, error) {
		topic, err := sns.ExtractTopicNameFromTopicArn(arn)
		if err != nil {
			return "", err
		}
		return string(topic) + "-" + suffix, nil
	}
}

func staticCredentials(accessKeyID, secretAccessKey string) aws.CredentialsProvider {
	creds := aws.Credentials{AccessKeyID: accessKeyID, SecretAccessKey: secretAccessKey, Source: "scriptflow-config"}
	return aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		return creds, nil
	})
}
