package transport

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-aws/sns"
	"github.com/ThreeDotsLabs/watermill-aws/sqs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	amazonsns "github.com/aws/aws-sdk-go-v2/service/sns"
	amazonsqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/scriptflow/internal/runtime/config"
)

func stubAWSLoader(t *testing.T, cfg aws.Config, err error) {
	t.Helper()
	orig := AWSDefaultConfigLoader
	t.Cleanup(func() { AWSDefaultConfigLoader = orig })
	AWSDefaultConfigLoader = func(context.Context, ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return cfg, err
	}
}

func stubSNSFactories(t *testing.T, pub message.Publisher, pubErr error, sub message.Subscriber, subErr error) *sns.SubscriberConfig {
	t.Helper()
	origPub, origSub := SNSPublisherFactory, SNSSubscriberFactory
	t.Cleanup(func() {
		SNSPublisherFactory = origPub
		SNSSubscriberFactory = origSub
	})

	captured := &sns.SubscriberConfig{}
	SNSPublisherFactory = func(cfg sns.PublisherConfig, _ watermill.LoggerAdapter) (message.Publisher, error) {
		for _, opt := range cfg.OptFns {
			opt(&amazonsns.Options{})
		}
		return pub, pubErr
	}
	SNSSubscriberFactory = func(cfg sns.SubscriberConfig, sqsCfg sqs.SubscriberConfig, _ watermill.LoggerAdapter) (message.Subscriber, error) {
		*captured = cfg
		for _, opt := range sqsCfg.OptFns {
			opt(&amazonsqs.Options{})
		}
		return sub, subErr
	}
	return captured
}

func TestLoadAWSConfigPinsRegionAndEndpoint(t *testing.T) {
	stubAWSLoader(t, aws.Config{Region: "us-east-1"}, nil)

	conf := &config.Config{AWSRegion: "ap-southeast-2", AWSEndpoint: "http://localhost:4566"}
	cfg, err := loadAWSConfig(context.Background(), conf, watermill.NopLogger{})
	require.NoError(t, err)
	assert.Equal(t, "ap-southeast-2", cfg.Region)
	require.NotNil(t, cfg.BaseEndpoint)
	assert.Equal(t, "http://localhost:4566", *cfg.BaseEndpoint)
}

func TestLoadAWSConfigLoaderError(t *testing.T) {
	stubAWSLoader(t, aws.Config{}, errors.New("boom"))

	_, err := loadAWSConfig(context.Background(), &config.Config{AWSRegion: "us-east-1"}, watermill.NopLogger{})
	assert.EqualError(t, err, "boom")
}

func TestLoadAWSConfigWithoutConfig(t *testing.T) {
	stubAWSLoader(t, aws.Config{Region: "eu-west-1"}, nil)

	cfg, err := loadAWSConfig(context.Background(), nil, watermill.NopLogger{})
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", cfg.Region)
	assert.Nil(t, cfg.BaseEndpoint)
}

func TestAwsTransportSubscribesRecordQueues(t *testing.T) {
	stubAWSLoader(t, aws.Config{Region: "us-east-1"}, nil)
	pub, sub := &testPublisher{}, &testSubscriber{}
	captured := stubSNSFactories(t, pub, nil, sub, nil)

	tr, err := awsTransport(context.Background(), &config.Config{AWSAccountID: "123456789012"}, watermill.NopLogger{})
	require.NoError(t, err)
	assert.Same(t, pub, tr.Publisher)
	assert.Same(t, sub, tr.Subscriber)

	require.NotNil(t, captured.GenerateSqsQueueName)
	name, err := captured.GenerateSqsQueueName(context.Background(), "arn:aws:sns:us-east-1:123456789012:records")
	require.NoError(t, err)
	assert.Equal(t, "records-scriptflow", name)

	_, err = captured.GenerateSqsQueueName(context.Background(), "invalid-arn")
	assert.Error(t, err)
}

func TestAwsTransportClosesPublisherWhenSubscriberFails(t *testing.T) {
	stubAWSLoader(t, aws.Config{Region: "us-east-1"}, nil)
	pub := &testPublisher{}
	stubSNSFactories(t, pub, nil, nil, errors.New("sub fail"))

	_, err := awsTransport(context.Background(), &config.Config{AWSAccountID: "123456789012"}, watermill.NopLogger{})
	require.Error(t, err)
	assert.True(t, pub.closed)
}

func TestAwsTransportFailures(t *testing.T) {
	t.Run("config loader", func(t *testing.T) {
		stubAWSLoader(t, aws.Config{}, errors.New("config fail"))
		_, err := awsTransport(context.Background(), &config.Config{}, watermill.NopLogger{})
		assert.Error(t, err)
	})
	t.Run("publisher", func(t *testing.T) {
		stubAWSLoader(t, aws.Config{Region: "us-east-1"}, nil)
		stubSNSFactories(t, nil, errors.New("pub fail"), &testSubscriber{}, nil)
		_, err := awsTransport(context.Background(), &config.Config{AWSAccountID: "123456789012"}, watermill.NopLogger{})
		assert.Error(t, err)
	})
	t.Run("invalid endpoint", func(t *testing.T) {
		stubAWSLoader(t, aws.Config{Region: "us-east-1"}, nil)
		_, err := awsTransport(context.Background(), &config.Config{AWSEndpoint: ":invalid-url"}, watermill.NopLogger{})
		assert.ErrorContains(t, err, "invalid AWS endpoint")
	})
	t.Run("topic resolver", func(t *testing.T) {
		orig := SNSTopicResolverFactory
		t.Cleanup(func() { SNSTopicResolverFactory = orig })
		SNSTopicResolverFactory = func(string, string) (*sns.GenerateArnTopicResolver, error) {
			return nil, errors.New("resolver fail")
		}
		target := snsTarget{account: "123456789012", region: "us-east-1"}
		_, err := newSNSSubscriber(target, aws.Config{}, watermill.NopLogger{})
		assert.Error(t, err)
		_, err = newSNSPublisher(target, aws.Config{}, watermill.NopLogger{})
		assert.Error(t, err)
	})
}

func TestResolveSNSTarget(t *testing.T) {
	tests := []struct {
		name         string
		conf         *config.Config
		wantAccount  string
		wantRegion   string
		wantEndpoint bool
	}{
		{name: "nil config", conf: nil, wantRegion: "loaded"},
		{name: "loaded region", conf: &config.Config{}, wantRegion: "loaded"},
		{name: "explicit region", conf: &config.Config{AWSRegion: "explicit"}, wantRegion: "explicit"},
		{name: "trimmed account", conf: &config.Config{AWSAccountID: " '123456789012' "}, wantAccount: "123456789012", wantRegion: "loaded"},
		{name: "short account without endpoint", conf: &config.Config{AWSAccountID: "bad"}, wantAccount: "bad", wantRegion: "loaded"},
		{name: "localstack default", conf: &config.Config{AWSEndpoint: "http://localhost:4566"}, wantAccount: localstackAccountID, wantRegion: "loaded", wantEndpoint: true},
		{name: "localstack invalid id", conf: &config.Config{AWSAccountID: "bad", AWSEndpoint: "http://localhost:4566"}, wantAccount: localstackAccountID, wantRegion: "loaded", wantEndpoint: true},
		{name: "endpoint keeps valid id", conf: &config.Config{AWSAccountID: "123456789012", AWSEndpoint: "http://localhost:4566"}, wantAccount: "123456789012", wantRegion: "loaded", wantEndpoint: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target, err := resolveSNSTarget(tt.conf, "loaded", watermill.NopLogger{})
			require.NoError(t, err)
			assert.Equal(t, tt.wantAccount, target.account)
			assert.Equal(t, tt.wantRegion, target.region)
			assert.Equal(t, tt.wantEndpoint, target.endpoint != nil)
		})
	}
}

func TestEndpointResolvers(t *testing.T) {
	snsOpts, sqsOpts := endpointResolvers(nil)
	assert.Empty(t, snsOpts)
	assert.Empty(t, sqsOpts)

	endpoint, err := url.Parse("http://localhost:4566")
	require.NoError(t, err)
	snsOpts, sqsOpts = endpointResolvers(endpoint)
	assert.Len(t, snsOpts, 1)
	assert.Len(t, sqsOpts, 1)
}

func TestSNSTargetFields(t *testing.T) {
	endpoint, err := url.Parse("http://localhost:4566")
	require.NoError(t, err)

	fields := snsTarget{account: "a", region: "r", endpoint: endpoint}.fields()
	assert.Equal(t, "http://localhost:4566", fields["endpoint"])
	assert.NotContains(t, snsTarget{}.fields(), "endpoint")
}

func TestStaticCredentials(t *testing.T) {
	creds, err := staticCredentials("key", "secret").Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "key", creds.AccessKeyID)
	assert.Equal(t, "secret", creds.SecretAccessKey)
	assert.Equal(t, "scriptflow-config", creds.Source)
}
