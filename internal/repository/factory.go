package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"wpsnapshots/internal/config"
	"wpsnapshots/internal/metastore"
	"wpsnapshots/internal/objectstore"
	"wpsnapshots/internal/snapshots"
)

// DefaultTimeout applies when a repository sets no timeout_seconds.
const DefaultTimeout = 300 * time.Second

// IndexFile is the SQLite index of a filesystem repository, under its root.
const IndexFile = "index.db"

// Opener builds the stores of a repository.
type Opener func(ctx context.Context, rc config.RepositoryConfig) (snapshots.MetaStore, snapshots.ObjectStore, error)

// OpenStores builds the stores for the backend rc names.
func OpenStores(ctx context.Context, rc config.RepositoryConfig) (snapshots.MetaStore, snapshots.ObjectStore, error) {
	switch rc.Backend {
	case "", config.BackendAWS:
		return openAWS(ctx, rc)
	case config.BackendFilesystem:
		if rc.Root == "" {
			return nil, nil, fmt.Errorf("filesystem repository %s requires root to be set", rc.Repository)
		}
		if err := os.MkdirAll(rc.Root, 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create repository root: %w", err)
		}
		db, err := metastore.NewSQLiteStore(filepath.Join(rc.Root, IndexFile), nil)
		if err != nil {
			return nil, nil, err
		}
		return db, objectstore.NewFileSystemStore(rc.Root), nil
	case config.BackendMemory:
		db, err := metastore.NewSQLiteStore(":memory:", nil)
		if err != nil {
			return nil, nil, err
		}
		return db, objectstore.NewMemoryStore(), nil
	default:
		return nil, nil, fmt.Errorf("unknown repository backend: %s", rc.Backend)
	}
}

// Timeout returns the network timeout of rc.
func Timeout(rc config.RepositoryConfig) time.Duration {
	if rc.TimeoutSeconds > 0 {
		return time.Duration(rc.TimeoutSeconds) * time.Second
	}
	return DefaultTimeout
}

// LoadAWSConfig resolves the SDK configuration of rc: static keys when
// set, otherwise the default credential chain.
func LoadAWSConfig(ctx context.Context, rc config.RepositoryConfig) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(rc.Region),
		awsconfig.WithHTTPClient(awshttp.NewBuildableClient().WithTimeout(Timeout(rc))),
	}
	if rc.AccessKeyID != "" && rc.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(rc.AccessKeyID, rc.SecretAccessKey, ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cfg, nil
}

func openAWS(ctx context.Context, rc config.RepositoryConfig) (snapshots.MetaStore, snapshots.ObjectStore, error) {
	cfg, err := LoadAWSConfig(ctx, rc)
	if err != nil {
		return nil, nil, err
	}

	s3Client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if rc.Endpoint != "" {
			o.BaseEndpoint = aws.String(rc.Endpoint)
			o.UsePathStyle = true
		}
	})
	dynamoClient := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if rc.Endpoint != "" {
			o.BaseEndpoint = aws.String(rc.Endpoint)
		}
	})

	return metastore.NewDynamoStore(dynamoClient, rc.Repository, nil),
		objectstore.NewS3Store(s3Client, rc.Repository, rc.Region), nil
}
