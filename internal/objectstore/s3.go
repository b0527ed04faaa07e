package objectstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"wpsnapshots/internal/errs"
	"wpsnapshots/internal/progress"
	"wpsnapshots/internal/snapshots"
)

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	manager.UploadAPIClient
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// ObjectWaitTimeout bounds the wait for an uploaded object to be visible.
const ObjectWaitTimeout = 2 * time.Minute

// S3Store is the object store of an AWS repository.
type S3Store struct {
	client   S3API
	uploader *manager.Uploader
	bucket   string
	region   string
}

// NewS3Store returns the store of repository in region.
func NewS3Store(client S3API, repository, region string) *S3Store {
	return &S3Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   BucketName(repository),
		region:   region,
	}
}

// PutSnapshot uploads the artifacts, then waits until each is readable.
// The files archive is confirmed first.
func (s *S3Store) PutSnapshot(ctx context.Context, meta *snapshots.Meta, dir string, report snapshots.ProgressFunc) error {
	names := artifacts(meta)
	for i := len(names) - 1; i >= 0; i-- {
		if err := s.upload(ctx, meta, dir, names[i], report); err != nil {
			return err
		}
	}

	waiter := s3.NewObjectExistsWaiter(s.client)
	for _, name := range names {
		key := Key(meta.Project, meta.ID, name)
		if err := waiter.Wait(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		}, ObjectWaitTimeout); err != nil {
			return errs.FromAWS("confirm "+name, err)
		}
	}
	return nil
}

func (s *S3Store) upload(ctx context.Context, meta *snapshots.Meta, dir, name string, report snapshots.ProgressFunc) error {
	f, size, err := openArtifact(dir, name)
	if err != nil {
		return err
	}
	defer f.Close()

	body := progress.NewReader(f, size, func(done, total int64) {
		if report != nil {
			report(name, done, total)
		}
	})
	if _, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(Key(meta.Project, meta.ID, name)),
		Body:   body,
	}); err != nil {
		return errs.FromAWS("upload "+name, err)
	}
	return nil
}

func (s *S3Store) DownloadArtifact(ctx context.Context, meta *snapshots.Meta, name, dest string) error {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(Key(meta.Project, meta.ID, name)),
	})
	if err != nil {
		return errs.FromAWS("download "+name, err)
	}
	defer out.Body.Close()

	size := int64(-1)
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	if err := writeFile(dest, out.Body, size); err != nil {
		if ctx.Err() != nil {
			return errs.FromAWS("download "+name, ctx.Err())
		}
		return fmt.Errorf("downloading %s: %w", name, err)
	}
	return nil
}

// DeleteSnapshot removes the current and legacy keys in one request.
// S3 reports keys that never existed as deleted.
func (s *S3Store) DeleteSnapshot(ctx context.Context, id, project string) error {
	keys := snapshotKeys(id, project)
	objects := make([]types.ObjectIdentifier, len(keys))
	for i, k := range keys {
		objects[i] = types.ObjectIdentifier{Key: aws.String(k)}
	}
	out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(s.bucket),
		Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
	})
	if err != nil {
		return errs.FromAWS("delete", err)
	}
	if len(out.Errors) > 0 {
		failed := make([]string, len(out.Errors))
		for i, e := range out.Errors {
			failed[i] = fmt.Sprintf("%s (%s)", aws.ToString(e.Key), aws.ToString(e.Code))
		}
		return errs.New(errs.PartialFailure, "", "could not delete %s", strings.Join(failed, ", "))
	}
	return nil
}

// CreateBucket creates the bucket in the store's region.
func (s *S3Store) CreateBucket(ctx context.Context) error {
	in := &s3.CreateBucketInput{Bucket: aws.String(s.bucket)}
	if s.region != "" && s.region != "us-east-1" {
		in.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.region),
		}
	}
	if _, err := s.client.CreateBucket(ctx, in); err != nil {
		return errs.FromAWS("create bucket", err)
	}
	return nil
}

// Test lists at most one key of the bucket.
func (s *S3Store) Test(ctx context.Context) error {
	if _, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		MaxKeys: aws.Int32(1),
	}); err != nil {
		return errs.FromAWS("test", err)
	}
	return nil
}
