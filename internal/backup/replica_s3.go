package backup

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// S3Replica copies archives to an S3 bucket
type S3Replica struct {
	client   *s3.S3
	uploader *s3manager.Uploader
	bucket   string
	prefix   string
}

// NewS3Replica creates a new S3Replica instance
func NewS3Replica(config *S3Config) (*S3Replica, error) {
	if config == nil {
		return nil, NewConfigurationError("S3 replica configuration is required", nil)
	}
	config.SetDefaults()
	if errs := config.validate(); errs.HasErrors() {
		return nil, NewConfigurationError("invalid S3 replica configuration", errs)
	}

	awsConfig := &aws.Config{
		Region: aws.String(config.Region),
		Credentials: credentials.NewStaticCredentials(
			config.AccessKey,
			config.SecretKey,
			"", // token
		),
		S3ForcePathStyle: aws.Bool(config.ForcePathStyle),
	}
	if config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(config.Endpoint)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, NewReplicaError("failed to create AWS session", err)
	}

	return &S3Replica{
		client:   s3.New(sess),
		uploader: s3manager.NewUploader(sess),
		bucket:   config.Bucket,
		prefix:   config.Prefix,
	}, nil
}

func (r *S3Replica) Name() string {
	return "s3://" + r.bucket
}

// Upload streams the archive file to the bucket
func (r *S3Replica) Upload(ctx context.Context, filename, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return NewReplicaError("failed to open archive for upload", err)
	}
	defer f.Close()

	_, err = r.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(objectKey(r.prefix, filename)),
		Body:        f,
		ContentType: aws.String("application/x-tar"),
		Metadata: map[string]*string{
			"archive-name": aws.String(filename),
		},
	})
	if err != nil {
		return NewReplicaError(fmt.Sprintf("failed to upload %s to S3", filename), err)
	}
	return nil
}

// Delete removes the archive object
func (r *S3Replica) Delete(ctx context.Context, filename string) error {
	_, err := r.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(objectKey(r.prefix, filename)),
	})
	if err != nil {
		return NewReplicaError(fmt.Sprintf("failed to delete %s from S3", filename), err)
	}
	return nil
}
