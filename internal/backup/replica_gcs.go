package backup

import (
	"context"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSReplica copies archives to a Google Cloud Storage bucket
type GCSReplica struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSReplica creates a new GCSReplica instance
func NewGCSReplica(ctx context.Context, config *GCSConfig) (*GCSReplica, error) {
	if config == nil {
		return nil, NewConfigurationError("GCS replica configuration is required", nil)
	}
	config.SetDefaults()
	if errs := config.validate(); errs.HasErrors() {
		return nil, NewConfigurationError("invalid GCS replica configuration", errs)
	}

	var opts []option.ClientOption
	if config.CredentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(config.CredentialsPath))
	}
	if config.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(config.Endpoint), option.WithoutAuthentication())
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, NewReplicaError("failed to create GCS client", err)
	}

	return &GCSReplica{client: client, bucket: config.Bucket, prefix: config.Prefix}, nil
}

func (r *GCSReplica) Name() string {
	return "gs://" + r.bucket
}

// Upload streams the archive file into an object
func (r *GCSReplica) Upload(ctx context.Context, filename, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return NewReplicaError("failed to open archive for upload", err)
	}
	defer f.Close()

	w := r.client.Bucket(r.bucket).Object(objectKey(r.prefix, filename)).NewWriter(ctx)
	w.ContentType = "application/x-tar"
	w.Metadata = map[string]string{"archive-name": filename}

	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return NewReplicaError(fmt.Sprintf("failed to write %s to GCS", filename), err)
	}
	if err := w.Close(); err != nil {
		return NewReplicaError(fmt.Sprintf("failed to upload %s to GCS", filename), err)
	}
	return nil
}

// Delete removes the archive object
func (r *GCSReplica) Delete(ctx context.Context, filename string) error {
	if err := r.client.Bucket(r.bucket).Object(objectKey(r.prefix, filename)).Delete(ctx); err != nil {
		return NewReplicaError(fmt.Sprintf("failed to delete %s from GCS", filename), err)
	}
	return nil
}

// Close closes the GCS client
func (r *GCSReplica) Close() error {
	return r.client.Close()
}
