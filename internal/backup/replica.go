package backup

import (
	"context"
	"fmt"
	"path"

	"dbvault/internal/logging"
)

// Replica is an offsite copy target for finished archives
type Replica interface {
	Name() string
	Upload(ctx context.Context, filename, localPath string) error
	Delete(ctx context.Context, filename string) error
}

// ReplicaResult reports the outcome of copying an archive offsite
type ReplicaResult struct {
	Uploaded []string          `json:"uploaded,omitempty" yaml:"uploaded,omitempty"`
	Failed   map[string]string `json:"failed,omitempty" yaml:"failed,omitempty"`
}

// BuildReplicas creates a client for every configured replica
func BuildReplicas(ctx context.Context, config ReplicaConfig) ([]Replica, error) {
	if err := config.Validate(); err != nil {
		return nil, NewConfigurationError("invalid replica configuration", err)
	}

	var replicas []Replica
	if config.S3 != nil {
		r, err := NewS3Replica(config.S3)
		if err != nil {
			return nil, err
		}
		replicas = append(replicas, r)
	}
	if config.Azure != nil {
		r, err := NewAzureReplica(config.Azure)
		if err != nil {
			return nil, err
		}
		replicas = append(replicas, r)
	}
	if config.GCS != nil {
		r, err := NewGCSReplica(ctx, config.GCS)
		if err != nil {
			return nil, err
		}
		replicas = append(replicas, r)
	}
	return replicas, nil
}

func objectKey(prefix, filename string) string {
	if prefix == "" {
		return filename
	}
	return path.Join(prefix, filename)
}

// uploadAll copies an archive to every replica. Failures are logged and
// collected, never returned.
func uploadAll(ctx context.Context, replicas []Replica, filename, localPath string, logger *logging.Logger) *ReplicaResult {
	result := &ReplicaResult{}
	for _, r := range replicas {
		entry := logger.WithFields(map[string]interface{}{
			"replica":  r.Name(),
			"filename": filename,
		})
		if err := r.Upload(ctx, filename, localPath); err != nil {
			if result.Failed == nil {
				result.Failed = make(map[string]string)
			}
			result.Failed[r.Name()] = err.Error()
			entry.WithError(err).Warn("Replica upload failed")
			continue
		}
		result.Uploaded = append(result.Uploaded, r.Name())
		entry.Info("Archive replicated")
	}
	return result
}

// deleteAll removes an archive from every replica, logging failures
func deleteAll(ctx context.Context, replicas []Replica, filename string, logger *logging.Logger) []error {
	var errs []error
	for _, r := range replicas {
		if err := r.Delete(ctx, filename); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Name(), err))
			logger.WithFields(map[string]interface{}{
				"replica":  r.Name(),
				"filename": filename,
			}).WithError(err).Warn("Replica delete failed")
		}
	}
	return errs
}
