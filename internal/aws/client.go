// Package aws reads dashboard snapshots stored in Amazon S3.
//
// Snapshots are addressed as s3://bucket/key. The store wraps the S3
// GetObject API behind a small interface so that it can be mocked in tests.
package aws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/yourusername/dashdiff/internal/logger"
)

// Common AWS errors that we want to handle specifically
var (
	ErrSnapshotNotFound = errors.New("snapshot not found")
	ErrInvalidRegion    = errors.New("invalid AWS region")
	ErrAccessDenied     = errors.New("access denied to AWS resources")
	ErrInvalidLocation  = errors.New("invalid S3 location")
)

// Scheme is the URL scheme of S3 snapshot locations.
const Scheme = "s3://"

// DefaultRequestTimeout bounds a single GetObject call made by GetSnapshots.
const DefaultRequestTimeout = 30 * time.Second

// Location addresses one snapshot object.
type Location struct {
	Bucket string
	Key    string
}

// ParseLocation parses s3://bucket/key.
func ParseLocation(s string) (Location, error) {
	rest, ok := strings.CutPrefix(s, Scheme)
	if !ok {
		return Location{}, fmt.Errorf("%w: %q does not start with %s", ErrInvalidLocation, s, Scheme)
	}
	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return Location{}, fmt.Errorf("%w: %q needs a bucket and a key", ErrInvalidLocation, s)
	}
	return Location{Bucket: bucket, Key: key}, nil
}

func (l Location) String() string {
	return Scheme + l.Bucket + "/" + l.Key
}

// S3GetObjectAPI defines the interface for the GetObject API
// This interface allows us to mock the S3 client in tests
type S3GetObjectAPI interface {
	GetObject(
		ctx context.Context,
		params *s3.GetObjectInput,
		optFns ...func(*s3.Options),
	) (*s3.GetObjectOutput, error)
}

// SnapshotResult is the outcome of fetching one snapshot in GetSnapshots.
type SnapshotResult struct {
	Location Location
	Data     []byte
	Err      error
}

// SnapshotStore reads raw snapshot documents.
type SnapshotStore struct {
	Client  S3GetObjectAPI
	logger  *logger.Logger
	timeout time.Duration
}

// NewSnapshotStore creates a store backed by the default AWS credential
// chain. maxAttempts bounds the standard retryer.
func NewSnapshotStore(ctx context.Context, region string, maxAttempts int) (*SnapshotStore, error) {
	if region == "" {
		return nil, fmt.Errorf("%w: region cannot be empty", ErrInvalidRegion)
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	cfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion(region),
		config.WithRetryer(func() aws.Retryer {
			return retry.NewStandard(func(so *retry.StandardOptions) {
				so.MaxAttempts = maxAttempts
			})
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	log := logger.WithFields(map[string]interface{}{
		"component": "s3-store",
		"region":    region,
	})
	log.Debug("Initialized S3 snapshot store")

	return NewSnapshotStoreWithClient(s3.NewFromConfig(cfg), log), nil
}

// NewSnapshotStoreWithClient creates a store around an existing client.
func NewSnapshotStoreWithClient(client S3GetObjectAPI, log *logger.Logger) *SnapshotStore {
	if log == nil {
		log = logger.DefaultLogger
	}
	return &SnapshotStore{
		Client:  client,
		logger:  log,
		timeout: DefaultRequestTimeout,
	}
}

// GetSnapshot downloads the snapshot at loc.
func (s *SnapshotStore) GetSnapshot(ctx context.Context, loc Location) ([]byte, error) {
	if loc.Bucket == "" || loc.Key == "" {
		return nil, fmt.Errorf("%w: bucket and key are required", ErrInvalidLocation)
	}

	log := s.logger.WithFields(map[string]interface{}{
		"location": loc.String(),
	})
	log.Debug("Fetching snapshot")

	out, err := s.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if err != nil {
		var apiErr interface {
			Error() string
			ErrorCode() string
		}
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case "NoSuchKey", "NoSuchBucket", "NotFound":
				log.Warn("Snapshot not found")
				return nil, fmt.Errorf("%w: %s: %v", ErrSnapshotNotFound, loc, err)
			case "AccessDenied", "Forbidden":
				log.Error("Access denied when fetching snapshot")
				return nil, fmt.Errorf("%w: %s: %v", ErrAccessDenied, loc, err)
			}
		}

		log.Error("Failed to fetch snapshot", "error", err)
		return nil, fmt.Errorf("failed to get %s: %w", loc, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", loc, err)
	}

	log.Debug("Fetched snapshot", "bytes", len(data))
	return data, nil
}

// GetSnapshots fetches several snapshots concurrently.
// It returns a channel that will receive a SnapshotResult for each location.
// The channel will be closed when all operations complete.
func (s *SnapshotStore) GetSnapshots(ctx context.Context, locs []Location) <-chan SnapshotResult {
	results := make(chan SnapshotResult, len(locs))

	var wg sync.WaitGroup
	for _, loc := range locs {
		wg.Add(1)
		go func(loc Location) {
			defer wg.Done()

			ctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()

			data, err := s.GetSnapshot(ctx, loc)
			results <- SnapshotResult{
				Location: loc,
				Data:     data,
				Err:      err,
			}
		}(loc)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}
