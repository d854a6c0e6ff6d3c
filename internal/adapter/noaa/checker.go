// Package noaa checks whether NOAA has published RAP output for a cycle on
// the public S3 bucket.
package noaa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/couchcryptid/storm-prob-grid/internal/domain"
)

// DefaultBucket is the NOAA Open Data bucket for RAP output.
const DefaultBucket = "noaa-rap-pds"

// S3HeadClient abstracts the S3 HeadObject operation for testability.
type S3HeadClient interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Checker probes the RAP awip32 GRIB2 object for a cycle.
// It implements pipeline.AvailabilityChecker.
type Checker struct {
	client  S3HeadClient
	bucket  string
	timeout time.Duration
	logger  *slog.Logger
}

// NewChecker creates a Checker over client. A zero timeout means none.
func NewChecker(client S3HeadClient, bucket string, timeout time.Duration, logger *slog.Logger) *Checker {
	if bucket == "" {
		bucket = DefaultBucket
	}
	return &Checker{client: client, bucket: bucket, timeout: timeout, logger: logger}
}

// NewS3Client builds an S3 client with anonymous credentials; the NOAA
// buckets are public.
func NewS3Client(ctx context.Context, region string) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(aws.AnonymousCredentials{}),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

// ObjectKey is the awip32 (CONUS 13 km) pressure-level file for c, e.g.
// rap.20260504/rap.t12z.awip32f01.grib2.
func ObjectKey(c domain.Cycle) string {
	return fmt.Sprintf("rap.%s/rap.t%sz.awip32f%02d.grib2", c.RunDate(), c.RunHour(), c.ForecastHour)
}

// CheckAvailable returns a *domain.DataUnavailableError when the object is
// missing or not yet readable.
func (c *Checker) CheckAvailable(ctx context.Context, cycle domain.Cycle) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	key := ObjectKey(cycle)
	source := fmt.Sprintf("s3://%s/%s", c.bucket, key)

	out, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isMissing(err) {
			return &domain.DataUnavailableError{Source: source, Cycle: cycle}
		}
		return fmt.Errorf("head %s: %w", source, err)
	}

	c.logger.Debug("upstream object available",
		"source", source,
		"size", aws.ToInt64(out.ContentLength),
		"last_modified", aws.ToTime(out.LastModified),
	)
	return nil
}

// isMissing treats 404 and 403 alike: anonymous requests for an absent key
// on a bucket without public listing come back as 403.
func isMissing(err error) bool {
	var notFound *s3types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var noKey *s3types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.HTTPStatusCode() {
		case http.StatusNotFound, http.StatusForbidden:
			return true
		}
	}
	return false
}
