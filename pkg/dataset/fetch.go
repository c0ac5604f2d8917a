package dataset

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/geolinks/geolinks/pkg/errors"
)

// FetchOptions tune remote dataset retrieval.
type FetchOptions struct {
	// S3Region overrides the default AWS region for s3:// locations
	S3Region string
}

// fetch materializes the dataset bytes from a local path, an http(s) URL,
// or an s3:// URL. Parquet needs random access, so remote sources are
// buffered fully; the datasets are bounded (hundreds of MB at worst) and
// this is a one-time batch path.
func fetch(ctx context.Context, location string, opts FetchOptions) ([]byte, error) {
	switch {
	case strings.HasPrefix(location, "s3://"):
		return fetchS3(ctx, location, opts)
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		return fetchHTTP(ctx, location)
	default:
		data, err := os.ReadFile(location) //nolint:gosec // G304: operator-supplied dataset path
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeDatasetUnavailable,
				fmt.Sprintf("failed to read dataset %s", location))
		}
		return data, nil
	}
}

func fetchHTTP(ctx context.Context, location string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeDatasetUnavailable, "invalid dataset URL")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeDatasetUnavailable,
			fmt.Sprintf("failed to fetch dataset %s", location))
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf(errors.ErrorTypeDatasetUnavailable,
			"dataset fetch returned %s for %s", resp.Status, location)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeDatasetUnavailable,
			fmt.Sprintf("failed to download dataset %s", location))
	}
	return data, nil
}

func fetchS3(ctx context.Context, location string, opts FetchOptions) ([]byte, error) {
	u, err := url.Parse(location)
	if err != nil || u.Host == "" || u.Path == "" {
		return nil, errors.Newf(errors.ErrorTypeDatasetUnavailable, "invalid s3 URL %s", location)
	}
	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.S3Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.S3Region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeDatasetUnavailable, "failed to load AWS config")
	}

	client := s3.NewFromConfig(cfg)
	downloader := manager.NewDownloader(client)

	buf := manager.NewWriteAtBuffer(nil)
	if _, err := downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeDatasetUnavailable,
			fmt.Sprintf("failed to download s3://%s/%s", bucket, key))
	}

	return buf.Bytes(), nil
}
