package load

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dustin/go-humanize"
)

// fromS3 downloads the whole object into memory with the multipart manager.Downloader.
func fromS3(ctx context.Context, bucket, key string, opts *Options) ([]byte, error) {
	client, err := opts.Loader.NewS3ClientForBucket(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("create S3 client error: %w", err)
	}

	owner := opts.Loader.ForBucket(bucket).ExpectedBucketOwner

	head, err := client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket:              aws.String(bucket),
		Key:                 aws.String(key),
		ExpectedBucketOwner: owner,
	})
	if err != nil {
		var re *awshttp.ResponseError
		if errors.As(err, &re) && re.HTTPStatusCode() == 404 {
			return nil, fmt.Errorf(`head "s3://%s/%s" error: %w`, bucket, key, fs.ErrNotExist)
		}

		return nil, fmt.Errorf(`head "s3://%s/%s" error: %w`, bucket, key, err)
	}

	size := aws.ToInt64(head.ContentLength)

	downloader := manager.NewDownloader(client, func(d *manager.Downloader) {
		if opts.Concurrency > 0 {
			d.Concurrency = opts.Concurrency
		}
		if opts.Logger != nil {
			partCount := max(int32((size+d.PartSize-1)/d.PartSize), 1)
			d.S3 = &partLoggingClient{DownloadAPIClient: d.S3, logf: opts.Logger.Printf, partCount: partCount}
			opts.Logger.Printf(`downloading %s in %d parts`, humanize.IBytes(uint64(max(size, 0))), partCount)
		}
	})

	buf := manager.NewWriteAtBuffer(make([]byte, 0, max(size, 0)))
	if _, err = downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket:              aws.String(bucket),
		Key:                 aws.String(key),
		ExpectedBucketOwner: owner,
		IfMatch:             head.ETag,
	}); err != nil {
		return nil, fmt.Errorf(`download "s3://%s/%s" error: %w`, bucket, key, err)
	}

	return buf.Bytes(), nil
}

// partLoggingClient logs every successfully downloaded part against the expected part count.
//
// GetObject may be called from any of the downloader's goroutines so the tally is atomic.
type partLoggingClient struct {
	manager.DownloadAPIClient
	logf      func(format string, v ...any)
	partCount int32
	n         atomic.Int32
}

func (c *partLoggingClient) GetObject(ctx context.Context, input *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	output, err := c.DownloadAPIClient.GetObject(ctx, input, optFns...)
	if err == nil {
		if v := c.n.Add(1); v >= c.partCount {
			c.logf("downloaded %d/%d parts", v, c.partCount)
		} else {
			c.logf("downloaded %d/%d parts so far", v, c.partCount)
		}
	}

	return output, err
}

var _ manager.DownloadAPIClient = &partLoggingClient{}
