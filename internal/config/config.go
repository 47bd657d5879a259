package config

import (
	"github.com/aws/aws-sdk-go-v2/aws"
)

// DefaultMaxConcurrency is used when neither flags nor the [scan] section set max-concurrency.
const DefaultMaxConcurrency = 4

// ZipConfig contains settings from the [zip] section.
type ZipConfig struct {
	// MaxVersion is the highest accepted "version needed to extract", 0 meaning the scanner default.
	MaxVersion uint16
}

// ForZip returns configuration for scanning ZIP archives.
func (l *Loader) ForZip() (c ZipConfig) {
	sec, err := l.cfg.GetSection("zip")
	if err != nil {
		return c
	}

	if v, err := sec.Key("max-version").Uint(); err == nil && v <= 0xffff {
		c.MaxVersion = uint16(v)
	}

	return
}

// ForZip calls Loader.ForZip on the DefaultLoader instance.
func ForZip() ZipConfig {
	return DefaultLoader.ForZip()
}

// ScanConfig contains settings from the [scan] section.
type ScanConfig struct {
	// MaxConcurrency is the number of inputs decoded in parallel.
	MaxConcurrency int
}

// ForScan returns configuration shared by all commands that decode multiple inputs.
func (l *Loader) ForScan() (c ScanConfig) {
	c.MaxConcurrency = DefaultMaxConcurrency

	sec, err := l.cfg.GetSection("scan")
	if err != nil {
		return c
	}

	if v := sec.Key("max-concurrency").MustInt(DefaultMaxConcurrency); v > 0 {
		c.MaxConcurrency = v
	}

	return
}

// ForScan calls Loader.ForScan on the DefaultLoader instance.
func ForScan() ScanConfig {
	return DefaultLoader.ForScan()
}

// BucketConfig contains configuration settings for a specific bucket.
//
// The [s3] section provides defaults that an [s3://bucket] section can override.
type BucketConfig struct {
	Bucket              string
	AWSProfile          string
	ExpectedBucketOwner *string
}

// ForBucket returns configuration for a specific bucket.
func (l *Loader) ForBucket(bucket string) (c BucketConfig) {
	c.Bucket = bucket

	if sec, err := l.cfg.GetSection("s3"); err == nil {
		c.AWSProfile = sec.Key("profile").Value()
	}

	sec, err := l.cfg.GetSection("s3://" + bucket)
	if err != nil {
		return c
	}

	if sec.HasKey("aws-profile") {
		c.AWSProfile = sec.Key("aws-profile").Value()
	}
	if sec.HasKey("expected-bucket-owner") {
		c.ExpectedBucketOwner = aws.String(sec.Key("expected-bucket-owner").Value())
	}

	return
}

// ForBucket calls Loader.ForBucket on the DefaultLoader instance.
func ForBucket(bucket string) BucketConfig {
	return DefaultLoader.ForBucket(bucket)
}
