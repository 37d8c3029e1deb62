package options

import (
	"fmt"

	"github.com/spf13/pflag"
)

var _ IOptions = (*S3Options)(nil)

// S3Options configures the bucket used as firmware slot storage. The
// endpoint has no default; it is required once the s3 storage is selected.
type S3Options struct {
	Endpoint        string `json:"endpoint" mapstructure:"endpoint"`
	AccessKeyID     string `json:"access-key-id" mapstructure:"access-key-id"`
	SecretAccessKey string `json:"secret-access-key" mapstructure:"secret-access-key"`
	UseSSL          bool   `json:"use-ssl" mapstructure:"use-ssl"`
	BucketName      string `json:"bucket-name" mapstructure:"bucket-name"`
	Region          string `json:"region" mapstructure:"region"`
	// Prefix separates the slots of several devices sharing a bucket.
	Prefix string `json:"prefix" mapstructure:"prefix"`
}

func NewS3Options() *S3Options {
	return &S3Options{
		UseSSL:     false,
		BucketName: "tramcast-firmware",
		Region:     "us-east-1",
		Prefix:     "tramcast",
	}
}

// Validate only checks the fields when an endpoint is configured; the
// options are unused unless the s3 storage is selected.
func (o *S3Options) Validate() []error {
	if o == nil || o.Endpoint == "" {
		return nil
	}

	errors := []error{}

	if err := ValidateAddress(o.Endpoint); err != nil {
		errors = append(errors, fmt.Errorf("--s3.endpoint: %w", err))
	}
	if o.BucketName == "" {
		errors = append(errors, fmt.Errorf("--s3.bucket-name must be specified"))
	}

	return errors
}

func (o *S3Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Endpoint, "s3.endpoint", o.Endpoint, "S3 service endpoint (host:port, e.g. minio.local:9000)")
	fs.StringVar(&o.AccessKeyID, "s3.access-key-id", o.AccessKeyID, "S3 access key ID")
	fs.StringVar(&o.SecretAccessKey, "s3.secret-access-key", o.SecretAccessKey, "S3 secret access key")
	fs.BoolVar(&o.UseSSL, "s3.use-ssl", o.UseSSL, "Enable SSL for S3 connection")
	fs.StringVar(&o.BucketName, "s3.bucket-name", o.BucketName, "S3 bucket name for firmware slots")
	fs.StringVar(&o.Region, "s3.region", o.Region, "S3 region")
	fs.StringVar(&o.Prefix, "s3.prefix", o.Prefix, "Object key prefix for this device's slots")
}
