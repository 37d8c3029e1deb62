package hal

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/tramcast/tramcast/pkg/log"
	"github.com/tramcast/tramcast/pkg/options"
)

var errDiscarded = errors.New("slot image discarded")

// S3Slots keeps slot images as objects in a bucket, one prefix per device.
type S3Slots struct {
	client *minio.Client
	bucket string
	prefix string
}

var _ SlotBackend = (*S3Slots)(nil)

func NewS3Slots(opts *options.S3Options) (*S3Slots, error) {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}

	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, ""),
		Secure:    opts.UseSSL,
		Region:    opts.Region,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &S3Slots{client: client, bucket: opts.BucketName, prefix: opts.Prefix}, nil
}

// CheckBucket creates the bucket when it does not exist yet.
func (b *S3Slots) CheckBucket(ctx context.Context) error {
	exists, err := b.client.BucketExists(ctx, b.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		log.Info("Bucket does not exist, creating...", "bucket", b.bucket)
		if err := b.client.MakeBucket(ctx, b.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return nil
}

// Key returns the object key of slot.
func (b *S3Slots) Key(slot string) string {
	return path.Join(b.prefix, "slot-"+slot+".img")
}

// Create streams the image into a multipart upload. The object only
// appears once the upload completes on Commit.
func (b *S3Slots) Create(ctx context.Context, slot string) (SlotWriter, error) {
	pr, pw := io.Pipe()
	w := &s3SlotWriter{pw: pw, done: make(chan error, 1)}
	key := b.Key(slot)

	go func() {
		info, err := b.client.PutObject(ctx, b.bucket, key, pr, -1, minio.PutObjectOptions{
			ContentType: "application/octet-stream",
		})
		if err == nil {
			log.Debug("Slot image uploaded", "bucket", b.bucket, "key", key, "size", info.Size)
		}
		_ = pr.CloseWithError(err)
		w.done <- err
	}()

	return w, nil
}

type s3SlotWriter struct {
	pw   *io.PipeWriter
	done chan error
}

func (w *s3SlotWriter) Write(p []byte) (int, error) {
	return w.pw.Write(p)
}

func (w *s3SlotWriter) Commit(ctx context.Context) error {
	_ = w.pw.Close()
	select {
	case err := <-w.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Discard fails the upload; the error it ends with is expected.
func (w *s3SlotWriter) Discard() error {
	_ = w.pw.CloseWithError(errDiscarded)
	<-w.done
	return nil
}
