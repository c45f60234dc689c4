package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/greut/iiif-tiler/config"
)

// OSS stores derivatives as objects of an Aliyun OSS bucket.
type OSS struct {
	bucket *oss.Bucket
}

// NewOSS opens the bucket.
func NewOSS(c config.OSS) (*OSS, error) {
	client, err := oss.New(c.Endpoint, c.AccessKeyID, c.AccessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create OSS client: %w", err)
	}

	bucket, err := client.Bucket(c.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket %s: %w", c.Bucket, err)
	}

	return &OSS{bucket}, nil
}

// Put uploads the object, replacing any previous one.
func (o *OSS) Put(ctx context.Context, id, path string, data []byte) error {
	key, err := Key(id, path)
	if err != nil {
		return err
	}

	// the SDK does not take a context
	if err := o.bucket.PutObject(key, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to upload to OSS: %w", err)
	}
	return nil
}

// Get downloads the object.
func (o *OSS) Get(ctx context.Context, id, path string) ([]byte, error) {
	key, err := Key(id, path)
	if err != nil {
		return nil, err
	}

	body, err := o.bucket.GetObject(key)
	if err != nil {
		var e oss.ServiceError
		if errors.As(err, &e) && e.StatusCode == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer body.Close()

	return io.ReadAll(body)
}

// Exists checks for the object.
func (o *OSS) Exists(ctx context.Context, id, path string) (bool, error) {
	key, err := Key(id, path)
	if err != nil {
		return false, err
	}
	return o.bucket.IsObjectExist(key)
}
