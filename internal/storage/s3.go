// Package storage uploads submission images to the media bucket and
// hands back durable public references to them.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// uploadCacheControl is applied to every stored object. Generated inputs
// are immutable, so a fixed max-age is safe.
const uploadCacheControl = "3600"

// Asset is the result of a successful upload: the object key plus the
// publicly resolvable URL for it.
type Asset struct {
	Path      string
	PublicURL string
}

// S3Store uploads objects to a single media bucket.
type S3Store struct {
	client *s3.Client
	bucket string
	region string
}

// NewS3Store creates a store over the given client. region is used to
// build public object URLs.
func NewS3Store(client *s3.Client, bucket, region string) *S3Store {
	return &S3Store{client: client, bucket: bucket, region: region}
}

// Upload stores data under key. The write is conditional on the key not
// existing: re-uploading to the same path fails rather than silently
// overwriting.
func (s *S3Store) Upload(ctx context.Context, key string, data []byte, contentType string) (Asset, error) {
	log.Debug().
		Str("bucket", s.bucket).
		Str("key", key).
		Int("bytes", len(data)).
		Msg("Uploading to object storage")

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       &s.bucket,
		Key:          &key,
		Body:         bytes.NewReader(data),
		ContentType:  &contentType,
		CacheControl: aws.String(uploadCacheControl),
		IfNoneMatch:  aws.String("*"),
	})
	if err != nil {
		return Asset{}, fmt.Errorf("upload to object storage: %w", err)
	}

	asset := Asset{Path: key, PublicURL: s.PublicURL(key)}
	log.Info().Str("key", key).Msg("Upload complete")
	return asset, nil
}

// PublicURL returns the durable public reference for an object key.
func (s *S3Store) PublicURL(key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}

// ObjectKey builds the storage key for one submission: namespaced by the
// principal and made collision-resistant with a timestamp plus a random
// component, keeping the original extension. Concurrent submissions by
// different users, or repeated submissions by the same user, never land
// on the same key.
func ObjectKey(principal, filename string, now time.Time) string {
	return fmt.Sprintf("%s/%d-%s%s", principal, now.UnixMilli(), uuid.NewString(), filepath.Ext(filename))
}
