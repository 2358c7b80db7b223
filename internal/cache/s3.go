package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/civiclab/ordinance-api/internal/ordinance"
	"github.com/civiclab/ordinance-api/internal/xerrors"
)

// S3API is the slice of the S3 client the store uses.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store persists sections as JSON objects at {prefix}/{sha256(url)}.json.
type S3Store struct {
	client S3API
	bucket string
	prefix string
}

func NewS3Store(client S3API, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Store) key(url string) string {
	if s.prefix != "" {
		return fmt.Sprintf("%s/%s.json", s.prefix, Key(url))
	}
	return Key(url) + ".json"
}

// Get fetches the persisted section for url. A missing object is a
// cache miss, returned as (nil, nil).
func (s *S3Store) Get(ctx context.Context, url string) (*ordinance.Section, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(url)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, nil
		}
		return nil, xerrors.Wrapf(err, "get s3://%s/%s", s.bucket, s.key(url))
	}
	defer out.Body.Close()

	body, err := io.ReadAll(io.LimitReader(out.Body, 16<<20))
	if err != nil {
		return nil, xerrors.Wrap(err, "read cached section")
	}

	var sec ordinance.Section
	if err := json.Unmarshal(body, &sec); err != nil {
		return nil, xerrors.Wrap(err, "decode cached section")
	}
	return &sec, nil
}

// Put persists a section.
func (s *S3Store) Put(ctx context.Context, url string, sec *ordinance.Section) error {
	body, err := json.Marshal(sec)
	if err != nil {
		return xerrors.Wrap(err, "encode section")
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(url)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return xerrors.Wrapf(err, "put s3://%s/%s", s.bucket, s.key(url))
	}
	return nil
}
