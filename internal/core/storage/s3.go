package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/cloudsync/enginecore/internal/core/logger"
	"github.com/cloudsync/enginecore/internal/core/model"
	"go.uber.org/zap"
)

// S3Storage is a Storage backed by an S3-compatible bucket, optionally
// scoped under a key prefix. Directories are virtual: CreateDir writes a
// zero-byte "path/" marker object, matching the original engine's behavior
// since S3 has no real directory concept.
type S3Storage struct {
	client *s3.Client
	bucket string
	prefix string
	name   string
	log    *zap.Logger
}

// NewS3 builds an S3Storage from a StorageConfig, loading AWS credentials
// via the static-credentials provider the rest of the retrieval pack uses
// for S3-compatible endpoints (MinIO, Ceph RGW, etc. via BaseEndpoint +
// UsePathStyle).
func NewS3(ctx context.Context, cfg model.StorageConfig) (*S3Storage, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = &cfg.Endpoint
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	name := "s3://" + cfg.Bucket
	if cfg.Prefix != "" {
		name += "/" + strings.TrimPrefix(cfg.Prefix, "/")
	}

	return &S3Storage{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		name:   name,
		log:    logger.Named("core.storage.s3"),
	}, nil
}

func (s *S3Storage) key(path string) string {
	path = NormalizePath(path)
	if s.prefix == "" {
		return path
	}
	if path == "" {
		return s.prefix
	}
	return s.prefix + "/" + path
}

func (s *S3Storage) relative(key string) string {
	key = strings.TrimPrefix(key, s.prefix+"/")
	return strings.TrimPrefix(key, "/")
}

func (s *S3Storage) List(ctx context.Context, prefix string) ([]FileInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, OpTimeout)
	defer cancel()

	listPrefix := s.key(prefix)
	if listPrefix != "" && !strings.HasSuffix(listPrefix, "/") {
		listPrefix += "/"
	}

	var files []FileInfo
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: &s.bucket,
		Prefix: &listPrefix,
	})

	for paginator.HasMorePages() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			rel := s.relative(*obj.Key)
			if rel == "" || strings.HasSuffix(rel, "/") {
				continue
			}
			var size int64
			if obj.Size != nil {
				size = *obj.Size
			}
			var modified int64
			if obj.LastModified != nil {
				modified = obj.LastModified.Unix()
			}
			files = append(files, FileInfo{
				Path:         rel,
				Size:         size,
				ModifiedTime: modified,
				Checksum:     strings.Trim(aws_derefStr(obj.ETag), `"`),
			})
		}
	}
	return files, nil
}

func aws_derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (s *S3Storage) Stat(ctx context.Context, path string) (*FileMeta, error) {
	ctx, cancel := context.WithTimeout(ctx, OpTimeout)
	defer cancel()

	key := s.key(path)
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		if isS3NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("head object %s: %w", path, err)
	}
	var size int64
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	var modified int64
	if out.LastModified != nil {
		modified = out.LastModified.Unix()
	}
	return &FileMeta{
		Size:         size,
		ModifiedTime: modified,
		Checksum:     strings.Trim(aws_derefStr(out.ETag), `"`),
	}, nil
}

func (s *S3Storage) Read(ctx context.Context, path string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, IOTimeout)
	defer cancel()

	key := s.key(path)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", path, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (s *S3Storage) ReadRange(ctx context.Context, path string, offset, length int64) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, IOTimeout)
	defer cancel()

	key := s.key(path)
	rangeHeader := fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key, Range: &rangeHeader})
	if err != nil {
		return nil, fmt.Errorf("get object range %s: %w", path, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (s *S3Storage) Write(ctx context.Context, path string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, IOTimeout)
	defer cancel()

	key := s.key(path)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", path, err)
	}
	return nil
}

func (s *S3Storage) WriteStream(ctx context.Context, path string, r io.Reader, totalSize int64) error {
	ctx, cancel := context.WithTimeout(ctx, IOTimeout)
	defer cancel()

	key := s.key(path)
	input := &s3.PutObjectInput{Bucket: &s.bucket, Key: &key, Body: r}
	if totalSize > 0 {
		input.ContentLength = &totalSize
	}
	_, err := s.client.PutObject(ctx, input)
	if err != nil {
		return fmt.Errorf("put object stream %s: %w", path, err)
	}
	return nil
}

func (s *S3Storage) Delete(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, OpTimeout)
	defer cancel()

	key := s.key(path)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil && !isS3NotFound(err) {
		return fmt.Errorf("delete object %s: %w", path, err)
	}
	return nil
}

func (s *S3Storage) CreateDir(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, OpTimeout)
	defer cancel()

	dirPath := s.key(path)
	if !strings.HasSuffix(dirPath, "/") {
		dirPath += "/"
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    &dirPath,
		Body:   bytes.NewReader(nil),
	})
	if err != nil {
		return fmt.Errorf("create dir marker %s: %w", path, err)
	}
	return nil
}

func (s *S3Storage) Name() string { return s.name }

func isS3NotFound(err error) bool {
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	return errors.As(err, &nf) || errors.As(err, &nsk)
}
