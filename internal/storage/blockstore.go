package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/malbeclabs/coredb/pkg/coreerr"
)

// BlockStore persists WAL segments, partition subpartition blocks, and the
// metastore file. LocalBlockStore backs db_path on local disk and is the
// only store Open constructs; S3BlockStore implements the same interface
// against a bucket (an enrichment beyond spec.md's local-disk-only
// description, present because the teacher pack already depends on
// aws-sdk-go-v2/s3), but nothing in the DB facade creates one.
type BlockStore interface {
	// Put writes data at key, creating any needed parent structure.
	Put(ctx context.Context, key string, data []byte) error
	// Get reads the bytes at key, returning coreerr.Io wrapping
	// os.ErrNotExist/the S3 NoSuchKey equivalent if absent.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// List returns every key under prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// LocalBlockStore roots every key under a local directory.
type LocalBlockStore struct {
	Root string
}

func NewLocalBlockStore(root string) *LocalBlockStore {
	return &LocalBlockStore{Root: root}
}

func (s *LocalBlockStore) path(key string) string {
	return filepath.Join(s.Root, filepath.FromSlash(key))
}

func (s *LocalBlockStore) Put(_ context.Context, key string, data []byte) error {
	p := s.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return coreerr.WrapIo("blockstore: mkdir", err)
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return coreerr.WrapIo("blockstore: write", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		return coreerr.WrapIo("blockstore: rename", err)
	}
	return nil
}

func (s *LocalBlockStore) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		return nil, coreerr.WrapIo("blockstore: read "+key, err)
	}
	return data, nil
}

func (s *LocalBlockStore) Delete(_ context.Context, key string) error {
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return coreerr.WrapIo("blockstore: delete "+key, err)
	}
	return nil
}

func (s *LocalBlockStore) List(_ context.Context, prefix string) ([]string, error) {
	root := s.path(prefix)
	var keys []string
	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipDir
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.Root, p)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, coreerr.WrapIo("blockstore: list "+prefix, err)
	}
	return keys, nil
}

// S3BlockStore backs db_path with an S3 bucket, for deployments that want
// partition/WAL durability without a local disk.
type S3BlockStore struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3BlockStore loads the default AWS credential chain (env vars, shared
// config, IMDS) the way aws-sdk-go-v2/config's LoadDefaultConfig does
// everywhere else in the teacher's stack.
func NewS3BlockStore(ctx context.Context, bucket, prefix string) (*S3BlockStore, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, coreerr.WrapIo("s3 blockstore: load aws config", err)
	}
	return &S3BlockStore{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		prefix: prefix,
	}, nil
}

func (s *S3BlockStore) objectKey(key string) string {
	return filepath.ToSlash(filepath.Join(s.prefix, key))
}

func (s *S3BlockStore) Put(ctx context.Context, key string, data []byte) error {
	objKey := s.objectKey(key)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    &objKey,
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return coreerr.WrapIo("s3 blockstore: put "+key, err)
	}
	return nil
}

func (s *S3BlockStore) Get(ctx context.Context, key string) ([]byte, error) {
	objKey := s.objectKey(key)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &objKey,
	})
	if err != nil {
		return nil, coreerr.WrapIo("s3 blockstore: get "+key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, coreerr.WrapIo("s3 blockstore: read body "+key, err)
	}
	return data, nil
}

func (s *S3BlockStore) Delete(ctx context.Context, key string) error {
	objKey := s.objectKey(key)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &s.bucket,
		Key:    &objKey,
	})
	if err != nil {
		return coreerr.WrapIo("s3 blockstore: delete "+key, err)
	}
	return nil
}

func (s *S3BlockStore) List(ctx context.Context, prefix string) ([]string, error) {
	objPrefix := s.objectKey(prefix)
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: &s.bucket,
		Prefix: &objPrefix,
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, coreerr.WrapIo("s3 blockstore: list "+prefix, err)
		}
		for _, obj := range page.Contents {
			rel, err := filepath.Rel(s.prefix, *obj.Key)
			if err != nil {
				return nil, coreerr.WrapIo("s3 blockstore: relativize key", err)
			}
			keys = append(keys, filepath.ToSlash(rel))
		}
	}
	return keys, nil
}
