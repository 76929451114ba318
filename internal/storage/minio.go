package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"path/filepath"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/bdougie/keyframer/internal/models"
)

type ObjectStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// ObjectStore uploads keyframe images and metadata to an S3-compatible
// bucket under keyframes/<video_id>/ and metadata/<video_id>.json.
type ObjectStore struct {
	client *miniogo.Client
	bucket string
}

func NewObjectStore(cfg ObjectStoreConfig) (*ObjectStore, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &ObjectStore{client: client, bucket: cfg.Bucket}, nil
}

func (s *ObjectStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, miniogo.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// KeyframeKey is the object key of a keyframe file.
func KeyframeKey(videoID, keyframePath string) string {
	return path.Join("keyframes", videoID, filepath.Base(keyframePath))
}

// MetadataKey is the object key of a video's metadata document.
func MetadataKey(videoID string) string {
	return path.Join("metadata", videoID+".json")
}

// Save uploads every keyframe of kf and its metadata. Keyframe objects left
// over from an earlier run of the same video are removed.
func (s *ObjectStore) Save(ctx context.Context, kf models.VideoKeyframes) error {
	keep := make(map[string]bool, len(kf.Records))
	for _, rec := range kf.Records {
		key := KeyframeKey(kf.VideoID, rec.KeyframePath)
		_, err := s.client.FPutObject(ctx, s.bucket, key, rec.KeyframePath, miniogo.PutObjectOptions{
			ContentType: "image/jpeg",
		})
		if err != nil {
			return fmt.Errorf("upload keyframe %s: %w", key, err)
		}
		keep[key] = true
	}

	stale, err := s.staleKeyframes(ctx, kf.VideoID, keep)
	if err != nil {
		return err
	}
	for _, key := range stale {
		if err := s.client.RemoveObject(ctx, s.bucket, key, miniogo.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("remove stale keyframe %s: %w", key, err)
		}
	}

	records := kf.Records
	if records == nil {
		records = []models.KeyframeRecord{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode metadata for %s: %w", kf.VideoID, err)
	}
	_, err = s.client.PutObject(ctx, s.bucket, MetadataKey(kf.VideoID), bytes.NewReader(data), int64(len(data)), miniogo.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("upload metadata for %s: %w", kf.VideoID, err)
	}
	return nil
}

// staleKeyframes lists the keyframe objects of videoID that are not in keep.
// The listing goroutine is stopped when this returns.
func (s *ObjectStore) staleKeyframes(ctx context.Context, videoID string, keep map[string]bool) ([]string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	prefix := path.Join("keyframes", videoID) + "/"
	stale, err := staleKeys(s.client.ListObjects(ctx, s.bucket, miniogo.ListObjectsOptions{Prefix: prefix, Recursive: true}), keep)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	return stale, nil
}

// staleKeys reads objects until the channel closes or reports an error.
func staleKeys(objects <-chan miniogo.ObjectInfo, keep map[string]bool) ([]string, error) {
	var stale []string
	for obj := range objects {
		if obj.Err != nil {
			return nil, obj.Err
		}
		if !keep[obj.Key] {
			stale = append(stale, obj.Key)
		}
	}
	return stale, nil
}
