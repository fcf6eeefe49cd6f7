package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/geocover/internal/config"
	"github.com/sells-group/geocover/internal/geo"
	"github.com/sells-group/geocover/internal/model"
)

// Bucket is the subset of *minio.Client used by ObjectStore.
type Bucket interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// NewMinioClient connects to the configured endpoint.
func NewMinioClient(cfg config.ObjectStoreConfig) (*minio.Client, error) {
	if cfg.Endpoint == "" || cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, eris.New("objectstore: endpoint, access_key and secret_key are required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, eris.Wrap(err, "objectstore: create client")
	}
	return client, nil
}

// Document is the JSON body stored per run.
type Document struct {
	RunID     string              `json:"run_id"`
	StartedAt time.Time           `json:"started_at"`
	BBox      geo.Rect            `json:"bbox"`
	Count     int                 `json:"count"`
	Points    []model.PointRecord `json:"points"`
}

// ObjectStore uploads each run as one JSON object <prefix>/<table>.json.
type ObjectStore struct {
	client Bucket
	bucket string
	region string
	prefix string
}

// NewObjectStore creates an object store sink. An empty prefix means "runs".
func NewObjectStore(client Bucket, bucket, region, prefix string) *ObjectStore {
	if prefix == "" {
		prefix = "runs"
	}
	return &ObjectStore{client: client, bucket: bucket, region: region, prefix: prefix}
}

// Name implements Sink.
func (o *ObjectStore) Name() string { return "objectstore" }

// Key returns the object key for run.
func (o *ObjectStore) Key(run Run) string {
	return o.prefix + "/" + run.TableName() + ".json"
}

// Write implements Sink. The bucket is created on first use.
func (o *ObjectStore) Write(ctx context.Context, run Run, points []model.PointRecord) error {
	exists, err := o.client.BucketExists(ctx, o.bucket)
	if err != nil {
		return eris.Wrapf(err, "objectstore: check bucket %s", o.bucket)
	}
	if !exists {
		if err := o.client.MakeBucket(ctx, o.bucket, minio.MakeBucketOptions{Region: o.region}); err != nil {
			return eris.Wrapf(err, "objectstore: make bucket %s", o.bucket)
		}
		zap.L().Info("created bucket", zap.String("component", "sink.objectstore"), zap.String("bucket", o.bucket))
	}

	if points == nil {
		points = []model.PointRecord{}
	}
	body, err := json.Marshal(Document{
		RunID:     run.ID,
		StartedAt: run.StartedAt,
		BBox:      run.BBox,
		Count:     len(points),
		Points:    points,
	})
	if err != nil {
		return eris.Wrap(err, "objectstore: encode run")
	}

	key := o.Key(run)
	_, err = o.client.PutObject(ctx, o.bucket, key, bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return eris.Wrapf(err, "objectstore: put %s", key)
	}
	return nil
}
