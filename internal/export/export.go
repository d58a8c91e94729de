// Package export writes a point-in-time JSON snapshot of the lifecycle
// populations to S3-compatible object storage.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/drawbridge/internal/models"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in, optFns...)
	}
)

// Source is what a snapshot is assembled from. *services.AdminService
// satisfies it.
type Source interface {
	GetWaitlist(ctx context.Context) ([]*models.Account, error)
	GetInvites(ctx context.Context) ([]*models.Account, error)
	GetUsers(ctx context.Context) ([]*models.Account, error)
	GetDashboardValues(ctx context.Context) (models.Stats, error)
}

// Config locates the bucket. Endpoint is optional and points the client at
// MinIO or another S3-compatible server.
type Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Prefix    string
}

// Snapshot is the exported document. Account JSON omits password hashes and
// tokens.
type Snapshot struct {
	GeneratedAt time.Time         `json:"generated_at"`
	Stats       models.Stats      `json:"stats"`
	Waitlist    []*models.Account `json:"waitlist"`
	Invites     []*models.Account `json:"invites"`
	Users       []*models.Account `json:"users"`
}

type Exporter struct {
	src Source
	cfg Config
	now func() time.Time
}

func New(src Source, cfg Config) *Exporter {
	return &Exporter{src: src, cfg: cfg, now: time.Now}
}

// Build assembles the snapshot without uploading it.
func (e *Exporter) Build(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{GeneratedAt: e.now().UTC()}

	var err error
	if snap.Stats, err = e.src.GetDashboardValues(ctx); err != nil {
		return nil, err
	}
	if snap.Waitlist, err = e.src.GetWaitlist(ctx); err != nil {
		return nil, err
	}
	if snap.Invites, err = e.src.GetInvites(ctx); err != nil {
		return nil, err
	}
	if snap.Users, err = e.src.GetUsers(ctx); err != nil {
		return nil, err
	}
	return snap, nil
}

// keyLayout keeps nanoseconds at a fixed width so keys sort by time and two
// snapshots in the same second do not collide.
const keyLayout = "20060102T150405.000000000Z"

// Key is the object key a snapshot taken at t is stored under.
func (e *Exporter) Key(t time.Time) string {
	return path.Join(e.cfg.Prefix, t.UTC().Format(keyLayout)+".json")
}

// Export builds a snapshot, uploads it and returns its object key.
func (e *Exporter) Export(ctx context.Context) (string, error) {
	if e.cfg.Bucket == "" {
		return "", errors.New("export bucket is not configured")
	}

	snap, err := e.Build(ctx)
	if err != nil {
		return "", fmt.Errorf("build snapshot: %w", err)
	}
	body, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}

	client, err := e.client(ctx)
	if err != nil {
		return "", fmt.Errorf("s3 client: %w", err)
	}

	key := e.Key(snap.GeneratedAt)
	_, err = putObject(client, ctx, &s3.PutObjectInput{
		Bucket:        aws.String(e.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return key, nil
}

func (e *Exporter) client(ctx context.Context) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(e.cfg.Region)}
	if e.cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(e.cfg.AccessKey, e.cfg.SecretKey, "")))
	}

	cfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if e.cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(e.cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}
