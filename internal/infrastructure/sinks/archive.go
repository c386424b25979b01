package sinks

import (
	"context"
	"fmt"
	"time"

	"github.com/akave-ai/logreader/internal/config"
	"github.com/akave-ai/logreader/internal/sink"
	"github.com/akave-ai/logreader/internal/sink/archive"
	"github.com/akave-ai/logreader/internal/storage"
)

func init() {
	GlobalRegistry.Register(&ArchiveFactory{})
}

// ArchiveFactory creates S3-compatible archive sinks. Registers as "archive".
type ArchiveFactory struct{}

func (f *ArchiveFactory) Name() string { return "archive" }

func (f *ArchiveFactory) ConfigSpec() SinkTypeInfo {
	return SinkTypeInfo{
		Type:        "archive",
		Description: "Writes each batch as a gzip NDJSON object to an S3-compatible bucket under <prefix>/<account>/<table>/yyyy/mm/dd/.",
		Fields: []ConfigField{
			{Name: "sink.archive.bucket", Type: "string", Required: true, Description: "Bucket name, created if missing", Example: "log-archive"},
			{Name: "sink.archive.endpoint", Type: "string", Description: "S3-compatible endpoint; empty for AWS", Example: "https://o3.example.com"},
			{Name: "sink.archive.region", Type: "string", Description: "Region", Example: "us-east-1"},
			{Name: "sink.archive.access_key", Type: "string", Description: "Static access key"},
			{Name: "sink.archive.secret_key", Type: "string", Description: "Static secret key"},
			{Name: "sink.archive.prefix", Type: "string", Description: "Key prefix", Example: "logs"},
		},
	}
}

func (f *ArchiveFactory) ValidateConfig(cfg config.SinkConfig) error {
	if cfg.Archive.Bucket == "" {
		return fmt.Errorf("sink.archive.bucket is required")
	}
	return nil
}

func (f *ArchiveFactory) Create(cfg config.SinkConfig, deps Deps) (sink.Sink, error) {
	ac := cfg.Archive
	store, err := storage.NewObjectStore(storage.Config{
		Endpoint:  ac.Endpoint,
		Region:    ac.Region,
		Bucket:    ac.Bucket,
		AccessKey: ac.AccessKey,
		SecretKey: ac.SecretKey,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.EnsureBucket(ctx); err != nil {
		deps.Logger.Warn().Err(err).Str("bucket", ac.Bucket).Msg("ensure archive bucket failed, uploads may fail")
	}
	return archive.New(store, ac.Prefix, deps.Clock, deps.Logger), nil
}
