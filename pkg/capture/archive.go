package capture

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/filetrail/filetrail/pkg/activity"
	"github.com/filetrail/filetrail/pkg/config"

	// Register rclone backends via blank imports.
	_ "github.com/rclone/rclone/backend/azureblob"
	_ "github.com/rclone/rclone/backend/googlecloudstorage"
	_ "github.com/rclone/rclone/backend/local"
	_ "github.com/rclone/rclone/backend/s3"
	_ "github.com/rclone/rclone/backend/sftp"

	"github.com/rclone/rclone/fs"
	"github.com/rclone/rclone/fs/config/configmap"
	"github.com/rclone/rclone/fs/object"
)

// ArchiveSink uploads capture files to an rclone remote. Any backend
// rclone registers works: local paths for on-host archives, s3/azureblob/
// gcs/sftp for off-host ones.
type ArchiveSink struct {
	providerID string
	remoteType string
	rfs        fs.Fs
}

// NewArchiveSink creates a sink from the archive configuration.
func NewArchiveSink(providerID string, cfg config.ArchiveConfig) (*ArchiveSink, error) {
	regInfo, err := fs.Find(cfg.Type)
	if err != nil {
		return nil, fmt.Errorf("capture.NewArchiveSink: unknown type %q: %w", cfg.Type, err)
	}

	rfs, err := regInfo.NewFs(context.Background(), "archive", cfg.RemotePath, configmap.Simple(cfg.Params))
	if err != nil {
		return nil, fmt.Errorf("capture.NewArchiveSink: create %q (%s): %w", cfg.RemotePath, cfg.Type, err)
	}

	slog.Info("archive sink created",
		"type", cfg.Type, "path", cfg.RemotePath)

	return &ArchiveSink{providerID: providerID, remoteType: cfg.Type, rfs: rfs}, nil
}

// Upload writes records as one capture file on the remote and returns the
// remote object name. Names are timestamped per provider so repeated
// uploads never collide.
func (s *ArchiveSink) Upload(ctx context.Context, records []activity.Record) (string, error) {
	var buf bytes.Buffer
	if err := Write(&buf, s.providerID, records); err != nil {
		return "", err
	}

	name := fmt.Sprintf("%s-%s.jsonl", s.providerID, time.Now().UTC().Format("20060102T150405Z"))
	info := object.NewStaticObjectInfo(name, time.Now(), int64(buf.Len()), true, nil, nil)
	if _, err := s.rfs.Put(ctx, &buf, info); err != nil {
		return "", fmt.Errorf("capture: upload %q (%s): %w", name, s.remoteType, err)
	}

	slog.Info("capture archived", "object", name, "records", len(records))
	return name, nil
}

// List returns the capture file names present on the remote.
func (s *ArchiveSink) List(ctx context.Context) ([]string, error) {
	entries, err := s.rfs.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("capture: list archive: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if _, ok := entry.(fs.Object); ok {
			names = append(names, path.Base(entry.Remote()))
		}
	}
	return names, nil
}

// Fetch downloads one archived capture file and parses it.
func (s *ArchiveSink) Fetch(ctx context.Context, name string) (Metadata, []activity.Record, error) {
	obj, err := s.rfs.NewObject(ctx, name)
	if err != nil {
		return Metadata{}, nil, fmt.Errorf("capture: fetch %q: %w", name, err)
	}

	rc, err := obj.Open(ctx)
	if err != nil {
		return Metadata{}, nil, fmt.Errorf("capture: fetch %q open: %w", name, err)
	}
	defer rc.Close()

	return Read(rc)
}
