// Package gcs mirrors local backup directories to a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/codex-k8s/lvdashctl/internal/logging"
)

// Options configures a Client.
type Options struct {
	// Bucket is the destination bucket name, without the gs:// scheme.
	Bucket string
	// Prefix is prepended to every object name.
	Prefix string
	// CredentialsFile is a service account key. Empty means application default credentials.
	CredentialsFile string
	Logger          *slog.Logger
	// ClientOptions are appended to the storage client options.
	ClientOptions []option.ClientOption
}

// Client uploads files to a single bucket.
type Client struct {
	storage *storage.Client
	bucket  string
	prefix  string
	logger  *slog.Logger
}

// NewClient constructs a storage client for opts.Bucket.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	bucket := strings.TrimPrefix(strings.TrimSpace(opts.Bucket), "gs://")
	bucket = strings.TrimSuffix(bucket, "/")
	if bucket == "" {
		return nil, errors.New("gcs bucket is required")
	}

	var clientOpts []option.ClientOption
	if opts.CredentialsFile != "" {
		if _, err := os.Stat(opts.CredentialsFile); err != nil {
			return nil, fmt.Errorf("service account key not found at path %s: %w", opts.CredentialsFile, err)
		}
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}
	clientOpts = append(clientOpts, opts.ClientOptions...)

	sc, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create GCS storage client: %w", err)
	}

	return &Client{
		storage: sc,
		bucket:  bucket,
		prefix:  strings.Trim(opts.Prefix, "/"),
		logger:  logging.OrDiscard(opts.Logger),
	}, nil
}

// Close releases the underlying storage client.
func (c *Client) Close() error {
	return c.storage.Close()
}

// UploadFile copies a local file to the named object.
func (c *Client) UploadFile(ctx context.Context, localPath, objectName string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer func() { _ = f.Close() }()

	w := c.storage.Bucket(c.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = contentType(localPath)
	w.CacheControl = "no-cache, no-store, must-revalidate"

	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return fmt.Errorf("copy %s to %s: %w", localPath, URI(c.bucket, objectName), err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize %s: %w", URI(c.bucket, objectName), err)
	}
	c.logger.Debug("uploaded backup file", "file", localPath, "object", URI(c.bucket, objectName))
	return nil
}

// UploadDir uploads every regular file under localDir, keeping relative paths
// below prefix. It returns the gs:// URI of the uploaded prefix.
func (c *Client) UploadDir(ctx context.Context, localDir, prefix string) (string, error) {
	base := ObjectName(c.prefix, prefix)
	count := 0
	err := filepath.WalkDir(localDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(localDir, p)
		if err != nil {
			return err
		}
		if err := c.UploadFile(ctx, p, ObjectName(base, filepath.ToSlash(rel))); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return "", err
	}
	uri := URI(c.bucket, base)
	c.logger.Info("backup mirrored to GCS", "uri", uri, "files", count)
	return uri, nil
}

// ObjectName joins object name segments with forward slashes, dropping empty ones.
func ObjectName(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			kept = append(kept, p)
		}
	}
	return path.Join(kept...)
}

// URI formats a gs:// URI.
func URI(bucket, object string) string {
	if object == "" {
		return "gs://" + bucket
	}
	return "gs://" + bucket + "/" + object
}

func contentType(p string) string {
	if strings.EqualFold(filepath.Ext(p), ".json") {
		return "application/json"
	}
	return "application/octet-stream"
}
