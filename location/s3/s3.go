// Package s3 implements a sync location under a prefix of an S3 bucket.
//
// S3 has no directories. A directory exists when some key lies below it or
// when a zero-byte marker object "<dir>/" exists; markers are written for
// every copied directory so empty directories survive a round trip. The
// content hash of an object is the SHA-256 stored in its metadata at upload
// time. Objects uploaded by other tools have no such metadata and report
// "unknown:<etag>", which never matches a real hash, so they are recopied.
package s3

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/gabriel-vasile/mimetype"

	"github.com/input-output-hk/catalyst-forge-libs/contentsync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/contentsync/fs"
	"github.com/input-output-hk/catalyst-forge-libs/contentsync/fs/billy"
	"github.com/input-output-hk/catalyst-forge-libs/contentsync/location"
)

const (
	// HashMetadataKey is the user metadata key holding the content hash.
	HashMetadataKey = "sha256"

	// UnknownHashPrefix prefixes the ETag of objects without hash metadata.
	UnknownHashPrefix = "unknown:"

	// maxDeleteBatch is the S3 limit of keys per DeleteObjects request.
	maxDeleteBatch = 1000
)

// Location is a key prefix in a bucket.
type Location struct {
	api    API
	bucket string
	prefix string
	fs     fs.Filesystem
	logger *slog.Logger
}

// Option configures a Location.
type Option func(*Location)

// WithLocalFS sets the filesystem uploads are read from. Defaults to the
// native filesystem.
func WithLocalFS(fsys fs.Filesystem) Option {
	return func(l *Location) {
		l.fs = fsys
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Location) {
		l.logger = logger
	}
}

var _ location.Location = (*Location)(nil)

// New returns a location for prefix in bucket. Leading and trailing slashes
// of prefix are ignored; an empty prefix is the whole bucket.
func New(api API, bucket, prefix string, opts ...Option) (*Location, error) {
	if bucket == "" {
		return nil, errors.NewError(errors.CodeInvalidInput, "new s3 location",
			fmt.Errorf("%w: bucket name cannot be empty", errors.ErrInvalidInput))
	}
	l := &Location{
		api:    api,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		fs:     billy.NewBaseOSFS(),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// String implements location.Location.
func (l *Location) String() string {
	return "s3://" + path.Join(l.bucket, l.prefix)
}

// FullPath implements location.Location. The result is an object key
// without a trailing slash; the empty string is the bucket root.
func (l *Location) FullPath(relativePath string) string {
	return strings.Trim(path.Join(l.prefix, relativePath), "/")
}

// keyPrefix returns the prefix every key of the location starts with.
func (l *Location) keyPrefix() string {
	if l.prefix == "" {
		return ""
	}
	return l.prefix + "/"
}

// listKeys returns every key below keyPrefix with its ETag.
func (l *Location) listKeys(ctx context.Context, keyPrefix string) ([]types.Object, error) {
	var objects []types.Object
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(l.bucket),
		Prefix: aws.String(keyPrefix),
	}
	for {
		out, err := l.api.ListObjectsV2(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to list s3://%s/%s: %w", l.bucket, keyPrefix, err)
		}
		objects = append(objects, out.Contents...)
		if !aws.ToBool(out.IsTruncated) || out.NextContinuationToken == nil {
			return objects, nil
		}
		input.ContinuationToken = out.NextContinuationToken
	}
}

// ListDirectories implements location.Location.
func (l *Location) ListDirectories(ctx context.Context) ([]string, error) {
	objects, err := l.listKeys(ctx, l.keyPrefix())
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	for _, obj := range objects {
		rel := strings.TrimPrefix(aws.ToString(obj.Key), l.keyPrefix())
		dir := path.Dir(rel)
		if strings.HasSuffix(rel, "/") {
			dir = strings.TrimSuffix(rel, "/")
		}
		for dir != "." && dir != "" && !seen[dir] {
			seen[dir] = true
			dir = path.Dir(dir)
		}
	}

	dirs := make([]string, 0, len(seen))
	for dir := range seen {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	return dirs, nil
}

// ListFileHashes implements location.Location.
func (l *Location) ListFileHashes(ctx context.Context) ([]location.FileHash, error) {
	objects, err := l.listKeys(ctx, l.keyPrefix())
	if err != nil {
		return nil, err
	}

	var hashes []location.FileHash
	for _, obj := range objects {
		key := aws.ToString(obj.Key)
		if strings.HasSuffix(key, "/") {
			continue
		}
		head, err := l.api.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(l.bucket),
			Key:    aws.String(key),
		})
		if isNotFound(err) {
			l.logger.Debug("Object removed while listing", "key", key)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read metadata of s3://%s/%s: %w", l.bucket, key, err)
		}
		hash := head.Metadata[HashMetadataKey]
		if hash == "" {
			hash = UnknownHashPrefix + strings.Trim(aws.ToString(head.ETag), `"`)
			l.logger.Debug("Object has no hash metadata", "key", key, "hash", hash)
		}
		hashes = append(hashes, location.FileHash{
			Path: strings.TrimPrefix(key, l.keyPrefix()),
			Hash: hash,
		})
	}
	return hashes, nil
}

// isNotFound reports whether err is an S3 "no such object" response.
func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if !stderrors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "NotFound", "NoSuchKey":
		return true
	}
	return false
}

// Copy implements location.Location. destinationDir is a key produced by FullPath.
func (l *Location) Copy(ctx context.Context, sourcePath, destinationDir string, recursive bool) error {
	key := joinKey(destinationDir, path.Base(sourcePath))
	if !recursive {
		return l.putFile(ctx, sourcePath, key)
	}

	err := l.fs.Walk(sourcePath, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(filepath.ToSlash(p), sourcePath), "/")
		target := joinKey(key, rel)
		switch {
		case info.IsDir():
			return l.putMarker(ctx, target)
		case info.Mode().IsRegular():
			return l.putFile(ctx, p, target)
		default:
			return nil
		}
	})
	if err != nil {
		return fmt.Errorf("failed to copy %s to s3://%s/%s: %w", sourcePath, l.bucket, key, err)
	}
	return nil
}

func joinKey(dir, name string) string {
	return strings.Trim(path.Join(dir, name), "/")
}

func (l *Location) putFile(ctx context.Context, localPath, key string) error {
	data, err := l.fs.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", localPath, err)
	}
	sum := sha256.Sum256(data)

	_, err = l.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(l.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(mimetype.Detect(data).String()),
		Metadata:      map[string]string{HashMetadataKey: hex.EncodeToString(sum[:])},
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s to s3://%s/%s: %w", localPath, l.bucket, key, err)
	}
	l.logger.Debug("Uploaded object", "source", localPath, "key", key, "bytes", len(data))
	return nil
}

func (l *Location) putMarker(ctx context.Context, dirKey string) error {
	_, err := l.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(l.bucket),
		Key:           aws.String(dirKey + "/"),
		Body:          bytes.NewReader(nil),
		ContentLength: aws.Int64(0),
	})
	if err != nil {
		return fmt.Errorf("failed to create directory marker s3://%s/%s/: %w", l.bucket, dirKey, err)
	}
	return nil
}

// MakeDir implements location.Location by writing a directory marker.
func (l *Location) MakeDir(ctx context.Context, p string) error {
	return l.putMarker(ctx, strings.Trim(p, "/"))
}

// Delete implements location.Location. A recursive delete removes every
// object below the directory along with its marker.
func (l *Location) Delete(ctx context.Context, p string, recursive bool) error {
	keys := []string{p}
	if recursive {
		objects, err := l.listKeys(ctx, p+"/")
		if err != nil {
			return err
		}
		keys = keys[:0]
		for _, obj := range objects {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}

	for start := 0; start < len(keys); start += maxDeleteBatch {
		end := min(start+maxDeleteBatch, len(keys))
		if err := l.deleteBatch(ctx, keys[start:end]); err != nil {
			return err
		}
	}
	l.logger.Debug("Deleted objects", "path", p, "recursive", recursive, "count", len(keys))
	return nil
}

func (l *Location) deleteBatch(ctx context.Context, keys []string) error {
	ids := make([]types.ObjectIdentifier, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, types.ObjectIdentifier{Key: aws.String(key)})
	}
	out, err := l.api.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(l.bucket),
		Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
	})
	if err != nil {
		return fmt.Errorf("failed to delete objects from s3://%s: %w", l.bucket, err)
	}
	if len(out.Errors) > 0 {
		first := out.Errors[0]
		return errors.NewPathError(errors.CodeExecutionFailed, "delete objects", aws.ToString(first.Key),
			fmt.Errorf("%d of %d deletes failed: %s: %s",
				len(out.Errors), len(keys), aws.ToString(first.Code), aws.ToString(first.Message)))
	}
	return nil
}

// Close implements location.Location. The S3 client holds no connection
// that needs releasing.
func (l *Location) Close() error {
	return nil
}
