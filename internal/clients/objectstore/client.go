// Package objectstore provides the S3 client for the planning-document
// bucket: windowed enumeration, counting, and size-capped retrieval.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cenkalti/backoff/v4"

	"github.com/planhound/planhound/internal/common"
	"github.com/planhound/planhound/internal/interfaces"
	"github.com/planhound/planhound/internal/models"
)

const (
	// DefaultPageSize matches the S3 ListObjectsV2 maximum.
	DefaultPageSize = 1000

	listMaxRetries  = 5
	listMaxInterval = 30 * time.Second
)

// ErrOversizeObject is returned by Fetch for objects above the hard size
// cap; the body is never read.
var ErrOversizeObject = errors.New("object exceeds size cap")

// s3API is the slice of the S3 client the package uses, extracted so tests
// can substitute a stub.
type s3API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Client implements the ObjectStoreClient interface over S3.
type Client struct {
	api            s3API
	bucket         string
	prefix         string
	maxObjectBytes int64
	streamBytes    int64
	logger         *common.Logger
	folders        *folderCache
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithAPI replaces the underlying S3 API (tests).
func WithAPI(api s3API) ClientOption {
	return func(c *Client) {
		c.api = api
	}
}

// NewClient creates a new object-store client from configuration.
func NewClient(ctx context.Context, cfg *common.ObjectStoreConfig, opts ...ClientOption) (*Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // MinIO/R2 compatibility
		}
	})

	c := &Client{
		api:            api,
		bucket:         cfg.Bucket,
		prefix:         cfg.Prefix,
		maxObjectBytes: cfg.MaxObjectBytes(),
		streamBytes:    cfg.StreamToDiskBytes(),
		logger:         common.NewSilentLogger(),
	}
	c.folders = newFolderCache(cfg.FolderCacheTTL())

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// ListPage returns one page of eligible entries.
//
// The continuation token takes precedence when set; otherwise StartAfterKey
// resumes by key comparison (S3 StartAfter yields keys strictly greater than
// the given key, so the boundary document is not reprocessed).
func (c *Client) ListPage(ctx context.Context, req interfaces.ListPageRequest) (*interfaces.ListPageResult, error) {
	pageSize := req.PageSize
	if pageSize <= 0 || pageSize > DefaultPageSize {
		pageSize = DefaultPageSize
	}

	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(c.bucket),
		Prefix:  aws.String(c.prefix + "/"),
		MaxKeys: aws.Int32(pageSize),
	}
	if req.ContinuationToken != "" {
		input.ContinuationToken = aws.String(req.ContinuationToken)
	} else if req.StartAfterKey != "" {
		input.StartAfter = aws.String(req.StartAfterKey)
	}

	out, err := c.listWithRetry(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}

	result := &interfaces.ListPageResult{
		Done: out.IsTruncated == nil || !*out.IsTruncated,
	}
	if out.NextContinuationToken != nil {
		result.NextToken = *out.NextContinuationToken
	}

	for _, obj := range out.Contents {
		if obj.Key == nil || obj.LastModified == nil {
			continue
		}
		info, ok := c.eligible(*obj.Key, aws.ToInt64(obj.Size), *obj.LastModified, req.Window)
		if !ok {
			continue
		}
		result.Entries = append(result.Entries, info)
	}

	return result, nil
}

// CountDocuments walks the full prefix applying the same predicate ListPage
// uses, so the total is authoritative.
func (c *Client) CountDocuments(ctx context.Context, window interfaces.TimeWindow) (int, error) {
	total := 0
	token := ""
	for {
		page, err := c.ListPage(ctx, interfaces.ListPageRequest{
			Window:            window,
			ContinuationToken: token,
			PageSize:          DefaultPageSize,
		})
		if err != nil {
			return 0, err
		}
		total += len(page.Entries)
		if page.Done {
			return total, nil
		}
		token = page.NextToken
	}
}

// Head returns the object size.
func (c *Client) Head(ctx context.Context, key string) (int64, error) {
	out, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to head object %s: %w", key, err)
	}
	return aws.ToInt64(out.ContentLength), nil
}

// Fetch retrieves an object body. Objects above the streaming threshold are
// spilled to a temp file; the cleanup function removes it and must be called
// on every exit path. Objects above the hard cap return ErrOversizeObject
// without a body read. When HEAD fails the fetch proceeds optimistically but
// the cap is still enforced during the body read.
func (c *Client) Fetch(ctx context.Context, key string) (*models.FetchedDocument, func(), error) {
	noop := func() {}

	size, headErr := c.Head(ctx, key)
	if headErr == nil && size > c.maxObjectBytes {
		return nil, noop, fmt.Errorf("%w: %s is %d bytes (cap %d)", ErrOversizeObject, key, size, c.maxObjectBytes)
	}
	if headErr != nil {
		c.logger.Debug().Str("key", key).Err(headErr).Msg("HEAD failed, fetching optimistically")
		size = 0
	}

	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, noop, fmt.Errorf("failed to get object %s: %w", key, err)
	}
	defer out.Body.Close()

	doc := &models.FetchedDocument{
		Key:    key,
		Format: formatForKey(key),
		Size:   size,
	}

	// Cap enforcement during the read: allow one extra byte so an over-cap
	// body is detectable.
	limited := io.LimitReader(out.Body, c.maxObjectBytes+1)

	if size > c.streamBytes {
		tmp, err := os.CreateTemp("", "planhound-doc-*")
		if err != nil {
			return nil, noop, fmt.Errorf("failed to create temp file: %w", err)
		}
		cleanup := func() { os.Remove(tmp.Name()) }

		n, err := io.Copy(tmp, limited)
		closeErr := tmp.Close()
		if err != nil {
			cleanup()
			return nil, noop, fmt.Errorf("failed to stream object %s: %w", key, err)
		}
		if closeErr != nil {
			cleanup()
			return nil, noop, fmt.Errorf("failed to close temp file: %w", closeErr)
		}
		if n > c.maxObjectBytes {
			cleanup()
			return nil, noop, fmt.Errorf("%w: %s body exceeded cap during read", ErrOversizeObject, key)
		}

		doc.Path = tmp.Name()
		doc.Size = n
		return doc, cleanup, nil
	}

	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, noop, fmt.Errorf("failed to read object %s: %w", key, err)
	}
	if int64(len(data)) > c.maxObjectBytes {
		return nil, noop, fmt.Errorf("%w: %s body exceeded cap during read", ErrOversizeObject, key)
	}

	doc.Data = data
	doc.Size = int64(len(data))
	return doc, noop, nil
}

// eligible applies the full predicate: extension, project-layout key shape,
// and modification window.
func (c *Client) eligible(key string, size int64, lastModified time.Time, window interfaces.TimeWindow) (models.ObjectInfo, bool) {
	projectID, fileName, ok := ParseDocumentKey(c.prefix, key)
	if !ok {
		return models.ObjectInfo{}, false
	}
	if !window.Contains(lastModified) {
		return models.ObjectInfo{}, false
	}
	return models.ObjectInfo{
		Key:          key,
		Size:         size,
		LastModified: lastModified,
		ProjectID:    projectID,
		FileName:     fileName,
	}, true
}

// listWithRetry retries transient listing errors in place with bounded
// exponential backoff. Permanent failure surfaces to the caller as fatal.
func (c *Client) listWithRetry(ctx context.Context, input *s3.ListObjectsV2Input) (*s3.ListObjectsV2Output, error) {
	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = listMaxInterval

	var out *s3.ListObjectsV2Output
	operation := func() error {
		var err error
		out, err = c.api.ListObjectsV2(ctx, input)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}

	err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(bo, listMaxRetries), ctx))
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Ensure Client implements ObjectStoreClient
var _ interfaces.ObjectStoreClient = (*Client)(nil)
