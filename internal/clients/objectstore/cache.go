package objectstore

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/singleflight"
)

// folderCache caches the top-level project-folder enumeration for a short
// TTL. Concurrent refreshes coalesce onto one outstanding request via the
// single-flight group. The cache is process-scoped; there is no cross-worker
// sharing.
type folderCache struct {
	mu        sync.Mutex
	folders   []string
	fetchedAt time.Time
	ttl       time.Duration
	group     singleflight.Group
}

func newFolderCache(ttl time.Duration) *folderCache {
	return &folderCache{ttl: ttl}
}

// ListProjectFolders enumerates the top-level project folders under the
// configured prefix, served from the cache when fresh.
func (c *Client) ListProjectFolders(ctx context.Context) ([]string, error) {
	c.folders.mu.Lock()
	if !c.folders.fetchedAt.IsZero() && time.Since(c.folders.fetchedAt) < c.folders.ttl {
		cached := c.folders.folders
		c.folders.mu.Unlock()
		return cached, nil
	}
	c.folders.mu.Unlock()

	v, err, _ := c.folders.group.Do("folders", func() (interface{}, error) {
		folders, err := c.enumerateFolders(ctx)
		if err != nil {
			return nil, err
		}
		c.folders.mu.Lock()
		c.folders.folders = folders
		c.folders.fetchedAt = time.Now()
		c.folders.mu.Unlock()
		return folders, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

// enumerateFolders pages through the delimited listing collecting common
// prefixes (one per project folder).
func (c *Client) enumerateFolders(ctx context.Context) ([]string, error) {
	var folders []string
	var token *string

	for {
		input := &s3.ListObjectsV2Input{
			Bucket:            aws.String(c.bucket),
			Prefix:            aws.String(c.prefix + "/"),
			Delimiter:         aws.String("/"),
			MaxKeys:           aws.Int32(DefaultPageSize),
			ContinuationToken: token,
		}

		out, err := c.listWithRetry(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to enumerate project folders: %w", err)
		}

		for _, cp := range out.CommonPrefixes {
			if cp.Prefix == nil {
				continue
			}
			folder := strings.TrimSuffix(strings.TrimPrefix(*cp.Prefix, c.prefix+"/"), "/")
			if folder != "" {
				folders = append(folders, folder)
			}
		}

		if out.IsTruncated == nil || !*out.IsTruncated {
			return folders, nil
		}
		token = out.NextContinuationToken
	}
}
