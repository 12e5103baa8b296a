package classify

import (
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/planhound/planhound/internal/models"
)

// cacheSize bounds the decision cache. Entries are whole Classification
// values; eviction is plain LRU.
const cacheSize = 100

// cachePrefixLen is how much of the document text participates in the key.
// Planning documents that share their first kilobyte, target type, and
// project are duplicates for classification purposes (re-uploads, renamed
// copies).
const cachePrefixLen = 1000

type decisionCache struct {
	lru *lru.Cache[string, models.Classification]
}

func newDecisionCache() (*decisionCache, error) {
	c, err := lru.New[string, models.Classification](cacheSize)
	if err != nil {
		return nil, err
	}
	return &decisionCache{lru: c}, nil
}

// key derives the cache key from the text prefix, target type, and project.
func (c *decisionCache) key(text, targetType, projectID string) string {
	prefix := text
	if len(prefix) > cachePrefixLen {
		prefix = prefix[:cachePrefixLen]
	}

	h := sha256.New()
	h.Write([]byte(prefix))
	h.Write([]byte{0})
	h.Write([]byte(targetType))
	h.Write([]byte{0})
	h.Write([]byte(projectID))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *decisionCache) get(key string) (models.Classification, bool) {
	return c.lru.Get(key)
}

func (c *decisionCache) put(key string, cls models.Classification) {
	c.lru.Add(key, cls)
}
