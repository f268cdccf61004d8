package middleware

import (
	"github.com/gin-gonic/gin"
)

const (
	responseMetaKey = "response_meta"
	cacheHeader     = "X-Cache"
)

// SetCacheHit marks whether the response was served from the read cache. It
// sets the X-Cache header and a cache_hit entry in the response meta.
func SetCacheHit(c *gin.Context, hit bool) {
	if hit {
		c.Header(cacheHeader, "HIT")
	} else {
		c.Header(cacheHeader, "MISS")
	}
	meta := ensureMeta(c)
	meta["cache_hit"] = hit
}

// ExtractMeta returns the metadata collected for the current response, or nil.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return nil
	}
	if meta, exists := c.Get(responseMetaKey); exists {
		if typed, ok := meta.(map[string]interface{}); ok {
			return typed
		}
	}
	return nil
}

func ensureMeta(c *gin.Context) map[string]interface{} {
	if meta := ExtractMeta(c); meta != nil {
		return meta
	}
	meta := make(map[string]interface{})
	c.Set(responseMetaKey, meta)
	return meta
}
