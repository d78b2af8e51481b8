package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// RequestDecompressionMiddleware transparently decompresses gzipped request
// bodies.
//
// Some HTTP clients send message payloads with Content-Encoding: gzip.
// net/http does not automatically decode request bodies, so handlers that
// expect JSON would otherwise see compressed bytes and fail with confusing
// 400/no-body errors.
func RequestDecompressionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		enc := strings.ToLower(strings.TrimSpace(c.GetHeader("Content-Encoding")))
		if enc == "" || !strings.Contains(enc, "gzip") {
			c.Next()
			return
		}

		// Cap against gzip bombs; chat payloads are far below this.
		const maxDecompressedBytes = 16 << 20 // 16MiB

		gzr, err := gzip.NewReader(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"ok":    false,
				"error": "invalid gzip request body",
			})
			return
		}
		defer gzr.Close()

		decoded, err := io.ReadAll(io.LimitReader(gzr, maxDecompressedBytes+1))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"ok":    false,
				"error": "failed to decompress gzip request body",
			})
			return
		}
		if int64(len(decoded)) > maxDecompressedBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"ok":    false,
				"error": "decompressed request body too large",
			})
			return
		}

		c.Request.Body = io.NopCloser(bytes.NewReader(decoded))
		c.Request.ContentLength = int64(len(decoded))
		c.Request.Header.Del("Content-Encoding")
		c.Next()
	}
}
