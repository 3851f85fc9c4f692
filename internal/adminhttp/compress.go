package adminhttp

import (
	"encoding/json"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/zstd"
)

// jsonOrZstd writes v as JSON, transparently zstd-compressing the body
// when the client has advertised support for it (Accept-Encoding:
// zstd) — used for the bulk /api/stations listing, which can grow large
// on a ring with many stations.
func jsonOrZstd(c *gin.Context, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}

	if !strings.Contains(c.GetHeader("Accept-Encoding"), "zstd") {
		c.Data(200, "application/json", body)
		return
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		c.Data(200, "application/json", body)
		return
	}
	defer enc.Close()

	compressed := enc.EncodeAll(body, nil)
	c.Header("Content-Encoding", "zstd")
	c.Data(200, "application/json", compressed)
}
