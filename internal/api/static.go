package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

// RegisterSPA serves the frontend build from dir with an index.html fallback
// for client-side routes. API and WebSocket paths are never intercepted.
func RegisterSPA(router *gin.Engine, dir string) {
	if dir == "" {
		return
	}
	if _, err := os.Stat(dir); err != nil {
		return
	}
	router.Static("/static", dir)
	router.NoRoute(func(c *gin.Context) {
		path := strings.TrimPrefix(c.Request.URL.Path, "/")
		if strings.HasPrefix(path, "sessions") || strings.HasPrefix(path, "ws") ||
			strings.HasPrefix(path, "health") || strings.HasPrefix(path, "static") {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		index := filepath.Join(dir, "index.html")
		if _, err := os.Stat(index); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.File(index)
	})
}
