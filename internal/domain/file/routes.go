package file

import "github.com/gin-gonic/gin"

// RegisterRoutes registers the file API under r (mounted at /api).
// Paths are fixed for client compatibility.
func RegisterRoutes(r *gin.RouterGroup, h *Handler) {
	r.GET("/files", h.List)
	r.POST("/upload", h.Upload)
	r.DELETE("/files/:id", h.Delete)
	r.GET("/files/:id/download", h.Download)
}
