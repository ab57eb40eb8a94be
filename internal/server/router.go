package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"filedock/internal/domain/file"
	"filedock/internal/middleware"
	"filedock/internal/pkg/response"
	"filedock/internal/storage/blob"
	"filedock/internal/web"
)

const healthTimeout = 2 * time.Second

// NewRouter builds the gin engine with every public route.
func NewRouter(d *Deps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.ErrorLogger(d.Logger))
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(d.Config.CORS.AllowedOrigins))

	r.GET("/", web.Index)
	r.GET("/healthz", healthz(d.Repo))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	base := strings.TrimSuffix(d.Config.Upload.PublicBase, "/")
	r.GET(base+"/:name", serveBlob(d.Blobs))
	r.HEAD(base+"/:name", serveBlob(d.Blobs))

	fileHandler := file.NewHandler(d.Files, file.HandlerOptions{
		MaxFiles:      d.Config.Upload.MaxFiles,
		UploadTimeout: d.Config.Upload.Timeout,
	})
	api := r.Group("/api")
	{
		file.RegisterRoutes(api, fileHandler)
	}

	return r
}

func healthz(repo file.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()

		if err := repo.Ping(ctx); err != nil {
			_ = c.Error(err)
			response.Error(c, http.StatusServiceUnavailable, "metadata store unavailable")
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// serveBlob serves committed blobs by stored name. Temp files and anything
// that is not a plain blob name are reported as missing.
func serveBlob(blobs *blob.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")
		if blob.ValidateName(name) != nil {
			response.Error(c, http.StatusNotFound, "File not found")
			return
		}

		f, err := blobs.Open(name)
		if errors.Is(err, blob.ErrAbsent) {
			response.Error(c, http.StatusNotFound, "File not found")
			return
		}
		if err != nil {
			_ = c.Error(err)
			response.Error(c, http.StatusInternalServerError, "Failed to read file")
			return
		}
		defer f.Close()

		modTime := time.Time{}
		if info, err := f.Stat(); err == nil {
			modTime = info.ModTime()
		}
		http.ServeContent(c.Writer, c.Request, name, modTime, f)
	}
}
