package handlers

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/snapclassify/internal/camera"
	"github.com/example/snapclassify/internal/classifier"
	"github.com/example/snapclassify/internal/failure"
	"github.com/example/snapclassify/internal/history"
	"github.com/example/snapclassify/internal/repository"
	"github.com/example/snapclassify/internal/result"
	"github.com/example/snapclassify/internal/source"
)

// MaxUploadSize is the largest accepted image upload.
const MaxUploadSize = source.MaxImageSize

// multipartOverhead leaves room for boundaries and part headers around the image.
const multipartOverhead = 1 << 20

// Pipeline is implemented by *source.Pipeline.
type Pipeline interface {
	Mode() source.Mode
	SetMode(mode source.Mode) error
	StartCamera(ctx context.Context) error
	FromFile(ctx context.Context, f source.File) (*classifier.Outcome, error)
	FromCamera(ctx context.Context) (*classifier.Outcome, error)
}

// Camera is implemented by *camera.Session.
type Camera interface {
	State() camera.State
	Stop()
	Frame(ctx context.Context) ([]byte, string, error)
}

// Results is implemented by *result.Model.
type Results interface {
	Snapshot() result.Snapshot
}

// Config is implemented by *settings.Store.
type Config interface {
	URL() string
	Save(ctx context.Context, url string) error
}

// History is implemented by *history.Recorder.
type History interface {
	Recent(ctx context.Context, limit int) ([]*repository.ClassificationLog, error)
	Summary(ctx context.Context) (*history.Summary, error)
}

// Dependencies groups what the routes need. History and WebSocket are optional.
type Dependencies struct {
	Pipeline  Pipeline
	Camera    Camera
	Results   Results
	Config    Config
	History   History
	WebSocket http.HandlerFunc
	Logger    *zap.Logger
}

type modeRequest struct {
	Mode source.Mode `json:"mode" binding:"required,oneof=upload camera"`
}

type configRequest struct {
	URL *string `json:"url" binding:"required"`
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, deps Dependencies) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("handlers")

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if deps.WebSocket != nil {
		router.GET("/ws", gin.WrapF(deps.WebSocket))
	}

	api := router.Group("/api")

	api.GET("/state", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"mode":   deps.Pipeline.Mode(),
			"camera": deps.Camera.State(),
			"result": deps.Results.Snapshot(),
		})
	})

	api.POST("/mode", func(c *gin.Context) {
		var req modeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be upload or camera"})
			return
		}
		if err := deps.Pipeline.SetMode(req.Mode); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"mode": deps.Pipeline.Mode(), "camera": deps.Camera.State()})
	})

	api.POST("/camera/start", func(c *gin.Context) {
		if err := deps.Pipeline.StartCamera(c.Request.Context()); err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"camera": deps.Camera.State()})
	})

	api.POST("/camera/stop", func(c *gin.Context) {
		deps.Camera.Stop()
		c.JSON(http.StatusOK, gin.H{"camera": deps.Camera.State()})
	})

	api.GET("/camera/frame", func(c *gin.Context) {
		if deps.Camera.State() != camera.StateActive {
			c.JSON(http.StatusConflict, gin.H{"error": "camera is not active"})
			return
		}
		data, mimeType, err := deps.Camera.Frame(c.Request.Context())
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.Header("Cache-Control", "no-store")
		c.Data(http.StatusOK, mimeType, data)
	})

	api.POST("/camera/capture", func(c *gin.Context) {
		out, err := deps.Pipeline.FromCamera(c.Request.Context())
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, outcomeResponse(out))
	})

	api.POST("/upload", func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadSize+multipartOverhead)

		header, err := c.FormFile("image")
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds upload limit"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
			return
		}
		if header.Size > MaxUploadSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds upload limit"})
			return
		}

		out, err := deps.Pipeline.FromFile(c.Request.Context(), uploadedFile{header: header})
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, outcomeResponse(out))
	})

	api.GET("/config", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"url": deps.Config.URL()})
	})

	api.PUT("/config", func(c *gin.Context) {
		var req configRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
			return
		}
		if err := deps.Config.Save(c.Request.Context(), *req.URL); err != nil {
			logger.Error("failed to save endpoint", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save settings"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"url": deps.Config.URL()})
	})

	api.GET("/history", func(c *gin.Context) {
		if deps.History == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "history is disabled"})
			return
		}
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		logs, err := deps.History.Recent(c.Request.Context(), limit)
		if err != nil {
			logger.Error("failed to load history", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
			return
		}
		entries := make([]gin.H, 0, len(logs))
		for _, log := range logs {
			entries = append(entries, gin.H{
				"request_id":     log.RequestID,
				"source":         log.Source,
				"endpoint":       log.Endpoint,
				"top_class":      log.TopClass,
				"top_confidence": log.TopConfidence,
				"predictions":    log.Predictions,
				"latency_ms":     log.LatencyMs,
				"sha1_hash":      log.SHA1Hash,
				"created_at":     log.CreatedAt,
			})
		}
		c.JSON(http.StatusOK, gin.H{"entries": entries})
	})

	api.GET("/history/summary", func(c *gin.Context) {
		if deps.History == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "history is disabled"})
			return
		}
		summary, err := deps.History.Summary(c.Request.Context())
		if err != nil {
			logger.Error("failed to summarise history", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to summarise history"})
			return
		}
		c.JSON(http.StatusOK, summary)
	})
}

type uploadedFile struct {
	header *multipart.FileHeader
}

func (f uploadedFile) Name() string        { return f.header.Filename }
func (f uploadedFile) ContentType() string { return f.header.Header.Get("Content-Type") }
func (f uploadedFile) Open() (io.ReadCloser, error) {
	return f.header.Open()
}

func outcomeResponse(out *classifier.Outcome) gin.H {
	body := gin.H{
		"request_id":  out.RequestID,
		"token":       out.Token,
		"endpoint":    out.Endpoint,
		"predictions": out.Predictions,
		"latency_ms":  out.Latency.Round(time.Millisecond).Milliseconds(),
	}
	if len(out.Predictions) > 0 {
		body["top"] = out.Predictions[0]
	}
	return body
}

func respondError(c *gin.Context, logger *zap.Logger, err error) {
	status := statusFor(err)
	kind := failure.KindOf(err)
	if status >= http.StatusInternalServerError {
		logger.Warn("request failed", zap.Error(err), zap.String("path", c.FullPath()), zap.Int("status", status))
	}
	c.JSON(status, gin.H{
		"error": failure.Message(err),
		"kind":  kind,
		"title": failure.Title(kind),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, failure.ErrStale),
		errors.Is(err, camera.ErrSessionBusy),
		errors.Is(err, camera.ErrSessionStopped):
		return http.StatusConflict
	}

	switch failure.KindOf(err) {
	case failure.KindConfiguration:
		return http.StatusPreconditionFailed
	case failure.KindValidation:
		return http.StatusUnsupportedMediaType
	case failure.KindPermission:
		return http.StatusForbidden
	case failure.KindDevice:
		return http.StatusServiceUnavailable
	case failure.KindNetwork, failure.KindServer:
		return http.StatusBadGateway
	case failure.KindServerReported, failure.KindEmptyResult:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
