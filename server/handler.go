package server

import (
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/krau/civicvision/logging"
	"github.com/krau/civicvision/service"
)

// Predictor is the inference pipeline behind POST /predict.
type Predictor interface {
	PredictUpload(ctx context.Context, upload *service.UploadedImage) (*service.PredictionResult, error)
}

type Handler struct {
	predictor Predictor
	logger    *zap.Logger
	timeout   time.Duration
}

func NewHandler(predictor Predictor, logger *zap.Logger, timeout time.Duration) *Handler {
	return &Handler{
		predictor: predictor,
		logger:    logger.Named("handler"),
		timeout:   timeout,
	}
}

func (h *Handler) Predict(c *gin.Context) {
	log := logging.WithRequest(h.logger, "predict", c.GetString(requestIDKey))

	upload, err := readUpload(c)
	if err == nil {
		ctx := c.Request.Context()
		if h.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, h.timeout)
			defer cancel()
		}
		var result *service.PredictionResult
		result, err = h.predictor.PredictUpload(ctx, upload)
		if err == nil {
			log.Debug("prediction served",
				zap.String("filename", upload.Filename),
				zap.String("predicted_class", result.Label),
				zap.Float64("confidence", result.Confidence))
			c.JSON(http.StatusOK, result)
			return
		}
	}

	status, body := errorResponse(err)
	if status >= http.StatusInternalServerError {
		log.Error("prediction failed", zap.Int("status", status), zap.Error(err))
	} else {
		log.Info("prediction rejected", zap.Int("status", status), zap.Error(err))
	}
	c.JSON(status, body)
}

// readUpload streams the multipart body and returns the first part named
// "file" that carries a filename parameter. A "file" part without one is a
// plain text field, not an upload. (nil, nil) means no file part was sent,
// so that the predictor reports the missing upload itself.
func readUpload(c *gin.Context) (*service.UploadedImage, error) {
	reader, err := c.Request.MultipartReader()
	if err != nil {
		return nil, nil
	}
	for {
		part, err := reader.NextPart()
		if err != nil {
			if isBodyTooLarge(err) {
				return nil, err
			}
			return nil, nil
		}
		if part.FormName() != "file" || !hasFilenameParam(part) {
			part.Close()
			continue
		}

		data, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			if isBodyTooLarge(err) {
				return nil, err
			}
			return nil, fmt.Errorf("failed to read uploaded file: %w", err)
		}
		return &service.UploadedImage{Filename: part.FileName(), Data: data}, nil
	}
}

// hasFilenameParam reports whether the part's Content-Disposition names a
// filename at all, including filename="" from an empty file input.
func hasFilenameParam(part *multipart.Part) bool {
	_, params, err := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
	if err != nil {
		return false
	}
	_, ok := params["filename"]
	return ok
}

func HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}
