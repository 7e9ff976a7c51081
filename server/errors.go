package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/krau/civicvision/service"
)

const (
	msgMissingFile = "No file uploaded"
	msgEmptyFile   = "Empty filename"
	msgInference   = "inference failed"
	msgTimeout     = "inference timed out"
	msgInternal    = "internal server error"
)

var frameworkDescriptions = map[int]string{
	http.StatusNotFound:              "The requested URL was not found on the server. If you entered the URL manually please check your spelling and try again.",
	http.StatusMethodNotAllowed:      "The method is not allowed for the requested URL.",
	http.StatusRequestEntityTooLarge: "The data value transmitted exceeds the capacity limit.",
}

// errorResponse maps a pipeline error to its status and JSON body.
func errorResponse(err error) (int, gin.H) {
	var (
		decodeErr     *service.DecodeError
		classifierErr *service.ClassifierError
	)
	switch {
	case errors.Is(err, service.ErrMissingFile):
		return http.StatusBadRequest, gin.H{"error": msgMissingFile}
	case errors.Is(err, service.ErrEmptyFile):
		return http.StatusBadRequest, gin.H{"error": msgEmptyFile}
	case errors.As(err, &decodeErr):
		return http.StatusBadRequest, gin.H{"error": decodeErr.Error()}
	case isBodyTooLarge(err):
		return http.StatusRequestEntityTooLarge, frameworkError(http.StatusRequestEntityTooLarge)
	case errors.As(err, &classifierErr):
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusInternalServerError, gin.H{"error": msgTimeout}
		}
		return http.StatusInternalServerError, gin.H{"error": msgInference}
	default:
		return http.StatusInternalServerError, gin.H{"error": msgInternal}
	}
}

func frameworkError(status int) gin.H {
	desc, ok := frameworkDescriptions[status]
	if !ok {
		desc = http.StatusText(status)
	}
	return gin.H{"error": desc, "code": status}
}

func isBodyTooLarge(err error) bool {
	var tooLarge *http.MaxBytesError
	return errors.As(err, &tooLarge)
}
