package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/krau/civicvision/service"
)

func TestErrorResponseMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"missing", service.ErrMissingFile, http.StatusBadRequest, "No file uploaded"},
		{"empty", service.ErrEmptyFile, http.StatusBadRequest, "Empty filename"},
		{"decode", &service.DecodeError{Err: errors.New("image: unknown format")}, http.StatusBadRequest, "cannot identify image file: image: unknown format"},
		{"classifier", &service.ClassifierError{Err: errors.New("/secret/model.onnx: bad")}, http.StatusInternalServerError, "inference failed"},
		{"timeout", &service.ClassifierError{Err: context.DeadlineExceeded}, http.StatusInternalServerError, "inference timed out"},
		{"too large", fmt.Errorf("multipart: %w", &http.MaxBytesError{Limit: 10}), http.StatusRequestEntityTooLarge, frameworkDescriptions[http.StatusRequestEntityTooLarge]},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := errorResponse(tc.err)
			if status != tc.status {
				t.Errorf("expected status %d, got %d", tc.status, status)
			}
			if body["error"] != tc.msg {
				t.Errorf("expected message %q, got %q", tc.msg, body["error"])
			}
		})
	}
}

func TestFrameworkErrorFallsBackToStatusText(t *testing.T) {
	body := frameworkError(http.StatusTeapot)
	if body["code"] != http.StatusTeapot || body["error"] != http.StatusText(http.StatusTeapot) {
		t.Fatalf("unexpected body %v", body)
	}
}
