package service

import (
	"errors"
	"fmt"
)

var (
	ErrMissingFile     = errors.New("no file uploaded")
	ErrEmptyFile       = errors.New("empty filename")
	ErrCatalogMismatch = errors.New("class catalog does not match classifier output")
)

// DecodeError reports upload bytes that are not a recognisable image.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cannot identify image file: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ClassifierError reports a failure after normalization succeeded.
type ClassifierError struct {
	Err error
}

func (e *ClassifierError) Error() string {
	return fmt.Sprintf("inference failed: %v", e.Err)
}

func (e *ClassifierError) Unwrap() error {
	return e.Err
}
