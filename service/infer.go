package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"
)

// confidenceScale rounds confidences to four decimal places.
const confidenceScale = 1e4

// Predictor drives one upload through normalization, classification and
// label lookup. It is safe for concurrent use when its Classifier is.
type Predictor struct {
	normalizer *Normalizer
	classifier Classifier
	catalog    Catalog
	cache      ResultCache
	cacheSalt  []byte
	namespace  string
	logger     *zap.Logger
}

type Option func(*Predictor)

// WithCache enables result caching. namespace identifies the loaded model;
// the predictor adds its own normalizer settings and catalog, so a change
// to any of them never serves a result computed under the old setup.
func WithCache(cache ResultCache, namespace string) Option {
	return func(p *Predictor) {
		p.cache = cache
		p.namespace = namespace
	}
}

// NewPredictor wires the pipeline. When the classifier reports its output
// length, a catalog of a different length is rejected here so a mislabelled
// service never starts.
func NewPredictor(normalizer *Normalizer, classifier Classifier, catalog Catalog, logger *zap.Logger, opts ...Option) (*Predictor, error) {
	if normalizer == nil || classifier == nil {
		return nil, errors.New("normalizer and classifier are required")
	}
	if len(catalog) == 0 {
		return nil, fmt.Errorf("%w: catalog is empty", ErrCatalogMismatch)
	}
	if sized, ok := classifier.(SizedClassifier); ok {
		if err := catalog.Check(sized.OutputLen()); err != nil {
			return nil, err
		}
	}
	p := &Predictor{
		normalizer: normalizer,
		classifier: classifier,
		catalog:    catalog,
		logger:     logger.Named("predictor"),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.cache != nil {
		p.cacheSalt = cacheSalt(p.namespace, normalizer.Fingerprint(), catalog)
	}
	return p, nil
}

func cacheSalt(namespace, fingerprint string, catalog Catalog) []byte {
	sum := sha256.Sum256([]byte(namespace + "\x00" + fingerprint + "\x00" + strings.Join(catalog, "\n")))
	return sum[:]
}

func (p *Predictor) cacheKey(raw []byte) string {
	h := sha256.New()
	h.Write(p.cacheSalt)
	h.Write(raw)
	return hex.EncodeToString(h.Sum(nil))
}

// PredictUpload validates the upload before any decoding or inference.
func (p *Predictor) PredictUpload(ctx context.Context, upload *UploadedImage) (*PredictionResult, error) {
	if upload == nil {
		return nil, ErrMissingFile
	}
	if upload.Filename == "" || len(upload.Data) == 0 {
		return nil, ErrEmptyFile
	}
	return p.Predict(ctx, upload.Data)
}

func (p *Predictor) Predict(ctx context.Context, raw []byte) (*PredictionResult, error) {
	var key string
	if p.cache != nil {
		key = p.cacheKey(raw)
		cached, ok, err := p.cache.Get(ctx, key)
		if err != nil {
			p.logger.Warn("result cache read failed", zap.Error(err))
		} else if ok {
			return cached, nil
		}
	}

	tensor, err := p.normalizer.Normalize(raw)
	if err != nil {
		return nil, err
	}

	probs, err := p.classify(ctx, tensor)
	if err != nil {
		p.logger.Error("classifier invocation failed", zap.Error(err))
		return nil, &ClassifierError{Err: err}
	}

	idx, confidence, err := p.top(probs)
	if err != nil {
		p.logger.Error("unusable classifier output", zap.Error(err), zap.Int("outputs", len(probs)))
		return nil, &ClassifierError{Err: err}
	}

	result := &PredictionResult{
		Label:      p.catalog[idx],
		Confidence: math.Round(float64(confidence)*confidenceScale) / confidenceScale,
	}

	if p.cache != nil {
		if err := p.cache.Set(ctx, key, result); err != nil {
			p.logger.Warn("result cache write failed", zap.Error(err))
		}
	}
	return result, nil
}

func (p *Predictor) classify(ctx context.Context, tensor *ImageTensor) (probs []float32, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("classifier panic: %v", r)
		}
	}()
	return p.classifier.Classify(ctx, tensor)
}

// top returns the index and value of the maximum probability. Ties go to
// the lowest index.
func (p *Predictor) top(probs []float32) (int, float32, error) {
	if len(probs) != len(p.catalog) {
		return 0, 0, fmt.Errorf("%w: got %d outputs for %d labels", ErrCatalogMismatch, len(probs), len(p.catalog))
	}
	maxIdx := 0
	maxVal := probs[0]
	for i, v := range probs {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return 0, 0, fmt.Errorf("non-finite probability at index %d", i)
		}
		if v > maxVal {
			maxVal = v
			maxIdx = i
		}
	}
	return maxIdx, maxVal, nil
}
