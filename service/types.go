package service

import "context"

// Channels is the fixed colour depth of every ImageTensor.
const Channels = 3

// ImageTensor is a dense NHWC float32 batch of exactly one RGB image.
type ImageTensor struct {
	Shape [4]int64
	Data  []float32
}

func NewImageTensor(width, height int) *ImageTensor {
	return &ImageTensor{
		Shape: [4]int64{1, int64(height), int64(width), Channels},
		Data:  make([]float32, height*width*Channels),
	}
}

func (t *ImageTensor) Height() int { return int(t.Shape[1]) }
func (t *ImageTensor) Width() int  { return int(t.Shape[2]) }

// UploadedImage is the raw upload held for the duration of one request.
type UploadedImage struct {
	Filename string
	Data     []byte
}

type PredictionResult struct {
	Label      string  `json:"predicted_class"`
	Confidence float64 `json:"confidence"`
}

// Classifier maps an ImageTensor to a probability vector of fixed length.
// Implementations must be safe for concurrent use.
type Classifier interface {
	Classify(ctx context.Context, tensor *ImageTensor) ([]float32, error)
}

// SizedClassifier is a Classifier that knows its output length up front,
// which lets the catalog be checked before traffic is accepted.
type SizedClassifier interface {
	Classifier
	OutputLen() int
}
