package onnx

import (
	"context"
	"errors"
	"fmt"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/krau/civicvision/service"
)

type Options struct {
	ModelPath      string
	Width          int
	Height         int
	Replicas       int
	IntraOpThreads int
}

// replica is one session with its bound input and output buffers. A replica
// is used by a single request at a time.
type replica struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

// run feeds input through the session and returns a copy of the output.
func (r *replica) run(input []float32) ([]float32, error) {
	copy(r.input.GetData(), input)
	if err := r.session.Run(); err != nil {
		return nil, err
	}
	out := r.output.GetData()
	probs := make([]float32, len(out))
	copy(probs, out)
	return probs, nil
}

func (r *replica) destroy() {
	if r.session != nil {
		r.session.Destroy()
	}
	if r.input != nil {
		r.input.Destroy()
	}
	if r.output != nil {
		r.output.Destroy()
	}
}

// Classifier runs an NHWC image model through a fixed pool of session replicas.
type Classifier struct {
	pool      chan *replica
	replicas  int
	shape     [4]int64
	outputLen int
	run       func(r *replica, input []float32) ([]float32, error)
}

var _ service.SizedClassifier = (*Classifier)(nil)

// NewClassifier loads the model, verifies its input matches (?, H, W, 3) and
// builds opts.Replicas independent sessions.
func NewClassifier(opts Options) (*Classifier, error) {
	if opts.Replicas < 1 {
		opts.Replicas = 1
	}
	inputs, outputs, err := ort.GetInputOutputInfo(opts.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model %s: %w", opts.ModelPath, err)
	}
	if len(inputs) != 1 || len(outputs) < 1 {
		return nil, fmt.Errorf("expected one input and at least one output, got %d and %d", len(inputs), len(outputs))
	}
	if err := checkInputShape(inputs[0].Dimensions, opts.Height, opts.Width); err != nil {
		return nil, err
	}
	outputLen, err := lastDim(outputs[0].Dimensions)
	if err != nil {
		return nil, err
	}

	c := &Classifier{
		pool:      make(chan *replica, opts.Replicas),
		replicas:  opts.Replicas,
		shape:     [4]int64{1, int64(opts.Height), int64(opts.Width), service.Channels},
		outputLen: outputLen,
		run:       (*replica).run,
	}
	for i := 0; i < opts.Replicas; i++ {
		r, err := c.newReplica(opts, inputs[0].Name, outputs[0].Name)
		if err != nil {
			c.drain(i)
			return nil, fmt.Errorf("failed to create session replica %d: %w", i, err)
		}
		c.pool <- r
	}
	return c, nil
}

func (c *Classifier) newReplica(opts Options, inputName, outputName string) (*replica, error) {
	sessOpts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer sessOpts.Destroy()
	if opts.IntraOpThreads > 0 {
		if err := sessOpts.SetIntraOpNumThreads(opts.IntraOpThreads); err != nil {
			return nil, fmt.Errorf("failed to set intra-op threads: %w", err)
		}
	}

	r := &replica{}
	r.input, err = ort.NewEmptyTensor[float32](ort.NewShape(c.shape[:]...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	r.output, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(c.outputLen)))
	if err != nil {
		r.destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	r.session, err = ort.NewAdvancedSession(
		opts.ModelPath,
		[]string{inputName},
		[]string{outputName},
		[]ort.Value{r.input},
		[]ort.Value{r.output},
		sessOpts,
	)
	if err != nil {
		r.destroy()
		return nil, fmt.Errorf("failed to create ONNX Runtime session: %w", err)
	}
	return r, nil
}

func (c *Classifier) OutputLen() int {
	return c.outputLen
}

type classifyResult struct {
	probs []float32
	err   error
}

// Classify borrows a replica, runs it and copies the output. The replica is
// returned only after its run finishes, even if ctx expires first.
func (c *Classifier) Classify(ctx context.Context, tensor *service.ImageTensor) ([]float32, error) {
	if tensor == nil || tensor.Shape != c.shape || len(tensor.Data) != int(c.shape[1]*c.shape[2]*c.shape[3]) {
		return nil, fmt.Errorf("unexpected tensor shape, want %v", c.shape)
	}

	var r *replica
	select {
	case r = <-c.pool:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	done := make(chan classifyResult, 1)
	go func() {
		defer func() { c.pool <- r }()
		defer func() {
			if p := recover(); p != nil {
				done <- classifyResult{err: fmt.Errorf("session panic: %v", p)}
			}
		}()
		probs, err := c.run(r, tensor.Data)
		done <- classifyResult{probs: probs, err: err}
	}()

	select {
	case res := <-done:
		return res.probs, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close waits for in-flight runs and destroys every replica.
func (c *Classifier) Close() {
	c.drain(c.replicas)
}

func (c *Classifier) drain(n int) {
	for i := 0; i < n; i++ {
		r := <-c.pool
		r.destroy()
	}
}

func checkInputShape(dims ort.Shape, height, width int) error {
	if len(dims) != 4 {
		return fmt.Errorf("model input must be rank 4 NHWC, got %v", dims)
	}
	want := []int64{int64(height), int64(width), service.Channels}
	for i, w := range want {
		if d := dims[i+1]; d > 0 && d != w {
			return fmt.Errorf("model input %v does not accept (1, %d, %d, %d)", dims, height, width, service.Channels)
		}
	}
	if dims[0] > 1 {
		return fmt.Errorf("model input batch dimension %d is not 1 or dynamic", dims[0])
	}
	return nil
}

func lastDim(dims ort.Shape) (int, error) {
	if len(dims) == 0 {
		return 0, errors.New("model output has no dimensions")
	}
	n := dims[len(dims)-1]
	if n <= 0 {
		return 0, fmt.Errorf("model output %v has no fixed class dimension", dims)
	}
	return int(n), nil
}
