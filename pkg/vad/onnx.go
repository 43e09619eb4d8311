//go:build vad

package vad

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// runtimeInitialized tracks whether the ONNX runtime has been initialized.
var (
	runtimeInitialized bool
	runtimeMu          sync.Mutex
)

// InitRuntime initializes the ONNX runtime environment.
// libraryPath can be empty to use auto-detection, or specify the path to libonnxruntime.so.
// This should be called once at application startup before creating any scorers.
func InitRuntime(libraryPath string) error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	if runtimeInitialized {
		return nil
	}

	if libraryPath == "" {
		libraryPath = findONNXRuntimeLibrary()
	}
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}

	runtimeInitialized = true
	return nil
}

// DestroyRuntime destroys the ONNX runtime environment.
// This should be called once at application shutdown.
func DestroyRuntime() error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	if !runtimeInitialized {
		return nil
	}

	if err := ort.DestroyEnvironment(); err != nil {
		return fmt.Errorf("failed to destroy ONNX runtime: %w", err)
	}

	runtimeInitialized = false
	return nil
}

func findONNXRuntimeLibrary() string {
	paths := []string{
		os.Getenv("ONNXRUNTIME_LIB"),
		"/usr/lib/libonnxruntime.so",
		"/usr/local/lib/libonnxruntime.so",
		"/opt/onnxruntime/lib/libonnxruntime.so",
		"/opt/homebrew/lib/libonnxruntime.dylib",
		"/usr/local/lib/libonnxruntime.dylib",
	}

	if ldPath := os.Getenv("LD_LIBRARY_PATH"); ldPath != "" {
		for _, dir := range filepath.SplitList(ldPath) {
			paths = append(paths, filepath.Join(dir, "libonnxruntime.so"))
		}
	}

	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// ONNXScorerConfig holds configuration for creating an ONNXScorer.
type ONNXScorerConfig struct {
	// The path to the SuperVAD ONNX model file to load.
	ModelPath string
	// Threads bounds intra-op parallelism. Defaults to 1.
	Threads int
}

// IsValid validates the scorer configuration.
func (c ONNXScorerConfig) IsValid() error {
	if c.ModelPath == "" {
		return fmt.Errorf("invalid ModelPath: should not be empty")
	}
	if c.Threads < 0 {
		return fmt.Errorf("invalid Threads: should not be negative")
	}
	return nil
}

// ONNXScorer runs the SuperVAD model. The model takes a float32 tensor named
// "input" shaped [1, WindowSize] and yields the speech probability as the
// first element of "output". The model is stateless; all context comes from
// the window itself.
type ONNXScorer struct {
	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
}

// NewONNXScorer loads the model. InitRuntime is called implicitly.
func NewONNXScorer(cfg ONNXScorerConfig) (*ONNXScorer, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := InitRuntime(""); err != nil {
		return nil, fmt.Errorf("ONNX runtime not initialized: %w", err)
	}

	threads := cfg.Threads
	if threads == 0 {
		threads = 1
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableAll); err != nil {
		return nil, fmt.Errorf("failed to set graph optimization level: %w", err)
	}
	if err := options.SetIntraOpNumThreads(threads); err != nil {
		return nil, fmt.Errorf("failed to set intra-op threads: %w", err)
	}
	if err := options.SetInterOpNumThreads(1); err != nil {
		return nil, fmt.Errorf("failed to set inter-op threads: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(
		cfg.ModelPath,
		[]string{"input"},
		[]string{"output"},
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &ONNXScorer{session: session}, nil
}

// Score implements Scorer.
func (s *ONNXScorer) Score(ctx context.Context, window []float32) (float32, error) {
	if len(window) != WindowSize {
		return 0, fmt.Errorf("invalid window length, expected %d samples, got %d", WindowSize, len(window))
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return 0, fmt.Errorf("scorer destroyed")
	}

	inputTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(window))), window)
	if err != nil {
		return 0, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	// A nil output lets the runtime allocate a tensor of the model's shape.
	outputs := []ort.Value{nil}
	if err := s.session.Run([]ort.Value{inputTensor}, outputs); err != nil {
		return 0, fmt.Errorf("failed to run inference: %w", err)
	}
	defer outputs[0].Destroy()

	outputTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return 0, fmt.Errorf("unexpected output type %T", outputs[0])
	}
	data := outputTensor.GetData()
	if len(data) == 0 {
		return 0, fmt.Errorf("empty output from inference")
	}
	return data[0], nil
}

// Destroy releases the ONNX session.
func (s *ONNXScorer) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != nil {
		if err := s.session.Destroy(); err != nil {
			return fmt.Errorf("failed to destroy session: %w", err)
		}
		s.session = nil
	}
	return nil
}

var _ Scorer = (*ONNXScorer)(nil)
