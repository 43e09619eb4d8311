package vad

import "fmt"

// Framer owns the sliding scorer window. Every submitted token shifts the
// window left by one token and is written at the tail, so the window always
// holds the most recent WindowTokens tokens in arrival order. Before enough
// tokens have arrived the head of the window is zero-filled.
type Framer struct {
	tokenSize int
	window    []float32
}

// NewFramer creates a framer for tokens of tokenSize samples and a window of
// windowTokens tokens.
func NewFramer(tokenSize, windowTokens int) (*Framer, error) {
	if tokenSize <= 0 {
		return nil, invalidConfig("token size must be positive, got %d", tokenSize)
	}
	if windowTokens <= 0 {
		return nil, invalidConfig("window tokens must be positive, got %d", windowTokens)
	}
	return &Framer{
		tokenSize: tokenSize,
		window:    make([]float32, tokenSize*windowTokens),
	}, nil
}

// TokenSize returns the accepted token length in samples.
func (f *Framer) TokenSize() int {
	return f.tokenSize
}

// WindowSize returns the window length in samples.
func (f *Framer) WindowSize() int {
	return len(f.window)
}

// Submit shifts token into the window and returns a copy of the window.
// A token of the wrong length is rejected without touching the window.
func (f *Framer) Submit(token []float32) ([]float32, error) {
	if err := f.checkToken(token); err != nil {
		return nil, err
	}

	tail := len(f.window) - f.tokenSize
	copy(f.window, f.window[f.tokenSize:])
	copy(f.window[tail:], token)

	out := make([]float32, len(f.window))
	copy(out, f.window)
	return out, nil
}

// Preview returns the window Submit would produce for token without
// changing the framer.
func (f *Framer) Preview(token []float32) ([]float32, error) {
	if err := f.checkToken(token); err != nil {
		return nil, err
	}

	out := make([]float32, len(f.window))
	tail := copy(out, f.window[f.tokenSize:])
	copy(out[tail:], token)
	return out, nil
}

func (f *Framer) checkToken(token []float32) error {
	if len(token) != f.tokenSize {
		return &Error{
			Code:    ErrCodeInvalidTokenLength,
			Message: fmt.Sprintf("invalid token length, expected %d samples, got %d", f.tokenSize, len(token)),
		}
	}
	return nil
}
