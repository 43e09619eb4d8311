package pipeline

// AudioMediaType represents the media type for audio data
type AudioMediaType string

const (
	// Raw little-endian signed 16-bit PCM (default)
	AudioMediaTypeRaw AudioMediaType = "audio/x-raw"
	// Little-endian IEEE float32 PCM
	AudioMediaTypeFloat32 AudioMediaType = "audio/x-raw-f32"
	// G.711 μ-law
	AudioMediaTypeMuLaw AudioMediaType = "audio/x-mulaw"
)

// String returns the string representation of AudioMediaType
func (amt AudioMediaType) String() string {
	return string(amt)
}
