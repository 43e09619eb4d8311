package trace

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys used throughout the application
const (
	// Pipeline attributes
	AttrPipelineName     = "pipeline.name"
	AttrPipelineElement  = "pipeline.element"
	AttrPipelineElements = "pipeline.elements"
	AttrSessionID        = "session.id"
	AttrMessageType      = "message.type"

	// Audio attributes
	AttrAudioSampleRate = "audio.sample_rate"
	AttrAudioChannels   = "audio.channels"
	AttrAudioMediaType  = "audio.media_type"
	AttrAudioDataSize   = "audio.data_size"

	// Connection attributes
	AttrConnectionID    = "connection.id"
	AttrConnectionType  = "connection.type"
	AttrConnectionState = "connection.state"

	// VAD attributes
	AttrVADEvent       = "vad.event"
	AttrVADPhase       = "vad.phase"
	AttrVADToken       = "vad.token"
	AttrVADProbability = "vad.probability"

	// Segment attributes
	AttrSegmentID         = "segment.id"
	AttrSegmentSamples    = "segment.samples"
	AttrSegmentDurationMs = "segment.duration_ms"
	AttrSegmentSink       = "segment.sink"

	// STT attributes
	AttrSTTProvider   = "stt.provider"
	AttrSTTTextLength = "stt.text_length"

	// Error attributes
	AttrErrorType    = "error.type"
	AttrErrorMessage = "error.message"
)

// Helper functions to create common attributes

// SessionAttrs creates attributes for session information
func SessionAttrs(sessionID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrSessionID, sessionID),
	}
}

// AudioAttrs creates attributes for audio data
func AudioAttrs(sampleRate, channels, dataSize int, mediaType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrAudioSampleRate, sampleRate),
		attribute.Int(AttrAudioChannels, channels),
		attribute.Int(AttrAudioDataSize, dataSize),
		attribute.String(AttrAudioMediaType, mediaType),
	}
}

// ConnectionAttrs creates attributes for connection information
func ConnectionAttrs(connID, connType, state string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrConnectionID, connID),
		attribute.String(AttrConnectionType, connType),
		attribute.String(AttrConnectionState, state),
	}
}

// VADEventAttrs describes one hysteresis transition.
func VADEventAttrs(kind, phase string, token int64, probability float32) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrVADEvent, kind),
		attribute.String(AttrVADPhase, phase),
		attribute.Int64(AttrVADToken, token),
		attribute.Float64(AttrVADProbability, float64(probability)),
	}
}

// SegmentAttrs creates attributes for a completed speech segment
func SegmentAttrs(sessionID, segmentID string, samples int, durationMs int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrSessionID, sessionID),
		attribute.String(AttrSegmentID, segmentID),
		attribute.Int(AttrSegmentSamples, samples),
		attribute.Int64(AttrSegmentDurationMs, durationMs),
	}
}

// ErrorAttrs creates attributes for errors
func ErrorAttrs(errType, errMsg string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrErrorType, errType),
		attribute.String(AttrErrorMessage, errMsg),
	}
}
