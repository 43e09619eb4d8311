// Package audio converts between the sample formats accepted at the edges of
// the engine and the float32 samples it works on internally.
//
// mulaw.go implements G.711 μ-law, the standard telephony encoding.
package audio

const (
	muLawBias = 0x84
	muLawClip = 32635
)

// MuLawDecode expands one μ-law byte to a 16-bit linear sample.
func MuLawDecode(b byte) int16 {
	u := ^b
	exponent := (u >> 4) & 0x07
	mantissa := int32(u & 0x0f)

	magnitude := ((mantissa << 3) + muLawBias) << exponent
	magnitude -= muLawBias
	if u&0x80 != 0 {
		return int16(-magnitude)
	}
	return int16(magnitude)
}

// MuLawEncode compresses a 16-bit linear sample to one μ-law byte.
func MuLawEncode(sample int16) byte {
	x := int32(sample)
	var sign byte
	if x < 0 {
		sign = 0x80
		x = -x
	}
	if x > muLawClip {
		x = muLawClip
	}
	x += muLawBias

	exponent := byte(7)
	for mask := int32(0x4000); x&mask == 0 && exponent > 0; mask >>= 1 {
		exponent--
	}
	mantissa := byte(x>>(exponent+3)) & 0x0f
	return ^(sign | exponent<<4 | mantissa)
}

// MuLawToFloat32 decodes a μ-law buffer into samples in [-1, 1].
func MuLawToFloat32(data []byte) []float32 {
	out := make([]float32, len(data))
	for i, b := range data {
		out[i] = float32(MuLawDecode(b)) / 32768.0
	}
	return out
}

// Float32ToMuLaw encodes samples in [-1, 1] as μ-law.
func Float32ToMuLaw(samples []float32) []byte {
	out := make([]byte, len(samples))
	for i, s := range samples {
		out[i] = MuLawEncode(floatToInt16(s))
	}
	return out
}
