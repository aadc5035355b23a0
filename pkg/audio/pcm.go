// Package audio converts browser float32 PCM frames into the 16-bit PCM the
// Voice Live service expects. Pure functions, base64 framing at the boundary.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

// TargetSampleRate is the sample rate the upstream service consumes.
const TargetSampleRate = 24000

const int16Max = math.MaxInt16

// FloatToPCM16 converts float32 samples in [-1.0, 1.0] to little-endian
// 16-bit PCM bytes. Out-of-range samples are clipped before scaling.
func FloatToPCM16(samples []float32) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		v := int16(s * int16Max)
		binary.LittleEndian.PutUint16(out[2*i:], uint16(v))
	}
	return out
}

// DecodeFloat32 decodes base64-encoded little-endian float32 bytes.
func DecodeFloat32(dataB64 string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(dataB64)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("float32 frame length %d is not a multiple of 4", len(raw))
	}
	samples := make([]float32, len(raw)/4)
	for i := range samples {
		bits := binary.LittleEndian.Uint32(raw[4*i:])
		samples[i] = math.Float32frombits(bits)
	}
	return samples, nil
}

// PCM16ToFloat decodes little-endian 16-bit PCM bytes back into float32
// samples in [-1.0, 1.0].
func PCM16ToFloat(raw []byte) []float32 {
	samples := make([]float32, len(raw)/2)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(raw[2*i:]))
		samples[i] = float32(v) / int16Max
	}
	return samples
}

// Float32Base64ToPCM16Base64 accepts base64-encoded float32 bytes and returns
// base64-encoded 16-bit PCM, the framing used on the audio_chunk path.
func Float32Base64ToPCM16Base64(dataB64 string) (string, error) {
	samples, err := DecodeFloat32(dataB64)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(FloatToPCM16(samples)), nil
}
