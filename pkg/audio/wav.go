package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// wavHeaderSize is the byte length of the canonical 44-byte RIFF/WAVE header
// written by [EncodeWAV] (single "fmt " and "data" chunk, no extensions).
const wavHeaderSize = 44

var (
	// ErrNotWAV is returned by [DecodeWAV] when the byte sequence does not start
	// with a RIFF/WAVE header.
	ErrNotWAV = errors.New("audio: not a RIFF/WAVE container")

	// ErrUnsupportedWAV is returned by [DecodeWAV] for WAV files that are not
	// 16-bit mono PCM.
	ErrUnsupportedWAV = errors.New("audio: unsupported WAV format (want 16-bit mono PCM)")
)

// EncodeWAV serialises an [Utterance] into a self-describing WAV container:
// a 44-byte header (PCM format tag, 1 channel, the utterance's sample rate,
// 16-bit depth, data length) followed by the samples as little-endian int16.
//
// Samples are clamped to [-1, 1] before scaling. Negative samples scale by
// 0x8000 and non-negative ones by 0x7FFF so that exactly 1.0 maps to the
// maximum positive 16-bit value without overflow asymmetry.
//
// The returned byte slice is immutable once produced; callers hand it to the
// STT upload unchanged.
func EncodeWAV(u Utterance) []byte {
	dataLen := len(u.Samples) * 2
	out := make([]byte, wavHeaderSize+dataLen)

	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+dataLen))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16) // fmt chunk size
	binary.LittleEndian.PutUint16(out[20:22], 1)  // PCM format tag
	binary.LittleEndian.PutUint16(out[22:24], 1)  // mono
	binary.LittleEndian.PutUint32(out[24:28], uint32(u.SampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(u.SampleRate*2)) // byte rate
	binary.LittleEndian.PutUint16(out[32:34], 2)                      // block align
	binary.LittleEndian.PutUint16(out[34:36], 16)                     // bits per sample
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(dataLen))

	for i, s := range u.Samples {
		binary.LittleEndian.PutUint16(out[wavHeaderSize+i*2:], uint16(Float32ToInt16(s)))
	}
	return out
}

// DecodeWAV parses a WAV container produced by [EncodeWAV] (or any plain
// 16-bit mono PCM WAV with the canonical 44-byte header) back into an
// [Utterance]. It is the inverse of the encoder's scaling, so a round trip
// reproduces the original samples within 16-bit quantization error.
func DecodeWAV(data []byte) (Utterance, error) {
	if len(data) < wavHeaderSize {
		return Utterance{}, fmt.Errorf("%w: %d bytes", ErrNotWAV, len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Utterance{}, ErrNotWAV
	}

	formatTag := binary.LittleEndian.Uint16(data[20:22])
	channels := binary.LittleEndian.Uint16(data[22:24])
	bitDepth := binary.LittleEndian.Uint16(data[34:36])
	if formatTag != 1 || channels != 1 || bitDepth != 16 {
		return Utterance{}, fmt.Errorf("%w: format=%d channels=%d bits=%d",
			ErrUnsupportedWAV, formatTag, channels, bitDepth)
	}

	sampleRate := int(binary.LittleEndian.Uint32(data[24:28]))
	dataLen := int(binary.LittleEndian.Uint32(data[40:44]))
	if dataLen > len(data)-wavHeaderSize {
		dataLen = len(data) - wavHeaderSize
	}

	samples := make([]float32, dataLen/2)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(data[wavHeaderSize+i*2:]))
		samples[i] = Int16ToFloat32(v)
	}
	return Utterance{Samples: samples, SampleRate: sampleRate}, nil
}

// Float32ToInt16 converts one float sample to int16 with clamping at the range
// boundaries before scaling.
func Float32ToInt16(s float32) int16 {
	if s < -1 {
		s = -1
	} else if s > 1 {
		s = 1
	}
	if s < 0 {
		return int16(s * 0x8000)
	}
	return int16(s * 0x7FFF)
}

// Int16ToFloat32 is the inverse of [Float32ToInt16].
func Int16ToFloat32(v int16) float32 {
	if v < 0 {
		return float32(v) / 0x8000
	}
	return float32(v) / 0x7FFF
}

// Int16sToFloat32 converts little-endian int16 PCM bytes to float32 samples.
// A trailing odd byte is ignored.
func Int16sToFloat32(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		out[i] = Int16ToFloat32(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	return out
}
