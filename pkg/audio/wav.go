package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrNotWAV is returned by [ParseWAV] when the payload does not carry a
// RIFF/WAVE header.
var ErrNotWAV = errors.New("audio: not a RIFF/WAVE payload")

// wavHeaderSize is the byte length of the canonical 44-byte PCM WAV header
// produced by [BuildWAV].
const wavHeaderSize = 44

// WAVInfo describes the format of a parsed WAV payload.
type WAVInfo struct {
	// SampleRate in Hz.
	SampleRate int

	// Channels is the interleaved channel count.
	Channels int

	// BitsPerSample is the sample width (16 for PCM produced by this package).
	BitsPerSample int
}

// BuildWAV wraps raw little-endian 16-bit PCM in a canonical RIFF/WAVE
// header. sampleRate is in Hz; channels is the interleaved channel count.
func BuildWAV(pcm []byte, sampleRate, channels int) []byte {
	const bitsPerSample = 16
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	out := make([]byte, wavHeaderSize+len(pcm))
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+len(pcm)))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16) // fmt chunk size
	binary.LittleEndian.PutUint16(out[20:22], 1)  // PCM
	binary.LittleEndian.PutUint16(out[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], bitsPerSample)
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(pcm)))
	copy(out[wavHeaderSize:], pcm)
	return out
}

// IsWAV reports whether data starts with a RIFF/WAVE signature.
func IsWAV(data []byte) bool {
	return len(data) >= 12 &&
		string(data[0:4]) == "RIFF" &&
		string(data[8:12]) == "WAVE"
}

// ParseWAV extracts the PCM data and format info from a RIFF/WAVE payload.
// It walks the chunk list rather than assuming a fixed 44-byte header, so
// files with extra chunks (LIST, fact) parse correctly. Only uncompressed
// PCM (format tag 1) is supported.
func ParseWAV(data []byte) ([]byte, WAVInfo, error) {
	if !IsWAV(data) {
		return nil, WAVInfo{}, ErrNotWAV
	}

	var (
		info    WAVInfo
		pcm     []byte
		haveFmt bool
	)

	// Chunks start after the 12-byte RIFF header.
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if body+size > len(data) {
			// Truncated chunk; clamp to what is present.
			size = len(data) - body
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, WAVInfo{}, fmt.Errorf("audio: fmt chunk too short (%d bytes)", size)
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			if format != 1 {
				return nil, WAVInfo{}, fmt.Errorf("audio: unsupported WAV format tag %d (want PCM)", format)
			}
			info.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			haveFmt = true
		case "data":
			pcm = data[body : body+size]
		}

		// Chunks are word-aligned.
		if size%2 == 1 {
			size++
		}
		off = body + size
	}

	if !haveFmt || pcm == nil {
		return nil, WAVInfo{}, errors.New("audio: WAV payload missing fmt or data chunk")
	}
	return pcm, info, nil
}
