// Package transcribe bridges WAV uploads into the external streaming
// transcoder and returns the recognized text.
package transcribe

import (
	"encoding/binary"
	"fmt"
)

// Required PCM parameters for uploads.
const (
	RequiredSampleRate = 16000
	RequiredBitDepth   = 16
	RequiredChannels   = 1
)

// PCMInfo describes the audio found in a WAV container.
type PCMInfo struct {
	SampleRate int
	BitDepth   int
	Channels   int
}

// SampleWidth returns the bytes per sample.
func (p PCMInfo) SampleWidth() int { return p.BitDepth / 8 }

// DecodeWAV parses a RIFF/WAVE container and returns the PCM
// parameters and raw sample data. Only uncompressed PCM is accepted.
func DecodeWAV(data []byte) (PCMInfo, []byte, error) {
	var info PCMInfo

	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return info, nil, fmt.Errorf("not a RIFF/WAVE file")
	}

	var samples []byte
	haveFmt := false

	// Walk the chunk list. Chunks are 8 bytes of header (ID + size)
	// followed by the payload, padded to an even length.
	offset := 12
	for offset+8 <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		if body+chunkSize > len(data) {
			return info, nil, fmt.Errorf("truncated %q chunk", chunkID)
		}

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return info, nil, fmt.Errorf("fmt chunk too short")
			}
			audioFormat := binary.LittleEndian.Uint16(data[body : body+2])
			if audioFormat != 1 {
				return info, nil, fmt.Errorf("unsupported audio format %d (PCM required)", audioFormat)
			}
			info.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			info.BitDepth = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			haveFmt = true

		case "data":
			samples = data[body : body+chunkSize]
		}

		offset = body + chunkSize
		if chunkSize%2 == 1 {
			offset++
		}
	}

	if !haveFmt {
		return info, nil, fmt.Errorf("missing fmt chunk")
	}
	if samples == nil {
		return info, nil, fmt.Errorf("missing data chunk")
	}
	return info, samples, nil
}

// ValidateUpload checks the decoded parameters against the required
// 16 kHz / 16-bit / mono shape.
func ValidateUpload(info PCMInfo) error {
	if info.SampleRate != RequiredSampleRate {
		return fmt.Errorf("sample rate must be %d Hz, got %d", RequiredSampleRate, info.SampleRate)
	}
	if info.BitDepth != RequiredBitDepth {
		return fmt.Errorf("bit depth must be %d, got %d", RequiredBitDepth, info.BitDepth)
	}
	if info.Channels != RequiredChannels {
		return fmt.Errorf("audio must be mono, got %d channels", info.Channels)
	}
	return nil
}
