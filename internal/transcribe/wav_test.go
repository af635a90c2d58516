package transcribe

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// buildWAV assembles a minimal RIFF/WAVE container around samples.
func buildWAV(sampleRate int, bitDepth int, channels int, samples []byte) []byte {
	var buf bytes.Buffer

	blockAlign := channels * bitDepth / 8
	byteRate := sampleRate * blockAlign

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(samples)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(bitDepth))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(samples)))
	buf.Write(samples)

	return buf.Bytes()
}

func TestDecodeWAV(t *testing.T) {
	samples := make([]byte, 32000) // one second
	data := buildWAV(16000, 16, 1, samples)

	info, decoded, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV() = %v", err)
	}
	if info.SampleRate != 16000 || info.BitDepth != 16 || info.Channels != 1 {
		t.Errorf("info = %+v", info)
	}
	if len(decoded) != len(samples) {
		t.Errorf("samples = %d bytes, want %d", len(decoded), len(samples))
	}
	if err := ValidateUpload(info); err != nil {
		t.Errorf("ValidateUpload() = %v", err)
	}
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"not riff", []byte("this is not audio at all, sorry")},
		{"truncated header", []byte("RIFF")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := DecodeWAV(tt.data); err == nil {
				t.Error("DecodeWAV() = nil error, want failure")
			}
		})
	}
}

func TestDecodeWAVTruncatedData(t *testing.T) {
	data := buildWAV(16000, 16, 1, make([]byte, 1000))
	if _, _, err := DecodeWAV(data[:len(data)-100]); err == nil {
		t.Error("truncated data chunk accepted")
	}
}

func TestValidateUpload(t *testing.T) {
	tests := []struct {
		name string
		info PCMInfo
		ok   bool
	}{
		{"correct", PCMInfo{16000, 16, 1}, true},
		{"wrong rate", PCMInfo{44100, 16, 1}, false},
		{"wrong depth", PCMInfo{16000, 8, 1}, false},
		{"stereo", PCMInfo{16000, 16, 2}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUpload(tt.info)
			if tt.ok && err != nil {
				t.Errorf("ValidateUpload() = %v, want nil", err)
			}
			if !tt.ok && err == nil {
				t.Error("ValidateUpload() = nil, want error")
			}
		})
	}
}

func TestDecodeWAVRejectsCompressed(t *testing.T) {
	data := buildWAV(16000, 16, 1, make([]byte, 100))
	// Flip the audio format field to something non-PCM.
	data[20] = 6 // A-law
	if _, _, err := DecodeWAV(data); err == nil {
		t.Error("non-PCM format accepted")
	}
}
