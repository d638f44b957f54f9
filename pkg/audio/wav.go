// Package audio wraps raw PCM16 session audio in a WAV container for
// the emotion analysis provider, which requires a self-describing file.
package audio

import (
	"bytes"
	"encoding/binary"
)

const (
	// Session audio is 24kHz mono 16-bit PCM as negotiated upstream.
	SampleRate    = 24000
	Channels      = 1
	BitsPerSample = 16

	// BytesPerSecond is the raw PCM byte rate at the session format.
	BytesPerSecond = SampleRate * Channels * BitsPerSample / 8
)

// WrapPCM16 produces a complete in-memory WAV file around pcm.
func WrapPCM16(pcm []byte) []byte {
	var buf bytes.Buffer
	writeWAVHeader(&buf, len(pcm))
	buf.Write(pcm)
	return buf.Bytes()
}

func writeWAVHeader(buf *bytes.Buffer, dataLen int) {
	blockAlign := Channels * BitsPerSample / 8

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(Channels))
	binary.Write(buf, binary.LittleEndian, uint32(SampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(BytesPerSecond))
	binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(BitsPerSample))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataLen))
}

// Prefix returns at most the first seconds of pcm at the session format.
func Prefix(pcm []byte, seconds int) []byte {
	limit := seconds * BytesPerSecond
	if len(pcm) <= limit {
		return pcm
	}
	return pcm[:limit]
}
