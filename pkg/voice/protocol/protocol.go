package protocol

import (
	"encoding/json"
	"strings"
)

// EventKind is the closed set of upstream event types the relay reacts
// to. Everything else is KindUnrecognized and is forwarded untouched.
type EventKind int

const (
	KindUnrecognized EventKind = iota
	KindUserTranscriptCompleted
	KindAssistantTranscriptDone
	KindAudioAppend
)

const (
	typeUserTranscriptCompleted = "conversation.item.input_audio_transcription.completed"
	typeAssistantTranscriptDone = "response.audio_transcript.done"
	typeAudioAppend             = "input_audio_buffer.append"
)

// ServerEvent is one decoded upstream frame. Decoded once per frame; the
// relay never re-inspects raw JSON after this.
type ServerEvent struct {
	Kind       EventKind
	Transcript string
}

// DecodeServerEvent classifies an upstream frame. Malformed frames decode
// to KindUnrecognized rather than an error: decoding is observational and
// must never gate forwarding.
func DecodeServerEvent(data []byte) ServerEvent {
	var envelope struct {
		Type       string `json:"type"`
		Transcript string `json:"transcript"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return ServerEvent{Kind: KindUnrecognized}
	}
	switch strings.TrimSpace(envelope.Type) {
	case typeUserTranscriptCompleted:
		return ServerEvent{Kind: KindUserTranscriptCompleted, Transcript: envelope.Transcript}
	case typeAssistantTranscriptDone:
		return ServerEvent{Kind: KindAssistantTranscriptDone, Transcript: envelope.Transcript}
	default:
		return ServerEvent{Kind: KindUnrecognized}
	}
}

// ClientEvent is one decoded client frame.
type ClientEvent struct {
	Kind     EventKind
	AudioB64 string
}

// DecodeClientEvent detects audio-append frames so raw audio can be
// captured for the emotion step. Same observational contract as
// DecodeServerEvent.
func DecodeClientEvent(data []byte) ClientEvent {
	var envelope struct {
		Type  string `json:"type"`
		Audio string `json:"audio"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return ClientEvent{Kind: KindUnrecognized}
	}
	if strings.TrimSpace(envelope.Type) == typeAudioAppend {
		return ClientEvent{Kind: KindAudioAppend, AudioB64: envelope.Audio}
	}
	return ClientEvent{Kind: KindUnrecognized}
}

// TurnDetection carries the server-VAD tunables sent upstream.
type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMS   int     `json:"prefix_padding_ms"`
	SilenceDurationMS int     `json:"silence_duration_ms"`
}

type Transcription struct {
	Model string `json:"model"`
}

type SessionSettings struct {
	Modalities        []string      `json:"modalities"`
	Instructions      string        `json:"instructions"`
	Voice             string        `json:"voice"`
	InputAudioFormat  string        `json:"input_audio_format"`
	OutputAudioFormat string        `json:"output_audio_format"`
	Transcription     Transcription `json:"input_audio_transcription"`
	TurnDetection     TurnDetection `json:"turn_detection"`
}

// SessionUpdate is the one configuration frame sent upstream right after
// connect, before any relay traffic.
type SessionUpdate struct {
	Type    string          `json:"type"`
	Session SessionSettings `json:"session"`
}

func NewSessionUpdate(instructions, transcriptionModel string, vad TurnDetection) SessionUpdate {
	if strings.TrimSpace(vad.Type) == "" {
		vad.Type = "server_vad"
	}
	return SessionUpdate{
		Type: "session.update",
		Session: SessionSettings{
			Modalities:        []string{"audio", "text"},
			Instructions:      instructions,
			Voice:             "cedar",
			InputAudioFormat:  "pcm16",
			OutputAudioFormat: "pcm16",
			Transcription:     Transcription{Model: transcriptionModel},
			TurnDetection:     vad,
		},
	}
}

// Warning is the structured frame sent to the client strictly before a
// moderation close.
type Warning struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

const WarningCodeContentPolicy = "content_policy"

func NewContentPolicyWarning() Warning {
	return Warning{
		Type:    "warning",
		Code:    WarningCodeContentPolicy,
		Message: "This conversation was ended because it violated the content policy.",
	}
}
