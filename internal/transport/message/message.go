package message

import (
	"encoding/base64"

	"github.com/bytedance/sonic"

	platformerrors "vad-server-go/internal/platform/errors"
)

// Inbound is the text-frame envelope. Identity fields are optional and
// sticky: a session keeps the last non-empty value it has seen.
type Inbound struct {
	UID            string      `json:"uid,omitempty"`
	ConnectSession string      `json:"connect_session,omitempty"`
	CurrentSession string      `json:"current_session,omitempty"`
	Data           InboundData `json:"data"`
}

// InboundData wraps the base64 PCM payload.
type InboundData struct {
	Audio string `json:"audio"`
}

// Outbound is the event envelope sent back to the client.
type Outbound struct {
	UID            string       `json:"uid"`
	ConnectSession string       `json:"connect_session"`
	CurrentSession string       `json:"current_session"`
	NewSession     string       `json:"new_session,omitempty"`
	Data           OutboundData `json:"data"`
}

// OutboundData carries the event discriminant and its base64 audio.
type OutboundData struct {
	VadState string `json:"vad_state"`
	VadAudio string `json:"vad_audio"`
}

// DecodeInbound parses a text frame and decodes its audio payload.
func DecodeInbound(raw []byte) (*Inbound, []byte, error) {
	var msg Inbound
	if err := sonic.Unmarshal(raw, &msg); err != nil {
		return nil, nil, platformerrors.Wrap(platformerrors.KindDecode, "inbound", "malformed JSON", err)
	}

	var pcm []byte
	if msg.Data.Audio != "" {
		decoded, err := base64.StdEncoding.DecodeString(msg.Data.Audio)
		if err != nil {
			return nil, nil, platformerrors.Wrap(platformerrors.KindDecode, "inbound", "bad base64 audio", err)
		}
		pcm = decoded
	}

	return &msg, pcm, nil
}

// EncodeOutbound renders an event envelope. audio may be nil.
func EncodeOutbound(uid, connectSession, currentSession, newSession, vadState string, audio []byte) ([]byte, error) {
	msg := Outbound{
		UID:            uid,
		ConnectSession: connectSession,
		CurrentSession: currentSession,
		NewSession:     newSession,
		Data: OutboundData{
			VadState: vadState,
			VadAudio: base64.StdEncoding.EncodeToString(audio),
		},
	}

	out, err := sonic.Marshal(&msg)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTransport, "outbound", "marshal event", err)
	}
	return out, nil
}
