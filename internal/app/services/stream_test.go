package services

import (
	"encoding/base64"
	"testing"

	"github.com/bytedance/sonic"

	"vad-server-go/internal/domain/vad"
	platformtesting "vad-server-go/internal/platform/testing"
	"vad-server-go/internal/transport/message"
	"vad-server-go/internal/transport/ws"
)

// newTestHandler wires a handler around a scripted detector, capturing
// outbound frames instead of writing to a socket.
func newTestHandler(t *testing.T, script []float32) (*SessionHandler, *[][]byte) {
	t.Helper()

	cfg := platformtesting.SetupTestConfig(t)
	service := NewStreamService(cfg, platformtesting.SetupTestLogger(t))
	t.Cleanup(service.Stop)

	detector := vad.NewMockDetector(cfg.VAD.Threshold, script)
	session := vad.NewSession("conn-1", detector, vad.SessionConfig{
		FrameSamples:         cfg.FrameSamples(),
		FrameMs:              float32(cfg.Audio.FrameMs),
		VoiceBeginMs:         cfg.VAD.VoiceBeginMs,
		VoiceStopMs:          cfg.VAD.VoiceStopMs,
		MaxSilenceMs:         cfg.VAD.MaxSilenceMs,
		MaxSegmentMs:         cfg.VAD.MaxSegmentMs,
		PrerollCapacityBytes: cfg.VAD.PrerollCapacityBytes,
	})

	var sent [][]byte
	handler := &SessionHandler{
		service: service,
		conn:    ws.NewConnection("conn-1", nil),
		session: session,
		uid:     "user_1",
	}
	handler.send = func(data []byte) error {
		sent = append(sent, append([]byte(nil), data...))
		return nil
	}

	service.activeSessions.Add(1)
	return handler, &sent
}

func decodeSent(t *testing.T, raw []byte) *message.Outbound {
	t.Helper()
	var out message.Outbound
	if err := sonic.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal outbound: %v", err)
	}
	return &out
}

func frames(prob float32, count int) []float32 {
	out := make([]float32, count)
	for i := range out {
		out[i] = prob
	}
	return out
}

func TestSessionHandler_UtteranceFlow(t *testing.T) {
	script := append(append(frames(0.9, 40), frames(0.1, 35)...), frames(0.1, 10)...)
	handler, sent := newTestHandler(t, script)

	chunk := make([]byte, 640)
	for i := 0; i < 85; i++ {
		handler.processPayload(chunk, false)
	}

	var states []string
	for _, raw := range *sent {
		states = append(states, decodeSent(t, raw).Data.VadState)
	}

	if len(states) == 0 {
		t.Fatal("expected events")
	}
	if states[0] != "VAD_BEGIN" {
		t.Fatalf("first event = %s, want VAD_BEGIN", states[0])
	}

	sawEnd := false
	for i, state := range states[1:] {
		switch state {
		case "SPEAKING":
			if sawEnd {
				t.Fatalf("SPEAKING after VAD_END at event %d", i+1)
			}
		case "VAD_END":
			sawEnd = true
		default:
			t.Fatalf("unexpected event %s", state)
		}
	}
	if !sawEnd {
		t.Fatal("expected VAD_END")
	}

	// The begin event carries the fresh segment token, later events do not.
	first := decodeSent(t, (*sent)[0])
	if first.NewSession == "" {
		t.Error("VAD_BEGIN must carry new_session")
	}
	second := decodeSent(t, (*sent)[1])
	if second.NewSession != "" {
		t.Error("new_session must only appear on VAD_BEGIN")
	}
}

func TestSessionHandler_IdentityPropagation(t *testing.T) {
	handler, sent := newTestHandler(t, frames(0.9, 100))

	audio := base64.StdEncoding.EncodeToString(make([]byte, 640))
	envelope := []byte(`{"uid":"device-7","connect_session":"cs-1","current_session":"cur-1",` +
		`"data":{"audio":"` + audio + `"}}`)

	for i := 0; i < 20; i++ {
		handler.processPayload(envelope, true)
	}

	if len(*sent) == 0 {
		t.Fatal("expected events")
	}
	out := decodeSent(t, (*sent)[0])
	if out.UID != "device-7" {
		t.Errorf("uid = %q, want device-7", out.UID)
	}
	if out.ConnectSession != "cs-1" || out.CurrentSession != "cur-1" {
		t.Errorf("session fields not propagated: %+v", out)
	}
}

func TestSessionHandler_MalformedTextDropped(t *testing.T) {
	handler, sent := newTestHandler(t, frames(0.9, 100))

	handler.processPayload([]byte(`{"uid":`), true)
	handler.processPayload([]byte(`{"data":{"audio":"!!bad!!"}}`), true)
	// Odd PCM length short-circuits before any state mutation.
	handler.processPayload(make([]byte, 641), false)

	if len(*sent) != 0 {
		t.Errorf("malformed input produced %d events", len(*sent))
	}
	if handler.session.Machine().FrameIndex() != 0 {
		t.Error("malformed input advanced the state machine")
	}
}

func TestSessionHandler_SilenceDedup(t *testing.T) {
	handler, sent := newTestHandler(t, nil)

	// 16 seconds of zeros across many chunks: one SILENCE only.
	chunk := make([]byte, 640)
	for i := 0; i < 800; i++ {
		handler.processPayload(chunk, false)
	}

	if len(*sent) != 1 {
		t.Fatalf("expected a single SILENCE event, got %d", len(*sent))
	}
	out := decodeSent(t, (*sent)[0])
	if out.Data.VadState != "SILENCE" {
		t.Errorf("event = %s, want SILENCE", out.Data.VadState)
	}
	if out.Data.VadAudio != "" {
		t.Error("SILENCE must carry empty audio")
	}
}

func TestSessionHandler_CloseEmitsTerminalEnd(t *testing.T) {
	handler, sent := newTestHandler(t, frames(0.9, 200))

	chunk := make([]byte, 640)
	for i := 0; i < 20; i++ {
		handler.processPayload(chunk, false)
	}

	before := len(*sent)
	handler.Close()

	if len(*sent) != before+1 {
		t.Fatalf("expected one terminal event, got %d new", len(*sent)-before)
	}
	out := decodeSent(t, (*sent)[len(*sent)-1])
	if out.Data.VadState != "VAD_END" {
		t.Errorf("terminal event = %s, want VAD_END", out.Data.VadState)
	}

	// Chunks arriving after close are skipped.
	handler.processPayload(chunk, false)
	if len(*sent) != before+1 {
		t.Error("closed session processed a chunk")
	}
}
