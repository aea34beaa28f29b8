package services

import (
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"vad-server-go/internal/domain/eventbus"
	"vad-server-go/internal/domain/vad"
	"vad-server-go/internal/domain/vad/inter"
	"vad-server-go/internal/platform/config"
	platformerrors "vad-server-go/internal/platform/errors"
	"vad-server-go/internal/transport/message"
	"vad-server-go/internal/transport/ws"
	"vad-server-go/internal/util/work"
	"vad-server-go/internal/utils"
)

// StreamService owns the audio work queue and builds one SessionHandler
// per websocket connection. Chunks are dispatched keyed by connection id,
// so a session's audio is processed serially and in arrival order while
// different sessions run in parallel.
type StreamService struct {
	cfg    *config.Config
	logger *utils.Logger
	queue  *work.WorkQueue[audioTask]

	uidCounter     atomic.Int64
	activeSessions atomic.Int64
	totalSessions  atomic.Int64
	chunks         atomic.Int64
	events         atomic.Int64
	drops          atomic.Int64
}

type audioTask struct {
	handler *SessionHandler
	payload []byte
	text    bool
}

// NewStreamService creates the service and starts its worker pool.
func NewStreamService(cfg *config.Config, logger *utils.Logger) *StreamService {
	s := &StreamService{
		cfg:    cfg,
		logger: logger,
	}
	s.queue = work.NewWorkQueue[audioTask](cfg.Queue.Workers, cfg.Queue.Depth, s.process)
	return s
}

// Stop drains and stops the worker pool.
func (s *StreamService) Stop() {
	s.queue.Stop()
}

// Stats reports service counters for the status API.
type Stats struct {
	ActiveSessions int64 `json:"active_sessions"`
	TotalSessions  int64 `json:"total_sessions"`
	Chunks         int64 `json:"chunks"`
	Events         int64 `json:"events"`
	Drops          int64 `json:"drops"`
	QueueBacklog   int   `json:"queue_backlog"`
}

// Stats returns a snapshot of the service counters.
func (s *StreamService) Stats() Stats {
	_, _, backlog := s.queue.Stats()
	return Stats{
		ActiveSessions: s.activeSessions.Load(),
		TotalSessions:  s.totalSessions.Load(),
		Chunks:         s.chunks.Load(),
		Events:         s.events.Load(),
		Drops:          s.drops.Load(),
		QueueBacklog:   backlog,
	}
}

// BuildHandler is the ws.HandlerBuilder: it wires a fresh detector and
// VAD session to the new connection.
func (s *StreamService) BuildHandler(conn *ws.Connection, req *http.Request) (ws.SessionHandler, error) {
	detector, err := vad.Create(s.cfg.VAD.Backend, inter.DetectorConfig{
		SampleRate:   s.cfg.Audio.SampleRate,
		FrameSamples: s.cfg.FrameSamples(),
		Threshold:    s.cfg.VAD.Threshold,
		ModelPath:    s.cfg.VAD.ModelPath,
	})
	if err != nil {
		return nil, err
	}

	uid := fmt.Sprintf("user_%d", s.uidCounter.Add(1))
	session := vad.NewSession(conn.GetID(), detector, vad.SessionConfig{
		FrameSamples:         s.cfg.FrameSamples(),
		FrameMs:              float32(s.cfg.Audio.FrameMs),
		VoiceBeginMs:         s.cfg.VAD.VoiceBeginMs,
		VoiceStopMs:          s.cfg.VAD.VoiceStopMs,
		MaxSilenceMs:         s.cfg.VAD.MaxSilenceMs,
		MaxSegmentMs:         s.cfg.VAD.MaxSegmentMs,
		PrerollCapacityBytes: s.cfg.VAD.PrerollCapacityBytes,
	})

	handler := &SessionHandler{
		service: s,
		conn:    conn,
		session: session,
		uid:     uid,
	}
	handler.send = func(data []byte) error {
		return conn.WriteMessage(websocket.TextMessage, data)
	}

	s.activeSessions.Add(1)
	s.totalSessions.Add(1)
	s.logger.InfoTag("VAD", "session %s opened as %s (backend=%s)", conn.GetID(), uid, s.cfg.VAD.Backend)
	return handler, nil
}

// process handles one dequeued chunk on a worker goroutine.
func (s *StreamService) process(task audioTask) {
	// Tasks for sessions torn down while queued are skipped, matching a
	// registry miss.
	if task.handler.isClosed() {
		return
	}
	task.handler.processPayload(task.payload, task.text)
}

// SessionHandler adapts one websocket connection to the VAD pipeline. The
// read loop runs on the transport goroutine; chunk processing runs on the
// worker owning this session's queue shard. identityMu guards the sticky
// identity fields; sessionMu serializes pipeline access against Close.
type SessionHandler struct {
	service *StreamService
	conn    *ws.Connection
	session *vad.Session
	send    func([]byte) error

	sessionMu sync.Mutex
	closed    atomic.Bool
	dropRun   atomic.Int64

	identityMu     sync.Mutex
	uid            string
	connectSession string
	currentSession string

	segmentStart time.Time
}

// GetSessionID returns the connection id used as the dispatch key.
func (h *SessionHandler) GetSessionID() string {
	return h.conn.GetID()
}

// Handle runs the connection read loop, enqueueing every message for the
// worker pool. It returns when the client disconnects.
func (h *SessionHandler) Handle() {
	for {
		messageType, payload, err := h.conn.ReadMessage()
		if err != nil {
			h.service.logger.DebugTag("WebSocket", "session %s read loop ended: %v", h.GetSessionID(), err)
			return
		}

		var text bool
		switch messageType {
		case websocket.BinaryMessage:
			text = false
		case websocket.TextMessage:
			text = true
		default:
			continue
		}

		// The payload buffer is reused by the websocket library.
		task := audioTask{
			handler: h,
			payload: append([]byte(nil), payload...),
			text:    text,
		}

		if err := h.service.queue.Submit(h.GetSessionID(), task); err != nil {
			if err == work.ErrWorkQueueClosed {
				return
			}
			h.noteDrop(len(task.payload))
		} else {
			h.dropRun.Store(0)
		}
	}
}

// noteDrop applies the backpressure policy for one rejected chunk: the
// drop is counted and surfaced, and a sustained run of drops closes the
// connection rather than silently losing an admitted session's audio.
func (h *SessionHandler) noteDrop(bytes int) {
	h.service.drops.Add(1)
	run := h.dropRun.Add(1)

	h.service.logger.WarnTag("Queue", "session %s: chunk dropped, queue full (run=%d)", h.GetSessionID(), run)
	eventbus.PublishAsync(eventbus.TopicChunkDropped, DropEvent{
		SessionUID: h.currentUID(),
		Bytes:      bytes,
	})

	if int(run) > h.service.cfg.Queue.MaxDrops {
		h.service.logger.ErrorTag("Queue", "session %s: sustained overflow, closing connection", h.GetSessionID())
		h.conn.WriteClose(websocket.ClosePolicyViolation, "audio backlog overflow")
		_ = h.conn.Close()
	}
}

// processPayload decodes one inbound message and drives the VAD pipeline.
// Runs on the worker goroutine owning this session's shard.
func (h *SessionHandler) processPayload(payload []byte, text bool) {
	pcm := payload
	if text {
		msg, decoded, err := message.DecodeInbound(payload)
		if err != nil {
			// Decoding failures drop the chunk; no session state was
			// touched, the connection stays open.
			h.service.logger.WarnTag("VAD", "session %s: %v", h.GetSessionID(), err)
			return
		}
		h.updateIdentity(msg)
		if len(decoded) == 0 {
			return
		}
		pcm = decoded
	}

	h.sessionMu.Lock()
	defer h.sessionMu.Unlock()
	if h.closed.Load() {
		return
	}

	h.service.chunks.Add(1)
	event, err := h.session.ProcessChunk(pcm)
	if err != nil {
		if platformerrors.IsKind(err, platformerrors.KindDecode) {
			h.service.logger.WarnTag("VAD", "session %s: %v", h.GetSessionID(), err)
			return
		}
		// Inference failures are fatal to the session only.
		h.service.logger.ErrorTag("VAD", "session %s: %v", h.GetSessionID(), err)
		h.conn.WriteClose(websocket.CloseInternalServerErr, "inference failure")
		_ = h.conn.Close()
		return
	}
	if event == nil {
		return
	}

	h.dispatch(event)
}

// dispatch sends the event to the client and feeds the bus.
func (h *SessionHandler) dispatch(event *vad.Event) {
	uid, connectSession, currentSession := h.identity()

	switch event.Type {
	case vad.EventVadBegin:
		h.segmentStart = time.Now()
	case vad.EventVadEnd:
		h.publishSegment(event, uid, connectSession)
	}

	out, err := message.EncodeOutbound(uid, connectSession, currentSession,
		event.NewSession, string(event.Type), event.Audio)
	if err != nil {
		h.service.logger.ErrorTag("VAD", "session %s: %v", h.GetSessionID(), err)
		return
	}

	if err := h.send(out); err != nil {
		// Send failures are logged and survived; the read loop notices
		// a genuinely dead connection on its own.
		h.service.logger.WarnTag("WebSocket", "session %s: send %s failed: %v",
			h.GetSessionID(), event.Type, err)
		return
	}
	h.service.events.Add(1)
}

func (h *SessionHandler) publishSegment(event *vad.Event, uid, connectSession string) {
	started := h.segmentStart
	ended := time.Now()
	if started.IsZero() {
		started = ended
	}
	h.segmentStart = time.Time{}

	eventbus.PublishAsync(eventbus.TopicSegmentCompleted, SegmentEvent{
		SessionUID:     uid,
		ConnectSession: connectSession,
		StartedAt:      started,
		EndedAt:        ended,
		DurationMs:     ended.Sub(started).Milliseconds(),
		PayloadBytes:   len(event.Audio),
	})
}

// Close finalizes the session: an open segment is force-ended so the
// client receives its terminal VAD_END when the connection still allows
// it, then the detector is released.
func (h *SessionHandler) Close() {
	if !h.closed.CompareAndSwap(false, true) {
		return
	}

	h.sessionMu.Lock()
	defer h.sessionMu.Unlock()

	if event := h.session.ForceEnd(); event != nil && !h.conn.IsClosed() {
		h.dispatch(event)
	}
	if err := h.session.Close(); err != nil {
		h.service.logger.WarnTag("VAD", "session %s: detector close failed: %v", h.GetSessionID(), err)
	}

	h.service.activeSessions.Add(-1)
	eventbus.PublishAsync(eventbus.TopicSessionClosed, h.currentUID())
	h.service.logger.InfoTag("VAD", "session %s closed", h.GetSessionID())
}

func (h *SessionHandler) isClosed() bool {
	return h.closed.Load()
}

func (h *SessionHandler) updateIdentity(msg *message.Inbound) {
	h.identityMu.Lock()
	defer h.identityMu.Unlock()
	if msg.UID != "" {
		h.uid = msg.UID
	}
	if msg.ConnectSession != "" {
		h.connectSession = msg.ConnectSession
	}
	if msg.CurrentSession != "" {
		h.currentSession = msg.CurrentSession
	}
}

func (h *SessionHandler) identity() (uid, connectSession, currentSession string) {
	h.identityMu.Lock()
	defer h.identityMu.Unlock()
	return h.uid, h.connectSession, h.currentSession
}

func (h *SessionHandler) currentUID() string {
	h.identityMu.Lock()
	defer h.identityMu.Unlock()
	return h.uid
}
