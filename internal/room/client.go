// Package room is a minimal LiveKit room participant: a signaling socket, a
// WebRTC peer connection for audio in both directions and a reliable data
// channel for transcript broadcast. The speech pipeline sits on top of it
// through the AudioSource/AudioSink interfaces.
package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"go.uber.org/zap"
)

const frameQueueSize = 256

// ErrNoParticipant is returned when the client closes before a remote
// participant joined.
var ErrNoParticipant = errors.New("no participant joined")

// Client joins one LiveKit room as the agent participant.
type Client struct {
	url      string
	token    string
	roomName string
	identity string
	logger   *zap.Logger

	conn       *websocket.Conn
	pc         *webrtc.PeerConnection
	audioTrack *webrtc.TrackLocalStaticSample
	dataCh     *webrtc.DataChannel

	ctx    context.Context
	cancel context.CancelFunc

	frames chan []byte

	mu           sync.Mutex
	participants map[string]struct{}
	joined       chan string
	dcOpen       chan struct{}
	dcOnce       sync.Once
}

func NewClient(url, token, roomName, identity string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		url:          url,
		token:        token,
		roomName:     roomName,
		identity:     identity,
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
		frames:       make(chan []byte, frameQueueSize),
		participants: make(map[string]struct{}),
		joined:       make(chan string, 8),
		dcOpen:       make(chan struct{}),
	}
}

// Connect dials the signaling socket and sets up the peer connection with
// the agent's outbound audio track and the transcription data channel.
func (c *Client) Connect() error {
	wsURL := c.url
	if strings.HasPrefix(wsURL, "https") {
		wsURL = "wss" + wsURL[5:]
	} else if strings.HasPrefix(wsURL, "http") {
		wsURL = "ws" + wsURL[4:]
	}
	wsURL = strings.TrimSuffix(wsURL, "/") + "/rtc?access_token=" + c.token

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial signaling socket: %w", err)
	}
	c.conn = conn
	go c.handleSignaling()

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
	})
	if err != nil {
		return fmt.Errorf("create peer connection: %w", err)
	}
	c.pc = pc

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if track.Kind() == webrtc.RTPCodecTypeAudio {
			c.logger.Info("remote audio track", zap.String("track", track.ID()))
			go c.pumpAudioTrack(track)
		}
	})

	audioTrack, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"agent-audio",
		"agent",
	)
	if err != nil {
		return fmt.Errorf("create audio track: %w", err)
	}
	c.audioTrack = audioTrack
	if _, err := pc.AddTrack(audioTrack); err != nil {
		return fmt.Errorf("add audio track: %w", err)
	}

	ordered := true
	dc, err := pc.CreateDataChannel("_reliable", &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return fmt.Errorf("create data channel: %w", err)
	}
	dc.OnOpen(func() {
		c.dcOnce.Do(func() { close(c.dcOpen) })
	})
	c.dataCh = dc

	c.logger.Info("connected to room",
		zap.String("room", c.roomName),
		zap.String("identity", c.identity))
	return nil
}

// handleSignaling drains the signaling socket and tracks participant
// membership.
func (c *Client) handleSignaling() {
	defer c.conn.Close()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("signaling socket error", zap.Error(err))
			}
			return
		}

		var msg map[string]interface{}
		if err := json.Unmarshal(message, &msg); err != nil {
			c.logger.Warn("bad signaling message", zap.Error(err))
			continue
		}

		msgType, _ := msg["type"].(string)
		switch msgType {
		case "join":
			c.logger.Info("joined room", zap.String("room", c.roomName))
		case "participant_connected":
			if identity := participantIdentity(msg); identity != "" {
				c.addParticipant(identity)
			}
		case "participant_disconnected":
			if identity := participantIdentity(msg); identity != "" {
				c.mu.Lock()
				delete(c.participants, identity)
				c.mu.Unlock()
				c.logger.Info("participant left", zap.String("identity", identity))
			}
		case "track_published":
			c.logger.Debug("track published", zap.Any("message", msg))
		}
	}
}

func participantIdentity(msg map[string]interface{}) string {
	p, _ := msg["participant"].(map[string]interface{})
	identity, _ := p["identity"].(string)
	return identity
}

func (c *Client) addParticipant(identity string) {
	c.mu.Lock()
	_, known := c.participants[identity]
	c.participants[identity] = struct{}{}
	c.mu.Unlock()
	if known || identity == c.identity {
		return
	}
	c.logger.Info("participant joined", zap.String("identity", identity))
	select {
	case c.joined <- identity:
	default:
	}
}

// WaitForParticipant blocks until a remote participant joins and returns its
// identity.
func (c *Client) WaitForParticipant(ctx context.Context) (string, error) {
	// a participant may already be in the room when we join
	c.mu.Lock()
	for identity := range c.participants {
		if identity != c.identity {
			c.mu.Unlock()
			return identity, nil
		}
	}
	c.mu.Unlock()

	select {
	case identity := <-c.joined:
		return identity, nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-c.ctx.Done():
		return "", ErrNoParticipant
	}
}

// pumpAudioTrack forwards remote audio payloads to the frame queue. When the
// queue is full the frame is dropped; the detector tolerates gaps. Payloads
// are passed through undecoded, the same assumption WriteAudio makes on the
// outbound side.
func (c *Client) pumpAudioTrack(track *webrtc.TrackRemote) {
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		pkt, _, err := track.ReadRTP()
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.logger.Info("remote audio track ended", zap.String("track", track.ID()))
			} else {
				c.logger.Warn("rtp read failed", zap.Error(err))
			}
			return
		}
		select {
		case c.frames <- pkt.Payload:
		default:
		}
	}
}

// ReadFrame returns the next remote audio frame. It returns io.EOF once the
// client is closed, which ends the pipeline's read loop.
func (c *Client) ReadFrame(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-c.frames:
		return frame, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.ctx.Done():
		return nil, io.EOF
	}
}

// WriteAudio plays PCM into the room in 100ms paced chunks. Cancelling the
// context stops playback between chunks, which is what barge-in relies on.
//
// Samples are written as raw 16 kHz s16le PCM even though the track
// advertises opus; no encoder runs in-process. Playback to real peers
// requires a transcoding bridge in front of the room.
func (c *Client) WriteAudio(ctx context.Context, pcm []byte) error {
	if c.audioTrack == nil {
		return errors.New("audio track not initialized")
	}

	const sampleRate = 16000
	chunkSize := sampleRate * 2 / 10 // 100ms of 16-bit mono
	for i := 0; i < len(pcm); i += chunkSize {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		end := i + chunkSize
		if end > len(pcm) {
			end = len(pcm)
		}
		sample := media.Sample{
			Data:     pcm[i:end],
			Duration: 100 * time.Millisecond,
		}
		if err := c.audioTrack.WriteSample(sample); err != nil {
			return fmt.Errorf("write sample: %w", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	return nil
}

// dataEnvelope frames a payload for the data channel with its topic.
type dataEnvelope struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// PublishData broadcasts a payload to the room on the given topic.
func (c *Client) PublishData(ctx context.Context, payload []byte, topic string, reliable bool) error {
	if c.dataCh == nil {
		return errors.New("data channel not initialized")
	}

	select {
	case <-c.dcOpen:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return errors.New("room client closed")
	}

	msg, err := json.Marshal(dataEnvelope{Topic: topic, Payload: payload})
	if err != nil {
		return err
	}
	return c.dataCh.Send(msg)
}

// Close leaves the room and releases the peer connection and socket.
func (c *Client) Close() error {
	c.cancel()

	if c.pc != nil {
		if err := c.pc.Close(); err != nil {
			c.logger.Warn("closing peer connection", zap.Error(err))
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Warn("closing signaling socket", zap.Error(err))
		}
	}
	return nil
}
