package call

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// rtcpPLIInterval paces keyframe requests for remote video so a late joiner
// or lossy path recovers a decodable picture.
const rtcpPLIInterval = 3 * time.Second

// NewMediaFactory returns the production MediaFactory backed by Pion and
// the platform capture drivers. cam and mic select preferred capture
// devices by id; empty means first available.
func NewMediaFactory(cam, mic string) MediaFactory {
	return func(mode string) (Media, error) {
		pc, stopCapture, err := initMediaPC(mode, cam, mic)
		if err != nil {
			return nil, err
		}
		m := &pionMedia{pc: pc, stopCapture: stopCapture}
		m.wire()
		return m, nil
	}
}

// pionMedia adapts a Pion PeerConnection plus local capture to the Media
// interface.
type pionMedia struct {
	pc          *webrtc.PeerConnection
	stopCapture func() // nil when no local tracks were captured

	mu          sync.Mutex
	onCandidate func(json.RawMessage)
	onRemote    func()

	remoteOnce sync.Once
	closeOnce  sync.Once
}

func (m *pionMedia) wire() {
	m.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return // gathering finished
		}
		b, err := json.Marshal(c.ToJSON())
		if err != nil {
			return
		}
		m.mu.Lock()
		fn := m.onCandidate
		m.mu.Unlock()
		if fn != nil {
			fn(b)
		}
	})

	m.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		m.remoteOnce.Do(func() {
			m.mu.Lock()
			fn := m.onRemote
			m.mu.Unlock()
			if fn != nil {
				fn()
			}
		})
		go m.serviceTrack(track)
	})

	m.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Printf("CALL: peer connection %s", state)
	})
}

// serviceTrack drains RTP from a remote track and, for video, requests a
// keyframe on an interval so the remote encoder keeps the picture decodable.
func (m *pionMedia) serviceTrack(track *webrtc.TrackRemote) {
	done := make(chan struct{})
	defer close(done)

	if track.Kind() == webrtc.RTPCodecTypeVideo {
		go func() {
			ticker := time.NewTicker(rtcpPLIInterval)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					err := m.pc.WriteRTCP([]rtcp.Packet{
						&rtcp.PictureLossIndication{MediaSSRC: uint32(track.SSRC())},
					})
					if err != nil {
						return
					}
				}
			}
		}()
	}

	var first *rtp.Packet
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		if first == nil {
			first = pkt
			log.Printf("CALL: remote %s flowing (ssrc=%d pt=%d)",
				track.Kind(), pkt.SSRC, pkt.PayloadType)
		}
	}
}

func (m *pionMedia) CreateOffer() (json.RawMessage, error) {
	offer, err := m.pc.CreateOffer(nil)
	if err != nil {
		return nil, fmt.Errorf("create offer: %w", err)
	}
	if err := m.pc.SetLocalDescription(offer); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}
	return json.Marshal(offer)
}

func (m *pionMedia) CreateAnswer(offer json.RawMessage) (json.RawMessage, error) {
	var remote webrtc.SessionDescription
	if err := json.Unmarshal(offer, &remote); err != nil {
		return nil, fmt.Errorf("parse offer: %w", err)
	}
	if err := m.pc.SetRemoteDescription(remote); err != nil {
		return nil, fmt.Errorf("set remote description: %w", err)
	}
	answer, err := m.pc.CreateAnswer(nil)
	if err != nil {
		return nil, fmt.Errorf("create answer: %w", err)
	}
	if err := m.pc.SetLocalDescription(answer); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}
	return json.Marshal(answer)
}

func (m *pionMedia) AcceptAnswer(answer json.RawMessage) error {
	var remote webrtc.SessionDescription
	if err := json.Unmarshal(answer, &remote); err != nil {
		return fmt.Errorf("parse answer: %w", err)
	}
	if err := m.pc.SetRemoteDescription(remote); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

func (m *pionMedia) AddCandidate(candidate json.RawMessage) error {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal(candidate, &init); err != nil {
		return fmt.Errorf("parse candidate: %w", err)
	}
	return m.pc.AddICECandidate(init)
}

func (m *pionMedia) OnCandidate(fn func(json.RawMessage)) {
	m.mu.Lock()
	m.onCandidate = fn
	m.mu.Unlock()
}

func (m *pionMedia) OnRemoteTrack(fn func()) {
	m.mu.Lock()
	m.onRemote = fn
	m.mu.Unlock()
}

func (m *pionMedia) Close() {
	m.closeOnce.Do(func() {
		if m.stopCapture != nil {
			m.stopCapture()
		}
		if err := m.pc.Close(); err != nil {
			log.Printf("CALL: close peer connection: %v", err)
		}
	})
}

// addRecvOnlyVideo adds a recvonly video transceiver so an audio-mode call
// still produces a video m-line and can display the remote camera if the
// peer offers one.
func addRecvOnlyVideo(pc *webrtc.PeerConnection) {
	_, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	})
	if err != nil {
		log.Printf("CALL: AddTransceiver(video) error: %v", err)
	}
}
