//go:build linux && cgo

package call

import (
	"fmt"
	"log"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
)

// initMediaPC builds a PeerConnection with VP8+Opus codecs and captures the
// local devices for the requested mode: video mode opens camera and mic,
// audio mode opens the mic only. Capture failure is returned as-is — the
// negotiator reports it as a hardware error and drops back to idle.
func initMediaPC(mode, cam, mic string) (*webrtc.PeerConnection, func(), error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, nil, err
	}
	vpxParams.BitRate = 1_500_000 // 1.5 Mbps

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, nil, err
	}

	codecSelector := mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vpxParams),
		mediadevices.WithAudioEncoders(&opusParams),
	)

	mediaEngine := &webrtc.MediaEngine{}
	codecSelector.Populate(mediaEngine)

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, nil, err
	}

	// Generous ICE timeouts: the default 5 s disconnectedTimeout kills calls
	// over paths that hiccup briefly during re-keying or failover.
	se := webrtc.SettingEngine{}
	se.SetICETimeouts(30*time.Second, 120*time.Second, 2*time.Second)

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
		webrtc.WithSettingEngine(se),
	)

	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
	})
	if err != nil {
		return nil, nil, err
	}

	constraints := mediadevices.MediaStreamConstraints{Codec: codecSelector}
	constraints.Audio = func(c *mediadevices.MediaTrackConstraints) {
		if mic != "" {
			c.DeviceID = prop.String(mic)
		}
	}
	if mode == "video" {
		constraints.Video = func(c *mediadevices.MediaTrackConstraints) {
			if cam != "" {
				c.DeviceID = prop.String(cam)
			}
			// Exclude MJPEG — some cameras expose an MJPEG V4L2 node with
			// malformed frames that poison the VP8 encoder. Raw formats only.
			c.FrameFormat = prop.FrameFormatOneOf{
				frame.FormatYUYV,
				frame.FormatI420,
				frame.FormatI444,
				frame.FormatRGBA,
			}
			c.Width = prop.IntRanged{Max: 640}
			c.Height = prop.IntRanged{Max: 480}
		}
	}

	stream, err := mediadevices.GetUserMedia(constraints)
	if err != nil {
		pc.Close()
		return nil, nil, fmt.Errorf("capture (%s): %w", mode, err)
	}

	tracks := stream.GetTracks()
	for _, track := range tracks {
		track.OnEnded(func(err error) {
			if err != nil {
				log.Printf("CALL: local track ended: %v", err)
			}
		})
		if _, err := pc.AddTrack(track); err != nil {
			log.Printf("CALL: AddTrack error: %v", err)
		}
	}
	log.Printf("CALL: local media captured (%s) — %d tracks", mode, len(tracks))

	if mode != "video" {
		// Keep a video m-line so the remote camera can still be received.
		addRecvOnlyVideo(pc)
	}

	stopCapture := func() {
		for _, t := range tracks {
			t.Close()
		}
	}
	return pc, stopCapture, nil
}
