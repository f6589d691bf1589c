//go:build !(linux && cgo)

package call

import (
	"errors"

	"github.com/pion/webrtc/v4"
)

// initMediaPC on non-Linux platforms: camera/mic capture via
// pion/mediadevices needs platform drivers (V4L2/malgo) that are only wired
// up on Linux, so call attempts fail with a hardware error here.
func initMediaPC(_, _, _ string) (*webrtc.PeerConnection, func(), error) {
	return nil, nil, errors.New("media capture is not supported on this platform")
}
