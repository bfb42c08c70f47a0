package oto

import (
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/xaionaro-go/voicemessage/pkg/voicemessage/types"
)

// oto allows a single context per process, so every preview is
// converted into this format.
const (
	SampleRate = types.SampleRate(48000)
	Channels   = types.Channel(2)
	Format     = types.PCMFormatFloat32LE
	BufferSize = 100 * time.Millisecond
)

var (
	otoContextOnce sync.Once
	otoContext     *oto.Context
	otoContextErr  error
)

func getOtoContext() (*oto.Context, error) {
	otoContextOnce.Do(func() {
		var ready chan struct{}
		otoContext, ready, otoContextErr = oto.NewContext(&oto.NewContextOptions{
			SampleRate:   int(SampleRate),
			ChannelCount: int(Channels),
			Format:       oto.FormatFloat32LE,
			BufferSize:   BufferSize,
		})
		if otoContextErr == nil {
			<-ready
		}
	})
	return otoContext, otoContextErr
}
