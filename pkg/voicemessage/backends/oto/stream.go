package oto

import (
	"context"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/voicemessage/pkg/voicemessage/types"
)

const drainPollInterval = 10 * time.Millisecond

type Stream struct {
	*oto.Player
	ctx context.Context
}

var _ types.PlayStream = (*Stream)(nil)

func newStream(ctx context.Context, player *oto.Player) *Stream {
	return &Stream{
		Player: player,
		ctx:    ctx,
	}
}

// Drain waits until the player runs out of data. oto does not notify
// about that, so the state is polled.
func (s *Stream) Drain() error {
	t := time.NewTicker(drainPollInterval)
	defer t.Stop()
	for s.Player.IsPlaying() {
		select {
		case <-s.ctx.Done():
			return s.ctx.Err()
		case <-t.C:
		}
	}
	logger.Debugf(s.ctx, "the oto player drained")
	return s.Player.Err()
}

func (s *Stream) Close() error {
	return s.Player.Close()
}
