package pulseaudio

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/voicemessage/pkg/voicemessage/types"
)

func TestCaptureHandleForwardsWritesInOrder(t *testing.T) {
	h := newCaptureHandle(context.Background(), nil, types.PCMMIMEType(types.PCMFormatS16LE, 44100, 1))

	buf := make([]byte, 2)
	for i := 0; i < 100; i++ {
		buf[0], buf[1] = byte(i), byte(i>>8)
		n, err := h.Write(buf)
		require.NoError(t, err)
		require.Equal(t, 2, n)
	}
	require.NoError(t, h.RequestStop())

	var got []types.Fragment
	for fragment := range h.Fragments() {
		got = append(got, fragment)
	}
	require.Len(t, got, 100)
	for i, fragment := range got {
		assert.Equal(t, types.Fragment{byte(i), byte(i >> 8)}, fragment, fmt.Sprintf("fragment #%d", i))
	}
}

func TestCaptureHandleIgnoresWritesAfterStop(t *testing.T) {
	h := newCaptureHandle(context.Background(), nil, "")
	_, err := h.Write([]byte{1})
	require.NoError(t, err)
	require.NoError(t, h.RequestStop())
	require.NoError(t, h.RequestStop())

	n, err := h.Write([]byte{2})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	var got []types.Fragment
	for fragment := range h.Fragments() {
		got = append(got, fragment)
	}
	assert.Equal(t, []types.Fragment{{1}}, got)
}

func TestToChannelMap(t *testing.T) {
	m, err := toChannelMap(1)
	require.NoError(t, err)
	assert.Len(t, m, 1)

	m, err = toChannelMap(2)
	require.NoError(t, err)
	assert.Len(t, m, 2)

	_, err = toChannelMap(6)
	assert.Error(t, err)
}
