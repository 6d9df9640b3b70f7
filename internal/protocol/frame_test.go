package protocol

import (
	"testing"

	"github.com/prep/socketpair"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	client, server, err := socketpair.New("unix")
	require.NoError(t, err)
	defer client.Close()
	defer server.Close()

	cc := NewConn(client)
	sc := NewConn(server)

	want := &Frame{ID: 7, Body: []byte("hello world")}
	require.NoError(t, cc.WriteFrame(want))

	got, err := sc.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, want.ID, got.ID)
	require.Equal(t, want.Body, got.Body)
}

func TestFrameRoundTripWithCompression(t *testing.T) {
	client, server, err := socketpair.New("unix")
	require.NoError(t, err)
	defer client.Close()
	defer server.Close()

	cc := NewConn(client)
	sc := NewConn(server)
	cc.SetCompressionThreshold(4)
	sc.SetCompressionThreshold(4)

	big := make([]byte, 512)
	for i := range big {
		big[i] = byte(i)
	}
	want := &Frame{ID: 3, Body: big}
	require.NoError(t, cc.WriteFrame(want))

	got, err := sc.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, want.ID, got.ID)
	require.Equal(t, want.Body, got.Body)
}

func TestFrameBelowThresholdIsNotCompressed(t *testing.T) {
	client, server, err := socketpair.New("unix")
	require.NoError(t, err)
	defer client.Close()
	defer server.Close()

	cc := NewConn(client)
	sc := NewConn(server)
	cc.SetCompressionThreshold(1024)
	sc.SetCompressionThreshold(1024)

	want := &Frame{ID: 1, Body: []byte("tiny")}
	require.NoError(t, cc.WriteFrame(want))

	got, err := sc.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, want.Body, got.Body)
}

func TestLazyPacketDecodesOnDemand(t *testing.T) {
	w := &writer{}
	w.i64(42)
	lp := NewLazyPacket(ClientBound, StatePlay, &Frame{ID: mustID(t, KindServerKeepAlive), Body: w.bytes()})
	require.Equal(t, KindServerKeepAlive, lp.Kind())

	p, err := lp.Packet()
	require.NoError(t, err)
	ka, ok := p.(*KeepAlive)
	require.True(t, ok)
	require.Equal(t, int64(42), ka.ID)

	raw, err := lp.IntoRaw()
	require.NoError(t, err)
	require.Equal(t, w.bytes(), raw.Body, "unedited packet forwards its original bytes")
}

func mustID(t *testing.T, k Kind) int32 {
	id, ok := IDOf(ClientBound, k)
	require.True(t, ok)
	return id
}
