package transport

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeqLess_Wraparound(t *testing.T) {
	assert.True(t, seqLess(1, 2))
	assert.False(t, seqLess(2, 1))
	assert.False(t, seqLess(5, 5))
	assert.True(t, seqLess(65535, 0))
	assert.True(t, seqLess(65500, 10))
	assert.False(t, seqLess(10, 65500))
}

func newTestPeer() *peer {
	return newPeer(1, nil, uuid.New(), DefaultConfig(), time.Unix(0, 0))
}

func TestReceiveReliable_InOrderWithBuffering(t *testing.T) {
	p := newTestPeer()

	assert.Nil(t, p.receiveReliable(1, []byte("b")))
	assert.Nil(t, p.receiveReliable(2, []byte("c")))

	out := p.receiveReliable(0, []byte("a"))
	require.Len(t, out, 3)
	assert.Equal(t, "a", string(out[0]))
	assert.Equal(t, "b", string(out[1]))
	assert.Equal(t, "c", string(out[2]))

	// duplicates of delivered packets are dropped
	assert.Nil(t, p.receiveReliable(1, []byte("b")))
	assert.Equal(t, seqnum(3), p.nextRecvSeq)
}

func TestReceiveReliable_AcrossWrap(t *testing.T) {
	p := newTestPeer()
	p.nextRecvSeq = 65535

	assert.Nil(t, p.receiveReliable(0, []byte("second")))
	out := p.receiveReliable(65535, []byte("first"))
	require.Len(t, out, 2)
	assert.Equal(t, "first", string(out[0]))
	assert.Equal(t, "second", string(out[1]))
	assert.Equal(t, seqnum(1), p.nextRecvSeq)
}

func TestQueueReliable_AckRemovesPending(t *testing.T) {
	p := newTestPeer()
	now := time.Unix(10, 0)

	p.queueReliable([]byte("x"), now)
	p.queueReliable([]byte("y"), now)
	require.Len(t, p.pending, 2)

	p.ack(0)
	require.Len(t, p.pending, 1)
	assert.Equal(t, seqnum(1), p.pending[0].seq)

	p.ack(7)
	assert.Len(t, p.pending, 1)
}

func TestUnmarshalPacket_Rejects(t *testing.T) {
	bad := [][]byte{
		nil,
		{0, 0, 0, 0, byte(kindPing)},
		append(packet{kind: kindPing}.marshal()[:4], 99),
		packet{kind: kindAck, seq: 1}.marshal()[:6],
		packet{kind: kindConnect, token: uuid.New()}.marshal()[:10],
	}
	for _, b := range bad {
		_, ok := unmarshalPacket(b)
		assert.False(t, ok)
	}
}

func TestNextReadBackoff(t *testing.T) {
	assert.Equal(t, minReadBackoff, nextReadBackoff(0))
	assert.Equal(t, 2*time.Millisecond, nextReadBackoff(time.Millisecond))
	assert.Equal(t, maxReadBackoff, nextReadBackoff(200*time.Millisecond))
	assert.Equal(t, maxReadBackoff, nextReadBackoff(maxReadBackoff))
}
