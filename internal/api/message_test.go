package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMessage(t *testing.T) {
	t.Run("output without tag", func(t *testing.T) {
		msg, err := decodeMessage(KindOutput, []byte(`{"session_id":"s","from_cursor":0,"to_cursor":40,"output_data":"$ ","has_more":true}`))
		require.NoError(t, err)
		delta, ok := msg.(OutputDelta)
		require.True(t, ok)
		assert.Equal(t, int64(40), delta.ToCursor)
		assert.True(t, delta.HasMore)
		assert.Nil(t, delta.Warning)
	})

	t.Run("output carrying a warning", func(t *testing.T) {
		msg, err := decodeMessage(KindOutput, []byte(`{"from_cursor":1000,"to_cursor":1000,"warning":"buffer overflow"}`))
		require.NoError(t, err)
		delta := msg.(OutputDelta)
		require.NotNil(t, delta.Warning)
		assert.Equal(t, "buffer overflow", delta.Warning.Message)
		assert.True(t, delta.Empty())
	})

	t.Run("warning tag on the output endpoint", func(t *testing.T) {
		msg, err := decodeMessage(KindOutput, []byte(`{"type":"warning","from_cursor":5,"to_cursor":9,"output_data":"abcd"}`))
		require.NoError(t, err)
		delta := msg.(OutputDelta)
		require.NotNil(t, delta.Warning)
		assert.Equal(t, "abcd", string(delta.Data))
	})

	t.Run("mismatched tag", func(t *testing.T) {
		_, err := decodeMessage(KindResizeAck, []byte(`{"type":"input_ack","status":"ok"}`))
		assert.ErrorIs(t, err, ErrMalformedResponse)
	})

	t.Run("acks", func(t *testing.T) {
		msg, err := decodeMessage(KindInputAck, []byte(`{"status":"ok","client_seq":3}`))
		require.NoError(t, err)
		assert.Equal(t, InputAck{Status: "ok", ClientSeq: 3}, msg)

		msg, err = decodeMessage(KindResizeAck, []byte(``))
		require.NoError(t, err)
		assert.Equal(t, ResizeAck{Status: "ok"}, msg)
	})

	t.Run("standalone warning", func(t *testing.T) {
		msg, err := decodeMessage(KindWarning, []byte(`{"message":"lost 12 bytes"}`))
		require.NoError(t, err)
		assert.Equal(t, Warning{Message: "lost 12 bytes"}, msg)
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := decodeMessage(MessageKind("bogus"), []byte(`{}`))
		assert.ErrorIs(t, err, ErrMalformedResponse)
	})
}
