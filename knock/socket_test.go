package knock

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestEncodeSocketFrame(t *testing.T) {
	frameBytes, err := encodeSocketFrame("1", "1", "feeds:a:b", "phx_join", map[string]any{})
	assert.Equal(t, nil, err)
	assert.Equal(t, `["1","1","feeds:a:b","phx_join",{}]`, string(frameBytes))

	// heartbeats carry no join ref
	frameBytes, err = encodeSocketFrame("", "2", "phoenix", "heartbeat", map[string]any{})
	assert.Equal(t, nil, err)
	assert.Equal(t, `[null,"2","phoenix","heartbeat",{}]`, string(frameBytes))
}

func TestDecodeSocketFrame(t *testing.T) {
	frame, err := decodeSocketFrame([]byte(`["1","2","feeds:a:b","phx_reply",{"status":"ok","response":{}}]`))
	assert.Equal(t, nil, err)
	assert.Equal(t, "1", frame.joinRef)
	assert.Equal(t, "2", frame.ref)
	assert.Equal(t, "feeds:a:b", frame.topic)
	assert.Equal(t, "phx_reply", frame.event)
	assert.Equal(t, `{"status":"ok","response":{}}`, string(frame.payload))

	// server pushes carry null refs
	frame, err = decodeSocketFrame([]byte(`[null,null,"feeds:a:b","new-message",{"event":"new-message"}]`))
	assert.Equal(t, nil, err)
	assert.Equal(t, "", frame.joinRef)
	assert.Equal(t, "", frame.ref)
	assert.Equal(t, "new-message", frame.event)
}

func TestDecodeSocketFrameErrors(t *testing.T) {
	_, err := decodeSocketFrame([]byte(`not json`))
	assert.NotEqual(t, nil, err)

	_, err = decodeSocketFrame([]byte(`["1","2","topic","event"]`))
	assert.NotEqual(t, nil, err)

	_, err = decodeSocketFrame([]byte(`[null,null,7,"event",{}]`))
	assert.NotEqual(t, nil, err)
}

func TestFeedTopic(t *testing.T) {
	assert.Equal(t, "feeds:channel_1:user_1", feedTopic("channel_1:user_1"))
	assert.Equal(
		t,
		"feeds:channel_1:user_1",
		feedTopic(buildUserFeedId("channel_1", "user_1")),
	)
}
