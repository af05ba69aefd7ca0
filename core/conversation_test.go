package core

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationState_DescendCeiling(t *testing.T) {
	s := NewConversationState(3)
	assert.Equal(t, 1, s.Level())

	peer, err := s.Descend()
	require.NoError(t, err)
	assert.Equal(t, 2, peer.Level())

	peerOfPeer, err := peer.Descend()
	require.NoError(t, err)
	assert.Equal(t, 3, peerOfPeer.Level())

	_, err = peerOfPeer.Descend()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMaxDepth))
}

func TestConversationState_SharedTranscript(t *testing.T) {
	s := NewConversationState(0)
	assert.Equal(t, DefaultMaxDepth, s.MaxDepth())

	peer, err := s.Descend()
	require.NoError(t, err)

	peer.Append(ServerMessage{Role: RoleAssistant, Content: "from peer", ConversationLevel: 2})
	peer.SetResponse("done")
	peer.Set("topic", "chorus")

	hist := s.History()
	require.Len(t, hist, 1)
	assert.Equal(t, "from peer", hist[0].Content)
	assert.Equal(t, "done", s.Response())

	v, ok := s.Get("topic")
	require.True(t, ok)
	assert.Equal(t, "chorus", v)

	var snap map[string]any
	require.NoError(t, json.Unmarshal(peer.Snapshot(), &snap))
	assert.EqualValues(t, 2, snap["level"])
}
