package signal_test

import (
	"strings"
	"testing"

	"github.com/dkeye/Tetris/internal/adapters/signal"
	"github.com/dkeye/Tetris/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecoder_Decode(t *testing.T) {
	d := signal.Decoder{}

	tests := []struct {
		name    string
		frame   string
		want    signal.Command
		wantErr error
	}{
		{
			name:  "join room",
			frame: `{"type":"join-room","data":{"roomName":"lobby","playerName":"alice"}}`,
			want:  &signal.JoinRoom{RoomName: "lobby", PlayerName: "alice"},
		},
		{
			name:  "join room with token",
			frame: `{"type":"join-room","data":{"roomName":"lobby","playerName":"alice","reconnectionToken":"t"}}`,
			want:  &signal.JoinRoom{RoomName: "lobby", PlayerName: "alice", ReconnectionToken: "t"},
		},
		{
			name:  "ready",
			frame: `{"type":"player-ready","data":{"ready":true}}`,
			want:  &signal.PlayerReady{Ready: true},
		},
		{
			name:  "start without data",
			frame: `{"type":"start-game"}`,
			want:  &signal.StartGame{},
		},
		{
			name:  "fast start",
			frame: `{"type":"start-game","data":{"fast":true}}`,
			want:  &signal.StartGame{Fast: true},
		},
		{
			name:  "game action",
			frame: `{"type":"game-action","data":{"action":"hard-drop"}}`,
			want:  &signal.GameAction{Action: domain.ActionHardDrop},
		},
		{
			name:  "heartbeat with null data",
			frame: `{"type":"heartbeat","data":null}`,
			want:  &signal.Heartbeat{},
		},
		{
			name:  "quit",
			frame: `{"type":"quit-game"}`,
			want:  &signal.QuitGame{},
		},
		{
			name:  "chat is trimmed",
			frame: `{"type":"chat-message","data":{"message":"  gg  "}}`,
			want:  &signal.ChatMessage{Message: "gg"},
		},
		{name: "not json", frame: `{`, wantErr: signal.ErrBadPayload},
		{name: "unknown command", frame: `{"type":"rename"}`, wantErr: signal.ErrUnknownCommand},
		{name: "unknown field", frame: `{"type":"player-ready","data":{"ready":true,"extra":1}}`, wantErr: signal.ErrBadPayload},
		{name: "wrong field type", frame: `{"type":"player-ready","data":{"ready":"yes"}}`, wantErr: signal.ErrBadPayload},
		{name: "unknown action", frame: `{"type":"game-action","data":{"action":"hold"}}`, wantErr: signal.ErrBadPayload},
		{name: "empty chat", frame: `{"type":"chat-message","data":{"message":"   "}}`, wantErr: signal.ErrBadPayload},
		{name: "empty player name", frame: `{"type":"join-room","data":{"roomName":"lobby","playerName":" "}}`, wantErr: domain.ErrPlayerNameEmpty},
		{name: "missing room", frame: `{"type":"join-room","data":{"playerName":"alice"}}`, wantErr: domain.ErrRoomNameEmpty},
		{name: "reconnect needs token", frame: `{"type":"request-reconnection","data":{"roomName":"lobby","playerName":"alice"}}`, wantErr: signal.ErrBadPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := d.Decode([]byte(tt.frame))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecoder_ChatIsCapped(t *testing.T) {
	d := signal.Decoder{MaxChatRunes: 5}
	cmd, err := d.Decode([]byte(`{"type":"chat-message","data":{"message":"привет мир"}}`))
	require.NoError(t, err)
	assert.Equal(t, "приве", cmd.(*signal.ChatMessage).Message)

	long := strings.Repeat("a", 500)
	cmd, err = signal.Decoder{}.Decode([]byte(`{"type":"chat-message","data":{"message":"` + long + `"}}`))
	require.NoError(t, err)
	assert.Len(t, cmd.(*signal.ChatMessage).Message, signal.DefaultMaxChatRunes)
}
