package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ChatPlugin/ChatPlugin-sub007/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscordWebhookRelay(t *testing.T) {
	tests := []struct {
		name string
		msg  *protocol.DiscordMessage
		want discordWebhookPayload
	}{
		{
			name: "plain",
			msg:  &protocol.DiscordMessage{Type: protocol.DiscordPlain, ChannelID: "1", Text: "hello"},
			want: discordWebhookPayload{Content: "hello"},
		},
		{
			name: "embed",
			msg:  &protocol.DiscordMessage{Type: protocol.DiscordEmbed, ChannelID: "1", Title: "Ban", Description: "Steve", Color: 0xff0000},
			want: discordWebhookPayload{Embeds: []discordEmbed{{Title: "Ban", Description: "Steve", Color: 0xff0000}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got discordWebhookPayload
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				w.WriteHeader(http.StatusNoContent)
			}))
			defer srv.Close()

			require.NoError(t, NewDiscordWebhookRelay(srv.URL).SendDiscord(context.Background(), tt.msg))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTelegramBotRelay(t *testing.T) {
	var got telegramSendMessage
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	relay := NewTelegramBotRelay(srv.URL+"/", "123:abc")
	require.NoError(t, relay.SendTelegram(context.Background(), &protocol.TelegramMessage{ChatID: "-100", Text: "hi"}))

	assert.Equal(t, "/bot123:abc/sendMessage", path)
	assert.Equal(t, telegramSendMessage{ChatID: "-100", Text: "hi"}, got)
}

func TestRelay_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewDiscordWebhookRelay(srv.URL).SendDiscord(context.Background(), &protocol.DiscordMessage{Type: protocol.DiscordPlain})
	assert.ErrorContains(t, err, "429")
}

func TestTelegramBotRelay_ErrorHidesToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	api := srv.URL
	srv.Close()

	relay := NewTelegramBotRelay(api, "123:secret-token")
	err := relay.SendTelegram(context.Background(), &protocol.TelegramMessage{ChatID: "-100", Text: "hi"})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret-token")
	assert.NotContains(t, err.Error(), api)
}

func TestDiscordWebhookRelay_ErrorHidesURL(t *testing.T) {
	err := NewDiscordWebhookRelay("http://[::1/api/webhooks/1/secret-token").
		SendDiscord(context.Background(), &protocol.DiscordMessage{Type: protocol.DiscordPlain, Text: "hi"})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret-token")
}
