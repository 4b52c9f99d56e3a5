package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ChatPlugin/ChatPlugin-sub007/protocol"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const relayTimeout = 30 * time.Second

// DiscordWebhookRelay posts relayed Discord messages to a webhook. A webhook is bound to
// one channel, so the channel ID of a message is only logged.
type DiscordWebhookRelay struct {
	url    string
	client *http.Client
}

type discordEmbed struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Color       int    `json:"color,omitempty"`
}

type discordWebhookPayload struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds,omitempty"`
}

func NewDiscordWebhookRelay(webhookURL string) *DiscordWebhookRelay {
	return &DiscordWebhookRelay{
		url: webhookURL,
		client: &http.Client{
			Timeout: relayTimeout,
		},
	}
}

func (d *DiscordWebhookRelay) SendDiscord(ctx context.Context, msg *protocol.DiscordMessage) error {
	payload := &discordWebhookPayload{}
	switch msg.Type {
	case protocol.DiscordEmbed:
		payload.Embeds = []discordEmbed{{
			Title:       msg.Title,
			Description: msg.Description,
			Color:       msg.Color,
		}}
	default:
		payload.Content = msg.Text
	}

	logrus.
		WithField("channel", msg.ChannelID).
		WithField("type", msg.Type).
		Debug("Relaying Discord message")
	return postJSON(ctx, d.client, d.url, payload)
}

// TelegramBotRelay sends relayed Telegram messages through the Bot API
type TelegramBotRelay struct {
	api    string
	token  string
	client *http.Client
}

type telegramSendMessage struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

func NewTelegramBotRelay(api, token string) *TelegramBotRelay {
	return &TelegramBotRelay{
		api:   strings.TrimSuffix(api, "/"),
		token: token,
		client: &http.Client{
			Timeout: relayTimeout,
		},
	}
}

func (t *TelegramBotRelay) SendTelegram(ctx context.Context, msg *protocol.TelegramMessage) error {
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.api, t.token)
	return postJSON(ctx, t.client, endpoint, &telegramSendMessage{
		ChatID: msg.ChatID,
		Text:   msg.Text,
	})
}

// LoggingRelay is used for relays that have not been configured
type LoggingRelay struct{}

func (LoggingRelay) SendDiscord(_ context.Context, msg *protocol.DiscordMessage) error {
	logrus.WithField("channel", msg.ChannelID).Debug("No Discord relay configured, dropping message")
	return nil
}

func (LoggingRelay) SendTelegram(_ context.Context, msg *protocol.TelegramMessage) error {
	logrus.WithField("chat", msg.ChatID).Debug("No Telegram relay configured, dropping message")
	return nil
}

// postJSON posts payload to endpoint. Errors never include endpoint since webhook and bot
// URLs carry their credentials.
func postJSON(ctx context.Context, client *http.Client, endpoint string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "failed to marshal relay payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(body))
	if err != nil {
		return errors.Wrap(withoutURL(err), "failed to create relay request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrap(withoutURL(err), "failed to send relay request")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return errors.Errorf("relay receiver responded with status %d", resp.StatusCode)
	}
	return nil
}

func withoutURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return errors.Wrap(urlErr.Err, urlErr.Op)
	}
	return err
}
