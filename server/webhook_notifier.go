package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	WebhookEventLinked   = "link"
	WebhookEventUnlinked = "unlink"
)

// WebhookNotifier posts link and unlink notifications to a webhook URL.
// The payload is a JSON object defined by WebhookNotifierPayload.
type WebhookNotifier struct {
	url    string
	node   string
	client *http.Client
}

type WebhookNotifierPayload struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Node      string    `json:"node"`
	Server    string    `json:"server"`
	Error     string    `json:"error,omitempty"`
}

// NewWebhookNotifier creates a notifier reporting the links of node, the ID of this process
func NewWebhookNotifier(url string, node string) *WebhookNotifier {
	return &WebhookNotifier{
		url:  url,
		node: node,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (w *WebhookNotifier) OnConnect(serverID string) {
	w.send(&WebhookNotifierPayload{
		Event:     WebhookEventLinked,
		Timestamp: time.Now(),
		Node:      w.node,
		Server:    serverID,
	})
}

func (w *WebhookNotifier) OnDisconnect(serverID string, err error) {
	payload := &WebhookNotifierPayload{
		Event:     WebhookEventUnlinked,
		Timestamp: time.Now(),
		Node:      w.node,
		Server:    serverID,
	}
	if err != nil {
		payload.Error = err.Error()
	}
	w.send(payload)
}

// send posts in the background, connection events must not wait on the receiver
func (w *WebhookNotifier) send(payload *WebhookNotifierPayload) {
	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		logrus.WithError(err).Error("failed to marshal webhook payload")
		return
	}

	go func() {
		req, err := http.NewRequestWithContext(
			context.Background(),
			http.MethodPost,
			w.url,
			bytes.NewBuffer(jsonPayload),
		)
		if err != nil {
			logrus.WithError(err).Error("failed to create webhook request")
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := w.client.Do(req)
		if err != nil {
			logrus.WithError(err).Warn("Failed to send webhook notification")
			return
		}
		_ = resp.Body.Close()

		if resp.StatusCode >= 400 {
			logrus.
				WithField("status", resp.StatusCode).
				Warn("webhook receiver responded with an error")
		}
	}()
}
