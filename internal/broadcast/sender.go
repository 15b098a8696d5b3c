package broadcast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// FCMSender delivers notifications over the FCM HTTP API.
type FCMSender struct {
	endpoint   string
	serverKey  string
	httpClient *http.Client
}

func NewFCMSender(endpoint, serverKey string) *FCMSender {
	if endpoint == "" {
		endpoint = "https://fcm.googleapis.com/fcm/send"
	}
	return &FCMSender{
		endpoint:   endpoint,
		serverKey:  serverKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type fcmMessage struct {
	To           string            `json:"to"`
	Notification Payload           `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
}

func (s *FCMSender) Send(ctx context.Context, token string, p Payload) error {
	body, err := json.Marshal(fcmMessage{To: token, Notification: p, Data: p.Data})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+s.serverKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call push provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("push provider returned status %d", resp.StatusCode)
	}
	return nil
}

// LogSender is the no-credentials fallback used in local development: it
// logs each would-be notification instead of delivering it.
type LogSender struct {
	Logger *slog.Logger
}

func (s *LogSender) Send(_ context.Context, token string, p Payload) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("push notification (log only)", "token", token, "title", p.Title, "body", p.Body)
	return nil
}
