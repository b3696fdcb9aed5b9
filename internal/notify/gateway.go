package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// HTTPGateway posts push requests to a provider endpoint as JSON.
type HTTPGateway struct {
	url    string
	client *http.Client
}

func NewHTTPGateway(url string) *HTTPGateway {
	return &HTTPGateway{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type pushRequest struct {
	Token string            `json:"token"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

func (g *HTTPGateway) SendPush(ctx context.Context, token, title, body string, data map[string]string) error {
	payload, err := json.Marshal(pushRequest{
		Token: token,
		Title: title,
		Body:  body,
		Data:  data,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("push gateway responded %d", resp.StatusCode)
	}
	return nil
}

// NoopGateway stands in when no provider is configured.
type NoopGateway struct {
	log zerolog.Logger
}

func NewNoopGateway(log zerolog.Logger) *NoopGateway {
	return &NoopGateway{log: log}
}

func (g *NoopGateway) SendPush(_ context.Context, _, title, _ string, _ map[string]string) error {
	g.log.Debug().Str("title", title).Msg("push gateway not configured, dropping push")
	return nil
}
