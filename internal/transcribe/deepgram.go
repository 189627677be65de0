// Package transcribe converts recorded audio to text using the Deepgram
// pre-recorded transcription API.
package transcribe

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
)

const defaultListenURL = "https://api.deepgram.com/v1/listen"

// DeepgramClient transcribes audio blobs over the REST listen endpoint.
type DeepgramClient struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

func NewDeepgramClient(apiKey string) *DeepgramClient {
	return &DeepgramClient{
		apiKey:  apiKey,
		model:   "nova-3",
		baseURL: defaultListenURL,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// Transcribe sends the audio to Deepgram and returns the transcript text.
// locale selects the recognition language; empty means multi-language
// detection.
func (c *DeepgramClient) Transcribe(ctx context.Context, audio []byte, locale string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("deepgram api key not configured")
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid listen url: %w", err)
	}
	q := u.Query()
	q.Set("model", c.model)
	q.Set("smart_format", "true")
	if locale != "" {
		q.Set("language", locale)
	} else {
		q.Set("detect_language", "true")
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("Content-Type", "audio/webm")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("deepgram request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("deepgram returned %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var parsed struct {
		Results struct {
			Channels []struct {
				Alternatives []struct {
					Transcript string `json:"transcript"`
				} `json:"alternatives"`
			} `json:"channels"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if len(parsed.Results.Channels) == 0 || len(parsed.Results.Channels[0].Alternatives) == 0 {
		return "", fmt.Errorf("no transcript in response")
	}
	return strings.TrimSpace(parsed.Results.Channels[0].Alternatives[0].Transcript), nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
