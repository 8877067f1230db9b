package call

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sabihealth/outreach/internal/message"
	"github.com/sabihealth/outreach/internal/shared/config"
)

// Delivery plays a script to the recipient and returns a playable audio
// reference. An empty reference means there is no audio channel.
type Delivery interface {
	Name() string
	Deliver(ctx context.Context, script string, persona message.Persona) (string, error)
}

// NewDelivery selects the delivery backend from config
func NewDelivery(cfg config.DeliveryConfig) (Delivery, error) {
	switch cfg.Mode {
	case "simulated":
		return NewSimulatedDelivery(), nil
	case "tts":
		return NewTTSDelivery(cfg)
	}
	return nil, fmt.Errorf("unknown delivery mode %q", cfg.Mode)
}

// SimulatedDelivery acknowledges every script without producing audio
type SimulatedDelivery struct{}

func NewSimulatedDelivery() *SimulatedDelivery {
	return &SimulatedDelivery{}
}

func (d *SimulatedDelivery) Name() string { return "simulated" }

func (d *SimulatedDelivery) Deliver(ctx context.Context, script string, persona message.Persona) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "", nil
}

// TTSDelivery synthesizes the script with a text-to-speech API, stores the
// audio under AudioDir and returns its public URL.
type TTSDelivery struct {
	client    *http.Client
	url       string
	apiKey    string
	publicURL string
	audioDir  string
}

// NewTTSDelivery creates a TTS delivery backend
func NewTTSDelivery(cfg config.DeliveryConfig) (*TTSDelivery, error) {
	if cfg.TTSAPIKey == "" {
		return nil, fmt.Errorf("tts delivery requires TTS_API_KEY")
	}
	if err := os.MkdirAll(cfg.AudioDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audio dir: %w", err)
	}
	return &TTSDelivery{
		client:    &http.Client{Timeout: cfg.Timeout},
		url:       cfg.TTSURL,
		apiKey:    cfg.TTSAPIKey,
		publicURL: strings.TrimSuffix(cfg.PublicAudioURL, "/"),
		audioDir:  cfg.AudioDir,
	}, nil
}

func (d *TTSDelivery) Name() string { return "tts" }

type ttsRequest struct {
	Text           string `json:"text"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
}

// Deliver posts the script and saves the returned mp3
func (d *TTSDelivery) Deliver(ctx context.Context, script string, persona message.Persona) (string, error) {
	voice := persona.Voice
	if voice == "" {
		voice = message.DefaultPersona.Voice
	}
	body, err := json.Marshal(ttsRequest{Text: script, Voice: voice, ResponseFormat: "mp3"})
	if err != nil {
		return "", fmt.Errorf("failed to marshal tts request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create tts request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+d.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("tts request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("tts returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, 20<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read tts audio: %w", err)
	}
	if len(audio) == 0 {
		return "", fmt.Errorf("tts returned empty audio")
	}

	filename := uuid.New().String() + ".mp3"
	if err := os.WriteFile(filepath.Join(d.audioDir, filename), audio, 0o644); err != nil {
		return "", fmt.Errorf("failed to store audio: %w", err)
	}
	return d.publicURL + "/" + filename, nil
}

// MockDelivery is a mock delivery backend for testing
type MockDelivery struct {
	mu         sync.RWMutex
	delivered  []string
	failOnSend bool
	sendDelay  time.Duration
}

// NewMockDelivery creates a new mock delivery backend
func NewMockDelivery() *MockDelivery {
	return &MockDelivery{}
}

func (d *MockDelivery) Name() string { return "mock" }

// Deliver records the script (mock implementation). The delay honours ctx.
func (d *MockDelivery) Deliver(ctx context.Context, script string, persona message.Persona) (string, error) {
	d.mu.RLock()
	delay, fail := d.sendDelay, d.failOnSend
	d.mu.RUnlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if fail {
		return "", fmt.Errorf("mock send failure")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.delivered = append(d.delivered, script)
	return fmt.Sprintf("mock://audio/%d.mp3", len(d.delivered)), nil
}

// SetFailOnSend configures the mock to fail on Deliver
func (d *MockDelivery) SetFailOnSend(fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failOnSend = fail
}

// SetSendDelay sets artificial delay for Deliver
func (d *MockDelivery) SetSendDelay(delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sendDelay = delay
}

// Delivered returns all delivered scripts
func (d *MockDelivery) Delivered() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.delivered...)
}
