package composer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	wttrBase       = "https://wttr.in"
	weatherTimeout = 5 * time.Second
	weatherTTL     = time.Hour
)

// WeatherClient fetches a one-line weather description from wttr.in
// and caches it for an hour.
type WeatherClient struct {
	city   string
	base   string
	client *http.Client
	now    func() time.Time
	logger *zap.Logger

	mu        sync.Mutex
	cached    string
	fetchedAt time.Time
}

// NewWeatherClient returns a client for the configured city. An empty
// city disables lookups.
func NewWeatherClient(city string, logger *zap.Logger) *WeatherClient {
	return &WeatherClient{
		city:   city,
		base:   wttrBase,
		client: &http.Client{Timeout: weatherTimeout},
		now:    time.Now,
		logger: logger,
	}
}

// Describe returns a short weather line like "London: ⛅️ +11°C", or
// "" when the city is unset or the lookup fails. Failures are logged,
// never fatal; the persona just writes without the weather.
func (w *WeatherClient) Describe(ctx context.Context) string {
	if w.city == "" {
		return ""
	}

	w.mu.Lock()
	if w.cached != "" && w.now().Sub(w.fetchedAt) < weatherTTL {
		cached := w.cached
		w.mu.Unlock()
		return cached
	}
	w.mu.Unlock()

	desc, err := w.fetch(ctx)
	if err != nil {
		w.logger.Debug("weather lookup failed", zap.Error(err))
		return ""
	}

	w.mu.Lock()
	w.cached = desc
	w.fetchedAt = w.now()
	w.mu.Unlock()
	return desc
}

func (w *WeatherClient) fetch(ctx context.Context) (string, error) {
	url := fmt.Sprintf("%s/%s?format=3", w.base, w.city)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch weather: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("weather service returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return "", fmt.Errorf("read weather: %w", err)
	}

	desc := strings.TrimSpace(string(body))
	// wttr.in reports errors as prose with a 200 status.
	if desc == "" || strings.Contains(desc, "Unknown location") || strings.Contains(desc, "Sorry") {
		return "", fmt.Errorf("no usable weather for %q", w.city)
	}
	return desc, nil
}
