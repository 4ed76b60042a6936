// Package imagegen talks to an OpenAI-style image generation API that
// may answer synchronously with image URLs or hand back an async task
// to poll.
package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	defaultSize = "1024x1024"

	pollInitialDelay = time.Second
	pollMaxDelay     = 10 * time.Second
	pollMaxAttempts  = 30
)

// Client generates images from text prompts.
type Client struct {
	endpoint string
	apiKey   string
	model    string
	size     string
	client   *http.Client
	logger   *zap.Logger

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New returns an image client against the given endpoint.
func New(endpoint, apiKey, model string, logger *zap.Logger) *Client {
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		size:     defaultSize,
		client:   &http.Client{Timeout: 60 * time.Second},
		logger:   logger,
		sleep:    sleepCtx,
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Size   string `json:"size"`
}

type generateResponse struct {
	Images []struct {
		URL string `json:"url"`
	} `json:"images"`
	OutputImages []string `json:"output_images"`
	TaskID       string   `json:"task_id"`
}

type taskResponse struct {
	TaskStatus   string   `json:"task_status"`
	OutputImages []string `json:"output_images"`
	Error        string   `json:"error"`
}

// Generate submits a prompt and returns the URL of the generated
// image, polling the task endpoint when the API answers
// asynchronously.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("image generation not configured")
	}

	body, err := json.Marshal(generateRequest{Model: c.model, Prompt: prompt, Size: c.size})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint+"/v1/images/generations", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("image API error %d: %s", resp.StatusCode, string(respBody))
	}

	var gen generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gen); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	switch {
	case len(gen.Images) > 0 && gen.Images[0].URL != "":
		return gen.Images[0].URL, nil
	case len(gen.OutputImages) > 0:
		return gen.OutputImages[0], nil
	case gen.TaskID != "":
		c.logger.Info("image task queued", zap.String("task_id", gen.TaskID))
		return c.pollTask(ctx, gen.TaskID)
	default:
		return "", fmt.Errorf("image API returned no image and no task")
	}
}

// pollTask polls the task until it succeeds, fails, or the attempt
// budget runs out. The delay doubles each round up to a cap.
func (c *Client) pollTask(ctx context.Context, taskID string) (string, error) {
	delay := pollInitialDelay
	for attempt := 0; attempt < pollMaxAttempts; attempt++ {
		if err := c.sleep(ctx, delay); err != nil {
			return "", err
		}
		if delay *= 2; delay > pollMaxDelay {
			delay = pollMaxDelay
		}

		task, err := c.fetchTask(ctx, taskID)
		if err != nil {
			c.logger.Warn("task status query failed", zap.Error(err))
			continue
		}

		switch task.TaskStatus {
		case "SUCCEED":
			if len(task.OutputImages) == 0 {
				return "", fmt.Errorf("task %s succeeded without images", taskID)
			}
			return task.OutputImages[0], nil
		case "FAILED":
			return "", fmt.Errorf("image task %s failed: %s", taskID, task.Error)
		}
	}
	return "", fmt.Errorf("image task %s did not finish after %d polls", taskID, pollMaxAttempts)
}

func (c *Client) fetchTask(ctx context.Context, taskID string) (*taskResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.endpoint+"/v1/tasks/"+taskID, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("X-ModelScope-Task-Type", "image_generation")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query task: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("task API error %d", resp.StatusCode)
	}

	var task taskResponse
	if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
		return nil, fmt.Errorf("decode task: %w", err)
	}
	return &task, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
