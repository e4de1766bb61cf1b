// Package vision asks an OpenAI-compatible vision model to describe an image.
//
// The API credential is supplied per call: each request to the service
// carries its own key, so a model client is built for every description.
// Calls are billable and not retried here.
package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/toricodesthings/pdf-content-service/internal/apperr"
)

const (
	DefaultModel     = "gpt-4o"
	DefaultMaxTokens = 500
	DefaultPrompt    = "You are a helpful assistant that can describe images in detail."
)

// ErrDescription is wrapped by every failure returned from Describe.
var ErrDescription = errors.New("description service error")

// Description is the model's answer. Usage is nil when the provider did not
// report a token count.
type Description struct {
	Text  string
	Usage *int
}

type Client struct {
	Model      string
	Prompt     string
	MaxTokens  int
	BaseURL    string // empty means the provider default
	Timeout    time.Duration
	HTTPClient *http.Client
	Log        logrus.FieldLogger
}

func New(model, prompt string, maxTokens int, baseURL string, timeout time.Duration, log logrus.FieldLogger) *Client {
	if model == "" {
		model = DefaultModel
	}
	if prompt == "" {
		prompt = DefaultPrompt
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Client{
		Model:      model,
		Prompt:     prompt,
		MaxTokens:  maxTokens,
		BaseURL:    baseURL,
		Timeout:    timeout,
		HTTPClient: &http.Client{Timeout: timeout},
		Log:        log,
	}
}

// Describe sends a PNG to the model using credential as the API key.
func (c *Client) Describe(ctx context.Context, png []byte, credential string) (Description, error) {
	if credential == "" {
		return Description{}, apperr.New(apperr.InvalidInput, "No OpenAI API key provided")
	}

	opts := []openai.Option{
		openai.WithToken(credential),
		openai.WithModel(c.Model),
	}
	if c.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(c.BaseURL))
	}
	if c.HTTPClient != nil {
		opts = append(opts, openai.WithHTTPClient(c.HTTPClient))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return Description{}, fail(ctx, err)
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := llm.GenerateContent(ctx, []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(c.Prompt)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.ImageURLPart("data:image/png;base64," + base64.StdEncoding.EncodeToString(png))},
		},
	}, llms.WithMaxTokens(c.MaxTokens))
	if err != nil {
		return Description{}, fail(ctx, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return Description{}, fail(ctx, errors.New("empty response"))
	}

	choice := resp.Choices[0]
	out := Description{Text: choice.Content}
	if n, ok := choice.GenerationInfo["TotalTokens"].(int); ok && n >= 0 {
		out.Usage = &n
	}

	if c.Log != nil {
		entry := c.Log.WithFields(logrus.Fields{
			"model":    c.Model,
			"duration": time.Since(start).Round(time.Millisecond),
		})
		if out.Usage != nil {
			entry = entry.WithField("tokens", *out.Usage)
		}
		entry.Debug("image described")
	}
	return out, nil
}

// fail reports an expired deadline, the request's or the client timeout, as
// a timeout.
func fail(ctx context.Context, err error) error {
	if cerr := ctx.Err(); errors.Is(cerr, context.DeadlineExceeded) {
		return apperr.Wrap(apperr.ProcessTimeout, fmt.Errorf("%w: %w: %v", ErrDescription, cerr, err), "Image description timed out")
	}
	return apperr.Wrap(apperr.ExternalService, fmt.Errorf("%w: %w", ErrDescription, err), "Failed to generate image description")
}
