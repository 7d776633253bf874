package gemini

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/infrastructure/resilience"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	DefaultModel   = "gemini-1.5-flash"

	// DefaultMaxInlineBytes is the service ceiling for inline document data.
	DefaultMaxInlineBytes int64 = 20 * 1024 * 1024
)

type GenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopK            int     `json:"topK"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Temperature:     0.4,
		TopK:            32,
		TopP:            1,
		MaxOutputTokens: 4096,
	}
}

type Options struct {
	BaseURL    string
	Model      string
	APIKey     string
	Timeout    time.Duration
	MaxBytes   int64
	Generation GenerationConfig
	Prompt     string
	HTTPClient *http.Client
	Executor   *resilience.Executor
}

// Client sends one document per generateContent call and returns the model's
// first text part untouched.
type Client struct {
	baseURL    string
	model      string
	apiKey     string
	timeout    time.Duration
	maxBytes   int64
	generation GenerationConfig
	prompt     string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(opts Options) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		model:      strings.TrimSpace(opts.Model),
		apiKey:     opts.APIKey,
		timeout:    opts.Timeout,
		maxBytes:   opts.MaxBytes,
		generation: opts.Generation,
		prompt:     opts.Prompt,
		httpClient: opts.HTTPClient,
		executor:   opts.Executor,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.timeout <= 0 {
		c.timeout = 120 * time.Second
	}
	if c.maxBytes <= 0 {
		c.maxBytes = DefaultMaxInlineBytes
	}
	if c.generation == (GenerationConfig{}) {
		c.generation = DefaultGenerationConfig()
	}
	if strings.TrimSpace(c.prompt) == "" {
		c.prompt = analysisPrompt
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	return c
}

func (c *Client) Analyze(ctx context.Context, doc domain.EncodedDocument) (string, error) {
	if doc.RawSize > c.maxBytes {
		return "", domain.WrapError(domain.ErrTooLarge, "analyze document",
			fmt.Errorf("%d bytes exceeds inline limit of %s", doc.RawSize, domain.FormatBytes(c.maxBytes)))
	}

	req := buildGenerateRequest(c.prompt, doc, c.generation)

	var text string
	call := func(callCtx context.Context) error {
		out, err := c.generate(callCtx, req)
		if err != nil {
			return err
		}
		text = out
		return nil
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "gemini_generate", call, classifyAnalysisError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", wrapTemporaryIfNeeded("analyze document", err)
	}
	return text, nil
}

func (c *Client) generate(ctx context.Context, req generateRequest) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var resp generateResponse
	if err := c.postJSON(callCtx, c.generatePath(), req, &resp); err != nil {
		return "", err
	}
	return resp.firstText()
}

func (c *Client) generatePath() string {
	return "/v1beta/models/" + c.model + ":generateContent"
}
