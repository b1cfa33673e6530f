// Package backend is the HTTP client for the local inference server's
// generate API. The conversation core treats it as an external
// collaborator: long-running, fallible, and never called under the
// manager's lock.
package backend

import (
	"errors"
	"time"
)

// Sentinel errors for backend operations.
var (
	// ErrUnavailable indicates the inference backend failed, returned a
	// server error, or could not be reached.
	ErrUnavailable = errors.New("backend unavailable")
)

const (
	defaultBaseURL = "http://localhost:11434"
	defaultModel   = "gpt-oss:20b"
	defaultTimeout = 300 * time.Second
	defaultNumCtx  = 8192

	// Generation floor: the backend produces unusable fragments below this.
	minPredictTokens = 100
)

// Config holds backend client configuration.
type Config struct {
	// BaseURL is the inference server root, e.g. "http://localhost:11434".
	BaseURL string

	// Model is the model name sent with every request.
	Model string

	// Timeout bounds a single non-streaming generate call.
	Timeout time.Duration

	// NumCtx is the context window size requested from the backend.
	NumCtx int
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.NumCtx <= 0 {
		c.NumCtx = defaultNumCtx
	}
}

// Params are the caller-tunable sampling parameters, as accepted on the
// bridge's wire format. Zero values fall back to server-side defaults.
type Params struct {
	MaxNewTokens      int      `json:"max_new_tokens,omitempty"`
	Temperature       *float64 `json:"temperature,omitempty"`
	TopP              *float64 `json:"top_p,omitempty"`
	TopK              *int     `json:"top_k,omitempty"`
	RepetitionPenalty *float64 `json:"repetition_penalty,omitempty"`
	StopSequences     []string `json:"stop_sequences,omitempty"`
}

// Options is the backend wire format for sampling options.
type Options struct {
	Temperature   float64  `json:"temperature"`
	TopP          float64  `json:"top_p"`
	TopK          int      `json:"top_k"`
	NumPredict    int      `json:"num_predict"`
	NumCtx        int      `json:"num_ctx"`
	RepeatPenalty float64  `json:"repeat_penalty"`
	Stop          []string `json:"stop,omitempty"`
}

// GenerateRequest is the backend generate API request body.
type GenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`

	// Context carries the opaque continuation tokens from a previous
	// response; when present the backend resumes from compressed state
	// instead of re-reading the full prompt history.
	Context []int `json:"context,omitempty"`

	Stream  bool    `json:"stream"`
	Options Options `json:"options"`
}

// GenerateResponse is a single backend response (or streaming chunk).
type GenerateResponse struct {
	Response string `json:"response"`
	Thinking string `json:"thinking,omitempty"`
	Context  []int  `json:"context,omitempty"`
	Done     bool   `json:"done"`

	PromptEvalCount int `json:"prompt_eval_count,omitempty"`
	EvalCount       int `json:"eval_count,omitempty"`
}

// BuildOptions maps caller params onto the backend options block,
// applying the documented defaults and the generation floor.
func (c Config) BuildOptions(p Params) Options {
	opts := Options{
		Temperature:   0.7,
		TopP:          0.95,
		TopK:          40,
		NumPredict:    500,
		NumCtx:        c.NumCtx,
		RepeatPenalty: 1.1,
		Stop:          p.StopSequences,
	}
	if p.Temperature != nil {
		opts.Temperature = *p.Temperature
	}
	if p.TopP != nil {
		opts.TopP = *p.TopP
	}
	if p.TopK != nil {
		opts.TopK = *p.TopK
	}
	if p.RepetitionPenalty != nil {
		opts.RepeatPenalty = *p.RepetitionPenalty
	}
	if p.MaxNewTokens > 0 {
		opts.NumPredict = p.MaxNewTokens
	}
	if opts.NumPredict < minPredictTokens {
		opts.NumPredict = minPredictTokens
	}
	return opts
}
