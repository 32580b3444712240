package embedding

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/tiktoken-go/tokenizer"

	"github.com/thebtf/semcache/internal/config"
)

const (
	openAIDefaultBaseURL = "https://api.openai.com/v1"
	openAIDefaultModel   = "text-embedding-3-small"
	openAIHTTPTimeout    = 30 * time.Second
)

func init() {
	Register("openai", newOpenAIModel)
}

// openAIModel calls an OpenAI-compatible embeddings endpoint. Inputs are
// truncated to the model's token budget with the cl100k_base tokenizer
// before submission, so over-long queries degrade instead of erroring.
type openAIModel struct {
	client     *http.Client
	codec      tokenizer.Codec
	baseURL    string
	apiKey     string
	modelName  string
	dimensions int
	maxTokens  int
}

var _ Model = (*openAIModel)(nil)

type openAIEmbedRequest struct {
	Input          []string `json:"input"`
	Model          string   `json:"model"`
	EncodingFormat string   `json:"encoding_format"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

func newOpenAIModel(cfg config.EmbeddingConfig) (Model, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api_key is required for the openai embedding model")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = openAIDefaultBaseURL
	}
	dimensions := cfg.Dimension
	if dimensions <= 0 {
		return nil, fmt.Errorf("embedding dimension required for the openai model")
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8191
	}

	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return nil, fmt.Errorf("load cl100k_base tokenizer: %w", err)
	}

	modelName := cfg.Name
	if modelName == "" {
		modelName = openAIDefaultModel
	}

	return &openAIModel{
		client:     &http.Client{Timeout: openAIHTTPTimeout},
		codec:      codec,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     cfg.APIKey,
		modelName:  modelName,
		dimensions: dimensions,
		maxTokens:  maxTokens,
	}, nil
}

func (m *openAIModel) Name() string    { return m.modelName }
func (m *openAIModel) Dimensions() int { return m.dimensions }
func (m *openAIModel) Close() error    { return nil }

// truncate clips text to the token budget.
func (m *openAIModel) truncate(text string) (string, error) {
	ids, _, err := m.codec.Encode(text)
	if err != nil {
		return "", fmt.Errorf("tokenize input: %w", err)
	}
	if len(ids) <= m.maxTokens {
		return text, nil
	}
	clipped, err := m.codec.Decode(ids[:m.maxTokens])
	if err != nil {
		return "", fmt.Errorf("decode truncated input: %w", err)
	}
	return clipped, nil
}

// Embed generates an embedding for a single text.
func (m *openAIModel) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return make([]float32, m.dimensions), nil
	}

	text, err := m.truncate(text)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(openAIEmbedRequest{
		Input:          []string{text},
		Model:          m.modelName,
		EncodingFormat: "float",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send embedding request to %s: %w", m.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("embedding API error (model=%s, status=%d): %s",
			m.modelName, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var embedResp openAIEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("decode embedding response from %s: %w", m.baseURL, err)
	}
	if len(embedResp.Data) == 0 {
		return nil, fmt.Errorf("embedding API returned no results for model %s", m.modelName)
	}

	sort.Slice(embedResp.Data, func(i, j int) bool {
		return embedResp.Data[i].Index < embedResp.Data[j].Index
	})

	vec := embedResp.Data[0].Embedding
	if len(vec) != m.dimensions {
		return nil, fmt.Errorf("embedding API returned dimension %d, want %d", len(vec), m.dimensions)
	}
	return vec, nil
}
