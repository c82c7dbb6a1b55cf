// Package narrator вызывает внешнего поставщика генерации текста (Gemini, OpenAI или
// OpenAI-совместимый локальный сервер) по конфигурации из settings.
package narrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/tavernlink/internal/apperr"
	"github.com/tavernlink/internal/logger"
	"github.com/tavernlink/internal/model"
)

const (
	DefaultGeminiBase  = "https://generativelanguage.googleapis.com"
	DefaultGeminiModel = "gemini-2.5-flash"
	DefaultOpenAIBase  = "https://api.openai.com/v1"
	DefaultOpenAIModel = "gpt-4o-mini"
	DefaultLocalBase   = "http://localhost:11434/v1"
)

// Kind — вид запроса: готовые промпты npc/plot или произвольный текст (кнопки админа).
type Kind string

const (
	KindNPC    Kind = "npc"
	KindPlot   Kind = "plot"
	KindCustom Kind = "custom"
)

type Request struct {
	Kind   Kind   `json:"type"`
	Prompt string `json:"prompt,omitempty"`
}

// Client — клиент к поставщику: Gemini через SDK genai, OpenAI-совместимые — прямым HTTP. Конфигурация передаётся на каждый вызов: админ меняет её без рестарта.
type Client struct {
	httpClient *http.Client
	geminiBase string
}

func New(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{httpClient: &http.Client{Timeout: timeout}, geminiBase: DefaultGeminiBase}
}

// prompt выбирает текст запроса: явный prompt важнее промпта из конфигурации.
func prompt(cfg model.AIConfig, req Request) (string, error) {
	if p := strings.TrimSpace(req.Prompt); p != "" {
		return p, nil
	}
	switch req.Kind {
	case KindNPC:
		return cfg.Prompts.NPC, nil
	case KindPlot:
		return cfg.Prompts.Plot, nil
	}
	return "", apperr.New(apperr.Invalid, "prompt is required")
}

// Generate возвращает сгенерированный текст. Недоступный поставщик — Internal (с логом).
func (c *Client) Generate(ctx context.Context, cfg model.AIConfig, req Request) (string, error) {
	defer logger.DeferLogDuration("narrator.Generate", time.Now())()
	text, err := prompt(cfg, req)
	if err != nil {
		return "", err
	}
	switch cfg.Provider {
	case model.AIProviderGemini:
		if cfg.APIKey == "" {
			return "", apperr.New(apperr.Invalid, "ai provider is not configured")
		}
		return c.gemini(ctx, cfg, text)
	case model.AIProviderOpenAI:
		if cfg.APIKey == "" {
			return "", apperr.New(apperr.Invalid, "ai provider is not configured")
		}
		return c.chatCompletions(ctx, cfg, text, DefaultOpenAIBase, DefaultOpenAIModel)
	case model.AIProviderLocal:
		return c.chatCompletions(ctx, cfg, text, DefaultLocalBase, "llama3")
	}
	return "", apperr.New(apperr.Invalid, "unknown ai provider")
}

func (c *Client) gemini(ctx context.Context, cfg model.AIConfig, text string) (string, error) {
	modelName := cfg.ModelName
	if modelName == "" {
		modelName = DefaultGeminiModel
	}
	base := c.geminiBase
	if cfg.BaseURL != "" {
		base = cfg.BaseURL
	}
	// клиент на вызов: ключ и адрес меняются в настройках без рестарта
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  c.httpClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: strings.TrimSuffix(base, "/") + "/"},
	})
	if err != nil {
		return "", apperr.Wrap(apperr.Invalid, "invalid ai provider config", err)
	}
	gc := &genai.GenerateContentConfig{MaxOutputTokens: int32(cfg.TokenLimit)}
	if cfg.SystemInstruction != "" {
		gc.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: cfg.SystemInstruction}}}
	}
	contents := []*genai.Content{{Role: genai.RoleUser, Parts: []*genai.Part{{Text: text}}}}
	resp, err := client.Models.GenerateContent(ctx, modelName, contents, gc)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			logger.Errorf("narrator: provider status %d: %s", apiErr.Code, apiErr.Message)
			return "", apperr.Wrap(apperr.Internal, "text generation failed", fmt.Errorf("provider status %d", apiErr.Code))
		}
		logger.Errorf("narrator: provider unreachable: %v", err)
		return "", apperr.Wrap(apperr.Internal, "text generation failed", fmt.Errorf("provider unreachable"))
	}
	var out strings.Builder
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, p := range resp.Candidates[0].Content.Parts {
			out.WriteString(p.Text)
		}
	}
	if out.Len() == 0 {
		return "No response.", nil
	}
	return out.String(), nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *Client) chatCompletions(ctx context.Context, cfg model.AIConfig, text, defaultBase, defaultModel string) (string, error) {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBase
	}
	modelName := cfg.ModelName
	if modelName == "" {
		modelName = defaultModel
	}
	var msgs []chatMessage
	if cfg.SystemInstruction != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: cfg.SystemInstruction})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: text})

	headers := map[string]string{}
	if cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + cfg.APIKey
	}
	var resp chatResponse
	err := c.post(ctx, strings.TrimSuffix(base, "/")+"/chat/completions", headers,
		chatRequest{Model: modelName, Messages: msgs, MaxTokens: cfg.TokenLimit}, &resp)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "No response.", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) post(ctx context.Context, endpoint string, headers map[string]string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return apperr.Wrap(apperr.Invalid, "invalid ai provider url", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Errorf("narrator: provider unreachable: %v", err)
		return apperr.Wrap(apperr.Internal, "text generation failed", fmt.Errorf("provider unreachable"))
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		logger.Errorf("narrator: provider status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
		return apperr.Wrap(apperr.Internal, "text generation failed", fmt.Errorf("provider status %d", resp.StatusCode))
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(out); err != nil {
		return apperr.Wrap(apperr.Internal, "text generation failed", fmt.Errorf("decode: %w", err))
	}
	return nil
}
