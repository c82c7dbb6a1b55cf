package model

// AIProvider — поставщик генерации текста для рассказчика.
type AIProvider string

const (
	AIProviderGemini AIProvider = "gemini"
	AIProviderOpenAI AIProvider = "openai"
	AIProviderLocal  AIProvider = "local"
)

type AIButton struct {
	Label  string `json:"label"`
	Prompt string `json:"prompt"`
}

type AIPrompts struct {
	NPC  string `json:"npc"`
	Plot string `json:"plot"`
}

// AIConfig хранится в system_settings как JSON (ключ ai_config).
type AIConfig struct {
	Provider          AIProvider `json:"provider"`
	APIKey            string     `json:"api_key"`
	BaseURL           string     `json:"base_url,omitempty"`
	ModelName         string     `json:"model_name,omitempty"`
	TokenLimit        int        `json:"token_limit"`
	SystemInstruction string     `json:"system_instruction"`
	Prompts           AIPrompts  `json:"prompts"`
	CustomButtons     []AIButton `json:"custom_buttons"`
}

// Redacted возвращает копию без ключа API (для не-админов и логов).
func (c AIConfig) Redacted() AIConfig {
	if c.APIKey != "" {
		c.APIKey = "********"
	}
	return c
}

// DefaultAIConfig — значения по умолчанию, пока админ ничего не настроил.
func DefaultAIConfig() AIConfig {
	return AIConfig{
		Provider:          AIProviderGemini,
		TokenLimit:        512,
		SystemInstruction: "You are a helpful Dungeon Master assistant.",
		Prompts: AIPrompts{
			NPC:  "Generate a random fantasy NPC for a D&D 5e campaign. Include Name, Race, Class, Appearance, Personality, and one Secret. Format as a concise Markdown list.",
			Plot: "You are a Dungeon Master. Create a short, mysterious plot hook for a fantasy campaign. Keep it under 50 words.",
		},
		CustomButtons: []AIButton{},
	}
}

// Bootstrap — снимок состояния для только что подключившегося клиента.
type Bootstrap struct {
	User          UserPublic   `json:"user"`
	Servers       []Community  `json:"servers"`
	Channels      []Channel    `json:"channels"`
	Users         []UserPublic `json:"users"`
	Gifs          []Gif        `json:"gifs"`
	GlobalKey     string       `json:"globalKey"`
	UploadLimitMB int          `json:"uploadLimitMB"`
}
