package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// MCP client transport types.
const (
	ClientTypeSSE            = "sse"
	ClientTypeStreamableHTTP = "streamable_http"
	ClientTypeStdio          = "stdio"
)

// Config holds the application configuration
type Config struct {
	LLM        LLMConfig
	Server     ServerConfig
	Agent      AgentConfig
	Memory     MemoryConfig
	History    HistoryConfig
	Tools      ToolsConfig
	MCPServers []MCPServerConfig `mapstructure:"mcp_servers"`
	LogLevel   string            `mapstructure:"log_level"`
}

// LLMConfig holds the LLM configuration
type LLMConfig struct {
	Provider       string        `mapstructure:"provider"`
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	Model          string        `mapstructure:"model"`
	ValidatorModel string        `mapstructure:"validator_model"`
	SystemPrompt   string        `mapstructure:"system_prompt"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// ServerConfig holds the server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

// AgentConfig bounds a single orchestration turn.
type AgentConfig struct {
	MaxMessages      int           `mapstructure:"max_messages"`
	EvidenceItems    int           `mapstructure:"evidence_items"`
	EvidenceChars    int           `mapstructure:"evidence_chars"`
	AnswerChars      int           `mapstructure:"answer_chars"`
	TurnTimeout      time.Duration `mapstructure:"turn_timeout"`
	ToolTimeout      time.Duration `mapstructure:"tool_timeout"`
	MaxParallelTools int           `mapstructure:"max_parallel_tools"`
}

// MemoryConfig holds the session memory limits.
type MemoryConfig struct {
	MaxMessages       int           `mapstructure:"max_messages"`
	KeepRecent        int           `mapstructure:"keep_recent"`
	MaxTokens         int           `mapstructure:"max_tokens"`
	SummaryWindow     int           `mapstructure:"summary_window"`
	SummaryKeep       int           `mapstructure:"summary_keep"`
	SessionTimeout    time.Duration `mapstructure:"session_timeout"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
	ValidationHistory int           `mapstructure:"validation_history"`
	Encoding          string        `mapstructure:"encoding"`
}

// HistoryConfig configures the SQLite transcript archive.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// ToolsConfig holds settings for the built-in lookup tools.
type ToolsConfig struct {
	ExampleDatabase string        `mapstructure:"example_database"`
	USDAAPIKey      string        `mapstructure:"usda_api_key"`
	TavilyAPIKey    string        `mapstructure:"tavily_api_key"`
	KnowledgeBase   string        `mapstructure:"knowledge_base"`
	HTTPTimeout     time.Duration `mapstructure:"http_timeout"`
}

// MCPServerConfig describes one MCP server whose tools are added to the registry.
type MCPServerConfig struct {
	Name    string            `mapstructure:"name"`
	Type    string            `mapstructure:"type"`
	URL     string            `mapstructure:"url"`
	Command string            `mapstructure:"command"`
	Args    []string          `mapstructure:"args"`
	Env     map[string]string `mapstructure:"env"`
	Headers map[string]string `mapstructure:"headers"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.validator_model", "")
	v.SetDefault("llm.system_prompt", "")
	v.SetDefault("llm.model", "gpt-4.1-mini")
	v.SetDefault("llm.timeout", 60*time.Second)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8000")

	v.SetDefault("agent.max_messages", 30)
	v.SetDefault("agent.evidence_items", 5)
	v.SetDefault("agent.evidence_chars", 800)
	v.SetDefault("agent.answer_chars", 1500)
	v.SetDefault("agent.turn_timeout", 2*time.Minute)
	v.SetDefault("agent.tool_timeout", 15*time.Second)
	v.SetDefault("agent.max_parallel_tools", 4)

	v.SetDefault("memory.max_messages", 15)
	v.SetDefault("memory.keep_recent", 10)
	v.SetDefault("memory.max_tokens", 6000)
	v.SetDefault("memory.summary_window", 8)
	v.SetDefault("memory.summary_keep", 6)
	v.SetDefault("memory.session_timeout", 30*time.Minute)
	v.SetDefault("memory.cleanup_interval", 5*time.Minute)
	v.SetDefault("memory.validation_history", 10)
	v.SetDefault("memory.encoding", "cl100k_base")

	v.SetDefault("history.enabled", false)
	v.SetDefault("history.path", "history.db")

	v.SetDefault("tools.example_database", "")
	v.SetDefault("tools.usda_api_key", "")
	v.SetDefault("tools.tavily_api_key", "")
	v.SetDefault("tools.knowledge_base", "")
	v.SetDefault("tools.http_timeout", 10*time.Second)

	v.SetDefault("log_level", "info")
}

// Load loads the configuration from config.yaml in the working directory, or from the
// file named by CONFIG_PATH. Environment variables prefixed with SAVE_ override file
// values (SAVE_LLM_API_KEY -> llm.api_key). A missing config file is not an error.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("SAVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Secrets commonly live in the plain provider variables.
	if config.LLM.APIKey == "" {
		config.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if config.Tools.USDAAPIKey == "" {
		config.Tools.USDAAPIKey = os.Getenv("USDA_API_KEY")
	}
	if config.Tools.TavilyAPIKey == "" {
		config.Tools.TavilyAPIKey = os.Getenv("TAVILY_API_KEY")
	}
	if config.LLM.ValidatorModel == "" {
		config.LLM.ValidatorModel = config.LLM.Model
	}

	return &config, nil
}
