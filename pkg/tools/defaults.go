package tools

import (
	"fmt"

	"github.com/comigor/save-go/internal/config"
	"github.com/comigor/save-go/internal/llm"
	"github.com/comigor/save-go/internal/logger"
)

// NewDefaultRegistry registers the built-in tool belt. The extraction tool comes first
// so the model sees it as the entry point. Optional sources are skipped when their
// configuration is absent.
func NewDefaultRegistry(cfg config.ToolsConfig, client llm.Client, model string) (*Registry, error) {
	log := logger.For("tools")
	reg := NewRegistry()

	belt := []Tool{
		NewExtractionTool(client, model),
		NewUPCValidator(),
		NewCheckDigitCalculator(),
	}

	if cfg.ExampleDatabase != "" {
		db, err := LoadExampleDatabase(cfg.ExampleDatabase)
		if err != nil {
			return nil, err
		}
		log.Info("example database loaded", "path", cfg.ExampleDatabase, "products", db.Len())
		belt = append(belt, db.Tool())
	}

	belt = append(belt,
		NewOpenFoodFactsClient("", cfg.HTTPTimeout).Tool(),
		NewUSDAClient("", cfg.USDAAPIKey, cfg.HTTPTimeout).Tool(),
		NewWebSearchClient("", cfg.TavilyAPIKey, cfg.HTTPTimeout).Tool(),
	)

	if cfg.KnowledgeBase != "" {
		kb, err := LoadKnowledgeBase(cfg.KnowledgeBase)
		if err != nil {
			return nil, fmt.Errorf("load knowledge base: %w", err)
		}
		belt = append(belt, kb.Tool())
	}

	for _, t := range belt {
		if err := reg.Register(t); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
