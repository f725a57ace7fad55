package parser

import (
	"fmt"

	"github.com/gpib-manager/backend/internal/models"
)

// Registry holds all available parsers and provides auto-detection.
type Registry struct {
	parsers []Parser
}

// Registry consulted by LoadPulses
var globalRegistry = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{
		parsers: []Parser{
			NewPresetParser(),
			NewPulseTableParser(),
		},
	}
}

// FindParser detects the correct parser for a file.
func (r *Registry) FindParser(filePath string) (Parser, error) {
	for _, p := range r.parsers {
		can, err := p.CanParse(filePath)
		if err != nil {
			return nil, err
		}
		if can {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no suitable parser found for file: %s", filePath)
}

// LoadPulses parses filePath with whichever registered parser accepts it.
func LoadPulses(filePath string) ([]models.PulseConfig, []*models.ParseError, error) {
	p, err := globalRegistry.FindParser(filePath)
	if err != nil {
		return nil, nil, err
	}
	return p.Parse(filePath)
}
