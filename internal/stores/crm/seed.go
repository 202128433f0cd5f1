package crm

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type seedFile struct {
	Pipelines []seedPipeline `yaml:"pipelines"`
}

type seedPipeline struct {
	Brand  string      `yaml:"brand"`
	Name   string      `yaml:"name"`
	Type   string      `yaml:"type"`
	Stages []seedStage `yaml:"stages"`
}

type seedStage struct {
	Name              string `yaml:"name"`
	DaysUntilFollowup int    `yaml:"days_until_followup"`
	AutoAction        string `yaml:"auto_action"`
	IsTerminal        bool   `yaml:"is_terminal"`
	IsWon             bool   `yaml:"is_won"`
}

// SeedPipelinesFromFile reads pipeline definitions from a YAML file and
// creates the ones not present yet
func SeedPipelinesFromFile(s StoreInterface, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read pipeline seed file: %w", err)
	}
	return SeedPipelines(s, data)
}

// SeedPipelines creates any defined pipeline a brand does not have yet,
// matched by (brand, type). Existing pipelines are never modified.
func SeedPipelines(s StoreInterface, data []byte) (int, error) {
	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return 0, fmt.Errorf("failed to parse pipeline seeds: %w", err)
	}

	created := 0
	for _, seed := range file.Pipelines {
		if seed.Brand == "" || seed.Type == "" || len(seed.Stages) == 0 {
			return created, fmt.Errorf("pipeline seed '%s' is missing brand, type or stages", seed.Name)
		}

		existing, err := s.FindPipelineByType(seed.Brand, seed.Type)
		if err != nil {
			return created, err
		}
		if existing != nil {
			continue
		}

		pipeline := &Pipeline{
			Brand:  seed.Brand,
			Name:   seed.Name,
			Type:   seed.Type,
			Active: true,
		}
		for i, stage := range seed.Stages {
			days := stage.DaysUntilFollowup
			if days == 0 {
				days = 3
			}
			pipeline.Stages = append(pipeline.Stages, PipelineStage{
				Name:              stage.Name,
				StageOrder:        i + 1,
				DaysUntilFollowup: days,
				AutoAction:        stage.AutoAction,
				IsTerminal:        stage.IsTerminal,
				IsWon:             stage.IsWon,
			})
		}

		if err := s.CreatePipeline(pipeline); err != nil {
			return created, fmt.Errorf("failed to seed pipeline '%s': %w", seed.Name, err)
		}
		created++
	}

	return created, nil
}
