package scenes

import (
	"fmt"
	"os"

	"github.com/mcdev12/crossroads/go/internal/models"
	"gopkg.in/yaml.v3"
)

// Story is the YAML document format for a scene file.
//
//	start: intro
//	scenes:
//	  - id: intro
//	    title: A fork in the road
//	    choices:
//	      - {id: left, label: Go left, next: forest}
//	      - {id: right, label: Go right, next: river}
type Story struct {
	Start  string         `yaml:"start"`
	Scenes []models.Scene `yaml:"scenes"`
}

// LoadStory reads a story from a YAML file.
func LoadStory(path string) (Story, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Story{}, fmt.Errorf("read scene file: %w", err)
	}
	return ParseStory(data)
}

// ParseStory decodes a YAML story.
func ParseStory(data []byte) (Story, error) {
	var story Story
	if err := yaml.Unmarshal(data, &story); err != nil {
		return Story{}, fmt.Errorf("parse scene file: %w", err)
	}
	return story, nil
}

// NewFileProvider loads a story file into a MemoryProvider.
func NewFileProvider(path string) (*MemoryProvider, Story, error) {
	story, err := LoadStory(path)
	if err != nil {
		return nil, Story{}, err
	}
	if problems := story.Validate(); len(problems) > 0 {
		return nil, Story{}, fmt.Errorf("invalid scene file %s: %w", path, problems[0])
	}
	return NewMemoryProvider(story.Scenes...), story, nil
}

// Validate checks the scene graph: unique ids, a known start scene, choices on
// every non-final scene and resolvable next scenes.
func (s Story) Validate() []error {
	var problems []error
	ids := make(map[string]bool, len(s.Scenes))
	for _, sc := range s.Scenes {
		if sc.ID == "" {
			problems = append(problems, fmt.Errorf("scene %q has no id", sc.Title))
			continue
		}
		if ids[sc.ID] {
			problems = append(problems, fmt.Errorf("duplicate scene id %q", sc.ID))
		}
		ids[sc.ID] = true
	}
	if s.Start != "" && !ids[s.Start] {
		problems = append(problems, fmt.Errorf("start scene %q does not exist", s.Start))
	}

	for _, sc := range s.Scenes {
		if !sc.IsFinal && len(sc.Choices) == 0 {
			problems = append(problems, fmt.Errorf("scene %q is not final and has no choices", sc.ID))
		}
		seen := make(map[string]bool, len(sc.Choices))
		for _, c := range sc.Choices {
			if c.ID == "" {
				problems = append(problems, fmt.Errorf("scene %q has a choice without id", sc.ID))
				continue
			}
			if seen[c.ID] {
				problems = append(problems, fmt.Errorf("scene %q repeats choice %q", sc.ID, c.ID))
			}
			seen[c.ID] = true
			if c.NextSceneID != "" && !ids[c.NextSceneID] {
				problems = append(problems, fmt.Errorf("scene %q choice %q points to unknown scene %q", sc.ID, c.ID, c.NextSceneID))
			}
		}
	}
	return problems
}
