package models

// Choice is one option offered by a scene.
type Choice struct {
	ID          string `json:"id" yaml:"id"`
	Label       string `json:"label" yaml:"label"`
	NextSceneID string `json:"nextSceneId,omitempty" yaml:"next,omitempty"` // empty ends the story
}

// Scene is a read-only node of a branching story.
type Scene struct {
	ID      string   `json:"id" yaml:"id"`
	Title   string   `json:"title" yaml:"title"`
	Body    string   `json:"body,omitempty" yaml:"body,omitempty"`
	IsFinal bool     `json:"isFinal" yaml:"final,omitempty"`
	Choices []Choice `json:"choices" yaml:"choices"`
}

// Choice looks up a choice by id.
func (s Scene) Choice(id string) (Choice, bool) {
	for _, c := range s.Choices {
		if c.ID == id {
			return c, true
		}
	}
	return Choice{}, false
}

// ChoiceIDs returns the choice ids in declared order.
func (s Scene) ChoiceIDs() []string {
	ids := make([]string, 0, len(s.Choices))
	for _, c := range s.Choices {
		ids = append(ids, c.ID)
	}
	return ids
}

// Votable reports whether a voting round can run on this scene.
func (s Scene) Votable() bool {
	return !s.IsFinal && len(s.Choices) > 0
}
