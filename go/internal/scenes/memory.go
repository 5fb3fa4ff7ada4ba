package scenes

import (
	"context"

	"github.com/mcdev12/crossroads/go/internal/models"
	"github.com/sasha-s/go-deadlock"
)

// MemoryProvider serves scenes from a map.
type MemoryProvider struct {
	mu     deadlock.RWMutex
	scenes map[string]models.Scene
}

func NewMemoryProvider(scenes ...models.Scene) *MemoryProvider {
	p := &MemoryProvider{scenes: make(map[string]models.Scene, len(scenes))}
	for _, s := range scenes {
		p.scenes[s.ID] = s
	}
	return p
}

// Put adds or replaces a scene.
func (p *MemoryProvider) Put(scene models.Scene) {
	p.mu.Lock()
	p.scenes[scene.ID] = scene
	p.mu.Unlock()
}

func (p *MemoryProvider) GetScene(ctx context.Context, sceneID string) (models.Scene, error) {
	if err := ctx.Err(); err != nil {
		return models.Scene{}, err
	}
	p.mu.RLock()
	s, ok := p.scenes[sceneID]
	p.mu.RUnlock()
	if !ok {
		return models.Scene{}, notFound(sceneID)
	}
	return s, nil
}
