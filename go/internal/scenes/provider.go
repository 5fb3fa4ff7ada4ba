// Package scenes provides read-only access to branching story scenes.
package scenes

import (
	"context"
	"errors"

	"github.com/mcdev12/crossroads/go/internal/apperr"
	"github.com/mcdev12/crossroads/go/internal/models"
)

// ErrSceneNotFound is wrapped by every provider when a scene id is unknown.
var ErrSceneNotFound = errors.New("scene not found")

// Provider looks up scenes by id.
type Provider interface {
	GetScene(ctx context.Context, sceneID string) (models.Scene, error)
}

func notFound(sceneID string) error {
	return apperr.Wrap(apperr.CodeNotFound, "scene "+sceneID+" not found", ErrSceneNotFound)
}
