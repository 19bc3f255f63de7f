package uploader

import (
	"context"
	"fmt"
	"log/slog"
)

// ChunkManager composes uploaded chunks into one object within the
// per-request source limit of the store.
type ChunkManager struct {
	store               ObjectStore
	maxChunksPerCompose int
	log                 *slog.Logger
}

// NewChunkManager creates a new chunk manager
func NewChunkManager(store ObjectStore, maxChunksPerCompose int, log *slog.Logger) *ChunkManager {
	if maxChunksPerCompose <= 0 {
		maxChunksPerCompose = 32 // GCS limit
	}
	return &ChunkManager{store: store, maxChunksPerCompose: maxChunksPerCompose, log: log}
}

// Compose combines chunkObjects, in order, into object
func (cm *ChunkManager) Compose(ctx context.Context, object string, chunkObjects []string) error {
	if len(chunkObjects) == 0 {
		return fmt.Errorf("no chunks to compose")
	}
	return cm.compose(ctx, object, chunkObjects, 0)
}

func (cm *ChunkManager) compose(ctx context.Context, object string, sources []string, level int) error {
	if len(sources) <= cm.maxChunksPerCompose {
		return cm.store.Compose(ctx, object, sources)
	}

	// Fold groups into intermediate objects and compose those instead
	var intermediates []string
	defer func() { cm.cleanup(ctx, intermediates) }()

	for i := 0; i < len(sources); i += cm.maxChunksPerCompose {
		end := min(i+cm.maxChunksPerCompose, len(sources))
		name := fmt.Sprintf("%s.intermediate.%d.%d", object, level, i/cm.maxChunksPerCompose)
		if err := cm.store.Compose(ctx, name, sources[i:end]); err != nil {
			return fmt.Errorf("failed to compose intermediate object %s: %w", name, err)
		}
		intermediates = append(intermediates, name)
	}
	return cm.compose(ctx, object, intermediates, level+1)
}

func (cm *ChunkManager) cleanup(ctx context.Context, objects []string) {
	for _, obj := range objects {
		if err := cm.store.Delete(ctx, obj); err != nil {
			cm.log.Warn("failed to cleanup object", "object", obj, "error", err)
		}
	}
}
