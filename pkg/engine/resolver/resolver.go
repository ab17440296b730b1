// Package resolver defines the model resolution collaborator (spec.md §6):
// a ResolveModel(id) interface plus a path-based local implementation. The
// engine core does not call it: the manager passes the descriptor's model id
// straight to Runner.Load, and no runner takes a Resolver. Nothing here
// downloads, verifies, or mutates model files.
//
// Grounded on the teacher's models.Manager.ResolveModelID, which performs
// the same "opaque ref in, resolved identity out, never touches the byte
// content of the model" role for the teacher's distribution-aware model
// store; generalized here to a standalone interface plus a path-based
// local stub, since the production resolver (an OCI-backed store, a
// bundled-asset index, whatever the embedder wires in) lives outside this
// module.
package resolver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// ModelHandle is the opaque result of resolving a model ID (spec.md §6).
type ModelHandle struct {
	EntryPointPath string
	Metadata       map[string]any
}

// Resolver resolves a model ID to a ModelHandle, keeping the out-of-scope
// download/versioning subsystem fully outside the engine runtime. Within
// this module only enginectl's resolve command calls it.
type Resolver interface {
	ResolveModel(ctx context.Context, id string) (ModelHandle, error)
}

// LocalPathResolver resolves a model ID to a file under Root by treating the
// ID as a relative path. It is meant for tests and local development, not
// production use: no existence caching, no content verification, no
// network, no registry lookup.
type LocalPathResolver struct {
	Root string
}

// NewLocalPathResolver constructs a LocalPathResolver rooted at root.
func NewLocalPathResolver(root string) *LocalPathResolver {
	return &LocalPathResolver{Root: root}
}

// ResolveModel implements Resolver by joining id onto Root and stat-ing the
// result. It never verifies model content, only that something exists there.
func (r *LocalPathResolver) ResolveModel(ctx context.Context, id string) (ModelHandle, error) {
	if id == "" {
		return ModelHandle{}, fmt.Errorf("resolver: empty model id")
	}
	if err := ctx.Err(); err != nil {
		return ModelHandle{}, err
	}

	path := filepath.Join(r.Root, filepath.Clean("/"+id))
	info, err := os.Stat(path)
	if err != nil {
		return ModelHandle{}, fmt.Errorf("resolver: resolving %q: %w", id, err)
	}

	return ModelHandle{
		EntryPointPath: path,
		Metadata: map[string]any{
			"size_bytes": info.Size(),
			"mod_time":   info.ModTime(),
		},
	}, nil
}
