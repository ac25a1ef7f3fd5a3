package tree

import (
	"context"
	"errors"
	"path"

	"github.com/panelfs/panelfs/internal/remotefs"
)

// Mover is the part of the bridge MoveInto needs.
type Mover interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
	WriteFile(ctx context.Context, path string, data []byte, opts remotefs.WriteOptions) error
	Delete(ctx context.Context, path string, opts remotefs.DeleteOptions) error
}

// ErrDirectoryMove is reported for directory nodes, which are not moved.
var ErrDirectoryMove = errors.New("moving directories is not supported")

// MoveResult is the outcome for one node.
type MoveResult struct {
	Node    RenderNode
	Target  string
	Skipped bool
	Err     error
}

// MoveInto moves file nodes into targetDir by read, write, then delete.
// Directory nodes are skipped. A failure on one node does not stop the rest.
func (e *Engine) MoveInto(ctx context.Context, nodes []RenderNode, targetDir string) []MoveResult {
	targetDir = remotefs.Clean(targetDir)
	results := make([]MoveResult, 0, len(nodes))
	moved := false

	for _, n := range nodes {
		res := MoveResult{Node: n, Target: path.Join(targetDir, n.Label)}
		switch {
		case n.IsDir():
			res.Skipped = true
			res.Err = ErrDirectoryMove
		case e.mover == nil:
			res.Err = errors.New("no mover configured")
		case path.Dir(n.Path()) == targetDir:
			res.Skipped = true
		default:
			res.Err = e.moveFile(ctx, n.Path(), res.Target)
			if res.Err == nil {
				moved = true
			} else {
				e.logger.Warn().Err(res.Err).Str("from", n.Path()).Str("to", res.Target).Msg("move failed")
			}
		}
		results = append(results, res)
	}

	if moved {
		e.Refresh()
	}
	return results
}

func (e *Engine) moveFile(ctx context.Context, from, to string) error {
	data, err := e.mover.ReadFile(ctx, from)
	if err != nil {
		return err
	}
	if err := e.mover.WriteFile(ctx, to, data, remotefs.WriteOptions{Create: true}); err != nil {
		return err
	}
	return e.mover.Delete(ctx, from, remotefs.DeleteOptions{})
}
