// internal/rules/matrix.go
package rules

import (
	"fmt"

	"github.com/solatis/scorekeeper/internal/types"
)

/*
 * Scoring matrix walker.
 *
 * Level d of the tree is tested against values[d]. Within a level the first
 * node whose condition matches is taken; its set_vars are applied before
 * descending. There is no backtracking: a matched branch whose subtree has no
 * match ends the walk with no leaf.
 *
 * Depth is threaded explicitly and bounded by both len(values) and
 * types.MaxMatrixDepth so a malformed tree cannot recurse without limit.
 */

// walkMatrix returns the reached leaf, or nil when no branch matches.
func walkMatrix(nodes []MatrixNode, values []any, depth int, ctx *types.Context, r *resolver) (*MatrixNode, error) {
	if depth >= types.MaxMatrixDepth || depth >= len(values) {
		return nil, fmt.Errorf("%w: matrix tree deeper than its %d variables (limit %d)",
			types.ErrConfig, len(values), types.MaxMatrixDepth)
	}

	for i := range nodes {
		node := &nodes[i]
		ok, err := node.When.Match(values[depth], ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if len(node.SetVars) > 0 {
			if err := r.resolve(node.SetVars, ctx); err != nil {
				return nil, err
			}
		}
		if node.Leaf() {
			return node, nil
		}
		return walkMatrix(node.Children, values, depth+1, ctx, r)
	}
	return nil, nil
}

// treeDepth returns the number of levels in a matrix tree, stopping at limit.
func treeDepth(nodes []MatrixNode, limit int) int {
	if len(nodes) == 0 || limit <= 0 {
		return 0
	}
	deepest := 0
	for i := range nodes {
		if d := treeDepth(nodes[i].Children, limit-1); d > deepest {
			deepest = d
		}
	}
	return deepest + 1
}
