// Copyright 2026 The Quarry Authors
// This file is part of Quarry.
//
// Quarry is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Quarry is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Quarry. If not, see <http://www.gnu.org/licenses/>.

package revwalk

import (
	"container/heap"
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/quarryvcs/quarry/hash"
	"github.com/quarryvcs/quarry/store"
)

// WalkAction is the callback's verdict on the commit it was just given.
type WalkAction int

const (
	// ActionContinue moves on to the commit's parents as usual.
	ActionContinue WalkAction = iota
	// ActionHide stops reporting this commit's ancestors, without stopping
	// the walk itself.
	ActionHide
	// ActionStop ends the walk immediately.
	ActionStop
)

// Walker fans out from a set of root commits down through their parents,
// in descending generation order, reporting each to a callback.
type Walker struct {
	graph *Graph

	roots  map[hash.Id]struct{}
	hidden map[hash.Id]struct{}

	generationFrom uint64
	generationTo   uint64
	firstParent    bool
}

// NewWalker builds a Walker over graph, with the widest possible
// generation range and no roots or hidden commits.
func NewWalker(graph *Graph) *Walker {
	return &Walker{
		graph:          graph,
		roots:          make(map[hash.Id]struct{}),
		hidden:         make(map[hash.Id]struct{}),
		generationFrom: 0,
		generationTo:   math.MaxUint64,
	}
}

// Push adds commitID as a starting point for the walk.
func (w *Walker) Push(commitID hash.Id) *Walker {
	w.roots[commitID] = struct{}{}
	return w
}

// Hide excludes commitID and everything reachable from it from being
// reported, without otherwise stopping the walk from reaching commits
// reachable through other paths.
func (w *Walker) Hide(commitID hash.Id) *Walker {
	w.hidden[commitID] = struct{}{}
	return w
}

// GenerationFrom sets the inclusive lower bound on reported generations.
func (w *Walker) GenerationFrom(generation uint64) *Walker {
	w.generationFrom = generation
	return w
}

// GenerationTo sets the inclusive upper bound on reported generations.
func (w *Walker) GenerationTo(generation uint64) *Walker {
	w.generationTo = generation
	return w
}

// SimplifyFirstParent restricts traversal to each commit's first parent.
func (w *Walker) SimplifyFirstParent(value bool) *Walker {
	w.firstParent = value
	return w
}

func (w *Walker) log() *zap.Logger {
	if w.graph.log != nil {
		return w.graph.log
	}
	return zap.NewNop()
}

// getParentRevision resolves parentID as a parent of of, logging and
// propagating a hard error when the parent commit is missing.
func (w *Walker) getParentRevision(ctx context.Context, of Revision, parentID hash.Id) (Revision, error) {
	r, err := w.graph.GetRevision(ctx, parentID)
	if err != nil {
		if code, ok := store.CodeOf(err); ok && code == store.CodeNotFound {
			w.log().Warn("revwalk: missing parent commit",
				zap.String("commit", of.Id.String()),
				zap.String("parent", parentID.String()),
			)
		}
		return Revision{}, err
	}
	return r, nil
}

// Walk dispatches to the linear fast path (a single root, nothing hidden,
// first-parent mode) or the generic generation-ordered walk.
func (w *Walker) Walk(ctx context.Context, cb func(Revision) WalkAction) error {
	if cb == nil || len(w.roots) == 0 {
		return nil
	}
	if w.firstParent && len(w.roots) == 1 && len(w.hidden) == 0 {
		return w.walkLinear(ctx, cb)
	}
	return w.walkGeneric(ctx, cb)
}

func (w *Walker) onlyRoot() hash.Id {
	for id := range w.roots {
		return id
	}
	return hash.Id{}
}

func (w *Walker) walkLinear(ctx context.Context, cb func(Revision) WalkAction) error {
	c, err := w.graph.GetRevision(ctx, w.onlyRoot())
	if err != nil {
		return err
	}
	for {
		if c.Generation < w.generationFrom {
			return nil
		}
		if c.Generation <= w.generationTo {
			switch cb(c) {
			case ActionContinue:
			case ActionHide, ActionStop:
				return nil
			}
		}
		if len(c.Parents) == 0 {
			return nil
		}
		next, err := w.getParentRevision(ctx, c, c.Parents[0])
		if err != nil {
			return err
		}
		c = next
	}
}

// revisionHeap is a max-heap by generation, matching the source's
// highest-generation-first priority queue.
type revisionHeap []Revision

func (h revisionHeap) Len() int            { return len(h) }
func (h revisionHeap) Less(i, j int) bool  { return h[i].Generation > h[j].Generation }
func (h revisionHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *revisionHeap) Push(x interface{}) { *h = append(*h, x.(Revision)) }
func (h *revisionHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func (w *Walker) walkGeneric(ctx context.Context, cb func(Revision) WalkAction) error {
	hidden := make(map[hash.Id]struct{}, len(w.hidden))
	for id := range w.hidden {
		hidden[id] = struct{}{}
	}
	marked := make(map[hash.Id]struct{})
	queue := &revisionHeap{}
	hiddenInQueue := len(hidden)

	for id := range w.hidden {
		marked[id] = struct{}{}
		r, err := w.graph.GetRevision(ctx, id)
		if err != nil {
			return err
		}
		heap.Push(queue, r)
	}
	for id := range w.roots {
		if _, ok := marked[id]; ok {
			continue
		}
		marked[id] = struct{}{}
		r, err := w.graph.GetRevision(ctx, id)
		if err != nil {
			return err
		}
		heap.Push(queue, r)
	}

	for queue.Len() > 0 && hiddenInQueue < queue.Len() {
		commit := heap.Pop(queue).(Revision)
		id := commit.Id

		if commit.Generation < w.generationFrom {
			continue
		}

		hide := false
		if _, ok := hidden[id]; ok {
			hiddenInQueue--
			hide = true
		} else if commit.Generation <= w.generationTo {
			switch cb(commit) {
			case ActionContinue:
			case ActionHide:
				hide = true
			case ActionStop:
				return nil
			}
		}

		for _, p := range commit.Parents {
			if hide {
				if _, ok := hidden[p]; !ok {
					hidden[p] = struct{}{}
					hiddenInQueue++
				}
			}
			if _, ok := marked[p]; !ok {
				marked[p] = struct{}{}
				r, err := w.getParentRevision(ctx, commit, p)
				if err != nil {
					return err
				}
				heap.Push(queue, r)
			}
			if w.firstParent {
				break
			}
		}
	}
	return nil
}
