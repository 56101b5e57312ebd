package induct

import (
	"math/rand"
	"sort"

	"github.com/veldtlab/grove/pkg/domain"
)

// trainingBatches splits an oversized training set into cascading batches.
// Reactions are ordered by rate at the objective temperature; the fastest
// and slowest outlierFraction/2 are forced into the first batch so the tree
// sees the extremes early. The remainder is divided into rate strata, each
// shuffled, and batches are drawn round-robin from the strata so every batch
// samples the whole rate range.
func (in *Inducer) trainingBatches(rxns []*Training, rng *rand.Rand) [][]*Training {
	T := in.cfg.ObjectiveT
	inds := make([]int, len(rxns))
	for i := range inds {
		inds[i] = i
	}
	sort.SliceStable(inds, func(a, b int) bool {
		return rxns[inds[a]].Kinetics.Rate(T) < rxns[inds[b]].Kinetics.Rate(T)
	})

	outlierNum := int(in.cfg.OutlierFraction * float64(len(rxns)) / 2)
	if 2*outlierNum > len(inds) {
		outlierNum = len(inds) / 2
	}
	lowouts := inds[:outlierNum]
	highouts := inds[len(inds)-outlierNum:]
	mid := inds[outlierNum : len(inds)-outlierNum]

	current := make([]int, 0, in.cfg.MaxBatchSize)
	current = append(current, highouts...)
	current = append(current, lowouts...)

	strata := make([][]int, 0, in.cfg.StratumCount)
	for s := 0; s < in.cfg.StratumCount; s++ {
		start := s * len(mid) / in.cfg.StratumCount
		end := (s + 1) * len(mid) / in.cfg.StratumCount
		if start == end {
			continue
		}
		stratum := append([]int(nil), mid[start:end]...)
		rng.Shuffle(len(stratum), func(a, b int) {
			stratum[a], stratum[b] = stratum[b], stratum[a]
		})
		strata = append(strata, stratum)
	}

	var batches [][]int
	for {
		drawn := false
		for s := range strata {
			if len(strata[s]) == 0 {
				continue
			}
			last := len(strata[s]) - 1
			current = append(current, strata[s][last])
			strata[s] = strata[s][:last]
			drawn = true
			if len(current) >= in.cfg.MaxBatchSize {
				batches = append(batches, current)
				current = make([]int, 0, in.cfg.MaxBatchSize)
			}
		}
		if !drawn {
			break
		}
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}

	out := make([][]*Training, 0, len(batches))
	for _, batch := range batches {
		list := make([]*Training, len(batch))
		for i, ind := range batch {
			list[i] = rxns[ind]
		}
		out = append(out, list)
	}
	return out
}

// prune discards the subtrees under any node whose inclusive match count
// fell below MaxReactionsToReoptimize, clearing the node's regularization
// bounds so the next growth pass can re-derive its splits against the
// accumulated training set. The caller reassigns matches afterwards.
func (in *Inducer) prune(t *state) {
	counts := map[string]int{}
	for label, list := range t.rxns {
		for cur := label; ; {
			e := t.arena[cur]
			if e == nil {
				break
			}
			counts[cur] += len(list)
			if cur == t.root || e.Parent == "" {
				break
			}
			cur = e.Parent
		}
	}

	var walk func(label string)
	walk = func(label string) {
		e := t.arena[label]
		if e == nil || len(e.Children) == 0 {
			return
		}
		if counts[label] < in.cfg.MaxReactionsToReoptimize {
			for _, c := range e.Children {
				t.removeSubtree(c)
			}
			e.Children = nil
			if ext, ok := e.Pattern.(domain.Extendable); ok {
				ext.ClearDimensions()
			}
			delete(t.terminal, label)
			delete(t.retried, label)
			metrics.nodesPruned.Inc()
			in.logger.Debug("pruned subtree",
				"family", t.family, "node", label, "matches", counts[label])
			return
		}
		for _, c := range e.Children {
			walk(c)
		}
	}
	walk(t.root)
	t.renumber()
}

func (t *state) removeSubtree(label string) {
	e := t.arena[label]
	if e == nil {
		return
	}
	for _, c := range e.Children {
		t.removeSubtree(c)
	}
	delete(t.arena, label)
	delete(t.rxns, label)
	delete(t.terminal, label)
	delete(t.retried, label)
}
