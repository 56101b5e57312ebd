package induct

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/veldtlab/grove/pkg/domain"
)

// growRequest hands a detached leaf and deep copies of its reactions to a
// worker. growResult carries back the grown subtree, its exact-match map,
// and its terminal flags. All state crosses only on these channels.
type growRequest struct {
	family string
	label  string
	node   *domain.Entry
	rxns   []*Training
}

type growResult struct {
	label    string
	entries  map[string]*domain.Entry
	matches  map[string][]*Training
	terminal map[string]bool
	err      error
}

type growWorker struct {
	reqc chan growRequest
	resc chan growResult
	busy bool
}

// growLoop extends every splittable node until none remain. Each pass polls
// outstanding workers without blocking, then walks the splittable labels in
// index order: a node with enough reactions is handed to a free worker when
// enough other work remains; otherwise it is extended in place, and any
// successful extension restarts the pass. Indices are renumbered
// sequentially after every pass.
func (in *Inducer) growLoop(ctx context.Context, t *state, workers int) error {
	var ws []*growWorker
	for i := 0; i < workers; i++ {
		w := &growWorker{
			reqc: make(chan growRequest),
			resc: make(chan growResult),
		}
		go in.runWorker(w)
		ws = append(ws, w)
	}
	defer func() {
		for _, w := range ws {
			if w.busy {
				<-w.resc
			}
			close(w.reqc)
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, w := range ws {
			if !w.busy {
				continue
			}
			select {
			case res := <-w.resc:
				w.busy = false
				if res.err != nil {
					return fmt.Errorf("growing subtree %s: %w", res.label, res.err)
				}
				t.merge(res)
			default:
			}
		}

		splittable := t.splittable()
		if len(splittable) == 0 {
			w := busyWorker(ws)
			if w == nil {
				break
			}
			res := <-w.resc
			w.busy = false
			if res.err != nil {
				return fmt.Errorf("growing subtree %s: %w", res.label, res.err)
			}
			t.merge(res)
			continue
		}

		for _, label := range splittable {
			node := t.arena[label]
			if node == nil {
				continue
			}
			if w := freeWorker(ws); w != nil &&
				len(splittable) > in.cfg.MinSplittableNodes &&
				len(t.rxns[label]) > in.cfg.MinReactionsToSpawn &&
				len(node.Children) == 0 {
				req := t.detach(label)
				w.reqc <- req
				w.busy = true
				metrics.subtreesDispatched.Inc()
				in.logger.Debug("dispatched subtree",
					"family", t.family, "node", label, "reactions", len(req.rxns))
				continue
			}
			again, err := in.extendNode(t, label)
			if err != nil {
				return err
			}
			if again {
				break
			}
		}
		t.renumber()
	}
	t.renumber()
	return nil
}

func freeWorker(ws []*growWorker) *growWorker {
	for _, w := range ws {
		if !w.busy {
			return w
		}
	}
	return nil
}

func busyWorker(ws []*growWorker) *growWorker {
	for _, w := range ws {
		if w.busy {
			return w
		}
	}
	return nil
}

// runWorker grows dispatched subtrees serially, one request at a time.
// Workers never share state with the coordinator; results travel back over
// the response channel.
func (in *Inducer) runWorker(w *growWorker) {
	for req := range w.reqc {
		sub := &state{
			family:   req.family,
			root:     req.label,
			arena:    map[string]*domain.Entry{req.label: req.node},
			rxns:     map[string][]*Training{req.label: req.rxns},
			terminal: map[string]bool{},
			retried:  map[string]bool{},
		}
		err := in.growLoop(context.Background(), sub, 0)
		w.resc <- growResult{
			label:    req.label,
			entries:  sub.arena,
			matches:  sub.rxns,
			terminal: sub.terminal,
			err:      err,
		}
	}
}

// detach removes label from the arena and assignment map so no duplicate
// work happens while a worker owns it, and returns deep copies for the
// dispatch. The copied entry keeps its parent label for relinking.
func (t *state) detach(label string) growRequest {
	e := t.arena[label]
	if p := t.arena[e.Parent]; p != nil {
		for i, c := range p.Children {
			if c == label {
				p.Children = append(p.Children[:i], p.Children[i+1:]...)
				break
			}
		}
	}
	rxns := t.rxns[label]
	copies := make([]*Training, len(rxns))
	for i, tr := range rxns {
		copies[i] = tr.Copy()
	}
	delete(t.arena, label)
	delete(t.rxns, label)
	delete(t.terminal, label)
	delete(t.retried, label)
	return growRequest{family: t.family, label: label, node: e.Copy(), rxns: copies}
}

// merge folds a worker's subtree back in. Entries are added in the worker's
// index order and skipped when the label already exists; entries whose
// parent is unknown are relinked by trimming trailing underscore fragments
// until a known label is found. Fresh indices come from the next renumber.
func (t *state) merge(res growResult) {
	labels := make([]string, 0, len(res.entries))
	for label := range res.entries {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		a, b := res.entries[labels[i]], res.entries[labels[j]]
		if a.Index != b.Index {
			return a.Index < b.Index
		}
		return labels[i] < labels[j]
	})

	for _, label := range labels {
		e := res.entries[label]
		if _, ok := t.arena[label]; ok {
			continue
		}
		t.arena[label] = e
	}
	for _, label := range labels {
		e := res.entries[label]
		if _, ok := res.entries[e.Parent]; ok {
			continue
		}
		parent := e.Parent
		if _, ok := t.arena[parent]; !ok || parent == "" || parent == label {
			parent = t.relinkLabel(label)
		}
		e.Parent = parent
		p := t.arena[parent]
		if !containsLabel(p.Children, label) {
			p.Children = append(p.Children, label)
		}
	}
	for label, list := range res.matches {
		t.rxns[label] = list
	}
	for label, v := range res.terminal {
		if v {
			t.terminal[label] = true
		}
	}
}

// relinkLabel finds the closest known ancestor by trimming trailing
// underscore-separated fragments, falling back to the root.
func (t *state) relinkLabel(label string) string {
	s := label
	for {
		i := strings.LastIndex(s, "_")
		if i < 0 {
			return t.root
		}
		s = s[:i]
		if _, ok := t.arena[s]; ok && s != label {
			return s
		}
	}
}

func containsLabel(list []string, label string) bool {
	for _, l := range list {
		if l == label {
			return true
		}
	}
	return false
}
