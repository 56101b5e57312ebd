package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// ActionKind enumerates the recipe action vocabulary.
type ActionKind string

const (
	ActionChangeBond  ActionKind = "CHANGE_BOND"
	ActionFormBond    ActionKind = "FORM_BOND"
	ActionBreakBond   ActionKind = "BREAK_BOND"
	ActionGainRadical ActionKind = "GAIN_RADICAL"
	ActionLoseRadical ActionKind = "LOSE_RADICAL"
	ActionGainPair    ActionKind = "GAIN_PAIR"
	ActionLosePair    ActionKind = "LOSE_PAIR"
)

// Action is one recipe step. Bond actions use both labels; electron actions
// use Label1 only. Order carries the bond order for FORM/BREAK, the signed
// order delta for CHANGE_BOND, and the electron count for the GAIN/LOSE
// kinds.
type Action struct {
	Kind   ActionKind `json:"kind" yaml:"kind"`
	Label1 string     `json:"label1" yaml:"label1"`
	Label2 string     `json:"label2,omitempty" yaml:"label2,omitempty"`
	Order  float64    `json:"order" yaml:"order"`
}

// IsBond reports whether the action addresses a bond (two labels).
func (a Action) IsBond() bool {
	switch a.Kind {
	case ActionChangeBond, ActionFormBond, ActionBreakBond:
		return true
	}
	return false
}

// String renders the action in the bracketed text form used in family
// definitions and error messages, e.g. "CHANGE_BOND {*1,-1,*2}".
func (a Action) String() string {
	if a.IsBond() {
		return fmt.Sprintf("%s {%s,%s,%s}", a.Kind, a.Label1, formatOrder(a.Order), a.Label2)
	}
	return fmt.Sprintf("%s {%s,%d}", a.Kind, a.Label1, int(a.Order))
}

func formatOrder(v float64) string {
	if v == float64(int(v)) {
		if v > 0 {
			return "+" + strconv.Itoa(int(v))
		}
		return strconv.Itoa(int(v))
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Reverse returns the action's structural inverse.
func (a Action) Reverse() (Action, error) {
	out := a
	switch a.Kind {
	case ActionChangeBond:
		out.Order = -a.Order
	case ActionFormBond:
		out.Kind = ActionBreakBond
	case ActionBreakBond:
		out.Kind = ActionFormBond
	case ActionGainRadical:
		out.Kind = ActionLoseRadical
	case ActionLoseRadical:
		out.Kind = ActionGainRadical
	case ActionGainPair:
		out.Kind = ActionLosePair
	case ActionLosePair:
		out.Kind = ActionGainPair
	default:
		return Action{}, &ActionError{Action: string(a.Kind), Reason: "unknown action kind"}
	}
	return out, nil
}

// Validate rejects syntactically malformed actions: unknown kinds, missing
// or non-`*n` labels, a second label on an electron action.
func (a Action) Validate() error {
	bond := false
	switch a.Kind {
	case ActionChangeBond, ActionFormBond, ActionBreakBond:
		bond = true
	case ActionGainRadical, ActionLoseRadical, ActionGainPair, ActionLosePair:
	default:
		return &ActionError{Action: a.String(), Reason: "unknown action kind"}
	}
	if !validLabel(a.Label1) {
		return &ActionError{Action: a.String(), Reason: fmt.Sprintf("bad label %q", a.Label1)}
	}
	if bond {
		if !validLabel(a.Label2) {
			return &ActionError{Action: a.String(), Reason: fmt.Sprintf("bad label %q", a.Label2)}
		}
	} else {
		if a.Label2 != "" {
			return &ActionError{Action: a.String(), Reason: "electron action takes one label"}
		}
		if a.Order != float64(int(a.Order)) || a.Order < 1 {
			return &ActionError{Action: a.String(), Reason: "electron count must be a positive integer"}
		}
	}
	return nil
}

func validLabel(s string) bool {
	if !strings.HasPrefix(s, "*") || len(s) < 2 {
		return false
	}
	_, err := strconv.Atoi(s[1:])
	return err == nil
}

// ValidSiteLabel reports whether s is a `*n` site label.
func ValidSiteLabel(s string) bool { return validLabel(s) }

// Recipe is the ordered action list of a family direction.
type Recipe struct {
	Actions []Action `json:"actions" yaml:"actions"`
}

// AddAction validates and appends one action.
func (r *Recipe) AddAction(a Action) error {
	if err := a.Validate(); err != nil {
		return err
	}
	r.Actions = append(r.Actions, a)
	return nil
}

// Reverse returns the recipe whose application undoes the receiver. Actions
// stay in their original sequence order; each is inverted individually, so
// reversing twice yields an action-for-action identical recipe.
func (r *Recipe) Reverse() (*Recipe, error) {
	out := &Recipe{Actions: make([]Action, 0, len(r.Actions))}
	for _, a := range r.Actions {
		ra, err := a.Reverse()
		if err != nil {
			return nil, err
		}
		out.Actions = append(out.Actions, ra)
	}
	return out, nil
}

// Copy returns an independent copy.
func (r *Recipe) Copy() *Recipe {
	return &Recipe{Actions: append([]Action(nil), r.Actions...)}
}
