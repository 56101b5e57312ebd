package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrForbiddenStructure signals that a candidate product matched a forbidden
// pattern. Generation drops the candidate silently.
var ErrForbiddenStructure = errors.New("forbidden structure")

// ErrEntryNotFound is returned when a tree entry label cannot be resolved.
var ErrEntryNotFound = errors.New("entry not found")

// ErrFamilyNotFound is returned when a family name is not registered.
var ErrFamilyNotFound = errors.New("family not found")

// InvalidActionError reports a recipe action that cannot be applied to the
// structure at hand (missing label, duplicate bond, order out of range,
// electron count underflow). It is fatal for the candidate only; generation
// moves on to the next mapping.
type InvalidActionError struct {
	Action string
	Reason string
}

func (e *InvalidActionError) Error() string {
	return fmt.Sprintf("invalid action %s: %s", e.Action, e.Reason)
}

// ActionError reports a syntactically malformed recipe action. Unlike
// InvalidActionError it points at a corrupt family definition and aborts the
// whole operation.
type ActionError struct {
	Action string
	Reason string
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("malformed action %s: %s", e.Action, e.Reason)
}

// UndeterminableKineticsError reports that no rate data could be looked up or
// averaged for a reaction. The reaction itself is still handed back to the
// caller, with nil kinetics.
type UndeterminableKineticsError struct {
	Family   string
	Template []string
	Reason   string
}

func (e *UndeterminableKineticsError) Error() string {
	return fmt.Sprintf("undeterminable kinetics for family %q template [%s]: %s",
		e.Family, strings.Join(e.Template, ", "), e.Reason)
}

// KineticsError is the fatal error class of the kinetics subsystem: a broken
// reverse for a self-reverse family, an unsplittable tree node, an invalid
// relabel table. It carries the structures involved, rendered in their text
// form, so the failure can be reproduced from the message alone.
type KineticsError struct {
	Op         string
	Family     string
	Message    string
	Structures []string
}

func (e *KineticsError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: family %q: %s", e.Op, e.Family, e.Message)
	for _, s := range e.Structures {
		b.WriteString("\n")
		b.WriteString(s)
	}
	return b.String()
}
