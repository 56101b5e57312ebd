package domain

import (
	"fmt"
	"strings"
)

// Entry is one node of a family's pattern hierarchy. Exactly one of Pattern
// and Logic is set. Parent holds the parent's label ("" at a root); Children
// holds owned child labels in insertion order. The hierarchy itself is an
// arena map from label to Entry, so entries never hold pointers to each
// other and can be copied, merged and persisted independently.
type Entry struct {
	Index    int64
	Label    string
	Pattern  Structure
	Logic    *LogicOr
	Parent   string
	Children []string
	Data     *RateRule
	Rank     int

	ShortDesc string
	LongDesc  string
}

// IsLogic reports whether the entry is a logical combinator rather than a
// concrete pattern.
func (e *Entry) IsLogic() bool { return e.Logic != nil }

// Copy deep-copies the entry. The rate rule and pattern are copied too, so
// the result shares nothing with the receiver.
func (e *Entry) Copy() *Entry {
	out := &Entry{
		Index:     e.Index,
		Label:     e.Label,
		Parent:    e.Parent,
		Children:  append([]string(nil), e.Children...),
		Rank:      e.Rank,
		ShortDesc: e.ShortDesc,
		LongDesc:  e.LongDesc,
	}
	if e.Pattern != nil {
		out.Pattern = e.Pattern.Copy()
	}
	if e.Logic != nil {
		out.Logic = e.Logic.Copy()
	}
	if e.Data != nil {
		out.Data = e.Data.Copy()
	}
	return out
}

// LogicOr is a combinator entry item matching the union of its named
// component entries.
type LogicOr struct {
	Components []string
}

// Copy returns an independent copy of the combinator.
func (l *LogicOr) Copy() *LogicOr {
	return &LogicOr{Components: append([]string(nil), l.Components...)}
}

// String renders the combinator in its text form, e.g. "OR{C_rad, O_rad}".
func (l *LogicOr) String() string {
	return fmt.Sprintf("OR{%s}", strings.Join(l.Components, ", "))
}

// ParseLogicOr parses the "OR{a, b}" text form. ok is false when s is not a
// combinator.
func ParseLogicOr(s string) (*LogicOr, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "OR{") || !strings.HasSuffix(s, "}") {
		return nil, false
	}
	body := s[len("OR{") : len(s)-1]
	var comps []string
	for _, part := range strings.Split(body, ",") {
		if part = strings.TrimSpace(part); part != "" {
			comps = append(comps, part)
		}
	}
	return &LogicOr{Components: comps}, true
}

// Template holds the ordered reactant-slot entries of a family direction and
// the product-side entries generated from them. Slot order is significant:
// it drives reactant-to-slot assignment during generation.
type Template struct {
	Reactants []*Entry
	Products  []*Entry
}

// ReactantLabels returns the slot labels in order.
func (t *Template) ReactantLabels() []string {
	out := make([]string, len(t.Reactants))
	for i, e := range t.Reactants {
		out[i] = e.Label
	}
	return out
}
