package domain

// Record is the persistence form of an Entry. Item carries the pattern's
// adjacency text, or the "OR{a, b}" combinator form for logic nodes. It is
// what rule stores save and load; converting back to an Entry needs the
// pattern subsystem's parser, so stores hand Records to the engine instead
// of Entries.
type Record struct {
	Label      string    `json:"label" mapstructure:"label"`
	Item       string    `json:"item" mapstructure:"item"`
	Parent     string    `json:"parent,omitempty" mapstructure:"parent"`
	Children   []string  `json:"children,omitempty" mapstructure:"children"`
	RateModel  *RateRule `json:"rate_model,omitempty" mapstructure:"rate_model"`
	Rank       int       `json:"rank,omitempty" mapstructure:"rank"`
	Index      int64     `json:"index" mapstructure:"index"`
	Provenance string    `json:"provenance,omitempty" mapstructure:"provenance"`
}

// ToRecord converts an entry into its persistence form.
func (e *Entry) ToRecord() Record {
	rec := Record{
		Label:      e.Label,
		Parent:     e.Parent,
		Children:   append([]string(nil), e.Children...),
		Rank:       e.Rank,
		Index:      e.Index,
		Provenance: e.ShortDesc,
	}
	switch {
	case e.Logic != nil:
		rec.Item = e.Logic.String()
	case e.Pattern != nil:
		rec.Item = e.Pattern.Render()
	}
	if e.Data != nil {
		rec.RateModel = e.Data.Copy()
	}
	return rec
}

// EntryFromRecord rebuilds an entry from its persistence form. parse turns
// adjacency text back into a pattern; it is only consulted for non-logic
// items.
func EntryFromRecord(rec Record, parse func(string) (Structure, error)) (*Entry, error) {
	e := &Entry{
		Label:     rec.Label,
		Parent:    rec.Parent,
		Children:  append([]string(nil), rec.Children...),
		Rank:      rec.Rank,
		Index:     rec.Index,
		ShortDesc: rec.Provenance,
	}
	if rec.RateModel != nil {
		e.Data = rec.RateModel.Copy()
	}
	if logic, ok := ParseLogicOr(rec.Item); ok {
		e.Logic = logic
		return e, nil
	}
	p, err := parse(rec.Item)
	if err != nil {
		return nil, err
	}
	e.Pattern = p
	return e, nil
}
