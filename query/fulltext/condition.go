// Package fulltext compiles full-text search conditions into the
// CONTAINS/CONTAINSTABLE search syntax of SQL Server.
package fulltext

// Condition is a node of a search condition tree.
type Condition interface {
	isCondition()
}

// Operand is a term allowed inside proximity and weighted terms.
type Operand interface {
	Condition
	isOperand()
}

// Simple matches a word or a phrase.
type Simple struct {
	Term string
}

// Prefix matches words or phrases starting with Term.
type Prefix struct {
	Term string
}

// GenerationKind selects the forms a generation term expands to.
type GenerationKind int

const (
	Inflectional GenerationKind = iota
	Thesaurus
)

func (k GenerationKind) String() string {
	if k == Thesaurus {
		return "THESAURUS"
	}
	return "INFLECTIONAL"
}

// Generation matches inflectional or thesaurus forms of Terms.
type Generation struct {
	Kind  GenerationKind
	Terms []string
}

// Proximity matches Terms near each other, rendered with the generic NEAR.
type Proximity struct {
	Terms []Operand
}

// CustomProximity is the NEAR form with an explicit maximum distance and
// match order. It needs provider support.
type CustomProximity struct {
	Terms []Operand
	// MaxDistance is the largest number of non-search terms between the
	// first and last term. Nil leaves the distance unspecified.
	MaxDistance *int64
	MatchOrder  bool
}

// WeightedTerm is one entry of a Weighted term.
type WeightedTerm struct {
	Term Operand
	// Weight in [0, 1]. Nil omits the WEIGHT clause.
	Weight *float64
}

// Weighted ranks rows by weighted terms (ISABOUT).
type Weighted struct {
	Terms []WeightedTerm
}

// Complex groups a condition in parentheses.
type Complex struct {
	Inner Condition
}

// And requires both operands.
type And struct{ Left, Right Condition }

// Or requires either operand.
type Or struct{ Left, Right Condition }

// AndNot requires Left and excludes Right.
type AndNot struct{ Left, Right Condition }

func (*Simple) isCondition()          {}
func (*Prefix) isCondition()          {}
func (*Generation) isCondition()      {}
func (*Proximity) isCondition()       {}
func (*CustomProximity) isCondition() {}
func (*Weighted) isCondition()        {}
func (*Complex) isCondition()         {}
func (*And) isCondition()             {}
func (*Or) isCondition()              {}
func (*AndNot) isCondition()          {}

func (*Simple) isOperand()          {}
func (*Prefix) isOperand()          {}
func (*Generation) isOperand()      {}
func (*Proximity) isOperand()       {}
func (*CustomProximity) isOperand() {}

// SimpleTerm builds a simple term.
func SimpleTerm(term string) *Simple { return &Simple{Term: term} }

// PrefixTerm builds a prefix term.
func PrefixTerm(term string) *Prefix { return &Prefix{Term: term} }

// GenerationTerm builds a generation term.
func GenerationTerm(kind GenerationKind, terms ...string) *Generation {
	return &Generation{Kind: kind, Terms: terms}
}

// Near builds a generic proximity term.
func Near(terms ...Operand) *Proximity { return &Proximity{Terms: terms} }

// NearWithin builds a custom proximity term with a maximum distance.
func NearWithin(maxDistance int64, matchOrder bool, terms ...Operand) *CustomProximity {
	return &CustomProximity{Terms: terms, MaxDistance: &maxDistance, MatchOrder: matchOrder}
}

// Weight pairs a term with a weight.
func Weight(term Operand, w float64) WeightedTerm { return WeightedTerm{Term: term, Weight: &w} }

// Unweighted is a weighted-term entry without a WEIGHT clause.
func Unweighted(term Operand) WeightedTerm { return WeightedTerm{Term: term} }

// IsAbout builds a weighted term.
func IsAbout(terms ...WeightedTerm) *Weighted { return &Weighted{Terms: terms} }

// Group parenthesizes c.
func Group(c Condition) *Complex { return &Complex{Inner: c} }

// AndOf combines conditions with AND.
func AndOf(l, r Condition) *And { return &And{Left: l, Right: r} }

// OrOf combines conditions with OR.
func OrOf(l, r Condition) *Or { return &Or{Left: l, Right: r} }

// AndNotOf combines conditions with AND NOT.
func AndNotOf(l, r Condition) *AndNot { return &AndNot{Left: l, Right: r} }
