package fulltext

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/satishbabariya/queryable/query"
)

// DefaultMaxDistance is the largest proximity distance SQL Server accepts;
// anything above renders as MAX.
const DefaultMaxDistance = 4294967295

// Options controls provider-dependent emission.
type Options struct {
	// CustomProximity enables the NEAR ((...), distance, order) form.
	CustomProximity bool
	// MaxDistance overrides DefaultMaxDistance when positive.
	MaxDistance int64
}

// Compile validates the whole condition tree and renders it. Validation
// failures are argument errors wrapping query.ErrNilArgument,
// query.ErrInvalidArgument, query.ErrOutOfRange or
// query.ErrFeatureNotSupported; nothing is rendered for an invalid tree.
func Compile(c Condition, opts Options) (string, error) {
	if err := validate(c, opts); err != nil {
		return "", err
	}
	e := &emitter{opts: opts}
	e.condition(c)
	return e.b.String(), nil
}

// MustCompile is Compile for conditions known to be valid.
func MustCompile(c Condition, opts Options) string {
	s, err := Compile(c, opts)
	if err != nil {
		panic(err)
	}
	return s
}

func argErr(kind error, format string, args ...any) error {
	return fmt.Errorf("fulltext: %s: %w", fmt.Sprintf(format, args...), kind)
}

func isNil(c any) bool {
	if c == nil {
		return true
	}
	v := reflect.ValueOf(c)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

func validateTerm(what, term string) error {
	if strings.TrimSpace(term) == "" {
		return argErr(query.ErrInvalidArgument, "%s is empty or whitespace", what)
	}
	return nil
}

func validate(c Condition, opts Options) error {
	if isNil(c) {
		return argErr(query.ErrNilArgument, "condition is nil")
	}
	switch c := c.(type) {
	case *Simple:
		return validateTerm("simple term", c.Term)
	case *Prefix:
		return validateTerm("prefix term", c.Term)
	case *Generation:
		if c.Terms == nil {
			return argErr(query.ErrNilArgument, "generation terms are nil")
		}
		if len(c.Terms) == 0 {
			return argErr(query.ErrInvalidArgument, "generation term needs at least one term")
		}
		if c.Kind != Inflectional && c.Kind != Thesaurus {
			return argErr(query.ErrInvalidArgument, "unknown generation kind %d", int(c.Kind))
		}
		for _, t := range c.Terms {
			if err := validateTerm("generation term", t); err != nil {
				return err
			}
		}
	case *Proximity:
		return validateOperands("proximity", c.Terms, opts, 2)
	case *CustomProximity:
		if !opts.CustomProximity {
			return argErr(query.ErrFeatureNotSupported, "custom proximity terms are not supported by the provider")
		}
		if c.MaxDistance != nil && *c.MaxDistance < 0 {
			return argErr(query.ErrOutOfRange, "proximity distance %d is negative", *c.MaxDistance)
		}
		return validateOperands("custom proximity", c.Terms, opts, 2)
	case *Weighted:
		if c.Terms == nil {
			return argErr(query.ErrNilArgument, "weighted terms are nil")
		}
		if len(c.Terms) == 0 {
			return argErr(query.ErrInvalidArgument, "weighted term needs at least one term")
		}
		for _, wt := range c.Terms {
			if isNil(wt.Term) {
				return argErr(query.ErrNilArgument, "weighted term is nil")
			}
			if wt.Weight != nil && !(*wt.Weight >= 0 && *wt.Weight <= 1) {
				return argErr(query.ErrInvalidArgument, "weight %g is outside [0, 1]", *wt.Weight)
			}
			if err := validate(wt.Term, opts); err != nil {
				return err
			}
		}
	case *Complex:
		return validate(c.Inner, opts)
	case *And:
		return validatePair(c.Left, c.Right, opts)
	case *Or:
		return validatePair(c.Left, c.Right, opts)
	case *AndNot:
		return validatePair(c.Left, c.Right, opts)
	default:
		return argErr(query.ErrInvalidArgument, "unknown condition %T", c)
	}
	return nil
}

func validateOperands(what string, terms []Operand, opts Options, min int) error {
	if terms == nil {
		return argErr(query.ErrNilArgument, "%s terms are nil", what)
	}
	if len(terms) < min {
		return argErr(query.ErrInvalidArgument, "%s needs at least %d terms", what, min)
	}
	for _, t := range terms {
		switch t.(type) {
		case *Simple, *Prefix, nil:
		default:
			if !isNil(t) {
				return argErr(query.ErrInvalidArgument, "%s accepts only simple and prefix terms, got %T", what, t)
			}
		}
		if err := validate(t, opts); err != nil {
			return err
		}
	}
	return nil
}

func validatePair(l, r Condition, opts Options) error {
	if err := validate(l, opts); err != nil {
		return err
	}
	return validate(r, opts)
}

type emitter struct {
	b    strings.Builder
	opts Options
}

func (e *emitter) condition(c Condition) {
	switch c := c.(type) {
	case *Simple:
		e.b.WriteString(word(c.Term))
	case *Prefix:
		e.b.WriteString(`"` + escape(normalizeTerm(c.Term)) + `*"`)
	case *Generation:
		fmt.Fprintf(&e.b, "FORMSOF (%s", c.Kind)
		for _, t := range c.Terms {
			e.b.WriteString(", ")
			e.b.WriteString(word(t))
		}
		e.b.WriteString(")")
	case *Proximity:
		for i, t := range c.Terms {
			if i > 0 {
				e.b.WriteString(" NEAR ")
			}
			e.condition(t)
		}
	case *CustomProximity:
		e.b.WriteString("NEAR ((")
		for i, t := range c.Terms {
			if i > 0 {
				e.b.WriteString(", ")
			}
			e.condition(t)
		}
		e.b.WriteString(")")
		switch {
		case c.MaxDistance != nil:
			e.b.WriteString(", ")
			e.b.WriteString(e.distance(*c.MaxDistance))
			if c.MatchOrder {
				e.b.WriteString(", TRUE")
			}
		case c.MatchOrder:
			// the order flag needs a distance before it
			e.b.WriteString(", MAX, TRUE")
		}
		e.b.WriteString(")")
	case *Weighted:
		e.b.WriteString("ISABOUT (")
		for i, wt := range c.Terms {
			if i > 0 {
				e.b.WriteString(", ")
			}
			e.condition(wt.Term)
			if wt.Weight != nil {
				fmt.Fprintf(&e.b, " WEIGHT (%s)", strconv.FormatFloat(*wt.Weight, 'f', -1, 64))
			}
		}
		e.b.WriteString(")")
	case *Complex:
		e.b.WriteString("(")
		e.condition(c.Inner)
		e.b.WriteString(")")
	case *And:
		e.binary(c.Left, " AND ", c.Right)
	case *Or:
		e.binary(c.Left, " OR ", c.Right)
	case *AndNot:
		e.binary(c.Left, " AND NOT ", c.Right)
	}
}

func (e *emitter) binary(l Condition, op string, r Condition) {
	e.condition(l)
	e.b.WriteString(op)
	e.condition(r)
}

func (e *emitter) distance(d int64) string {
	ceiling := int64(DefaultMaxDistance)
	if e.opts.MaxDistance > 0 {
		ceiling = e.opts.MaxDistance
	}
	if d > ceiling {
		return "MAX"
	}
	return strconv.FormatInt(d, 10)
}

func normalizeTerm(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func escape(s string) string {
	return strings.ReplaceAll(s, `"`, `""`)
}

// word renders a term bare, or quoted as a phrase when it contains
// whitespace or characters the search grammar treats specially.
func word(term string) string {
	t := normalizeTerm(term)
	if strings.IndexFunc(t, func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune(`"()*,&|!~`, r)
	}) >= 0 || isKeyword(t) {
		return `"` + escape(t) + `"`
	}
	return t
}

func isKeyword(t string) bool {
	switch strings.ToUpper(t) {
	case "AND", "OR", "NOT", "NEAR", "FORMSOF", "ISABOUT", "WEIGHT":
		return true
	}
	return false
}
