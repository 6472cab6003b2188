package fulltext

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/satishbabariya/queryable/query"
)

// searchLexer tokenizes search conditions written in the CONTAINS syntax.
var searchLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "String", Pattern: `"(?:[^"]|"")*"`},
	{Name: "Number", Pattern: `\d+(?:\.\d+)?\b`},
	{Name: "Ident", Pattern: `[^\s(),"]+`},
	{Name: "Punct", Pattern: `[(),]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

type searchExpr struct {
	Head *searchNear `@@`
	Tail []*searchOp `@@*`
}

type searchOp struct {
	Op   string      `@("AND" | "OR")`
	Not  bool        `@"NOT"?`
	Next *searchNear `@@`
}

type searchNear struct {
	Items []*searchPrimary `@@ ("NEAR" @@)*`
}

type searchPrimary struct {
	Group   *searchExpr    `  "(" @@ ")"`
	Formsof *searchFormsof `| @@`
	Isabout *searchIsabout `| @@`
	Custom  *searchCustom  `| @@`
	Word    *string        `| @(String | Ident | Number)`
}

type searchFormsof struct {
	Kind  string   `"FORMSOF" "(" @Ident`
	Terms []string `("," @(String | Ident | Number))+ ")"`
}

type searchIsabout struct {
	Items []*searchWeighted `"ISABOUT" "(" @@ ("," @@)* ")"`
}

type searchWeighted struct {
	Term   *searchPrimary `@@`
	Weight *string        `("WEIGHT" "(" @Number ")")?`
}

type searchCustom struct {
	Terms []*searchPrimary `"NEAR" "(" "(" @@ ("," @@)* ")"`
	Limit *searchLimit     `@@? ")"`
}

type searchLimit struct {
	Distance string  `"," @(Number | "MAX")`
	Order    *string `("," @("TRUE" | "FALSE"))?`
}

var searchParser = participle.MustBuild[searchExpr](
	participle.Lexer(searchLexer),
	participle.Elide("Whitespace"),
	participle.CaseInsensitive("Ident"),
	participle.UseLookahead(3),
)

// Parse reads a search condition written in the syntax Compile emits, for
// example `"data base*" AND NOT FORMSOF (INFLECTIONAL, run)`.
func Parse(text string) (Condition, error) {
	if strings.TrimSpace(text) == "" {
		return nil, argErr(query.ErrInvalidArgument, "search condition text is empty")
	}
	tree, err := searchParser.ParseString("", text)
	if err != nil {
		return nil, argErr(query.ErrInvalidArgument, "%v", err)
	}
	return tree.condition()
}

func (e *searchExpr) condition() (Condition, error) {
	c, err := e.Head.condition()
	if err != nil {
		return nil, err
	}
	for _, op := range e.Tail {
		next, err := op.Next.condition()
		if err != nil {
			return nil, err
		}
		switch {
		case strings.EqualFold(op.Op, "OR"):
			c = OrOf(c, next)
		case op.Not:
			c = AndNotOf(c, next)
		default:
			c = AndOf(c, next)
		}
	}
	return c, nil
}

func (n *searchNear) condition() (Condition, error) {
	if len(n.Items) == 1 {
		return n.Items[0].condition()
	}
	terms, err := operands(n.Items)
	if err != nil {
		return nil, err
	}
	return Near(terms...), nil
}

func operands(items []*searchPrimary) ([]Operand, error) {
	out := make([]Operand, 0, len(items))
	for _, it := range items {
		c, err := it.condition()
		if err != nil {
			return nil, err
		}
		op, ok := c.(Operand)
		if !ok {
			return nil, argErr(query.ErrInvalidArgument, "%T cannot be used as a proximity or weighted term", c)
		}
		out = append(out, op)
	}
	return out, nil
}

func (p *searchPrimary) condition() (Condition, error) {
	switch {
	case p.Group != nil:
		inner, err := p.Group.condition()
		if err != nil {
			return nil, err
		}
		return Group(inner), nil
	case p.Formsof != nil:
		kind := Inflectional
		switch strings.ToUpper(p.Formsof.Kind) {
		case "INFLECTIONAL":
		case "THESAURUS":
			kind = Thesaurus
		default:
			return nil, argErr(query.ErrInvalidArgument, "unknown generation kind %q", p.Formsof.Kind)
		}
		terms := make([]string, len(p.Formsof.Terms))
		for i, t := range p.Formsof.Terms {
			terms[i] = unquote(t)
		}
		return GenerationTerm(kind, terms...), nil
	case p.Isabout != nil:
		w := &Weighted{Terms: []WeightedTerm{}}
		for _, it := range p.Isabout.Items {
			ops, err := operands([]*searchPrimary{it.Term})
			if err != nil {
				return nil, err
			}
			wt := WeightedTerm{Term: ops[0]}
			if it.Weight != nil {
				f, err := strconv.ParseFloat(*it.Weight, 64)
				if err != nil {
					return nil, argErr(query.ErrInvalidArgument, "weight %q: %v", *it.Weight, err)
				}
				wt.Weight = &f
			}
			w.Terms = append(w.Terms, wt)
		}
		return w, nil
	case p.Custom != nil:
		terms, err := operands(p.Custom.Terms)
		if err != nil {
			return nil, err
		}
		cp := &CustomProximity{Terms: terms}
		if lim := p.Custom.Limit; lim != nil {
			d := int64(DefaultMaxDistance) + 1
			if !strings.EqualFold(lim.Distance, "MAX") {
				d, err = strconv.ParseInt(lim.Distance, 10, 64)
				if err != nil {
					return nil, argErr(query.ErrOutOfRange, "distance %q: %v", lim.Distance, err)
				}
			}
			cp.MaxDistance = &d
			cp.MatchOrder = lim.Order != nil && strings.EqualFold(*lim.Order, "TRUE")
		}
		return cp, nil
	case p.Word != nil:
		w := *p.Word
		quoted := strings.HasPrefix(w, `"`)
		w = unquote(w)
		if quoted && strings.HasSuffix(w, "*") {
			return PrefixTerm(strings.TrimSuffix(w, "*")), nil
		}
		return SimpleTerm(w), nil
	}
	return nil, fmt.Errorf("fulltext: empty term")
}

func unquote(s string) string {
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		return strings.ReplaceAll(s[1:len(s)-1], `""`, `"`)
	}
	return s
}
