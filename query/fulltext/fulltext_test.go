package fulltext

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/queryable/query"
)

var full = Options{CustomProximity: true}

type namedCondition struct {
	name string
	cond Condition
}

func emissionCases() []namedCondition {
	a, b := SimpleTerm("a"), SimpleTerm("b")
	return []namedCondition{
		{"simple", SimpleTerm("abc")},
		{"simple_trimmed", SimpleTerm("  abc ")},
		{"phrase", SimpleTerm("hello world")},
		{"prefix", PrefixTerm("abc")},
		{"prefix_phrase", PrefixTerm("data base")},
		{"generation", GenerationTerm(Inflectional, "run", "ran fast")},
		{"thesaurus", GenerationTerm(Thesaurus, "car")},
		{"proximity", Near(a, PrefixTerm("b"), SimpleTerm("c d"))},
		{"custom", NearWithin(5, true, a, b)},
		{"custom_unordered", NearWithin(5, false, a, b)},
		{"custom_max", NearWithin(4294967296, false, a, b)},
		{"custom_ceiling", NearWithin(4294967295, true, a, b)},
		{"custom_no_distance", &CustomProximity{Terms: []Operand{a, b}}},
		{"custom_ordered_no_distance", &CustomProximity{Terms: []Operand{a, b}, MatchOrder: true}},
		{"weighted", IsAbout(Weight(a, 0.5), Unweighted(PrefixTerm("b")), Weight(GenerationTerm(Inflectional, "c"), 1))},
		{"complex", AndNotOf(Group(OrOf(a, b)), PrefixTerm("c"))},
		{"and", AndOf(a, SimpleTerm("b c"))},
		{"keyword", SimpleTerm("near")},
		{"quote", SimpleTerm(`say "hi"`)},
		{"nfc", SimpleTerm("cafe\u0301")},
	}
}

func TestEmissionGolden(t *testing.T) {
	var out strings.Builder
	for _, c := range emissionCases() {
		s, err := Compile(c.cond, full)
		require.NoError(t, err, c.name)
		out.WriteString(c.name + ": " + s + "\n")
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "conditions", []byte(out.String()))
}

func TestCompileIsDeterministic(t *testing.T) {
	for _, c := range emissionCases() {
		first := MustCompile(c.cond, full)
		assert.Equal(t, first, MustCompile(c.cond, full), c.name)
	}
	assert.Equal(t, "abc", MustCompile(SimpleTerm("abc"), Options{}))
}

func TestParseRoundTrip(t *testing.T) {
	for _, c := range emissionCases() {
		t.Run(c.name, func(t *testing.T) {
			text := MustCompile(c.cond, full)
			parsed, err := Parse(text)
			require.NoError(t, err, text)
			again, err := Compile(parsed, full)
			require.NoError(t, err)
			assert.Equal(t, text, again)
		})
	}
}

func TestValidation(t *testing.T) {
	neg := int64(-1)
	tests := []struct {
		name string
		cond Condition
		opts Options
		kind error
	}{
		{"empty simple", SimpleTerm(""), full, query.ErrInvalidArgument},
		{"whitespace simple", SimpleTerm("  \t"), full, query.ErrInvalidArgument},
		{"whitespace prefix", PrefixTerm(" "), full, query.ErrInvalidArgument},
		{"nil simple", (*Simple)(nil), full, query.ErrNilArgument},
		{"nil condition", nil, full, query.ErrNilArgument},
		{"nil generation terms", GenerationTerm(Inflectional), full, query.ErrNilArgument},
		{"no generation terms", &Generation{Terms: []string{}}, full, query.ErrInvalidArgument},
		{"blank generation term", GenerationTerm(Thesaurus, "ok", " "), full, query.ErrInvalidArgument},
		{"weight above one", IsAbout(Weight(SimpleTerm("a"), 1.5)), full, query.ErrInvalidArgument},
		{"negative weight", IsAbout(Weight(SimpleTerm("a"), -0.1)), full, query.ErrInvalidArgument},
		{"NaN weight", IsAbout(Weight(SimpleTerm("a"), math.NaN())), full, query.ErrInvalidArgument},
		{"nil weighted terms", &Weighted{}, full, query.ErrNilArgument},
		{"negative distance", NearWithin(-1, false, SimpleTerm("a"), SimpleTerm("b")), full, query.ErrOutOfRange},
		{"negative distance pointer", &CustomProximity{Terms: []Operand{SimpleTerm("a"), SimpleTerm("b")}, MaxDistance: &neg}, full, query.ErrOutOfRange},
		{"custom proximity unsupported", NearWithin(1, false, SimpleTerm("a"), SimpleTerm("b")), Options{}, query.ErrFeatureNotSupported},
		{"single proximity term", Near(SimpleTerm("a")), full, query.ErrInvalidArgument},
		{"nil proximity term", Near(nil, SimpleTerm("a")), full, query.ErrNilArgument},
		{"nested generation in proximity", Near(GenerationTerm(Inflectional, "a"), SimpleTerm("b")), full, query.ErrInvalidArgument},
		{"nil operand", AndOf(SimpleTerm("a"), nil), full, query.ErrNilArgument},
		{"invalid right operand", OrOf(SimpleTerm("ok"), SimpleTerm("")), full, query.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Compile(tt.cond, tt.opts)
			require.Error(t, err)
			assert.Empty(t, s)
			assert.True(t, errors.Is(err, tt.kind), "got %v", err)
			assert.False(t, query.IsTranslationError(err))
		})
	}
}

func TestWeightedOrderFollowsDeclaration(t *testing.T) {
	c := IsAbout(Weight(SimpleTerm("zeta"), 0.1), Weight(SimpleTerm("alpha"), 0.9), Unweighted(SimpleTerm("mid")))
	assert.Equal(t, "ISABOUT (zeta WEIGHT (0.1), alpha WEIGHT (0.9), mid)", MustCompile(c, Options{}))
}

func TestCustomCeilingOption(t *testing.T) {
	c := NearWithin(11, false, SimpleTerm("a"), SimpleTerm("b"))
	assert.Equal(t, "NEAR ((a, b), MAX)", MustCompile(c, Options{CustomProximity: true, MaxDistance: 10}))
}

func TestMatchOrderWithoutDistance(t *testing.T) {
	c := &CustomProximity{Terms: []Operand{SimpleTerm("a"), SimpleTerm("b")}, MatchOrder: true}
	assert.Equal(t, "NEAR ((a, b), MAX, TRUE)", MustCompile(c, full))

	parsed, err := Parse("NEAR ((a, b), MAX, TRUE)")
	require.NoError(t, err)
	cp, ok := parsed.(*CustomProximity)
	require.True(t, ok)
	assert.True(t, cp.MatchOrder)
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, text := range []string{"", "   ", "a AND", "FORMSOF (SOMETIMES, a)", "ISABOUT (a WEIGHT (x))"} {
		_, err := Parse(text)
		assert.ErrorIs(t, err, query.ErrInvalidArgument, text)
	}
}
