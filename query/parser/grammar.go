// Package parser reads method-chain queries written as text, such as
//
//	All<Person>().Where(p => p.Age > $minAge).OrderBy(p => p.Name).Take(10)
//
// and turns them into expression trees. Identifiers prefixed with $ are
// captured variables supplied by the caller.
package parser

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// QueryLexer tokenizes query text. A type argument is written without
// spaces (OfType<Dog>); comparisons that would read the same need spaces.
var QueryLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "String", Pattern: `"(?:\\.|[^"\\])*"`},
	{Name: "Float", Pattern: `\d+\.\d+(?:[eE][-+]?\d+)?`},
	{Name: "Int", Pattern: `\d+[lL]?`},
	{Name: "Generic", Pattern: `<[A-Za-z_][A-Za-z0-9_]*>`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Op", Pattern: `=>|==|!=|<=|>=|&&|\|\||\?\?|[-+*/%<>!?:=.,()\[\]{}$]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

// Expression is a lambda or a conditional expression.
type Expression struct {
	Pos    lexer.Position
	Lambda *Lambda      `  @@`
	Cond   *Conditional `| @@`
}

// Lambda is p => body or (a, b) => body.
type Lambda struct {
	Params []string    `( @Ident | "(" @Ident ( "," @Ident )* ")" ) "=>"`
	Body   *Expression `@@`
}

// Conditional is test ? then : else.
type Conditional struct {
	Test *Coalesce   `@@`
	Then *Expression `( "?" @@`
	Else *Expression `  ":" @@ )?`
}

// Coalesce is left ?? right, right associative.
type Coalesce struct {
	Left  *Or       `@@`
	Right *Coalesce `( "??" @@ )?`
}

type Or struct {
	Left *And   `@@`
	Rest []*And `( "||" @@ )*`
}

type And struct {
	Left *Comparison   `@@`
	Rest []*Comparison `( "&&" @@ )*`
}

type Comparison struct {
	Left  *Additive `@@`
	Op    string    `( @( "==" | "!=" | "<=" | ">=" | "<" | ">" )`
	Right *Additive `  @@ )?`
}

type Additive struct {
	Left *Multiplicative `@@`
	Rest []*AddOp        `@@*`
}

type AddOp struct {
	Op      string          `@( "+" | "-" )`
	Operand *Multiplicative `@@`
}

type Multiplicative struct {
	Left *Unary   `@@`
	Rest []*MulOp `@@*`
}

type MulOp struct {
	Op      string `@( "*" | "/" | "%" )`
	Operand *Unary `@@`
}

type Unary struct {
	Op      string   `  ( @( "!" | "-" )`
	Operand *Unary   `    @@ )`
	Postfix *Postfix `| @@`
}

// Postfix is a primary followed by member accesses, method calls and
// indexers.
type Postfix struct {
	Primary  *Primary  `@@`
	Suffixes []*Suffix `@@*`
}

type Suffix struct {
	Member *MemberSuffix `  "." @@`
	Index  *string       `| "[" @String "]"`
}

// MemberSuffix is .Name, .Name(args) or .Name<T>(args).
type MemberSuffix struct {
	Pos     lexer.Position
	Name    string        `@Ident`
	TypeArg string        `@Generic?`
	Call    bool          `( @"("`
	Args    []*Expression `  ( @@ ( "," @@ )* )? ")" )?`
}

type Primary struct {
	Pos     lexer.Position
	Source  *Source      `  @@`
	Convert *ConvertCall `| @@`
	New     *NewExpr     `| @@`
	Func    *FuncCall    `| @@`
	Capture *string      `| "$" @Ident`
	Float   *string      `| @Float`
	Int     *string      `| @Int`
	String  *string      `| @String`
	Bool    *string      `| @( "true" | "false" )`
	Null    bool         `| @"null"`
	Ident   *string      `| @Ident`
	Paren   *Expression  `| "(" @@ ")"`
}

// Source is All<T>().
type Source struct {
	Type string `"All" @Generic "(" ")"`
}

// ConvertCall is Convert<int64>(x).
type ConvertCall struct {
	Type    string      `"Convert" @Generic`
	Operand *Expression `"(" @@ ")"`
}

// NewExpr is new { A = x, p.B } or new Address { City = x }.
type NewExpr struct {
	Type    string          `"new" @Ident?`
	Members []*MemberAssign `"{" ( @@ ( "," @@ )* )? "}"`
}

type MemberAssign struct {
	Name  string      `( @Ident "=" )?`
	Value *Expression `@@`
}

// FuncCall is a top-level function: Local, In or Match.
type FuncCall struct {
	Name string        `@( "Local" | "In" | "Match" )`
	Args []*Expression `"(" ( @@ ( "," @@ )* )? ")"`
}

var queryParser = participle.MustBuild[Expression](
	participle.Lexer(QueryLexer),
	participle.Elide("Whitespace"),
	participle.Unquote("String"),
	participle.UseLookahead(8),
)
