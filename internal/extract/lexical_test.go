package extract

import (
	"strings"
	"testing"

	"cwb/internal/document"
	"cwb/internal/logging"
)

func lexical() *LexicalExtractor {
	return NewLexicalExtractor(logging.Nop(), 0)
}

func TestExtractGoFunctions(t *testing.T) {
	src := `package main

import (
	"fmt"
	"strings"
)

func calculateTax(amount float64) float64 {
	rate := 0.2
	return amount * rate
}

func (s *Server) handleRequest(w io.Writer) {
	fmt.Fprint(w, "ok")
}

type Server struct {
	addr string
}
`
	doc := document.NewDocument("main.go", 1, src)
	units := lexical().Extract(doc)

	var names []string
	for _, u := range units {
		if u.Name != "" {
			names = append(names, u.Name)
		}
	}

	want := map[string]Kind{
		"calculateTax":  KindFunction,
		"handleRequest": KindMethod,
		"Server":        KindClass,
	}
	for name, kind := range want {
		u := findUnit(units, name)
		if u == nil {
			t.Fatalf("unit %q not found in %v", name, names)
		}
		if u.Kind != kind {
			t.Errorf("unit %q kind = %q, want %q", name, u.Kind, kind)
		}
		if !u.HasBody() {
			t.Errorf("unit %q should have a body", name)
		}
	}

	// Body of calculateTax must end at its own closing brace
	u := findUnit(units, "calculateTax")
	body := src[u.Body.Start:u.Body.End]
	if !strings.HasPrefix(body, "{") || !strings.HasSuffix(body, "}") {
		t.Errorf("body = %q, want brace-delimited", body)
	}
	if !strings.Contains(body, "rate := 0.2") {
		t.Errorf("body should contain the function content, got %q", body)
	}
	if strings.Contains(body, "handleRequest") {
		t.Errorf("body leaked into the next unit: %q", body)
	}
}

func TestExtractImportBlock(t *testing.T) {
	src := "package main\n\nimport (\n\t\"fmt\"\n\t\"os\"\n)\n\nfunc main() {\n}\n"
	doc := document.NewDocument("main.go", 1, src)
	units := lexical().Extract(doc)

	var imports *Unit
	for i := range units {
		if units[i].Kind == KindImports {
			imports = &units[i]
			break
		}
	}
	if imports == nil {
		t.Fatal("no import block found")
	}
	section := src[imports.Full.Start:imports.Full.End]
	if !strings.Contains(section, "\"fmt\"") || !strings.Contains(section, "\"os\"") {
		t.Errorf("import block = %q, should span both imports", section)
	}
}

func TestBracesInsideStringsIgnored(t *testing.T) {
	src := "func render() {\n\ts := \"{{template}}\"\n\treturn s\n}\n\nfunc next() {\n}\n"
	doc := document.NewDocument("a.go", 1, src)
	units := lexical().Extract(doc)

	u := findUnit(units, "render")
	if u == nil {
		t.Fatal("render not found")
	}
	body := src[u.Body.Start:u.Body.End]
	if !strings.Contains(body, "return s") {
		t.Errorf("body ended early inside string literal: %q", body)
	}
	if strings.Contains(body, "next") {
		t.Errorf("body overran into next function: %q", body)
	}
}

func TestBracesInsideCommentsIgnored(t *testing.T) {
	src := "func f() {\n\t// unbalanced } in comment\n\t/* and { here */\n\tx := 1\n}\n"
	doc := document.NewDocument("a.go", 1, src)
	units := lexical().Extract(doc)

	u := findUnit(units, "f")
	if u == nil {
		t.Fatal("f not found")
	}
	body := src[u.Body.Start:u.Body.End]
	if !strings.Contains(body, "x := 1") {
		t.Errorf("comment braces altered depth: %q", body)
	}
}

func TestUnterminatedStringDoesNotHang(t *testing.T) {
	// Malformed input case: an unterminated string literal
	// containing a brace. The scan must terminate and yield a degraded unit.
	src := "func broken() {\n\ts := \"oops {\n\tx := 1\n}\n"
	doc := document.NewDocument("a.go", 1, src)
	units := lexical().Extract(doc)

	u := findUnit(units, "broken")
	if u == nil {
		t.Fatal("broken not found, expected degraded unit")
	}
	// The unterminated quote closes at end of line, so the real closing
	// brace is still seen.
	body := src[u.Body.Start:u.Body.End]
	if !strings.HasSuffix(body, "}") {
		t.Errorf("body = %q, want closed at the real brace", body)
	}
}

func TestUnbalancedInputTruncatesAtEOF(t *testing.T) {
	src := "func open() {\n\tx := 1\n" // no closing brace
	doc := document.NewDocument("a.go", 1, src)
	units := lexical().Extract(doc)

	u := findUnit(units, "open")
	if u == nil {
		t.Fatal("open not found")
	}
	if u.Full.End != len(src) {
		t.Errorf("Full.End = %d, want truncation at EOF %d", u.Full.End, len(src))
	}
}

func TestAllmanBraceOnNextLine(t *testing.T) {
	src := "public class Foo\n{\n    void bar()\n    {\n        int x = 1;\n    }\n}\n"
	doc := document.NewDocument("Foo.java", 1, src)
	units := lexical().Extract(doc)

	u := findUnit(units, "Foo")
	if u == nil {
		t.Fatal("Foo not found")
	}
	if !u.HasBody() {
		t.Fatal("Foo should have a body despite the brace on the next line")
	}
	if got := src[u.Body.Start : u.Body.Start+1]; got != "{" {
		t.Errorf("body starts with %q, want {", got)
	}
}

func TestPythonIndentationBody(t *testing.T) {
	src := "def first():\n    a = 1\n    b = 2\n\ndef second():\n    pass\n"
	doc := document.NewDocument("a.py", 1, src)
	units := lexical().Extract(doc)

	u := findUnit(units, "first")
	if u == nil {
		t.Fatal("first not found")
	}
	full := src[u.Full.Start:u.Full.End]
	if !strings.Contains(full, "b = 2") {
		t.Errorf("full = %q, want to include indented body", full)
	}
	if strings.Contains(full, "second") {
		t.Errorf("full overran the dedent boundary: %q", full)
	}
}

func TestArrowFunctionAssignment(t *testing.T) {
	src := "const sum = (a, b) => {\n  return a + b;\n};\n"
	doc := document.NewDocument("util.js", 1, src)
	units := lexical().Extract(doc)

	u := findUnit(units, "sum")
	if u == nil {
		t.Fatal("sum not found")
	}
	if u.Kind != KindFunction {
		t.Errorf("Kind = %q, want function", u.Kind)
	}
}

func TestUnsupportedExtensionYieldsNoUnits(t *testing.T) {
	doc := document.NewDocument("data.csv", 1, "a,b\n1,2\n")
	if units := lexical().Extract(doc); units != nil {
		t.Errorf("Extract() = %v, want nil for unsupported language", units)
	}
}

func TestOversizedFileSkipped(t *testing.T) {
	e := NewLexicalExtractor(logging.Nop(), 10)
	doc := document.NewDocument("big.go", 1, "func f() {\n}\nfunc g() {\n}\n")
	if units := e.Extract(doc); units != nil {
		t.Errorf("Extract() = %v, want nil above size limit", units)
	}
}

func TestUnitAtReturnsInnermost(t *testing.T) {
	outer := Unit{Kind: KindClass, Name: "A", Full: Range{Start: 0, End: 100}}
	inner := Unit{Kind: KindMethod, Name: "foo", Full: Range{Start: 10, End: 40}}
	units := []Unit{outer, inner}

	got := UnitAt(units, 20)
	if got == nil || got.Name != "foo" {
		t.Errorf("UnitAt(20) = %v, want foo", got)
	}
	got = UnitAt(units, 60)
	if got == nil || got.Name != "A" {
		t.Errorf("UnitAt(60) = %v, want A", got)
	}
	if got := UnitAt(units, 200); got != nil {
		t.Errorf("UnitAt(200) = %v, want nil", got)
	}
}

func TestFallbackUnitIsCursorLine(t *testing.T) {
	doc := document.NewDocument("a.go", 1, "aaa\nbbb ccc\nddd\n")
	u := FallbackUnit(doc, 6)
	if got := doc.Text[u.Full.Start:u.Full.End]; got != "bbb ccc" {
		t.Errorf("fallback unit text = %q, want %q", got, "bbb ccc")
	}
}

func findUnit(units []Unit, name string) *Unit {
	for i := range units {
		if units[i].Name == name {
			return &units[i]
		}
	}
	return nil
}
