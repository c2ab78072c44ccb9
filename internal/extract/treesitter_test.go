//go:build cgo

package extract

import (
	"strings"
	"testing"

	"cwb/internal/document"
	"cwb/internal/logging"
)

func TestTreeExtractGo(t *testing.T) {
	src := `package main

import (
	"fmt"
)

type Greeter struct {
	name string
}

func (g *Greeter) Greet() string {
	return "hello " + g.name
}

func main() {
	fmt.Println(NewGreeter("x").Greet())
}
`
	doc := document.NewDocument("main.go", 1, src)
	e := NewTreeExtractor(logging.Nop())
	units := e.Extract(doc)
	if len(units) == 0 {
		t.Fatal("tree extraction returned no units")
	}

	greet := findUnit(units, "Greet")
	if greet == nil {
		t.Fatal("Greet not found")
	}
	if greet.Kind != KindMethod {
		t.Errorf("Greet kind = %q, want method", greet.Kind)
	}
	if !greet.HasBody() {
		t.Fatal("Greet should have a body")
	}
	body := src[greet.Body.Start:greet.Body.End]
	if !strings.Contains(body, "hello") {
		t.Errorf("Greet body = %q", body)
	}
	// Signature precedes the body and starts at "func"
	sig := src[greet.Signature.Start:greet.Signature.End]
	if !strings.HasPrefix(sig, "func (g *Greeter) Greet()") {
		t.Errorf("Greet signature = %q", sig)
	}

	mainFn := findUnit(units, "main")
	if mainFn == nil || mainFn.Kind != KindFunction {
		t.Fatalf("main = %v, want function unit", mainFn)
	}

	greeter := findUnit(units, "Greeter")
	if greeter == nil || greeter.Kind != KindClass {
		t.Fatalf("Greeter = %v, want class unit", greeter)
	}

	var imports *Unit
	for i := range units {
		if units[i].Kind == KindImports {
			imports = &units[i]
		}
	}
	if imports == nil {
		t.Fatal("import block not found")
	}
	if !strings.Contains(src[imports.Full.Start:imports.Full.End], "fmt") {
		t.Error("import block should cover the fmt import")
	}
}

func TestTreeExtractStringConfusionImmunity(t *testing.T) {
	// The tree path must not be confused by braces in string literals.
	src := "package main\n\nfunc tpl() string {\n\treturn \"{{ } {\"\n}\n\nfunc after() {}\n"
	doc := document.NewDocument("t.go", 1, src)
	units := NewTreeExtractor(logging.Nop()).Extract(doc)

	tpl := findUnit(units, "tpl")
	if tpl == nil {
		t.Fatal("tpl not found")
	}
	body := src[tpl.Body.Start:tpl.Body.End]
	if strings.Contains(body, "after") {
		t.Errorf("tpl body overran: %q", body)
	}
	if findUnit(units, "after") == nil {
		t.Error("after not found")
	}
}

func TestTreeExtractUnsupportedLanguage(t *testing.T) {
	doc := document.NewDocument("notes.txt", 1, "hello")
	if units := NewTreeExtractor(logging.Nop()).Extract(doc); units != nil {
		t.Errorf("Extract() = %v, want nil", units)
	}
}
