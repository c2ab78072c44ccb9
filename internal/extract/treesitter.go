//go:build cgo

package extract

import (
	"context"
	"path/filepath"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/kotlin"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"cwb/internal/document"
	"cwb/internal/logging"
)

// TreeExtractor extracts structural units from a tree-sitter syntax tree.
// Preferred over the lexical fallback whenever a grammar exists for the
// document's language, because tree offsets are immune to string/comment
// confusion.
type TreeExtractor struct {
	parser *sitter.Parser
	logger *logging.Logger
}

// NewTreeExtractor creates a tree-sitter backed extractor.
func NewTreeExtractor(logger *logging.Logger) *TreeExtractor {
	return &TreeExtractor{
		parser: sitter.NewParser(),
		logger: logger,
	}
}

// Available reports whether tree-aided extraction is compiled in.
func Available() bool {
	return true
}

// Supports reports whether a grammar exists for the document's language.
func (e *TreeExtractor) Supports(doc *document.Document) bool {
	lang, ok := LanguageFromExtension(filepath.Ext(doc.Path))
	if !ok {
		return false
	}
	_, err := getLanguage(lang)
	return err == nil
}

// Extract parses the document and emits one unit per function, method,
// class, field, and import block. Parse failures degrade to nil.
func (e *TreeExtractor) Extract(doc *document.Document) []Unit {
	lang, ok := LanguageFromExtension(filepath.Ext(doc.Path))
	if !ok {
		return nil
	}

	tsLang, err := getLanguage(lang)
	if err != nil {
		e.logger.Debug("no grammar for language", map[string]interface{}{
			"language": string(lang),
			"path":     doc.Path,
		})
		return nil
	}

	source := []byte(doc.Text)
	e.parser.SetLanguage(tsLang)
	tree, err := e.parser.ParseCtx(context.Background(), nil, source)
	if err != nil {
		e.logger.Debug("tree-sitter parse failed", map[string]interface{}{
			"path":  doc.Path,
			"error": err.Error(),
		})
		return nil
	}

	var units []Unit
	e.walk(tree.RootNode(), source, lang, "", &units)
	units = mergeImportRuns(units)
	SortUnits(units)
	return units
}

// walk visits every node and emits units for the node kinds the language
// tables declare. container carries the enclosing class name down so
// functions inside classes become methods.
func (e *TreeExtractor) walk(node *sitter.Node, source []byte, lang Language, container string, out *[]Unit) {
	if node == nil {
		return
	}

	nodeType := node.Type()
	childContainer := container

	switch {
	case containsString(importNodeTypes(lang), nodeType):
		*out = append(*out, Unit{
			Kind:      KindImports,
			Signature: nodeRange(node),
			Full:      nodeRange(node),
		})

	case containsString(classNodeTypes(lang), nodeType):
		name := className(node, source, lang)
		if name != "" {
			*out = append(*out, makeUnit(KindClass, name, node))
			childContainer = name
		}

	case containsString(functionNodeTypes(lang), nodeType):
		name := functionName(node, source, lang)
		if name != "" {
			kind := KindFunction
			if container != "" || nodeType == "method_declaration" || nodeType == "method_definition" {
				kind = KindMethod
			}
			*out = append(*out, makeUnit(kind, name, node))
		}

	case containsString(fieldNodeTypes(lang), nodeType):
		*out = append(*out, Unit{
			Kind:      KindField,
			Name:      fieldName(node, source),
			Signature: nodeRange(node),
			Full:      nodeRange(node),
		})
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		e.walk(node.Child(i), source, lang, childContainer, out)
	}
}

// makeUnit builds a unit with signature/body split at the body child.
func makeUnit(kind Kind, name string, node *sitter.Node) Unit {
	full := nodeRange(node)
	unit := Unit{
		Kind:      kind,
		Name:      name,
		Signature: full,
		Full:      full,
	}

	if body := node.ChildByFieldName("body"); body != nil {
		br := nodeRange(body)
		unit.Body = &br
		unit.Signature = Range{Start: full.Start, End: br.Start}
	}
	return unit
}

func nodeRange(node *sitter.Node) Range {
	return Range{Start: int(node.StartByte()), End: int(node.EndByte())}
}

// mergeImportRuns collapses consecutive import statements into one
// import-block unit, matching how editors treat the import section.
func mergeImportRuns(units []Unit) []Unit {
	var merged []Unit
	for _, u := range units {
		if u.Kind == KindImports && len(merged) > 0 {
			last := &merged[len(merged)-1]
			// Adjacent import statements separated only by whitespace
			if last.Kind == KindImports && u.Full.Start-last.Full.End < 3 {
				last.Full.End = u.Full.End
				last.Signature.End = u.Full.End
				continue
			}
		}
		merged = append(merged, u)
	}
	return merged
}

// functionName extracts the function name from a node, following each
// grammar's field layout.
func functionName(node *sitter.Node, source []byte, lang Language) string {
	nameNode := node.ChildByFieldName("name")

	if nameNode == nil {
		switch lang {
		case LangGo:
			for i := 0; i < int(node.ChildCount()); i++ {
				child := node.Child(i)
				if child != nil && (child.Type() == "identifier" || child.Type() == "field_identifier") {
					nameNode = child
					break
				}
			}
		case LangKotlin:
			for i := 0; i < int(node.ChildCount()); i++ {
				child := node.Child(i)
				if child != nil && child.Type() == "simple_identifier" {
					nameNode = child
					break
				}
			}
		}
	}

	if nameNode != nil {
		return string(source[nameNode.StartByte():nameNode.EndByte()])
	}
	return ""
}

// className extracts the class/type name from a node.
func className(node *sitter.Node, source []byte, lang Language) string {
	var nameNode *sitter.Node

	switch lang {
	case LangGo:
		// type_declaration wraps type_spec which holds the name
		for i := 0; i < int(node.ChildCount()); i++ {
			child := node.Child(i)
			if child != nil && child.Type() == "type_spec" {
				nameNode = child.ChildByFieldName("name")
				break
			}
		}
	case LangRust:
		nameNode = node.ChildByFieldName("name")
		if nameNode == nil && node.Type() == "impl_item" {
			for i := 0; i < int(node.ChildCount()); i++ {
				child := node.Child(i)
				if child != nil && child.Type() == "type_identifier" {
					nameNode = child
					break
				}
			}
		}
	default:
		nameNode = node.ChildByFieldName("name")
		if nameNode == nil {
			for i := 0; i < int(node.ChildCount()); i++ {
				child := node.Child(i)
				if child != nil && (child.Type() == "identifier" || child.Type() == "simple_identifier") {
					nameNode = child
					break
				}
			}
		}
	}

	if nameNode != nil {
		return string(source[nameNode.StartByte():nameNode.EndByte()])
	}
	return ""
}

// fieldName extracts the declared name from a field node, first
// identifier-ish child wins.
func fieldName(node *sitter.Node, source []byte) string {
	if nameNode := node.ChildByFieldName("name"); nameNode != nil {
		return string(source[nameNode.StartByte():nameNode.EndByte()])
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "identifier", "field_identifier", "property_identifier", "simple_identifier":
			return string(source[child.StartByte():child.EndByte()])
		}
	}
	return ""
}

// getLanguage returns the tree-sitter grammar for a language identifier.
func getLanguage(lang Language) (*sitter.Language, error) {
	switch lang {
	case LangGo:
		return golang.GetLanguage(), nil
	case LangJavaScript:
		return javascript.GetLanguage(), nil
	case LangTypeScript:
		return typescript.GetLanguage(), nil
	case LangTSX:
		return tsx.GetLanguage(), nil
	case LangPython:
		return python.GetLanguage(), nil
	case LangRust:
		return rust.GetLanguage(), nil
	case LangJava:
		return java.GetLanguage(), nil
	case LangKotlin:
		return kotlin.GetLanguage(), nil
	default:
		return nil, errUnsupportedLanguage(lang)
	}
}

type errUnsupportedLanguage Language

func (e errUnsupportedLanguage) Error() string {
	return "unsupported language: " + string(e)
}

// functionNodeTypes returns node types that represent functions and methods.
func functionNodeTypes(lang Language) []string {
	switch lang {
	case LangGo:
		return []string{"function_declaration", "method_declaration"}
	case LangJavaScript, LangTypeScript, LangTSX:
		return []string{"function_declaration", "method_definition", "generator_function_declaration"}
	case LangPython:
		return []string{"function_definition"}
	case LangRust:
		return []string{"function_item"}
	case LangJava:
		return []string{"method_declaration", "constructor_declaration"}
	case LangKotlin:
		return []string{"function_declaration"}
	default:
		return nil
	}
}

// classNodeTypes returns node types that represent classes/types/interfaces.
func classNodeTypes(lang Language) []string {
	switch lang {
	case LangGo:
		return []string{"type_declaration"}
	case LangJavaScript, LangTypeScript, LangTSX:
		return []string{"class_declaration", "interface_declaration"}
	case LangPython:
		return []string{"class_definition"}
	case LangRust:
		return []string{"struct_item", "enum_item", "trait_item", "impl_item"}
	case LangJava:
		return []string{"class_declaration", "interface_declaration", "enum_declaration"}
	case LangKotlin:
		return []string{"class_declaration", "interface_declaration", "object_declaration"}
	default:
		return nil
	}
}

// fieldNodeTypes returns node types for field/property declarations.
func fieldNodeTypes(lang Language) []string {
	switch lang {
	case LangGo:
		return []string{"field_declaration"}
	case LangJavaScript, LangTypeScript, LangTSX:
		return []string{"public_field_definition"}
	case LangRust:
		return []string{"field_declaration"}
	case LangJava:
		return []string{"field_declaration"}
	case LangKotlin:
		return []string{"property_declaration"}
	default:
		return nil
	}
}

// importNodeTypes returns node types for import statements.
func importNodeTypes(lang Language) []string {
	switch lang {
	case LangGo:
		return []string{"import_declaration"}
	case LangJavaScript, LangTypeScript, LangTSX:
		return []string{"import_statement"}
	case LangPython:
		return []string{"import_statement", "import_from_statement"}
	case LangRust:
		return []string{"use_declaration"}
	case LangJava:
		return []string{"import_declaration"}
	case LangKotlin:
		return []string{"import_header"}
	default:
		return nil
	}
}

func containsString(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
