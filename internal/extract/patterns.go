package extract

import (
	"fmt"
	"os"
	"regexp"

	"github.com/BurntSushi/toml"
)

// SignaturePattern matches one declaration shape on a single line.
type SignaturePattern struct {
	Kind      Kind
	Regexp    *regexp.Regexp
	NameGroup int // capture group holding the unit name, 0 for anonymous
}

// builtinPatterns holds the per-language signature tables for the lexical
// fallback. The tables only need to catch common declaration shapes; the
// tree extractor handles everything else when a grammar is available.
func builtinPatterns(lang Language) []SignaturePattern {
	switch lang {
	case LangGo:
		return []SignaturePattern{
			{KindMethod, regexp.MustCompile(`^\s*func\s+\([^)]+\)\s+(\w+)\s*\(`), 1},
			{KindFunction, regexp.MustCompile(`^\s*func\s+(\w+)\s*\(`), 1},
			{KindClass, regexp.MustCompile(`^\s*type\s+(\w+)\s+(?:struct|interface)\b`), 1},
		}
	case LangJavaScript, LangTypeScript, LangTSX:
		return []SignaturePattern{
			{KindFunction, regexp.MustCompile(`^\s*(?:export\s+)?(?:default\s+)?(?:async\s+)?function\s*\*?\s*(\w+)\s*\(`), 1},
			{KindFunction, regexp.MustCompile(`^\s*(?:export\s+)?(?:const|let|var)\s+(\w+)\s*=\s*(?:async\s+)?(?:\([^)]*\)|\w+)\s*=>`), 1},
			{KindClass, regexp.MustCompile(`^\s*(?:export\s+)?(?:abstract\s+)?(?:class|interface)\s+(\w+)`), 1},
			// Object-literal / class-body methods: "name(args) {"
			{KindMethod, regexp.MustCompile(`^\s*(?:async\s+)?(\w+)\s*\([^)]*\)\s*\{\s*$`), 1},
		}
	case LangPython:
		return []SignaturePattern{
			{KindFunction, regexp.MustCompile(`^\s*(?:async\s+)?def\s+(\w+)\s*\(`), 1},
			{KindClass, regexp.MustCompile(`^\s*class\s+(\w+)\s*[(:]`), 1},
		}
	case LangRust:
		return []SignaturePattern{
			{KindFunction, regexp.MustCompile(`^\s*(?:pub(?:\([^)]*\))?\s+)?(?:async\s+)?fn\s+(\w+)`), 1},
			{KindClass, regexp.MustCompile(`^\s*(?:pub(?:\([^)]*\))?\s+)?(?:struct|enum|trait)\s+(\w+)`), 1},
		}
	case LangJava:
		return []SignaturePattern{
			{KindMethod, regexp.MustCompile(`^\s*(?:(?:public|private|protected|static|final|synchronized|abstract|native)\s+)*[\w<>\[\],\.\s]+?\s+(\w+)\s*\([^;]*\)\s*(?:throws\s+[\w,\s\.]+)?\{?\s*$`), 1},
			{KindClass, regexp.MustCompile(`^\s*(?:(?:public|private|protected|static|final|abstract)\s+)*(?:class|interface|enum)\s+(\w+)`), 1},
		}
	case LangKotlin:
		return []SignaturePattern{
			{KindFunction, regexp.MustCompile(`^\s*(?:(?:public|private|protected|internal|override|open|suspend|inline)\s+)*fun\s+(?:[\w<>\.]+\.)?(\w+)\s*\(`), 1},
			{KindClass, regexp.MustCompile(`^\s*(?:(?:public|private|protected|internal|open|data|sealed|abstract)\s+)*(?:class|interface|object)\s+(\w+)`), 1},
		}
	default:
		return nil
	}
}

// importLinePattern matches lines belonging to the import section.
func importLinePattern(lang Language) *regexp.Regexp {
	switch lang {
	case LangGo:
		return regexp.MustCompile(`^\s*import\s*[("]|^\s*"[\w\./-]+"\s*$|^\s*\w+\s+"[\w\./-]+"\s*$|^\s*\)\s*$`)
	case LangJavaScript, LangTypeScript, LangTSX:
		return regexp.MustCompile(`^\s*import\s|^\s*export\s+\{[^}]*\}\s+from\s`)
	case LangPython:
		return regexp.MustCompile(`^\s*(?:import\s|from\s+\S+\s+import\s)`)
	case LangRust:
		return regexp.MustCompile(`^\s*(?:pub\s+)?use\s`)
	case LangJava, LangKotlin:
		return regexp.MustCompile(`^\s*import\s`)
	default:
		return nil
	}
}

// PatternsFor exposes the builtin signature table for a language.
func PatternsFor(lang Language) []SignaturePattern {
	return builtinPatterns(lang)
}

// ImportPattern exposes the import-line matcher for a language.
func ImportPattern(lang Language) *regexp.Regexp {
	return importLinePattern(lang)
}

// patternFile is the TOML schema for custom signature patterns.
type patternFile struct {
	Patterns []customPattern `toml:"patterns"`
}

type customPattern struct {
	Language  string `toml:"language"`
	Kind      string `toml:"kind"`
	Regex     string `toml:"regex"`
	NameGroup int    `toml:"nameGroup"`
}

// LoadCustomPatterns reads a patterns.toml file and returns additional
// signature patterns keyed by language. A missing file is not an error;
// a malformed file or regex is.
func LoadCustomPatterns(path string) (map[Language][]SignaturePattern, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var pf patternFile
	if err := toml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("failed to parse pattern file %s: %w", path, err)
	}

	result := make(map[Language][]SignaturePattern)
	for _, cp := range pf.Patterns {
		re, err := regexp.Compile(cp.Regex)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern regex %q: %w", cp.Regex, err)
		}
		kind := Kind(cp.Kind)
		switch kind {
		case KindFunction, KindMethod, KindClass, KindField:
		default:
			kind = KindFunction
		}
		lang := Language(cp.Language)
		result[lang] = append(result[lang], SignaturePattern{
			Kind:      kind,
			Regexp:    re,
			NameGroup: cp.NameGroup,
		})
	}
	return result, nil
}
