package main

import (
	"go/ast"
	"go/parser"
	"go/token"
	"regexp"
	"strconv"
	"strings"
)

var (
	dmlPattern        = regexp.MustCompile(`(?i)\b(select|insert|update|delete|with)\b`)
	ddlPattern        = regexp.MustCompile(`(?i)^\s*(create|alter|drop)\b`)
	uuidMarkerPattern = regexp.MustCompile(`^--sql ([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})$`)
)

type violation struct {
	file    string
	name    string
	line    int
	message string
}

// linter checks that every SQL string constant starts with a --sql <uuid>
// marker and that no marker is used twice across the linted files.
type linter struct {
	seen       map[string]string
	violations []violation
}

func newLinter() *linter {
	return &linter{seen: map[string]string{}}
}

func (l *linter) lintSource(path string, src any) error {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, src, parser.ParseComments)
	if err != nil {
		return err
	}
	ast.Inspect(file, func(n ast.Node) bool {
		vs, ok := n.(*ast.ValueSpec)
		if !ok {
			return true
		}
		for _, value := range vs.Values {
			bl, ok := value.(*ast.BasicLit)
			if !ok || bl.Kind != token.STRING {
				continue
			}
			raw, err := unquote(bl.Value)
			if err != nil || !dmlPattern.MatchString(raw) || ddlPattern.MatchString(raw) {
				continue
			}
			pos := fset.Position(bl.Pos())
			name := joinNames(vs.Names)
			m := uuidMarkerPattern.FindStringSubmatch(firstLine(raw))
			if m == nil {
				l.report(path, name, pos.Line, "missing or invalid --sql <uuid> marker")
				continue
			}
			where := path + ":" + strconv.Itoa(pos.Line)
			if prev, dup := l.seen[m[1]]; dup {
				l.report(path, name, pos.Line, "marker "+m[1]+" already used at "+prev)
				continue
			}
			l.seen[m[1]] = where
		}
		return true
	})
	return nil
}

func (l *linter) report(file, name string, line int, msg string) {
	l.violations = append(l.violations, violation{file: file, name: name, line: line, message: msg})
}

func firstLine(s string) string {
	s = strings.TrimLeft(s, "\n\r \t")
	if idx := strings.IndexAny(s, "\n\r"); idx >= 0 {
		return strings.TrimSpace(s[:idx])
	}
	return strings.TrimSpace(s)
}

func unquote(v string) (string, error) {
	if len(v) == 0 {
		return v, nil
	}
	if v[0] == '`' {
		return v[1 : len(v)-1], nil
	}
	return strconv.Unquote(v)
}

func joinNames(idents []*ast.Ident) string {
	parts := make([]string, 0, len(idents))
	for _, ident := range idents {
		if ident == nil {
			continue
		}
		parts = append(parts, ident.Name)
	}
	return strings.Join(parts, ",")
}
