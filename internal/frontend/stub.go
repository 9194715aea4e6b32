package frontend

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"cxindex/internal/symbol"
)

// TextScanFrontEnd is a deterministic, cgo-free stand-in for a real
// libclang-backed parser. It recognizes a small textual subset of C/C++
// (#include directives, extern forward declarations, and function
// definitions/calls) well enough to drive IndexerJob's walk in tests and
// in builds that carry no real front-end. It is not a C/C++ parser and
// makes no attempt at preprocessing, templates, or macro expansion.
type TextScanFrontEnd struct {
	// Files maps a source path to its textual content. Real projects
	// would back this with the filesystem; tests construct it directly.
	Files map[string]string
}

// NewTextScanFrontEnd returns a FrontEnd over the given in-memory files.
func NewTextScanFrontEnd(files map[string]string) *TextScanFrontEnd {
	return &TextScanFrontEnd{Files: files}
}

var (
	includeRe    = regexp.MustCompile(`^\s*#\s*include\s*[<"]([^>"]+)[>"]`)
	externDeclRe = regexp.MustCompile(`^\s*extern\s+[\w:<>*&\s]+?\b(\w+)\s*\([^)]*\)\s*;`)
	definitionRe = regexp.MustCompile(`^\s*[\w:<>*&\s]+?\b(\w+)\s*\([^)]*\)\s*\{`)
	callRe       = regexp.MustCompile(`\b(\w+)\s*\(`)
)

// Parse scans sourceFile's content line by line, honoring ctx
// cancellation between lines so abort() checks behave the way a real
// front-end's cancellation callback would.
func (f *TextScanFrontEnd) Parse(ctx context.Context, sourceFile string, compileArgs []string) (*TranslationUnit, error) {
	content, ok := f.Files[sourceFile]
	if !ok {
		return nil, fmt.Errorf("frontend: unknown source file %q", sourceFile)
	}

	tu := &TranslationUnit{SourceFile: sourceFile}
	declaredAt := make(map[string]uint32) // name -> offset of last declaration seen in this file, for resolving calls

	offset := uint32(0)
	for _, line := range strings.Split(content, "\n") {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		lineStart := offset
		offset += uint32(len(line)) + 1

		if m := includeRe.FindStringSubmatch(line); m != nil {
			tu.IncludedFiles = append(tu.IncludedFiles, m[1])
			continue
		}

		if m := externDeclRe.FindStringSubmatch(line); m != nil {
			name := m[1]
			loc := RawLocation{File: sourceFile, Offset: lineStart}
			tu.Cursors = append(tu.Cursors, CursorEvent{
				Location:      loc,
				Kind:          symbol.KindFunction,
				Name:          name,
				USR:           usrFor(name),
				Length:        uint32(len(name)),
				IsDeclaration: true,
			})
			declaredAt[name] = lineStart
			continue
		}

		if m := definitionRe.FindStringSubmatch(line); m != nil {
			name := m[1]
			loc := RawLocation{File: sourceFile, Offset: lineStart}
			tu.Cursors = append(tu.Cursors, CursorEvent{
				Location:      loc,
				Kind:          symbol.KindFunction,
				Name:          name,
				USR:           usrFor(name),
				Length:        uint32(len(name)),
				IsDeclaration: true,
			})
			declaredAt[name] = lineStart
			continue
		}

		for _, m := range callRe.FindAllStringSubmatchIndex(line, -1) {
			name := line[m[2]:m[3]]
			declOffset, known := declaredAt[name]
			if !known || declOffset == lineStart {
				continue
			}
			callOffset := lineStart + uint32(m[0])
			tu.Cursors = append(tu.Cursors, CursorEvent{
				Location: RawLocation{File: sourceFile, Offset: callOffset},
				Kind:     symbol.KindFunction,
				Name:     name,
				USR:      usrFor(name),
				Reference: &ReferenceEvent{
					Target: RawLocation{File: sourceFile, Offset: declOffset},
					Kind:   symbol.NormalReference,
				},
			})
		}
	}

	return tu, nil
}

func usrFor(name string) string {
	return "c:@F@" + name + "#"
}
