package introspect

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	. "github.com/hwestman/personabot/internal/logging"
)

//go:embed docs/*.md
var docsFS embed.FS

// Doc is one embedded component explainer. The body is what gets handed
// to the persona as source material.
type Doc struct {
	ID    string `yaml:"id"`
	Title string `yaml:"title"`
	Body  string `yaml:"-"`
}

var docs = mustLoadDocs()

// Components returns the doc IDs, sorted, for command choices and help.
func Components() []string {
	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Component returns the doc for an ID. ok is false for unknown IDs; the
// caller owns the user-facing wording in that case.
func Component(id string) (Doc, bool) {
	d, ok := docs[strings.ToLower(strings.TrimSpace(id))]
	return d, ok
}

func mustLoadDocs() map[string]Doc {
	out := make(map[string]Doc)
	entries, err := fs.ReadDir(docsFS, "docs")
	if err != nil {
		panic(fmt.Sprintf("introspect: embedded docs unreadable: %v", err))
	}
	for _, e := range entries {
		raw, err := docsFS.ReadFile("docs/" + e.Name())
		if err != nil {
			panic(fmt.Sprintf("introspect: embedded doc %s unreadable: %v", e.Name(), err))
		}
		doc, err := parseDoc(raw)
		if err != nil {
			panic(fmt.Sprintf("introspect: embedded doc %s invalid: %v", e.Name(), err))
		}
		if _, dup := out[doc.ID]; dup {
			panic(fmt.Sprintf("introspect: duplicate doc id %q", doc.ID))
		}
		out[doc.ID] = doc
	}
	L_trace("introspect: embedded docs loaded", "count", len(out))
	return out
}

// parseDoc splits YAML frontmatter (between --- delimiters) from the
// markdown body and unmarshals it.
func parseDoc(raw []byte) (Doc, error) {
	if !bytes.HasPrefix(raw, []byte("---")) {
		return Doc{}, fmt.Errorf("missing frontmatter delimiter")
	}
	rest := raw[3:]
	idx := bytes.Index(rest, []byte("\n---"))
	if idx < 0 {
		return Doc{}, fmt.Errorf("unterminated frontmatter")
	}
	var doc Doc
	if err := yaml.Unmarshal(rest[:idx], &doc); err != nil {
		return Doc{}, fmt.Errorf("bad frontmatter: %w", err)
	}
	if doc.ID == "" || doc.Title == "" {
		return Doc{}, fmt.Errorf("frontmatter needs id and title")
	}
	doc.Body = strings.TrimSpace(string(rest[idx+4:]))
	if doc.Body == "" {
		return Doc{}, fmt.Errorf("empty body")
	}
	return doc, nil
}
