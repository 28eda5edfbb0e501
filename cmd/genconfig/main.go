// Package main implements the genconfig tool that writes config.default.toml
// from config.ExampleConfig(), annotated with config.ConfigDocs.
//
// It is invoked by go generate via the directive in internal/config/config.go.
package main

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"tools.zach/dev/steamthing/internal/config"
)

// outPath is relative to internal/config, where go generate runs. The root
// package embeds the file from there.
const outPath = "../../config.default.toml"

func main() {
	out, err := render(config.ExampleConfig(), config.ConfigDocs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "render: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(outPath, []byte(out), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", outPath, err)
		os.Exit(1)
	}
	fmt.Println("wrote config.default.toml")
}

// ///////////////////////////////////////////////
// Rendering
// ///////////////////////////////////////////////

// render encodes cfg as TOML and interleaves the documentation from docs:
// a banner per section, comment lines above each documented key, and
// commented alternatives below it. Documented keys the encoder omitted
// (omitempty at zero value) are appended to their section as comments.
func render(cfg *config.Config, docs map[string]config.FieldDoc) (string, error) {
	var raw bytes.Buffer
	if err := toml.NewEncoder(&raw).Encode(cfg); err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	r := renderer{docs: docs, emitted: map[string]bool{}}
	r.lines = append(r.lines,
		"# ///////////////////////////////////////////////",
		"# SteamThing Configuration",
		"# ///////////////////////////////////////////////",
		"",
	)

	for _, line := range strings.Split(raw.String(), "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			continue
		case strings.HasPrefix(trimmed, "[") && !strings.HasPrefix(trimmed, "[["):
			r.flushOmitted()
			r.openSection(strings.Trim(trimmed, "[] "), trimmed)
		case strings.HasPrefix(trimmed, "#") || !strings.Contains(trimmed, "="):
			r.lines = append(r.lines, trimmed)
		default:
			r.key(trimmed)
		}
	}
	r.flushOmitted()

	return strings.TrimRight(strings.Join(r.lines, "\n"), "\n") + "\n", nil
}

// renderer accumulates output lines while tracking the current section.
type renderer struct {
	docs    map[string]config.FieldDoc
	lines   []string
	section []string
	emitted map[string]bool
}

func (r *renderer) openSection(name, header string) {
	r.section = parseSectionPath(name)
	r.lines = append(r.lines, "", fmt.Sprintf("# ///// %s /////", sectionName(name)), "")
	if doc, ok := r.docs[name]; ok {
		r.comment(doc.Comment)
	}
	r.lines = append(r.lines, header)
}

func (r *renderer) key(line string) {
	k := strings.TrimSpace(strings.SplitN(line, "=", 2)[0])
	path := r.path(k)
	r.emitted[path] = true

	doc, ok := r.docs[path]
	if !ok {
		r.lines = append(r.lines, line)
		return
	}
	r.comment(doc.Comment)
	r.lines = append(r.lines, line)
	for _, alt := range doc.Alternatives {
		r.lines = append(r.lines, "# "+strings.TrimPrefix(alt, "# "))
	}
}

// flushOmitted appends documented keys of the current section that the
// encoder left out, sorted for stable output.
func (r *renderer) flushOmitted() {
	if len(r.section) == 0 {
		return
	}
	prefix := strings.Join(r.section, ".") + "."
	var omitted []string
	for path := range r.docs {
		rest, ok := strings.CutPrefix(path, prefix)
		if !ok || strings.Contains(rest, ".") || r.emitted[path] {
			continue
		}
		omitted = append(omitted, path)
	}
	sort.Strings(omitted)

	for _, path := range omitted {
		doc := r.docs[path]
		r.lines = append(r.lines, "")
		r.comment(doc.Comment)
		for _, alt := range doc.Alternatives {
			r.lines = append(r.lines, "# "+strings.TrimPrefix(alt, "# "))
		}
		r.emitted[path] = true
	}
}

func (r *renderer) comment(text string) {
	if text == "" {
		return
	}
	for _, cl := range strings.Split(text, "\n") {
		r.lines = append(r.lines, "# "+cl)
	}
}

func (r *renderer) path(key string) string {
	if len(r.section) == 0 {
		return key
	}
	return strings.Join(r.section, ".") + "." + key
}

// parseSectionPath splits a dotted TOML section header (e.g. "steam.cdn")
// into its segments.
func parseSectionPath(section string) []string {
	return strings.Split(section, ".")
}

// sectionName returns the last dotted segment of a section with its first
// letter capitalized: "presence" yields "Presence".
func sectionName(section string) string {
	parts := strings.Split(section, ".")
	last := parts[len(parts)-1]
	if last == "" {
		return ""
	}
	return strings.ToUpper(last[:1]) + last[1:]
}
