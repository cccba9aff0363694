// Package docs loads local knowledge files, splits them into chunks, and
// indexes them into the vector store.
package docs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
	"gopkg.in/yaml.v3"
)

// Document is the extracted text of one file.
type Document struct {
	// Path is relative to the docs root, slash-separated.
	Path   string
	Title  string
	Format string
	Text   string
}

var formats = map[string]string{
	".json":     "json",
	".yaml":     "yaml",
	".yml":      "yaml",
	".md":       "markdown",
	".markdown": "markdown",
	".txt":      "text",
	".html":     "html",
	".htm":      "html",
	".pdf":      "pdf",
}

// Format returns the document format for path, or "" when unsupported.
func Format(path string) string {
	return formats[strings.ToLower(filepath.Ext(path))]
}

// ListFiles returns the supported files under root as sorted relative
// paths. Hidden files and directories are skipped.
func ListFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || Format(path) == "" {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", root, err)
	}
	slices.Sort(files)
	return files, nil
}

// LoadFile reads root/rel and extracts its text.
func LoadFile(root, rel string) (Document, error) {
	path := filepath.Join(root, filepath.FromSlash(rel))
	doc := Document{Path: rel, Format: Format(rel), Title: strings.TrimSuffix(filepath.Base(rel), filepath.Ext(rel))}

	var err error
	switch doc.Format {
	case "pdf":
		doc.Text, err = pdfText(path)
	case "":
		return Document{}, fmt.Errorf("unsupported file type %q", filepath.Ext(rel))
	default:
		var data []byte
		data, err = os.ReadFile(path)
		if err == nil {
			err = doc.decode(data)
		}
	}
	if err != nil {
		return Document{}, fmt.Errorf("loading %s: %w", rel, err)
	}
	doc.Text = strings.TrimSpace(doc.Text)
	return doc, nil
}

func (d *Document) decode(data []byte) error {
	switch d.Format {
	case "json":
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		d.Text = flatten(v)
	case "yaml":
		var v any
		if err := yaml.Unmarshal(data, &v); err != nil {
			return err
		}
		d.Text = flatten(v)
	case "markdown":
		title, body := parseMarkdown(string(data))
		if title != "" {
			d.Title = title
		}
		d.Text = body
	case "html":
		title, text, err := htmlText(bytes.NewReader(data))
		if err != nil {
			return err
		}
		if title != "" {
			d.Title = title
		}
		d.Text = text
	default:
		d.Text = string(data)
	}
	return nil
}

// flatten renders structured data as "key: value" lines. Elements of a
// top-level array become separate paragraphs so each record chunks apart.
func flatten(v any) string {
	if items, ok := v.([]any); ok {
		parts := make([]string, 0, len(items))
		for _, it := range items {
			if s := strings.TrimSpace(flatten(it)); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "\n\n")
	}
	var lines []string
	flattenInto(&lines, "", v)
	return strings.Join(lines, "\n")
}

func flattenInto(lines *[]string, prefix string, v any) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			flattenInto(lines, joinKey(prefix, k), t[k])
		}
	case []any:
		for i, it := range t {
			flattenInto(lines, fmt.Sprintf("%s[%d]", prefix, i), it)
		}
	case nil:
	default:
		s := strings.TrimSpace(fmt.Sprint(t))
		if s == "" {
			return
		}
		if prefix == "" {
			*lines = append(*lines, s)
			return
		}
		*lines = append(*lines, prefix+": "+s)
	}
}

func joinKey(prefix, k string) string {
	if prefix == "" {
		return k
	}
	return prefix + "." + k
}

var h1Regex = regexp.MustCompile(`(?m)^#\s+(.+)$`)

// parseMarkdown strips YAML frontmatter and returns the title (frontmatter
// title, else the first h1) with the remaining body.
func parseMarkdown(content string) (string, string) {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	body := content
	var fm map[string]any
	if strings.HasPrefix(content, "---\n") {
		if end := strings.Index(content[4:], "\n---"); end >= 0 {
			// Broken frontmatter is ignored.
			_ = yaml.Unmarshal([]byte(content[4:4+end]), &fm)
			body = strings.TrimPrefix(content[4+end+4:], "\n")
		}
	}
	if title, ok := fm["title"].(string); ok && title != "" {
		return title, body
	}
	if m := h1Regex.FindStringSubmatch(body); m != nil {
		return strings.TrimSpace(m[1]), body
	}
	return "", body
}

// htmlText returns the <title> and the visible text of an HTML document.
// Block elements end a paragraph.
func htmlText(r io.Reader) (string, string, error) {
	z := html.NewTokenizer(r)
	var (
		title   strings.Builder
		text    strings.Builder
		skip    int
		inTitle bool
	)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return "", "", err
			}
			return strings.TrimSpace(title.String()), collapseParagraphs(text.String()), nil
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style", "noscript", "template":
				skip++
			case "title":
				inTitle = true
			case "br":
				text.WriteString("\n")
			}
			if isBlock(string(name)) {
				text.WriteString("\n\n")
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style", "noscript", "template":
				if skip > 0 {
					skip--
				}
			case "title":
				inTitle = false
			}
			if isBlock(string(name)) {
				text.WriteString("\n\n")
			}
		case html.TextToken:
			if skip > 0 {
				continue
			}
			if inTitle {
				title.Write(z.Text())
				continue
			}
			text.Write(z.Text())
		}
	}
}

func isBlock(tag string) bool {
	switch tag {
	case "p", "div", "section", "article", "li", "ul", "ol", "table", "tr",
		"h1", "h2", "h3", "h4", "h5", "h6", "header", "footer", "blockquote", "pre":
		return true
	}
	return false
}

// collapseParagraphs normalizes whitespace inside paragraphs and keeps one
// blank line between them.
func collapseParagraphs(s string) string {
	var out []string
	for _, p := range splitParagraphs(s) {
		out = append(out, strings.Join(strings.Fields(p), " "))
	}
	return strings.Join(out, "\n\n")
}

func pdfText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", err
	}
	return buf.String(), nil
}
