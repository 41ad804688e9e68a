// Package importer loads persona documents into personality memory.
//
// A persona document is markdown with YAML frontmatter naming the target
// entity (`username`), an optional `category`, and an optional `importance`.
// The body is chunked and embedded by the personality service.
package importer

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/chorus-chat/chorus/pkg/types"
)

// PersonaFile is a parsed persona document.
type PersonaFile struct {
	// Path is the filesystem path the document was read from.
	Path string

	// Username names the entity the persona belongs to.
	Username string

	// Category labels the persona chunks (frontmatter `category`, falling
	// back to the sanitized file stem).
	Category string

	// Importance is the optional frontmatter importance score.
	Importance *float64

	// Body is the markdown body with frontmatter stripped.
	Body string

	// Meta holds the remaining frontmatter keys, forwarded as memory
	// metadata.
	Meta map[string]interface{}
}

// PersonaUploader stores persona text as personality memories.
type PersonaUploader interface {
	UploadPersonality(ctx context.Context, entityID, text, category string, meta map[string]interface{}) ([]*types.Memory, error)
}

// EntityResolver maps persona usernames to entities.
type EntityResolver interface {
	GetEntityByUsername(ctx context.Context, username string) (*types.AIEntity, error)
}

// Importer routes persona documents to the personality service.
type Importer struct {
	entities EntityResolver
	personas PersonaUploader
}

// NewImporter creates a persona importer.
func NewImporter(entities EntityResolver, personas PersonaUploader) *Importer {
	return &Importer{entities: entities, personas: personas}
}

// ImportFile imports one persona document and returns the number of
// personality chunks created.
func (i *Importer) ImportFile(ctx context.Context, path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read persona file: %w", err)
	}

	parsed, err := ParsePersonaFile(content, path)
	if err != nil {
		return 0, err
	}

	entity, err := i.entities.GetEntityByUsername(ctx, parsed.Username)
	if err != nil {
		return 0, fmt.Errorf("unknown persona entity %q in %s: %w", parsed.Username, filepath.Base(path), err)
	}

	created, err := i.personas.UploadPersonality(ctx, entity.ID, parsed.Body, parsed.Category, parsed.uploadMeta())
	if err != nil {
		return 0, fmt.Errorf("failed to upload persona %s: %w", filepath.Base(path), err)
	}

	log.Printf("importer: imported %s for %s (%d chunk(s), category %q)", filepath.Base(path), parsed.Username, len(created), parsed.Category)
	return len(created), nil
}

// ImportDir imports every .md file under dir, skipping over per-file
// failures. Returns the number of files imported and chunks created.
func (i *Importer) ImportDir(ctx context.Context, dir string) (int, int, error) {
	files := 0
	chunks := 0

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".md") {
			return nil
		}

		n, err := i.ImportFile(ctx, path)
		if err != nil {
			log.Printf("importer: skipping %s: %v", path, err)
			return nil
		}
		files++
		chunks += n
		return nil
	})
	if err != nil {
		return files, chunks, fmt.Errorf("failed to walk persona dir %s: %w", dir, err)
	}
	return files, chunks, nil
}

// ParsePersonaFile parses a persona document's frontmatter and body.
func ParsePersonaFile(content []byte, path string) (*PersonaFile, error) {
	fm, body, err := splitFrontmatter(string(content))
	if err != nil {
		return nil, fmt.Errorf("frontmatter parse error in %s: %w", filepath.Base(path), err)
	}

	username := extractString(fm, "username", "")
	if username == "" {
		return nil, fmt.Errorf("persona file %s has no username", filepath.Base(path))
	}

	category := extractString(fm, "category", "")
	if category == "" {
		category = sanitizeSegment(fileStem(path))
	}
	if category == "" {
		category = "persona"
	}

	importance, err := extractImportance(fm)
	if err != nil {
		return nil, fmt.Errorf("persona file %s: %w", filepath.Base(path), err)
	}

	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("persona file %s has no body", filepath.Base(path))
	}

	meta := make(map[string]interface{})
	for k, v := range fm {
		switch k {
		case "username", "category", "importance":
			continue
		}
		meta[k] = v
	}

	return &PersonaFile{
		Path:       path,
		Username:   username,
		Category:   category,
		Importance: importance,
		Body:       body,
		Meta:       meta,
	}, nil
}

// uploadMeta builds the metadata map for UploadPersonality, carrying the
// importance under the key the personality service consumes it from.
func (p *PersonaFile) uploadMeta() map[string]interface{} {
	meta := make(map[string]interface{}, len(p.Meta)+2)
	for k, v := range p.Meta {
		meta[k] = v
	}
	meta["source_file"] = filepath.Base(p.Path)
	if p.Importance != nil {
		meta["importance"] = *p.Importance
	}
	return meta
}

// splitFrontmatter separates YAML frontmatter (between --- delimiters) from
// the markdown body. Returns an empty map and the full text when no
// frontmatter is found.
func splitFrontmatter(text string) (map[string]interface{}, string, error) {
	scanner := bufio.NewScanner(strings.NewReader(text))

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return map[string]interface{}{}, text, nil
	}

	closeIdx := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			closeIdx = i
			break
		}
	}
	if closeIdx == -1 {
		// No closing delimiter, treat the entire file as body.
		return map[string]interface{}{}, text, nil
	}

	fmText := strings.Join(lines[1:closeIdx], "\n")
	fm := make(map[string]interface{})
	if err := yaml.Unmarshal([]byte(fmText), &fm); err != nil {
		return map[string]interface{}{}, text, fmt.Errorf("invalid YAML: %w", err)
	}

	body := strings.Join(lines[closeIdx+1:], "\n")
	return fm, body, nil
}

// extractString pulls a trimmed string value from frontmatter by key.
func extractString(fm map[string]interface{}, key, defaultVal string) string {
	v, ok := fm[key]
	if !ok {
		return defaultVal
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s)
	}
	return defaultVal
}

// extractImportance reads the optional importance number. YAML decodes
// numbers as int or float64 depending on the literal.
func extractImportance(fm map[string]interface{}) (*float64, error) {
	raw, ok := fm["importance"]
	if !ok {
		return nil, nil
	}
	switch v := raw.(type) {
	case float64:
		return &v, nil
	case int:
		f := float64(v)
		return &f, nil
	default:
		return nil, fmt.Errorf("importance must be a number, got %T", raw)
	}
}

// fileStem returns the file name without directory or extension.
func fileStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// sanitizeSegment lowercases a name into a category-safe slug.
func sanitizeSegment(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' {
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-")
}
