package reports

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	domain "github.com/ataiva-software/vertex-sub003/internal/domain/report"
	"github.com/ataiva-software/vertex-sub003/internal/errors"
)

var reportPlaceholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.-]+)\s*\}\}`)

// Generator renders report templates and writes artifacts under the
// configured output directory.
type Generator struct {
	outputDir string
}

// NewGenerator creates a generator rooted at outputDir.
func NewGenerator(outputDir string) *Generator {
	if outputDir == "" {
		outputDir = "artifacts"
	}
	return &Generator{outputDir: outputDir}
}

// Artifact describes one generated output file.
type Artifact struct {
	Path  string
	Bytes int64
}

// Generate binds parameters into the template, renders the requested format
// and writes the artifact for one execution.
func (g *Generator) Generate(tmpl domain.Template, rep domain.Report, executionID string, at time.Time) (Artifact, error) {
	if !tmpl.Supports(rep.OutputFormat) {
		return Artifact{}, errors.InvalidInput("output_format",
			fmt.Sprintf("template %q does not support format %q", tmpl.Name, rep.OutputFormat))
	}

	for _, required := range tmpl.RequiredParams {
		if strings.TrimSpace(rep.Params[required]) == "" {
			return Artifact{}, errors.TemplateRender("missing required parameter: " + required)
		}
	}

	content := reportPlaceholderRe.ReplaceAllStringFunc(tmpl.Content, func(match string) string {
		name := reportPlaceholderRe.FindStringSubmatch(match)[1]
		return rep.Params[name]
	})

	rendered, ext, err := renderFormat(content, rep, at)
	if err != nil {
		return Artifact{}, err
	}

	dir := filepath.Join(g.outputDir, rep.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Artifact{}, errors.Internal("create artifact directory", err)
	}

	path := filepath.Join(dir, executionID+"."+ext)
	if err := os.WriteFile(path, rendered, 0o644); err != nil {
		return Artifact{}, errors.Internal("write artifact", err)
	}

	return Artifact{Path: path, Bytes: int64(len(rendered))}, nil
}

func renderFormat(content string, rep domain.Report, at time.Time) ([]byte, string, error) {
	switch rep.OutputFormat {
	case domain.FormatJSON, "":
		doc := map[string]any{
			"report":       rep.Name,
			"generated_at": at.UTC().Format(time.RFC3339),
			"parameters":   rep.Params,
			"content":      content,
		}
		raw, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, "", errors.Internal("encode report", err)
		}
		return raw, "json", nil

	case domain.FormatCSV:
		var sb strings.Builder
		w := csv.NewWriter(&sb)
		_ = w.Write([]string{"report", "generated_at", "parameter", "value"})
		for _, key := range sortedParamKeys(rep.Params) {
			_ = w.Write([]string{rep.Name, at.UTC().Format(time.RFC3339), key, rep.Params[key]})
		}
		_ = w.Write([]string{rep.Name, at.UTC().Format(time.RFC3339), "content", content})
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, "", errors.Internal("encode report", err)
		}
		return []byte(sb.String()), "csv", nil

	case domain.FormatHTML:
		var sb strings.Builder
		sb.WriteString("<!DOCTYPE html>\n<html><head><title>")
		sb.WriteString(html.EscapeString(rep.Name))
		sb.WriteString("</title></head><body>\n<h1>")
		sb.WriteString(html.EscapeString(rep.Name))
		sb.WriteString("</h1>\n<p>Generated at ")
		sb.WriteString(at.UTC().Format(time.RFC3339))
		sb.WriteString("</p>\n<pre>")
		sb.WriteString(html.EscapeString(content))
		sb.WriteString("</pre>\n</body></html>\n")
		return []byte(sb.String()), "html", nil

	case domain.FormatMarkdown:
		var sb strings.Builder
		sb.WriteString("# " + rep.Name + "\n\n")
		sb.WriteString("Generated at " + at.UTC().Format(time.RFC3339) + "\n\n")
		sb.WriteString(content + "\n")
		return []byte(sb.String()), "md", nil

	default:
		return nil, "", errors.InvalidInput("output_format", "unknown format: "+string(rep.OutputFormat))
	}
}

func sortedParamKeys(params map[string]string) []string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
