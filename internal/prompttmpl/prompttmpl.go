// Package prompttmpl renders the prompt handed to an agent from a
// task's attributes. A project can override the built-in template by
// dropping prompt.tmpl into its state directory.
package prompttmpl

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/fuelsh/fuel/pkg/models"
)

//go:embed templates/task.tmpl
var defaultTemplate string

// OverrideName is the template filename looked up in the state
// directory.
const OverrideName = "prompt.tmpl"

// Renderer holds a parsed prompt template.
type Renderer struct {
	tmpl *template.Template
}

// promptData is what the template sees.
type promptData struct {
	ID               string
	Title            string
	Description      string
	Type             string
	Priority         int
	Size             string
	Complexity       string
	Labels           string
	Epic             string
	Reason           string
	LastReviewIssues string
}

// New loads the template: <dir>/prompt.tmpl when present, the built-in
// otherwise.
func New(dir string) (*Renderer, error) {
	text := defaultTemplate
	if dir != "" {
		if data, err := os.ReadFile(filepath.Join(dir, OverrideName)); err == nil {
			text = string(data)
		}
	}
	tmpl, err := template.New("prompt").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse prompt template: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Render produces the prompt for one task.
func (r *Renderer) Render(t *models.Task) (string, error) {
	data := promptData{
		ID:               t.ID,
		Title:            t.Title,
		Description:      t.Description,
		Type:             string(t.Type),
		Priority:         t.Priority,
		Size:             string(t.Size),
		Complexity:       string(t.Complexity),
		Labels:           strings.Join(t.Labels, ", "),
		Epic:             t.Epic,
		Reason:           t.Reason,
		LastReviewIssues: strings.Join(t.LastReviewIssues, "\n"),
	}
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt for %s: %w", t.ID, err)
	}
	return strings.TrimRight(buf.String(), "\n") + "\n", nil
}
