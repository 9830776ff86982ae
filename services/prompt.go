package services

import (
	"fmt"
	"strings"

	"rag-retrieval-service/models"
)

// defaultPromptTemplate grounds the model in the retrieved excerpts and
// asks it to refuse rather than invent when the context is silent.
const defaultPromptTemplate = `Answer the question using only the context below. If the context does not contain the answer, say you do not know.

Context:
%s

Question: %s`

// PromptTemplate renders a question and its retrieved context into the
// generation prompt.
type PromptTemplate struct {
	template string
}

// NewPromptTemplate uses template when non-empty, which must contain
// two %s verbs: context first, question second.
func NewPromptTemplate(template string) *PromptTemplate {
	if template == "" {
		template = defaultPromptTemplate
	}
	return &PromptTemplate{template: template}
}

// FormatContext joins matches into numbered excerpts, each labeled with
// the source it came from.
func FormatContext(matches []models.ScoredRecord) string {
	var b strings.Builder
	for i, match := range matches {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] (%s)\n%s", i+1, match.Record.Source, match.Record.Text)
	}
	return b.String()
}

func (p *PromptTemplate) Render(query string, matches []models.ScoredRecord) string {
	return fmt.Sprintf(p.template, FormatContext(matches), query)
}
