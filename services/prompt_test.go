package services

import (
	"testing"

	"rag-retrieval-service/models"

	"github.com/stretchr/testify/assert"
)

func TestFormatContext(t *testing.T) {
	matches := []models.ScoredRecord{
		{Record: models.VectorRecord{Source: "policy.txt", Text: "20 days annual leave."}},
		{Record: models.VectorRecord{Source: "handbook.txt", Text: "Remote work allowed."}},
	}

	formatted := FormatContext(matches)
	assert.Contains(t, formatted, "[1] (policy.txt)\n20 days annual leave.")
	assert.Contains(t, formatted, "[2] (handbook.txt)\nRemote work allowed.")
}

func TestPromptTemplateRender(t *testing.T) {
	p := NewPromptTemplate("")
	prompt := p.Render("How much leave?", []models.ScoredRecord{
		{Record: models.VectorRecord{Source: "policy.txt", Text: "20 days annual leave."}},
	})

	assert.Contains(t, prompt, "20 days annual leave.")
	assert.Contains(t, prompt, "Question: How much leave?")
	assert.Contains(t, prompt, "say you do not know")
}

func TestPromptTemplateCustom(t *testing.T) {
	p := NewPromptTemplate("CTX:%s Q:%s")
	prompt := p.Render("why", []models.ScoredRecord{
		{Record: models.VectorRecord{Source: "a.txt", Text: "because"}},
	})
	assert.Equal(t, "CTX:[1] (a.txt)\nbecause Q:why", prompt)
}
