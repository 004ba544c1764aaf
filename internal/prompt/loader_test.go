package prompt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qgenie/ai-server/internal/llm"
)

func writeTemplate(t *testing.T, dir, group, name, content string) {
	t.Helper()
	path := filepath.Join(dir, "v1", group)
	require.NoError(t, os.MkdirAll(path, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(path, name+".yaml"), []byte(content), 0o644))
}

func TestLoadAndRender(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "sql_agent", "sql_generator", `
name: sql_generator
description: generates SQL from a question
system: |
  You write {{.Dialect}} queries.
user: |
  Question: {{.Question}}
`)

	lib, err := Load(dir, "v1")
	require.NoError(t, err)
	assert.Equal(t, "v1", lib.Version())

	tmpl, err := lib.Get("sql_agent/sql_generator")
	require.NoError(t, err)
	assert.Equal(t, "generates SQL from a question", tmpl.Description)

	messages, err := tmpl.Render(map[string]any{
		"Dialect":  "postgres",
		"Question": "how many orders?",
	})
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, llm.RoleSystem, messages[0].Role)
	assert.Equal(t, "You write postgres queries.", messages[0].Content)
	assert.Equal(t, llm.RoleUser, messages[1].Role)
	assert.Equal(t, "Question: how many orders?", messages[1].Content)
}

func TestRenderWithoutSystem(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "annotator", "column", `
name: column
user: "Describe column {{.Column}}"
`)

	lib, err := Load(dir, "v1")
	require.NoError(t, err)

	tmpl, err := lib.Get("annotator/column")
	require.NoError(t, err)

	messages, err := tmpl.Render(map[string]any{"Column": "order_id"})
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, llm.RoleUser, messages[0].Role)
}

func TestRenderMissingKeyFails(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "sql_agent", "intent_classifier", `
name: intent_classifier
user: "Classify: {{.Question}}"
`)

	lib, err := Load(dir, "v1")
	require.NoError(t, err)

	tmpl, err := lib.Get("sql_agent/intent_classifier")
	require.NoError(t, err)

	_, err = tmpl.Render(map[string]any{"Wrong": "x"})
	assert.Error(t, err)
}

func TestLoadUnknownVersion(t *testing.T) {
	_, err := Load(t.TempDir(), "v9")
	assert.Error(t, err)
}

func TestLoadRejectsTemplateWithoutUser(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "sql_agent", "broken", `
name: broken
system: "only system"
`)

	_, err := Load(dir, "v1")
	assert.Error(t, err)
}

func TestGetUnknownTemplate(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "sql_agent", "db_classifier", `
name: db_classifier
user: "{{.Question}}"
`)

	lib, err := Load(dir, "v1")
	require.NoError(t, err)

	_, err = lib.Get("sql_agent/nope")
	assert.Error(t, err)
}
