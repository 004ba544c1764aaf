package agent

import (
	"fmt"
	"strings"

	"github.com/qgenie/ai-server/internal/backend"
	"github.com/qgenie/ai-server/internal/shared/types"
)

// maxResultRows caps how many rows are handed to the synthesizer.
const maxResultRows = 50

func formatHistory(history []types.ChatMessage) string {
	if len(history) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, m := range history {
		role := "user"
		if m.Role == "a" {
			role = "assistant"
		}
		fmt.Fprintf(&sb, "%s: %s\n", role, m.Content)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// formatDatabases lists the catalog for the classifier prompt. The
// annotator's database description, when present, says more about the
// content than the connection profile does.
func formatDatabases(dbs []backend.DatabaseInfo) string {
	var sb strings.Builder
	for _, db := range dbs {
		desc := db.Description
		if db.Annotations != nil && db.Annotations.Description != "" {
			desc = db.Annotations.Description
		}
		fmt.Fprintf(&sb, "- %s: %s\n", db.Name, desc)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// formatSchema renders a schema as compact text, with the annotator's
// descriptions attached to every element it covered.
func formatSchema(schema *backend.Schema, ann *types.AnnotatedDatabase) string {
	tableDescs := map[string]string{}
	columnDescs := map[string]string{}
	relDescs := map[string]string{}
	if ann != nil {
		for _, t := range ann.Tables {
			tableDescs[t.TableName] = t.Description
			for _, c := range t.Columns {
				columnDescs[t.TableName+"."+c.ColumnName] = c.Description
			}
		}
		for _, r := range ann.Relationships {
			relDescs[r.FromTable+"->"+r.ToTable] = r.Description
		}
	}

	var sb strings.Builder
	if ann != nil && ann.Description != "" {
		fmt.Fprintf(&sb, "DATABASE %s: %s\n", schema.DatabaseName, ann.Description)
	}
	for _, table := range schema.Tables {
		sb.WriteString("TABLE " + table.TableName)
		if desc := tableDescs[table.TableName]; desc != "" {
			sb.WriteString(" -- " + desc)
		}
		sb.WriteString(" (\n")
		for _, col := range table.Columns {
			fmt.Fprintf(&sb, "  %s %s", col.ColumnName, col.DataType)
			if desc := columnDescs[table.TableName+"."+col.ColumnName]; desc != "" {
				sb.WriteString(" -- " + desc)
			}
			sb.WriteString("\n")
		}
		sb.WriteString(")\n")
	}
	for _, rel := range schema.Relationships {
		fmt.Fprintf(&sb, "FK %s(%s) -> %s(%s)",
			rel.FromTable, strings.Join(rel.FromColumns, ", "),
			rel.ToTable, strings.Join(rel.ToColumns, ", "))
		if desc := relDescs[rel.FromTable+"->"+rel.ToTable]; desc != "" {
			sb.WriteString(" -- " + desc)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatRows(result *backend.QueryResult) string {
	rows := result.Rows
	truncated := false
	if len(rows) > maxResultRows {
		rows = rows[:maxResultRows]
		truncated = true
	}

	var sb strings.Builder
	for _, row := range rows {
		parts := make([]string, len(row))
		for i, v := range row {
			parts[i] = fmt.Sprint(v)
		}
		sb.WriteString(strings.Join(parts, " | "))
		sb.WriteString("\n")
	}
	if truncated {
		fmt.Fprintf(&sb, "(%d more rows omitted)\n", len(result.Rows)-maxResultRows)
	}
	return strings.TrimRight(sb.String(), "\n")
}
