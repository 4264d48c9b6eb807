package nl2sql

import (
	"fmt"
	"strings"
)

const readonlySystemPrompt = "You convert natural language questions into a single PostgreSQL SELECT query. " +
	"You are in read-only mode: never produce INSERT, UPDATE, DELETE, or any DDL. " +
	"Return ONLY SQL. No markdown, no explanation."

const unrestrictedSystemPrompt = "You convert natural language requests into a single PostgreSQL statement. " +
	"Data-modifying statements are allowed when the request asks for them. " +
	"Return ONLY SQL. No markdown, no explanation."

const correctionSystemPrompt = "You repair broken SQL. Given a question, a failing SQL statement, and the " +
	"problem with it, return a corrected single statement. Return ONLY SQL. No markdown, no explanation."

const explanationSystemPrompt = "You explain SQL statements to non-technical readers in two or three plain " +
	"sentences. Describe what data the query reads or changes. Do not include SQL in the answer."

func generationPrompt(schema, question string) string {
	var b strings.Builder
	if schema != "" {
		b.WriteString("Database schema:\n")
		b.WriteString(schema)
		b.WriteString("\n\n")
	}
	b.WriteString("Question:\n")
	b.WriteString(strings.TrimSpace(question))
	b.WriteString("\n\nRules:\n- Use only tables and columns from the schema.\n- Output a single SQL statement only.")
	return b.String()
}

func correctionPrompt(schema, question, badSQL, issue string) string {
	var b strings.Builder
	if schema != "" {
		b.WriteString("Database schema:\n")
		b.WriteString(schema)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Question:\n%s\n\nFailing SQL:\n%s\n\nProblem:\n%s\n\nReturn the corrected statement only.",
		strings.TrimSpace(question), strings.TrimSpace(badSQL), strings.TrimSpace(issue))
	return b.String()
}

func explanationPrompt(sqlQuery string) string {
	return "Explain this SQL statement:\n" + strings.TrimSpace(sqlQuery)
}
