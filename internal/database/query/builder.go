// Marquee - Personalized Virtual Libraries for Media Servers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package query provides SQL WHERE clause construction for the database package.
package query

import (
	"fmt"
	"strings"
	"time"
)

// WhereBuilder constructs SQL WHERE clauses with parameterized arguments.
// Every named filter is optional: a zero-valued argument adds nothing, so
// callers can pass through whatever filters they were given.
//
// Column names are interpolated into the SQL text and must be constants
// chosen by the caller, never user input.
//
// Example usage:
//
//	wb := query.NewWhereBuilder()
//	wb.AddEquals("wh.user_id", userID)
//	wb.AddNotIn("m.library_id", excluded)
//	whereClause, args := wb.Build()
//	// wh.user_id = ? AND (m.library_id IS NULL OR m.library_id NOT IN (?, ?))
type WhereBuilder struct {
	clauses []string
	args    []interface{}
}

// NewWhereBuilder creates a new WhereBuilder instance.
func NewWhereBuilder() *WhereBuilder {
	return &WhereBuilder{
		clauses: []string{},
		args:    []interface{}{},
	}
}

// AddClause adds a raw WHERE clause with its arguments.
func (wb *WhereBuilder) AddClause(clause string, args ...interface{}) *WhereBuilder {
	wb.clauses = append(wb.clauses, clause)
	wb.args = append(wb.args, args...)
	return wb
}

// AddEquals adds "column = ?". Nil values and empty strings are skipped.
func (wb *WhereBuilder) AddEquals(column string, value interface{}) *WhereBuilder {
	if isZero(value) {
		return wb
	}
	return wb.AddClause(column+" = ?", value)
}

// AddIn adds "column IN (?, ...)". An empty list is skipped.
func (wb *WhereBuilder) AddIn(column string, values []string) *WhereBuilder {
	if len(values) == 0 {
		return wb
	}
	placeholders, args := expand(values)
	return wb.AddClause(fmt.Sprintf("%s IN (%s)", column, placeholders), args...)
}

// AddNotIn adds "column NOT IN (?, ...)". Rows where column is NULL are kept,
// matching the intent of "exclude these values". An empty list is skipped.
func (wb *WhereBuilder) AddNotIn(column string, values []string) *WhereBuilder {
	if len(values) == 0 {
		return wb
	}
	placeholders, args := expand(values)
	return wb.AddClause(fmt.Sprintf("(%s IS NULL OR %s NOT IN (%s))", column, column, placeholders), args...)
}

// AddSince adds "column >= ?". A nil time is skipped.
func (wb *WhereBuilder) AddSince(column string, since *time.Time) *WhereBuilder {
	if since == nil {
		return wb
	}
	return wb.AddClause(column+" >= ?", *since)
}

// AddNotNull adds "column IS NOT NULL".
func (wb *WhereBuilder) AddNotNull(column string) *WhereBuilder {
	return wb.AddClause(column + " IS NOT NULL")
}

// Build joins the clauses with AND. It returns ("1=1", []) if no clauses
// were added so the result can always follow a WHERE keyword.
func (wb *WhereBuilder) Build() (string, []interface{}) {
	if len(wb.clauses) == 0 {
		return "1=1", []interface{}{}
	}
	return strings.Join(wb.clauses, " AND "), wb.args
}

// BuildWithPrefix returns the WHERE clause with "WHERE " prefix.
func (wb *WhereBuilder) BuildWithPrefix() (string, []interface{}) {
	whereClause, args := wb.Build()
	return "WHERE " + whereClause, args
}

// Count returns the number of clauses added to the builder.
func (wb *WhereBuilder) Count() int {
	return len(wb.clauses)
}

// IsEmpty returns true if no clauses have been added.
func (wb *WhereBuilder) IsEmpty() bool {
	return len(wb.clauses) == 0
}

func expand(values []string) (string, []interface{}) {
	placeholders := make([]string, len(values))
	args := make([]interface{}, len(values))
	for i, v := range values {
		placeholders[i] = "?"
		args[i] = v
	}
	return strings.Join(placeholders, ", "), args
}

func isZero(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case fmt.Stringer:
		return v.String() == ""
	default:
		return false
	}
}
