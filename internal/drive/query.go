package drive

import "strings"

// Query builds a Drive search expression. Clauses are joined with "and".
type Query struct {
	clauses []string
}

// NewQuery starts a query that excludes trashed files.
func NewQuery() *Query {
	return &Query{clauses: []string{"trashed = false"}}
}

// Name matches the exact file name.
func (q *Query) Name(name string) *Query {
	q.clauses = append(q.clauses, "name = '"+escape(name)+"'")
	return q
}

// MimeType matches the exact MIME type.
func (q *Query) MimeType(mimeType string) *Query {
	q.clauses = append(q.clauses, "mimeType = '"+escape(mimeType)+"'")
	return q
}

// Parent restricts results to direct children of a folder.
func (q *Query) Parent(id string) *Query {
	q.clauses = append(q.clauses, "'"+escape(id)+"' in parents")
	return q
}

func (q *Query) String() string {
	return strings.Join(q.clauses, " and ")
}

func escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
