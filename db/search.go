package db

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// SearchResult represents a search result
type SearchResult struct {
	Message        *Message
	ConversationID int64
	Snippet        string
}

// SearchFilter narrows a search
type SearchFilter struct {
	Sender  string // "user", "assistant" or empty for both
	Model   string
	DaysAgo int // 0 means no limit
	Limit   int
}

// SearchMessages performs full-text search on messages
func (db *DB) SearchMessages(query string, limit int) ([]*SearchResult, error) {
	return db.SearchMessagesWithFilters(query, SearchFilter{Limit: limit})
}

// SearchMessagesWithFilters performs full-text search with optional filters.
// Without an FTS5 index the query is matched as a plain substring.
func (db *DB) SearchMessagesWithFilters(query string, filter SearchFilter) ([]*SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if filter.Limit <= 0 {
		filter.Limit = 50
	}

	var sqlQuery string
	var args []interface{}
	if db.fts {
		sqlQuery = `
		SELECT m.id, m.uid, m.conversation_id, m.sender, m.content, m.model, m.template, m.is_error, m.attachment_count, m.created_at,
		       snippet(messages_fts, 0, '[', ']', '...', 16) as snippet
		FROM messages_fts
		JOIN messages m ON messages_fts.rowid = m.id
		WHERE messages_fts MATCH ?`
		args = append(args, query)
	} else {
		sqlQuery = `
		SELECT m.id, m.uid, m.conversation_id, m.sender, m.content, m.model, m.template, m.is_error, m.attachment_count, m.created_at,
		       '' as snippet
		FROM messages m
		WHERE m.content LIKE '%' || ? || '%'`
		args = append(args, query)
	}

	if filter.Sender != "" {
		sqlQuery += " AND m.sender = ?"
		args = append(args, filter.Sender)
	}
	if filter.Model != "" {
		sqlQuery += " AND m.model = ?"
		args = append(args, filter.Model)
	}
	if filter.DaysAgo > 0 {
		sqlQuery += " AND m.created_at >= datetime('now', '-' || ? || ' days')"
		args = append(args, filter.DaysAgo)
	}

	if db.fts {
		sqlQuery += " ORDER BY rank LIMIT ?"
	} else {
		sqlQuery += " ORDER BY m.id DESC LIMIT ?"
	}
	args = append(args, filter.Limit)

	rows, err := db.conn.Query(sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	defer rows.Close()

	var results []*SearchResult
	for rows.Next() {
		var snippet string
		msg, err := scanMessage(rows, &snippet)
		if err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		if snippet == "" {
			snippet = makeSnippet(msg.Content, query, 40)
		}
		results = append(results, &SearchResult{
			Message:        msg,
			ConversationID: msg.ConversationID,
			Snippet:        snippet,
		})
	}

	return results, rows.Err()
}

// makeSnippet returns the text around the first match of query, with up to
// radius runes of context on each side
func makeSnippet(content, query string, radius int) string {
	idx := strings.Index(strings.ToLower(content), strings.ToLower(query))
	if idx < 0 {
		idx = 0
	}

	start := idx
	for i := 0; i < radius && start > 0; i++ {
		_, size := utf8.DecodeLastRuneInString(content[:start])
		start -= size
	}
	end := idx + len(query)
	if end > len(content) {
		end = len(content)
	}
	for i := 0; i < radius && end < len(content); i++ {
		_, size := utf8.DecodeRuneInString(content[end:])
		end += size
	}

	snippet := strings.ReplaceAll(content[start:end], "\n", " ")
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(content) {
		snippet += "..."
	}
	return snippet
}
