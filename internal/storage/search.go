package storage

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/dshills/notecontext/pkg/types"
)

const (
	// MaxSearchTokens caps the substring probes made by Search
	MaxSearchTokens = 5

	// MaxFTSTokens caps the terms of a full-text query
	MaxFTSTokens = 12

	// snippetRunes is the preview length used when no highlighted snippet exists
	snippetRunes = 160
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// FTS5 operator pattern; these words are dropped rather than escaped.
var ftsOperatorPattern = regexp.MustCompile(`^(?i:AND|OR|NOT|NEAR)$`)

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "was": {}, "were": {}, "what": {},
	"did": {}, "does": {}, "with": {}, "about": {}, "from": {}, "that": {},
	"this": {}, "have": {}, "has": {}, "had": {}, "how": {}, "when": {},
	"where": {}, "who": {}, "why": {}, "which": {}, "you": {}, "your": {},
	"can": {}, "could": {}, "would": {}, "should": {}, "there": {}, "their": {},
	"them": {}, "they": {}, "any": {}, "all": {}, "into": {}, "tell": {},
	"show": {}, "find": {}, "our": {},
}

// searchTokens returns distinct lowercase words longer than two characters,
// in query order, without stopwords or FTS operators.
func searchTokens(query string, limit int) []string {
	seen := make(map[string]struct{})
	var tokens []string
	for _, raw := range tokenPattern.FindAllString(query, -1) {
		if ftsOperatorPattern.MatchString(raw) {
			continue
		}
		tok := strings.ToLower(raw)
		if utf8.RuneCountInString(tok) <= 2 {
			continue
		}
		if _, ok := stopwords[tok]; ok {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		tokens = append(tokens, tok)
		if len(tokens) == limit {
			break
		}
	}
	return tokens
}

// sanitizeFTSQuery turns free text into a safe FTS5 expression: each token is
// quoted, prefix matched and OR-ed. Returns "" when nothing searchable remains.
func sanitizeFTSQuery(query string) string {
	tokens := searchTokens(query, MaxFTSTokens)
	if len(tokens) == 0 {
		return ""
	}
	terms := make([]string, len(tokens))
	for i, tok := range tokens {
		terms[i] = `"` + strings.ReplaceAll(tok, `"`, `""`) + `"*`
	}
	return strings.Join(terms, " OR ")
}

const chunkMatchColumns = `c.id, c.file_id, c.chunk_index, f.path, f.name, c.content, c.heading_path, COALESCE(f.note_date, f.mtime_date, '')`

func scanChunkMatch(row rowScanner, extra ...interface{}) (ChunkMatch, error) {
	var m ChunkMatch
	dest := []interface{}{&m.ChunkID, &m.FileID, &m.ChunkIndex, &m.Path, &m.Name, &m.Content, &m.HeadingPath, &m.NoteDate}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		return m, err
	}
	return m, nil
}

func preview(content string) string {
	if utf8.RuneCountInString(content) <= snippetRunes {
		return content
	}
	return string([]rune(content)[:snippetRunes]) + "..."
}

// Search is the fallback lexical lookup: each query word is matched as a
// case-insensitive substring and chunks are ranked by how many words they
// contain.
func (s *SQLiteStore) Search(ctx context.Context, query string, limit int) ([]ChunkMatch, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	tokens := searchTokens(query, MaxSearchTokens)
	if len(tokens) == 0 || limit <= 0 {
		return nil, nil
	}

	escaper := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	byID := make(map[int64]*ChunkMatch)
	var order []int64
	for _, tok := range tokens {
		rows, err := db.QueryContext(ctx, `
			SELECT `+chunkMatchColumns+`
			FROM chunks c
			INNER JOIN files f ON f.id = c.file_id
			WHERE c.content LIKE '%' || ? || '%' ESCAPE '\'
			ORDER BY c.id
			LIMIT ?
		`, escaper.Replace(tok), limit*2)
		if err != nil {
			return nil, fmt.Errorf("failed to search chunks: %w", err)
		}
		for rows.Next() {
			m, err := scanChunkMatch(rows)
			if err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("failed to scan chunk: %w", err)
			}
			if existing, ok := byID[m.ChunkID]; ok {
				existing.Score++
				continue
			}
			m.Score = 1
			m.Snippet = preview(m.Content)
			byID[m.ChunkID] = &m
			order = append(order, m.ChunkID)
		}
		if err := rows.Close(); err != nil {
			return nil, err
		}
	}

	results := make([]ChunkMatch, 0, len(order))
	for _, id := range order {
		results = append(results, *byID[id])
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// SearchFTS ranks chunks by BM25 and optionally restricts them to notes whose
// effective date falls in dateRange. A query with no searchable words and a
// date range browses that range instead. A corrupted index is rebuilt and the
// query retried once.
func (s *SQLiteStore) SearchFTS(ctx context.Context, query string, limit int, dateRange *types.DateRange) ([]ChunkMatch, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	match := sanitizeFTSQuery(query)
	if match == "" {
		if dateRange == nil {
			return nil, nil
		}
		return browseByDate(ctx, db, *dateRange, limit)
	}

	results, err := searchFTSWithQuerier(ctx, db, match, limit, dateRange)
	if err != nil && isFTSCorruption(err) {
		s.logger.Warn("full-text search failed, rebuilding index", "error", err)
		if rerr := rebuildFTS(ctx, db); rerr != nil {
			return nil, fmt.Errorf("failed to rebuild full-text index: %w", rerr)
		}
		results, err = searchFTSWithQuerier(ctx, db, match, limit, dateRange)
	}
	return results, err
}

func dateFilter(dateRange *types.DateRange) (string, []interface{}) {
	if dateRange == nil {
		return "", nil
	}
	start, end := dateRange.Dates()
	return " AND COALESCE(f.note_date, f.mtime_date) >= ? AND COALESCE(f.note_date, f.mtime_date) < ?",
		[]interface{}{start, end}
}

func searchFTSWithQuerier(ctx context.Context, q querier, match string, limit int, dateRange *types.DateRange) ([]ChunkMatch, error) {
	filter, filterArgs := dateFilter(dateRange)
	query := `
		SELECT ` + chunkMatchColumns + `,
			bm25(chunks_fts) AS score,
			snippet(chunks_fts, 0, '[', ']', '...', 16)
		FROM chunks_fts
		INNER JOIN chunks c ON c.id = chunks_fts.rowid
		INNER JOIN files f ON f.id = c.file_id
		WHERE chunks_fts MATCH ?` + filter + `
		ORDER BY score
		LIMIT ?
	`
	args := append([]interface{}{match}, filterArgs...)
	args = append(args, limit)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute full-text search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []ChunkMatch
	for rows.Next() {
		var (
			rank    float64
			snippet sql.NullString
		)
		m, err := scanChunkMatch(rows, &rank, &snippet)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		// bm25 is negative; more negative is a better match
		m.Score = -rank
		m.Snippet = snippet.String
		if m.Snippet == "" {
			m.Snippet = preview(m.Content)
		}
		results = append(results, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read full-text results: %w", err)
	}
	return results, nil
}

// browseByDate lists chunks of notes in the range, newest notes first.
func browseByDate(ctx context.Context, q querier, dateRange types.DateRange, limit int) ([]ChunkMatch, error) {
	filter, args := dateFilter(&dateRange)
	query := `
		SELECT ` + chunkMatchColumns + `
		FROM chunks c
		INNER JOIN files f ON f.id = c.file_id
		WHERE 1 = 1` + filter + `
		ORDER BY COALESCE(f.note_date, f.mtime_date) DESC, f.path, c.chunk_index
		LIMIT ?
	`
	args = append(args, limit)
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to browse by date: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []ChunkMatch
	for rows.Next() {
		m, err := scanChunkMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		m.Score = float64(limit - len(results))
		m.Snippet = preview(m.Content)
		results = append(results, m)
	}
	return results, rows.Err()
}

// GetChunks loads chunks with their file metadata, in the order of chunkIDs.
// Unknown ids are skipped.
func (s *SQLiteStore) GetChunks(ctx context.Context, chunkIDs []int64) ([]ChunkMatch, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	if len(chunkIDs) == 0 {
		return nil, nil
	}

	placeholders, args := inClause(chunkIDs)
	rows, err := db.QueryContext(ctx, `
		SELECT `+chunkMatchColumns+`
		FROM chunks c
		INNER JOIN files f ON f.id = c.file_id
		WHERE c.id IN (`+placeholders+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	byID := make(map[int64]ChunkMatch, len(chunkIDs))
	for rows.Next() {
		m, err := scanChunkMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		m.Snippet = preview(m.Content)
		byID[m.ChunkID] = m
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	results := make([]ChunkMatch, 0, len(byID))
	for _, id := range chunkIDs {
		if m, ok := byID[id]; ok {
			results = append(results, m)
		}
	}
	return results, nil
}

func inClause(ids []int64) (string, []interface{}) {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(ids)), ","), args
}
