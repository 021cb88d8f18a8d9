package store

import "fmt"

// kindStatements holds the fixed, parameterised statements for one suggestion
// collection. Both collections share a shape and differ only in table and item
// column, so each kind gets its own statements instead of spliced fragments.
type kindStatements struct {
	kind       Kind
	selectByID string
	lockByID   string
	insert     string
	updateText string
	delete     string
	count      string
	page       string
	countItems string
	adjust     string
	reconcile  string
	isEmpty    string
}

const suggestionColumns = `id, %s, user_id, name, votes, created_at, updated_at`

func newKindStatements(kind Kind, table, itemColumn string) kindStatements {
	cols := fmt.Sprintf(suggestionColumns, itemColumn)
	return kindStatements{
		kind:       kind,
		selectByID: fmt.Sprintf(`SELECT %s FROM %s WHERE id=$1`, cols, table),
		lockByID:   fmt.Sprintf(`SELECT %s FROM %s WHERE id=$1 FOR UPDATE`, cols, table),
		insert: fmt.Sprintf(`
			INSERT INTO %s (%s, user_id, name)
			VALUES ($1, $2, $3)
			RETURNING %s`, table, itemColumn, cols),
		updateText: fmt.Sprintf(`
			UPDATE %s SET name=$2, updated_at=NOW()
			WHERE id=$1
			RETURNING %s`, table, cols),
		delete: fmt.Sprintf(`DELETE FROM %s WHERE id=$1`, table),
		count:  fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE ($1::text IS NULL OR %s = $1)`, table, itemColumn),
		page: fmt.Sprintf(`
			SELECT %s, '%s'::text AS suggestion_type
			FROM %s
			WHERE ($1::text IS NULL OR %s = $1)`, cols, kind, table, itemColumn),
		countItems: fmt.Sprintf(`
			SELECT %[2]s, COUNT(*)::int
			FROM %[1]s
			WHERE %[2]s = ANY($1::text[])
			GROUP BY %[2]s`, table, itemColumn),
		adjust: fmt.Sprintf(`
			UPDATE %s SET votes = GREATEST(votes + $2, 0)
			WHERE id=$1
			RETURNING %s`, table, cols),
		reconcile: fmt.Sprintf(`
			UPDATE %[1]s s
			SET votes = tally.total
			FROM (
				SELECT s2.id, COUNT(uv.suggestion_id)::int AS total
				FROM %[1]s s2
				LEFT JOIN user_votes uv
					ON uv.suggestion_id = s2.id
					AND uv.suggestion_type = '%[2]s'
					AND uv.vote_type = 1
				GROUP BY s2.id
			) AS tally
			WHERE tally.id = s.id AND s.votes IS DISTINCT FROM tally.total`, table, kind),
		isEmpty: fmt.Sprintf(`SELECT NOT EXISTS(SELECT 1 FROM %s)`, table),
	}
}

var statementsByKind = map[Kind]kindStatements{
	KindTrack: newKindStatements(KindTrack, "track_suggestions", "track_id"),
	KindArena: newKindStatements(KindArena, "arena_suggestions", "arena_id"),
}

func statementsFor(kind Kind) (kindStatements, error) {
	stmts, ok := statementsByKind[kind]
	if !ok {
		return kindStatements{}, fmt.Errorf("unsupported suggestion kind %q", kind)
	}
	return stmts, nil
}

// listAllStatement composes both collections with an explicit UNION ALL. Ordering
// and pagination apply to the combined result.
var listAllStatement = fmt.Sprintf(`
	SELECT * FROM (
		%s
		UNION ALL
		%s
	) AS combined
	ORDER BY created_at DESC, votes DESC, suggestion_type ASC, id DESC
	LIMIT $2 OFFSET $3`, statementsByKind[KindTrack].page, statementsByKind[KindArena].page)

func listOneStatement(stmts kindStatements) string {
	return stmts.page + `
	ORDER BY created_at DESC, votes DESC, id DESC
	LIMIT $2 OFFSET $3`
}

// findAnyStatement is the kind-less fallback lookup. Track rows sort first.
var findAnyStatement = fmt.Sprintf(`
	SELECT * FROM (
		SELECT %s, 'track'::text AS suggestion_type, 0 AS probe FROM track_suggestions WHERE id=$1
		UNION ALL
		SELECT %s, 'arena'::text AS suggestion_type, 1 AS probe FROM arena_suggestions WHERE id=$1
	) AS probes
	ORDER BY probe ASC`,
	fmt.Sprintf(suggestionColumns, "track_id"),
	fmt.Sprintf(suggestionColumns, "arena_id"))
