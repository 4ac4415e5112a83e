package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cory-johannsen/gamerunner/internal/game/session"
)

// SaveResult inserts one completed session into session_results.
//
// Precondition: res.Outcome must be JSON-encodable.
// Postcondition: A new row exists, or a non-nil error is returned.
func (s *Store) SaveResult(ctx context.Context, res session.Result) error {
	outcome, err := json.Marshal(res.Outcome)
	if err != nil {
		return fmt.Errorf("encoding outcome: %w", err)
	}
	members := res.MemberIDs
	if members == nil {
		members = []string{}
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO session_results
		   (session_id, game_type, owner_id, member_ids, outcome, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		res.SessionID, res.Type, res.OwnerID, members, outcome, res.StartedAt, res.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting session result %d: %w", res.SessionID, err)
	}
	return nil
}

// Recent returns up to limit results, most recently finished first.
//
// Precondition: limit must be positive.
func (s *Store) Recent(ctx context.Context, limit int) ([]session.Result, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT session_id, game_type, owner_id, member_ids, outcome, started_at, finished_at
		 FROM session_results
		 ORDER BY finished_at DESC, id DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying session results: %w", err)
	}
	defer rows.Close()

	var results []session.Result
	for rows.Next() {
		var (
			res     session.Result
			outcome []byte
		)
		if err := rows.Scan(&res.SessionID, &res.Type, &res.OwnerID, &res.MemberIDs, &outcome, &res.StartedAt, &res.FinishedAt); err != nil {
			return nil, fmt.Errorf("scanning session result: %w", err)
		}
		if len(outcome) > 0 {
			if err := json.Unmarshal(outcome, &res.Outcome); err != nil {
				return nil, fmt.Errorf("decoding outcome of session %d: %w", res.SessionID, err)
			}
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session results: %w", err)
	}
	return results, nil
}
