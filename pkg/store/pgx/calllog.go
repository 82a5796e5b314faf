package pgx

import (
	"context"
	"fmt"
	"time"

	pgxv5 "github.com/jackc/pgx/v5"

	"github.com/OFFIS-RIT/macrokg/internal/util"
	"github.com/OFFIS-RIT/macrokg/pkg/monitor"
)

const insertCallLogSQL = `
INSERT INTO llm_call_logs (
    operation, model, prompt_hash, response_hash, duration_ms,
    input_tokens, output_tokens, success, error_kind, error, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
`

const listCallLogsSQL = `
SELECT operation, model, prompt_hash, response_hash, duration_ms,
       input_tokens, output_tokens, success, error_kind, error, created_at
FROM llm_call_logs
WHERE created_at >= $1
ORDER BY created_at ASC
LIMIT $2
`

// maxErrorLength caps stored provider messages.
const maxErrorLength = 2000

// CallLogStore writes and reads llm_call_logs.
type CallLogStore struct {
	conn  pgxIConn
	limit int
}

func NewCallLogStore(conn pgxIConn) *CallLogStore {
	return &CallLogStore{conn: conn, limit: 50000}
}

func (s *CallLogStore) RecordCall(ctx context.Context, log monitor.CallLog) error {
	_, err := s.conn.Exec(ctx, insertCallLogSQL,
		log.Operation, log.Model, log.PromptHash, log.ResponseHash, log.DurationMs,
		log.InputTokens, log.OutputTokens, log.Success, log.ErrorKind,
		util.SanitizePostgresText(util.TruncateRunes(log.Error, maxErrorLength)), log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert call log: %w", err)
	}
	return nil
}

func (s *CallLogStore) CallLogs(ctx context.Context, since time.Time) ([]monitor.CallLog, error) {
	rows, err := s.conn.Query(ctx, listCallLogsSQL, since, s.limit)
	if err != nil {
		return nil, fmt.Errorf("list call logs: %w", err)
	}
	logs, err := pgxv5.CollectRows(rows, func(row pgxv5.CollectableRow) (monitor.CallLog, error) {
		var l monitor.CallLog
		err := row.Scan(&l.Operation, &l.Model, &l.PromptHash, &l.ResponseHash, &l.DurationMs,
			&l.InputTokens, &l.OutputTokens, &l.Success, &l.ErrorKind, &l.Error, &l.CreatedAt)
		return l, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan call logs: %w", err)
	}
	return logs, nil
}
