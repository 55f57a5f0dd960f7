package history

import (
	"context"
	"database/sql"

	"civicdesk/internal/domain"
)

// Writer appends status-history rows inside the caller's transaction.
// Rows are never updated or deleted; the log is the audit record relied on
// for dispute resolution. The caller supplies ts so history rows share the
// clock of the transition that produced them.
type Writer struct {
	DB *sql.DB
}

func (w Writer) Append(ctx context.Context, tx *sql.Tx, issueID, oldStatus, newStatus string, actor domain.Principal, note, ts string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO status_history(issue_id,old_status,new_status,actor_id,actor_role,note,ts) VALUES (?,?,?,?,?,?,?)`,
		issueID, oldStatus, newStatus, actor.ActorID, string(actor.Role), nullable(note), ts)
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
