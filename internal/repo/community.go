package repo

import (
	"context"
	"database/sql"

	"civicdesk/internal/domain"
)

func (r Repo) InsertIdea(ctx context.Context, idea domain.Idea) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO ideas(id,title,description,author_name,status,created_at) VALUES (?,?,?,?,?,?)`,
		idea.ID, idea.Title, idea.Description, nullable(idea.AuthorName), idea.Status, idea.CreatedAt)
	return err
}

func (r Repo) GetIdea(ctx context.Context, id string) (domain.Idea, error) {
	var idea domain.Idea
	var author sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT i.id,i.title,i.description,i.author_name,i.status,i.created_at,
(SELECT count(*) FROM idea_votes v WHERE v.idea_id=i.id)
FROM ideas i WHERE i.id=?`, id).
		Scan(&idea.ID, &idea.Title, &idea.Description, &author, &idea.Status, &idea.CreatedAt, &idea.Votes)
	if err == sql.ErrNoRows {
		return idea, ErrNotFound
	}
	idea.AuthorName = author.String
	return idea, err
}

func (r Repo) ListIdeas(ctx context.Context, status string, limit int) ([]domain.Idea, error) {
	query := `SELECT i.id,i.title,i.description,i.author_name,i.status,i.created_at,
(SELECT count(*) FROM idea_votes v WHERE v.idea_id=i.id) AS votes
FROM ideas i`
	var args []any
	if status != "" {
		query += ` WHERE i.status=?`
		args = append(args, status)
	}
	query += ` ORDER BY votes DESC, i.created_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Idea
	for rows.Next() {
		var idea domain.Idea
		var author sql.NullString
		if err := rows.Scan(&idea.ID, &idea.Title, &idea.Description, &author, &idea.Status, &idea.CreatedAt, &idea.Votes); err != nil {
			return nil, err
		}
		idea.AuthorName = author.String
		res = append(res, idea)
	}
	return res, rows.Err()
}

// AddIdeaVote records one vote per voter per idea; a repeat vote is a no-op
// and reports false.
func (r Repo) AddIdeaVote(ctx context.Context, ideaID, voter, ts string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `INSERT OR IGNORE INTO idea_votes(idea_id,voter,ts) VALUES (?,?,?)`, ideaID, voter, ts)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r Repo) UpdateIdeaStatus(ctx context.Context, id, status string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE ideas SET status=? WHERE id=?`, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertProgram(ctx context.Context, p domain.Program) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO programs(id,name,description,capacity,starts_on,created_at) VALUES (?,?,?,?,?,?)`,
		p.ID, p.Name, nullable(p.Description), p.Capacity, nullable(p.StartsOn), p.CreatedAt)
	return err
}

func (r Repo) GetProgramTx(ctx context.Context, tx *sql.Tx, id string) (domain.Program, error) {
	var p domain.Program
	var desc, startsOn sql.NullString
	err := tx.QueryRowContext(ctx, `SELECT p.id,p.name,p.description,p.capacity,p.starts_on,p.created_at,
(SELECT count(*) FROM registrations r WHERE r.program_id=p.id)
FROM programs p WHERE p.id=?`, id).
		Scan(&p.ID, &p.Name, &desc, &p.Capacity, &startsOn, &p.CreatedAt, &p.Registered)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	p.Description = desc.String
	p.StartsOn = startsOn.String
	return p, err
}

func (r Repo) ListPrograms(ctx context.Context) ([]domain.Program, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT p.id,p.name,p.description,p.capacity,p.starts_on,p.created_at,
(SELECT count(*) FROM registrations r WHERE r.program_id=p.id)
FROM programs p ORDER BY p.created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Program
	for rows.Next() {
		var p domain.Program
		var desc, startsOn sql.NullString
		if err := rows.Scan(&p.ID, &p.Name, &desc, &p.Capacity, &startsOn, &p.CreatedAt, &p.Registered); err != nil {
			return nil, err
		}
		p.Description = desc.String
		p.StartsOn = startsOn.String
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) InsertRegistration(ctx context.Context, tx *sql.Tx, reg domain.Registration) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO registrations(id,program_id,participant,contact,guardian_name,created_at) VALUES (?,?,?,?,?,?)`,
		reg.ID, reg.ProgramID, reg.Participant, reg.Contact, nullable(reg.GuardianName), reg.CreatedAt)
	return err
}

func (r Repo) ListRegistrations(ctx context.Context, programID string) ([]domain.Registration, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,program_id,participant,contact,COALESCE(guardian_name,''),created_at
FROM registrations WHERE program_id=? ORDER BY created_at ASC`, programID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Registration
	for rows.Next() {
		var reg domain.Registration
		if err := rows.Scan(&reg.ID, &reg.ProgramID, &reg.Participant, &reg.Contact, &reg.GuardianName, &reg.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, reg)
	}
	return res, rows.Err()
}
