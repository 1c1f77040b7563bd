package history

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	Append(ctx context.Context, e *Entry) error
	ListByBooking(ctx context.Context, bookingID string) ([]*Entry, error)
}

type pgxRepository struct {
	pool *pgxpool.Pool
}

func NewPgxRepository(pool *pgxpool.Pool) Repository {
	return &pgxRepository{pool: pool}
}

func (r *pgxRepository) Append(ctx context.Context, e *Entry) error {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Insert("public.booking_history").
		Columns("booking_id", "event", "status", "actor_user_id", "actor_name", "actor_role", "note", "occurred_at").
		Values(e.BookingID, e.Event, e.Status, e.ActorID, e.ActorName, e.ActorRole, e.Note, e.At).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return fmt.Errorf("build append history query failed: %w", err)
	}

	if err := r.pool.QueryRow(ctx, query, args...).Scan(&e.ID); err != nil {
		return fmt.Errorf("append history failed: %w", err)
	}
	return nil
}

func (r *pgxRepository) ListByBooking(ctx context.Context, bookingID string) ([]*Entry, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Select(
		"id", "booking_id", "event", "status", "actor_user_id", "actor_name", "actor_role", "note", "occurred_at",
	).
		From("public.booking_history").
		Where(squirrel.Eq{"booking_id": bookingID}).
		OrderBy("occurred_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list history query failed: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list history failed: %w", err)
	}
	defer rows.Close()

	var result []*Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID, &e.BookingID, &e.Event, &e.Status, &e.ActorID, &e.ActorName, &e.ActorRole, &e.Note, &e.At,
		); err != nil {
			return nil, fmt.Errorf("scan history failed: %w", err)
		}
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history failed: %w", err)
	}
	return result, nil
}
