package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	Create(ctx context.Context, n *Notification) error
	List(ctx context.Context, filter Filter) ([]*Notification, int, error)
	MarkRead(ctx context.Context, id, userID string, at time.Time) error
	MarkAllRead(ctx context.Context, userID string, at time.Time) (int, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
}

type pgxRepository struct {
	pool *pgxpool.Pool
}

func NewPgxRepository(pool *pgxpool.Pool) Repository {
	return &pgxRepository{pool: pool}
}

func psql() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (r *pgxRepository) Create(ctx context.Context, n *Notification) error {
	query, args, err := psql().Insert("public.notifications").
		Columns("user_id", "booking_id", "kind", "title", "message").
		Values(n.UserID, n.BookingID, n.Kind, n.Title, n.Message).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build create notification query failed: %w", err)
	}

	if err := r.pool.QueryRow(ctx, query, args...).Scan(&n.ID, &n.CreatedAt); err != nil {
		return fmt.Errorf("create notification failed: %w", err)
	}
	return nil
}

func (r *pgxRepository) List(ctx context.Context, filter Filter) ([]*Notification, int, error) {
	query := psql().Select(
		"id", "user_id", "booking_id", "kind", "title", "message", "read_at", "created_at",
		"count(*) OVER() as total_count",
	).
		From("public.notifications").
		Where(squirrel.Eq{"user_id": filter.UserID})

	if filter.UnreadOnly {
		query = query.Where(squirrel.Eq{"read_at": nil})
	}

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 20
	}
	offset := (filter.Page - 1) * filter.PageSize

	query = query.OrderBy("created_at DESC", "id DESC").
		Limit(uint64(filter.PageSize)).
		Offset(uint64(offset))

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list notifications query failed: %w", err)
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list notifications failed: %w", err)
	}
	defer rows.Close()

	var result []*Notification
	var total int
	for rows.Next() {
		var n Notification
		if err := rows.Scan(
			&n.ID, &n.UserID, &n.BookingID, &n.Kind, &n.Title, &n.Message, &n.ReadAt, &n.CreatedAt, &total,
		); err != nil {
			return nil, 0, fmt.Errorf("scan notification failed: %w", err)
		}
		result = append(result, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate notifications failed: %w", err)
	}

	return result, total, nil
}

// MarkRead marks one of the user's notifications as read. Marking an
// already read notification again keeps its first read time.
func (r *pgxRepository) MarkRead(ctx context.Context, id, userID string, at time.Time) error {
	query, args, err := psql().Update("public.notifications").
		Set("read_at", squirrel.Expr("COALESCE(read_at, ?)", at)).
		Where(squirrel.Eq{"id": id, "user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark notification read query failed: %w", err)
	}

	ct, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("mark notification read failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgxRepository) MarkAllRead(ctx context.Context, userID string, at time.Time) (int, error) {
	query, args, err := psql().Update("public.notifications").
		Set("read_at", at).
		Where(squirrel.Eq{"user_id": userID, "read_at": nil}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build mark all notifications read query failed: %w", err)
	}

	ct, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read failed: %w", err)
	}
	return int(ct.RowsAffected()), nil
}

func (r *pgxRepository) UnreadCount(ctx context.Context, userID string) (int, error) {
	query, args, err := psql().Select("count(*)").
		From("public.notifications").
		Where(squirrel.Eq{"user_id": userID, "read_at": nil}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build unread count query failed: %w", err)
	}

	var count int
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count unread notifications failed: %w", err)
	}
	return count, nil
}
