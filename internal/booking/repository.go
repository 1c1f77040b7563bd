package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nekogravitycat/room-booking-backend/internal/auth"
	"github.com/nekogravitycat/room-booking-backend/internal/timerange"
)

type Repository interface {
	FindByID(ctx context.Context, id string) (*Booking, error)
	// FindByRoomAndDate returns the bookings of one room-day whose status is in statuses.
	FindByRoomAndDate(ctx context.Context, room, date string, statuses []Status) ([]*Booking, error)
	List(ctx context.Context, filter Filter) ([]*Booking, int, error)
	// Save inserts b when its Version is 0 and otherwise replaces the stored
	// row if its version still equals b.Version. On success b.Version is
	// incremented. Overlapping active bookings yield ErrSlotTaken and a
	// version mismatch yields ErrStaleWrite.
	Save(ctx context.Context, b *Booking) error
}

type pgxRepository struct {
	pool *pgxpool.Pool
}

func NewPgxRepository(pool *pgxpool.Pool) Repository {
	return &pgxRepository{pool: pool}
}

var bookingColumns = []string{
	"id", "room_name", "booking_date", "start_minute", "end_minute",
	"purpose", "description", "attendees", "status",
	"booked_by_user_id", "booked_by_name", "booked_by_email",
	"booked_by_employee_id", "booked_by_role", "booked_by_department",
	"manager_user_id", "manager_name", "manager_email",
	"approved_by_user_id", "approved_by_name", "approved_by_email", "approved_by_role", "approved_at",
	"rejection_reason", "priority", "urgent",
	"created_at", "submitted_at", "updated_at", "version",
}

// sortColumns whitelists the ORDER BY expressions list requests may pick.
var sortColumns = map[string]string{
	"date":       "booking_date %[1]s, start_minute %[1]s",
	"created_at": "created_at %[1]s",
	"status":     "status %[1]s",
	"room_name":  "room_name %[1]s",
}

func psql() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (r *pgxRepository) FindByID(ctx context.Context, id string) (*Booking, error) {
	query, args, err := psql().Select(bookingColumns...).
		From("public.bookings").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get booking query failed: %w", err)
	}

	b, err := scanBooking(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get booking failed: %w", err)
	}
	return b, nil
}

func (r *pgxRepository) FindByRoomAndDate(ctx context.Context, room, date string, statuses []Status) ([]*Booking, error) {
	query, args, err := psql().Select(bookingColumns...).
		From("public.bookings").
		Where(squirrel.Eq{"room_name": room}).
		Where(squirrel.Eq{"booking_date": date}).
		Where(squirrel.Eq{"status": statusStrings(statuses)}).
		OrderBy("start_minute ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build room bookings query failed: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list room bookings failed: %w", err)
	}
	defer rows.Close()

	var out []*Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking failed: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *pgxRepository) List(ctx context.Context, filter Filter) ([]*Booking, int, error) {
	query := psql().Select(append(bookingColumns, "count(*) OVER() AS total_count")...).
		From("public.bookings")

	if filter.RoomName != "" {
		query = query.Where(squirrel.Eq{"room_name": filter.RoomName})
	}
	if filter.Date != "" {
		query = query.Where(squirrel.Eq{"booking_date": filter.Date})
	}
	if filter.Status != "" {
		query = query.Where(squirrel.Eq{"status": filter.Status})
	}
	if filter.BookedByUserID != "" {
		query = query.Where(squirrel.Eq{"booked_by_user_id": filter.BookedByUserID})
	}
	if filter.AssignedManagerID != "" {
		query = query.Where(squirrel.Eq{"manager_user_id": filter.AssignedManagerID})
	}
	if filter.VisibleToUserID != "" {
		query = query.Where(squirrel.Or{
			squirrel.Eq{"booked_by_user_id": filter.VisibleToUserID},
			squirrel.Eq{"manager_user_id": filter.VisibleToUserID},
		})
	}

	// Sorting
	orderBy, ok := sortColumns[filter.SortBy]
	if !ok {
		orderBy = sortColumns["date"]
	}
	orderDir := "DESC"
	if strings.EqualFold(filter.SortOrder, "ASC") {
		orderDir = "ASC"
	}
	query = query.OrderBy(fmt.Sprintf(orderBy, orderDir), "id ASC")

	// Pagination
	page, pageSize := normalizePage(filter.Page, filter.PageSize)
	query = query.Limit(uint64(pageSize)).Offset(uint64((page - 1) * pageSize))

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list bookings query failed: %w", err)
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list bookings failed: %w", err)
	}
	defer rows.Close()

	var bookings []*Booking
	var total int
	for rows.Next() {
		b, err := scanBooking(rows, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("scan booking failed: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list bookings failed: %w", err)
	}

	return bookings, total, nil
}

func (r *pgxRepository) Save(ctx context.Context, b *Booking) error {
	values, err := bookingValues(b)
	if err != nil {
		return err
	}

	if b.Version == 0 {
		query, args, err := psql().Insert("public.bookings").
			Columns(bookingColumns...).
			Values(values...).
			ToSql()
		if err != nil {
			return fmt.Errorf("build create booking query failed: %w", err)
		}
		if _, err := r.pool.Exec(ctx, query, args...); err != nil {
			return mapWriteError("create booking failed", err)
		}
		b.Version++
		return nil
	}

	update := psql().Update("public.bookings")
	// Skip id; set every other column from the booking.
	for i, col := range bookingColumns[1:] {
		update = update.Set(col, values[i+1])
	}
	query, args, err := update.
		Where(squirrel.Eq{"id": b.ID}).
		Where(squirrel.Eq{"version": b.Version}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update booking query failed: %w", err)
	}

	ct, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return mapWriteError("update booking failed", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrStaleWrite
	}
	b.Version++
	return nil
}

// mapWriteError turns the exclusion constraint on active overlapping rows
// into ErrSlotTaken.
func mapWriteError(msg string, err error) error {
	var e *pgconn.PgError
	if errors.As(err, &e) && e.Code == pgerrcode.ExclusionViolation {
		return ErrSlotTaken
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// bookingValues returns column values in bookingColumns order, with the
// version already advanced to the value the row will hold after the write.
func bookingValues(b *Booking) ([]any, error) {
	r, err := timerange.ParseRange(b.StartTime, b.EndTime)
	if err != nil {
		return nil, fmt.Errorf("booking %s has malformed times: %w", b.ID, err)
	}

	var mgrID, mgrName, mgrEmail *string
	if m := b.AssignedManager; m != nil {
		mgrID, mgrName, mgrEmail = &m.UserID, &m.Name, &m.Email
	}
	var apprID, apprName, apprEmail, apprRole *string
	if a := b.ApprovedBy; a != nil {
		role := string(a.Role)
		apprID, apprName, apprEmail, apprRole = &a.UserID, &a.Name, &a.Email, &role
	}

	return []any{
		b.ID, b.RoomName, b.Date, r.Start, r.End,
		b.Purpose, b.Description, b.Attendees, string(b.Status),
		b.BookedBy.UserID, b.BookedBy.Name, b.BookedBy.Email,
		b.BookedBy.EmployeeID, string(b.BookedBy.Role), b.BookedBy.Department,
		mgrID, mgrName, mgrEmail,
		apprID, apprName, apprEmail, apprRole, b.ApprovedAt,
		b.RejectionReason, string(b.Priority), b.Urgent,
		b.CreatedAt, b.SubmittedAt, b.UpdatedAt, b.Version + 1,
	}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner, extra ...any) (*Booking, error) {
	var (
		b                                     Booking
		date                                  time.Time
		startMin, endMin                      int
		status, bookedRole, priority          string
		mgrID, mgrName, mgrEmail              *string
		apprID, apprName, apprEmail, apprRole *string
	)

	dest := []any{
		&b.ID, &b.RoomName, &date, &startMin, &endMin,
		&b.Purpose, &b.Description, &b.Attendees, &status,
		&b.BookedBy.UserID, &b.BookedBy.Name, &b.BookedBy.Email,
		&b.BookedBy.EmployeeID, &bookedRole, &b.BookedBy.Department,
		&mgrID, &mgrName, &mgrEmail,
		&apprID, &apprName, &apprEmail, &apprRole, &b.ApprovedAt,
		&b.RejectionReason, &priority, &b.Urgent,
		&b.CreatedAt, &b.SubmittedAt, &b.UpdatedAt, &b.Version,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	b.Date = date.Format(time.DateOnly)
	b.StartTime = timerange.FormatMinutes(startMin)
	b.EndTime = timerange.FormatMinutes(endMin)
	b.Status = Status(status)
	b.Priority = Priority(priority)
	b.BookedBy.Role = auth.ParseRole(bookedRole)
	if mgrID != nil {
		b.AssignedManager = &ManagerRef{UserID: *mgrID, Name: deref(mgrName), Email: deref(mgrEmail)}
	}
	if apprID != nil {
		b.ApprovedBy = &Actor{
			UserID: *apprID,
			Name:   deref(apprName),
			Email:  deref(apprEmail),
			Role:   auth.ParseRole(deref(apprRole)),
		}
	}
	return &b, nil
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	return page, pageSize
}
