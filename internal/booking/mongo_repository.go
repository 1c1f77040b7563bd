package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nekogravitycat/room-booking-backend/internal/auth"
	"github.com/nekogravitycat/room-booking-backend/internal/timerange"
)

const BookingCollection = "bookings"

type bookingDocument struct {
	ID          string `bson:"_id"`
	RoomName    string `bson:"room_name"`
	Date        string `bson:"date"`
	StartMinute int    `bson:"start_minute"`
	EndMinute   int    `bson:"end_minute"`
	Purpose     string `bson:"purpose"`
	Description string `bson:"description,omitempty"`
	Attendees   int    `bson:"attendees"`
	Status      string `bson:"status"`

	BookedBy        actorDocument    `bson:"booked_by"`
	AssignedManager *managerDocument `bson:"assigned_manager,omitempty"`
	ApprovedBy      *actorDocument   `bson:"approved_by,omitempty"`
	ApprovedAt      *time.Time       `bson:"approved_at,omitempty"`
	RejectionReason string           `bson:"rejection_reason,omitempty"`
	Priority        string           `bson:"priority"`
	Urgent          bool             `bson:"urgent"`

	CreatedAt   time.Time `bson:"created_at"`
	SubmittedAt time.Time `bson:"submitted_at"`
	UpdatedAt   time.Time `bson:"updated_at"`
	Version     int       `bson:"version"`
}

type actorDocument struct {
	UserID     string `bson:"user_id"`
	Name       string `bson:"name"`
	Email      string `bson:"email"`
	EmployeeID string `bson:"employee_id,omitempty"`
	Department string `bson:"department,omitempty"`
	Role       string `bson:"role"`
}

type managerDocument struct {
	UserID string `bson:"user_id"`
	Name   string `bson:"name"`
	Email  string `bson:"email"`
}

type mongoRepository struct {
	col *mongo.Collection
}

// NewMongoRepository stores bookings in the bookings collection of db.
// Overlap checks run before each write and are only atomic together with
// the service's room-day lock, so a Mongo-backed deployment must run a
// single instance.
func NewMongoRepository(db *mongo.Database) Repository {
	return &mongoRepository{col: db.Collection(BookingCollection)}
}

// EnsureIndexes creates the indexes the room-day and listing queries rely on.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(BookingCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "room_name", Value: 1}, {Key: "date", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "booked_by.user_id", Value: 1}}},
		{Keys: bson.D{{Key: "assigned_manager.user_id", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create booking indexes failed: %w", err)
	}
	return nil
}

func (r *mongoRepository) FindByID(ctx context.Context, id string) (*Booking, error) {
	var doc bookingDocument
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get booking failed: %w", err)
	}
	return doc.toBooking(), nil
}

func (r *mongoRepository) FindByRoomAndDate(ctx context.Context, room, date string, statuses []Status) ([]*Booking, error) {
	filter := bson.M{
		"room_name": room,
		"date":      date,
		"status":    bson.M{"$in": statusStrings(statuses)},
	}
	opts := options.Find().SetSort(bson.D{{Key: "start_minute", Value: 1}, {Key: "_id", Value: 1}})
	return r.find(ctx, filter, opts)
}

func (r *mongoRepository) List(ctx context.Context, f Filter) ([]*Booking, int, error) {
	filter := bson.M{}
	if f.RoomName != "" {
		filter["room_name"] = f.RoomName
	}
	if f.Date != "" {
		filter["date"] = f.Date
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.BookedByUserID != "" {
		filter["booked_by.user_id"] = f.BookedByUserID
	}
	if f.AssignedManagerID != "" {
		filter["assigned_manager.user_id"] = f.AssignedManagerID
	}
	if f.VisibleToUserID != "" {
		filter["$or"] = bson.A{
			bson.M{"booked_by.user_id": f.VisibleToUserID},
			bson.M{"assigned_manager.user_id": f.VisibleToUserID},
		}
	}

	total, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count bookings failed: %w", err)
	}

	dir := -1
	if strings.EqualFold(f.SortOrder, "ASC") {
		dir = 1
	}
	var sort bson.D
	switch f.SortBy {
	case "created_at", "status", "room_name":
		sort = bson.D{{Key: f.SortBy, Value: dir}}
	default:
		sort = bson.D{{Key: "date", Value: dir}, {Key: "start_minute", Value: dir}}
	}
	sort = append(sort, bson.E{Key: "_id", Value: 1})

	page, pageSize := normalizePage(f.Page, f.PageSize)
	opts := options.Find().
		SetSort(sort).
		SetSkip(int64((page - 1) * pageSize)).
		SetLimit(int64(pageSize))

	bookings, err := r.find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	return bookings, int(total), nil
}

func (r *mongoRepository) Save(ctx context.Context, b *Booking) error {
	doc, err := toDocument(b)
	if err != nil {
		return err
	}

	if b.Status.IsActive() {
		taken, err := r.overlaps(ctx, doc)
		if err != nil {
			return err
		}
		if taken {
			return ErrSlotTaken
		}
	}

	doc.Version = b.Version + 1
	if b.Version == 0 {
		if _, err := r.col.InsertOne(ctx, doc); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return ErrStaleWrite
			}
			return fmt.Errorf("create booking failed: %w", err)
		}
		b.Version++
		return nil
	}

	res, err := r.col.ReplaceOne(ctx, bson.M{"_id": b.ID, "version": b.Version}, doc)
	if err != nil {
		return fmt.Errorf("update booking failed: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrStaleWrite
	}
	b.Version++
	return nil
}

func (r *mongoRepository) overlaps(ctx context.Context, doc *bookingDocument) (bool, error) {
	n, err := r.col.CountDocuments(ctx, bson.M{
		"_id":          bson.M{"$ne": doc.ID},
		"room_name":    doc.RoomName,
		"date":         doc.Date,
		"status":       bson.M{"$in": statusStrings(ActiveStatuses)},
		"start_minute": bson.M{"$lt": doc.EndMinute},
		"end_minute":   bson.M{"$gt": doc.StartMinute},
	}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("check booking overlap failed: %w", err)
	}
	return n > 0, nil
}

func (r *mongoRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*Booking, error) {
	cursor, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find bookings failed: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []bookingDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode bookings failed: %w", err)
	}
	out := make([]*Booking, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].toBooking())
	}
	return out, nil
}

func toDocument(b *Booking) (*bookingDocument, error) {
	r, err := timerange.ParseRange(b.StartTime, b.EndTime)
	if err != nil {
		return nil, fmt.Errorf("booking %s has malformed times: %w", b.ID, err)
	}
	doc := &bookingDocument{
		ID:              b.ID,
		RoomName:        b.RoomName,
		Date:            b.Date,
		StartMinute:     r.Start,
		EndMinute:       r.End,
		Purpose:         b.Purpose,
		Description:     b.Description,
		Attendees:       b.Attendees,
		Status:          string(b.Status),
		BookedBy:        actorToDocument(b.BookedBy),
		ApprovedAt:      b.ApprovedAt,
		RejectionReason: b.RejectionReason,
		Priority:        string(b.Priority),
		Urgent:          b.Urgent,
		CreatedAt:       b.CreatedAt,
		SubmittedAt:     b.SubmittedAt,
		UpdatedAt:       b.UpdatedAt,
		Version:         b.Version,
	}
	if m := b.AssignedManager; m != nil {
		doc.AssignedManager = &managerDocument{UserID: m.UserID, Name: m.Name, Email: m.Email}
	}
	if a := b.ApprovedBy; a != nil {
		ad := actorToDocument(*a)
		doc.ApprovedBy = &ad
	}
	return doc, nil
}

func (d *bookingDocument) toBooking() *Booking {
	b := &Booking{
		ID:              d.ID,
		RoomName:        d.RoomName,
		Date:            d.Date,
		StartTime:       timerange.FormatMinutes(d.StartMinute),
		EndTime:         timerange.FormatMinutes(d.EndMinute),
		Purpose:         d.Purpose,
		Description:     d.Description,
		Attendees:       d.Attendees,
		Status:          Status(d.Status),
		BookedBy:        d.BookedBy.toActor(),
		ApprovedAt:      d.ApprovedAt,
		RejectionReason: d.RejectionReason,
		Priority:        Priority(d.Priority),
		Urgent:          d.Urgent,
		CreatedAt:       d.CreatedAt,
		SubmittedAt:     d.SubmittedAt,
		UpdatedAt:       d.UpdatedAt,
		Version:         d.Version,
	}
	if m := d.AssignedManager; m != nil {
		b.AssignedManager = &ManagerRef{UserID: m.UserID, Name: m.Name, Email: m.Email}
	}
	if a := d.ApprovedBy; a != nil {
		actor := a.toActor()
		b.ApprovedBy = &actor
	}
	return b
}

func actorToDocument(a Actor) actorDocument {
	return actorDocument{
		UserID:     a.UserID,
		Name:       a.Name,
		Email:      a.Email,
		EmployeeID: a.EmployeeID,
		Department: a.Department,
		Role:       string(a.Role),
	}
}

func (d actorDocument) toActor() Actor {
	return Actor{
		UserID:     d.UserID,
		Name:       d.Name,
		Email:      d.Email,
		EmployeeID: d.EmployeeID,
		Department: d.Department,
		Role:       auth.ParseRole(d.Role),
	}
}
