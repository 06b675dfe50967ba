package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"telehealth-core/internal/data/entity"
	"telehealth-core/internal/data/repository"

	"github.com/google/uuid"
)

// memDB is an in-memory store. txMu serializes transactions the way row and
// advisory locks do; dataMu guards each individual read or write.
type memDB struct {
	txMu   sync.Mutex
	dataMu sync.Mutex

	bookings    map[uuid.UUID]entity.Booking
	payments    map[string]entity.Payment
	users       map[uuid.UUID]entity.User
	consultants map[uuid.UUID]entity.Consultant

	paymentFlips int
	failUpsert   error
	commits      int
	rollbacks    int
}

func newMemDB() *memDB {
	return &memDB{
		bookings:    map[uuid.UUID]entity.Booking{},
		payments:    map[string]entity.Payment{},
		users:       map[uuid.UUID]entity.User{},
		consultants: map[uuid.UUID]entity.Consultant{},
	}
}

func (db *memDB) repository() *repository.Repository {
	return &repository.Repository{
		Account: &memAccountRepo{db: db},
		Session: &memSessionRepo{},
		Booking: &memBookingRepo{db: db},
		Payment: &memPaymentRepo{db: db},
	}
}

type snapshot struct {
	bookings     map[uuid.UUID]entity.Booking
	payments     map[string]entity.Payment
	paymentFlips int
}

func (db *memDB) snapshot() snapshot {
	db.dataMu.Lock()
	defer db.dataMu.Unlock()
	s := snapshot{
		bookings:     make(map[uuid.UUID]entity.Booking, len(db.bookings)),
		payments:     make(map[string]entity.Payment, len(db.payments)),
		paymentFlips: db.paymentFlips,
	}
	for k, v := range db.bookings {
		s.bookings[k] = v
	}
	for k, v := range db.payments {
		s.payments[k] = v
	}
	return s
}

func (db *memDB) restore(s snapshot) {
	db.dataMu.Lock()
	defer db.dataMu.Unlock()
	db.bookings = s.bookings
	db.payments = s.payments
	db.paymentFlips = s.paymentFlips
}

func (db *memDB) addConsultant(hours entity.WorkingHours) uuid.UUID {
	id := uuid.New()
	db.users[id] = entity.User{Base: entity.Base{ID: id}, FullName: "Dr. Test", Email: "doc@example.com", Role: entity.RoleConsultant, IsActive: true}
	db.consultants[id] = entity.Consultant{UserID: id, FullName: "Dr. Test", IsApproved: true, WorkingHours: hours}
	return id
}

func (db *memDB) addPatient() uuid.UUID {
	id := uuid.New()
	db.users[id] = entity.User{Base: entity.Base{ID: id}, FullName: "Pat", Email: "pat@example.com", Role: entity.RolePatient, IsActive: true}
	return id
}

func (db *memDB) putBooking(b entity.Booking) {
	db.dataMu.Lock()
	defer db.dataMu.Unlock()
	db.bookings[b.ID] = b
}

func (db *memDB) booking(id uuid.UUID) entity.Booking {
	db.dataMu.Lock()
	defer db.dataMu.Unlock()
	return db.bookings[id]
}

// memTx runs fn under txMu and restores the pre-transaction state when fn fails.
type memTx struct {
	db *memDB
}

func (t *memTx) WithinTx(ctx context.Context, fn func(ctx context.Context, repo *repository.Repository) error) error {
	t.db.txMu.Lock()
	defer t.db.txMu.Unlock()

	before := t.db.snapshot()
	if err := fn(ctx, t.db.repository()); err != nil {
		t.db.restore(before)
		t.db.rollbacks++
		return err
	}
	t.db.commits++
	return nil
}

type memBookingRepo struct {
	db *memDB
}

func (r *memBookingRepo) Create(_ context.Context, b *entity.Booking) error {
	r.db.dataMu.Lock()
	defer r.db.dataMu.Unlock()
	r.db.bookings[b.ID] = *b
	return nil
}

func (r *memBookingRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.Booking, error) {
	r.db.dataMu.Lock()
	defer r.db.dataMu.Unlock()
	b, ok := r.db.bookings[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (r *memBookingRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.Booking, error) {
	return r.FindByID(ctx, id)
}

func (r *memBookingRepo) userBookings(userID uuid.UUID, status string) []*entity.Booking {
	var out []*entity.Booking
	for _, b := range r.db.bookings {
		if b.ConsultantID != userID && b.PatientID != userID {
			continue
		}
		if status != "" && string(b.Status) != status {
			continue
		}
		out = append(out, &b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppointmentDate.After(out[j].AppointmentDate) })
	return out
}

func (r *memBookingRepo) FindByUser(_ context.Context, userID uuid.UUID, status string, limit, offset int) ([]*entity.Booking, error) {
	r.db.dataMu.Lock()
	defer r.db.dataMu.Unlock()
	all := r.userBookings(userID, status)
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (r *memBookingRepo) CountByUser(_ context.Context, userID uuid.UUID, status string) (int64, error) {
	r.db.dataMu.Lock()
	defer r.db.dataMu.Unlock()
	return int64(len(r.userBookings(userID, status))), nil
}

func (r *memBookingRepo) Update(_ context.Context, b *entity.Booking) error {
	r.db.dataMu.Lock()
	defer r.db.dataMu.Unlock()
	if _, ok := r.db.bookings[b.ID]; !ok {
		return repository.ErrNotFound
	}
	r.db.bookings[b.ID] = *b
	return nil
}

func (r *memBookingRepo) FindByConsultantBetween(_ context.Context, consultantID uuid.UUID, from, to time.Time) ([]*entity.Booking, error) {
	r.db.dataMu.Lock()
	defer r.db.dataMu.Unlock()
	var out []*entity.Booking
	for _, b := range r.db.bookings {
		if b.ConsultantID == consultantID && !b.AppointmentDate.Before(from) && !b.AppointmentDate.After(to) {
			out = append(out, &b)
		}
	}
	return out, nil
}

func (r *memBookingRepo) ExistsInHour(_ context.Context, consultantID uuid.UUID, hourStart time.Time) (bool, error) {
	r.db.dataMu.Lock()
	defer r.db.dataMu.Unlock()
	end := hourStart.Add(time.Hour)
	for _, b := range r.db.bookings {
		if b.ConsultantID == consultantID && !b.AppointmentDate.Before(hourStart) && b.AppointmentDate.Before(end) {
			return true, nil
		}
	}
	return false, nil
}

func (r *memBookingRepo) LockSlot(context.Context, uuid.UUID, time.Time) error {
	return nil
}

func (r *memBookingRepo) FindStalePendingConfirmation(_ context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	r.db.dataMu.Lock()
	defer r.db.dataMu.Unlock()
	var out []uuid.UUID
	for _, b := range r.db.bookings {
		if b.Status == entity.BookingStatusPendingConfirmation && !b.PatientConfirmed &&
			b.ConsultantCompletedAt != nil && b.ConsultantCompletedAt.Before(cutoff) {
			out = append(out, b.ID)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *memBookingRepo) SetPaymentStatus(_ context.Context, bookingID uuid.UUID, paid bool) error {
	r.db.dataMu.Lock()
	defer r.db.dataMu.Unlock()
	b, ok := r.db.bookings[bookingID]
	if !ok {
		return repository.ErrNotFound
	}
	b.PaymentStatus = paid
	r.db.bookings[bookingID] = b
	if paid {
		r.db.paymentFlips++
	}
	return nil
}

type memPaymentRepo struct {
	db *memDB
}

func (r *memPaymentRepo) FindByReference(_ context.Context, reference string) (*entity.Payment, error) {
	r.db.dataMu.Lock()
	defer r.db.dataMu.Unlock()
	p, ok := r.db.payments[reference]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *memPaymentRepo) FindByReferenceForUpdate(ctx context.Context, reference string) (*entity.Payment, error) {
	return r.FindByReference(ctx, reference)
}

func (r *memPaymentRepo) FindSuccessByBookingID(_ context.Context, bookingID uuid.UUID) (*entity.Payment, error) {
	r.db.dataMu.Lock()
	defer r.db.dataMu.Unlock()
	var found *entity.Payment
	for _, p := range r.db.payments {
		if p.BookingID == nil || *p.BookingID != bookingID || p.Status != entity.PaymentStatusSuccess {
			continue
		}
		if found == nil || p.CreatedAt.Before(found.CreatedAt) {
			p := p
			found = &p
		}
	}
	return found, nil
}

func (r *memPaymentRepo) Upsert(_ context.Context, p *entity.Payment) error {
	r.db.dataMu.Lock()
	defer r.db.dataMu.Unlock()
	if r.db.failUpsert != nil {
		return r.db.failUpsert
	}
	r.db.payments[p.Reference] = *p
	return nil
}

func (r *memPaymentRepo) LockReference(context.Context, string) error {
	return nil
}

func (r *memPaymentRepo) UpdateStatusByReferenceAndPatient(_ context.Context, reference string, patientID uuid.UUID, status entity.PaymentStatus) (bool, error) {
	r.db.dataMu.Lock()
	defer r.db.dataMu.Unlock()
	p, ok := r.db.payments[reference]
	if !ok || p.PatientID != patientID || p.Status != entity.PaymentStatusSuccess {
		return false, nil
	}
	p.Status = status
	r.db.payments[reference] = p
	return true, nil
}

type memAccountRepo struct {
	db *memDB
}

func (r *memAccountRepo) FindUser(_ context.Context, id uuid.UUID) (*entity.User, error) {
	u, ok := r.db.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r *memAccountRepo) FindConsultant(_ context.Context, id uuid.UUID) (*entity.Consultant, error) {
	c, ok := r.db.consultants[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

type memSessionRepo struct{}

func (memSessionRepo) FindValidSession(context.Context, string) (*entity.Session, error) {
	return nil, nil
}

// recordingNotifier captures notifications for assertions.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
	fail error
}

func (n *recordingNotifier) Notify(_ context.Context, note Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note)
	return n.fail
}

func (n *recordingNotifier) all() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.sent...)
}

type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
}

func (p *recordingPublisher) PublishJSON(_ context.Context, key string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	return nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
