package booking

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"rentalplatform/internal/common/database"
	"rentalplatform/internal/common/money"
	"rentalplatform/internal/fees"
	"rentalplatform/internal/member"
	"rentalplatform/internal/vehicle"
)

// memStore is an in-memory Store that mirrors the conditional-update
// semantics of the SQL implementation.
type memStore struct {
	bookings map[string]*Booking
	events   map[string]bool
}

func newMemStore() *memStore {
	return &memStore{bookings: make(map[string]*Booking), events: make(map[string]bool)}
}

func (m *memStore) Create(_ context.Context, b *Booking) error {
	m.bookings[b.ID] = b
	return nil
}

func (m *memStore) Get(_ context.Context, id string) (*Booking, error) {
	b, ok := m.bookings[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *memStore) Resolve(ctx context.Context, ref string) (*Booking, error) {
	if b, err := m.Get(ctx, ref); err == nil {
		return b, nil
	}
	for _, b := range m.bookings {
		if b.CustomID == ref {
			cp := *b
			return &cp, nil
		}
	}
	return nil, database.ErrNotFound
}

func (m *memStore) ListByUser(_ context.Context, email string, _, _ int) ([]*Booking, error) {
	var out []*Booking
	for _, b := range m.bookings {
		if b.UserEmail == email {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) ListByStatus(_ context.Context, status Status, _, _ int) ([]*Booking, error) {
	var out []*Booking
	for _, b := range m.bookings {
		if NormalizeStatus(b.Status) == status {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) Delete(_ context.Context, id string) error {
	if _, ok := m.bookings[id]; !ok {
		return database.ErrNotFound
	}
	delete(m.bookings, id)
	return nil
}

func (m *memStore) Transition(_ context.Context, id string, from, to Status) error {
	b, ok := m.bookings[id]
	if !ok {
		return database.ErrNotFound
	}
	if NormalizeStatus(b.Status) != NormalizeStatus(from) {
		return database.ErrConflict
	}
	b.Status = to
	return nil
}

func (m *memStore) MarkRented(_ context.Context, id string) error {
	b, ok := m.bookings[id]
	if !ok {
		return database.ErrNotFound
	}
	if b.Status.IsTerminal() {
		return database.ErrConflict
	}
	if b.RentedAt == nil {
		now := time.Now().UTC()
		b.RentedAt = &now
	}
	b.Status = StatusRented
	return nil
}

func (m *memStore) ApplyPaymentSucceeded(_ context.Context, id, intentID string, amountCents int64, at time.Time) error {
	b, ok := m.bookings[id]
	if !ok {
		return database.ErrNotFound
	}
	switch NormalizeStatus(b.Status) {
	case StatusPending, StatusAccepted:
		b.Status = StatusAccepted
	}
	b.LastPaymentAt = &at
	b.LastPaymentIntentID = intentID
	b.LastPaymentAmount = amountCents
	b.LastPaymentStatus = "succeeded"
	return nil
}

func (m *memStore) ApplyPaymentFailed(_ context.Context, id, intentID string, at time.Time) error {
	b, ok := m.bookings[id]
	if !ok {
		return database.ErrNotFound
	}
	b.LastPaymentAt = &at
	b.LastPaymentIntentID = intentID
	b.LastPaymentStatus = "failed"
	return nil
}

func (m *memStore) ApplyExtension(_ context.Context, id, eventID, intentID string, amountCents, lateFeeCents, weeklyCents int64, at time.Time) (bool, error) {
	if m.events[eventID] {
		return false, nil
	}
	m.events[eventID] = true

	b, ok := m.bookings[id]
	if !ok {
		return false, nil
	}
	if b.Status.IsTerminal() {
		return false, nil
	}
	ret, _ := fees.ParseReturnDate(b.ReturnDate)
	b.ReturnDate = ret.AddDate(0, 0, 7).Format(fees.ReturnDateLayout)
	b.ExtensionsCount++
	b.Status = StatusRented
	b.LastExtensionLateFee = lateFeeCents
	b.LastExtensionWeeklyPrice = weeklyCents
	b.LastPaymentAt = &at
	b.LastPaymentIntentID = intentID
	b.LastPaymentAmount = amountCents
	b.LastPaymentStatus = "succeeded"
	if lateFeeCents > 0 {
		b.LateFeePaid = true
	}
	return true, nil
}

func (m *memStore) MarkLateFeePaid(_ context.Context, id, intentID string, lateFeeCents int64, at time.Time) error {
	b, ok := m.bookings[id]
	if !ok {
		return database.ErrNotFound
	}
	if b.Status == StatusCancelled || b.Status == StatusRejected {
		return database.ErrConflict
	}
	b.LateFeePaid = true
	b.LateFeeCents = lateFeeCents
	b.PaidAt = &at
	b.Status = StatusPaid
	b.LastPaymentIntentID = intentID
	return nil
}

func (m *memStore) SetWalletLinkage(_ context.Context, id, orderID, captureID, status string, amountCents int64) error {
	b, ok := m.bookings[id]
	if !ok {
		return database.ErrNotFound
	}
	b.LastWalletOrderID = orderID
	b.LastWalletCaptureID = captureID
	b.LastWalletStatus = status
	b.LastWalletAmount = amountCents
	return nil
}

func (m *memStore) HasOutstandingDebt(_ context.Context, email string) (bool, error) {
	for _, b := range m.bookings {
		if b.UserEmail == email && !b.LateFeePaid {
			if s := NormalizeStatus(b.Status); s == StatusRented || s == StatusExtended {
				return true, nil
			}
		}
	}
	return false, nil
}

type memVehicles struct {
	vehicles map[string]*vehicle.Vehicle
}

func (m *memVehicles) Get(_ context.Context, id string) (*vehicle.Vehicle, error) {
	v, ok := m.vehicles[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return v, nil
}

func (m *memVehicles) List(_ context.Context, _ bool) ([]*vehicle.Vehicle, error) { return nil, nil }

func (m *memVehicles) Create(_ context.Context, v *vehicle.Vehicle) error {
	m.vehicles[v.ID] = v
	return nil
}

func (m *memVehicles) SetFlags(_ context.Context, id string, pending, available bool) error {
	v, ok := m.vehicles[id]
	if !ok {
		return database.ErrNotFound
	}
	v.PendingBooking = pending
	v.Available = available
	return nil
}

type memMembers struct {
	members map[string]*member.Member
}

func (m *memMembers) Get(_ context.Context, email string) (*member.Member, error) {
	mm, ok := m.members[email]
	if !ok {
		return nil, database.ErrNotFound
	}
	return mm, nil
}

func (m *memMembers) GetByCustomerID(_ context.Context, customerID string) (*member.Member, error) {
	for _, mm := range m.members {
		if mm.ProcessorCustomerID == customerID {
			return mm, nil
		}
	}
	return nil, database.ErrNotFound
}

func (m *memMembers) Ensure(_ context.Context, email, name, phone string) (*member.Member, error) {
	if mm, ok := m.members[email]; ok {
		return mm, nil
	}
	mm := &member.Member{Email: email, Name: name, Phone: phone}
	m.members[email] = mm
	return mm, nil
}

func (m *memMembers) LinkCard(_ context.Context, email, customerID, paymentMethodID string) error {
	mm, ok := m.members[email]
	if !ok {
		return database.ErrNotFound
	}
	mm.ProcessorCustomerID = customerID
	mm.DefaultPaymentMethodID = paymentMethodID
	mm.CardOnFile = true
	return nil
}

func (m *memMembers) UnlinkCard(_ context.Context, email string) error {
	mm, ok := m.members[email]
	if !ok {
		return database.ErrNotFound
	}
	mm.DefaultPaymentMethodID = ""
	mm.CardOnFile = false
	mm.RemovalWaiver = false
	return nil
}

func (m *memMembers) SetWaiver(_ context.Context, email string, granted bool, grantedBy string) error {
	mm, ok := m.members[email]
	if !ok {
		return database.ErrNotFound
	}
	mm.RemovalWaiver = granted
	mm.WaiverGrantedBy = grantedBy
	return nil
}

func (m *memMembers) AcceptTerms(_ context.Context, email, version string) error {
	mm, ok := m.members[email]
	if !ok {
		return database.ErrNotFound
	}
	mm.TermsVersion = version
	return nil
}

type fakeCharger struct {
	intentID string
	err      error
	charged  []money.Money
}

func (f *fakeCharger) ChargeOffSession(_ context.Context, _, _ string, amount money.Money, _ map[string]string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.charged = append(f.charged, amount)
	return f.intentID, nil
}

type authRequiredErr struct{}

func (authRequiredErr) Error() string                { return "authentication required" }
func (authRequiredErr) AuthenticationRequired() bool { return true }

func newTestService(t *testing.T, store Store, members member.Store, charger Charger) (*Service, *memVehicles) {
	t.Helper()
	vehicles := &memVehicles{vehicles: map[string]*vehicle.Vehicle{
		"veh_1": {ID: "veh_1", WeeklyRateCents: 28000, Available: true},
	}}
	if members == nil {
		members = &memMembers{members: map[string]*member.Member{}}
	}
	logger := slog.Default()
	svc := NewService(store, vehicles, members, nil, charger, nil, logger)
	return svc, vehicles
}

func seedBooking(store *memStore, id string, status Status, returnDate string) *Booking {
	b := &Booking{
		ID:         id,
		VehicleID:  "veh_1",
		UserEmail:  "renter@example.com",
		PickupDate: "2025-01-25",
		ReturnDate: returnDate,
		Weeks:      1,
		Status:     status,
		RateCents:  28000,
	}
	store.bookings[id] = b
	return b
}

func TestCreateDerivesReturnDate(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(t, store, nil, nil)

	b, err := svc.Create(context.Background(), CreateRequest{
		VehicleID:  "veh_1",
		UserEmail:  "renter@example.com",
		PickupDate: "2025-01-04",
		Weeks:      2,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if b.ReturnDate != "2025-01-18" {
		t.Errorf("return date = %s, want 2025-01-18", b.ReturnDate)
	}
	if b.Status != StatusPending {
		t.Errorf("status = %s, want pending", b.Status)
	}
	if b.RateCents != 28000 {
		t.Errorf("rate = %d, want frozen vehicle rate 28000", b.RateCents)
	}
}

func TestCreateRejectsUnavailableVehicle(t *testing.T) {
	store := newMemStore()
	svc, vehicles := newTestService(t, store, nil, nil)
	vehicles.vehicles["veh_1"].Available = false

	_, err := svc.Create(context.Background(), CreateRequest{
		VehicleID:  "veh_1",
		UserEmail:  "renter@example.com",
		PickupDate: "2025-01-04",
		Weeks:      1,
	})
	if !errors.Is(err, ErrVehicleUnavailable) {
		t.Errorf("expected ErrVehicleUnavailable, got %v", err)
	}
}

// A pending booking that receives a failed-payment callback keeps its status
// and records the failed attempt.
func TestPaymentFailedLeavesStatusUntouched(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(t, store, nil, nil)
	seedBooking(store, "b1", StatusPending, "2025-02-01")

	err := svc.PaymentFailed(context.Background(), PaymentEvent{
		Ref: "b1", EventID: "evt_1", IntentID: "pi_1", Provider: "card", OccurredAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("PaymentFailed: %v", err)
	}

	b, _ := store.Get(context.Background(), "b1")
	if b.Status != StatusPending {
		t.Errorf("status = %s, want pending", b.Status)
	}
	if b.LastPaymentStatus != "failed" {
		t.Errorf("last payment status = %s, want failed", b.LastPaymentStatus)
	}
}

// An accepted booking that receives a plain payment-succeeded stays accepted
// and records the amount.
func TestPaymentSucceededOnAccepted(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(t, store, nil, nil)
	seedBooking(store, "b2", StatusAccepted, "2025-02-01")

	err := svc.PaymentSucceeded(context.Background(), PaymentEvent{
		Ref: "b2", EventID: "evt_2", IntentID: "pi_2", Provider: "card",
		AmountCents: 28000, OccurredAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("PaymentSucceeded: %v", err)
	}

	b, _ := store.Get(context.Background(), "b2")
	if b.Status != StatusAccepted {
		t.Errorf("status = %s, want accepted", b.Status)
	}
	if b.LastPaymentAmount != 28000 {
		t.Errorf("last payment amount = %d, want 28000", b.LastPaymentAmount)
	}
}

// A rented booking never downgrades to accepted on a late duplicate delivery.
func TestPaymentSucceededNeverDowngradesRented(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(t, store, nil, nil)
	seedBooking(store, "b_rented", StatusRented, "2025-02-01")

	err := svc.PaymentSucceeded(context.Background(), PaymentEvent{
		Ref: "b_rented", EventID: "evt_3", IntentID: "pi_3", Provider: "card",
		AmountCents: 28000, OccurredAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("PaymentSucceeded: %v", err)
	}

	b, _ := store.Get(context.Background(), "b_rented")
	if b.Status != StatusRented {
		t.Errorf("status = %s, want rented (non-regression)", b.Status)
	}
	if b.LastPaymentIntentID != "pi_3" {
		t.Errorf("payment fields should still be stamped")
	}
}

// A late or duplicate payment-succeeded for a booking already out on rental
// must not flip the vehicle back to the accepted (pending) flag state.
func TestPaymentSucceededKeepsRentedVehicleFlags(t *testing.T) {
	store := newMemStore()
	svc, vehicles := newTestService(t, store, nil, nil)
	seedBooking(store, "b_rented", StatusRented, "2025-02-01")
	vehicles.vehicles["veh_1"].PendingBooking = false
	vehicles.vehicles["veh_1"].Available = false

	err := svc.PaymentSucceeded(context.Background(), PaymentEvent{
		Ref: "b_rented", EventID: "evt_3b", IntentID: "pi_3b", Provider: "card",
		AmountCents: 28000, OccurredAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("PaymentSucceeded: %v", err)
	}

	v := vehicles.vehicles["veh_1"]
	if v.PendingBooking || v.Available {
		t.Errorf("vehicle flags regressed on rented booking: pending=%v available=%v, want false/false",
			v.PendingBooking, v.Available)
	}
}

// A payment for a pre-rented booking still moves the vehicle into the
// accepted flag state.
func TestPaymentSucceededSetsAcceptedVehicleFlags(t *testing.T) {
	store := newMemStore()
	svc, vehicles := newTestService(t, store, nil, nil)
	seedBooking(store, "b_pending", StatusPending, "2025-02-01")
	vehicles.vehicles["veh_1"].PendingBooking = false
	vehicles.vehicles["veh_1"].Available = true

	err := svc.PaymentSucceeded(context.Background(), PaymentEvent{
		Ref: "b_pending", EventID: "evt_3c", IntentID: "pi_3c", Provider: "card",
		AmountCents: 28000, OccurredAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("PaymentSucceeded: %v", err)
	}

	v := vehicles.vehicles["veh_1"]
	if !v.PendingBooking || !v.Available {
		t.Errorf("vehicle flags = pending=%v available=%v, want true/true",
			v.PendingBooking, v.Available)
	}
}

// A payment-succeeded for a cancelled booking must not resurrect it.
func TestPaymentSucceededDoesNotResurrectCancelled(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(t, store, nil, nil)
	seedBooking(store, "b_cancelled", StatusCancelled, "2025-02-01")

	err := svc.PaymentSucceeded(context.Background(), PaymentEvent{
		Ref: "b_cancelled", EventID: "evt_4", IntentID: "pi_4", Provider: "card",
		AmountCents: 28000, OccurredAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("PaymentSucceeded: %v", err)
	}

	b, _ := store.Get(context.Background(), "b_cancelled")
	if b.Status != StatusCancelled {
		t.Errorf("status = %s, cancelled booking must stay cancelled", b.Status)
	}
}

// A successful extension payment pushes the return date exactly one week and
// records the charged fee.
func TestExtensionMovesReturnDateOneWeek(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(t, store, nil, nil)
	seedBooking(store, "b3", StatusRented, "2025-02-01")

	err := svc.PaymentSucceeded(context.Background(), PaymentEvent{
		Ref: "b3_extend1w", EventID: "evt_ext_1", IntentID: "pi_5", Provider: "card",
		AmountCents: 31000, LateFeeCents: 3000, WeeklyCents: 28000, OccurredAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("PaymentSucceeded: %v", err)
	}

	b, _ := store.Get(context.Background(), "b3")
	if b.ReturnDate != "2025-02-08" {
		t.Errorf("return date = %s, want 2025-02-08", b.ReturnDate)
	}
	if b.ExtensionsCount != 1 {
		t.Errorf("extensions count = %d, want 1", b.ExtensionsCount)
	}
	if b.LastExtensionLateFee != 3000 {
		t.Errorf("last extension late fee = %d, want 3000", b.LastExtensionLateFee)
	}
}

// Redelivering the same extension event must add seven days exactly once.
func TestExtensionRedeliveryAppliedOnce(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(t, store, nil, nil)
	seedBooking(store, "b3", StatusRented, "2025-02-01")

	ev := PaymentEvent{
		Ref: "b3_extend1w", EventID: "evt_dup", IntentID: "pi_6", Provider: "card",
		AmountCents: 28000, WeeklyCents: 28000, OccurredAt: time.Now(),
	}
	for i := 0; i < 3; i++ {
		if err := svc.PaymentSucceeded(context.Background(), ev); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}

	b, _ := store.Get(context.Background(), "b3")
	if b.ReturnDate != "2025-02-08" {
		t.Errorf("return date = %s, want 2025-02-08 after redeliveries", b.ReturnDate)
	}
	if b.ExtensionsCount != 1 {
		t.Errorf("extensions count = %d, want exactly 1", b.ExtensionsCount)
	}
}

// Two distinct extension events add seven days each.
func TestTwoDistinctExtensions(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(t, store, nil, nil)
	seedBooking(store, "b3", StatusRented, "2025-02-01")

	for i, eventID := range []string{"evt_a", "evt_b"} {
		err := svc.PaymentSucceeded(context.Background(), PaymentEvent{
			Ref: "b3_extend1w", EventID: eventID, IntentID: "pi", Provider: "card",
			AmountCents: 28000, WeeklyCents: 28000, OccurredAt: time.Now(),
		})
		if err != nil {
			t.Fatalf("extension %d: %v", i, err)
		}
	}

	b, _ := store.Get(context.Background(), "b3")
	if b.ReturnDate != "2025-02-15" {
		t.Errorf("return date = %s, want 2025-02-15", b.ReturnDate)
	}
	if b.ExtensionsCount != 2 {
		t.Errorf("extensions count = %d, want 2", b.ExtensionsCount)
	}
}

// A payment for an unknown booking is dropped without error, since the
// processor cannot fix a missing record by retrying.
func TestPaymentForUnknownBookingDropped(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(t, store, nil, nil)

	err := svc.PaymentSucceeded(context.Background(), PaymentEvent{
		Ref: "missing", EventID: "evt", IntentID: "pi", Provider: "card", OccurredAt: time.Now(),
	})
	if err != nil {
		t.Errorf("unknown booking should be dropped without error, got %v", err)
	}
}

func TestChargeLateFeeNotLate(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(t, store, nil, &fakeCharger{intentID: "pi_fee"})
	future := time.Now().UTC().AddDate(0, 0, 14).Format(fees.ReturnDateLayout)
	seedBooking(store, "b_ontime", StatusRented, future)

	res, err := svc.ChargeLateFee(context.Background(), "b_ontime")
	if err != nil {
		t.Fatalf("ChargeLateFee: %v", err)
	}
	if res.Charged || res.Reason != ReasonNotLate {
		t.Errorf("got %+v, want charged=false reason=not_late", res)
	}
}

func TestChargeLateFeeNoSavedCard(t *testing.T) {
	store := newMemStore()
	members := &memMembers{members: map[string]*member.Member{
		"renter@example.com": {Email: "renter@example.com"},
	}}
	svc, _ := newTestService(t, store, members, &fakeCharger{intentID: "pi_fee"})
	seedBooking(store, "b_late", StatusRented, "2025-01-01")

	res, err := svc.ChargeLateFee(context.Background(), "b_late")
	if err != nil {
		t.Fatalf("ChargeLateFee: %v", err)
	}
	if res.Charged || res.Reason != ReasonNoSavedCard {
		t.Errorf("got %+v, want charged=false reason=no_saved_card", res)
	}
}

func TestChargeLateFeeChargesExactFee(t *testing.T) {
	store := newMemStore()
	members := &memMembers{members: map[string]*member.Member{
		"renter@example.com": {
			Email:                  "renter@example.com",
			ProcessorCustomerID:    "cus_1",
			DefaultPaymentMethodID: "pm_1",
			CardOnFile:             true,
		},
	}}
	charger := &fakeCharger{intentID: "pi_fee"}
	svc, _ := newTestService(t, store, members, charger)

	// 10 days overdue: 240h * 1500 = 360000, capped at 20000.
	overdue := time.Now().UTC().AddDate(0, 0, -10).Format(fees.ReturnDateLayout)
	seedBooking(store, "b_late", StatusRented, overdue)

	res, err := svc.ChargeLateFee(context.Background(), "b_late")
	if err != nil {
		t.Fatalf("ChargeLateFee: %v", err)
	}
	if !res.Charged {
		t.Fatalf("expected charge, got %+v", res)
	}
	if res.LateFeeCents != fees.LateFeeCapCents {
		t.Errorf("fee = %d, want capped %d", res.LateFeeCents, fees.LateFeeCapCents)
	}
	if len(charger.charged) != 1 || charger.charged[0].AmountMinor != fees.LateFeeCapCents {
		t.Errorf("charged amounts = %v, want exactly the fee with no surcharge", charger.charged)
	}

	b, _ := store.Get(context.Background(), "b_late")
	if !b.LateFeePaid || b.Status != StatusPaid {
		t.Errorf("booking not closed out: lateFeePaid=%v status=%s", b.LateFeePaid, b.Status)
	}
}

func TestChargeLateFeeSurfacesAuthRequired(t *testing.T) {
	store := newMemStore()
	members := &memMembers{members: map[string]*member.Member{
		"renter@example.com": {
			Email:                  "renter@example.com",
			ProcessorCustomerID:    "cus_1",
			DefaultPaymentMethodID: "pm_1",
			CardOnFile:             true,
		},
	}}
	svc, _ := newTestService(t, store, members, &fakeCharger{err: authRequiredErr{}})
	overdue := time.Now().UTC().AddDate(0, 0, -2).Format(fees.ReturnDateLayout)
	seedBooking(store, "b_late", StatusRented, overdue)

	res, err := svc.ChargeLateFee(context.Background(), "b_late")
	if err != nil {
		t.Fatalf("ChargeLateFee: %v", err)
	}
	if res.Charged || res.Reason != ReasonAuthRequired {
		t.Errorf("got %+v, want charged=false reason=authentication_required", res)
	}

	b, _ := store.Get(context.Background(), "b_late")
	if b.LateFeePaid {
		t.Error("late fee must not be marked paid when authentication is required")
	}
}

func TestAcceptTogglesVehiclePending(t *testing.T) {
	store := newMemStore()
	svc, vehicles := newTestService(t, store, nil, nil)
	seedBooking(store, "b_new", StatusPending, "2025-02-01")

	b, err := svc.Accept(context.Background(), "b_new", "admin@example.com")
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if b.Status != StatusAccepted {
		t.Errorf("status = %s, want accepted", b.Status)
	}
	v := vehicles.vehicles["veh_1"]
	if !v.PendingBooking || !v.Available {
		t.Errorf("vehicle flags = pending=%v available=%v, want true/true", v.PendingBooking, v.Available)
	}
}

func TestRejectReleasesVehicle(t *testing.T) {
	store := newMemStore()
	svc, vehicles := newTestService(t, store, nil, nil)
	vehicles.vehicles["veh_1"].PendingBooking = true
	seedBooking(store, "b_new", StatusAccepted, "2025-02-01")

	b, err := svc.Reject(context.Background(), "b_new", "admin@example.com")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if b.Status != StatusRejected {
		t.Errorf("status = %s, want rejected", b.Status)
	}
	v := vehicles.vehicles["veh_1"]
	if v.PendingBooking || !v.Available {
		t.Errorf("vehicle flags = pending=%v available=%v, want false/true", v.PendingBooking, v.Available)
	}
}

func TestMarkRentedStampsRentedAtOnce(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(t, store, nil, nil)
	seedBooking(store, "b_new", StatusAccepted, "2025-02-01")

	b, err := svc.MarkRented(context.Background(), "b_new", "admin@example.com")
	if err != nil {
		t.Fatalf("MarkRented: %v", err)
	}
	if b.RentedAt == nil {
		t.Fatal("rented_at not stamped")
	}
	first := *b.RentedAt

	b2, err := svc.MarkRented(context.Background(), "b_new", "admin@example.com")
	if err != nil {
		t.Fatalf("second MarkRented: %v", err)
	}
	if b2.RentedAt == nil || !b2.RentedAt.Equal(first) {
		t.Error("rented_at must be stamped exactly once")
	}
}

func TestCancelTerminalBookingRejected(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(t, store, nil, nil)
	seedBooking(store, "b_done", StatusCancelled, "2025-02-01")

	_, err := svc.Cancel(context.Background(), "b_done", "renter@example.com")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestResolveByCustomID(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(t, store, nil, nil)
	b := seedBooking(store, "b_doc_id", StatusPending, "2025-02-01")
	b.CustomID = "RENT-2025-0042"

	got, err := svc.Get(context.Background(), "RENT-2025-0042")
	if err != nil {
		t.Fatalf("Get by custom id: %v", err)
	}
	if got.ID != "b_doc_id" {
		t.Errorf("resolved %s, want b_doc_id", got.ID)
	}
}
