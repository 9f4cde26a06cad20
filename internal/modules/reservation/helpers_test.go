package reservation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"chargeslot/internal/database"
	"chargeslot/internal/domain"
	"chargeslot/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testNow = time.Date(2030, 5, 14, 8, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return time.Date(2030, 5, 14, hour, minute, 0, 0, time.UTC)
}

type fakeReceipts struct {
	mu        sync.Mutex
	err       error
	generated []int64
	content   map[string][]byte
}

func newFakeReceipts() *fakeReceipts {
	return &fakeReceipts{content: map[string][]byte{}}
}

func (f *fakeReceipts) Generate(_ context.Context, r *domain.Reservation) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generated = append(f.generated, r.ID)
	if f.err != nil {
		return "", f.err
	}
	handle := fmt.Sprintf("2030/05/14/reservation-%d.pdf", r.ID)
	f.content[handle] = []byte("%PDF-fake " + r.Status)
	return handle, nil
}

func (f *fakeReceipts) GetContent(_ context.Context, handle string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.content[handle]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return body, nil
}

var errReceiptDown = errors.New("receipt renderer unreachable")

type env struct {
	db       *gorm.DB
	svc      *Service
	receipts *fakeReceipts
	owner    domain.User
	client   domain.User
	other    domain.User
	station  domain.Station
}

func setupEnv(t *testing.T) *env {
	t.Helper()
	dsn := fmt.Sprintf("file:reservation_test_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), database.Config(logger.Silent))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))

	e := &env{
		db:       db,
		receipts: newFakeReceipts(),
		owner:    domain.User{Email: "owner@example.com", Role: domain.RoleOwner, Name: "Olga Owner"},
		client:   domain.User{Email: "client@example.com", Role: domain.RoleClient, Name: "Carl Client"},
		other:    domain.User{Email: "other@example.com", Role: domain.RoleClient, Name: "Otto Other"},
	}
	require.NoError(t, db.Create(&e.owner).Error)
	require.NoError(t, db.Create(&e.client).Error)
	require.NoError(t, db.Create(&e.other).Error)

	e.station = domain.Station{
		OwnerID:       e.owner.ID,
		Name:          "Bay 1",
		RatePerMinute: decimal.RequireFromString("0.50"),
		Status:        domain.StationAvailable,
	}
	require.NoError(t, db.Create(&e.station).Error)

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	e.svc = NewService(repository.NewReservationRepository(db), e.receipts, log)
	e.svc.now = func() time.Time { return testNow }
	return e
}

func (e *env) addStation(t *testing.T, status domain.StationStatus) domain.Station {
	t.Helper()
	st := domain.Station{
		OwnerID:       e.owner.ID,
		Name:          "Bay " + string(status),
		RatePerMinute: decimal.RequireFromString("0.25"),
		Status:        status,
	}
	require.NoError(t, e.db.Create(&st).Error)
	return st
}

func (e *env) insert(t *testing.T, start, end time.Time, status domain.ReservationStatus) domain.Reservation {
	t.Helper()
	r := domain.Reservation{
		StationID:     e.station.ID,
		UserID:        e.other.ID,
		StartTime:     start,
		EndTime:       end,
		RatePerMinute: e.station.RatePerMinute,
		TotalPrice:    decimal.NewFromInt(30),
		Status:        status,
	}
	require.NoError(t, e.db.Create(&r).Error)
	return r
}

func (e *env) status(t *testing.T, id int64) domain.ReservationStatus {
	t.Helper()
	var r domain.Reservation
	require.NoError(t, e.db.First(&r, id).Error)
	return r.Status
}

func (e *env) create(t *testing.T, start, end time.Time) *domain.Reservation {
	t.Helper()
	r, err := e.svc.Create(context.Background(), e.client.ID, e.station.ID, start, end)
	require.NoError(t, err)
	return r
}
