package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"dealdesk/internal/lifecycle"
	"dealdesk/internal/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})
	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	return gormDB, mock, mockDB
}

func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&model.Partner{},
		&model.Deal{},
		&model.DealQuote{},
		&model.StatusHistory{},
	))
	return db
}

func TestDealRepository_UpdateStatus(t *testing.T) {
	t.Run("compare and swap on version", func(t *testing.T) {
		db, mock, mockDB := newMockDB(t)
		defer mockDB.Close()
		repo := NewDealRepository(db)
		id := uuid.New()

		mock.ExpectExec(`UPDATE "deals" SET .*"status"=\$\d+.*"version"=version \+ 1 WHERE id = \$\d+ AND version = \$\d+`).
			WithArgs(lifecycle.M02, sqlmock.AnyArg(), id, int64(3)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.UpdateStatus(context.Background(), id, 3, lifecycle.M02))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stale version is a conflict", func(t *testing.T) {
		db, mock, mockDB := newMockDB(t)
		defer mockDB.Close()
		repo := NewDealRepository(db)
		id := uuid.New()

		mock.ExpectExec(`UPDATE "deals" SET .* WHERE id = \$\d+ AND version = \$\d+`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.UpdateStatus(context.Background(), id, 7, lifecycle.M05)
		assert.ErrorIs(t, err, ErrVersionConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDealRepository_FindByIDForUpdate(t *testing.T) {
	db, mock, mockDB := newMockDB(t)
	defer mockDB.Close()
	repo := NewDealRepository(db)
	id := uuid.New()

	rows := sqlmock.NewRows([]string{"id", "code", "client_id", "category", "material", "quantity", "status", "version"}).
		AddRow(id.String(), "DL-202601-0001", uuid.New().String(), "Mailer Box", "Kraft", 1000, "M04", 4)
	mock.ExpectQuery(`SELECT \* FROM "deals" WHERE id = \$1 ORDER BY .* LIMIT .* FOR UPDATE`).
		WithArgs(id, 1).
		WillReturnRows(rows)

	deal, err := repo.FindByIDForUpdate(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.M04, deal.Status)
	assert.Equal(t, int64(4), deal.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func seedDeal(t *testing.T, db *gorm.DB) (*model.Deal, *model.Partner) {
	t.Helper()
	client := &model.Partner{Code: "C1", Name: "Client", Type: model.PartnerTypeClient}
	factory := &model.Partner{Code: "F1", Name: "Factory", Type: model.PartnerTypeFactory}
	require.NoError(t, db.Create(client).Error)
	require.NoError(t, db.Create(factory).Error)
	deal := &model.Deal{Code: "DL-1", ClientID: client.ID, Category: "Box", Material: "Kraft", Quantity: 100, Status: lifecycle.M01, Version: 1}
	require.NoError(t, db.Create(deal).Error)
	return deal, factory
}

func TestStatusHistoryRepository(t *testing.T) {
	db := newSQLiteDB(t)
	repo := NewStatusHistoryRepository(db)
	ctx := context.Background()
	deal, _ := seedDeal(t, db)

	from := string(lifecycle.M01)
	for _, e := range []*model.StatusHistory{
		{DealID: deal.ID, ToStatus: string(lifecycle.M01), Action: "create", ChangedAt: time.Now().UTC()},
		{DealID: deal.ID, FromStatus: &from, ToStatus: string(lifecycle.M02), Action: "sendQuoteRequest", ChangedAt: time.Now().UTC()},
	} {
		require.NoError(t, repo.Append(ctx, e))
	}

	entries, err := repo.ListByDeal(ctx, deal.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(1), entries[0].Seq)
	assert.Equal(t, int64(2), entries[1].Seq)

	latest, err := repo.Latest(ctx, deal.ID)
	require.NoError(t, err)
	assert.Equal(t, string(lifecycle.M02), latest.ToStatus)

	t.Run("rows cannot be edited or deleted", func(t *testing.T) {
		err := db.Model(latest).Update("note", "rewritten").Error
		assert.ErrorIs(t, err, model.ErrAppendOnly)
		err = db.Delete(latest).Error
		assert.ErrorIs(t, err, model.ErrAppendOnly)

		entries, err := repo.ListByDeal(ctx, deal.ID)
		require.NoError(t, err)
		assert.Len(t, entries, 2)
		assert.Empty(t, entries[1].Note)
	})
}

func TestDealQuoteRepository_Approve(t *testing.T) {
	db := newSQLiteDB(t)
	repo := NewDealQuoteRepository(db)
	ctx := context.Background()
	deal, factory := seedDeal(t, db)

	newQuote := func(status string) *model.DealQuote {
		q := &model.DealQuote{
			DealID:              deal.ID,
			FactoryID:           factory.ID,
			Status:              status,
			FactoryUnitPriceUsd: decimal.NewFromInt(1),
			Quantity:            100,
			CostRatio:           decimal.RequireFromString("0.55"),
			ExchangeRate:        decimal.NewFromInt(150),
			PaymentMethod:       "wise",
		}
		require.NoError(t, repo.Create(ctx, q))
		return q
	}
	first := newQuote(model.QuotePresented)
	second := newQuote(model.QuotePresented)

	require.NoError(t, repo.Approve(ctx, deal.ID, first.ID, time.Now().UTC()))
	require.NoError(t, repo.Approve(ctx, deal.ID, second.ID, time.Now().UTC()))

	approved, err := repo.FindApproved(ctx, deal.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, approved.ID)

	counts, err := repo.CountByStatus(ctx, deal.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[model.QuoteApproved])
	assert.Equal(t, int64(1), counts[model.QuoteRevising])

	t.Run("storage refuses a second approved row", func(t *testing.T) {
		err := db.Model(&model.DealQuote{}).Where("id = ?", first.ID).Update("status", model.QuoteApproved).Error
		assert.Error(t, err)
	})

	t.Run("unknown quote", func(t *testing.T) {
		err := repo.Approve(ctx, deal.ID, uuid.New(), time.Now().UTC())
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	})
}
