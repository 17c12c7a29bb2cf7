package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/licitatech/pncp-harvester/internal/pncp"
)

func sampleRecord() *pncp.CanonicalRecord {
	rec := &pncp.CanonicalRecord{
		NaturalID:        "111/2024/7",
		IssuingOrgID:     "111",
		Year:             2024,
		SequenceNumber:   7,
		Title:            "Edital 7/2024",
		Status:           "Divulgada no PNCP",
		LastUpdatedAt:    "15/03/2024",
		CollectedAt:      time.Unix(1700000000, 0).UTC(),
		ExtractionMethod: pncp.ExtractionHybrid,
	}
	rec.FinalizeCounters()
	return rec
}

func TestFindByNaturalIDAbsent(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo, err := NewWithPool(mock, "editais_completos")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT id, natural_id, last_updated_at FROM editais_completos").
		WithArgs("111/2024/7").
		WillReturnError(pgx.ErrNoRows)

	stored, err := repo.FindByNaturalID(context.Background(), "111/2024/7")
	require.NoError(t, err)
	require.Nil(t, stored)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByNaturalIDPresent(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo, err := NewWithPool(mock, "editais_completos")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT id, natural_id, last_updated_at FROM editais_completos").
		WithArgs("111/2024/7").
		WillReturnRows(pgxmock.NewRows([]string{"id", "natural_id", "last_updated_at"}).
			AddRow("row-1", "111/2024/7", "15/03/2024"))

	stored, err := repo.FindByNaturalID(context.Background(), "111/2024/7")
	require.NoError(t, err)
	require.Equal(t, "row-1", stored.ID)
	require.Equal(t, "15/03/2024", stored.LastUpdatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertReturnsID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo, err := NewWithPool(mock, "editais_completos")
	require.NoError(t, err)

	rec := sampleRecord()
	mock.ExpectQuery("INSERT INTO editais_completos").
		WithArgs(pgxmock.AnyArg(), rec.NaturalID, rec.LastUpdatedAt, rec.CollectedAt,
			string(rec.ExtractionMethod), rec.Status, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("row-1"))

	id, err := repo.Upsert(context.Background(), rec)
	require.NoError(t, err)
	require.Equal(t, "row-1", id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertClassifiesUniqueViolation(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo, err := NewWithPool(mock, "editais_completos")
	require.NoError(t, err)

	rec := sampleRecord()
	mock.ExpectQuery("INSERT INTO editais_completos").
		WithArgs(pgxmock.AnyArg(), rec.NaturalID, rec.LastUpdatedAt, rec.CollectedAt,
			string(rec.ExtractionMethod), rec.Status, pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", Detail: "natural_id already exists"})

	_, err = repo.Upsert(context.Background(), rec)
	require.Error(t, err)
	require.True(t, errors.Is(err, pncp.ErrDuplicateKey))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateByNaturalID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo, err := NewWithPool(mock, "editais_completos")
	require.NoError(t, err)

	rec := sampleRecord()
	mock.ExpectQuery("UPDATE editais_completos SET").
		WithArgs(rec.NaturalID, rec.LastUpdatedAt, rec.CollectedAt,
			string(rec.ExtractionMethod), rec.Status, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("row-1"))

	id, err := repo.UpdateByNaturalID(context.Background(), rec)
	require.NoError(t, err)
	require.Equal(t, "row-1", id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountByStatus(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo, err := NewWithPool(mock, "editais_completos")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT status, COUNT").
		WillReturnRows(pgxmock.NewRows([]string{"status", "count"}).
			AddRow("Divulgada no PNCP", int64(12)).
			AddRow("Encerrada", int64(3)))

	counts, err := repo.CountByStatus(context.Background())
	require.NoError(t, err)
	require.Equal(t, map[string]int64{"Divulgada no PNCP": 12, "Encerrada": 3}, counts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentRecords(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo, err := NewWithPool(mock, "editais_completos")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT id, natural_id, last_updated_at FROM editais_completos ORDER BY collected_at").
		WithArgs(2).
		WillReturnRows(pgxmock.NewRows([]string{"id", "natural_id", "last_updated_at"}).
			AddRow("row-2", "111/2024/8", "16/03/2024").
			AddRow("row-1", "111/2024/7", "15/03/2024"))

	records, err := repo.RecentRecords(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "111/2024/8", records[0].NaturalID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewWithPoolValidatesTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewWithPool(mock, "editais; DROP TABLE x")
	require.Error(t, err)
}
