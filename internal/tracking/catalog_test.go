package tracking

import (
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medtrack/adherence/pkg/interfaces"
	"github.com/medtrack/adherence/pkg/logger"
	"github.com/medtrack/adherence/pkg/types"
)

func setupCatalog(t *testing.T, ttl time.Duration) (interfaces.MedicineCatalog, *MedicineCache, sqlmock.Sqlmock) {
	t.Helper()
	db, mockDB, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cache := NewMedicineCache(ttl)
	return NewCatalog(db, cache, logger.New("error")), cache, mockDB
}

func medicineRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "type", "manufacturer", "created_at"})
}

func TestCatalog_LookupMedicine(t *testing.T) {
	catalog, _, mockDB := setupCatalog(t, time.Minute)

	created := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	mockDB.ExpectQuery("SELECT (.+) FROM medicines WHERE id").
		WithArgs("med-1").
		WillReturnRows(medicineRows().AddRow("med-1", "Aspirin", "tablet", "Bayer", created))

	med, err := catalog.LookupMedicine("med-1")
	require.NoError(t, err)
	assert.Equal(t, "Aspirin", med.Name)
	assert.Equal(t, "tablet", med.Type)

	// The second lookup is served from the cache, so no further query is
	// expected on the mock.
	med, err = catalog.LookupMedicine("med-1")
	require.NoError(t, err)
	assert.Equal(t, "Aspirin", med.Name)

	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestCatalog_LookupMedicine_Miss(t *testing.T) {
	catalog, _, mockDB := setupCatalog(t, time.Minute)

	mockDB.ExpectQuery("SELECT (.+) FROM medicines WHERE id").
		WithArgs("unknown").
		WillReturnRows(medicineRows())

	med, err := catalog.LookupMedicine("unknown")
	assert.Nil(t, med)
	require.Error(t, err)

	var te *types.TrackError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, types.ErrCodeCatalogMiss, te.Code)

	// Misses are not cached: the next lookup goes back to the database.
	mockDB.ExpectQuery("SELECT (.+) FROM medicines WHERE id").
		WithArgs("unknown").
		WillReturnRows(medicineRows())
	_, err = catalog.LookupMedicine("unknown")
	assert.Error(t, err)
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestCatalog_LookupMedicine_QueryError(t *testing.T) {
	catalog, _, mockDB := setupCatalog(t, time.Minute)

	mockDB.ExpectQuery("SELECT (.+) FROM medicines WHERE id").
		WithArgs("med-1").
		WillReturnError(errors.New("connection reset"))

	med, err := catalog.LookupMedicine("med-1")
	assert.Nil(t, med)
	assert.Error(t, err)
}

func TestMedicineCache_Expiry(t *testing.T) {
	cache := NewMedicineCache(10 * time.Millisecond)
	cache.Put(&types.Medicine{ID: "med-1", Name: "Aspirin"})

	med, ok := cache.Get("med-1")
	require.True(t, ok)
	assert.Equal(t, "Aspirin", med.Name)

	time.Sleep(25 * time.Millisecond)
	_, ok = cache.Get("med-1")
	assert.False(t, ok)
}

func TestMedicineCache_MissingEntry(t *testing.T) {
	cache := NewMedicineCache(time.Minute)
	_, ok := cache.Get("absent")
	assert.False(t, ok)
}
