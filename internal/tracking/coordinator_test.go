package tracking

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/medtrack/adherence/pkg/logger"
	"github.com/medtrack/adherence/pkg/types"
)

// MockTrackingStore is a mock implementation of interfaces.TrackingStore
type MockTrackingStore struct {
	mock.Mock
}

func (m *MockTrackingStore) LoadAllSchedules() ([]*types.ScheduleDefinition, error) {
	args := m.Called()
	schedules, _ := args.Get(0).([]*types.ScheduleDefinition)
	return schedules, args.Error(1)
}

func (m *MockTrackingStore) LoadAllDoses() ([]*types.DoseEvent, error) {
	args := m.Called()
	doses, _ := args.Get(0).([]*types.DoseEvent)
	return doses, args.Error(1)
}

func (m *MockTrackingStore) SaveSchedule(schedule *types.ScheduleDefinition) error {
	return m.Called(schedule).Error(0)
}

func (m *MockTrackingStore) DeleteSchedule(id string) error {
	return m.Called(id).Error(0)
}

func (m *MockTrackingStore) SaveDose(dose *types.DoseEvent) error {
	return m.Called(dose).Error(0)
}

func (m *MockTrackingStore) DeleteDose(id string) error {
	return m.Called(id).Error(0)
}

func (m *MockTrackingStore) DeleteAllForMedicine(medicineID string) error {
	return m.Called(medicineID).Error(0)
}

// MockMedicineCatalog is a mock implementation of interfaces.MedicineCatalog
type MockMedicineCatalog struct {
	mock.Mock
}

func (m *MockMedicineCatalog) LookupMedicine(id string) (*types.Medicine, error) {
	args := m.Called(id)
	medicine, _ := args.Get(0).(*types.Medicine)
	return medicine, args.Error(1)
}

func emptyStore() *MockTrackingStore {
	store := &MockTrackingStore{}
	store.On("LoadAllSchedules").Return(nil, nil)
	store.On("LoadAllDoses").Return(nil, nil)
	store.On("SaveSchedule", mock.Anything).Return(nil)
	store.On("SaveDose", mock.Anything).Return(nil)
	store.On("DeleteSchedule", mock.Anything).Return(nil)
	store.On("DeleteDose", mock.Anything).Return(nil)
	store.On("DeleteAllForMedicine", mock.Anything).Return(nil)
	return store
}

func catalogWith(medicines ...*types.Medicine) *MockMedicineCatalog {
	catalog := &MockMedicineCatalog{}
	for _, med := range medicines {
		catalog.On("LookupMedicine", med.ID).Return(med, nil)
	}
	return catalog
}

// testNow is a Tuesday morning before the default 09:00 dose slot
func testNow() time.Time {
	return at(day(2024, 1, 2), 8, 0)
}

func newTestCoordinator(t *testing.T, store *MockTrackingStore, catalog *MockMedicineCatalog, cfg CoordinatorConfig) *Coordinator {
	t.Helper()
	c := NewCoordinator(store, catalog, cfg, logger.New("error"), nil)
	c.now = testNow
	c.Start()
	t.Cleanup(c.Stop)
	return c
}

func TestAddSchedule_Success(t *testing.T) {
	medicine := &types.Medicine{ID: "med-1", Name: "Aspirin", Type: "tablet"}
	c := newTestCoordinator(t, emptyStore(), catalogWith(medicine), CoordinatorConfig{})

	created, err := c.AddSchedule(dailySchedule(day(2024, 1, 1), nil))
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, testNow(), created.CreatedAt)

	schedules := c.Schedules()
	require.Len(t, schedules, 1)
	assert.Equal(t, created.ID, schedules[0].ID)
}

func TestAddSchedule_GeneratesID(t *testing.T) {
	medicine := &types.Medicine{ID: "med-1", Name: "Aspirin"}
	c := newTestCoordinator(t, emptyStore(), catalogWith(medicine), CoordinatorConfig{})

	schedule := dailySchedule(day(2024, 1, 1), nil)
	schedule.ID = ""
	created, err := c.AddSchedule(schedule)
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
}

func TestAddSchedule_ValidationError(t *testing.T) {
	c := newTestCoordinator(t, emptyStore(), catalogWith(), CoordinatorConfig{})

	invalid := &types.ScheduleDefinition{
		ID:         "sched-1",
		MedicineID: "med-1",
		Frequency:  types.FrequencyWeekly,
		TimesOfDay: []types.TimeOfDay{{Hour: 9, Minute: 0}},
		StartDate:  day(2024, 1, 1),
		Active:     true,
	}

	created, err := c.AddSchedule(invalid)
	assert.Nil(t, created)
	require.Error(t, err)
	assert.True(t, types.IsValidation(err))
	assert.Empty(t, c.Schedules())
}

func TestAddSchedule_ProjectsToday(t *testing.T) {
	medicine := &types.Medicine{ID: "med-1", Name: "Aspirin", Type: "tablet"}
	c := newTestCoordinator(t, emptyStore(), catalogWith(medicine), CoordinatorConfig{})

	_, err := c.AddSchedule(dailySchedule(day(2024, 1, 1), nil))
	require.NoError(t, err)

	today := c.TodayOccurrences()
	require.Len(t, today, 1)
	assert.Equal(t, "Aspirin", today[0].MedicineName)
	assert.Equal(t, at(day(2024, 1, 2), 9, 0), today[0].ScheduledTime)
	assert.Equal(t, types.MatchDue, today[0].MatchStatus)
}

func TestAddSchedule_WeeklyNotDueOnStartDay(t *testing.T) {
	medicine := &types.Medicine{ID: "med-1", Name: "Aspirin"}
	c := newTestCoordinator(t, emptyStore(), catalogWith(medicine), CoordinatorConfig{})

	// Weekly on Tuesdays starting Monday 2024-01-01; "today" is Tuesday
	// the 2nd, so the first occurrence lands today and not on the start day.
	schedule := &types.ScheduleDefinition{
		ID:         "sched-1",
		MedicineID: "med-1",
		Frequency:  types.FrequencyWeekly,
		TimesOfDay: []types.TimeOfDay{{Hour: 9, Minute: 0}},
		DaysOfWeek: []int{2},
		StartDate:  day(2024, 1, 1),
		Active:     true,
	}
	_, err := c.AddSchedule(schedule)
	require.NoError(t, err)

	today := c.TodayOccurrences()
	require.Len(t, today, 1)
	assert.Equal(t, at(day(2024, 1, 2), 9, 0), today[0].ScheduledTime)
}

func TestRecordDose_MatchesToday(t *testing.T) {
	medicine := &types.Medicine{ID: "med-1", Name: "Aspirin"}
	c := newTestCoordinator(t, emptyStore(), catalogWith(medicine), CoordinatorConfig{})

	_, err := c.AddSchedule(dailySchedule(day(2024, 1, 1), nil))
	require.NoError(t, err)

	first, err := c.RecordDose(dose("", "med-1", at(day(2024, 1, 2), 9, 10), types.DoseTaken))
	require.NoError(t, err)

	today := c.TodayOccurrences()
	require.Len(t, today, 1)
	assert.Equal(t, types.MatchTaken, today[0].MatchStatus)
	assert.Equal(t, first.ID, today[0].MatchedDoseID)

	// A second event further from the slot does not steal the match.
	_, err = c.RecordDose(dose("", "med-1", at(day(2024, 1, 2), 9, 12), types.DoseTaken))
	require.NoError(t, err)

	today = c.TodayOccurrences()
	require.Len(t, today, 1)
	assert.Equal(t, first.ID, today[0].MatchedDoseID)
	assert.Len(t, c.DoseEvents(), 2)
}

func TestRecordDose_ValidationError(t *testing.T) {
	c := newTestCoordinator(t, emptyStore(), catalogWith(), CoordinatorConfig{})

	created, err := c.RecordDose(&types.DoseEvent{MedicineID: "med-1", Timestamp: testNow(), Status: "swallowed"})
	assert.Nil(t, created)
	require.Error(t, err)
	assert.True(t, types.IsValidation(err))
}

func TestUpdateSchedule_NotFound(t *testing.T) {
	c := newTestCoordinator(t, emptyStore(), catalogWith(), CoordinatorConfig{})

	active := false
	updated, err := c.UpdateSchedule("missing", &types.ScheduleUpdates{Active: &active})
	assert.Nil(t, updated)
	assert.True(t, types.IsNotFound(err))
}

func TestUpdateSchedule_DeactivateRemovesFromToday(t *testing.T) {
	medicine := &types.Medicine{ID: "med-1", Name: "Aspirin"}
	c := newTestCoordinator(t, emptyStore(), catalogWith(medicine), CoordinatorConfig{})

	created, err := c.AddSchedule(dailySchedule(day(2024, 1, 1), nil))
	require.NoError(t, err)
	require.Len(t, c.TodayOccurrences(), 1)

	active := false
	updated, err := c.UpdateSchedule(created.ID, &types.ScheduleUpdates{Active: &active})
	require.NoError(t, err)
	assert.False(t, updated.Active)
	assert.Empty(t, c.TodayOccurrences())
}

func TestUpdateSchedule_RejectsInvalidResult(t *testing.T) {
	medicine := &types.Medicine{ID: "med-1", Name: "Aspirin"}
	c := newTestCoordinator(t, emptyStore(), catalogWith(medicine), CoordinatorConfig{})

	created, err := c.AddSchedule(dailySchedule(day(2024, 1, 1), nil))
	require.NoError(t, err)

	// Switching to weekly without days of week must not pass validation.
	weekly := types.FrequencyWeekly
	updated, err := c.UpdateSchedule(created.ID, &types.ScheduleUpdates{Frequency: &weekly})
	assert.Nil(t, updated)
	require.Error(t, err)
	assert.True(t, types.IsValidation(err))

	// The stored schedule is untouched.
	schedules := c.Schedules()
	require.Len(t, schedules, 1)
	assert.Equal(t, types.FrequencyDaily, schedules[0].Frequency)
}

func TestDeleteSchedule_CascadesDoses(t *testing.T) {
	store := &MockTrackingStore{}
	store.On("LoadAllSchedules").Return(nil, nil)
	store.On("LoadAllDoses").Return(nil, nil)
	store.On("SaveSchedule", mock.Anything).Return(nil)
	store.On("SaveDose", mock.Anything).Return(nil)
	store.On("DeleteSchedule", mock.Anything).Return(nil)

	cascaded := make(chan struct{}, 1)
	store.On("DeleteAllForMedicine", "med-1").Run(func(mock.Arguments) {
		select {
		case cascaded <- struct{}{}:
		default:
		}
	}).Return(nil)

	medicine := &types.Medicine{ID: "med-1", Name: "Aspirin"}
	c := newTestCoordinator(t, store, catalogWith(medicine), CoordinatorConfig{})

	created, err := c.AddSchedule(dailySchedule(day(2024, 1, 1), nil))
	require.NoError(t, err)
	_, err = c.RecordDose(dose("", "med-1", at(day(2024, 1, 2), 9, 10), types.DoseTaken))
	require.NoError(t, err)

	require.NoError(t, c.DeleteSchedule(created.ID))
	assert.Empty(t, c.Schedules())
	assert.Empty(t, c.DoseEvents())
	assert.Empty(t, c.TodayOccurrences())

	select {
	case <-cascaded:
	case <-time.After(2 * time.Second):
		t.Fatal("dose cascade never reached the store")
	}
}

func TestDeleteSchedule_NotFound(t *testing.T) {
	c := newTestCoordinator(t, emptyStore(), catalogWith(), CoordinatorConfig{})
	assert.True(t, types.IsNotFound(c.DeleteSchedule("missing")))
}

func TestDeleteDose_RevertsMatch(t *testing.T) {
	medicine := &types.Medicine{ID: "med-1", Name: "Aspirin"}
	c := newTestCoordinator(t, emptyStore(), catalogWith(medicine), CoordinatorConfig{})

	_, err := c.AddSchedule(dailySchedule(day(2024, 1, 1), nil))
	require.NoError(t, err)
	created, err := c.RecordDose(dose("", "med-1", at(day(2024, 1, 2), 9, 10), types.DoseTaken))
	require.NoError(t, err)
	require.Equal(t, types.MatchTaken, c.TodayOccurrences()[0].MatchStatus)

	require.NoError(t, c.DeleteDose(created.ID))

	today := c.TodayOccurrences()
	require.Len(t, today, 1)
	assert.Equal(t, types.MatchDue, today[0].MatchStatus)
	assert.Empty(t, today[0].MatchedDoseID)
}

func TestUpcomingOccurrences_SortedAndCapped(t *testing.T) {
	aspirin := &types.Medicine{ID: "med-1", Name: "Aspirin"}
	insulin := &types.Medicine{ID: "med-2", Name: "Insulin"}
	c := newTestCoordinator(t, emptyStore(), catalogWith(aspirin, insulin), CoordinatorConfig{})

	evening := dailySchedule(day(2024, 1, 1), nil)
	evening.ID = "sched-evening"
	evening.TimesOfDay = []types.TimeOfDay{{Hour: 18, Minute: 0}}

	morning := dailySchedule(day(2024, 1, 1), nil)
	morning.ID = "sched-morning"
	morning.MedicineID = "med-2"

	_, err := c.AddSchedule(evening)
	require.NoError(t, err)
	_, err = c.AddSchedule(morning)
	require.NoError(t, err)

	upcoming := c.UpcomingOccurrences()
	require.Len(t, upcoming, 2)
	assert.Equal(t, "Insulin", upcoming[0].MedicineName)
	assert.Equal(t, at(day(2024, 1, 2), 9, 0), upcoming[0].ScheduledTime)
	assert.Equal(t, "Aspirin", upcoming[1].MedicineName)
	assert.Equal(t, at(day(2024, 1, 2), 18, 0), upcoming[1].ScheduledTime)

	capped := newTestCoordinator(t, emptyStore(), catalogWith(aspirin, insulin), CoordinatorConfig{UpcomingLimit: 1})
	_, err = capped.AddSchedule(evening)
	require.NoError(t, err)
	_, err = capped.AddSchedule(morning)
	require.NoError(t, err)
	require.Len(t, capped.UpcomingOccurrences(), 1)
}

func TestNextOccurrence_ByScheduleID(t *testing.T) {
	medicine := &types.Medicine{ID: "med-1", Name: "Aspirin"}
	c := newTestCoordinator(t, emptyStore(), catalogWith(medicine), CoordinatorConfig{})

	created, err := c.AddSchedule(dailySchedule(day(2024, 1, 1), nil))
	require.NoError(t, err)

	next, err := c.NextOccurrence(created.ID)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, at(day(2024, 1, 2), 9, 0), next.ScheduledTime)

	_, err = c.NextOccurrence("missing")
	assert.True(t, types.IsNotFound(err))
}

func TestAdherence_ThroughCoordinator(t *testing.T) {
	medicine := &types.Medicine{ID: "med-1", Name: "Aspirin"}
	c := newTestCoordinator(t, emptyStore(), catalogWith(medicine), CoordinatorConfig{})

	_, err := c.AddSchedule(dailySchedule(day(2024, 1, 1), nil))
	require.NoError(t, err)
	_, err = c.RecordDose(dose("", "med-1", at(day(2024, 1, 1), 9, 5), types.DoseTaken))
	require.NoError(t, err)

	report, err := c.Adherence("med-1", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Expected)
	assert.Equal(t, 1, report.Taken)
	assert.Equal(t, 50.0, report.Rate)

	_, err = c.Adherence("med-1", 0)
	assert.True(t, types.IsValidation(err))
}

func TestCatalogMiss_ExcludesFromProjectionOnly(t *testing.T) {
	catalog := &MockMedicineCatalog{}
	catalog.On("LookupMedicine", "med-1").Return(nil, types.NewCatalogError(types.ErrCodeCatalogMiss, "unknown medicine: med-1", nil))
	c := newTestCoordinator(t, emptyStore(), catalog, CoordinatorConfig{})

	created, err := c.AddSchedule(dailySchedule(day(2024, 1, 1), nil))
	require.NoError(t, err)

	assert.Empty(t, c.TodayOccurrences())
	assert.Empty(t, c.UpcomingOccurrences())

	// The schedule itself survives the miss.
	schedules := c.Schedules()
	require.Len(t, schedules, 1)
	assert.Equal(t, created.ID, schedules[0].ID)
}

func TestStart_InitialLoadFailure(t *testing.T) {
	store := &MockTrackingStore{}
	store.On("LoadAllSchedules").Return(nil, errors.New("connection refused"))

	c := newTestCoordinator(t, store, catalogWith(), CoordinatorConfig{})

	assert.False(t, c.IsLoading())
	assert.Empty(t, c.Schedules())
	require.Error(t, c.LastError())
	assert.True(t, types.IsPersistence(c.LastError()))
}

func TestPersistenceFailure_DoesNotRollBack(t *testing.T) {
	store := &MockTrackingStore{}
	store.On("LoadAllSchedules").Return(nil, nil)
	store.On("LoadAllDoses").Return(nil, nil)
	store.On("SaveSchedule", mock.Anything).Return(errors.New("disk full"))

	medicine := &types.Medicine{ID: "med-1", Name: "Aspirin"}
	c := newTestCoordinator(t, store, catalogWith(medicine), CoordinatorConfig{})

	created, err := c.AddSchedule(dailySchedule(day(2024, 1, 1), nil))
	require.NoError(t, err)
	require.Len(t, c.Schedules(), 1)
	assert.Equal(t, created.ID, c.Schedules()[0].ID)

	// The write-through exhausts its retries in the background and then
	// surfaces the failure without touching the in-memory state.
	require.Eventually(t, func() bool {
		return c.LastError() != nil
	}, 5*time.Second, 50*time.Millisecond)
	require.Len(t, c.Schedules(), 1)
}

func TestRefreshAll_ReplacesCollections(t *testing.T) {
	stored := dailySchedule(day(2024, 1, 1), nil)
	stored.ID = "sched-stored"

	store := &MockTrackingStore{}
	store.On("LoadAllSchedules").Return(nil, nil).Once()
	store.On("LoadAllDoses").Return(nil, nil).Once()
	store.On("LoadAllSchedules").Return([]*types.ScheduleDefinition{stored}, nil)
	store.On("LoadAllDoses").Return(nil, nil)

	medicine := &types.Medicine{ID: "med-1", Name: "Aspirin"}
	c := newTestCoordinator(t, store, catalogWith(medicine), CoordinatorConfig{})
	require.Empty(t, c.Schedules())

	require.NoError(t, c.RefreshAll())

	schedules := c.Schedules()
	require.Len(t, schedules, 1)
	assert.Equal(t, "sched-stored", schedules[0].ID)
	assert.Len(t, c.TodayOccurrences(), 1)
}

func TestRefreshAll_FailureKeepsState(t *testing.T) {
	store := &MockTrackingStore{}
	store.On("LoadAllSchedules").Return(nil, nil).Once()
	store.On("LoadAllDoses").Return(nil, nil).Once()
	store.On("SaveSchedule", mock.Anything).Return(nil)
	store.On("LoadAllSchedules").Return(nil, errors.New("connection reset"))

	medicine := &types.Medicine{ID: "med-1", Name: "Aspirin"}
	c := newTestCoordinator(t, store, catalogWith(medicine), CoordinatorConfig{})

	created, err := c.AddSchedule(dailySchedule(day(2024, 1, 1), nil))
	require.NoError(t, err)

	err = c.RefreshAll()
	require.Error(t, err)
	assert.True(t, types.IsPersistence(err))

	// The in-memory collection stays authoritative.
	schedules := c.Schedules()
	require.Len(t, schedules, 1)
	assert.Equal(t, created.ID, schedules[0].ID)
}
