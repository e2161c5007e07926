package mapping

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/parentsync/parentsync/internal/config"
	"github.com/parentsync/parentsync/internal/db/models"
	"github.com/parentsync/parentsync/internal/lms"
	lmsmodels "github.com/parentsync/parentsync/internal/lms/models"
)

const (
	parentRoleID    = 7
	sourceAccountID = 100
	pupilAccountID  = 200
)

// setupService wires the mapping service over two in-memory databases.
func setupService(t *testing.T) (*Service, *gorm.DB, *gorm.DB) {
	t.Helper()

	internalDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err, "failed to create contact store")
	require.NoError(t, internalDB.AutoMigrate(&models.ContactMapping{}))

	lmsDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err, "failed to create LMS database")
	require.NoError(t, lmsDB.AutoMigrate(&lmsmodels.Context{}, &lmsmodels.RoleAssignment{}))

	cfg := config.Provision{ParentRoleID: parentRoleID, ModifierID: 2}

	return New(internalDB, lms.New(lmsDB), cfg), internalDB, lmsDB
}

func newMapping(t *testing.T, svc *Service) *models.ContactMapping {
	t.Helper()

	m := &models.ContactMapping{ContactID: 1, Adno: "1234", MdlUserID: pupilAccountID, Username: "pupil"}
	require.NoError(t, svc.Save(m))

	return m
}

func assignmentCount(t *testing.T, lmsDB *gorm.DB) int64 {
	t.Helper()

	var count int64
	require.NoError(t, lmsDB.Model(&lmsmodels.RoleAssignment{}).Count(&count).Error)

	return count
}

func TestMapIsIdempotent(t *testing.T) {
	svc, _, lmsDB := setupService(t)
	m := newMapping(t, svc)

	first, err := svc.Map(m, sourceAccountID)
	require.NoError(t, err)
	require.NotZero(t, first)

	second, err := svc.Map(m, sourceAccountID)
	require.NoError(t, err)
	assert.Equal(t, first, second, "second map returns the existing assignment")

	assert.Equal(t, int64(1), assignmentCount(t, lmsDB), "exactly one role assignment row")
}

func TestIsMappedReflectsExternalTruth(t *testing.T) {
	svc, _, lmsDB := setupService(t)
	m := newMapping(t, svc)

	mapped, err := svc.IsMapped(m, sourceAccountID)
	require.NoError(t, err)
	assert.False(t, mapped)

	_, err = svc.Map(m, sourceAccountID)
	require.NoError(t, err)

	mapped, err = svc.IsMapped(m, sourceAccountID)
	require.NoError(t, err)
	assert.True(t, mapped)

	// remove the assignment behind the service's back; IsMapped must
	// re-derive, not trust the internal row
	require.NoError(t, lmsDB.Where("1 = 1").Delete(&lmsmodels.RoleAssignment{}).Error)

	mapped, err = svc.IsMapped(m, sourceAccountID)
	require.NoError(t, err)
	assert.False(t, mapped)
}

func TestUnmapIsIdempotent(t *testing.T) {
	svc, _, lmsDB := setupService(t)
	m := newMapping(t, svc)

	// unmapping an unmapped mapping succeeds and deletes nothing
	require.NoError(t, svc.Unmap(m, sourceAccountID))
	assert.Zero(t, assignmentCount(t, lmsDB))

	_, err := svc.Map(m, sourceAccountID)
	require.NoError(t, err)

	require.NoError(t, svc.Unmap(m, sourceAccountID))
	assert.Zero(t, assignmentCount(t, lmsDB))

	require.NoError(t, svc.Unmap(m, sourceAccountID))
}

func TestDeleteRefusesWhileMapped(t *testing.T) {
	svc, internalDB, _ := setupService(t)
	m := newMapping(t, svc)

	_, err := svc.Map(m, sourceAccountID)
	require.NoError(t, err)

	err = svc.Delete(m, sourceAccountID)
	assert.ErrorIs(t, err, ErrStillMapped)

	require.NoError(t, svc.Unmap(m, sourceAccountID))
	require.NoError(t, svc.Delete(m, sourceAccountID))

	var count int64
	require.NoError(t, internalDB.Model(&models.ContactMapping{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestLoadByContactAdno(t *testing.T) {
	svc, _, _ := setupService(t)
	m := newMapping(t, svc)

	loaded, err := svc.LoadByContactAdno(m.ContactID, m.Adno)
	require.NoError(t, err)
	assert.Equal(t, m.ID, loaded.ID)

	_, err = svc.LoadByContactAdno(m.ContactID, "other")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListByContact(t *testing.T) {
	svc, _, _ := setupService(t)

	require.NoError(t, svc.Save(&models.ContactMapping{ContactID: 1, Adno: "1111"}))
	require.NoError(t, svc.Save(&models.ContactMapping{ContactID: 1, Adno: "2222"}))
	require.NoError(t, svc.Save(&models.ContactMapping{ContactID: 2, Adno: "3333"}))

	out, err := svc.ListByContact(1)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestMapRecordsSyncTime(t *testing.T) {
	svc, internalDB, _ := setupService(t)
	m := newMapping(t, svc)

	require.Nil(t, m.DateSynced)

	_, err := svc.Map(m, sourceAccountID)
	require.NoError(t, err)
	require.NotNil(t, m.DateSynced)

	var stored models.ContactMapping
	require.NoError(t, internalDB.First(&stored, m.ID).Error)
	assert.NotNil(t, stored.DateSynced)
}
