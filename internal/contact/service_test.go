package contact

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
	"github.com/parentsync/parentsync/internal/pendingauth"
)

// setupService wires the contact service over two in-memory databases:
// the internal contact store and a stand-in LMS database.
func setupService(t *testing.T) (*Service, *gorm.DB, *gorm.DB) {
	t.Helper()

	internalDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err, "failed to create contact store")
	require.NoError(t, internalDB.AutoMigrate(&models.Contact{}, &models.ContactMapping{}))

	lmsDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err, "failed to create LMS database")
	require.NoError(t, lmsDB.AutoMigrate(
		&lmsmodels.Account{}, &lmsmodels.Context{}, &lmsmodels.RoleAssignment{}, &lmsmodels.PendingAuth{},
	))

	cfg := config.Provision{
		ParentRoleID: 7,
		ModifierID:   2,
		AuthPlugin:   "db",
	}

	svc := New(internalDB, lms.New(lmsDB), pendingauth.New(lmsDB), cfg)

	return svc, internalDB, lmsDB
}

func seedAccount(t *testing.T, lmsDB *gorm.DB, account lmsmodels.Account) uint64 {
	t.Helper()
	require.NoError(t, lmsDB.Create(&account).Error)

	return account.ID
}

func stagingCount(t *testing.T, lmsDB *gorm.DB, email string) int64 {
	t.Helper()

	var count int64
	require.NoError(t, lmsDB.Model(&lmsmodels.PendingAuth{}).Where("email = ?", email).Count(&count).Error)

	return count
}

func TestCreateForcesPendingAndLowercasesEmail(t *testing.T) {
	svc, internalDB, _ := setupService(t)

	c, err := svc.Create(CreateInput{
		Forename: "Alice",
		Surname:  "Smith",
		Email:    "A.Smith@Example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, c.Status)
	assert.Equal(t, "a.smith@example.com", c.Email)

	var stored models.Contact
	require.NoError(t, internalDB.First(&stored, c.ID).Error)
	assert.Equal(t, "a.smith@example.com", stored.Email)
	assert.Contains(t, stored.SystemComment, "created")
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := setupService(t)

	_, err := svc.Create(CreateInput{Forename: "Alice", Surname: "Smith", Email: "not-an-email"})
	assert.Error(t, err)

	_, err = svc.Create(CreateInput{Email: "a@example.com"})
	assert.Error(t, err, "names are required")

	_, err = svc.Create(CreateInput{
		Forename:      "Alice",
		Surname:       "Smith",
		Email:         "a@example.com",
		ExternalMISID: "not-a-guid",
	})
	assert.Error(t, err)
}

func TestCreateResolvesExistingAccount(t *testing.T) {
	svc, _, lmsDB := setupService(t)

	seedAccount(t, lmsDB, lmsmodels.Account{
		Auth: "db", FirstName: "Alice", LastName: "Smith",
		Email: "a.smith@example.com", Username: "a.smith@example.com",
	})

	c, err := svc.Create(CreateInput{Forename: "Alice", Surname: "Smith", Email: "a.smith@example.com"})
	require.NoError(t, err)
	require.NotNil(t, c.MdlUserID, "pre-existing account should be linked on create")
}

func TestApproveStagesContact(t *testing.T) {
	svc, internalDB, lmsDB := setupService(t)

	c, err := svc.Create(CreateInput{Forename: "Alice", Surname: "Smith", Email: "A.Smith@example.com"})
	require.NoError(t, err)

	require.NoError(t, svc.Approve(c))
	assert.Equal(t, models.StatusApproved, c.Status)

	var stored models.Contact
	require.NoError(t, internalDB.First(&stored, c.ID).Error)
	assert.Equal(t, models.StatusApproved, stored.Status)

	assert.Equal(t, int64(1), stagingCount(t, lmsDB, "a.smith@example.com"))
}

func TestApproveNonPendingFails(t *testing.T) {
	svc, internalDB, _ := setupService(t)

	for _, status := range []models.Status{
		models.StatusApproved, models.StatusProvisioned, models.StatusRejected, models.StatusDuplicate,
	} {
		c := &models.Contact{Forename: "Bob", Surname: "Jones", Email: "b@example.com", Status: status}
		require.NoError(t, internalDB.Create(c).Error)

		err := svc.Approve(c)
		assert.ErrorIs(t, err, ErrInvalidTransition, "status %s", status)

		var stored models.Contact
		require.NoError(t, internalDB.First(&stored, c.ID).Error)
		assert.Equal(t, status, stored.Status, "stored status must not mutate")
	}
}

func TestTransitionConsultsStatusMachine(t *testing.T) {
	svc, _, _ := setupService(t)

	c := &models.Contact{Status: models.StatusProvisioned}

	err := svc.Transition(c, models.StatusApproved)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, models.StatusProvisioned, c.Status, "refused moves leave the status alone")

	require.NoError(t, svc.Transition(c, models.StatusPending))
	assert.Equal(t, models.StatusPending, c.Status)
}

func TestApproveDuplicateEmail(t *testing.T) {
	svc, _, lmsDB := setupService(t)

	first, err := svc.Create(CreateInput{Forename: "Alice", Surname: "Smith", Email: "a.smith@example.com"})
	require.NoError(t, err)
	require.NoError(t, svc.Approve(first))

	second, err := svc.Create(CreateInput{Forename: "Alicia", Surname: "Smith", Email: "A.Smith@Example.COM"})
	require.NoError(t, err)

	err = svc.Approve(second)
	assert.ErrorIs(t, err, ErrDuplicateAccount)
	assert.Equal(t, models.StatusDuplicate, second.Status)

	// the pre-existing row is the only one
	assert.Equal(t, int64(1), stagingCount(t, lmsDB, "a.smith@example.com"))
}

func TestDeprovision(t *testing.T) {
	svc, _, lmsDB := setupService(t)

	c, err := svc.Create(CreateInput{Forename: "Alice", Surname: "Smith", Email: "a.smith@example.com"})
	require.NoError(t, err)
	require.NoError(t, svc.Approve(c))

	t.Run("ineligible target status", func(t *testing.T) {
		err := svc.Deprovision(c, models.StatusProvisioned)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("removes staging row", func(t *testing.T) {
		require.NoError(t, svc.Deprovision(c, models.StatusRejected))
		assert.Equal(t, models.StatusRejected, c.Status)
		assert.Zero(t, stagingCount(t, lmsDB, "a.smith@example.com"))
	})

	t.Run("fails loudly when nothing staged", func(t *testing.T) {
		err := svc.Deprovision(c, models.StatusBogus)
		assert.ErrorIs(t, err, pendingauth.ErrNoRows)
	})
}

func TestDeleteBlockedByMappings(t *testing.T) {
	svc, internalDB, _ := setupService(t)

	c := &models.Contact{Forename: "Alice", Surname: "Smith", Email: "a@example.com", Status: models.StatusRejected}
	require.NoError(t, internalDB.Create(c).Error)

	require.NoError(t, internalDB.Create(&models.ContactMapping{ContactID: c.ID, Adno: "1234"}).Error)

	// blocked even though no LMS account exists
	err := svc.Delete(c)
	assert.ErrorIs(t, err, ErrMappingsExist)
}

func TestDeleteBlockedByEnabledAccount(t *testing.T) {
	svc, internalDB, lmsDB := setupService(t)

	seedAccount(t, lmsDB, lmsmodels.Account{
		Auth: "db", FirstName: "Alice", LastName: "Smith",
		Email: "a@example.com", Username: "a@example.com",
	})

	c := &models.Contact{Forename: "Alice", Surname: "Smith", Email: "a@example.com", Status: models.StatusRejected}
	require.NoError(t, internalDB.Create(c).Error)

	err := svc.Delete(c)
	assert.ErrorIs(t, err, ErrDeleteBlocked)
}

func TestDeleteBlockedByLiveStatus(t *testing.T) {
	svc, internalDB, _ := setupService(t)

	c := &models.Contact{Forename: "Alice", Surname: "Smith", Email: "a@example.com", Status: models.StatusApproved}
	require.NoError(t, internalDB.Create(c).Error)

	// live status blocks deletion even with no account row
	err := svc.Delete(c)
	assert.ErrorIs(t, err, ErrDeleteBlocked)
}

func TestDeleteSucceedsWhenSafe(t *testing.T) {
	svc, internalDB, lmsDB := setupService(t)

	seedAccount(t, lmsDB, lmsmodels.Account{
		Auth: "db", FirstName: "Alice", LastName: "Smith",
		Email: "a@example.com", Username: "a@example.com", Suspended: true,
	})

	c := &models.Contact{Forename: "Alice", Surname: "Smith", Email: "a@example.com", Status: models.StatusRejected}
	require.NoError(t, internalDB.Create(c).Error)

	require.NoError(t, svc.Delete(c))

	var count int64
	require.NoError(t, internalDB.Model(&models.Contact{}).Where("id = ?", c.ID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestReconcileHealsDriftedContact(t *testing.T) {
	svc, internalDB, lmsDB := setupService(t)

	missing := uint64(99)
	c := &models.Contact{
		Forename: "Alice", Surname: "Smith", Email: "a.smith@example.com",
		Status: models.StatusProvisioned, MdlUserID: &missing,
	}
	require.NoError(t, internalDB.Create(c).Error)

	loaded, err := svc.LoadAndHeal(c.ID)
	require.NoError(t, err)

	// drift detected: reset to pending, then re-approved and re-staged
	assert.Equal(t, models.StatusApproved, loaded.Status)
	assert.Contains(t, loaded.SystemComment, "could not be found")
	assert.Equal(t, int64(1), stagingCount(t, lmsDB, "a.smith@example.com"))
}

func TestReconcileReStagesWhenOwnStagingRowSurvives(t *testing.T) {
	svc, internalDB, lmsDB := setupService(t)

	missing := uint64(99)
	c := &models.Contact{
		Forename: "Alice", Surname: "Smith", Email: "a.smith@example.com",
		Status: models.StatusProvisioned, MdlUserID: &missing,
	}
	require.NoError(t, internalDB.Create(c).Error)

	// the row from the original approval is still in the staging table
	require.NoError(t, lmsDB.Create(&lmsmodels.PendingAuth{
		Username: "a.smith@example.com", Email: "a.smith@example.com",
		FirstName: "Alice", LastName: "Smith", RequestID: c.ID,
	}).Error)

	loaded, err := svc.LoadAndHeal(c.ID)
	require.NoError(t, err)

	// the contact's own row must not trip the duplicate check; healing
	// converges back to approved with exactly one fresh staging row
	assert.Equal(t, models.StatusApproved, loaded.Status)
	assert.Equal(t, int64(1), stagingCount(t, lmsDB, "a.smith@example.com"))
}

func TestReconcileLeavesHealthyContactAlone(t *testing.T) {
	svc, internalDB, lmsDB := setupService(t)

	id := seedAccount(t, lmsDB, lmsmodels.Account{
		Auth: "db", FirstName: "Alice", LastName: "Smith",
		Email: "a.smith@example.com", Username: "a.smith@example.com",
	})

	c := &models.Contact{
		Forename: "Alice", Surname: "Smith", Email: "a.smith@example.com",
		Status: models.StatusProvisioned, MdlUserID: &id,
	}
	require.NoError(t, internalDB.Create(c).Error)

	loaded, err := svc.LoadAndHeal(c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProvisioned, loaded.Status)
	assert.Zero(t, stagingCount(t, lmsDB, "a.smith@example.com"))
}

func TestEnsureRoleInStaticContexts(t *testing.T) {
	svc, internalDB, lmsDB := setupService(t)

	svc.cfg.StaticContextIDs = "3\nnot-a-number\n0\n\n4"

	id := uint64(10)
	c := &models.Contact{Forename: "Alice", Surname: "Smith", Email: "a@example.com", MdlUserID: &id}
	require.NoError(t, internalDB.Create(c).Error)

	require.NoError(t, svc.EnsureRoleInStaticContexts(c))
	// idempotent
	require.NoError(t, svc.EnsureRoleInStaticContexts(c))

	var assignments []lmsmodels.RoleAssignment
	require.NoError(t, lmsDB.Order("contextid").Find(&assignments).Error)
	require.Len(t, assignments, 2, "invalid entries skipped, valid ones granted once")
	assert.Equal(t, uint64(3), assignments[0].ContextID)
	assert.Equal(t, uint64(4), assignments[1].ContextID)
}

func TestEnsureRoleRequiresResolvedAccount(t *testing.T) {
	svc, _, _ := setupService(t)

	c := &models.Contact{Forename: "Alice", Surname: "Smith", Email: "a@example.com"}
	err := svc.EnsureRoleInStaticContexts(c)
	assert.ErrorIs(t, err, ErrAccountNotResolved)
}

func TestUpdateEmail(t *testing.T) {
	svc, internalDB, lmsDB := setupService(t)

	c, err := svc.Create(CreateInput{Forename: "Alice", Surname: "Smith", Email: "old@example.com"})
	require.NoError(t, err)

	seedAccount(t, lmsDB, lmsmodels.Account{
		Auth: "db", FirstName: "Alice", LastName: "Smith",
		Email: "old@example.com", Username: "old@example.com",
	})

	require.NoError(t, svc.Approve(c))

	require.NoError(t, svc.UpdateEmail(c, "New@Example.com"))
	assert.Equal(t, "new@example.com", c.Email)

	var account lmsmodels.Account
	require.NoError(t, lmsDB.First(&account).Error)
	assert.Equal(t, "new@example.com", account.Email)
	assert.Equal(t, "new@example.com", account.Username)

	assert.Equal(t, int64(1), stagingCount(t, lmsDB, "new@example.com"))

	var stored models.Contact
	require.NoError(t, internalDB.First(&stored, c.ID).Error)
	assert.Equal(t, "new@example.com", stored.Email)
}

func TestUpdateEmailRequiresStagingRow(t *testing.T) {
	svc, internalDB, lmsDB := setupService(t)

	seedAccount(t, lmsDB, lmsmodels.Account{
		Auth: "db", FirstName: "Alice", LastName: "Smith",
		Email: "old@example.com", Username: "old@example.com",
	})

	c := &models.Contact{Forename: "Alice", Surname: "Smith", Email: "old@example.com", Status: models.StatusRejected}
	require.NoError(t, internalDB.Create(c).Error)

	// without a staging row the rename is refused before touching the LMS
	err := svc.UpdateEmail(c, "new@example.com")
	require.Error(t, err)

	var account lmsmodels.Account
	require.NoError(t, lmsDB.First(&account).Error)
	assert.Equal(t, "old@example.com", account.Email, "account must be untouched")
	assert.Equal(t, "old@example.com", account.Username)
}

func TestUpdateEmailRollsBackOnStagingFailure(t *testing.T) {
	svc, internalDB, lmsDB := setupService(t)

	seedAccount(t, lmsDB, lmsmodels.Account{
		Auth: "db", FirstName: "Alice", LastName: "Smith",
		Email: "old@example.com", Username: "old@example.com",
	})

	c := &models.Contact{Forename: "Alice", Surname: "Smith", Email: "old@example.com", Status: models.StatusRejected}
	require.NoError(t, internalDB.Create(c).Error)

	// two staging rows for one owner: the update affects two rows, which
	// the service treats as fatal
	for i := 0; i < 2; i++ {
		require.NoError(t, lmsDB.Create(&lmsmodels.PendingAuth{
			Username: "old@example.com", Email: "old@example.com", RequestID: c.ID,
		}).Error)
	}

	err := svc.UpdateEmail(c, "new@example.com")
	require.Error(t, err)

	var account lmsmodels.Account
	require.NoError(t, lmsDB.First(&account).Error)
	assert.Equal(t, "old@example.com", account.Email, "rename must be compensated")
	assert.Equal(t, "old@example.com", account.Username)
}
