package membership

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memberfox/memberfox/app/models"
)

type fakeSubStore struct {
	nextID  uint
	subs    map[uint]*models.Subscription
	updates []map[string]interface{}
}

func newFakeSubStore() *fakeSubStore {
	return &fakeSubStore{nextID: 1, subs: make(map[uint]*models.Subscription)}
}

func (r *fakeSubStore) Create(sub *models.Subscription) error {
	sub.ID = r.nextID
	r.nextID++
	copied := *sub
	r.subs[sub.ID] = &copied
	return nil
}

func (r *fakeSubStore) GetByID(id uint) (*models.Subscription, error) {
	if s, ok := r.subs[id]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, errors.New("subscription not found")
}

func (r *fakeSubStore) GetByUserID(userID uint) ([]models.Subscription, error) { return nil, nil }
func (r *fakeSubStore) GetByRenewalToken(token string) (*models.Subscription, error) {
	return nil, errors.New("subscription not found")
}
func (r *fakeSubStore) FindAllActive() ([]models.Subscription, error)            { return nil, nil }
func (r *fakeSubStore) FindExpired(now time.Time) ([]models.Subscription, error) { return nil, nil }
func (r *fakeSubStore) Update(sub *models.Subscription) error                    { return nil }

func (r *fakeSubStore) UpdateFields(id uint, fields map[string]interface{}) error {
	s, ok := r.subs[id]
	if !ok {
		return errors.New("subscription not found")
	}
	r.updates = append(r.updates, fields)
	if v, ok := fields["status"]; ok {
		s.Status = v.(string)
	}
	if v, ok := fields["end_date"]; ok {
		end := v.(time.Time)
		s.EndDate = &end
	}
	if v, ok := fields["renewal_token"]; ok {
		s.RenewalToken = v.(string)
	}
	if v, ok := fields["last_reminder_days"]; ok {
		s.LastReminderDays = v.(int)
	}
	return nil
}

func (r *fakeSubStore) Delete(id uint) error                                  { return nil }
func (r *fakeSubStore) List(offset, limit int) ([]models.Subscription, error) { return nil, nil }
func (r *fakeSubStore) Count() (int64, error)                                 { return 0, nil }
func (r *fakeSubStore) CountByStatus(status string) (int64, error)            { return 0, nil }

func newServiceFixture(t *testing.T) (*Service, *fakeSubStore, *models.User) {
	t.Helper()
	t.Cleanup(func() { models.SetAppSettingsForTest(nil) })

	user := &models.User{ID: 1, Roles: "user"}
	userRepo := &fakeUserRepo{users: map[uint]*models.User{1: user}}
	store := newFakeSubStore()
	return NewService(store, NewHandler(userRepo)), store, user
}

func TestCreateSubscriptionManual(t *testing.T) {
	svc, store, user := newServiceFixture(t)
	start := time.Now()
	end := start.AddDate(1, 0, 0)

	sub, err := svc.CreateSubscription(1, start, &end, models.RenewalManual)
	require.NoError(t, err)

	assert.NotZero(t, sub.ID)
	assert.Equal(t, models.SubStatusActive, sub.Status)
	assert.NotEmpty(t, sub.RenewalToken)
	assert.Contains(t, store.subs, sub.ID)

	// Creation activates the membership immediately.
	assert.True(t, user.HasRole(models.ROLE_MEMBER))
	assert.True(t, user.HasActiveMembership)
}

func TestCreateSubscriptionAutomaticHasNoToken(t *testing.T) {
	svc, _, _ := newServiceFixture(t)
	start := time.Now()
	end := start.AddDate(0, 1, 0)

	sub, err := svc.CreateSubscription(1, start, &end, models.RenewalAutomatic)
	require.NoError(t, err)
	assert.Empty(t, sub.RenewalToken)
}

func TestCreateSubscriptionRejectsBadInput(t *testing.T) {
	svc, store, _ := newServiceFixture(t)
	start := time.Now()
	before := start.Add(-time.Hour)

	_, err := svc.CreateSubscription(1, start, nil, "weekly")
	assert.ErrorIs(t, err, ErrInvalidRenewalType)

	_, err = svc.CreateSubscription(1, start, &before, models.RenewalManual)
	assert.ErrorIs(t, err, models.ErrEndBeforeStart)

	assert.Empty(t, store.subs)
}

func TestChangeStatusValidation(t *testing.T) {
	svc, _, _ := newServiceFixture(t)

	err := svc.ChangeStatus(1, "paused")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestChangeStatusNoOpWhenUnchanged(t *testing.T) {
	svc, store, _ := newServiceFixture(t)
	end := time.Now().AddDate(1, 0, 0)
	sub, err := svc.CreateSubscription(1, time.Now(), &end, models.RenewalManual)
	require.NoError(t, err)

	writes := len(store.updates)
	require.NoError(t, svc.ChangeStatus(sub.ID, models.SubStatusActive))
	assert.Len(t, store.updates, writes)
}

func TestChangeStatusExpiresAndRevokes(t *testing.T) {
	svc, store, user := newServiceFixture(t)
	end := time.Now().AddDate(1, 0, 0)
	sub, err := svc.CreateSubscription(1, time.Now(), &end, models.RenewalManual)
	require.NoError(t, err)
	require.True(t, user.HasActiveMembership)

	require.NoError(t, svc.ChangeStatus(sub.ID, models.SubStatusExpired))

	assert.Equal(t, models.SubStatusExpired, store.subs[sub.ID].Status)
	assert.False(t, user.HasRole(models.ROLE_MEMBER))
	assert.False(t, user.HasActiveMembership)
}

func TestRenewExtendsFromFutureEnd(t *testing.T) {
	svc, store, _ := newServiceFixture(t)
	end := time.Now().Add(10 * 24 * time.Hour)
	sub, err := svc.CreateSubscription(1, time.Now().AddDate(-1, 0, 0), &end, models.RenewalManual)
	require.NoError(t, err)

	renewed, err := svc.Renew(sub.ID, 30*24*time.Hour)
	require.NoError(t, err)

	// The new term stacks on the remaining one.
	require.NotNil(t, renewed.EndDate)
	assert.Equal(t, end.Add(30*24*time.Hour), *renewed.EndDate)
	assert.Equal(t, 0, store.subs[sub.ID].LastReminderDays)
}

func TestRenewLapsedStartsFromNowAndReactivates(t *testing.T) {
	svc, store, user := newServiceFixture(t)
	end := time.Now().AddDate(1, 0, 0)
	sub, err := svc.CreateSubscription(1, time.Now(), &end, models.RenewalManual)
	require.NoError(t, err)
	require.NoError(t, svc.ChangeStatus(sub.ID, models.SubStatusExpired))

	// Simulate a term that lapsed a while ago.
	past := time.Now().Add(-48 * time.Hour)
	store.subs[sub.ID].EndDate = &past

	before := time.Now()
	renewed, err := svc.Renew(sub.ID, 30*24*time.Hour)
	require.NoError(t, err)

	require.NotNil(t, renewed.EndDate)
	assert.True(t, renewed.EndDate.After(before.Add(29*24*time.Hour)))
	assert.Equal(t, models.SubStatusActive, store.subs[sub.ID].Status)
	assert.True(t, user.HasRole(models.ROLE_MEMBER))
	assert.True(t, user.HasActiveMembership)
}

func TestCancelTakesRemovalPath(t *testing.T) {
	svc, store, user := newServiceFixture(t)
	end := time.Now().AddDate(1, 0, 0)
	sub, err := svc.CreateSubscription(1, time.Now(), &end, models.RenewalManual)
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(sub.ID))

	assert.Equal(t, models.SubStatusCancelled, store.subs[sub.ID].Status)
	assert.False(t, user.HasRole(models.ROLE_MEMBER))
}

func TestRegenerateRenewalToken(t *testing.T) {
	svc, store, _ := newServiceFixture(t)
	end := time.Now().AddDate(1, 0, 0)
	sub, err := svc.CreateSubscription(1, time.Now(), &end, models.RenewalManual)
	require.NoError(t, err)
	oldToken := sub.RenewalToken

	token, err := svc.RegenerateRenewalToken(sub.ID)
	require.NoError(t, err)
	assert.NotEqual(t, oldToken, token)
	assert.Equal(t, token, store.subs[sub.ID].RenewalToken)
}

func TestRegenerateRenewalTokenRejectsAutomatic(t *testing.T) {
	svc, _, _ := newServiceFixture(t)
	end := time.Now().AddDate(1, 0, 0)
	sub, err := svc.CreateSubscription(1, time.Now(), &end, models.RenewalAutomatic)
	require.NoError(t, err)

	_, err = svc.RegenerateRenewalToken(sub.ID)
	assert.ErrorIs(t, err, ErrNotManual)
}
