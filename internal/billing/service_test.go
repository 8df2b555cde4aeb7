package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repoyield/repoyield/internal/database"
)

func newTestService(t *testing.T) (*Service, *database.Repository) {
	t.Helper()

	db, err := database.NewDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := database.NewRepository(db)
	return NewService(repo, "test-secret"), repo
}

func TestAuthenticate(t *testing.T) {
	service, _ := newTestService(t)

	account, err := service.CreateAccount("dev@example.com", PlanStarter)
	require.NoError(t, err)
	require.NotEmpty(t, account.APIKey)

	found, err := service.Authenticate(account.APIKey)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, account.ID, found.ID)
	assert.Equal(t, PlanStarter, found.Plan)

	missing, err := service.Authenticate("ry_unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)

	empty, err := service.Authenticate("")
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestCreateAccountUnknownPlan(t *testing.T) {
	service, _ := newTestService(t)

	_, err := service.CreateAccount("dev@example.com", "enterprise")
	assert.Error(t, err)
}

func TestMonthlyQuotaEnforcement(t *testing.T) {
	service, _ := newTestService(t)

	account, err := service.CreateAccount("dev@example.com", PlanStarter)
	require.NoError(t, err)

	// Starter allows 10 analyses per month
	for i := 0; i < 10; i++ {
		result, err := service.ProcessRequest(account, "1.2.3.4", "test-agent", "/analyze", "POST")
		require.NoError(t, err)
		assert.True(t, result.CanMakeRequest, "request %d should be allowed", i+1)
		assert.True(t, result.RequestLogged)
	}

	result, err := service.ProcessRequest(account, "1.2.3.4", "test-agent", "/analyze", "POST")
	require.NoError(t, err)
	assert.False(t, result.CanMakeRequest)
	assert.False(t, result.RequestLogged)

	remaining, err := service.GetRemainingRequests(account)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
}

func TestNonAnalyzeRequestsDoNotCount(t *testing.T) {
	service, _ := newTestService(t)

	account, err := service.CreateAccount("dev@example.com", PlanStarter)
	require.NoError(t, err)

	result, err := service.ProcessRequest(account, "1.2.3.4", "test-agent", "/user/stats", "GET")
	require.NoError(t, err)
	assert.True(t, result.CanMakeRequest)
	assert.False(t, result.RequestLogged)

	remaining, err := service.GetRemainingRequests(account)
	require.NoError(t, err)
	assert.Equal(t, 10, remaining)
}

func TestUnlimitedPlanBypassesQuota(t *testing.T) {
	service, _ := newTestService(t)

	account, err := service.CreateAccount("agency@example.com", PlanAgency)
	require.NoError(t, err)

	for i := 0; i < 60; i++ {
		result, err := service.ProcessRequest(account, "1.2.3.4", "test-agent", "/analyze", "POST")
		require.NoError(t, err)
		require.True(t, result.CanMakeRequest)
	}

	remaining, err := service.GetRemainingRequests(account)
	require.NoError(t, err)
	assert.Equal(t, UnlimitedQuota, remaining)
}

func TestSessionTokenRoundTrip(t *testing.T) {
	service, _ := newTestService(t)

	token, err := service.GenerateSessionToken("account-123")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	accountID, err := service.ValidateSessionToken(token)
	require.NoError(t, err)
	assert.Equal(t, "account-123", accountID)

	_, err = service.ValidateSessionToken("not-a-token")
	assert.Error(t, err)
}

func TestAuthenticateSession(t *testing.T) {
	service, _ := newTestService(t)

	account, err := service.CreateAccount("dev@example.com", PlanProfessional)
	require.NoError(t, err)

	token, err := service.GenerateSessionToken(account.ID)
	require.NoError(t, err)

	found, err := service.AuthenticateSession(token)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, account.ID, found.ID)

	// Valid token for a deleted account resolves to nil
	ghost, err := service.GenerateSessionToken("acct-gone")
	require.NoError(t, err)
	missing, err := service.AuthenticateSession(ghost)
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = service.AuthenticateSession("aaa.bbb.ccc")
	assert.Error(t, err)
}

func TestUpgradeAccount(t *testing.T) {
	service, repo := newTestService(t)

	account, err := service.CreateAccount("dev@example.com", PlanStarter)
	require.NoError(t, err)

	require.NoError(t, service.UpgradeAccount(account.ID, PlanProfessional, "cus_test123"))

	upgraded, err := repo.GetAccountByAPIKey(account.APIKey)
	require.NoError(t, err)
	assert.Equal(t, PlanProfessional, upgraded.Plan)
	assert.Equal(t, "cus_test123", upgraded.StripeID)

	byStripe, err := repo.GetAccountByStripeCustomerID("cus_test123")
	require.NoError(t, err)
	assert.Equal(t, account.ID, byStripe.ID)

	assert.Error(t, service.UpgradeAccount(account.ID, "enterprise", "cus_test123"))
}

func TestGetAccountStats(t *testing.T) {
	service, _ := newTestService(t)

	account, err := service.CreateAccount("dev@example.com", PlanProfessional)
	require.NoError(t, err)

	_, err = service.ProcessRequest(account, "1.2.3.4", "test-agent", "/analyze", "POST")
	require.NoError(t, err)

	stats, err := service.GetAccountStats(account)
	require.NoError(t, err)
	assert.Equal(t, PlanProfessional, stats.Plan)
	assert.Equal(t, 1, stats.RequestsThisMonth)
	assert.Equal(t, 49, stats.RemainingRequests)
	assert.True(t, stats.MonthEnd.After(stats.MonthStart))
}
