package password

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply_UserTier(t *testing.T) {
	ctx := context.Background()
	policy := PolicyFor(TierUser)

	decision, err := Apply(ctx, policy, "Str0ng!Passw0rd", Context{})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Empty(t, decision.Reason)

	decision, err = Apply(ctx, policy, "weak", Context{})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.NotEmpty(t, decision.Reason)
}

func TestApply_AdminBlockedSubstring(t *testing.T) {
	ctx := context.Background()
	policy := PolicyFor(TierAdmin)

	// Meets length and class requirements but contains "administrator"
	decision, err := Apply(ctx, policy, "Administrator123!", Context{})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Contains(t, decision.Reason, "must not contain")

	decision, err = Apply(ctx, policy, "Spl3ndid!Orbit42", Context{})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestApply_AdminMinLength(t *testing.T) {
	ctx := context.Background()
	policy := PolicyFor(TierAdmin)

	// Strong at the baseline but below the admin minimum of 12
	decision, err := Apply(ctx, policy, "Sh0rt!Pwd", Context{})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Contains(t, decision.Reason, "at least 12")
}

func TestApply_SuperAdminTier(t *testing.T) {
	ctx := context.Background()
	policy := PolicyFor(TierSuperAdmin)

	// One special character is not enough for the superAdmin tier
	decision, err := Apply(ctx, policy, "Veryl0ngCandidate!a", Context{})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Contains(t, decision.Reason, "at least 2 special")

	decision, err = Apply(ctx, policy, "Veryl0ng#Candidate!a", Context{})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	// Below the 16-character minimum
	decision, err = Apply(ctx, policy, "Sh0rt#Cand!a", Context{})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Contains(t, decision.Reason, "at least 16")
}

func TestApply_UnknownTierFallsBackToUser(t *testing.T) {
	policy := PolicyFor("viewer")
	assert.Equal(t, TierUser, policy.Name)
	assert.Equal(t, 5, policy.HistoryLimit)
}

func TestPolicyFor_CaseInsensitiveTierNames(t *testing.T) {
	for _, name := range []string{TierSuperAdmin, "superadmin", "SUPERADMIN"} {
		policy := PolicyFor(name)
		assert.Equal(t, TierSuperAdmin, policy.Name, "tier name %q", name)
		assert.Equal(t, 15, policy.HistoryLimit)
	}

	for _, name := range []string{TierAdmin, "Admin", "ADMIN"} {
		policy := PolicyFor(name)
		assert.Equal(t, TierAdmin, policy.Name, "tier name %q", name)
		assert.Equal(t, 10, policy.HistoryLimit)
	}
}

func TestApply_HistoryRejectsReuse(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryHistory()
	policy := PolicyFor(TierUser)
	pc := Context{AccountID: "acct-1", History: store}

	require.NoError(t, RecordHistory(ctx, store, "acct-1", "P@ssw0rd1Xy", policy.MaxHistory))

	decision, err := Apply(ctx, policy, "P@ssw0rd1Xy", pc)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Contains(t, decision.Reason, "last 5 passwords")

	decision, err = Apply(ctx, policy, "Fr3sh!Candidate", pc)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestApply_StrengthReportedBeforeRules(t *testing.T) {
	ctx := context.Background()
	policy := PolicyFor(TierAdmin)

	// "admin" substring and weak strength: the strength report wins and
	// enumerates every baseline violation
	decision, err := Apply(ctx, policy, "admin", Context{})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Contains(t, decision.Reason, "at least 8 characters")
	assert.Contains(t, decision.Reason, "uppercase")
}
