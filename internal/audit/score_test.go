package audit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRiskScoreWeights(t *testing.T) {
	// base 10 + authentication 20 + login 5 + failure 20
	score := RiskScore(RawSecurityEvent{
		EventType: EventAuthentication,
		Action:    "login",
		Result:    ResultFailure,
	})
	require.Equal(t, 55, score)

	// base 10 + authorization 15
	score = RiskScore(RawSecurityEvent{
		EventType: EventAuthorization,
		Action:    "read",
		Result:    ResultSuccess,
	})
	require.Equal(t, 25, score)
}

func TestRiskScoreClamps(t *testing.T) {
	// base 10 + system_change 35 + data_export 40 + failure 20 = 105
	score := RiskScore(RawSecurityEvent{
		EventType: EventSystemChange,
		Action:    "data_export",
		Result:    ResultError,
	})
	require.Equal(t, 100, score)
}

func TestComplianceTagsMultiple(t *testing.T) {
	tags := ComplianceTags(RawSecurityEvent{
		EventType: EventDataAccess,
		Resource:  "user_profiles",
		Action:    "read",
	})
	require.Contains(t, tags, TagGDPR)

	tags = ComplianceTags(RawSecurityEvent{
		EventType: EventAuthorization,
		Resource:  "payment_methods",
		Action:    "admin_review",
	})
	require.Contains(t, tags, TagPCIDSS)
	require.Contains(t, tags, TagSOC2Security)
	require.Contains(t, tags, TagSOC2Availability)

	tags = ComplianceTags(RawSecurityEvent{
		EventType: EventDataAccess,
		Resource:  "health_records",
	})
	require.Contains(t, tags, TagHIPAA)
}

func TestClassifyDefaultsRestricted(t *testing.T) {
	require.Equal(t, ClassPublic, Classify("docs"))
	require.Equal(t, ClassConfidential, Classify("audit_logs"))
	require.Equal(t, ClassRestricted, Classify("something_new"))
}

func TestRetentionDays(t *testing.T) {
	require.Equal(t, 365, RetentionDays(EventAuthorization, nil))
	require.Equal(t, 1095, RetentionDays(EventDataAccess, nil))

	// GDPR and PCI tags extend retention to the long window.
	require.Equal(t, 2555, RetentionDays(EventAuthorization, []ComplianceTag{TagGDPR}))
	require.Equal(t, 2555, RetentionDays(EventDataAccess, []ComplianceTag{TagPCIDSS}))

	// Admin actions already retain for the long window.
	require.Equal(t, 2555, RetentionDays(EventAdminAction, nil))

	// Unknown event types fall back to a year.
	require.Equal(t, 365, RetentionDays("something_else", nil))
}

func TestValidateRawEvent(t *testing.T) {
	valid := RawSecurityEvent{
		EventType: EventDataAccess,
		Action:    "read",
		Result:    ResultSuccess,
	}
	require.NoError(t, valid.Validate())

	bad := valid
	bad.EventType = "telemetry"
	require.Error(t, bad.Validate())

	bad = valid
	bad.Result = "MAYBE"
	require.Error(t, bad.Validate())

	bad = valid
	bad.Action = "  "
	require.Error(t, bad.Validate())
}
