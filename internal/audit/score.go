package audit

import (
	"sort"
	"strings"
)

// Risk weights per event type and action. The base score applies to every
// event; failures add a flat penalty; the total clamps to [0,100].
const (
	riskBase           = 10
	riskFailurePenalty = 20
	riskMax            = 100
)

var eventTypeWeights = map[string]int{
	EventAuthentication: 20,
	EventAuthorization:  15,
	EventDataAccess:     25,
	EventAdminAction:    30,
	EventSystemChange:   35,
}

var actionWeights = map[string]int{
	"login":             5,
	"logout":            5,
	"data_export":       40,
	"bulk_download":     40,
	"user_create":       25,
	"user_delete":       25,
	"permission_change": 30,
}

// RiskScore computes the risk score for an event, clamped to [0,100].
func RiskScore(e RawSecurityEvent) int {
	score := riskBase
	score += eventTypeWeights[e.EventType]
	score += actionWeights[strings.ToLower(e.Action)]
	if e.Result == ResultFailure || e.Result == ResultError {
		score += riskFailurePenalty
	}
	if score > riskMax {
		return riskMax
	}
	if score < 0 {
		return 0
	}
	return score
}

var gdprMarkers = []string{"personal", "profile", "pii", "data_subject", "consent", "user_data"}

// ComplianceTags derives the set of compliance regimes an event falls under.
// Multiple simultaneous tags are valid and expected.
func ComplianceTags(e RawSecurityEvent) []ComplianceTag {
	tags := make(map[ComplianceTag]struct{})
	resource := strings.ToLower(e.Resource)
	action := strings.ToLower(e.Action)

	for _, marker := range gdprMarkers {
		if strings.Contains(resource, marker) || strings.Contains(action, marker) {
			tags[TagGDPR] = struct{}{}
			break
		}
	}
	if e.EventType == EventAuthentication || e.EventType == EventAuthorization {
		tags[TagSOC2Security] = struct{}{}
	}
	if strings.Contains(resource, "system") || strings.Contains(resource, "admin") ||
		strings.Contains(action, "system") || strings.Contains(action, "admin") {
		tags[TagSOC2Availability] = struct{}{}
	}
	if strings.Contains(resource, "payment") || strings.Contains(resource, "card") {
		tags[TagPCIDSS] = struct{}{}
	}
	if strings.Contains(resource, "health") || strings.Contains(resource, "medical") {
		tags[TagHIPAA] = struct{}{}
	}

	result := make([]ComplianceTag, 0, len(tags))
	for tag := range tags {
		result = append(result, tag)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

var classifications = map[string]DataClassification{
	"docs":            ClassPublic,
	"status_page":     ClassPublic,
	"tickets":         ClassInternal,
	"reports":         ClassInternal,
	"dashboards":      ClassInternal,
	"users":           ClassConfidential,
	"user_profiles":   ClassConfidential,
	"audit_logs":      ClassConfidential,
	"payment_methods": ClassRestricted,
	"card_data":       ClassRestricted,
	"health_records":  ClassRestricted,
	"credentials":     ClassRestricted,
}

// Classify returns the data classification for a resource. Unknown resources
// default to the most conservative class.
func Classify(resource string) DataClassification {
	if class, ok := classifications[strings.ToLower(resource)]; ok {
		return class
	}
	return ClassRestricted
}

// Retention periods in days, keyed by event type. Events tagged for GDPR or
// PCI DSS retain for the long compliance window regardless of type.
const longRetentionDays = 2555 // ~7 years

var retentionByEventType = map[string]int{
	EventAuthentication: 365,
	EventAuthorization:  365,
	EventDataAccess:     1095,
	EventAdminAction:    2555,
	EventSystemChange:   730,
}

// RetentionDays returns the retention period for an event given its type and
// compliance tags.
func RetentionDays(eventType string, tags []ComplianceTag) int {
	days := retentionByEventType[eventType]
	if days == 0 {
		days = 365
	}
	for _, tag := range tags {
		if tag == TagGDPR || tag == TagPCIDSS {
			if longRetentionDays > days {
				days = longRetentionDays
			}
		}
	}
	return days
}
