// Package endpoints classifies API paths once, so caching, invalidation and
// session-expiry exemption are decided from one typed table instead of
// substring checks at every call site.
package endpoints

import (
	"net/http"
	"path"
	"strings"

	"github.com/jrsteele09/go-telemed-client/cache"
)

type Category string

const (
	CategoryAuthLogin         Category = "auth-login"
	CategoryAuthRegister      Category = "auth-register"
	CategoryAuthIdentity      Category = "auth-identity"
	CategoryAuthLogout        Category = "auth-logout"
	CategoryAuthOther         Category = "auth-other"
	CategoryMessaging         Category = "messaging"
	CategoryConversations     Category = "conversations"
	CategoryVideoConsultation Category = "video-consultation"
	CategoryAppointments      Category = "appointments"
	CategoryAvailability      Category = "availability"
	CategoryDoctors           Category = "doctors"
	CategorySpecialties       Category = "specialties"
	CategoryEHR               Category = "ehr"
	CategoryMedicalHistory    Category = "medical-history"
	CategoryPrescriptions     Category = "prescriptions"
	CategoryUserSettings      Category = "user-settings"
	CategoryOther             Category = "other"
)

// Rule is what the table knows about one endpoint.
type Rule struct {
	Category Category
	// Cacheable is false for categories that must never be cached, whatever
	// the allow-list says.
	Cacheable        bool
	ExemptFromExpiry bool
	DataType         cache.DataType
}

type matcher struct {
	contains string
	prefix   string
	rule     Rule
}

func (m matcher) matches(p string) bool {
	if m.prefix != "" {
		return strings.HasPrefix(p, m.prefix)
	}
	return strings.Contains(p, m.contains)
}

// First match wins. Appointments come first so nothing below can make an
// appointment path cacheable.
var categoryMatchers = []matcher{
	{contains: "appointment", rule: Rule{Category: CategoryAppointments, DataType: cache.DataTypeAppointmentsList}},
	{prefix: "/auth/login", rule: Rule{Category: CategoryAuthLogin, ExemptFromExpiry: true}},
	{prefix: "/auth/register", rule: Rule{Category: CategoryAuthRegister, ExemptFromExpiry: true}},
	{prefix: "/register", rule: Rule{Category: CategoryAuthRegister, ExemptFromExpiry: true}},
	{prefix: "/auth/me", rule: Rule{Category: CategoryAuthIdentity}},
	// A rejected logout call must not be reported to the user as an expiry.
	{prefix: "/auth/logout", rule: Rule{Category: CategoryAuthLogout, ExemptFromExpiry: true}},
	{prefix: "/auth/", rule: Rule{Category: CategoryAuthOther}},
	{contains: "/messag", rule: Rule{Category: CategoryMessaging, ExemptFromExpiry: true}},
	{contains: "/chat", rule: Rule{Category: CategoryMessaging, ExemptFromExpiry: true}},
	{contains: "/conversations", rule: Rule{Category: CategoryConversations, ExemptFromExpiry: true}},
	{contains: "/video", rule: Rule{Category: CategoryVideoConsultation, ExemptFromExpiry: true}},
	{contains: "availability", rule: Rule{Category: CategoryAvailability, Cacheable: true, DataType: cache.DataTypeDoctorAvailability}},
	{contains: "medical-history", rule: Rule{Category: CategoryMedicalHistory, Cacheable: true, DataType: cache.DataTypeMedicalHistory}},
	{contains: "/ehr", rule: Rule{Category: CategoryEHR, Cacheable: true, DataType: cache.DataTypePatientEHR}},
	{contains: "prescriptions", rule: Rule{Category: CategoryPrescriptions, Cacheable: true, DataType: cache.DataTypePrescriptions}},
	{contains: "user-settings", rule: Rule{Category: CategoryUserSettings, Cacheable: true, DataType: cache.DataTypeUserSettings}},
	{contains: "doctors", rule: Rule{Category: CategoryDoctors, Cacheable: true, DataType: cache.DataTypeDoctorsList}},
	{prefix: "/specialties", rule: Rule{Category: CategorySpecialties, Cacheable: true, DataType: cache.DataTypeGeneral}},
}

type invalidation struct {
	contains []string
	targets  []cache.DataType
}

var invalidationTable = []invalidation{
	{contains: []string{"appointments"}, targets: []cache.DataType{cache.DataTypeAppointmentsList, cache.DataTypeDoctorAvailability}},
	{contains: []string{"ehr", "medical-history"}, targets: []cache.DataType{cache.DataTypePatientEHR, cache.DataTypeMedicalHistory}},
	{contains: []string{"prescriptions"}, targets: []cache.DataType{cache.DataTypePrescriptions}},
	{contains: []string{"user-settings"}, targets: []cache.DataType{cache.DataTypeUserSettings}},
	{contains: []string{"doctors"}, targets: []cache.DataType{cache.DataTypeDoctorsList}},
}

// Table is built once at startup and is safe for concurrent use.
type Table struct {
	cacheablePrefixes []string
}

// NewTable builds a Table with the allow-list of cacheable path prefixes.
func NewTable(cacheablePrefixes []string) *Table {
	prefixes := make([]string, 0, len(cacheablePrefixes))
	for _, p := range cacheablePrefixes {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		prefixes = append(prefixes, p)
	}
	return &Table{cacheablePrefixes: prefixes}
}

// Normalize lowercases endpoint and strips its query string and fragment.
func Normalize(endpoint string) string {
	if i := strings.IndexAny(endpoint, "?#"); i >= 0 {
		endpoint = endpoint[:i]
	}
	endpoint = strings.ToLower(strings.TrimSpace(endpoint))
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return endpoint
}

// Resolve returns the rule for endpoint.
func (t *Table) Resolve(endpoint string) Rule {
	p := Normalize(endpoint)
	for _, m := range categoryMatchers {
		if m.matches(p) {
			return m.rule
		}
	}
	return Rule{Category: CategoryOther, Cacheable: true, DataType: cache.DataTypeGeneral}
}

// ShouldCache reports whether a response for method+endpoint may be cached.
// The appointments exclusion is checked before the allow-list.
func (t *Table) ShouldCache(endpoint, method string) bool {
	if method != "" && !strings.EqualFold(method, http.MethodGet) {
		return false
	}
	if !t.Resolve(endpoint).Cacheable {
		return false
	}
	p := Normalize(endpoint)
	for _, prefix := range t.cacheablePrefixes {
		if p == prefix || strings.HasPrefix(p, strings.TrimSuffix(prefix, "/")+"/") {
			return true
		}
	}
	return false
}

// Invalidations lists the data types to clear after a successful mutation of
// endpoint, in table order without duplicates.
func (t *Table) Invalidations(endpoint string) []cache.DataType {
	p := Normalize(endpoint)
	var out []cache.DataType
	seen := make(map[cache.DataType]bool)
	for _, row := range invalidationTable {
		for _, needle := range row.contains {
			if !strings.Contains(p, needle) {
				continue
			}
			for _, dt := range row.targets {
				if !seen[dt] {
					seen[dt] = true
					out = append(out, dt)
				}
			}
			break
		}
	}
	return out
}

// IsExempt reports whether a 401 from endpoint must be returned to the caller
// instead of ending the session. Everything is exempt while the user is in a
// video consultation.
func (t *Table) IsExempt(endpoint, currentPage string) bool {
	return t.Resolve(endpoint).ExemptFromExpiry || IsVideoConsultationPage(currentPage)
}

// IsVideoConsultationPage reports whether page is the live consultation view.
func IsVideoConsultationPage(page string) bool {
	if page == "" {
		return false
	}
	name := strings.ToLower(path.Base(Normalize(page)))
	return strings.Contains(name, "video") || strings.Contains(name, "consultation-room")
}

// IsMutation reports whether method changes server state.
func IsMutation(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
