// Package match computes buddy sets and the admin dashboard summaries over an
// already fetched user list. Every function is a single linear scan; the list
// is neighbourhood sized and is not indexed.
package match

import "github.com/Skryldev/findmybuddy/models"

// Buddies returns every approved resident that shares u's PIN code, u itself
// excluded. The order of all is preserved. A nil u has no buddies.
func Buddies(u *models.User, all []*models.User) []*models.User {
	out := make([]*models.User, 0)
	if u == nil {
		return out
	}
	for _, r := range all {
		if IsBuddy(u, r) {
			out = append(out, r)
		}
	}
	return out
}

// IsBuddy reports whether r belongs to u's buddy set.
func IsBuddy(u, r *models.User) bool {
	return r != nil &&
		r.Role == models.RoleUser &&
		r.PinCode == u.PinCode &&
		r.Status == models.StatusApproved &&
		r.ID != u.ID
}

// Summary holds the admin dashboard counters. Administrators are not counted.
type Summary struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
}

// Residents drops administrator records.
func Residents(all []*models.User) []*models.User {
	out := make([]*models.User, 0, len(all))
	for _, r := range all {
		if r != nil && !r.IsAdmin() {
			out = append(out, r)
		}
	}
	return out
}

// Summarize counts residents by status.
func Summarize(all []*models.User) Summary {
	var s Summary
	for _, r := range Residents(all) {
		s.Total++
		switch r.Status {
		case models.StatusPending:
			s.Pending++
		case models.StatusApproved:
			s.Approved++
		case models.StatusRejected:
			s.Rejected++
		}
	}
	return s
}

// Filter selects residents for the dashboard table.
type Filter string

const (
	FilterAll      Filter = "all"
	FilterPending  Filter = "pending"
	FilterApproved Filter = "approved"
	FilterRejected Filter = "rejected"
)

// ParseFilter maps s to a Filter; unknown values select everything.
func ParseFilter(s string) Filter {
	switch f := Filter(s); f {
	case FilterPending, FilterApproved, FilterRejected:
		return f
	}
	return FilterAll
}

// FilterStatus returns the residents matching f, order preserved.
func FilterStatus(all []*models.User, f Filter) []*models.User {
	residents := Residents(all)
	if f == FilterAll || f == "" {
		return residents
	}
	out := make([]*models.User, 0, len(residents))
	for _, r := range residents {
		if string(r.Status) == string(f) {
			out = append(out, r)
		}
	}
	return out
}
