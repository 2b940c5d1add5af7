package contact

import (
	"sort"
	"strings"
	"time"
)

// Criteria is a conjunction: every populated clause must match. Empty
// criteria matches all non-archived contacts.
type Criteria struct {
	Statuses            []Status
	Types               []Type
	Groups              []Group
	RelationshipTypes   []RelationshipType
	MinDaysSinceContact *int
	IncludeArchived     bool
}

func Filter(contacts []Contact, crit Criteria, today time.Time) []Contact {
	out := make([]Contact, 0, len(contacts))
	for _, c := range contacts {
		if c.Archived() && !crit.IncludeArchived {
			continue
		}
		if len(crit.Statuses) > 0 && !containsStatus(crit.Statuses, c.Status) {
			continue
		}
		if len(crit.Types) > 0 && !containsType(crit.Types, c.Type) {
			continue
		}
		if len(crit.Groups) > 0 && !containsGroup(crit.Groups, c.Group) {
			continue
		}
		if len(crit.RelationshipTypes) > 0 && !containsRelationship(crit.RelationshipTypes, c.RelationshipType) {
			continue
		}
		if crit.MinDaysSinceContact != nil {
			m := DeriveMetrics(c, today)
			if !m.EverContacted || m.DaysSinceLastContact < *crit.MinDaysSinceContact {
				continue
			}
		}
		out = append(out, c)
	}
	return out
}

// Search keeps contacts where any of name, email, phone, company, or notes
// contains text, case-insensitively. Empty text keeps everything.
func Search(contacts []Contact, text string) []Contact {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return contacts
	}
	out := make([]Contact, 0, len(contacts))
	for _, c := range contacts {
		if strings.Contains(strings.ToLower(c.Name), needle) ||
			strings.Contains(strings.ToLower(c.Email), needle) ||
			strings.Contains(strings.ToLower(c.Phone), needle) ||
			strings.Contains(strings.ToLower(c.Company), needle) ||
			strings.Contains(strings.ToLower(c.Notes), needle) {
			out = append(out, c)
		}
	}
	return out
}

type SortKey string

const (
	SortByName            SortKey = "name"
	SortByLastContactDate SortKey = "last_contact_date"
	SortByDaysAtStatus    SortKey = "days_at_current_status"
	SortByCreatedDate     SortKey = "created_date"
)

func (k SortKey) Valid() bool {
	switch k {
	case SortByName, SortByLastContactDate, SortByDaysAtStatus, SortByCreatedDate:
		return true
	}
	return false
}

// Sort returns a sorted copy. Contacts with a null sort value go last
// regardless of direction.
func Sort(contacts []Contact, key SortKey, descending bool, today time.Time) []Contact {
	out := make([]Contact, len(contacts))
	copy(out, contacts)
	if key == "" {
		key = SortByName
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		aNull, bNull := sortValueNull(a, key), sortValueNull(b, key)
		if aNull != bNull {
			return bNull
		}
		if aNull && bNull {
			return false
		}
		less := sortLess(a, b, key, today)
		if descending {
			return sortLess(b, a, key, today)
		}
		return less
	})
	return out
}

func sortValueNull(c Contact, key SortKey) bool {
	switch key {
	case SortByLastContactDate:
		return c.LastContactDate.IsZero()
	case SortByCreatedDate:
		return c.CreatedDate.IsZero()
	case SortByDaysAtStatus:
		return c.StatusChangedAt.IsZero()
	default:
		return false
	}
}

func sortLess(a, b Contact, key SortKey, today time.Time) bool {
	switch key {
	case SortByLastContactDate:
		return a.LastContactDate.Before(b.LastContactDate)
	case SortByCreatedDate:
		return a.CreatedDate.Before(b.CreatedDate)
	case SortByDaysAtStatus:
		return DeriveMetrics(a, today).DaysAtCurrentStatus < DeriveMetrics(b, today).DaysAtCurrentStatus
	default:
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	}
}

func containsStatus(set []Status, v Status) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func containsType(set []Type, v Type) bool {
	for _, t := range set {
		if t == v {
			return true
		}
	}
	return false
}

func containsGroup(set []Group, v Group) bool {
	for _, g := range set {
		if g == v {
			return true
		}
	}
	return false
}

func containsRelationship(set []RelationshipType, v RelationshipType) bool {
	for _, r := range set {
		if r == v {
			return true
		}
	}
	return false
}
