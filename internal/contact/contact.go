package contact

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrInvalidInput         = errors.New("invalid input")
	ErrNotConfigured        = errors.New("directory not configured")
	ErrDirectoryUnavailable = errors.New("directory unavailable")
	ErrSchemaMismatch       = errors.New("schema mismatch")
)

// ValidationError reports a single field that violates the contact schema.
// It is surfaced to the caller verbatim, never retried or auto-corrected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// SchemaError reports a remote record whose shape does not match the
// expected field map.
type SchemaError struct {
	RecordID string
	Field    string
	Detail   string
}

func (e *SchemaError) Error() string {
	if e.RecordID != "" {
		return fmt.Sprintf("schema mismatch on %s (record %s): %s", e.Field, e.RecordID, e.Detail)
	}
	return fmt.Sprintf("schema mismatch on %s: %s", e.Field, e.Detail)
}

func (e *SchemaError) Is(target error) bool {
	return target == ErrSchemaMismatch
}

type Status string

const (
	StatusWait          Status = "wait"
	StatusQueued        Status = "queued"
	StatusNeedToContact Status = "need_to_contact"
	StatusContacted     Status = "contacted"
	StatusCircleBack    Status = "circle_back"
	StatusScheduled     Status = "scheduled"
	StatusDone          Status = "done"
	StatusGhosted       Status = "ghosted"
)

var allStatuses = []Status{
	StatusWait, StatusQueued, StatusNeedToContact, StatusContacted,
	StatusCircleBack, StatusScheduled, StatusDone, StatusGhosted,
}

func (s Status) Valid() bool {
	for _, known := range allStatuses {
		if s == known {
			return true
		}
	}
	return false
}

func Statuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

type Type string

const (
	TypeExisting Type = "existing"
	Type2026New  Type = "2026_new"
)

func (t Type) Valid() bool {
	return t == TypeExisting || t == Type2026New
}

type Group string

const (
	GroupOther Group = "other"
	GroupFam   Group = "fam"
	GroupMcK   Group = "McK"
	GroupPEA   Group = "PEA"
	GroupGU    Group = "GU"
	GroupBP    Group = "BP"
	GroupMBA   Group = "MBA"
	GroupMVNX  Group = "MVNX"
)

var allGroups = []Group{
	GroupOther, GroupFam, GroupMcK, GroupPEA, GroupGU, GroupBP, GroupMBA, GroupMVNX,
}

func (g Group) Valid() bool {
	for _, known := range allGroups {
		if g == known {
			return true
		}
	}
	return false
}

type RelationshipType string

const (
	RelationshipFriend          RelationshipType = "friend"
	RelationshipAdvisor         RelationshipType = "advisor"
	RelationshipPotentialClient RelationshipType = "potential_client"
	RelationshipColleague       RelationshipType = "colleague"
	RelationshipOther           RelationshipType = "other"
)

func (r RelationshipType) Valid() bool {
	switch r {
	case RelationshipFriend, RelationshipAdvisor, RelationshipPotentialClient,
		RelationshipColleague, RelationshipOther:
		return true
	}
	return false
}

// Contact is the canonical record. The external directory assigns ID and is
// the system of record; everything else here is a value copy. Nullable dates
// use the time.Time zero value as null.
type Contact struct {
	ID               string
	Name             string
	Email            string
	Phone            string
	Status           Status
	Type             Type
	Group            Group
	RelationshipType RelationshipType
	Title            string
	Company          string
	Industry         string
	Location         string
	LinkedInURL      string
	Notes            string

	LastContactDate  time.Time
	StatusChangedAt  time.Time
	NextFollowupDate time.Time
	FollowupContext  string

	CallCount     int
	ContactCount  int
	FollowupCount int

	CreatedDate    time.Time
	UpdatedDate    time.Time
	ArchivedDate   time.Time
	ArchivedReason string

	// RemoteEditedAt is the directory's last-edited timestamp for the
	// backing record, carried for conflict detection only.
	RemoteEditedAt time.Time
}

func (c Contact) Archived() bool {
	return !c.ArchivedDate.IsZero()
}

// CreateInput carries the caller-settable fields of a new contact.
type CreateInput struct {
	Name             string
	Email            string
	Phone            string
	Status           Status
	Type             Type
	Group            Group
	RelationshipType RelationshipType
	Title            string
	Company          string
	Industry         string
	Location         string
	LinkedInURL      string
	Notes            string
	LastContactDate  time.Time
	NextFollowupDate time.Time
	FollowupContext  string
}

// Patch is a partial update. Nil means "leave unchanged"; a pointer to the
// zero value clears the field. Counter and stamp fields are not part of the
// caller-editable surface; only collaborator events and the service set them.
type Patch struct {
	Name             *string
	Email            *string
	Phone            *string
	Status           *Status
	Type             *Type
	Group            *Group
	RelationshipType *RelationshipType
	Title            *string
	Company          *string
	Industry         *string
	Location         *string
	LinkedInURL      *string
	Notes            *string
	LastContactDate  *time.Time
	NextFollowupDate *time.Time
	FollowupContext  *string

	StatusChangedAt *time.Time
	CallCount       *int
	ContactCount    *int
	FollowupCount   *int
}

func (p Patch) Empty() bool {
	return len(p.SetFields()) == 0 &&
		p.StatusChangedAt == nil && p.CallCount == nil && p.ContactCount == nil &&
		p.FollowupCount == nil
}

// ValidateCreate enforces the schema on a new contact and fills defaults.
// It never touches the network.
func ValidateCreate(in CreateInput, now time.Time) (Contact, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Contact{}, &ValidationError{Field: "name", Reason: "name cannot be empty"}
	}
	email := strings.TrimSpace(in.Email)
	phone := strings.TrimSpace(in.Phone)
	if email == "" && phone == "" {
		return Contact{}, &ValidationError{Field: "email", Reason: "at least one contact method required"}
	}
	status := in.Status
	if status == "" {
		status = StatusQueued
	}
	if !status.Valid() {
		return Contact{}, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", in.Status)}
	}
	if in.Type != "" && !in.Type.Valid() {
		return Contact{}, &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown type %q", in.Type)}
	}
	if in.Group != "" && !in.Group.Valid() {
		return Contact{}, &ValidationError{Field: "group", Reason: fmt.Sprintf("unknown group %q", in.Group)}
	}
	if in.RelationshipType != "" && !in.RelationshipType.Valid() {
		return Contact{}, &ValidationError{Field: "relationship_type", Reason: fmt.Sprintf("unknown relationship type %q", in.RelationshipType)}
	}

	day := now.Truncate(24 * time.Hour)
	return Contact{
		Name:             name,
		Email:            email,
		Phone:            phone,
		Status:           status,
		Type:             in.Type,
		Group:            in.Group,
		RelationshipType: in.RelationshipType,
		Title:            strings.TrimSpace(in.Title),
		Company:          strings.TrimSpace(in.Company),
		Industry:         strings.TrimSpace(in.Industry),
		Location:         strings.TrimSpace(in.Location),
		LinkedInURL:      strings.TrimSpace(in.LinkedInURL),
		Notes:            in.Notes,
		LastContactDate:  in.LastContactDate,
		NextFollowupDate: in.NextFollowupDate,
		FollowupContext:  in.FollowupContext,
		StatusChangedAt:  day,
		CreatedDate:      day,
		UpdatedDate:      now,
	}, nil
}

// ApplyPatch applies p over existing and re-validates the result. The second
// return reports whether status actually changed value; if so the returned
// contact carries a fresh StatusChangedAt stamp. A patch that re-sends the
// current status does not touch the stamp.
func ApplyPatch(existing Contact, p Patch, now time.Time) (Contact, bool, error) {
	c := existing

	if p.Name != nil {
		c.Name = strings.TrimSpace(*p.Name)
	}
	if p.Email != nil {
		c.Email = strings.TrimSpace(*p.Email)
	}
	if p.Phone != nil {
		c.Phone = strings.TrimSpace(*p.Phone)
	}
	if p.Status != nil {
		c.Status = *p.Status
	}
	if p.Type != nil {
		c.Type = *p.Type
	}
	if p.Group != nil {
		c.Group = *p.Group
	}
	if p.RelationshipType != nil {
		c.RelationshipType = *p.RelationshipType
	}
	if p.Title != nil {
		c.Title = strings.TrimSpace(*p.Title)
	}
	if p.Company != nil {
		c.Company = strings.TrimSpace(*p.Company)
	}
	if p.Industry != nil {
		c.Industry = strings.TrimSpace(*p.Industry)
	}
	if p.Location != nil {
		c.Location = strings.TrimSpace(*p.Location)
	}
	if p.LinkedInURL != nil {
		c.LinkedInURL = strings.TrimSpace(*p.LinkedInURL)
	}
	if p.Notes != nil {
		c.Notes = *p.Notes
	}
	if p.LastContactDate != nil {
		c.LastContactDate = *p.LastContactDate
	}
	if p.NextFollowupDate != nil {
		c.NextFollowupDate = *p.NextFollowupDate
	}
	if p.FollowupContext != nil {
		c.FollowupContext = *p.FollowupContext
	}

	if c.Name == "" {
		return Contact{}, false, &ValidationError{Field: "name", Reason: "name cannot be empty"}
	}
	if c.Email == "" && c.Phone == "" {
		return Contact{}, false, &ValidationError{Field: "email", Reason: "at least one contact method required"}
	}
	if !c.Status.Valid() {
		return Contact{}, false, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", c.Status)}
	}
	if c.Type != "" && !c.Type.Valid() {
		return Contact{}, false, &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown type %q", c.Type)}
	}
	if c.Group != "" && !c.Group.Valid() {
		return Contact{}, false, &ValidationError{Field: "group", Reason: fmt.Sprintf("unknown group %q", c.Group)}
	}
	if c.RelationshipType != "" && !c.RelationshipType.Valid() {
		return Contact{}, false, &ValidationError{Field: "relationship_type", Reason: fmt.Sprintf("unknown relationship type %q", c.RelationshipType)}
	}

	statusChanged := c.Status != existing.Status
	if statusChanged {
		c.StatusChangedAt = now.Truncate(24 * time.Hour)
	}
	c.UpdatedDate = now
	return c, statusChanged, nil
}

// SetFields lists the caller-editable fields set on p, in schema order.
// The conflict resolver and the partial-update encoder both key off this.
func (p Patch) SetFields() []string {
	var fields []string
	for _, f := range patchFieldTable {
		if f.isSet(p) {
			fields = append(fields, f.name)
		}
	}
	return fields
}

type patchField struct {
	name    string
	isSet   func(Patch) bool
	value   func(Patch) any
	current func(Contact) any
	clear   func(*Patch)
}

var patchFieldTable = []patchField{
	{"name", func(p Patch) bool { return p.Name != nil }, func(p Patch) any { return *p.Name }, func(c Contact) any { return c.Name }, func(p *Patch) { p.Name = nil }},
	{"email", func(p Patch) bool { return p.Email != nil }, func(p Patch) any { return *p.Email }, func(c Contact) any { return c.Email }, func(p *Patch) { p.Email = nil }},
	{"phone", func(p Patch) bool { return p.Phone != nil }, func(p Patch) any { return *p.Phone }, func(c Contact) any { return c.Phone }, func(p *Patch) { p.Phone = nil }},
	{"status", func(p Patch) bool { return p.Status != nil }, func(p Patch) any { return *p.Status }, func(c Contact) any { return c.Status }, func(p *Patch) { p.Status = nil }},
	{"type", func(p Patch) bool { return p.Type != nil }, func(p Patch) any { return *p.Type }, func(c Contact) any { return c.Type }, func(p *Patch) { p.Type = nil }},
	{"group", func(p Patch) bool { return p.Group != nil }, func(p Patch) any { return *p.Group }, func(c Contact) any { return c.Group }, func(p *Patch) { p.Group = nil }},
	{"relationship_type", func(p Patch) bool { return p.RelationshipType != nil }, func(p Patch) any { return *p.RelationshipType }, func(c Contact) any { return c.RelationshipType }, func(p *Patch) { p.RelationshipType = nil }},
	{"title", func(p Patch) bool { return p.Title != nil }, func(p Patch) any { return *p.Title }, func(c Contact) any { return c.Title }, func(p *Patch) { p.Title = nil }},
	{"company", func(p Patch) bool { return p.Company != nil }, func(p Patch) any { return *p.Company }, func(c Contact) any { return c.Company }, func(p *Patch) { p.Company = nil }},
	{"industry", func(p Patch) bool { return p.Industry != nil }, func(p Patch) any { return *p.Industry }, func(c Contact) any { return c.Industry }, func(p *Patch) { p.Industry = nil }},
	{"location", func(p Patch) bool { return p.Location != nil }, func(p Patch) any { return *p.Location }, func(c Contact) any { return c.Location }, func(p *Patch) { p.Location = nil }},
	{"linkedin_url", func(p Patch) bool { return p.LinkedInURL != nil }, func(p Patch) any { return *p.LinkedInURL }, func(c Contact) any { return c.LinkedInURL }, func(p *Patch) { p.LinkedInURL = nil }},
	{"notes", func(p Patch) bool { return p.Notes != nil }, func(p Patch) any { return *p.Notes }, func(c Contact) any { return c.Notes }, func(p *Patch) { p.Notes = nil }},
	{"last_contact_date", func(p Patch) bool { return p.LastContactDate != nil }, func(p Patch) any { return *p.LastContactDate }, func(c Contact) any { return c.LastContactDate }, func(p *Patch) { p.LastContactDate = nil }},
	{"next_followup_date", func(p Patch) bool { return p.NextFollowupDate != nil }, func(p Patch) any { return *p.NextFollowupDate }, func(c Contact) any { return c.NextFollowupDate }, func(p *Patch) { p.NextFollowupDate = nil }},
	{"followup_context", func(p Patch) bool { return p.FollowupContext != nil }, func(p Patch) any { return *p.FollowupContext }, func(c Contact) any { return c.FollowupContext }, func(p *Patch) { p.FollowupContext = nil }},
}

func fieldValuesEqual(a, b any) bool {
	at, aok := a.(time.Time)
	bt, bok := b.(time.Time)
	if aok && bok {
		return at.Equal(bt)
	}
	return a == b
}
