package notion

import (
	"fmt"
	"strings"
	"time"

	"github.com/rolodexhq/rolodex/internal/contact"
)

// The directory stores contacts as a heterogeneous property bag. This file
// is the single place where that stringly-typed data is converted into the
// closed enums and typed fields of the canonical Contact, and back. Any
// enum value the maps below cannot account for is a decode error, never
// passed through silently.

const (
	propName             = "Name"
	propEmail            = "Email"
	propPhone            = "Phone"
	propStatus           = "Status"
	propType             = "Type"
	propGroup            = "Group"
	propRelationshipType = "Relationship type"
	propRole             = "Role"
	propCompany          = "Company"
	propIndustry         = "Industry"
	propLocation         = "Location"
	propLinkedIn         = "LinkedIn"
	propNotes            = "Notes"
	propLastContactDate  = "Last contact date"
	propStatusChangedAt  = "Status changed date"
	propNextFollowupDate = "Next followup date"
	propFollowupContext  = "Followup context"
	propCallCount        = "Call count"
	propContactCount     = "Contact count"
	propFollowupCount    = "Followup count"
	propCreatedDate      = "Created date"
	propArchivedDate     = "Archived date"
	propArchivedReason   = "Archived reason"
)

const dateLayout = "2006-01-02"

type page struct {
	Object         string              `json:"object"`
	ID             string              `json:"id"`
	Archived       bool                `json:"archived"`
	LastEditedTime string              `json:"last_edited_time"`
	Properties     map[string]property `json:"properties"`
}

type property struct {
	Type        string        `json:"type,omitempty"`
	Title       []richText    `json:"title,omitempty"`
	RichText    []richText    `json:"rich_text,omitempty"`
	Email       *string       `json:"email,omitempty"`
	PhoneNumber *string       `json:"phone_number,omitempty"`
	URL         *string       `json:"url,omitempty"`
	Number      *float64      `json:"number,omitempty"`
	Select      *selectOption `json:"select,omitempty"`
	Status      *selectOption `json:"status,omitempty"`
	Date        *dateValue    `json:"date,omitempty"`
}

type richText struct {
	Type      string    `json:"type,omitempty"`
	PlainText string    `json:"plain_text,omitempty"`
	Text      *textSpan `json:"text,omitempty"`
}

type textSpan struct {
	Content string `json:"content"`
}

type selectOption struct {
	Name string `json:"name"`
}

type dateValue struct {
	Start string `json:"start"`
}

// Labels used on the remote side. Decoding is tolerant of historical
// variants; encoding always writes the canonical label.
var statusLabels = map[contact.Status]string{
	contact.StatusWait:          "Wait",
	contact.StatusQueued:        "Queued",
	contact.StatusNeedToContact: "Need to Contact",
	contact.StatusContacted:     "Contacted",
	contact.StatusCircleBack:    "Circle Back",
	contact.StatusScheduled:     "Scheduled",
	contact.StatusDone:          "Done",
	contact.StatusGhosted:       "Ghosted",
}

var typeLabels = map[contact.Type]string{
	contact.TypeExisting: "Existing",
	contact.Type2026New:  "2026 New",
}

var groupLabels = map[contact.Group]string{
	contact.GroupOther: "Other",
	contact.GroupFam:   "Fam",
	contact.GroupMcK:   "McK",
	contact.GroupPEA:   "PEA",
	contact.GroupGU:    "GU",
	contact.GroupBP:    "BP",
	contact.GroupMBA:   "MBA",
	contact.GroupMVNX:  "MVNX",
}

// Legacy group spellings that show up in the remote database.
var groupAliases = map[string]contact.Group{
	"family":                  contact.GroupFam,
	"mckinsey":                contact.GroupMcK,
	"phillips exeter academy": contact.GroupPEA,
	"exeter":                  contact.GroupPEA,
	"georgetown":              contact.GroupGU,
	"georgetown university":   contact.GroupGU,
	"berkshire partners":      contact.GroupBP,
	"berkshire":               contact.GroupBP,
	"mavnox":                  contact.GroupMVNX,
}

func decodeStatus(raw string) (contact.Status, error) {
	s := contact.Status(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), " ", "_"))
	if !s.Valid() {
		return "", fmt.Errorf("unknown status option %q", raw)
	}
	return s, nil
}

func decodeType(raw string) (contact.Type, error) {
	t := contact.Type(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), " ", "_"))
	if !t.Valid() {
		return "", fmt.Errorf("unknown type option %q", raw)
	}
	return t, nil
}

func decodeGroup(raw string) (contact.Group, error) {
	cleaned := strings.TrimSpace(strings.TrimRight(strings.TrimSpace(raw), ")"))
	lower := strings.ToLower(cleaned)
	if g, ok := groupAliases[lower]; ok {
		return g, nil
	}
	for g := range groupLabels {
		if strings.ToLower(string(g)) == lower {
			return g, nil
		}
	}
	return "", fmt.Errorf("unknown group option %q", raw)
}

func decodeRelationship(raw string) (contact.RelationshipType, error) {
	r := contact.RelationshipType(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), " ", "_"))
	if !r.Valid() {
		return "", fmt.Errorf("unknown relationship type option %q", raw)
	}
	return r, nil
}

// findProperty locates a property by name, case-insensitively, trying each
// candidate in order. Remote databases are hand-built; casing drifts.
func findProperty(props map[string]property, names ...string) (property, bool) {
	for _, name := range names {
		if p, ok := props[name]; ok {
			return p, true
		}
	}
	for _, name := range names {
		for key, p := range props {
			if strings.EqualFold(key, name) {
				return p, true
			}
		}
	}
	return property{}, false
}

func richTextValue(rts []richText) string {
	var b strings.Builder
	for _, rt := range rts {
		if rt.PlainText != "" {
			b.WriteString(rt.PlainText)
			continue
		}
		if rt.Text != nil {
			b.WriteString(rt.Text.Content)
		}
	}
	return b.String()
}

func textProperty(props map[string]property, names ...string) string {
	p, ok := findProperty(props, names...)
	if !ok {
		return ""
	}
	return strings.TrimSpace(richTextValue(p.RichText))
}

func selectValue(p property) string {
	if p.Select != nil {
		return p.Select.Name
	}
	if p.Status != nil {
		return p.Status.Name
	}
	return ""
}

func dateProperty(props map[string]property, names ...string) (time.Time, error) {
	p, ok := findProperty(props, names...)
	if !ok || p.Date == nil || strings.TrimSpace(p.Date.Start) == "" {
		return time.Time{}, nil
	}
	return parseRemoteDate(p.Date.Start)
}

func parseRemoteDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(dateLayout, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable date %q", raw)
	}
	return t.UTC().Truncate(24 * time.Hour), nil
}

func numberProperty(props map[string]property, names ...string) int {
	p, ok := findProperty(props, names...)
	if !ok || p.Number == nil {
		return 0
	}
	return int(*p.Number)
}

func decodePage(pg page) (contact.Contact, error) {
	props := pg.Properties

	var c contact.Contact
	c.ID = pg.ID

	nameProp, ok := findProperty(props, propName, "Contact")
	if ok {
		c.Name = strings.TrimSpace(richTextValue(nameProp.Title))
	}
	if c.Name == "" {
		return contact.Contact{}, &contact.SchemaError{RecordID: pg.ID, Field: "name", Detail: "missing required title"}
	}

	if p, ok := findProperty(props, propEmail); ok {
		if p.Email != nil {
			c.Email = strings.TrimSpace(*p.Email)
		} else {
			// Older databases keep email as plain text.
			c.Email = strings.TrimSpace(richTextValue(p.RichText))
		}
	}
	if p, ok := findProperty(props, propPhone); ok && p.PhoneNumber != nil {
		c.Phone = strings.TrimSpace(*p.PhoneNumber)
	}

	if p, ok := findProperty(props, propStatus); ok {
		if raw := selectValue(p); raw != "" {
			status, err := decodeStatus(raw)
			if err != nil {
				return contact.Contact{}, &contact.SchemaError{RecordID: pg.ID, Field: "status", Detail: err.Error()}
			}
			c.Status = status
		}
	}
	if c.Status == "" {
		c.Status = contact.StatusQueued
	}

	if p, ok := findProperty(props, propType); ok {
		if raw := selectValue(p); raw != "" {
			t, err := decodeType(raw)
			if err != nil {
				return contact.Contact{}, &contact.SchemaError{RecordID: pg.ID, Field: "type", Detail: err.Error()}
			}
			c.Type = t
		}
	}
	if p, ok := findProperty(props, propGroup); ok {
		if raw := selectValue(p); raw != "" {
			g, err := decodeGroup(raw)
			if err != nil {
				return contact.Contact{}, &contact.SchemaError{RecordID: pg.ID, Field: "group", Detail: err.Error()}
			}
			c.Group = g
		}
	}
	if p, ok := findProperty(props, propRelationshipType, "Relationship Type"); ok {
		if raw := selectValue(p); raw != "" {
			r, err := decodeRelationship(raw)
			if err != nil {
				return contact.Contact{}, &contact.SchemaError{RecordID: pg.ID, Field: "relationship_type", Detail: err.Error()}
			}
			c.RelationshipType = r
		}
	}

	c.Title = textProperty(props, propRole, "Title")
	c.Company = textProperty(props, propCompany)
	c.Industry = textProperty(props, propIndustry)
	c.Location = textProperty(props, propLocation)
	c.Notes = textProperty(props, propNotes)
	c.FollowupContext = textProperty(props, propFollowupContext)
	c.ArchivedReason = textProperty(props, propArchivedReason)

	if p, ok := findProperty(props, propLinkedIn, "LinkedIn URL", "Linkedin"); ok {
		if p.URL != nil {
			c.LinkedInURL = strings.TrimSpace(*p.URL)
		} else {
			c.LinkedInURL = strings.TrimSpace(richTextValue(p.RichText))
		}
	}

	var err error
	if c.LastContactDate, err = dateProperty(props, propLastContactDate, "Last Contact Date"); err != nil {
		return contact.Contact{}, &contact.SchemaError{RecordID: pg.ID, Field: "last_contact_date", Detail: err.Error()}
	}
	if c.StatusChangedAt, err = dateProperty(props, propStatusChangedAt); err != nil {
		return contact.Contact{}, &contact.SchemaError{RecordID: pg.ID, Field: "status_changed_at", Detail: err.Error()}
	}
	if c.NextFollowupDate, err = dateProperty(props, propNextFollowupDate); err != nil {
		return contact.Contact{}, &contact.SchemaError{RecordID: pg.ID, Field: "next_followup_date", Detail: err.Error()}
	}
	if c.CreatedDate, err = dateProperty(props, propCreatedDate); err != nil {
		return contact.Contact{}, &contact.SchemaError{RecordID: pg.ID, Field: "created_date", Detail: err.Error()}
	}
	if c.ArchivedDate, err = dateProperty(props, propArchivedDate); err != nil {
		return contact.Contact{}, &contact.SchemaError{RecordID: pg.ID, Field: "archived_date", Detail: err.Error()}
	}

	c.CallCount = numberProperty(props, propCallCount, "Count")
	c.ContactCount = numberProperty(props, propContactCount)
	c.FollowupCount = numberProperty(props, propFollowupCount)

	if pg.LastEditedTime != "" {
		if t, perr := time.Parse(time.RFC3339, pg.LastEditedTime); perr == nil {
			c.RemoteEditedAt = t.UTC()
			c.UpdatedDate = t.UTC()
		}
	}
	if c.StatusChangedAt.IsZero() {
		// Legacy records predate the stamp; fall back so derived day counts
		// stay non-negative instead of exploding.
		if !c.CreatedDate.IsZero() {
			c.StatusChangedAt = c.CreatedDate
		} else {
			c.StatusChangedAt = c.RemoteEditedAt.Truncate(24 * time.Hour)
		}
	}
	if pg.Archived && c.ArchivedDate.IsZero() {
		c.ArchivedDate = c.RemoteEditedAt.Truncate(24 * time.Hour)
	}
	return c, nil
}

func titleProp(v string) map[string]any {
	return map[string]any{"title": []any{map[string]any{"text": map[string]any{"content": v}}}}
}

func richTextProp(v string) map[string]any {
	if v == "" {
		return map[string]any{"rich_text": []any{}}
	}
	return map[string]any{"rich_text": []any{map[string]any{"text": map[string]any{"content": v}}}}
}

func emailProp(v string) map[string]any {
	if v == "" {
		return map[string]any{"email": nil}
	}
	return map[string]any{"email": v}
}

func phoneProp(v string) map[string]any {
	if v == "" {
		return map[string]any{"phone_number": nil}
	}
	return map[string]any{"phone_number": v}
}

func urlProp(v string) map[string]any {
	if v == "" {
		return map[string]any{"url": nil}
	}
	return map[string]any{"url": v}
}

func selectProp(label string) map[string]any {
	if label == "" {
		return map[string]any{"select": nil}
	}
	return map[string]any{"select": map[string]any{"name": label}}
}

func dateProp(v time.Time) map[string]any {
	if v.IsZero() {
		return map[string]any{"date": nil}
	}
	return map[string]any{"date": map[string]any{"start": v.Format(dateLayout)}}
}

func numberProp(v int) map[string]any {
	return map[string]any{"number": v}
}

// encodeContact builds the full property set for a create.
func encodeContact(c contact.Contact) map[string]any {
	props := map[string]any{
		propName: titleProp(c.Name),
	}
	if c.Email != "" {
		props[propEmail] = emailProp(c.Email)
	}
	if c.Phone != "" {
		props[propPhone] = phoneProp(c.Phone)
	}
	props[propStatus] = selectProp(statusLabels[c.Status])
	if c.Type != "" {
		props[propType] = selectProp(typeLabels[c.Type])
	}
	if c.Group != "" {
		props[propGroup] = selectProp(groupLabels[c.Group])
	}
	if c.RelationshipType != "" {
		props[propRelationshipType] = selectProp(string(c.RelationshipType))
	}
	if c.Title != "" {
		props[propRole] = richTextProp(c.Title)
	}
	if c.Company != "" {
		props[propCompany] = richTextProp(c.Company)
	}
	if c.Industry != "" {
		props[propIndustry] = richTextProp(c.Industry)
	}
	if c.Location != "" {
		props[propLocation] = richTextProp(c.Location)
	}
	if c.LinkedInURL != "" {
		props[propLinkedIn] = urlProp(c.LinkedInURL)
	}
	if c.Notes != "" {
		props[propNotes] = richTextProp(c.Notes)
	}
	if c.FollowupContext != "" {
		props[propFollowupContext] = richTextProp(c.FollowupContext)
	}
	if !c.LastContactDate.IsZero() {
		props[propLastContactDate] = dateProp(c.LastContactDate)
	}
	if !c.NextFollowupDate.IsZero() {
		props[propNextFollowupDate] = dateProp(c.NextFollowupDate)
	}
	props[propStatusChangedAt] = dateProp(c.StatusChangedAt)
	props[propCreatedDate] = dateProp(c.CreatedDate)
	props[propCallCount] = numberProp(c.CallCount)
	props[propContactCount] = numberProp(c.ContactCount)
	props[propFollowupCount] = numberProp(c.FollowupCount)
	return props
}

// encodePatch builds properties for exactly the fields the patch sets,
// so concurrent remote edits to unrelated fields are never clobbered.
func encodePatch(p contact.Patch) map[string]any {
	props := map[string]any{}
	if p.Name != nil {
		props[propName] = titleProp(*p.Name)
	}
	if p.Email != nil {
		props[propEmail] = emailProp(*p.Email)
	}
	if p.Phone != nil {
		props[propPhone] = phoneProp(*p.Phone)
	}
	if p.Status != nil {
		props[propStatus] = selectProp(statusLabels[*p.Status])
	}
	if p.Type != nil {
		props[propType] = selectProp(typeLabels[*p.Type])
	}
	if p.Group != nil {
		props[propGroup] = selectProp(groupLabels[*p.Group])
	}
	if p.RelationshipType != nil {
		props[propRelationshipType] = selectProp(string(*p.RelationshipType))
	}
	if p.Title != nil {
		props[propRole] = richTextProp(*p.Title)
	}
	if p.Company != nil {
		props[propCompany] = richTextProp(*p.Company)
	}
	if p.Industry != nil {
		props[propIndustry] = richTextProp(*p.Industry)
	}
	if p.Location != nil {
		props[propLocation] = richTextProp(*p.Location)
	}
	if p.LinkedInURL != nil {
		props[propLinkedIn] = urlProp(*p.LinkedInURL)
	}
	if p.Notes != nil {
		props[propNotes] = richTextProp(*p.Notes)
	}
	if p.FollowupContext != nil {
		props[propFollowupContext] = richTextProp(*p.FollowupContext)
	}
	if p.LastContactDate != nil {
		props[propLastContactDate] = dateProp(*p.LastContactDate)
	}
	if p.NextFollowupDate != nil {
		props[propNextFollowupDate] = dateProp(*p.NextFollowupDate)
	}
	if p.StatusChangedAt != nil {
		props[propStatusChangedAt] = dateProp(*p.StatusChangedAt)
	}
	if p.CallCount != nil {
		props[propCallCount] = numberProp(*p.CallCount)
	}
	if p.ContactCount != nil {
		props[propContactCount] = numberProp(*p.ContactCount)
	}
	if p.FollowupCount != nil {
		props[propFollowupCount] = numberProp(*p.FollowupCount)
	}
	return props
}
