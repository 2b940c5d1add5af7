package httpapi

import (
	"fmt"
	"strings"
	"time"

	"github.com/rolodexhq/rolodex/internal/contact"
)

const dateLayout = "2006-01-02"

type contactResponse struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Email            string `json:"email,omitempty"`
	Phone            string `json:"phone,omitempty"`
	Status           string `json:"status"`
	Type             string `json:"type,omitempty"`
	Group            string `json:"group,omitempty"`
	RelationshipType string `json:"relationshipType,omitempty"`
	Title            string `json:"title,omitempty"`
	Company          string `json:"company,omitempty"`
	Industry         string `json:"industry,omitempty"`
	Location         string `json:"location,omitempty"`
	LinkedInURL      string `json:"linkedinUrl,omitempty"`
	Notes            string `json:"notes,omitempty"`

	LastContactDate      string `json:"lastContactDate,omitempty"`
	StatusChangedAt      string `json:"statusChangedAt,omitempty"`
	DaysAtCurrentStatus  int    `json:"daysAtCurrentStatus"`
	DaysSinceLastContact *int   `json:"daysSinceLastContact,omitempty"`

	CallCount     int `json:"callCount"`
	ContactCount  int `json:"contactCount"`
	FollowupCount int `json:"followupCount"`

	NextFollowupDate string `json:"nextFollowupDate,omitempty"`
	FollowupContext  string `json:"followupContext,omitempty"`

	CreatedDate    string `json:"createdDate,omitempty"`
	UpdatedDate    string `json:"updatedDate,omitempty"`
	ArchivedDate   string `json:"archivedDate,omitempty"`
	ArchivedReason string `json:"archivedReason,omitempty"`
}

func toContactResponse(c contact.Contact, today time.Time) contactResponse {
	m := contact.DeriveMetrics(c, today)
	resp := contactResponse{
		ID:                  c.ID,
		Name:                c.Name,
		Email:               c.Email,
		Phone:               c.Phone,
		Status:              string(c.Status),
		Type:                string(c.Type),
		Group:               string(c.Group),
		RelationshipType:    string(c.RelationshipType),
		Title:               c.Title,
		Company:             c.Company,
		Industry:            c.Industry,
		Location:            c.Location,
		LinkedInURL:         c.LinkedInURL,
		Notes:               c.Notes,
		LastContactDate:     dateString(c.LastContactDate),
		StatusChangedAt:     dateString(c.StatusChangedAt),
		DaysAtCurrentStatus: m.DaysAtCurrentStatus,
		CallCount:           c.CallCount,
		ContactCount:        c.ContactCount,
		FollowupCount:       c.FollowupCount,
		NextFollowupDate:    dateString(c.NextFollowupDate),
		FollowupContext:     c.FollowupContext,
		CreatedDate:         dateString(c.CreatedDate),
		ArchivedDate:        dateString(c.ArchivedDate),
		ArchivedReason:      c.ArchivedReason,
	}
	if !c.UpdatedDate.IsZero() {
		resp.UpdatedDate = c.UpdatedDate.UTC().Format(time.RFC3339)
	}
	if m.EverContacted {
		days := m.DaysSinceLastContact
		resp.DaysSinceLastContact = &days
	}
	return resp
}

func dateString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

type createContactRequest struct {
	Name             string `json:"name"`
	Email            string `json:"email"`
	Phone            string `json:"phone"`
	Status           string `json:"status"`
	Type             string `json:"type"`
	Group            string `json:"group"`
	RelationshipType string `json:"relationshipType"`
	Title            string `json:"title"`
	Company          string `json:"company"`
	Industry         string `json:"industry"`
	Location         string `json:"location"`
	LinkedInURL      string `json:"linkedinUrl"`
	Notes            string `json:"notes"`
	LastContactDate  string `json:"lastContactDate"`
	NextFollowupDate string `json:"nextFollowupDate"`
	FollowupContext  string `json:"followupContext"`
}

func (r createContactRequest) toInput() (contact.CreateInput, error) {
	lastContact, err := parseDateField("lastContactDate", r.LastContactDate)
	if err != nil {
		return contact.CreateInput{}, err
	}
	nextFollowup, err := parseDateField("nextFollowupDate", r.NextFollowupDate)
	if err != nil {
		return contact.CreateInput{}, err
	}
	return contact.CreateInput{
		Name:             r.Name,
		Email:            r.Email,
		Phone:            r.Phone,
		Status:           contact.Status(r.Status),
		Type:             contact.Type(r.Type),
		Group:            contact.Group(r.Group),
		RelationshipType: contact.RelationshipType(r.RelationshipType),
		Title:            r.Title,
		Company:          r.Company,
		Industry:         r.Industry,
		Location:         r.Location,
		LinkedInURL:      r.LinkedInURL,
		Notes:            r.Notes,
		LastContactDate:  lastContact,
		NextFollowupDate: nextFollowup,
		FollowupContext:  r.FollowupContext,
	}, nil
}

type updateContactRequest struct {
	Name             *string `json:"name"`
	Email            *string `json:"email"`
	Phone            *string `json:"phone"`
	Status           *string `json:"status"`
	Type             *string `json:"type"`
	Group            *string `json:"group"`
	RelationshipType *string `json:"relationshipType"`
	Title            *string `json:"title"`
	Company          *string `json:"company"`
	Industry         *string `json:"industry"`
	Location         *string `json:"location"`
	LinkedInURL      *string `json:"linkedinUrl"`
	Notes            *string `json:"notes"`
	LastContactDate  *string `json:"lastContactDate"`
	NextFollowupDate *string `json:"nextFollowupDate"`
	FollowupContext  *string `json:"followupContext"`
}

func (r updateContactRequest) toPatch() (contact.Patch, error) {
	var p contact.Patch
	p.Name = r.Name
	p.Email = r.Email
	p.Phone = r.Phone
	if r.Status != nil {
		status := contact.Status(*r.Status)
		p.Status = &status
	}
	if r.Type != nil {
		t := contact.Type(*r.Type)
		p.Type = &t
	}
	if r.Group != nil {
		g := contact.Group(*r.Group)
		p.Group = &g
	}
	if r.RelationshipType != nil {
		rel := contact.RelationshipType(*r.RelationshipType)
		p.RelationshipType = &rel
	}
	p.Title = r.Title
	p.Company = r.Company
	p.Industry = r.Industry
	p.Location = r.Location
	p.LinkedInURL = r.LinkedInURL
	p.Notes = r.Notes
	if r.LastContactDate != nil {
		d, err := parseDateField("lastContactDate", *r.LastContactDate)
		if err != nil {
			return contact.Patch{}, err
		}
		p.LastContactDate = &d
	}
	if r.NextFollowupDate != nil {
		d, err := parseDateField("nextFollowupDate", *r.NextFollowupDate)
		if err != nil {
			return contact.Patch{}, err
		}
		p.NextFollowupDate = &d
	}
	p.FollowupContext = r.FollowupContext
	return p, nil
}

// parseDateField accepts an ISO date or an empty string (null).
func parseDateField(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, &contact.ValidationError{
			Field:  field,
			Reason: fmt.Sprintf("expected YYYY-MM-DD, got %q", raw),
		}
	}
	return t, nil
}

type listResponse struct {
	Contacts    []contactResponse `json:"contacts"`
	RefreshedAt string            `json:"refreshedAt,omitempty"`
	Stale       bool              `json:"stale"`
	Warnings    []string          `json:"warnings,omitempty"`
}

type updateResponse struct {
	Contact          contactResponse `json:"contact"`
	OverriddenFields []string        `json:"overriddenFields,omitempty"`
	Warnings         []string        `json:"warnings,omitempty"`
}

type outreachSentRequest struct {
	Channel string `json:"channel"`
}

type meetingScheduledRequest struct {
	When    string `json:"when"`
	Payload string `json:"payload"`
}

type archiveRequest struct {
	Reason string `json:"reason"`
}

type interactionResponse struct {
	ID         int64  `json:"id"`
	ContactID  string `json:"contactId"`
	Kind       string `json:"kind"`
	Direction  string `json:"direction,omitempty"`
	Channel    string `json:"channel,omitempty"`
	Subject    string `json:"subject,omitempty"`
	Payload    string `json:"payload,omitempty"`
	OccurredAt string `json:"occurredAt"`
	CreatedAt  string `json:"createdAt"`
}

func toInteractionResponse(it contact.Interaction) interactionResponse {
	return interactionResponse{
		ID:         it.ID,
		ContactID:  it.ContactID,
		Kind:       string(it.Kind),
		Direction:  string(it.Direction),
		Channel:    it.Channel,
		Subject:    it.Subject,
		Payload:    it.Payload,
		OccurredAt: it.OccurredAt.UTC().Format(time.RFC3339),
		CreatedAt:  it.CreatedAt.UTC().Format(time.RFC3339),
	}
}
