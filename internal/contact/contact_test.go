package contact

import (
	"errors"
	"testing"
	"time"
)

var testNow = time.Date(2026, 3, 10, 15, 4, 5, 0, time.UTC)

func TestValidateCreateDefaults(t *testing.T) {
	c, err := ValidateCreate(CreateInput{Name: "  Ada Lovelace ", Email: "ada@example.com"}, testNow)
	if err != nil {
		t.Fatalf("ValidateCreate: %v", err)
	}
	if c.Name != "Ada Lovelace" {
		t.Errorf("name not trimmed: %q", c.Name)
	}
	if c.Status != StatusQueued {
		t.Errorf("expected default status queued, got %s", c.Status)
	}
	day := testNow.Truncate(24 * time.Hour)
	if !c.CreatedDate.Equal(day) {
		t.Errorf("created date = %v, want %v", c.CreatedDate, day)
	}
	if !c.StatusChangedAt.Equal(day) {
		t.Errorf("status stamp = %v, want %v", c.StatusChangedAt, day)
	}
	if c.CallCount != 0 || c.ContactCount != 0 || c.FollowupCount != 0 {
		t.Errorf("counters must start at zero: %+v", c)
	}
}

func TestValidateCreateRejectsEmptyName(t *testing.T) {
	_, err := ValidateCreate(CreateInput{Name: "   ", Email: "a@b.com"}, testNow)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "name" {
		t.Fatalf("expected name validation error, got %v", err)
	}
}

func TestValidateCreateRequiresContactMethod(t *testing.T) {
	_, err := ValidateCreate(CreateInput{Name: "Ada"}, testNow)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := ValidateCreate(CreateInput{Name: "Ada", Phone: "+1 555 0100"}, testNow); err != nil {
		t.Fatalf("phone alone should satisfy the contact method rule: %v", err)
	}
}

func TestValidateCreateRejectsUnknownEnums(t *testing.T) {
	cases := []CreateInput{
		{Name: "Ada", Email: "a@b.com", Status: "paused"},
		{Name: "Ada", Email: "a@b.com", Type: "legacy"},
		{Name: "Ada", Email: "a@b.com", Group: "unknown"},
		{Name: "Ada", Email: "a@b.com", RelationshipType: "enemy"},
	}
	for i, in := range cases {
		if _, err := ValidateCreate(in, testNow); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("case %d: expected ErrInvalidInput, got %v", i, err)
		}
	}
}

func testContact() Contact {
	day := testNow.Truncate(24 * time.Hour)
	return Contact{
		ID:              "c1",
		Name:            "Ada Lovelace",
		Email:           "ada@example.com",
		Status:          StatusQueued,
		StatusChangedAt: day.AddDate(0, 0, -5),
		CreatedDate:     day.AddDate(0, 0, -30),
	}
}

func TestApplyPatchStampsStatusOnlyOnRealChange(t *testing.T) {
	existing := testContact()

	same := existing.Status
	updated, changed, err := ApplyPatch(existing, Patch{Status: &same}, testNow)
	if err != nil {
		t.Fatalf("ApplyPatch: %v", err)
	}
	if changed {
		t.Error("re-sending the current status must not report a change")
	}
	if !updated.StatusChangedAt.Equal(existing.StatusChangedAt) {
		t.Error("no-op status patch must not reset the stamp")
	}

	next := StatusContacted
	updated, changed, err = ApplyPatch(existing, Patch{Status: &next}, testNow)
	if err != nil {
		t.Fatalf("ApplyPatch: %v", err)
	}
	if !changed {
		t.Error("expected a status change")
	}
	if !updated.StatusChangedAt.Equal(testNow.Truncate(24 * time.Hour)) {
		t.Errorf("stamp = %v, want today", updated.StatusChangedAt)
	}
}

func TestApplyPatchClearsFields(t *testing.T) {
	existing := testContact()
	existing.Notes = "old notes"
	existing.NextFollowupDate = testNow.AddDate(0, 0, 7)

	empty := ""
	var zero time.Time
	updated, _, err := ApplyPatch(existing, Patch{Notes: &empty, NextFollowupDate: &zero}, testNow)
	if err != nil {
		t.Fatalf("ApplyPatch: %v", err)
	}
	if updated.Notes != "" {
		t.Errorf("notes not cleared: %q", updated.Notes)
	}
	if !updated.NextFollowupDate.IsZero() {
		t.Errorf("followup date not cleared: %v", updated.NextFollowupDate)
	}
}

func TestApplyPatchRevalidates(t *testing.T) {
	existing := testContact()
	empty := ""
	if _, _, err := ApplyPatch(existing, Patch{Name: &empty}, testNow); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("clearing name must fail validation, got %v", err)
	}
	if _, _, err := ApplyPatch(existing, Patch{Email: &empty}, testNow); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("clearing the only contact method must fail validation, got %v", err)
	}
	bad := Status("paused")
	if _, _, err := ApplyPatch(existing, Patch{Status: &bad}, testNow); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("unknown status must fail validation, got %v", err)
	}
}

func TestApplyPatchLeavesUntouchedFields(t *testing.T) {
	existing := testContact()
	existing.Company = "Analytical Engines Ltd"
	title := "Advisor"
	updated, _, err := ApplyPatch(existing, Patch{Title: &title}, testNow)
	if err != nil {
		t.Fatalf("ApplyPatch: %v", err)
	}
	if updated.Company != existing.Company {
		t.Errorf("untouched field changed: %q", updated.Company)
	}
	if updated.Title != "Advisor" {
		t.Errorf("title = %q", updated.Title)
	}
}

func TestPatchSetFields(t *testing.T) {
	name := "Ada"
	notes := ""
	p := Patch{Name: &name, Notes: &notes}
	fields := p.SetFields()
	if len(fields) != 2 || fields[0] != "name" || fields[1] != "notes" {
		t.Errorf("SetFields = %v", fields)
	}
	if p.Empty() {
		t.Error("patch with set fields reported empty")
	}
	if !(Patch{}).Empty() {
		t.Error("zero patch must be empty")
	}
}

func TestSchemaErrorIs(t *testing.T) {
	err := &SchemaError{RecordID: "r1", Field: "Status", Detail: "unknown label"}
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Error("SchemaError must match ErrSchemaMismatch")
	}
	if errors.Is(err, ErrInvalidInput) {
		t.Error("SchemaError must not match ErrInvalidInput")
	}
}
