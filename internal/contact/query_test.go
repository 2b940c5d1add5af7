package contact

import (
	"testing"
	"time"
)

func queryFixture() ([]Contact, time.Time) {
	today := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	return []Contact{
		{
			ID: "a", Name: "Ada Lovelace", Email: "ada@example.com",
			Status: StatusContacted, Group: GroupMcK, Type: TypeExisting,
			RelationshipType: RelationshipAdvisor,
			LastContactDate:  today.AddDate(0, 0, -20),
			StatusChangedAt:  today.AddDate(0, 0, -3),
			CreatedDate:      today.AddDate(0, 0, -40),
		},
		{
			ID: "b", Name: "Grace Hopper", Phone: "+1 555 0101",
			Status: StatusQueued, Group: GroupGU,
			StatusChangedAt: today.AddDate(0, 0, -10),
			CreatedDate:     today.AddDate(0, 0, -5),
			Notes:           "compilers and navy stories",
		},
		{
			ID: "c", Name: "Charles Babbage", Email: "cb@example.com",
			Status: StatusDone, Group: GroupMcK,
			LastContactDate: today.AddDate(0, 0, -2),
			StatusChangedAt: today.AddDate(0, 0, -1),
			CreatedDate:     today.AddDate(0, 0, -100),
			ArchivedDate:    today.AddDate(0, 0, -1),
		},
	}, today
}

func TestFilterExcludesArchivedByDefault(t *testing.T) {
	contacts, today := queryFixture()
	out := Filter(contacts, Criteria{}, today)
	if len(out) != 2 {
		t.Fatalf("got %d contacts, want 2", len(out))
	}
	for _, c := range out {
		if c.Archived() {
			t.Errorf("archived contact %s leaked into results", c.ID)
		}
	}

	all := Filter(contacts, Criteria{IncludeArchived: true}, today)
	if len(all) != 3 {
		t.Errorf("includeArchived got %d contacts, want 3", len(all))
	}
}

func TestFilterConjunction(t *testing.T) {
	contacts, today := queryFixture()
	out := Filter(contacts, Criteria{
		Groups:   []Group{GroupMcK},
		Statuses: []Status{StatusContacted},
	}, today)
	if len(out) != 1 || out[0].ID != "a" {
		t.Fatalf("got %v", ids(out))
	}
}

func TestFilterMinDaysSinceContact(t *testing.T) {
	contacts, today := queryFixture()
	min := 15
	out := Filter(contacts, Criteria{MinDaysSinceContact: &min}, today)
	if len(out) != 1 || out[0].ID != "a" {
		t.Fatalf("got %v, want only the 20-day contact", ids(out))
	}

	// Never-contacted records have no days-since value and never match.
	zero := 0
	out = Filter(contacts, Criteria{MinDaysSinceContact: &zero}, today)
	for _, c := range out {
		if c.LastContactDate.IsZero() {
			t.Errorf("never-contacted %s matched a min-days filter", c.ID)
		}
	}
}

func TestSearchMatchesAcrossFields(t *testing.T) {
	contacts, _ := queryFixture()
	if out := Search(contacts, "HOPPER"); len(out) != 1 || out[0].ID != "b" {
		t.Errorf("name search got %v", ids(out))
	}
	if out := Search(contacts, "navy"); len(out) != 1 || out[0].ID != "b" {
		t.Errorf("notes search got %v", ids(out))
	}
	if out := Search(contacts, "ada@example.com"); len(out) != 1 || out[0].ID != "a" {
		t.Errorf("email search got %v", ids(out))
	}
	if out := Search(contacts, "  "); len(out) != len(contacts) {
		t.Errorf("blank search must keep everything, got %d", len(out))
	}
}

func TestSortNullsLast(t *testing.T) {
	contacts, today := queryFixture()
	out := Sort(contacts, SortByLastContactDate, false, today)
	if out[len(out)-1].ID != "b" {
		t.Errorf("null last-contact must sort last ascending: %v", ids(out))
	}
	out = Sort(contacts, SortByLastContactDate, true, today)
	if out[len(out)-1].ID != "b" {
		t.Errorf("null last-contact must sort last descending too: %v", ids(out))
	}
}

func TestSortByNameDefault(t *testing.T) {
	contacts, today := queryFixture()
	out := Sort(contacts, "", false, today)
	if out[0].ID != "a" || out[1].ID != "c" || out[2].ID != "b" {
		t.Errorf("default name sort got %v", ids(out))
	}
}

func TestSortDoesNotMutateInput(t *testing.T) {
	contacts, today := queryFixture()
	first := contacts[0].ID
	_ = Sort(contacts, SortByCreatedDate, true, today)
	if contacts[0].ID != first {
		t.Error("sort mutated the input slice")
	}
}

func ids(contacts []Contact) []string {
	out := make([]string, len(contacts))
	for i, c := range contacts {
		out[i] = c.ID
	}
	return out
}
