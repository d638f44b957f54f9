package finalize

import (
	"reflect"
	"testing"
)

func TestParseActionItems(t *testing.T) {
	summary := `- Talked about exercise habits.

ACTION_ITEMS:
- Exercise | open | Run 3x/week
- Journal | closed | ''
END_ACTION_ITEMS`

	got := ParseActionItems(summary)
	want := []ParsedActionItem{
		{Title: "Exercise", Status: "open", Description: "Run 3x/week"},
		{Title: "Journal", Status: "closed", Description: ""},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ParseActionItems = %+v, want %+v", got, want)
	}
}

func TestParseActionItemsDefaults(t *testing.T) {
	summary := `ACTION_ITEMS:
- Meditate
- Stretch | sometime
-  | open | no title here
END_ACTION_ITEMS`

	got := ParseActionItems(summary)
	want := []ParsedActionItem{
		{Title: "Meditate", Status: "open"},
		{Title: "Stretch", Status: "open"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ParseActionItems = %+v, want %+v", got, want)
	}
}

func TestParseActionItemsEmptyCases(t *testing.T) {
	tests := []struct {
		name    string
		summary string
	}{
		{"empty summary", ""},
		{"no block", "- Discussed gratitude practice."},
		{"missing end marker", "ACTION_ITEMS:\n- Exercise | open | Run"},
		{"empty block", "ACTION_ITEMS:\nEND_ACTION_ITEMS"},
		{"no actions agreed", "ACTION_ITEMS:\nNo actions agreed.\nEND_ACTION_ITEMS"},
		{"no actions agreed lowercase", "ACTION_ITEMS:\nno actions agreed\nEND_ACTION_ITEMS"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ParseActionItems(tc.summary); len(got) != 0 {
				t.Fatalf("ParseActionItems = %+v, want none", got)
			}
		})
	}
}
