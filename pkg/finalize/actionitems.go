package finalize

import "strings"

const (
	actionItemsStart = "ACTION_ITEMS:"
	actionItemsEnd   = "END_ACTION_ITEMS"
)

// ParsedActionItem is one action plan extracted from a summary's
// trailing machine-readable block.
type ParsedActionItem struct {
	Title       string
	Status      string
	Description string
}

// ParseActionItems extracts action items from a summary. The block format
// is one "- title | status | description" line per item between the
// ACTION_ITEMS: and END_ACTION_ITEMS markers. Anything malformed
// degrades to no items; a summary is never rejected over its block.
func ParseActionItems(summary string) []ParsedActionItem {
	if summary == "" {
		return nil
	}

	start := strings.Index(summary, actionItemsStart)
	if start == -1 {
		return nil
	}
	rest := summary[start+len(actionItemsStart):]
	end := strings.Index(rest, actionItemsEnd)
	if end == -1 {
		return nil
	}

	block := strings.TrimSpace(rest[:end])
	if block == "" || strings.Contains(strings.ToLower(block), "no actions agreed") {
		return nil
	}

	var items []ParsedActionItem
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "-") {
			continue
		}

		parts := strings.Split(line[1:], "|")
		for i, p := range parts {
			parts[i] = strings.Trim(strings.TrimSpace(p), `"'`)
		}

		item := ParsedActionItem{Status: "open"}
		item.Title = parts[0]
		if len(parts) > 1 {
			item.Status = strings.ToLower(parts[1])
		}
		if len(parts) > 2 {
			item.Description = parts[2]
		}

		if item.Title == "" {
			continue
		}
		if item.Status != "open" && item.Status != "closed" {
			item.Status = "open"
		}
		items = append(items, item)
	}
	return items
}
