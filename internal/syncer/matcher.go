package syncer

import (
	"strings"

	"github.com/S1monlol/notionCanvas/internal/models"
)

// MatchCategory returns the first category, in list order, whose name occurs
// anywhere in summary. Matching is plain case-sensitive substring containment:
// with ["CS", "CS101"] the summary "Homework CS101 due" matches "CS".
// Changing this to fuzzy or token matching changes which rows get created.
func MatchCategory(summary string, categories []models.Category) *models.Category {
	if summary == "" {
		return nil
	}
	for i := range categories {
		// An empty name would match every summary.
		if categories[i].Name == "" {
			continue
		}
		if strings.Contains(summary, categories[i].Name) {
			c := categories[i]
			return &c
		}
	}
	return nil
}
