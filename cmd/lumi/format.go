package main

import (
	"fmt"
	"strings"
)

// FormatLessonContent renders generated lesson content as a Markdown document.
// The practice section is omitted when there are no exercises.
func FormatLessonContent(c GeneratedLessonContent) string {
	var b strings.Builder

	section := func(title, body string) {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("# " + title + "\n\n")
		b.WriteString(strings.TrimSpace(body))
	}
	numbered := func(items []string) string {
		lines := make([]string, len(items))
		for i, item := range items {
			lines[i] = fmt.Sprintf("%d. %s", i+1, strings.TrimSpace(item))
		}
		return strings.Join(lines, "\n")
	}

	section("Introduction", c.Introduction)
	section("Learning Objectives", numbered(c.Objectives))
	section("Key Points", numbered(c.KeyPoints))
	section("Detailed Content", c.DetailedContent)
	section("Summary", c.Summary)
	if len(c.PracticeExercises) > 0 {
		section("Practice Exercises", numbered(c.PracticeExercises))
	}
	return b.String()
}
