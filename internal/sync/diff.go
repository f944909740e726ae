package sync

import (
	"strings"

	"portal-sync/internal/domain"
	"portal-sync/internal/lms"
)

// applyCourse copies the LMS-owned fields of rc onto c and reports whether
// anything changed.
func applyCourse(c *domain.Course, rc lms.Course) bool {
	changed := false
	if title := clean(rc.FullName); title != "" && title != clean(c.Title) {
		c.Title = title
		changed = true
	}
	if desc := clean(rc.Summary); desc != clean(c.Description) {
		c.Description = desc
		changed = true
	}
	if short := clean(rc.ShortName); short != clean(c.ShortDescription) {
		c.ShortDescription = short
		changed = true
	}
	return changed
}

// applyUserProfile copies name and email of ru onto u. Empty remote values
// never blank a local field.
func applyUserProfile(u *domain.User, ru lms.User) bool {
	changed := false
	if first := clean(ru.FirstName); first != "" && first != clean(u.FirstName) {
		u.FirstName = first
		changed = true
	}
	if last := clean(ru.LastName); last != "" && last != clean(u.LastName) {
		u.LastName = last
		changed = true
	}
	if email := normEmail(ru.Email); email != "" && email != normEmail(u.Email) {
		u.Email = email
		changed = true
	}
	return changed
}

func clean(s string) string {
	return strings.TrimSpace(s)
}

func normEmail(s string) string {
	return strings.TrimSpace(strings.ToLower(s))
}
