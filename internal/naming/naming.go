// Package naming derives identities and storage paths from caller-supplied room names.
package naming

import (
	"strconv"
	"strings"
	"time"
)

// Separator splits a requested room name into subject id and disambiguator.
const Separator = "_"

const recordingBaseName = "interview_session"

// SubjectID returns the subject identifier encoded in a requested room name of the
// form "<subjectId>_<disambiguator>". It is total: blank input, or a blank prefix
// before the first separator, yields ok=false.
func SubjectID(requested string) (string, bool) {
	trimmed := strings.TrimSpace(requested)
	if trimmed == "" {
		return "", false
	}
	head, _, found := strings.Cut(trimmed, Separator)
	if !found {
		return trimmed, true
	}
	head = strings.TrimSpace(head)
	if head == "" {
		return "", false
	}
	return head, true
}

// Sanitize replaces every rune outside [A-Za-z0-9_.-] with an underscore.
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if isSafeRune(r) {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('_')
	}
	return b.String()
}

func isSafeRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '_', r == '.', r == '-':
		return true
	default:
		return false
	}
}

// RecordingPath is the object-store path of a session recording. Including the SID
// keeps re-provisioned rooms with the same name from overwriting each other.
func RecordingPath(name, sid, ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
	if ext == "" {
		ext = "mp4"
	}
	return Sanitize(name) + Separator + Sanitize(sid) + "/" + recordingBaseName + "." + ext
}

// ProspectiveRoomName builds the room name handed out in interview links.
func ProspectiveRoomName(subjectID string, now time.Time) string {
	return strings.TrimSpace(subjectID) + Separator + strconv.FormatInt(now.UnixMilli(), 10)
}
