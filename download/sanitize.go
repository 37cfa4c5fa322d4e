package download

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	unsafeChars = regexp.MustCompile(`[^\p{L}\p{M}\p{N}_\s-]`)
	separators  = regexp.MustCompile(`[-\s]+`)
)

// SanitizeFilename reduces name to word characters joined by single
// hyphens, e.g. "Agenda: Packet #1 (Final)" becomes "Agenda-Packet-1-Final".
// An empty result becomes "file". The extension is added by the caller.
func SanitizeFilename(name string) string {
	s := norm.NFC.String(name)
	s = unsafeChars.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	s = separators.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "file"
	}
	return s
}

// Extension returns ".txt" for plain-text renditions and ".pdf" otherwise.
func Extension(plainText bool) string {
	if plainText {
		return ".txt"
	}
	return ".pdf"
}

// MeetingDir returns the directory that holds one meeting's files.
func MeetingDir(root, eventID string) string {
	id := "unknown"
	if eventID != "" {
		id = SanitizeFilename(eventID)
	}
	return filepath.Join(root, "event_"+id)
}

// nameSet hands out file names that are unique within one meeting
// directory, ignoring case.
type nameSet map[string]bool

func (s nameSet) claim(base, ext string) string {
	name := base + ext
	for n := 2; s[strings.ToLower(name)]; n++ {
		name = base + "-" + strconv.Itoa(n) + ext
	}
	s[strings.ToLower(name)] = true
	return name
}
