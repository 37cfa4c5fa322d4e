package portal

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/pevans/civicfetch/meeting"
)

// DefaultAPIBase is the CivicClerk API root for the Firestone portal.
const DefaultAPIBase = "https://firestoneco.api.civicclerk.com/v1/"

var previewFileIDPattern = regexp.MustCompile(`fileId=(\d+)`)

// URLBuilder turns recovered file references into download URLs.
type URLBuilder struct {
	APIBase string
}

// NewURLBuilder returns a builder rooted at apiBase, or DefaultAPIBase when
// apiBase is empty.
func NewURLBuilder(apiBase string) URLBuilder {
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	if !strings.HasSuffix(apiBase, "/") {
		apiBase += "/"
	}
	return URLBuilder{APIBase: apiBase}
}

func (b URLBuilder) base() string {
	if b.APIBase == "" {
		return DefaultAPIBase
	}
	if !strings.HasSuffix(b.APIBase, "/") {
		return b.APIBase + "/"
	}
	return b.APIBase
}

// Build returns the download URL for ref. A reference without a file id
// yields nothing. A stream URL is returned verbatim; otherwise the URL is
// constructed from the API base.
func (b URLBuilder) Build(ref *meeting.FileRef, isAttachment, plainText bool) (string, bool) {
	if ref == nil || ref.FileID == "" {
		return "", false
	}
	if ref.HasStreamURL() {
		return ref.StreamURL, true
	}
	if isAttachment {
		return b.AttachmentURL(ref.FileID), true
	}
	return b.StreamURL(ref.FileID, plainText), true
}

// AttachmentURL returns the GetAttachmentFile URL for fileID.
func (b URLBuilder) AttachmentURL(fileID string) string {
	return fmt.Sprintf("%sMeetings/GetAttachmentFile(fileId=%s)", b.base(), fileID)
}

// StreamURL returns the GetMeetingFileStream URL for fileID.
func (b URLBuilder) StreamURL(fileID string, plainText bool) string {
	return fmt.Sprintf("%sMeetings/GetMeetingFileStream(fileId=%s,plainText=%t)", b.base(), fileID, plainText)
}

// PreviewFile is a download location recovered from the document preview.
type PreviewFile struct {
	URL       string
	FileID    string
	PlainText bool
}

// FromPreview recovers a download URL from the document preview iframe's
// src. The viewer carries the real file URL in its "file" query parameter.
// When that URL names a numeric fileId a stream URL is rebuilt from it;
// otherwise the file URL is returned as is.
func (b URLBuilder) FromPreview(src string) (PreviewFile, bool) {
	if !strings.Contains(src, "fileId") {
		return PreviewFile{}, false
	}
	u, err := url.Parse(src)
	if err != nil {
		return PreviewFile{}, false
	}
	file := u.Query().Get("file")
	if file == "" {
		return PreviewFile{}, false
	}
	// Second pass for double-encoded values; '+' stays literal.
	if unescaped, err := url.PathUnescape(file); err == nil {
		file = unescaped
	}

	m := previewFileIDPattern.FindStringSubmatch(file)
	if m == nil {
		return PreviewFile{URL: file}, true
	}
	plainText := strings.Contains(file, "plainText=true")
	return PreviewFile{
		URL:       b.StreamURL(m[1], plainText),
		FileID:    m[1],
		PlainText: plainText,
	}, true
}
