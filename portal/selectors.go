package portal

// Selectors defines where the portal renders the pieces civicfetch reads.
// The defaults match the CivicClerk public portal; deployments that skin
// the portal differently can override individual selectors from config.
type Selectors struct {
	Listing ListingSelectors `yaml:"listing"`
	Files   FilesSelectors   `yaml:"files"`
}

// ListingSelectors locate meetings on the portal's index page.
type ListingSelectors struct {
	Table       string `yaml:"table"`        // outer table, waited for before reading
	List        string `yaml:"list"`         // list holding the meeting rows
	ReadyLink   string `yaml:"ready_link"`   // first rendered row link
	Row         string `yaml:"row"`          // one row, header rows included
	Link        string `yaml:"link"`         // row link carrying href and data-id
	Title       string `yaml:"title"`        // title heading inside the link
	DateDetails string `yaml:"date_details"` // two-line visual date block
}

// FilesSelectors locate files, menus and fallbacks on a meeting's files page.
type FilesSelectors struct {
	FilesList        string   `yaml:"files_list"`
	FileRow          string   `yaml:"file_row"`
	Name             string   `yaml:"name"`
	FileTrigger      string   `yaml:"file_trigger"`
	AttachmentsList  string   `yaml:"attachments_list"`
	AttachmentRow    string   `yaml:"attachment_row"`
	SectionHeader    string   `yaml:"section_header"`
	HeaderRow        string   `yaml:"header_row"`
	AttachTriggers   []string `yaml:"attachment_triggers"` // tried in order
	MenuItem         string   `yaml:"menu_item"`
	DownloadSpan     string   `yaml:"download_span"`
	PreviewFrame     string   `yaml:"preview_frame"`
	DownloadAnchor   string   `yaml:"download_anchor"`
	MainBundle       string   `yaml:"main_bundle"`
	PlaceholderLabel string   `yaml:"placeholder_label"`
}

// DefaultSelectors returns the selectors for the stock CivicClerk portal.
func DefaultSelectors() Selectors {
	return Selectors{
		Listing: ListingSelectors{
			Table:       "#event-list-table",
			List:        "#Event-list",
			ReadyLink:   "li.MuiListItem-container a[href]",
			Row:         "#Event-list li.MuiListItem-container",
			Link:        "a[href]",
			Title:       "h3[id^='eventListRow-'][id$='-title']",
			DateDetails: "div[data-testid='dateDetails'] h2.MuiTypography-h5",
		},
		Files: FilesSelectors{
			FilesList:       "#files",
			FileRow:         "#files li.MuiListItem-container",
			Name:            "span.MuiListItemText-primary",
			FileTrigger:     "button[data-testid='files']",
			AttachmentsList: "#AttachmentsList",
			AttachmentRow:   "#AttachmentsList li",
			SectionHeader:   ".MuiListSubheader-root span",
			HeaderRow:       ".MuiListSubheader-root",
			AttachTriggers: []string{
				"button[data-testid='reportFiles']",
				"button[data-testid='attachmentFiles']",
			},
			MenuItem:         "li[role='menuitem']",
			DownloadSpan:     "span[data-testid='downloadFileButton']",
			PreviewFrame:     "#pdfViewerIframe",
			DownloadAnchor:   "a[download], a[href*='GetMeetingFileStream'], a[href*='download']",
			MainBundle:       "script[src*='main.']",
			PlaceholderLabel: "No Attachment File",
		},
	}
}

// Merge returns s with every empty field replaced by its default.
func (s Selectors) Merge() Selectors {
	d := DefaultSelectors()
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}

	l := &s.Listing
	fill(&l.Table, d.Listing.Table)
	fill(&l.List, d.Listing.List)
	fill(&l.ReadyLink, d.Listing.ReadyLink)
	fill(&l.Row, d.Listing.Row)
	fill(&l.Link, d.Listing.Link)
	fill(&l.Title, d.Listing.Title)
	fill(&l.DateDetails, d.Listing.DateDetails)

	f := &s.Files
	fill(&f.FilesList, d.Files.FilesList)
	fill(&f.FileRow, d.Files.FileRow)
	fill(&f.Name, d.Files.Name)
	fill(&f.FileTrigger, d.Files.FileTrigger)
	fill(&f.AttachmentsList, d.Files.AttachmentsList)
	fill(&f.AttachmentRow, d.Files.AttachmentRow)
	fill(&f.SectionHeader, d.Files.SectionHeader)
	fill(&f.HeaderRow, d.Files.HeaderRow)
	fill(&f.MenuItem, d.Files.MenuItem)
	fill(&f.DownloadSpan, d.Files.DownloadSpan)
	fill(&f.PreviewFrame, d.Files.PreviewFrame)
	fill(&f.DownloadAnchor, d.Files.DownloadAnchor)
	fill(&f.MainBundle, d.Files.MainBundle)
	fill(&f.PlaceholderLabel, d.Files.PlaceholderLabel)
	if len(f.AttachTriggers) == 0 {
		f.AttachTriggers = d.Files.AttachTriggers
	}
	return s
}
