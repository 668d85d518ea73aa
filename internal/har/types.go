package har

// HAR is an HTTP Archive (HAR 1.2). Only the parts needed to rebuild the
// resource timeline of a page load are modelled; unknown fields are ignored.
type HAR struct {
	Log *Log `json:"log"`
}

// Log contains the HTTP archive data
type Log struct {
	Version string   `json:"version"`
	Creator *Creator `json:"creator"`
	Browser *Browser `json:"browser,omitempty"`
	Pages   []*Page  `json:"pages,omitempty"`
	Entries []*Entry `json:"entries"`
}

// Creator describes the application that created the archive
type Creator struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Browser describes the browser that created the archive (optional)
type Browser struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Page describes a page within the archive (optional)
type Page struct {
	ID              string       `json:"id"`
	StartedDateTime string       `json:"startedDateTime"`
	Title           string       `json:"title"`
	PageTimings     *PageTimings `json:"pageTimings"`
}

// PageTimings are milliseconds since the page started; -1 means unknown.
type PageTimings struct {
	OnContentLoad float64 `json:"onContentLoad,omitempty"`
	OnLoad        float64 `json:"onLoad,omitempty"`
}

// Entry describes a single HTTP request/response pair. ResourceType is the
// Chrome DevTools extension field.
type Entry struct {
	PageRef         string    `json:"pageref,omitempty"`
	StartedDateTime string    `json:"startedDateTime"`
	Time            float64   `json:"time"`
	Request         *Request  `json:"request"`
	Response        *Response `json:"response"`
	ResourceType    string    `json:"_resourceType,omitempty"`
}

// Request describes an HTTP request
type Request struct {
	Method      string `json:"method"`
	URL         string `json:"url"`
	HTTPVersion string `json:"httpVersion"`
}

// Response describes an HTTP response. Sizes of -1 mean unknown.
// TransferSize is Chrome's on-the-wire byte count, zero for cache hits.
type Response struct {
	Status       int      `json:"status"`
	StatusText   string   `json:"statusText"`
	Content      *Content `json:"content"`
	HeadersSize  int64    `json:"headersSize"`
	BodySize     int64    `json:"bodySize"`
	TransferSize int64    `json:"_transferSize,omitempty"`
}

// Content describes the decoded response body
type Content struct {
	Size        int64  `json:"size"`
	Compression int64  `json:"compression,omitempty"`
	MimeType    string `json:"mimeType"`
}
