package models

// InputKind distinguishes the classified input sources.
type InputKind string

// Input kinds produced by the classifier.
const (
	InputWebsite InputKind = "website"
	InputAsset   InputKind = "asset"
	InputYouTube InputKind = "youtube"
	InputMedia   InputKind = "media"
	InputFile    InputKind = "file"
)

// VideoKind distinguishes embedded video references.
type VideoKind string

// Video reference kinds.
const (
	VideoYouTube VideoKind = "youtube"
	VideoDirect  VideoKind = "direct"
)

// VideoRef points at a video associated with an extracted page.
type VideoRef struct {
	Kind VideoKind `json:"kind"`
	URL  string    `json:"url"`
}

// TranscriptInfo describes a resolved transcript.
type TranscriptInfo struct {
	Source    string            `json:"source"` // api, captions, actor, transcription
	Chars     int               `json:"chars"`
	WordCount int               `json:"wordCount"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// ExtractedContent is the output of the extractor pipeline.
//
// URL is the final post-redirect URL as reported by the fetch layer, which
// may differ from what the caller passed in.
type ExtractedContent struct {
	URL             string          `json:"url"`
	Title           string          `json:"title,omitempty"`
	Description     string          `json:"description,omitempty"`
	SiteName        string          `json:"siteName,omitempty"`
	Content         string          `json:"content"`
	Truncated       bool            `json:"truncated"`
	TotalCharacters int             `json:"totalCharacters"`
	WordCount       int             `json:"wordCount"`
	Transcript      *TranscriptInfo `json:"transcript,omitempty"`
	Video           *VideoRef       `json:"video,omitempty"`
	IsVideoOnly     bool            `json:"isVideoOnly"`
	Diagnostics     []string        `json:"diagnostics,omitempty"`
}
