package models

// SourceKind distinguishes slide sources.
type SourceKind string

// Slide source kinds.
const (
	SourceYouTube SourceKind = "youtube"
	SourceDirect  SourceKind = "direct"
)

// AutoTune records how the scene threshold was chosen.
type AutoTune struct {
	Enabled         bool    `json:"enabled"`
	ChosenThreshold float64 `json:"chosenThreshold"`
	Confidence      float64 `json:"confidence"`
	Strategy        string  `json:"strategy"` // "hash" when calibrated, "none" otherwise
}

// Slide is one extracted scene frame. Index is 1-based and contiguous;
// slides are sorted by timestamp.
type Slide struct {
	Index         int     `json:"index"`
	Timestamp     float64 `json:"timestamp"`
	ImagePath     string  `json:"imagePath"`
	ImageVersion  int     `json:"imageVersion,omitempty"`
	OcrText       string  `json:"ocrText,omitempty"`
	OcrConfidence float64 `json:"ocrConfidence,omitempty"`
}

// SlideExtractionResult is the manifest written to slides.json after a run.
// Every ImagePath must resolve inside SlidesDir.
type SlideExtractionResult struct {
	SourceURL        string     `json:"sourceUrl"`
	SourceKind       SourceKind `json:"sourceKind"`
	SourceID         string     `json:"sourceId"`
	SlidesDir        string     `json:"slidesDir"`
	SlidesDirID      string     `json:"slidesDirId"`
	SceneThreshold   float64    `json:"sceneThreshold"`
	AutoTune         AutoTune   `json:"autoTune"`
	MaxSlides        int        `json:"maxSlides"`
	MinSlideDuration float64    `json:"minSlideDuration"`
	OcrRequested     bool       `json:"ocrRequested"`
	OcrAvailable     bool       `json:"ocrAvailable"`
	Slides           []Slide    `json:"slides"`
	Warnings         []string   `json:"warnings,omitempty"`
}
