package models

// CallPurpose classifies what a model call was for.
type CallPurpose string

// Call purposes booked in the cost report.
const (
	PurposeSummary      CallPurpose = "summary"
	PurposeChunkNotes   CallPurpose = "chunk-notes"
	PurposeMarkdown     CallPurpose = "markdown"
	PurposeAssetSummary CallPurpose = "asset-summary"
)

// TokenUsage holds token counts for one call. Nil fields mean the provider
// did not report that column; nil is preserved through aggregation and is
// distinct from zero.
type TokenUsage struct {
	Prompt     *int64 `json:"prompt"`
	Completion *int64 `json:"completion"`
	Total      *int64 `json:"total"`
}

// Int64Ptr returns a pointer to v. Convenience for building TokenUsage.
func Int64Ptr(v int64) *int64 {
	return &v
}

// LlmCall is one booked model invocation.
type LlmCall struct {
	Provider Provider    `json:"provider"`
	Model    string      `json:"model"`
	Usage    TokenUsage  `json:"usage"`
	Purpose  CallPurpose `json:"purpose"`

	// PresetID echoes the user-supplied id when the model came from a full
	// provider/... id, used for display labels in the metrics report.
	PresetID string `json:"presetId,omitempty"`
}
