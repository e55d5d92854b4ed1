package llm

// Response wraps an LLM completion result.
//
// Body is the response payload exactly as received. The answer text is not
// decoded here; callers pull it out of Body by the string field named in
// ContentField.
type Response struct {
	Body         string `json:"body"`
	ContentField string `json:"content_field"`
	Model        string `json:"model,omitempty"`
	InputTokens  int    `json:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
	StopReason   string `json:"stop_reason,omitempty"`
}
