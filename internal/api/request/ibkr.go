package request

// UpdateIbkrConfigRequest stores the flex query credentials. Enabled
// defaults to true when omitted.
type UpdateIbkrConfigRequest struct {
	Enabled     *bool   `json:"enabled"`
	FlexToken   *string `json:"flexToken"`
	FlexQueryID *string `json:"flexQueryId"`
}
