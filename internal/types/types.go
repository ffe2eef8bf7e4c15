package types

// Column headers of the annotation log, after header trimming.
const (
	ColumnEmail      = "Email"
	ColumnCategory   = "Category"
	ColumnPolicyType = "Targeted RAI Policy (Task Type)"
	ColumnOutcome    = "Deflection Type (Jailbreaking Technique)"
	ColumnPromptID   = "Prompt ID"
	ColumnTurnID     = "Turn ID"
)

// RequiredColumns must all be present for a dataset to be aggregated.
var RequiredColumns = []string{
	ColumnEmail,
	ColumnCategory,
	ColumnPolicyType,
	ColumnOutcome,
}

// Outcome values recognised in the deflection column.
const (
	OutcomeFull    = "Full"
	OutcomePartial = "Partial"
	OutcomeNone    = "N/a"
)

// Row represents one annotation submission
type Row struct {
	ContributorID string `json:"contributor_id"`
	Category      string `json:"category"`
	PolicyType    string `json:"policy_type"`
	Outcome       string `json:"outcome"`
	PromptID      int    `json:"prompt_id,omitempty"`
	TurnID        int    `json:"turn_id,omitempty"`
	Line          int    `json:"line"`
}

// AnalyzeRequest represents the JSON body accepted by the analyze endpoints
type AnalyzeRequest struct {
	Rows []map[string]interface{} `json:"rows" binding:"required"`
}
