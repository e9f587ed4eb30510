package entity

// Reply is one line the server sends back for a challenge: first with status
// "issued", then once more with the terminal status.
type Reply struct {
	ID       string            `json:"id"`
	Status   string            `json:"status"`
	Result   *ReconciledResult `json:"result,omitempty"`
	Reason   NoSolutionReason  `json:"reason,omitempty"`
	Attempts uint64            `json:"attempts,omitempty"`
	Error    string            `json:"error,omitempty"`
}

const StatusIssued = "issued"
