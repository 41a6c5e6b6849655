package analytics

import "time"

// RerankEvent records one completed or rejected rerank request for the
// analytics stream. It carries aggregate shape and latency data only, never
// the token matrices themselves.
type RerankEvent struct {
	Outcome      string    `json:"outcome"`
	QTokensIn    int       `json:"q_tokens_in"`
	DocsScored   int       `json:"docs_scored"`
	Returned     int       `json:"returned"`
	TopK         int       `json:"topk"`
	PruneMethod  string    `json:"prune_method"`
	PerDocMsP50  float64   `json:"per_doc_ms_p50"`
	PerDocMsP95  float64   `json:"per_doc_ms_p95"`
	TotalMs      int64     `json:"total_ms"`
	RequestID    string    `json:"request_id,omitempty"`
	ErrorMessage string    `json:"error,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Event outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeFault    = "fault"
)
