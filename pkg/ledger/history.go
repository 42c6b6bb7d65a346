package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"moonx-swap/pkg/store"
	"moonx-swap/pkg/types"
)

const (
	historyKey = "history"
	// MaxHistory is the number of executions kept
	MaxHistory = 200
)

// Execution is the persisted record of one trade attempt
type Execution struct {
	ID               string          `json:"id"`
	Timestamp        time.Time       `json:"timestamp"`
	Venue            types.Venue     `json:"venue"`
	Mode             types.TradeMode `json:"mode"`
	ChainID          int64           `json:"chain_id"`
	Wallet           string          `json:"wallet"`
	SourceToken      string          `json:"source_token"`
	DestinationToken string          `json:"destination_token"`
	Amount           string          `json:"amount"`
	Slippage         int             `json:"slippage"`
	State            string          `json:"state"`
	ApprovalTx       string          `json:"approval_tx,omitempty"`
	TxHash           string          `json:"tx_hash,omitempty"`
	ErrorKind        string          `json:"error_kind,omitempty"`
	Error            string          `json:"error,omitempty"`
	DurationMs       int64           `json:"duration_ms"`
}

// History stores execution records, newest first
type History struct {
	store *store.Store
}

// NewHistory creates a history backed by s
func NewHistory(s *store.Store) *History {
	return &History{store: s}
}

// NewExecution starts a record for intent with a fresh ID
func NewExecution(intent types.TradeIntent) *Execution {
	amount := ""
	if intent.Amount != nil {
		amount = intent.Amount.String()
	}
	return &Execution{
		ID:               uuid.New().String(),
		Timestamp:        time.Now().UTC(),
		Venue:            intent.Venue,
		Mode:             intent.Mode,
		ChainID:          intent.ChainID,
		SourceToken:      intent.SourceToken.Hex(),
		DestinationToken: intent.DestinationToken.Hex(),
		Amount:           amount,
		Slippage:         intent.Slippage,
	}
}

// Record prepends exec, trimming to MaxHistory entries
func (h *History) Record(exec *Execution) error {
	if exec.ID == "" {
		return fmt.Errorf("execution id is required")
	}
	return h.store.Update(historyKey, func(raw json.RawMessage) (interface{}, error) {
		var entries []*Execution
		if raw != nil {
			if err := json.Unmarshal(raw, &entries); err != nil {
				return nil, fmt.Errorf("failed to decode history: %w", err)
			}
		}
		entries = append([]*Execution{exec}, entries...)
		if len(entries) > MaxHistory {
			entries = entries[:MaxHistory]
		}
		return entries, nil
	})
}

// List returns up to limit records, newest first. limit <= 0 returns all.
func (h *History) List(limit int) ([]*Execution, error) {
	var entries []*Execution
	if _, err := h.store.Get(historyKey, &entries); err != nil {
		return nil, err
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Get finds a record by ID
func (h *History) Get(id string) (*Execution, error) {
	entries, err := h.List(0)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, fmt.Errorf("execution '%s' not found", id)
}
