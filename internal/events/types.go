package events

import "time"

// WorkIssuedMessage records a unit of work handed to a miner
type WorkIssuedMessage struct {
	WorkHash     string    `json:"work_hash"`
	MinerAccount string    `json:"miner_account"`
	ChainID      uint32    `json:"chain_id"`
	Height       uint64    `json:"height"`
	TxCount      int       `json:"tx_count"`
	IssuedAt     time.Time `json:"issued_at"`
}

// SolveMessage records an accepted solution for outstanding work
type SolveMessage struct {
	WorkHash     string    `json:"work_hash"`
	MinerAccount string    `json:"miner_account"`
	ChainID      uint32    `json:"chain_id"`
	Height       uint64    `json:"height"`
	IssuedAt     time.Time `json:"issued_at"`
	SolvedAt     time.Time `json:"solved_at"`
}

// CoordinatorStatsMessage records the periodic coordination statistics tick
type CoordinatorStatsMessage struct {
	ActiveWork     int       `json:"active_work"`
	PrunedWork     int       `json:"pruned_work"`
	RejectedWork   uint64    `json:"rejected_work"`
	AverageTxCount float64   `json:"avg_tx_count"`
	ObservedAt     time.Time `json:"observed_at"`
}
