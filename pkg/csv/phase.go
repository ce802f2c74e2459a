package csv

import "github.com/fedchain/node/pkg/commit"

// PhaseKind names the CSV phase; the last-accepted-commit kind determines
// the phase.
type PhaseKind int

const (
	PhaseBlock PhaseKind = iota
	PhaseTransaction
	PhaseAgenda
	PhaseAgendaProof
	PhaseExtraAgendaTransaction
)

func (k PhaseKind) String() string {
	switch k {
	case PhaseBlock:
		return "Block"
	case PhaseTransaction:
		return "Transaction"
	case PhaseAgenda:
		return "Agenda"
	case PhaseAgendaProof:
		return "AgendaProof"
	case PhaseExtraAgendaTransaction:
		return "ExtraAgendaTransaction"
	default:
		return "Unknown"
	}
}

// Phase is the CSV's current position in the commit-acceptance cycle.
type Phase struct {
	Kind PhaseKind

	// Valid when Kind == PhaseTransaction.
	LastTransaction       commit.Transaction
	PrecedingTransactions []commit.Transaction

	// Valid when Kind == PhaseAgenda.
	Agenda commit.Agenda

	// Valid when Kind == PhaseAgendaProof.
	AgendaProof commit.AgendaProof

	// Valid when Kind == PhaseExtraAgendaTransaction.
	LastExtraTimestamp int64
}
