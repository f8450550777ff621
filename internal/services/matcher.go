package services

import (
	"sort"
	"strings"

	"github.com/vietcart/payment-backend/internal/models"
	"github.com/vietcart/payment-backend/pkg/refcode"
)

// MatchOutcome is the result of evaluating a window of bank transactions
// against one intent. Transaction is nil when nothing matched. Duplicate
// candidates are additional transactions that also matched; they go to
// manual review and are never auto-processed.
type MatchOutcome struct {
	Transaction         *models.BankTransaction
	DuplicateCandidates []models.BankTransaction
}

// MatchIntent selects at most one bank transaction for the intent. A
// transaction qualifies only if its description contains one of the
// reference candidate forms AND its amount equals the expected amount
// exactly. Among several qualifying transactions the earliest wins.
//
// Pure: no I/O, no clock, safe to call from any goroutine.
func MatchIntent(intent *models.PaymentIntent, transactions []models.BankTransaction) MatchOutcome {
	prefix := strings.ToUpper(string(intent.OwnerType))
	candidates := refcode.Candidates(intent.ReferenceCode, prefix, intent.OwnerID)

	var hits []models.BankTransaction
	for _, tx := range transactions {
		if tx.Amount != intent.ExpectedAmount {
			continue
		}
		if !refcode.ContainsAny(tx.Description, candidates) {
			continue
		}
		hits = append(hits, tx)
	}

	if len(hits) == 0 {
		return MatchOutcome{}
	}

	sort.Slice(hits, func(i, j int) bool {
		return hits[i].OccurredAt.Before(hits[j].OccurredAt)
	})

	return MatchOutcome{
		Transaction:         &hits[0],
		DuplicateCandidates: hits[1:],
	}
}
