package game

import (
	"errors"
	"strconv"

	"github.com/shopspring/decimal"
)

// CaseCount is the number of sealed cases in every game
const CaseCount = 26

// CaseValues is the fixed prize ladder dealt into the cases
var CaseValues = [CaseCount]float64{
	0.01, 1, 5, 10, 25, 50, 75, 100, 200, 300, 400, 500, 750, 1000,
	5000, 10000, 25000, 50000, 75000, 100000, 200000, 300000, 400000,
	500000, 750000, 1000000,
}

// casesPerRound maps round number to the number of cases opened that round
var casesPerRound = map[int]int{
	1: 6,
	2: 5,
	3: 4,
	4: 3,
	5: 2,
	6: 1,
}

// CasesForRound returns how many cases are opened in the given round.
// Rounds beyond the schedule open one case.
func CasesForRound(round int) int {
	if n, ok := casesPerRound[round]; ok {
		return n
	}
	return 1
}

// CaseIDs returns the case identifiers "1".."26" in order
func CaseIDs() []string {
	ids := make([]string, CaseCount)
	for i := range ids {
		ids[i] = strconv.Itoa(i + 1)
	}
	return ids
}

var (
	baseFactor  = decimal.New(3, -1) // 0.3
	roundStep   = decimal.New(1, -1) // 0.1
	factorLimit = decimal.New(9, -1) // 0.9
)

// ErrNoCasesInPlay is returned when an offer is requested with nothing left to open
var ErrNoCasesInPlay = errors.New("no cases left in play")

// RoundFactor is the banker's discount for a round: min(0.9, 0.3 + 0.1*round)
func RoundFactor(round int) decimal.Decimal {
	f := baseFactor.Add(roundStep.Mul(decimal.NewFromInt(int64(round))))
	return decimal.Min(f, factorLimit)
}

// SuggestedOffer computes the banker's advisory offer from the values still
// in play: the mean of values times the round factor, rounded to cents.
func SuggestedOffer(values []float64, round int) (float64, error) {
	if len(values) == 0 {
		return 0, ErrNoCasesInPlay
	}

	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(decimal.NewFromFloat(v))
	}
	expected := sum.Div(decimal.NewFromInt(int64(len(values))))

	return expected.Mul(RoundFactor(round)).Round(2).InexactFloat64(), nil
}
