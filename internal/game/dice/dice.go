// Package dice provides server-side dice rolling for games, so participants
// never supply their own random results.
package dice

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// Source is the randomness provider for rolls.
//
// Implementations MUST be safe for concurrent use.
type Source interface {
	// Intn returns a non-negative random int in [0, n).
	//
	// Precondition: n > 0.
	Intn(n int) int
}

type cryptoSource struct{}

// NewCryptoSource returns a Source backed by crypto/rand.
func NewCryptoSource() Source {
	return cryptoSource{}
}

// Intn panics when n <= 0 or crypto/rand fails.
func (cryptoSource) Intn(n int) int {
	if n <= 0 {
		panic("dice: Intn called with n <= 0")
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic("dice: crypto/rand failure: " + err.Error())
	}
	return int(v.Int64())
}

// Expression is a parsed "NdS+M" dice expression.
type Expression struct {
	Raw      string
	Count    int
	Sides    int
	Modifier int
}

// Result is the outcome of rolling an Expression.
//
// Postcondition: Total == sum(Dice) + Modifier.
type Result struct {
	Expression string `json:"expression"`
	Dice       []int  `json:"dice"`
	Modifier   int    `json:"modifier"`
	Total      int    `json:"total"`
}

// Parse parses "d20", "2d6", "3d8+2" or "1d4-1".
//
// Postcondition: Count in [1, 100], Sides in [2, 1000], or a non-nil error.
func Parse(expr string) (Expression, error) {
	s := strings.ToLower(strings.TrimSpace(expr))
	d := strings.IndexByte(s, 'd')
	if d < 0 {
		return Expression{}, fmt.Errorf("dice: missing 'd' in expression %q", expr)
	}

	count := 1
	if d > 0 {
		n, err := strconv.Atoi(s[:d])
		if err != nil {
			return Expression{}, fmt.Errorf("dice: invalid die count in %q: %w", expr, err)
		}
		count = n
	}

	rest := s[d+1:]
	modifier := 0
	if i := strings.IndexAny(rest, "+-"); i > 0 {
		m, err := strconv.Atoi(rest[i:])
		if err != nil {
			return Expression{}, fmt.Errorf("dice: invalid modifier in %q: %w", expr, err)
		}
		modifier = m
		rest = rest[:i]
	}
	sides, err := strconv.Atoi(rest)
	if err != nil {
		return Expression{}, fmt.Errorf("dice: invalid sides in %q: %w", expr, err)
	}

	if count < 1 || count > 100 {
		return Expression{}, fmt.Errorf("dice: die count %d out of range in %q", count, expr)
	}
	if sides < 2 || sides > 1000 {
		return Expression{}, fmt.Errorf("dice: sides %d out of range in %q", sides, expr)
	}
	return Expression{Raw: expr, Count: count, Sides: sides, Modifier: modifier}, nil
}

// Roll evaluates expr against src.
func Roll(expr Expression, src Source) Result {
	res := Result{Expression: expr.Raw, Dice: make([]int, expr.Count), Modifier: expr.Modifier}
	res.Total = expr.Modifier
	for i := range res.Dice {
		res.Dice[i] = src.Intn(expr.Sides) + 1
		res.Total += res.Dice[i]
	}
	return res
}
