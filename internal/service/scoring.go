package service

import (
	"fmt"
	"strconv"
	"strings"
)

// ScoringPolicy turns a rank into points for a range poll section.
// Implementations must be monotone: for a fixed nominee count a better
// (smaller) rank never earns fewer points than a worse one.
type ScoringPolicy interface {
	Name() string
	Points(rank, nominees int) int
}

// Scoring policy names accepted by NewScoringPolicy
const (
	ScoringBorda     = "borda"
	ScoringPlurality = "plurality"
	ScoringTable     = "table"
)

// BordaScoring awards nominees-rank+1 points, so first place among N gets N.
type BordaScoring struct{}

func (BordaScoring) Name() string { return ScoringBorda }

func (BordaScoring) Points(rank, nominees int) int {
	if rank < 1 || rank > nominees {
		return 0
	}
	return nominees - rank + 1
}

// PluralityScoring gives one point to every nominee ranked first.
type PluralityScoring struct{}

func (PluralityScoring) Name() string { return ScoringPlurality }

func (PluralityScoring) Points(rank, _ int) int {
	if rank == 1 {
		return 1
	}
	return 0
}

// TableScoring uses fixed points per position; ranks past the table score 0.
type TableScoring struct {
	table []int
}

// NewTableScoring validates that the table is non-negative and non-increasing.
func NewTableScoring(table []int) (*TableScoring, error) {
	if len(table) == 0 {
		return nil, fmt.Errorf("scoring table is empty")
	}
	for i, pts := range table {
		if pts < 0 {
			return nil, fmt.Errorf("scoring table position %d is negative", i+1)
		}
		if i > 0 && pts > table[i-1] {
			return nil, fmt.Errorf("scoring table must not increase (position %d)", i+1)
		}
	}
	return &TableScoring{table: append([]int(nil), table...)}, nil
}

func (t *TableScoring) Name() string { return ScoringTable }

func (t *TableScoring) Points(rank, _ int) int {
	if rank < 1 || rank > len(t.table) {
		return 0
	}
	return t.table[rank-1]
}

// ParseScoringTable reads "5,3,1" style tables from configuration
func ParseScoringTable(raw string) ([]int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	table := make([]int, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid scoring table entry %q: %w", part, err)
		}
		table = append(table, n)
	}
	return table, nil
}

// NewScoringPolicy builds the named policy
func NewScoringPolicy(name string, table []int) (ScoringPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", ScoringBorda:
		return BordaScoring{}, nil
	case ScoringPlurality:
		return PluralityScoring{}, nil
	case ScoringTable:
		return NewTableScoring(table)
	}
	return nil, fmt.Errorf("unknown scoring policy %q", name)
}
