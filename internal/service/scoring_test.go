package service

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBordaScoring(t *testing.T) {
	b := BordaScoring{}
	assert.Equal(t, 3, b.Points(1, 3))
	assert.Equal(t, 2, b.Points(2, 3))
	assert.Equal(t, 1, b.Points(3, 3))
	assert.Equal(t, 0, b.Points(0, 3))
	assert.Equal(t, 0, b.Points(4, 3))
}

func TestPluralityScoring(t *testing.T) {
	p := PluralityScoring{}
	assert.Equal(t, 1, p.Points(1, 5))
	assert.Equal(t, 0, p.Points(2, 5))
}

func TestTableScoring(t *testing.T) {
	ts, err := NewTableScoring([]int{5, 3, 1})
	require.NoError(t, err)
	assert.Equal(t, 5, ts.Points(1, 10))
	assert.Equal(t, 1, ts.Points(3, 10))
	assert.Equal(t, 0, ts.Points(4, 10))
	assert.Equal(t, ScoringTable, ts.Name())

	_, err = NewTableScoring(nil)
	assert.Error(t, err)
	_, err = NewTableScoring([]int{1, 3})
	assert.Error(t, err)
	_, err = NewTableScoring([]int{2, -1})
	assert.Error(t, err)
}

func TestParseScoringTable(t *testing.T) {
	table, err := ParseScoringTable(" 5, 3 ,1")
	require.NoError(t, err)
	assert.Equal(t, []int{5, 3, 1}, table)

	table, err = ParseScoringTable("")
	require.NoError(t, err)
	assert.Nil(t, table)

	_, err = ParseScoringTable("5,x")
	assert.Error(t, err)
}

func TestNewScoringPolicy(t *testing.T) {
	p, err := NewScoringPolicy("", nil)
	require.NoError(t, err)
	assert.Equal(t, ScoringBorda, p.Name())

	p, err = NewScoringPolicy("Plurality", nil)
	require.NoError(t, err)
	assert.Equal(t, ScoringPlurality, p.Name())

	p, err = NewScoringPolicy("table", []int{2, 1})
	require.NoError(t, err)
	assert.Equal(t, ScoringTable, p.Name())

	_, err = NewScoringPolicy("table", nil)
	assert.Error(t, err)
	_, err = NewScoringPolicy("approval", nil)
	assert.Error(t, err)
}

// A better rank never earns fewer points than a worse one, for any policy
// and nominee count.
func TestScoringPolicies_Monotone(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	table, err := NewTableScoring([]int{10, 6, 6, 3, 1})
	require.NoError(t, err)
	policies := []ScoringPolicy{BordaScoring{}, PluralityScoring{}, table}

	for _, policy := range policies {
		for i := 0; i < 500; i++ {
			nominees := 1 + rng.Intn(30)
			better := 1 + rng.Intn(nominees)
			worse := better + rng.Intn(nominees-better+1)
			assert.GreaterOrEqual(t, policy.Points(better, nominees), policy.Points(worse, nominees),
				"%s: rank %d vs %d of %d", policy.Name(), better, worse, nominees)
			assert.GreaterOrEqual(t, policy.Points(worse, nominees), 0)
		}
	}
}
