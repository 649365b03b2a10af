package service

import (
	"math/rand"
	"strings"
	"testing"

	"remo-voting/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nominee(id int64, first, last string, votes int) domain.RangePollChoice {
	return domain.RangePollChoice{ID: id, NomineeID: id, Nominee: domain.User{ID: id, FirstName: first, LastName: last}, Votes: votes}
}

func TestOrderRangeChoices_TieOnLastName(t *testing.T) {
	choices := []domain.RangePollChoice{
		nominee(1, "Alice", "Zed", 3),
		nominee(2, "Bob", "Young", 3),
	}
	ordered := OrderRangeChoices(choices)
	assert.Equal(t, "Young", ordered[0].Nominee.LastName)
	assert.Equal(t, "Zed", ordered[1].Nominee.LastName)

	// input untouched
	assert.Equal(t, "Zed", choices[0].Nominee.LastName)
}

func TestOrderRangeChoices_VotesThenNames(t *testing.T) {
	ordered := OrderRangeChoices([]domain.RangePollChoice{
		nominee(1, "Carl", "Adams", 0),
		nominee(2, "Bea", "Adams", 0),
		nominee(3, "Dan", "brown", 0),
		nominee(4, "Eve", "Clark", 9),
	})
	ids := []int64{ordered[0].ID, ordered[1].ID, ordered[2].ID, ordered[3].ID}
	assert.Equal(t, []int64{4, 2, 1, 3}, ids)
}

func TestOrderRadioChoices_TiesKeepInsertionOrder(t *testing.T) {
	ordered := OrderRadioChoices([]domain.RadioPollChoice{
		{ID: 10, Answer: "Yes", Votes: 1},
		{ID: 11, Answer: "No", Votes: 1},
		{ID: 12, Answer: "Abstain", Votes: 4},
	})
	assert.Equal(t, []string{"Abstain", "Yes", "No"}, []string{ordered[0].Answer, ordered[1].Answer, ordered[2].Answer})
}

var names = []string{"Adams", "adams", "Brown", "Young", "Zed", "Ng", "O'Neil", "Zhou"}

func TestOrderRangeChoices_Property(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 200; round++ {
		n := 1 + rng.Intn(12)
		choices := make([]domain.RangePollChoice, n)
		for i := range choices {
			choices[i] = nominee(int64(i+1), names[rng.Intn(len(names))], names[rng.Intn(len(names))], rng.Intn(4))
		}

		ordered := OrderRangeChoices(choices)
		require.Len(t, ordered, n)
		for i := 1; i < n; i++ {
			a, b := ordered[i-1], ordered[i]
			require.GreaterOrEqual(t, a.Votes, b.Votes)
			if a.Votes == b.Votes {
				ka := strings.ToLower(a.Nominee.LastName) + "\x00" + strings.ToLower(a.Nominee.FirstName)
				kb := strings.ToLower(b.Nominee.LastName) + "\x00" + strings.ToLower(b.Nominee.FirstName)
				require.LessOrEqual(t, ka, kb)
			}
		}

		// deterministic across repeated reads and input order
		shuffled := append([]domain.RangePollChoice{}, choices...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		assert.Equal(t, ordered, OrderRangeChoices(shuffled))
	}
}

func TestOrderRadioChoices_Property(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for round := 0; round < 200; round++ {
		n := 1 + rng.Intn(10)
		answers := make([]domain.RadioPollChoice, n)
		for i := range answers {
			answers[i] = domain.RadioPollChoice{ID: int64(i + 1), Votes: rng.Intn(3)}
		}
		ordered := OrderRadioChoices(answers)
		for i := 1; i < n; i++ {
			require.GreaterOrEqual(t, ordered[i-1].Votes, ordered[i].Votes)
			if ordered[i-1].Votes == ordered[i].Votes {
				require.Less(t, ordered[i-1].ID, ordered[i].ID)
			}
		}
	}
}

func TestTally_OrdersEverySectionWithoutMutating(t *testing.T) {
	poll := &domain.Poll{
		ID:   1,
		Slug: "p",
		Name: "P",
		RangePolls: []domain.RangePoll{{ID: 1, Choices: []domain.RangePollChoice{
			nominee(1, "A", "Zed", 0), nominee(2, "B", "Young", 2),
		}}},
		RadioPolls: []domain.RadioPoll{{ID: 2, Answers: []domain.RadioPollChoice{
			{ID: 3, Answer: "Yes", Votes: 0}, {ID: 4, Answer: "No", Votes: 5},
		}}},
	}

	res := Tally(poll, 5, true)
	assert.Equal(t, 5, res.TotalVotes)
	assert.True(t, res.Closed)
	assert.Equal(t, int64(2), res.RangePolls[0].Choices[0].ID)
	assert.Equal(t, "No", res.RadioPolls[0].Answers[0].Answer)

	assert.Equal(t, int64(1), poll.RangePolls[0].Choices[0].ID)
	assert.Equal(t, "Yes", poll.RadioPolls[0].Answers[0].Answer)
}
