package service

import (
	"sort"
	"strings"

	"remo-voting/internal/domain"
)

// OrderRangeChoices sorts by votes descending, then nominee last name and
// first name ascending. Choice id breaks any remaining tie so the order is
// total. The input is not modified.
func OrderRangeChoices(choices []domain.RangePollChoice) []domain.RangePollChoice {
	out := append([]domain.RangePollChoice{}, choices...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Votes != b.Votes {
			return a.Votes > b.Votes
		}
		if c := strings.Compare(strings.ToLower(a.Nominee.LastName), strings.ToLower(b.Nominee.LastName)); c != 0 {
			return c < 0
		}
		if c := strings.Compare(strings.ToLower(a.Nominee.FirstName), strings.ToLower(b.Nominee.FirstName)); c != 0 {
			return c < 0
		}
		return a.ID < b.ID
	})
	return out
}

// OrderRadioChoices sorts by votes descending. Ties keep insertion order,
// which is ascending choice id.
func OrderRadioChoices(choices []domain.RadioPollChoice) []domain.RadioPollChoice {
	out := append([]domain.RadioPollChoice{}, choices...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Votes != out[j].Votes {
			return out[i].Votes > out[j].Votes
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Tally orders every section of a poll. It only reads the poll.
func Tally(poll *domain.Poll, totalVotes int, closed bool) *domain.PollResults {
	res := &domain.PollResults{
		PollID:     poll.ID,
		Slug:       poll.Slug,
		Name:       poll.Name,
		Closed:     closed,
		Ends:       poll.End,
		TotalVotes: totalVotes,
		RangePolls: make([]domain.RangePoll, len(poll.RangePolls)),
		RadioPolls: make([]domain.RadioPoll, len(poll.RadioPolls)),
	}
	for i, rp := range poll.RangePolls {
		rp.Choices = OrderRangeChoices(rp.Choices)
		res.RangePolls[i] = rp
	}
	for i, rp := range poll.RadioPolls {
		rp.Answers = OrderRadioChoices(rp.Answers)
		res.RadioPolls[i] = rp
	}
	return res
}
