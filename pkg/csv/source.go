package csv

import (
	"github.com/fedchain/node/pkg/commit"
	"github.com/fedchain/node/pkg/errs"
)

// CommitSource is the read-only shape of the versioned commit store the
// verifier consumes: an ordered stream of commits addressed by index.
// Tests drive it with an in-memory slice; production wraps the real
// repository layer without its internals entering this package.
type CommitSource interface {
	// CommitCount returns the number of commits available.
	CommitCount() (int, error)
	// CommitsRange returns commits [from, to), in order.
	CommitsRange(from, to int) ([]commit.Commit, error)
}

// SliceSource adapts an in-memory commit list to CommitSource.
type SliceSource []commit.Commit

func (s SliceSource) CommitCount() (int, error) { return len(s), nil }

func (s SliceSource) CommitsRange(from, to int) ([]commit.Commit, error) {
	if from < 0 || to < from || to > len(s) {
		return nil, errs.Newf(errs.KindInvalidArgument, "commit range [%d,%d) out of bounds for %d commits", from, to, len(s))
	}
	return append([]commit.Commit(nil), s[from:to]...), nil
}

// ApplyRange feeds commits [from, to) from src through v in order,
// returning the number accepted. It stops at the first rejection and
// returns that commit's error; the verifier keeps the state of the valid
// prefix it accepted.
func (v *Verifier) ApplyRange(src CommitSource, from, to int) (int, error) {
	commits, err := src.CommitsRange(from, to)
	if err != nil {
		return 0, err
	}
	for i, c := range commits {
		if err := v.Apply(c); err != nil {
			return i, err
		}
	}
	return len(commits), nil
}
