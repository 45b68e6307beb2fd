package domain

import "errors"

var (
	// ErrScopeNotFound indicates the scope vanished between the vote and
	// evaluation. Callers treat it as consensus-not-possible, never as a
	// failure of the vote itself.
	ErrScopeNotFound = errors.New("scope not found")

	// ErrMatchNotFound indicates no match exists for a (scope, item) key.
	ErrMatchNotFound = errors.New("match not found")

	// ErrDeckNotFound indicates no deck has been generated for a scope yet.
	ErrDeckNotFound = errors.New("deck not found")

	// ErrItemNotFound indicates no vote in the scope references the item.
	ErrItemNotFound = errors.New("item not found")

	// ErrVoteNotFound indicates the member has no vote for a (scope, item) key.
	ErrVoteNotFound = errors.New("vote not found")

	// ErrInvalidDirection indicates a vote direction outside {right, left}.
	ErrInvalidDirection = errors.New("invalid vote direction")

	// ErrInvalidStatus indicates an unknown match status transition target.
	ErrInvalidStatus = errors.New("invalid match status")
)
