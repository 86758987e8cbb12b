package engine

import (
	"fmt"

	"crease/internal/domain"
)

// ValidationError rejects a malformed or law-violating command before any
// state mutation.
type ValidationError struct {
	Reason string
}

func (e ValidationError) Error() string { return e.Reason }

func validationf(format string, args ...any) ValidationError {
	return ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// GateError blocks a delivery while a follow-up command is outstanding. It
// carries everything the caller needs to resolve the gate without another
// query.
type GateError struct {
	Gate        domain.Gate
	DismissedID string
	Eligible    []domain.Player
	PrevBowler  string
}

func (e GateError) Error() string {
	switch e.Gate {
	case domain.GateBatter:
		return "batter selection required before next delivery"
	case domain.GateOver:
		return "over start required before next delivery"
	}
	return "gate open"
}

// Selection error codes.
const (
	SelectionAlreadyOut     = "player_already_out"
	SelectionAlreadyBatting = "player_already_batting"
	SelectionNotPending     = "no_pending_selection"
)

// SelectionError rejects an invalid next-batter choice.
type SelectionError struct {
	Code     string
	PlayerID string
}

func (e SelectionError) Error() string {
	switch e.Code {
	case SelectionAlreadyOut:
		return fmt.Sprintf("player %s is already out", e.PlayerID)
	case SelectionAlreadyBatting:
		return fmt.Sprintf("player %s is already batting", e.PlayerID)
	case SelectionNotPending:
		return "no batter selection is pending"
	}
	return "invalid batter selection"
}

// Over error codes.
const (
	OverSameBowler = "same_bowler_as_previous_over"
	OverInProgress = "over_already_in_progress"
)

// OverError rejects an invalid over start.
type OverError struct {
	Code     string
	BowlerID string
}

func (e OverError) Error() string {
	switch e.Code {
	case OverSameBowler:
		return fmt.Sprintf("bowler %s bowled the previous over", e.BowlerID)
	case OverInProgress:
		return "an over is already in progress"
	}
	return "invalid over start"
}

// TerminalStateError rejects a command issued against a game that is not
// accepting it in its current status.
type TerminalStateError struct {
	Status string
}

func (e TerminalStateError) Error() string {
	return fmt.Sprintf("game is %s", e.Status)
}
