package things

import "slices"

// Event names as seen by clients.
const (
	EventEntriesUpdated = "entriesUpdated"
	EventGameStarted    = "gameStarted"
	EventGameReset      = "gameReset"
	EventScoreUpdated   = "scoreUpdated"
	EventWrongAnswer    = "wrongAnswer"
	EventNextTurn       = "nextTurn"
)

// Event is a domain event broadcast to every client in a session's room.
// Clients treat events as hints to re-fetch the relevant snapshot.
//
// The set of implementations is closed; use the constructors below.
type Event interface {
	Name() string
	event()
}

// EntriesUpdatedEvent signals that the entry list changed.
type EntriesUpdatedEvent struct{}

// GameStartedEvent carries the freshly shuffled turn order.
type GameStartedEvent struct {
	TurnOrder []string `json:"turnOrder"`
}

// GameResetEvent signals a new round with a new prompt.
type GameResetEvent struct{}

// ScoreUpdatedEvent announces a correct guess.
type ScoreUpdatedEvent struct {
	PlayerName string `json:"playerName"`
	AuthorName string `json:"authorName"`
	Guess      string `json:"guess"`
}

// WrongAnswerEvent announces an incorrect guess. AuthorName is the entry's
// real author; clients decide whether to show it.
type WrongAnswerEvent struct {
	PlayerName string `json:"playerName"`
	AuthorName string `json:"authorName"`
	Guess      string `json:"guess"`
}

// NextTurnEvent carries the turn queue after a guess. CurrentPlayer is nil
// once every entry has been resolved.
type NextTurnEvent struct {
	CurrentPlayer *string  `json:"currentPlayer"`
	TurnOrder     []string `json:"turnOrder"`
}

func (EntriesUpdatedEvent) Name() string { return EventEntriesUpdated }
func (GameStartedEvent) Name() string    { return EventGameStarted }
func (GameResetEvent) Name() string      { return EventGameReset }
func (ScoreUpdatedEvent) Name() string   { return EventScoreUpdated }
func (WrongAnswerEvent) Name() string    { return EventWrongAnswer }
func (NextTurnEvent) Name() string       { return EventNextTurn }

func (EntriesUpdatedEvent) event() {}
func (GameStartedEvent) event()    {}
func (GameResetEvent) event()      {}
func (ScoreUpdatedEvent) event()   {}
func (WrongAnswerEvent) event()    {}
func (NextTurnEvent) event()       {}

func EntriesUpdated() Event { return EntriesUpdatedEvent{} }

func GameStarted(order TurnQueue) Event {
	return GameStartedEvent{TurnOrder: order.Names()}
}

func GameReset() Event { return GameResetEvent{} }

func ScoreUpdated(guesser, author, text string) Event {
	return ScoreUpdatedEvent{PlayerName: guesser, AuthorName: author, Guess: text}
}

func WrongAnswer(guesser, author, text string) Event {
	return WrongAnswerEvent{PlayerName: guesser, AuthorName: author, Guess: text}
}

func NextTurn(order TurnQueue) Event {
	ev := NextTurnEvent{TurnOrder: order.Names()}
	if head, ok := order.Head(); ok {
		ev.CurrentPlayer = &head
	}
	return ev
}

// Names returns a non-nil copy of the queue, so that an empty queue encodes
// as [] rather than null.
func (q TurnQueue) Names() []string {
	if len(q) == 0 {
		return []string{}
	}
	return slices.Clone([]string(q))
}
