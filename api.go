package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"

	"github.com/Seednode/whosaidit/games/things"
	"github.com/Seednode/whosaidit/hub"
)

const maxBodySize = 64 << 10

type api struct {
	cfg    *Config
	engine *things.Engine
	hub    *hub.Hub
	log    zerolog.Logger
}

type gameView struct {
	GameID    string    `json:"gameId"`
	GameOwner string    `json:"gameOwner"`
	Question  string    `json:"question"`
	CreatedAt time.Time `json:"createdAt"`
	Started   bool      `json:"started"`
	TurnOrder []string  `json:"turnOrder"`
}

type entryView struct {
	EntryID    string    `json:"entryId"`
	GameID     string    `json:"gameId"`
	AuthorName string    `json:"authorName"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"createdAt"`
	Revealed   bool      `json:"revealed"`
	Guessed    bool      `json:"guessed"`
}

type scoreView struct {
	GameID     string `json:"gameId"`
	PlayerName string `json:"playerName"`
	Score      int    `json:"score"`
}

type successView struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type guessView struct {
	IsCorrect      bool       `json:"isCorrect"`
	AlreadyGuessed bool       `json:"alreadyGuessed,omitempty"`
	Entry          *entryView `json:"entry,omitempty"`
}

type errorView struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func newGameView(s things.Session) gameView {
	return gameView{
		GameID:    s.ID,
		GameOwner: s.Owner,
		Question:  s.Prompt,
		CreatedAt: s.CreatedAt,
		Started:   s.Started(),
		TurnOrder: s.TurnQueue.Names(),
	}
}

func newEntryView(e things.Entry) entryView {
	return entryView{
		EntryID:    e.ID,
		GameID:     e.SessionID,
		AuthorName: e.Author,
		Text:       e.Text,
		CreatedAt:  e.CreatedAt,
		Revealed:   e.Revealed,
		Guessed:    e.Guessed,
	}
}

// errorStatus maps an engine error onto a response status and error code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, things.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, things.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, things.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, things.ErrStorageUnavailable):
		return http.StatusInternalServerError, "storage_unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (a *api) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	securityHeaders(a.cfg, w)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.log.Debug().Err(err).Msg("write response")
	}
}

func (a *api) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)

	msg := err.Error()
	if status == http.StatusInternalServerError {
		a.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		msg = "Internal Server Error"
	}

	a.writeJSON(w, status, errorView{Error: msg, Code: code})
}

// decode reads a JSON request body into v. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("%w: malformed request body: %v", things.ErrInvalidInput, err)
}

func (a *api) createGame() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var req struct {
			Name     string `json:"name"`
			Question string `json:"question"`
		}
		if err := decode(w, r, &req); err != nil {
			a.writeError(w, r, err)
			return
		}

		id, err := a.engine.Create(r.Context(), req.Name, req.Question)
		if err != nil {
			a.writeError(w, r, err)
			return
		}

		a.writeJSON(w, http.StatusOK, map[string]string{"gameId": id})
	}
}

func (a *api) getGame() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		s, err := a.engine.Session(r.Context(), p.ByName("gameId"))
		if err != nil {
			a.writeError(w, r, err)
			return
		}

		a.writeJSON(w, http.StatusOK, newGameView(s))
	}
}

func (a *api) addEntry() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		var req struct {
			AuthorName string `json:"authorName"`
			Text       string `json:"text"`
		}
		if err := decode(w, r, &req); err != nil {
			a.writeError(w, r, err)
			return
		}

		res, err := a.engine.AddEntry(r.Context(), p.ByName("gameId"), req.AuthorName, req.Text)
		if err != nil {
			a.writeError(w, r, err)
			return
		}

		a.writeJSON(w, http.StatusOK, map[string]string{"entryId": res.Entry.ID})
	}
}

func (a *api) listEntries() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		entries, err := a.engine.Entries(r.Context(), p.ByName("gameId"))
		if err != nil {
			a.writeError(w, r, err)
			return
		}

		out := make([]entryView, 0, len(entries))
		for _, e := range entries {
			out = append(out, newEntryView(e))
		}

		a.writeJSON(w, http.StatusOK, out)
	}
}

func (a *api) startGame() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		res, err := a.engine.Start(r.Context(), p.ByName("gameId"))
		if err != nil {
			a.writeError(w, r, err)
			return
		}

		out := successView{Success: true}
		if res.AlreadyStarted {
			out.Message = "Game already started"
		}

		a.writeJSON(w, http.StatusOK, out)
	}
}

func (a *api) resetGame() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		var req struct {
			Question string `json:"question"`
		}
		if err := decode(w, r, &req); err != nil {
			a.writeError(w, r, err)
			return
		}

		if _, err := a.engine.Reset(r.Context(), p.ByName("gameId"), req.Question); err != nil {
			a.writeError(w, r, err)
			return
		}

		a.writeJSON(w, http.StatusOK, successView{Success: true, Message: "Game reset with fresh slate"})
	}
}

func (a *api) listScores() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		scores, err := a.engine.Scores(r.Context(), p.ByName("gameId"))
		if err != nil {
			a.writeError(w, r, err)
			return
		}

		out := make([]scoreView, 0, len(scores))
		for _, s := range scores {
			out = append(out, scoreView{GameID: s.SessionID, PlayerName: s.Player, Score: s.Score})
		}

		a.writeJSON(w, http.StatusOK, out)
	}
}

func (a *api) submitGuess() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		var req struct {
			GuesserName string `json:"guesserName"`
			Guess       string `json:"guess"`
		}
		if err := decode(w, r, &req); err != nil {
			a.writeError(w, r, err)
			return
		}

		res, err := a.engine.Guess(r.Context(), p.ByName("gameId"), p.ByName("entryId"), req.GuesserName, req.Guess)
		if err != nil {
			a.writeError(w, r, err)
			return
		}

		out := guessView{IsCorrect: res.IsCorrect, AlreadyGuessed: res.AlreadyGuessed}
		if res.IsCorrect {
			entry := newEntryView(res.Entry)
			out.Entry = &entry
		}

		a.writeJSON(w, http.StatusOK, out)
	}
}

func (a *api) serveWS() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		id := p.ByName("gameId")
		if _, err := a.engine.Session(r.Context(), id); err != nil {
			a.writeError(w, r, err)
			return
		}

		// Upgrade has already answered the request when it fails.
		if err := a.hub.ServeWS(w, r, id); err != nil {
			a.log.Debug().Err(err).Str("session", id).Msg("websocket upgrade failed")
		}
	}
}

func registerAPI(a *api, mux *httprouter.Router) {
	prefix := a.cfg.prefix

	mux.POST(prefix+"/api/createGame", a.createGame())
	mux.GET(prefix+"/api/games/:gameId", a.getGame())
	mux.POST(prefix+"/api/games/:gameId/entries", a.addEntry())
	mux.GET(prefix+"/api/games/:gameId/entries", a.listEntries())
	mux.POST(prefix+"/api/games/:gameId/entries/:entryId/guess", a.submitGuess())
	mux.POST(prefix+"/api/games/:gameId/start", a.startGame())
	mux.POST(prefix+"/api/games/:gameId/reset", a.resetGame())
	mux.GET(prefix+"/api/games/:gameId/scores", a.listScores())
	mux.GET(prefix+"/api/games/:gameId/ws", a.serveWS())
	mux.GET(prefix+"/api/games/:gameId/qr", a.serveQR())
}
