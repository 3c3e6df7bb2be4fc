// Package protocol translates the line-based score protocol to ledger
// operations and back.
//
// Requests (one per line, keywords case-insensitive):
//
//	get                    -- reply with the ranking
//	score NAME & SCORE &   -- add a score, no reply
//	bye                    -- end the session, no reply
//
// The only reply is the ranking, "HIGH$$ n1 & s1 & ... nN & sN & ".
package protocol

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/hasirciogluhq/highscore-server/cmd/scoreserver/internal/core"
	"github.com/hasirciogluhq/highscore-server/cmd/scoreserver/internal/ledger"
)

const (
	CmdGet   = "get"
	CmdScore = "score"
	CmdBye   = "bye"
)

// Request is one decoded client line.
type Request interface {
	isRequest()
}

type GetRequest struct{}

type ScoreRequest struct {
	Name  string
	Score int
}

type ByeRequest struct{}

// MalformedRequest is a recognised command whose arguments did not parse.
type MalformedRequest struct {
	Line string
	Err  error
}

// UnknownRequest is any line that is not a command.
type UnknownRequest struct {
	Line string
}

func (GetRequest) isRequest()       {}
func (ScoreRequest) isRequest()     {}
func (ByeRequest) isRequest()       {}
func (MalformedRequest) isRequest() {}
func (UnknownRequest) isRequest()   {}

// Decode classifies a single line without its terminator.
func Decode(line string) Request {
	trimmed := strings.TrimSpace(line)
	keyword, rest := trimmed, ""
	if i := strings.IndexFunc(trimmed, unicode.IsSpace); i >= 0 {
		keyword, rest = trimmed[:i], trimmed[i+1:]
	}

	switch {
	case strings.EqualFold(trimmed, CmdGet):
		return GetRequest{}
	case strings.EqualFold(trimmed, CmdBye):
		return ByeRequest{}
	case strings.EqualFold(keyword, CmdScore):
		if strings.TrimSpace(rest) == "" {
			return MalformedRequest{Line: line, Err: fmt.Errorf("%w: score without arguments", core.ErrMalformedRequest)}
		}
		e, err := ledger.ParseEntry(rest)
		if err != nil {
			return MalformedRequest{Line: line, Err: fmt.Errorf("%w: %w", core.ErrMalformedRequest, err)}
		}
		return ScoreRequest{Name: e.Name, Score: e.Score}
	default:
		return UnknownRequest{Line: line}
	}
}

// Result is what the connection handler has to do after a request.
type Result struct {
	Reply    string
	HasReply bool
	Close    bool
	Outcome  ledger.Outcome
	Err      error
}

// Dispatch applies req to l.
func Dispatch(l *ledger.Ledger, req Request) Result {
	switch r := req.(type) {
	case GetRequest:
		return Result{Reply: l.Serialize(), HasReply: true}
	case ScoreRequest:
		out, err := l.Insert(r.Name, r.Score)
		if err != nil {
			return Result{Outcome: out, Err: fmt.Errorf("%w: %w", core.ErrMalformedRequest, err)}
		}
		return Result{Outcome: out}
	case ByeRequest:
		return Result{Close: true}
	case MalformedRequest:
		return Result{Err: r.Err}
	default:
		return Result{}
	}
}

// EncodeGet returns the request line asking for the ranking.
func EncodeGet() string {
	return CmdGet
}

// EncodeScore returns "score NAME & SCORE &".
func EncodeScore(name string, score int) string {
	return CmdScore + " " + ledger.Entry{Name: name, Score: score}.String()
}

// EncodeBye returns the request line ending a session.
func EncodeBye() string {
	return CmdBye
}

// ParseScores decodes a ranking reply back into entries.
func ParseScores(reply string) ([]ledger.Entry, error) {
	reply = strings.TrimRight(reply, "\r\n")
	prefix := strings.TrimSpace(ledger.ReplyPrefix)
	if !strings.HasPrefix(reply, prefix) {
		return nil, fmt.Errorf("%w: reply does not start with %q", core.ErrMalformedRequest, prefix)
	}

	body := strings.TrimSpace(strings.TrimPrefix(reply, prefix))
	if body == "" {
		return []ledger.Entry{}, nil
	}

	fields := strings.Split(body, ledger.Separator)
	// "a & 1 & b & 2 & " splits into pairs plus one empty trailing field.
	if last := strings.TrimSpace(fields[len(fields)-1]); last == "" {
		fields = fields[:len(fields)-1]
	}
	if len(fields)%2 != 0 {
		return nil, fmt.Errorf("%w: unpaired field in %q", core.ErrMalformedRequest, reply)
	}

	entries := make([]ledger.Entry, 0, len(fields)/2)
	for i := 0; i < len(fields); i += 2 {
		name := strings.TrimSpace(fields[i])
		score, err := strconv.Atoi(strings.TrimSpace(fields[i+1]))
		if err != nil {
			return nil, fmt.Errorf("%w: score for %q: %v", core.ErrMalformedRequest, name, err)
		}
		entries = append(entries, ledger.Entry{Name: name, Score: score})
	}
	return entries, nil
}
