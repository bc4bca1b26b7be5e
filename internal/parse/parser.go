// Package parse decides when to ask the external parser for a fresh class
// graph and reconciles its possibly partial answers with history.
package parse

import (
	"context"
	"errors"

	"unimozer/internal/draft"
	"unimozer/internal/uml"
)

// ErrParseFailed marks a failed parser invocation. It is reported through
// the coordinator status and never returned from Schedule.
var ErrParseFailed = errors.New("parse failed")

// Request is one parse call. Overrides replace the disk copy of dirty files.
type Request struct {
	Root      string           `json:"root"`
	SrcRoot   string           `json:"srcRoot"`
	Overrides []draft.Override `json:"overrides"`
}

// Result is a parser answer: the graph and the raw payload it was decoded
// from (kept for diagnostics).
type Result struct {
	Graph uml.Graph
	Raw   string
}

// Parser produces a class graph for a project.
type Parser interface {
	Parse(ctx context.Context, req Request) (Result, error)
}

// ParserFunc adapts a function to Parser.
type ParserFunc func(ctx context.Context, req Request) (Result, error)

func (f ParserFunc) Parse(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}
