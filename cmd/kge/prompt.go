package main

import (
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/cnclabs/kgekit/pkg/estimate"
)

// promptSource reads queries from an interactive readline prompt
type promptSource struct {
	rl *readline.Instance
}

func newPromptSource(history string) (*promptSource, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "\033[32mkge>\033[0m ",
		HistoryFile:     history,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, err
	}
	return &promptSource{rl: rl}, nil
}

// Next implements estimate.QuerySource
func (s *promptSource) Next() (estimate.Query, error) {
	for {
		line, err := s.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			return estimate.Query{}, err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return estimate.Query{}, io.EOF
		}
		return parseQuery(line), nil
	}
}

func (s *promptSource) Close() error {
	return s.rl.Close()
}

// parseQuery splits "head relation tail"; missing trailing fields are wildcards
func parseQuery(line string) estimate.Query {
	fields := strings.Fields(line)
	for len(fields) < 3 {
		fields = append(fields, "?")
	}
	return estimate.Query{Head: fields[0], Relation: fields[1], Tail: fields[2]}
}
