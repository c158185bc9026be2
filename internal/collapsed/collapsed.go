// Package collapsed reads the folded stack format emitted by stackcollapse
// scripts and most sampling profilers: one "caller;callee weight" per line.
package collapsed

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/getsentry/vroomscope/internal/errorutil"
	"github.com/getsentry/vroomscope/internal/frame"
	"github.com/getsentry/vroomscope/internal/profile"
)

var ErrMalformedLine = fmt.Errorf("collapsed: %w: malformed line", errorutil.ErrDataIntegrity)

// Import builds a profile named name out of folded stacks. Blank lines are
// skipped.
func Import(name string, b []byte) (*profile.Profile, error) {
	builder := profile.NewStackListBuilder(0)
	builder.SetName(name)

	var (
		stack []frame.Frame
		lines int
	)
	scanner := bufio.NewScanner(bytes.NewReader(b))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		lines++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		sep := strings.LastIndexByte(line, ' ')
		if sep == -1 {
			return nil, fmt.Errorf("%w %d: %q", ErrMalformedLine, lines, line)
		}
		weight, err := strconv.ParseFloat(line[sep+1:], 64)
		if err != nil {
			return nil, fmt.Errorf("%w %d: %v", ErrMalformedLine, lines, err)
		}
		stack = stack[:0]
		for _, name := range strings.Split(strings.TrimSpace(line[:sep]), ";") {
			if name == "" {
				continue
			}
			stack = append(stack, frame.Frame{Key: frame.StringKey(name), Function: name})
		}
		if err := builder.AppendSampleWithWeight(stack, weight); err != nil {
			return nil, fmt.Errorf("line %d: %w", lines, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	p, err := builder.Build()
	if err != nil {
		return nil, err
	}
	if p.IsEmpty() {
		return nil, errorutil.ErrEmptyProfile
	}
	log.Debug().Int("lines", lines).Int("frames", p.Frames().Len()).Msg("collapsed stacks imported")
	return p, nil
}
