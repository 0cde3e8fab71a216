package tmux

import (
	"context"
	"regexp"
	"strings"

	"github.com/saadnvd1/agentos/internal/config"
)

// Status is the classification of a pane from its trailing output.
type Status string

// The state set is closed; deployments may extend the pattern table but
// not invent new states.
const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusWaiting Status = "waiting"
	StatusError   Status = "error"
	StatusDead    Status = "dead"
)

// Classifier turns trailing pane lines into a Status using the configured
// pattern table. Precedence: waiting beats error beats running beats idle —
// a spinner above a permission prompt still means the agent is blocked on
// the prompt.
type Classifier struct {
	waiting   []*regexp.Regexp
	errors    []*regexp.Regexp
	running   []*regexp.Regexp
	idle      []*regexp.Regexp
	sessionID *regexp.Regexp
}

// NewClassifier compiles the pattern table. Invalid patterns are skipped;
// the defaults in config are known-good.
func NewClassifier(cfg config.MuxConfig) *Classifier {
	c := &Classifier{
		waiting: compileAll(cfg.WaitingPatterns),
		errors:  compileAll(cfg.ErrorPatterns),
		running: compileAll(cfg.RunningPatterns),
		idle:    compileAll(cfg.IdlePatterns),
	}
	if cfg.SessionIDPattern != "" {
		if re, err := regexp.Compile(cfg.SessionIDPattern); err == nil {
			c.sessionID = re
		}
	}
	return c
}

func compileAll(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			continue
		}
		out = append(out, re)
	}
	return out
}

// Classify maps trailing pane lines to a status. A nil slice means the
// pane does not exist and classifies as dead.
func (c *Classifier) Classify(lines []string) Status {
	if lines == nil {
		return StatusDead
	}
	tail := trimBlankTail(lines)
	if matchAny(c.waiting, tail) {
		return StatusWaiting
	}
	if matchAny(c.errors, tail) {
		return StatusError
	}
	if matchAny(c.running, tail) {
		return StatusRunning
	}
	if matchAny(c.idle, tail) {
		return StatusIdle
	}
	// No pattern hit: text is present but quiescent.
	return StatusIdle
}

// FindSessionID scans pane lines for an upstream agent session handle.
// Returns empty when the pattern is unset or nothing matches; when several
// lines match, the last (most recent) match wins.
func (c *Classifier) FindSessionID(lines []string) string {
	if c.sessionID == nil {
		return ""
	}
	found := ""
	for _, line := range lines {
		if m := c.sessionID.FindStringSubmatch(line); len(m) > 1 {
			found = m[1]
		}
	}
	return found
}

func matchAny(res []*regexp.Regexp, lines []string) bool {
	for _, line := range lines {
		for _, re := range res {
			if re.MatchString(line) {
				return true
			}
		}
	}
	return false
}

// trimBlankTail drops trailing blank lines; tmux pads captures to the pane
// height.
func trimBlankTail(lines []string) []string {
	end := len(lines)
	for end > 0 && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return lines[:end]
}

// ClassifyPane captures the pane tail and classifies it in one step.
func (d *Driver) ClassifyPane(ctx context.Context, c *Classifier, name string, tailLines int) (Status, []string, error) {
	if name == "" {
		return StatusDead, nil, nil
	}
	lines, err := d.Capture(ctx, name, tailLines)
	if err != nil {
		return StatusDead, nil, err
	}
	if lines == nil {
		// Capture cannot tell an absent pane from a blank one; only the
		// former is dead.
		exists, err := d.Has(ctx, name)
		if err != nil {
			return StatusDead, nil, err
		}
		if exists {
			return StatusIdle, nil, nil
		}
		return StatusDead, nil, nil
	}
	return c.Classify(lines), lines, nil
}
