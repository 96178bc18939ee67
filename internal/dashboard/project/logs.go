package project

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/hpcloud/tail"
)

const (
	// DefaultLogLimit is the number of lines returned when no limit is given.
	DefaultLogLimit = 100
	// MaxLogLimit bounds the number of lines a single read may return.
	MaxLogLimit = 1000
)

// Logs returns the last limit captured output lines of a project's most
// recent background launches. A project that never launched has no logs.
func (s *Service) Logs(ctx context.Context, raw string, limit int) (*LogsResult, error) {
	p, err := s.existing(raw)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	if limit > MaxLogLimit {
		limit = MaxLogLimit
	}

	result := &LogsResult{Logs: []LogLine{}}
	path := s.logPath(p.Name)
	if path == "" {
		return result, nil
	}
	if _, err := os.Stat(path); err != nil {
		return result, nil
	}

	t, err := tail.TailFile(path, tail.Config{
		Follow:    false,
		MustExist: true,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return result, nil
	}
	// The tailer blocks sending on Lines until read, so Stop only returns
	// once whatever it has left is drained.
	defer func() {
		go func() {
			for range t.Lines {
			}
		}()
		_ = t.Stop()
	}()

	var ring []LogLine
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case line, ok := <-t.Lines:
			if !ok {
				if ring != nil {
					result.Logs = ring
				}
				result.HasMore = result.Total > len(ring)
				return result, nil
			}
			if line.Err != nil || line.Text == "" {
				continue
			}
			result.Total++
			if len(ring) == limit {
				ring = append(ring[:0], ring[1:]...)
			}
			ring = append(ring, parseLogLine(line.Text))
		}
	}
}

// parseLogLine splits a "<RFC3339> <level> <text>" capture line. Lines in
// any other shape are returned whole at info level.
func parseLogLine(text string) LogLine {
	parts := strings.SplitN(text, " ", 3)
	if len(parts) == 3 {
		if ts, err := time.Parse(time.RFC3339, parts[0]); err == nil {
			return LogLine{Timestamp: ts, Level: parts[1], Message: parts[2]}
		}
	}
	return LogLine{Level: "info", Message: text}
}
