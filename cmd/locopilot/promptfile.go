package main

import (
	"fmt"
	"os"
	"strings"
)

// readPrompts loads an instruction file and splits it into prompts.
// Prompts are separated by one or more blank lines or by a line holding
// only "---".
func readPrompts(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read instruction file: %w", err)
	}
	return splitPrompts(string(data)), nil
}

func splitPrompts(text string) []string {
	var prompts []string
	var current []string
	flush := func() {
		joined := strings.TrimSpace(strings.Join(current, "\n"))
		if joined != "" {
			prompts = append(prompts, joined)
		}
		current = current[:0]
	}
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || trimmed == "---" {
			flush()
			continue
		}
		current = append(current, line)
	}
	flush()
	return prompts
}
