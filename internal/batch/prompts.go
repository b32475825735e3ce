package batch

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LoadPrompts reads prompts from a file: one per line for plain text
// (blank lines and # comments skipped), or the first column of a CSV
// (a leading "prompt" header row is skipped).
func LoadPrompts(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open prompts file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	var prompts []string
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		prompts, err = readCSVPrompts(f)
	} else {
		prompts, err = readLinePrompts(f)
	}
	if err != nil {
		return nil, err
	}
	if len(prompts) == 0 {
		return nil, fmt.Errorf("no prompts found in %s", path)
	}
	return prompts, nil
}

func readLinePrompts(r io.Reader) ([]string, error) {
	var prompts []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		prompts = append(prompts, line)
	}
	return prompts, scanner.Err()
}

func readCSVPrompts(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	var prompts []string
	first := true
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv prompts: %w", err)
		}
		if len(row) == 0 {
			continue
		}
		cell := strings.TrimSpace(row[0])
		if first {
			first = false
			if strings.EqualFold(cell, "prompt") {
				continue
			}
		}
		if cell != "" {
			prompts = append(prompts, cell)
		}
	}
	return prompts, nil
}
