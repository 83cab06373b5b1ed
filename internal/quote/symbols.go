package quote

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// LoadSymbols reads a newline-delimited ticker symbol file. Blank lines and
// lines starting with '#' are skipped; symbols are upper-cased and
// de-duplicated, preserving first-seen order.
func LoadSymbols(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open symbols file: %w", err)
	}
	defer f.Close()

	seen := make(map[string]bool)
	var symbols []string

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		sym := strings.ToUpper(line)
		if seen[sym] {
			continue
		}
		seen[sym] = true
		symbols = append(symbols, sym)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read symbols file: %w", err)
	}

	return symbols, nil
}
