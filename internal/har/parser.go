package har

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// ParseFile reads and parses a HAR file from disk
func ParseFile(path string) (*HAR, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open HAR file: %w", err)
	}
	defer file.Close()

	return Parse(file)
}

// Parse decodes a HAR document from r. The archive must have a log with at
// least the entries array present.
func Parse(r io.Reader) (*HAR, error) {
	br := bufio.NewReader(r)
	if _, err := br.Peek(1); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("empty HAR data")
		}
		return nil, fmt.Errorf("failed to read HAR data: %w", err)
	}

	var har HAR
	if err := json.NewDecoder(br).Decode(&har); err != nil {
		return nil, fmt.Errorf("failed to parse HAR JSON: %w", err)
	}
	if har.Log == nil {
		return nil, fmt.Errorf("invalid HAR: missing log")
	}
	if har.Log.Entries == nil {
		return nil, fmt.Errorf("invalid HAR: missing log.entries")
	}
	return &har, nil
}
