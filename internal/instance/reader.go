package instance

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// defaultBufferSize is the longest JSON line the line parser accepts.
const defaultBufferSize = 10 * 1024 * 1024

// LineError records a JSON line that could not be decoded. Bad lines are
// skipped, not fatal.
type LineError struct {
	Line int    `json:"line"`
	Err  string `json:"error"`
}

// Batch is the result of reading one input file.
type Batch struct {
	Instances []Instance

	// Skipped lists malformed JSON lines. Always empty for document input.
	Skipped []LineError
}

// document is the wrapped input layout.
type document struct {
	Instances *[]Instance `json:"instances"`
}

// ReadFromFile reads instances from a JSON document or a JSON-lines file.
func ReadFromFile(path string) (*Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open instances: %w", err)
	}
	defer f.Close()

	return Read(f)
}

// Read detects the input layout and decodes it.
//
// Input starting with '[' is a JSON array of instances. Input that decodes
// as a single object with an "instances" key is the wrapped document.
// Anything else is parsed as JSON lines.
func Read(r io.Reader) (*Batch, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read instances: %w", err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return &Batch{}, nil
	}

	switch trimmed[0] {
	case '[':
		var list []Instance
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("failed to parse instances array: %w", err)
		}
		return &Batch{Instances: list}, nil
	case '{':
		var doc document
		if err := json.Unmarshal(trimmed, &doc); err == nil && doc.Instances != nil {
			return &Batch{Instances: *doc.Instances}, nil
		}
	}

	return NewParser().Parse(bytes.NewReader(data))
}

// Parser reads JSON-lines input, one instance object per line.
//
// Create instances using [NewParser] to get the default line limit.
type Parser struct {
	// BufferSize is the maximum size in bytes of one line. Defaults to 10MB
	// when <= 0.
	BufferSize int
}

// NewParser creates a [Parser] with default settings.
func NewParser() *Parser {
	return &Parser{BufferSize: defaultBufferSize}
}

// Parse reads instances line by line.
//
// Empty lines are skipped. Lines that fail to decode are recorded in
// [Batch.Skipped] and skipped. A read error, including a line longer than
// the buffer, stops parsing and is returned.
func (p *Parser) Parse(reader io.Reader) (*Batch, error) {
	scanner := bufio.NewScanner(reader)

	bufSize := p.BufferSize
	if bufSize <= 0 {
		bufSize = defaultBufferSize
	}
	scanner.Buffer(make([]byte, 0, min(64*1024, bufSize)), bufSize)

	batch := &Batch{}
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		inst, err := ParseLine(line)
		if err != nil {
			batch.Skipped = append(batch.Skipped, LineError{Line: lineNum, Err: err.Error()})
			continue
		}
		batch.Instances = append(batch.Instances, inst)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read instances line %d: %w", lineNum+1, err)
	}

	return batch, nil
}

// ParseLine decodes a single JSON line. Unlike [Parser.Parse] it returns the
// decode error instead of skipping the line.
func ParseLine(line []byte) (Instance, error) {
	var inst Instance
	if err := json.Unmarshal(line, &inst); err != nil {
		return Instance{}, err
	}
	return inst, nil
}
