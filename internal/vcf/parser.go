// Package vcf provides VCF file parsing functionality.
package vcf

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Line is one input line with its 1-based line number.
type Line struct {
	Number int
	Text   string
}

// Header holds the raw header lines of a VCF file.
type Header struct {
	Meta    []Line // "##" lines in file order
	Columns Line   // the single-'#' column header line
}

// gzipMagic opens every gzip member.
var gzipMagic = []byte{0x1f, 0x8b}

// Parser reads a VCF file: the header eagerly, body lines on demand.
type Parser struct {
	reader     *bufio.Reader
	closers    []io.Closer // closed in reverse order
	lineNumber int
	header     Header
	done       bool
}

// NewParser opens path ("-" for stdin) and reads its header.
// Plain and gzipped input are both accepted.
func NewParser(path string) (*Parser, error) {
	if path == "-" {
		return NewParserFromReader(os.Stdin)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vcf file: %w", err)
	}
	return newParser(file, file)
}

// NewParserFromReader creates a parser from an io.Reader (e.g., stdin).
// Gzipped streams are detected the same way as files.
func NewParserFromReader(r io.Reader) (*Parser, error) {
	return newParser(r, nil)
}

func newParser(r io.Reader, owned io.Closer) (*Parser, error) {
	p := &Parser{}
	if owned != nil {
		p.closers = append(p.closers, owned)
	}

	br := bufio.NewReader(r)
	magic, err := br.Peek(len(gzipMagic))
	if err != nil && err != io.EOF {
		p.Close()
		return nil, fmt.Errorf("read vcf header: %w", err)
	}
	if bytes.Equal(magic, gzipMagic) {
		gz, err := gzip.NewReader(br)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		p.closers = append(p.closers, gz)
		br = bufio.NewReader(gz)
	}
	p.reader = br

	if err := p.parseHeader(); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// readLine returns the next line without its line terminator.
// ok is false at end of input.
func (p *Parser) readLine() (string, bool, error) {
	if p.done {
		return "", false, nil
	}
	line, err := p.reader.ReadString('\n')
	if err != nil {
		if err != io.EOF {
			return "", false, fmt.Errorf("read line %d: %w", p.lineNumber+1, err)
		}
		p.done = true
		if line == "" {
			return "", false, nil
		}
	}
	p.lineNumber++
	return strings.TrimRight(line, "\r\n"), true, nil
}

// parseHeader reads the "##" meta lines up to and including the column header.
func (p *Parser) parseHeader() error {
	for {
		line, ok, err := p.readLine()
		if err != nil {
			return fmt.Errorf("read header: %w", err)
		}
		if !ok {
			break
		}
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "##") {
			p.header.Meta = append(p.header.Meta, Line{Number: p.lineNumber, Text: line})
			continue
		}

		if strings.HasPrefix(line, "#") {
			p.header.Columns = Line{Number: p.lineNumber, Text: line}
			return nil
		}

		return &ParseError{
			Line:    p.lineNumber,
			Kind:    ErrMissingColumnHeader,
			Message: "body line before #CHROM header line",
		}
	}

	return &ParseError{
		Line:    p.lineNumber,
		Kind:    ErrMissingColumnHeader,
		Message: "no #CHROM header line found",
	}
}

// Next returns the next non-empty body line. ok is false at end of input.
func (p *Parser) Next() (Line, bool, error) {
	for {
		text, ok, err := p.readLine()
		if err != nil || !ok {
			return Line{}, false, err
		}
		if text == "" {
			continue // Skip empty lines
		}
		return Line{Number: p.lineNumber, Text: text}, true, nil
	}
}

// ReadBody reads every remaining body line into memory.
func (p *Parser) ReadBody() ([]Line, error) {
	var lines []Line
	for {
		l, ok, err := p.Next()
		if err != nil {
			return lines, err
		}
		if !ok {
			return lines, nil
		}
		lines = append(lines, l)
	}
}

// Header returns the VCF header lines.
func (p *Parser) Header() Header {
	return p.header
}

// LineNumber returns the current line number being processed.
func (p *Parser) LineNumber() int {
	return p.lineNumber
}

// Close releases the decompressor and the file opened by NewParser.
func (p *Parser) Close() error {
	var first error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	p.closers = nil
	return first
}
