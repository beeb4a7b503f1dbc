package console

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ergochat/readline"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

const (
	historyFileName = ".mkctl_history"
	historySize     = 500
)

// LineReader yields one input line per call and io.EOF when input ends.
type LineReader interface {
	ReadLine(prompt string) (string, error)
	Close() error
}

// NewLineReader uses readline when stdin is a terminal and a plain
// scanner otherwise.
func NewLineReader() LineReader {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return NewScannerReader(os.Stdin, os.Stdout)
	}
	home, _ := os.UserHomeDir()
	rl, err := readline.NewFromConfig(&readline.Config{
		HistoryFile:            filepath.Join(home, historyFileName),
		HistoryLimit:           historySize,
		DisableAutoSaveHistory: true,
	})
	if err != nil {
		log.Warn().Err(err).Msg("console.NewLineReader readline unavailable")
		return NewScannerReader(os.Stdin, os.Stdout)
	}
	return &readlineReader{rl: rl}
}

type readlineReader struct {
	rl *readline.Instance
}

func (r *readlineReader) ReadLine(prompt string) (string, error) {
	r.rl.SetPrompt(prompt)
	line, err := r.rl.Readline()
	if err != nil {
		if errors.Is(err, readline.ErrInterrupt) {
			return "", io.EOF
		}
		return "", err
	}
	if trimmed := strings.TrimSpace(line); trimmed != "" {
		_ = r.rl.SaveToHistory(trimmed)
	}
	return line, nil
}

func (r *readlineReader) Close() error {
	return r.rl.Close()
}

type scannerReader struct {
	scanner *bufio.Scanner
	out     io.Writer
}

// NewScannerReader reads lines from in, echoing prompts to out.
func NewScannerReader(in io.Reader, out io.Writer) LineReader {
	return &scannerReader{scanner: bufio.NewScanner(in), out: out}
}

func (r *scannerReader) ReadLine(prompt string) (string, error) {
	if r.out != nil && prompt != "" {
		fmt.Fprint(r.out, prompt)
	}
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.scanner.Text(), nil
}

func (r *scannerReader) Close() error {
	return nil
}
