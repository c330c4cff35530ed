// Package console reads the authorization code typed by the user during
// the console strategy.
package console

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
)

var ErrInterrupted = errors.New("input interrupted")

// Prompter shows a prompt and reads one line of input.
type Prompter interface {
	Prompt(message string) (string, error)
}

// New returns a readline prompter when stdin is a terminal and a plain
// line reader otherwise.
func New() Prompter {
	if readline.DefaultIsTerminal() {
		return &terminal{stdin: os.Stdin, stdout: os.Stdout}
	}
	return NewLine(os.Stdin, os.Stdout)
}

type terminal struct {
	stdin  io.ReadCloser
	stdout io.Writer
}

func (t *terminal) Prompt(message string) (string, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          message,
		Stdin:           t.stdin,
		Stdout:          t.stdout,
		InterruptPrompt: "^C",
	})
	if err != nil {
		return "", fmt.Errorf("failed to create readline instance: %w", err)
	}
	defer rl.Close()

	line, err := rl.Readline()
	if errors.Is(err, readline.ErrInterrupt) {
		return "", ErrInterrupted
	}
	if err != nil {
		return "", fmt.Errorf("failed to read line: %w", err)
	}
	return strings.TrimSpace(line), nil
}

type line struct {
	r *bufio.Reader
	w io.Writer
}

// NewLine returns a Prompter writing prompts to w and reading lines from r.
func NewLine(r io.Reader, w io.Writer) Prompter {
	return &line{r: bufio.NewReader(r), w: w}
}

func (l *line) Prompt(message string) (string, error) {
	if _, err := io.WriteString(l.w, message); err != nil {
		return "", fmt.Errorf("failed to write prompt: %w", err)
	}
	s, err := l.r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && s != "") {
		return "", fmt.Errorf("failed to read line: %w", err)
	}
	return strings.TrimSpace(s), nil
}
