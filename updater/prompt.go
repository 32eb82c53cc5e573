package updater

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// Decision is the outcome of the restart confirmation prompt.
type Decision int

const (
	// DecisionLater defers the install; the update stays pending until the
	// next install request.
	DecisionLater Decision = iota
	// DecisionRestart installs the downloaded update immediately.
	DecisionRestart
)

// Prompter is the UI boundary for the two dialogs the update flow can raise.
// Keeping it behind an interface keeps the coordinator free of any UI toolkit.
type Prompter interface {
	// PresentRestartPrompt shows the downloaded-update message and asks the
	// user to restart now or later.
	PresentRestartPrompt(message string) Decision
	// PresentError shows a blocking error notice.
	PresentError(message string)
}

// ConsolePrompter answers restart prompts on the terminal. When stdin is not
// a terminal there is nobody to ask, so it defers the install.
type ConsolePrompter struct {
	log *zerolog.Logger
}

func NewConsolePrompter(log *zerolog.Logger) *ConsolePrompter {
	return &ConsolePrompter{log: log}
}

func (p *ConsolePrompter) PresentRestartPrompt(message string) Decision {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		p.log.Info().Msgf("%s Run `feverd update` or restart the agent to install.", message)
		return DecisionLater
	}

	fmt.Fprintf(os.Stderr, "%s Restart now? [y/N]: ", message)
	answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return DecisionLater
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return DecisionRestart
	default:
		return DecisionLater
	}
}

func (p *ConsolePrompter) PresentError(message string) {
	fmt.Fprintf(os.Stderr, "update error: %s\n", message)
}
