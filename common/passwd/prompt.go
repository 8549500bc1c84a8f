package passwd

import (
	"context"
	"fmt"

	"github.com/chrisrueger/equinox/common/util"
)

// PromptID is the ID of the terminal prompt provider.
const PromptID = "prompt"

// PromptProvider asks the user for the password on the terminal.
type PromptProvider struct {
	// Prompt reads a password after displaying its argument;
	// nil selects util.PassPrompt.
	Prompt func(prompt string) ([]byte, error)
}

// NewPrompt returns a prompt provider using util.PassPrompt.
func NewPrompt() *PromptProvider {
	return &PromptProvider{}
}

// ID implements Provider.
func (p *PromptProvider) ID() string { return PromptID }

type promptResult struct {
	password []byte
	err      error
}

// Password implements Provider. An empty answer counts as
// cancellation. If ctx ends first, Password returns ErrCancelled at
// once; the abandoned prompt's answer is wiped when it arrives.
func (p *PromptProvider) Password(ctx context.Context, nodePath string) ([]byte, error) {
	prompt := p.Prompt
	if prompt == nil {
		prompt = util.PassPrompt
	}

	ch := make(chan promptResult, 1)
	go func() {
		password, err := prompt(fmt.Sprintf("Secure storage password (%s)> ", nodePath))
		ch <- promptResult{password, err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			r := <-ch
			util.Zero(r.password)
		}()
		return nil, ErrCancelled
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		if len(r.password) == 0 {
			return nil, ErrCancelled
		}
		return r.password, nil
	}
}
