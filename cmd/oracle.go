package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/cwaldvogel/vsbisect/pkg/vsbisect"
	"github.com/manifoldco/promptui"
	"github.com/sirupsen/logrus"
)

// promptOracle collects verdicts and confirmations from the terminal.
type promptOracle struct {
	log *logrus.Logger
}

func newPromptOracle(log *logrus.Logger) *promptOracle {
	return &promptOracle{log: log}
}

var verdictChoices = []struct {
	label   string
	verdict vsbisect.Verdict
}{
	{"Good - the issue is absent", vsbisect.VerdictGood},
	{"Bad - the issue is present", vsbisect.VerdictBad},
	{"Retry - launch this build again", vsbisect.VerdictRetry},
	{"Retry fresh - launch again with user data wiped", vsbisect.VerdictRetryFresh},
	{"Quit - stop bisecting", vsbisect.VerdictQuit},
}

func (p *promptOracle) Verdict(ctx context.Context, inst *vsbisect.Instance) (vsbisect.Verdict, error) {
	label := "Verdict"
	if inst != nil {
		label = fmt.Sprintf("Verdict for %s", vsbisect.ShortCommit(inst.Build().Commit))
	}

	items := make([]string, len(verdictChoices))
	for i, choice := range verdictChoices {
		items[i] = choice.label
	}

	prompt := promptui.Select{
		Label: label,
		Items: items,
	}
	index, _, err := prompt.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
			p.log.Info("Prompt interrupted, quitting")
			return vsbisect.VerdictQuit, nil
		}
		return 0, err
	}
	return verdictChoices[index].verdict, nil
}

func (p *promptOracle) Confirm(ctx context.Context, question string) (bool, error) {
	prompt := promptui.Prompt{
		Label:     question,
		IsConfirm: true,
	}

	// promptui answers "no" through an error, only unexpected failures stay
	// errors here.
	_, err := prompt.Run()
	if err == nil {
		return true, nil
	}
	if errors.Is(err, promptui.ErrAbort) || errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
		return false, nil
	}
	return false, err
}
