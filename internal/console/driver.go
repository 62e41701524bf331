// Package console drives a confirmation run from a line-oriented terminal: it prints each state and
// prompts for the COP decision, the fraud acknowledgement and the one-time code.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"bizbank-confirmation/internal/cop"
	"bizbank-confirmation/internal/otp"
	otpdomain "bizbank-confirmation/internal/otp/domain"
	"bizbank-confirmation/internal/workflow"
)

// Run is the part of *workflow.Run the driver uses.
type Run interface {
	States() <-chan workflow.Snapshot
	Done() <-chan struct{}
	Wait(ctx context.Context) (workflow.Result, error)
	Cancel()
	Decide(gate workflow.Gate, d workflow.Decision) error
	SubmitCode(ctx context.Context, code string) error
	RefreshChallenge(ctx context.Context) (otpdomain.Challenge, error)
}

// errRunEnded means the run finished while a prompt was open.
var errRunEnded = errors.New("console: run ended")

// Driver answers gates from input lines and writes prompts to out.
type Driver struct {
	lines <-chan string
	out   io.Writer
}

// NewDriver starts reading lines from in. Input is consumed until EOF.
func NewDriver(in io.Reader, out io.Writer) *Driver {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- strings.TrimSpace(sc.Text())
		}
	}()
	return &Driver{lines: lines, out: out}
}

// Drive answers every awaited gate of run until it finishes. End of input or ctx cancels the run;
// the returned result is still the run's real disposition.
func (d *Driver) Drive(ctx context.Context, run Run) (workflow.Result, error) {
	handled := map[workflow.Gate]bool{}
	for {
		var (
			s  workflow.Snapshot
			ok bool
		)
		select {
		case s, ok = <-run.States():
		case <-ctx.Done():
			run.Cancel()
			return run.Wait(context.WithoutCancel(ctx))
		}
		if !ok || s.State == workflow.StateDone {
			return run.Wait(context.WithoutCancel(ctx))
		}
		d.printState(s)
		if s.Gate == workflow.GateNone || handled[s.Gate] {
			continue
		}
		handled[s.Gate] = true

		var err error
		switch s.Gate {
		case workflow.GateCOP:
			err = d.cop(ctx, run, s)
		case workflow.GateFraud:
			err = d.fraud(ctx, run, s)
		case workflow.GateOTP:
			err = d.otp(ctx, run)
		}
		if err != nil && !errors.Is(err, errRunEnded) {
			run.Cancel()
		}
	}
}

func (d *Driver) printState(s workflow.Snapshot) {
	switch s.State {
	case workflow.StateInitiating:
		fmt.Fprintln(d.out, "Submitting to the bank...")
	case workflow.StateFinalizing:
		fmt.Fprintln(d.out, "Confirming with the bank...")
	}
}

func (d *Driver) cop(ctx context.Context, run Run, s workflow.Snapshot) error {
	fmt.Fprintf(d.out, "Confirmation of payee: %s\n", Describe(s.COP))
	if s.COP.SuggestedName != "" {
		fmt.Fprintf(d.out, "The account name appears to be %q.\n", s.COP.SuggestedName)
	}
	choices := make([]string, 0, len(s.Options))
	for _, o := range s.Options {
		choices = append(choices, string(o))
	}
	for {
		line, err := d.ask(ctx, run, fmt.Sprintf("Choose %s: ", strings.Join(choices, "/")))
		if err != nil {
			return err
		}
		opt := cop.Option(strings.ToLower(line))
		if !offered(s.Options, opt) {
			continue
		}
		dec := workflow.Reject()
		switch opt {
		case cop.OptionConfirm:
			dec = workflow.Confirm()
		case cop.OptionEdit:
			dec = workflow.Edit()
		}
		if err := run.Decide(workflow.GateCOP, dec); err != nil {
			fmt.Fprintf(d.out, "Not accepted: %v\n", err)
			if errors.Is(err, workflow.ErrRunFinished) {
				return errRunEnded
			}
			continue
		}
		return nil
	}
}

func offered(opts []cop.Option, o cop.Option) bool {
	for _, x := range opts {
		if x == o {
			return true
		}
	}
	return false
}

func (d *Driver) fraud(ctx context.Context, run Run, s workflow.Snapshot) error {
	fmt.Fprintln(d.out, "The bank raised these alerts:")
	codes := s.FraudAlerts.Codes()
	sort.Strings(codes)
	for _, c := range codes {
		fmt.Fprintf(d.out, "  %s: %s\n", c, s.FraudAlerts[c])
	}
	for {
		line, err := d.ask(ctx, run, "Acknowledge all alerts and continue? [y/n]: ")
		if err != nil {
			return err
		}
		switch strings.ToLower(line) {
		case "y", "yes":
			return d.decide(run, workflow.GateFraud, workflow.Confirm())
		case "n", "no":
			return d.decide(run, workflow.GateFraud, workflow.Reject())
		}
	}
}

func (d *Driver) decide(run Run, gate workflow.Gate, dec workflow.Decision) error {
	if err := run.Decide(gate, dec); err != nil {
		fmt.Fprintf(d.out, "Not accepted: %v\n", err)
		return errRunEnded
	}
	return nil
}

func (d *Driver) otp(ctx context.Context, run Run) error {
	fmt.Fprintln(d.out, "A one-time code has been sent. Type it, r to resend, or q to cancel.")
	for {
		line, err := d.ask(ctx, run, "Code: ")
		if err != nil {
			return err
		}
		switch strings.ToLower(line) {
		case "":
			continue
		case "q":
			run.Cancel()
			return errRunEnded
		case "r":
			if _, err := run.RefreshChallenge(ctx); err != nil {
				fmt.Fprintf(d.out, "Cannot resend: %v\n", err)
				if errors.Is(err, workflow.ErrRunFinished) {
					return errRunEnded
				}
				continue
			}
			fmt.Fprintln(d.out, "A new code has been sent.")
			continue
		}

		err = run.SubmitCode(ctx, line)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, otp.ErrInvalidCode):
			fmt.Fprintln(d.out, "That code is not right. Try again.")
		case errors.Is(err, otp.ErrChallengeExpired):
			fmt.Fprintln(d.out, "The code has expired. Type r for a new one.")
		case errors.Is(err, workflow.ErrRunFinished), errors.Is(err, workflow.ErrAlreadyDecided):
			return errRunEnded
		default:
			fmt.Fprintf(d.out, "Verification failed: %v\n", err)
		}
	}
}

// ask prints prompt and waits for a line. It fails with errRunEnded when the run finishes first and with
// io.EOF when input ends.
func (d *Driver) ask(ctx context.Context, run Run, prompt string) (string, error) {
	fmt.Fprint(d.out, prompt)
	select {
	case line, ok := <-d.lines:
		if !ok {
			fmt.Fprintln(d.out)
			return "", io.EOF
		}
		return line, nil
	case <-run.Done():
		fmt.Fprintln(d.out)
		return "", errRunEnded
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Describe is the user-facing text for a COP outcome.
func Describe(o cop.Outcome) string {
	switch o.Kind {
	case cop.Match:
		return "the name matches the account"
	case cop.CloseMatch:
		return "the name is a close match"
	case cop.NoMatch:
		return "the name does not match the account"
	case cop.AccountNotFound:
		return "the account could not be found"
	case cop.Internal:
		return "this is one of your own accounts"
	case cop.Mismatch:
		return fmt.Sprintf("the bank reported a mismatch (%s)", o.Code)
	case cop.Unknown:
		return "the bank returned a result this app does not recognise"
	default:
		return "not checked"
	}
}

// Summary is the one-line text for a finished run.
func Summary(res workflow.Result) string {
	switch res.Outcome {
	case workflow.OutcomeSuccess:
		s := "Done."
		if res.OperationID != "" {
			s = fmt.Sprintf("Done. Operation %s confirmed.", res.OperationID)
		}
		if res.CancelRequested {
			s += " It completed before the cancel took effect."
		}
		return s
	case workflow.OutcomeRejected:
		return fmt.Sprintf("Not sent (%s).", res.Reason)
	default:
		if res.Err != nil {
			return fmt.Sprintf("Failed: %v", res.Err)
		}
		return "Failed."
	}
}
