package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/chatform/chatform/internal/config"
	"github.com/chatform/chatform/internal/errors"
	"github.com/chatform/chatform/internal/models"
	"github.com/chatform/chatform/internal/resolution"
)

const retryNotice = "Sorry, something went wrong processing that message. Please try again."

var (
	resolveFile   string
	resolveOutput string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve an application's red flags in the terminal",
	Long: `Validate an application, then walk through every red flag as a
conversation. Corrections and justifications are applied to the application
and written to the audit log.

Examples:
  chatform resolve --file application.json
  chatform resolve --file application.json --output resolved.json`,
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().StringVarP(&resolveFile, "file", "f", "", "application JSON file")
	resolveCmd.Flags().StringVarP(&resolveOutput, "output", "o", "", "write the resolved application here (default: stdout)")
}

func runResolve(cmd *cobra.Command, args []string) error {
	app, err := loadApplication(resolveFile)
	if err != nil {
		return err
	}
	if err := cfg.Require(config.ValidationContextResolve); err != nil {
		return err
	}

	ctx := cmd.Context()
	svc, err := buildServices(ctx, cfg, true, true)
	if err != nil {
		return err
	}
	defer svc.Close()

	flags, err := svc.rules.Validate(ctx, app)
	if err != nil {
		return err
	}
	if len(flags) == 0 {
		fmt.Fprintln(os.Stderr, "No red flags raised.")
		return writeApplication(app, resolveOutput)
	}

	ledger := resolution.NewLedger(app, svc.audit)
	session := resolution.NewSession(ledger, resolution.Deps{Model: svc.model, Tools: svc.tools}, svc.resolutionOptions(cfg))

	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	if err := resolveAll(ctx, session, flags, os.Stdin, os.Stderr, interactive); err != nil {
		return err
	}
	return writeApplication(ledger.Snapshot(), resolveOutput)
}

// resolveAll runs the conversation of every flag in order, reading the
// applicant's replies line by line from in. prompt controls the "you>"
// marker, which is noise when input is piped.
func resolveAll(ctx context.Context, session *resolution.Session, flags []models.RedFlag, in io.Reader, out io.Writer, prompt bool) error {
	scanner := bufio.NewScanner(in)
	for i, flag := range flags {
		session.Open(flag)
		fmt.Fprintf(out, "\n[%d/%d] %s (%s)\n%s\n", i+1, len(flags), flag.Rule, flag.Severity, flag.Message)

		opening, err := session.Initialize(ctx, flag.Rule)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "assistant> %s\n", opening.Content)

		for {
			if prompt {
				fmt.Fprint(out, "you> ")
			}
			if !scanner.Scan() {
				if err := scanner.Err(); err != nil {
					return fmt.Errorf("failed to read input: %w", err)
				}
				return errors.ValidationErrorf("input ended with %s unresolved", flag.Rule)
			}
			text := strings.TrimSpace(scanner.Text())
			if text == "" {
				continue
			}

			turn, err := session.Send(ctx, flag.Rule, text)
			if err != nil {
				if errors.GetType(err) == errors.ErrorTypeMessageProcessing {
					logger.Warn("turn failed", "rule", flag.Rule, "error", err)
					fmt.Fprintf(out, "assistant> %s\n", retryNotice)
					continue
				}
				return err
			}
			fmt.Fprintf(out, "assistant> %s\n", turn.Message.Content)
			if turn.State == resolution.StateResolved {
				session.Close(flag.Rule)
				break
			}
		}
	}
	return nil
}

func writeApplication(app *models.ApplicationSnapshot, path string) error {
	data, err := json.MarshalIndent(app, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode application: %w", err)
	}
	data = append(data, '\n')
	if path == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
