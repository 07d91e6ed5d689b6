package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/steveyegge/tenet/internal/engine"
)

// stdinIsTerminal reports whether interactive prompts can be shown.
func stdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func runDecisionForm() {
	if !stdinIsTerminal() {
		FatalError("--form needs an interactive terminal")
	}

	var (
		title       string
		description string
		category    string
		paramsInput string
	)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Title").
				Description("What was decided (required)").
				Placeholder("e.g., Use Postgres for the billing service").
				Value(&title).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("title is required")
					}
					if len(s) > 500 {
						return fmt.Errorf("title must be 500 characters or less")
					}
					return nil
				}),

			huh.NewText().
				Title("Description").
				Description("Context and rationale").
				CharLimit(5000).
				Value(&description),

			huh.NewInput().
				Title("Category").
				Placeholder("e.g., architecture").
				Value(&category),

			huh.NewInput().
				Title("Parameters").
				Description("Comma-separated key=value pairs").
				Placeholder("e.g., database=postgres, region=eu-west-1").
				Value(&paramsInput).
				Validate(func(s string) error {
					_, err := parseParams(splitList(s))
					return err
				}),

			huh.NewConfirm().
				Title("Record this decision?").
				Affirmative("Create").
				Negative("Cancel"),
		),
	).WithTheme(huh.ThemeDracula())

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Fprintln(os.Stderr, "Decision creation cancelled.")
			os.Exit(0)
		}
		FatalError("form error: %v", err)
	}

	params, err := parseParams(splitList(paramsInput))
	FatalIfErr(invalidInput(err))

	d, err := eng.CreateDecision(rootCtx, getActor(), engine.NewDecision{
		Title:       strings.TrimSpace(title),
		Description: strings.TrimSpace(description),
		Category:    strings.TrimSpace(category),
		Parameters:  params,
	})
	FatalIfErr(err)
	printCreatedDecision(d)
}

// confirm asks a yes/no question. Without a terminal it returns def.
func confirm(question string, def bool) bool {
	if !stdinIsTerminal() {
		return def
	}
	ok := def
	err := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(question).
			Affirmative("Yes").
			Negative("No").
			Value(&ok),
	)).WithTheme(huh.ThemeDracula()).Run()
	if err != nil {
		return false
	}
	return ok
}

// splitList splits a comma-separated list, dropping empty items.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
