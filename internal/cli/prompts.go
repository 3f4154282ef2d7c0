package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/AlecAivazis/survey/v2"
)

// parseCash accepts amounts like "10000", "$10,000" or "2500.50".
func parseCash(s string) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, "_", "")
	if s == "" {
		return 0, fmt.Errorf("amount cannot be empty")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	if v <= 0 {
		return 0, fmt.Errorf("amount must be positive")
	}
	return v, nil
}

// PromptForCash prompts the user for the amount to invest
func PromptForCash(defaultCash float64) (float64, error) {
	var input string
	prompt := &survey.Input{
		Message: "How much cash do you want to invest (USD)?",
		Help:    "The whole amount is spread across the consolidated holdings by weight.",
		Default: strconv.FormatFloat(defaultCash, 'f', -1, 64),
	}

	err := survey.AskOne(prompt, &input, survey.WithValidator(func(val interface{}) error {
		str, ok := val.(string)
		if !ok {
			return fmt.Errorf("invalid input")
		}
		_, err := parseCash(str)
		return err
	}))
	if err != nil {
		return 0, err
	}

	return parseCash(input)
}

// PromptForFractional asks whether the broker supports fractional shares
func PromptForFractional(defaultValue bool) (bool, error) {
	var fractional bool
	prompt := &survey.Confirm{
		Message: "Buy fractional shares?",
		Help:    "Without fractional shares every holding whose allocation is below one share is skipped.",
		Default: defaultValue,
	}

	err := survey.AskOne(prompt, &fractional)
	return fractional, err
}

// PromptForExport asks whether the order sheet should be written to disk
func PromptForExport() (bool, error) {
	var export bool
	prompt := &survey.Confirm{
		Message: "Save the order sheet as CSV?",
		Default: false,
	}

	err := survey.AskOne(prompt, &export)
	return export, err
}

// PromptForNextAction asks what to do once a plan is shown
func PromptForNextAction() (string, error) {
	var choice string
	prompt := &survey.Select{
		Message: "What would you like to do next?",
		Options: []string{
			actionPlan,
			actionComposition,
			actionFunds,
			actionExit,
		},
		Default: actionExit,
	}

	err := survey.AskOne(prompt, &choice)
	return choice, err
}

const (
	actionPlan        = "Build another purchase plan"
	actionComposition = "Show the consolidated portfolio"
	actionFunds       = "Show the funds"
	actionExit        = "Exit IndexGo"
)
