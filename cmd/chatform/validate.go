package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/chatform/chatform/internal/models"
)

var validateFile string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Run the red-flag rules against an application",
	Long: `Validate an application JSON file and print the raised red flags.

Examples:
  chatform validate --file application.json`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringVarP(&validateFile, "file", "f", "", "application JSON file")
}

func runValidate(cmd *cobra.Command, args []string) error {
	app, err := loadApplication(validateFile)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	svc, err := buildServices(ctx, cfg, false, false)
	if err != nil {
		return err
	}
	defer svc.Close()

	flags, err := svc.rules.Validate(ctx, app)
	if err != nil {
		return err
	}
	if flags == nil {
		flags = []models.RedFlag{}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{"red_flags": flags})
}
