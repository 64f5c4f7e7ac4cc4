package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/isdmx/coderunner/sandbox"
)

var (
	languageFlag string
	codeFlag     string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one snippet and print the JSON response",
	Long: `Execute one snippet through the configured backend and print the response
body that POST /run-code would return, with its status code.

The code is read from --code, or from stdin when --code is "-".

Examples:
  coderunner run --language python --code 'print(1)'
  echo 'echo hi' | coderunner run --language sh --code -`,
	RunE: runOnce,
}

func init() {
	runCmd.Flags().StringVarP(&languageFlag, "language", "l", "python", "Language to run")
	runCmd.Flags().StringVarP(&codeFlag, "code", "c", "", "Code to run, or - for stdin")
	_ = runCmd.MarkFlagRequired("code")
	rootCmd.AddCommand(runCmd)
}

type runOutput struct {
	Status int `json:"status"`
	sandbox.Response
}

func runOnce(cmd *cobra.Command, _ []string) error {
	code := codeFlag
	if code == "-" {
		raw, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("reading code from stdin: %w", err)
		}
		code = string(raw)
	}

	var svc *sandbox.Service
	app := fx.New(
		coreModule(configFlag),
		fx.Populate(&svc),
	)
	if err := app.Err(); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := app.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = app.Stop(context.WithoutCancel(ctx)) }()

	result := svc.Execute(ctx, sandbox.SandboxRequest{Language: languageFlag, Code: code})

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(runOutput{Status: result.Status, Response: result.Body}); err != nil {
		return err
	}

	if result.Status != http.StatusOK {
		return fmt.Errorf("execution finished with status %d", result.Status)
	}
	return nil
}
