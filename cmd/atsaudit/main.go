// Command atsaudit scores a résumé against a job description offline.
//
//	go run ./cmd/atsaudit score --resume cv.pdf --job jd.txt
//	go run ./cmd/atsaudit record --record rewrite.json --job jd.txt
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"resume-revamp/internal/ats"
	"resume-revamp/internal/extract"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "atsaudit",
		Short:         "Keyword coverage of a résumé against a job description",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newScoreCmd(), newRecordCmd())
	return root
}

func newScoreCmd() *cobra.Command {
	var resumePath, jobPath string
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score a PDF, DOCX or text résumé",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(resumePath)
			if err != nil {
				return fmt.Errorf("read resume: %w", err)
			}
			text, err := extract.ExtractTextFromBytes(cmd.Context(), data, "", filepath.Base(resumePath))
			if err != nil {
				return fmt.Errorf("extract resume text: %w", err)
			}
			job, err := readJob(jobPath)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), ats.KeywordMatchScore(text, job))
		},
	}
	cmd.Flags().StringVar(&resumePath, "resume", "", "path to the résumé file")
	cmd.Flags().StringVar(&jobPath, "job", "", "path to the job description text")
	_ = cmd.MarkFlagRequired("resume")
	_ = cmd.MarkFlagRequired("job")
	return cmd
}

func newRecordCmd() *cobra.Command {
	var recordPath, jobPath string
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Score a structured résumé JSON record",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(recordPath)
			if err != nil {
				return fmt.Errorf("read record: %w", err)
			}
			job, err := readJob(jobPath)
			if err != nil {
				return err
			}
			res, err := ats.AuditRecord(raw, job)
			if err != nil {
				return fmt.Errorf("audit record: %w", err)
			}
			return printResult(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&recordPath, "record", "", "path to the résumé JSON record")
	cmd.Flags().StringVar(&jobPath, "job", "", "path to the job description text")
	_ = cmd.MarkFlagRequired("record")
	_ = cmd.MarkFlagRequired("job")
	return cmd
}

func readJob(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read job description: %w", err)
	}
	job := strings.TrimSpace(string(data))
	if job == "" {
		return "", fmt.Errorf("job description %s is empty", path)
	}
	return job, nil
}

func printResult(w io.Writer, res ats.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

