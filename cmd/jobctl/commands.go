package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/suPer8Hu/coursegen/internal/app"
	"github.com/suPer8Hu/coursegen/internal/course"
	"github.com/suPer8Hu/coursegen/internal/pipeline"
)

type opener func(ctx context.Context, publish bool) (*app.App, func(), error)

func newRootCmd(open opener, out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:          "jobctl",
		Short:        "Operate course generation jobs",
		SilenceUsage: true,
	}
	root.SetOut(out)

	root.AddCommand(
		&cobra.Command{
			Use:       "show syllabus|content <job-id>",
			Short:     "Print a job row as JSON",
			Args:      jobArgs,
			ValidArgs: []string{string(course.KindSyllabus), string(course.KindContent)},
			RunE: func(cmd *cobra.Command, args []string) error {
				a, done, err := open(cmd.Context(), false)
				if err != nil {
					return err
				}
				defer done()

				var job any
				switch course.JobKind(args[0]) {
				case course.KindSyllabus:
					job, err = a.Courses.GetSyllabusJob(cmd.Context(), args[1])
				default:
					job, err = a.Courses.GetContentJob(cmd.Context(), args[1])
				}
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), job)
			},
		},
		&cobra.Command{
			Use:   "publish syllabus|content <job-id>",
			Short: "Enqueue a job for the worker",
			Args:  jobArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				a, done, err := open(cmd.Context(), true)
				if err != nil {
					return err
				}
				defer done()
				if a.Publisher == nil {
					return errors.New("rabbitmq is not configured or unreachable")
				}
				if err := a.Publisher.PublishJob(cmd.Context(), course.JobKind(args[0]), args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "published %s job %s\n", args[0], args[1])
				return nil
			},
		},
		&cobra.Command{
			Use:   "process syllabus|content <job-id>",
			Short: "Run a job in this process",
			Args:  jobArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				a, done, err := open(cmd.Context(), true)
				if err != nil {
					return err
				}
				defer done()

				res, err := a.Process(cmd.Context(), course.JobKind(args[0]), args[1])
				var ineligible *pipeline.IneligibleJobError
				if errors.As(err, &ineligible) {
					fmt.Fprintf(cmd.OutOrStdout(), "job already handled: %s\n", ineligible.Status)
					return nil
				}
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			},
		},
	)
	return root
}

func jobArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.ExactArgs(2)(cmd, args); err != nil {
		return err
	}
	switch course.JobKind(args[0]) {
	case course.KindSyllabus, course.KindContent:
		return nil
	default:
		return fmt.Errorf("unknown job kind %q: want syllabus or content", args[0])
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
