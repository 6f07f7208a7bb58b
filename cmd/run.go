package main

import (
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/coldreach/coldreach/internal/model"
	"github.com/coldreach/coldreach/internal/pipeline"
)

var (
	runUser     string
	runCompany  string
	runFile     string
	runSources  sourceFlags
	runParallel int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run outreach sessions for one company or a batch file",
	Example: `  coldreach run --user u1 --company clearcutar.com --resume resume.pdf
  coldreach run --file batch.xlsx --parallel 5`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if runFile == "" && (runUser == "" || runCompany == "") {
			return eris.New("either --file or both --user and --company are required")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "run")
		if err != nil {
			return err
		}
		defer env.Close()

		out := cmd.OutOrStdout()
		if runFile != "" {
			reqs, err := pipeline.LoadRequests(runFile)
			if err != nil {
				return err
			}
			limit := runParallel
			if limit <= 0 {
				limit = cfg.Batch.MaxConcurrentSessions
			}
			zap.L().Info("running batch", zap.String("file", runFile), zap.Int("sessions", len(reqs)), zap.Int("parallel", limit))

			views := make([]resultView, 0, len(reqs))
			for _, it := range env.Pipeline.RunBatch(ctx, reqs, limit) {
				views = append(views, newResultView(it.Result, it.Err))
			}
			return writeJSON(out, views)
		}

		sources, err := runSources.sources()
		if err != nil {
			return err
		}
		res, err := env.Pipeline.Run(ctx, pipeline.Request{UserID: runUser, CompanyURL: runCompany, Sources: sources})
		if res == nil {
			return err
		}
		if werr := writeJSON(out, newResultView(res, err)); werr != nil {
			return werr
		}
		return err
	},
}

// resultView is the printed and served form of a finished session.
type resultView struct {
	Session   *model.OutreachSession `json:"session,omitempty"`
	Best      *model.DraftAttempt    `json:"best,omitempty"`
	ErrorKind string                 `json:"error_kind,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

func newResultView(res *pipeline.Result, err error) resultView {
	var v resultView
	if res != nil {
		v.Session, v.Best = res.Session, res.Best
		if res.Err != nil {
			v.ErrorKind, v.Error = model.ErrorKind(res.Err), res.Err.Error()
		}
	}
	if err != nil {
		v.ErrorKind, v.Error = model.ErrorKind(err), err.Error()
	}
	return v
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "write output")
}

// sourceFlags are the profile source flags shared by run and profile build.
type sourceFlags struct {
	resume   string
	linkedIn string
	gitHub   string
}

func (f *sourceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.resume, "resume", "", "resume file (PDF or text)")
	cmd.Flags().StringVar(&f.linkedIn, "linkedin", "", "LinkedIn profile URL")
	cmd.Flags().StringVar(&f.gitHub, "github", "", "GitHub profile URL")
}

func (f *sourceFlags) sources() (model.ProfileSources, error) {
	s := model.ProfileSources{LinkedInURL: f.linkedIn, GitHubURL: f.gitHub}
	if f.resume != "" {
		data, err := os.ReadFile(f.resume)
		if err != nil {
			return s, eris.Wrap(err, "read resume")
		}
		s.Resume = data
	}
	return s, nil
}

func init() {
	runCmd.Flags().StringVar(&runUser, "user", "", "sender user id")
	runCmd.Flags().StringVar(&runCompany, "company", "", "target company URL")
	runCmd.Flags().StringVar(&runFile, "file", "", "batch request file (.csv or .xlsx)")
	runCmd.Flags().IntVar(&runParallel, "parallel", 0, "concurrent sessions (default from config)")
	runSources.register(runCmd)
	rootCmd.AddCommand(runCmd)
}
