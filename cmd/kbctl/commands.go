package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"course-kb/internal/concurrency"
	"course-kb/internal/config"
	"course-kb/internal/domain"
	"course-kb/internal/export"
	"course-kb/internal/kb"
	"course-kb/internal/kberr"
	"course-kb/internal/normalize"
	"course-kb/internal/sftpclient"
	"course-kb/internal/templates"
)

func queryCmd(g *globalFlags) *cobra.Command {
	var fields []string

	cmd := &cobra.Command{
		Use:   "query INTENT [key=value ...]",
		Short: "Run an intent and print the normalized result",
		Example: `  kbctl query prereqs code=IA-401
  kbctl query courses_by_domain domain=IntelligenceArtificielle --fields code,name`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParams(args[1:])
			if err != nil {
				return err
			}
			a, err := newApp(g, cmd.ErrOrStderr(), nil)
			if err != nil {
				return err
			}

			res, err := a.kb.ExecuteQuery(cmd.Context(), args[0], params)
			if err != nil {
				return err
			}
			if w := res.Warning(); w != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", w)
			}
			if len(fields) > 0 {
				return writeJSON(cmd.OutOrStdout(), pickAll(res.Records, fields))
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringSliceVar(&fields, "fields", nil, "Print only these record fields, e.g. code,name")
	return cmd
}

func coursesCmd(g *globalFlags) *cobra.Command {
	var domainID, level, skill string

	cmd := &cobra.Command{
		Use:   "courses",
		Short: "List courses, optionally filtered by domain or level",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if moreThanOne(domainID != "", level != "", skill != "") {
				return errors.New("--domain, --level and --skill are mutually exclusive")
			}
			a, err := newApp(g, cmd.ErrOrStderr(), nil)
			if err != nil {
				return err
			}

			var (
				courses []domain.Course
				diags   []normalize.Diagnostic
				intent  = "courses"
			)
			switch {
			case domainID != "":
				intent = "courses_by_domain"
				courses, diags, err = a.kb.GetCoursesByDomain(cmd.Context(), domainID)
			case level != "":
				var l domain.Level
				if l, err = domain.ParseLevel(level); err != nil {
					return err
				}
				intent = "courses_by_level"
				courses, diags, err = a.kb.GetCoursesByLevel(cmd.Context(), l)
			case skill != "":
				intent = "courses_by_skill"
				courses, diags, err = a.kb.GetCoursesBySkill(cmd.Context(), skill)
			default:
				courses, diags, err = a.kb.ListCourses(cmd.Context())
			}
			if err != nil {
				return err
			}
			warnDropped(cmd.ErrOrStderr(), intent, len(courses), diags)
			return writeJSON(cmd.OutOrStdout(), courses)
		},
	}
	cmd.Flags().StringVar(&domainID, "domain", "", "Domain identifier, e.g. IntelligenceArtificielle")
	cmd.Flags().StringVar(&level, "level", "", "Level: beginner, intermediate or advanced")
	cmd.Flags().StringVar(&skill, "skill", "", "Skill identifier, e.g. Python")
	return cmd
}

func courseCmd(g *globalFlags) *cobra.Command {
	var skills bool

	cmd := &cobra.Command{
		Use:   "course CODE",
		Short: "Show one course",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(g, cmd.ErrOrStderr(), nil)
			if err != nil {
				return err
			}
			if skills {
				s, diags, err := a.kb.GetCourseSkills(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				warnDropped(cmd.ErrOrStderr(), "course_skills", len(s), diags)
				return writeJSON(cmd.OutOrStdout(), s)
			}

			c, diags, err := a.kb.GetCourseByCode(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			warnDropped(cmd.ErrOrStderr(), "course", countPtr(c), diags)
			if c == nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "no course %s\n", args[0])
			}
			return writeJSON(cmd.OutOrStdout(), c)
		},
	}
	cmd.Flags().BoolVar(&skills, "skills", false, "List the skills the course teaches instead")
	return cmd
}

func prereqsCmd(g *globalFlags) *cobra.Command {
	var all, path bool

	cmd := &cobra.Command{
		Use:   "prereqs CODE",
		Short: "List the prerequisites of a course, ordered by code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all && path {
				return errors.New("--all and --path are mutually exclusive")
			}
			a, err := newApp(g, cmd.ErrOrStderr(), nil)
			if err != nil {
				return err
			}
			if path {
				codes, diags, err := a.kb.GetLearningPath(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				warnDropped(cmd.ErrOrStderr(), "prereq_graph", len(codes), diags)
				return writeJSON(cmd.OutOrStdout(), codes)
			}

			get, intent := a.kb.GetPrerequisites, "prereqs"
			if all {
				get, intent = a.kb.GetAllPrerequisites, "prereqs_all"
			}
			prereqs, diags, err := get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			warnDropped(cmd.ErrOrStderr(), intent, len(prereqs), diags)
			return writeJSON(cmd.OutOrStdout(), prereqs)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Include transitive prerequisites")
	cmd.Flags().BoolVar(&path, "path", false, "Print the course codes to take, in order, ending with CODE")
	return cmd
}

func domainCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "domain [ID]",
		Short: "List domains, or the courses of one domain",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(g, cmd.ErrOrStderr(), nil)
			if err != nil {
				return err
			}
			if len(args) == 0 {
				domains, diags, err := a.kb.ListDomains(cmd.Context())
				if err != nil {
					return err
				}
				warnDropped(cmd.ErrOrStderr(), "domains", len(domains), diags)
				return writeJSON(cmd.OutOrStdout(), domains)
			}
			courses, diags, err := a.kb.GetCoursesByDomain(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			warnDropped(cmd.ErrOrStderr(), "courses_by_domain", len(courses), diags)
			return writeJSON(cmd.OutOrStdout(), courses)
		},
	}
}

func searchCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "search KEYWORD",
		Short: "Find courses whose name or code contains KEYWORD",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(g, cmd.ErrOrStderr(), nil)
			if err != nil {
				return err
			}
			courses, diags, err := a.kb.SearchCourses(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			warnDropped(cmd.ErrOrStderr(), "search_courses", len(courses), diags)
			return writeJSON(cmd.OutOrStdout(), courses)
		},
	}
}

func studentCmd(g *globalFlags) *cobra.Command {
	var (
		skills, eligible bool
		check            string
	)

	cmd := &cobra.Command{
		Use:   "student EMAIL",
		Short: "Show a student profile, skills or eligible courses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if moreThanOne(skills, eligible, check != "") {
				return errors.New("--skills, --eligible and --check are mutually exclusive")
			}
			a, err := newApp(g, cmd.ErrOrStderr(), nil)
			if err != nil {
				return err
			}

			ctx, email := cmd.Context(), args[0]
			var (
				out    any
				n      int
				diags  []normalize.Diagnostic
				intent string
			)
			switch {
			case skills:
				intent = "student_skills"
				var ss []domain.StudentSkill
				ss, diags, err = a.kb.GetStudentSkills(ctx, email)
				out, n = ss, len(ss)
			case eligible:
				intent = "eligible_courses"
				var cs []domain.Course
				cs, diags, err = a.kb.GetEligibleCourses(ctx, email)
				out, n = cs, len(cs)
			case check != "":
				intent = "missing_prereqs"
				var e *kb.Eligibility
				e, diags, err = a.kb.CheckEligibility(ctx, email, check)
				out, n = e, countPtr(e)
			default:
				intent = "student"
				var st *domain.Student
				st, diags, err = a.kb.GetStudent(ctx, email)
				out, n = st, countPtr(st)
			}
			if err != nil {
				return err
			}
			warnDropped(cmd.ErrOrStderr(), intent, n, diags)
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().BoolVar(&skills, "skills", false, "List held and acquired skills")
	cmd.Flags().BoolVar(&eligible, "eligible", false, "List courses whose prerequisites are all taken")
	cmd.Flags().StringVar(&check, "check", "", "Course code: list the prerequisites still missing for it")
	return cmd
}

func intentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "intents",
		Short: "List the supported intents and their parameters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lib := templates.Default()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "INTENT\tPARAMETERS\tRECORDS\tALIASES")
			for _, name := range lib.Intents() {
				tpl, err := lib.Resolve(name)
				if err != nil {
					return err
				}
				var params []string
				for _, p := range tpl.Required() {
					params = append(params, p+":"+tpl.Params[p].String())
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", name, dash(strings.Join(params, " ")), tpl.Kind, dash(strings.Join(lib.Aliases(name), " ")))
			}
			return tw.Flush()
		},
	}
}

// warnDropped prints a partial-result warning and the dropped rows.
func warnDropped(w io.Writer, intent string, kept int, diags []normalize.Diagnostic) {
	if len(diags) == 0 {
		return
	}
	fmt.Fprintf(w, "warning: %v\n", &kberr.PartialResultWarning{Intent: intent, Dropped: len(diags), Kept: kept})
	for _, d := range diags {
		fmt.Fprintf(w, "  %s\n", d)
	}
}

func countPtr[T any](p *T) int {
	if p == nil {
		return 0
	}
	return 1
}

func moreThanOne(set ...bool) bool {
	n := 0
	for _, s := range set {
		if s {
			n++
		}
	}
	return n > 1
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func pingCmd(g *globalFlags) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Check that Fuseki answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(g, cmd.ErrOrStderr(), func(c *config.Config) {
				if !wait {
					c.Fuseki.PingAttempts = 1
				}
			})
			if err != nil {
				return err
			}

			start := time.Now()
			if err := a.kb.Ping(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok %s (%s)\n", a.client.QueryURL(), time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "Retry until the store is up (FUSEKI_PING_ATTEMPTS attempts)")
	return cmd
}

func exportCmd(g *globalFlags) *cobra.Command {
	var (
		outPath    string
		format     string
		workers    int
		uploadSFTP bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the course catalog with prerequisites to a file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := export.ParseFormat(format, outPath)
			if err != nil {
				return err
			}
			a, err := newApp(g, cmd.ErrOrStderr(), nil)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			courses, diags, err := a.kb.ListCourses(ctx)
			if err != nil {
				return err
			}
			// dropped course rows are missing from the file
			warnDropped(cmd.ErrOrStderr(), "courses", len(courses), diags)

			entries, errs := export.BuildCatalog(ctx, a.kb, courses, concurrency.ParallelOptions{MaxWorkers: workers})
			failed := 0
			for _, e := range errs {
				if export.IsPartial(e) {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", e)
					continue
				}
				failed++
				a.logger.Warn("prerequisite lookup failed", "error", e)
			}
			if failed > 0 && failed == len(courses) {
				return fmt.Errorf("export: every prerequisite lookup failed: %w", errs[0])
			}

			if err := export.WriteFile(outPath, f, entries); err != nil {
				return err
			}
			a.logger.Info("catalog written", "path", outPath, "courses", len(entries), "dropped_courses", len(diags), "lookup_errors", failed)
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d courses to %s\n", len(entries), outPath)

			if !uploadSFTP {
				return nil
			}

			upCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
			defer cancel()

			remote, err := sftpclient.UploadFile(upCtx, a.cfg.SFTP, outPath, filepath.Base(outPath))
			a.metrics.RecordUpload(err)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "uploaded to sftp://%s%s\n", a.cfg.SFTP.Host, remote)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "COURSE-CATALOG.csv", "Output file path")
	cmd.Flags().StringVar(&format, "format", "", "csv or xml (default: from the file extension)")
	cmd.Flags().IntVar(&workers, "workers", concurrency.DefaultOptions().MaxWorkers, "Concurrent prerequisite lookups")
	cmd.Flags().BoolVar(&uploadSFTP, "sftp", false, "Upload the generated file via SFTP")
	return cmd
}

func diffCmd(g *globalFlags) *cobra.Command {
	var workers int

	cmd := &cobra.Command{
		Use:   "diff PREVIOUS.csv",
		Short: "Compare the live catalog with a previously exported CSV",
		Long: `diff rebuilds the catalog from the store and lists the course codes
added, changed or removed since PREVIOUS.csv was exported. It exits with
status 1 when the catalogs differ.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			previous, err := export.ReadCatalogCSV(f)
			f.Close()
			if err != nil {
				return err
			}

			a, err := newApp(g, cmd.ErrOrStderr(), nil)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			courses, diags, err := a.kb.ListCourses(ctx)
			if err != nil {
				return err
			}
			if len(diags) > 0 {
				// a dropped course would show up as removed
				return fmt.Errorf("diff: %w", &kberr.PartialResultWarning{Intent: "courses", Dropped: len(diags), Kept: len(courses)})
			}
			current, errs := export.BuildCatalog(ctx, a.kb, courses, concurrency.ParallelOptions{MaxWorkers: workers})
			if len(errs) > 0 {
				// a missing prerequisite list would show up as a change
				return fmt.Errorf("diff: %d prerequisite lookups failed or dropped rows: %w", len(errs), errs[0])
			}

			changes := export.Diff(current, previous)
			a.logger.Info("catalog diff", "added", len(changes.Added), "changed", len(changes.Changed), "removed", len(changes.Removed))
			if err := writeJSON(cmd.OutOrStdout(), changes); err != nil {
				return err
			}
			if !changes.Empty() {
				return errCatalogChanged
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&workers, "workers", concurrency.DefaultOptions().MaxWorkers, "Concurrent prerequisite lookups")
	return cmd
}

func serveMetricsCmd(g *globalFlags) *cobra.Command {
	var (
		addr     string
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve-metrics",
		Short: "Serve Prometheus metrics and ping the store periodically",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval <= 0 {
				return errors.New("--interval must be positive")
			}
			a, err := newApp(g, cmd.ErrOrStderr(), func(c *config.Config) {
				if addr != "" {
					c.MetricsAddr = addr
				}
				if c.MetricsAddr == "" {
					c.MetricsAddr = ":9102"
				}
				c.Fuseki.PingAttempts = 1
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			mux := http.NewServeMux()
			mux.Handle("/metrics", a.metrics.Handler())
			srv := &http.Server{Addr: a.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()
			a.logger.Info("serving metrics", "addr", a.cfg.MetricsAddr, "ping_interval", interval)

			check := func() {
				err := a.kb.Ping(ctx)
				a.metrics.RecordPing(err)
				if err != nil && ctx.Err() == nil {
					a.logger.Warn("store ping failed", "error", err)
				}
			}
			check()

			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return srv.Shutdown(shutdownCtx)
				case err := <-errCh:
					return fmt.Errorf("metrics server: %w", err)
				case <-ticker.C:
					check()
				}
			}
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default METRICS_ADDR or :9102)")
	cmd.Flags().DurationVar(&interval, "interval", 30*time.Second, "Store ping interval")
	return cmd
}
