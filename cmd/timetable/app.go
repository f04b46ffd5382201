package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-timetable-api/internal/models"
	"github.com/noah-isme/campus-timetable-api/internal/repository"
	"github.com/noah-isme/campus-timetable-api/internal/scheduler"
	"github.com/noah-isme/campus-timetable-api/internal/service"
	"github.com/noah-isme/campus-timetable-api/pkg/config"
	"github.com/noah-isme/campus-timetable-api/pkg/logger"
)

const (
	formatTable = "table"
	formatJSON  = "json"
)

// generation is the JSON document written by generate and read back by conflicts.
type generation struct {
	Schedule    models.Schedule         `json:"schedule"`
	Unplaceable []scheduler.SlotRequest `json:"unplaceable"`
	Conflicts   []models.ConflictRecord `json:"conflicts"`
	Warnings    []string                `json:"warnings"`
	Stats       scheduler.Stats         `json:"stats"`
}

func newApp(stdout, stderr io.Writer) *cli.App {
	logFlag := &cli.StringFlag{Name: "log-level", Value: "warn", Usage: "debug, info, warn or error"}

	app := &cli.App{
		Name:      "timetable",
		Usage:     "validate datasets, generate timetables and report conflicts offline",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags:     []cli.Flag{logFlag},
		Commands: []*cli.Command{
			{
				Name:   "validate",
				Usage:  "check a dataset for malformed references, windows and prerequisite cycles",
				Flags:  []cli.Flag{dataFlag()},
				Action: validateAction,
			},
			{
				Name:  "generate",
				Usage: "generate a timetable from a dataset",
				Flags: []cli.Flag{
					dataFlag(),
					&cli.StringSliceFlag{Name: "department", Usage: "restrict generation to a department (repeatable)"},
					&cli.BoolFlag{Name: "allow-conflicts", Usage: "place every session even when hard constraints clash"},
					&cli.BoolFlag{Name: "ignore-preferences", Usage: "do not rank teacher priority windows first"},
					&cli.BoolFlag{Name: "parallel", Usage: "search independent departments concurrently"},
					&cli.DurationFlag{Name: "timeout", Value: 30 * time.Second, Usage: "search deadline"},
					&cli.IntFlag{Name: "max-backtracks", Value: scheduler.DefaultMaxBacktracks, Usage: "backtracking budget"},
					&cli.StringFlag{Name: "week-start", Usage: "Monday of the week to check holidays against (YYYY-MM-DD)"},
					&cli.StringFlag{Name: "format", Value: formatTable, Usage: "table, json, csv, xlsx, pdf or ics"},
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "write output to a file instead of stdout"},
				},
				Action: generateAction,
			},
			{
				Name:  "conflicts",
				Usage: "report hard-constraint conflicts in a generated schedule",
				Flags: []cli.Flag{
					dataFlag(),
					&cli.StringFlag{Name: "schedule", Aliases: []string{"s"}, Usage: "JSON written by generate --format json", Required: true},
					&cli.StringFlag{Name: "week-start", Usage: "Monday of the week to check holidays against (YYYY-MM-DD)"},
					&cli.StringFlag{Name: "format", Value: formatTable, Usage: "table or json"},
				},
				Action: conflictsAction,
			},
		},
	}
	// exit codes are mapped in main so tests can inspect them
	app.ExitErrHandler = func(*cli.Context, error) {}
	return app
}

func dataFlag() cli.Flag {
	return &cli.StringFlag{Name: "data", Aliases: []string{"d"}, Usage: "YAML dataset with the catalog and enrollments", Required: true}
}

func commandLogger(c *cli.Context) *zap.Logger {
	logr, err := logger.New(&config.Config{
		Env: config.EnvDevelopment,
		Log: config.LogConfig{Level: c.String("log-level"), Format: "console"},
	})
	if err != nil {
		return zap.NewNop()
	}
	return logr
}

func loadDataset(c *cli.Context) (models.Catalog, models.EnrollmentSets, error) {
	source, err := repository.NewFileCatalog(c.String("data"))
	if err != nil {
		return models.Catalog{}, nil, err
	}
	catalog, err := source.LoadCatalog(c.Context, models.CatalogFilter{})
	if err != nil {
		return models.Catalog{}, nil, err
	}
	ids := make([]string, 0, len(catalog.Courses))
	for _, course := range catalog.Courses {
		ids = append(ids, course.ID)
	}
	enrollments, err := source.StudentsByCourse(c.Context, ids)
	if err != nil {
		return models.Catalog{}, nil, err
	}
	if len(enrollments) == 0 {
		enrollments = nil
	}
	return catalog, enrollments, nil
}

func validateAction(c *cli.Context) error {
	catalog, _, err := loadDataset(c)
	if err != nil {
		return err
	}
	_, warnings, err := scheduler.Validate(catalog)
	var invalid *scheduler.ValidationError
	if errors.As(err, &invalid) {
		for _, issue := range invalid.Issues {
			fmt.Fprintln(c.App.Writer, "error:", issue)
		}
		return cli.Exit(fmt.Sprintf("%d issue(s) found", len(invalid.Issues)), 2)
	}
	if err != nil {
		return err
	}
	for _, warning := range warnings {
		fmt.Fprintln(c.App.Writer, "warning:", warning)
	}
	fmt.Fprintf(c.App.Writer, "ok: %d courses, %d teachers, %d classrooms, %d time slots, %d working days\n",
		len(catalog.Courses), len(catalog.Teachers), len(catalog.Classrooms), len(catalog.TimeSlots), len(catalog.WorkingDays()))
	return nil
}

func generateAction(c *cli.Context) error {
	logr := commandLogger(c)
	defer logr.Sync() //nolint:errcheck

	catalog, enrollments, err := loadDataset(c)
	if err != nil {
		return err
	}
	weekStart, err := parseWeekStart(c.String("week-start"))
	if err != nil {
		return err
	}

	opts := scheduler.DefaultOptions()
	opts.DepartmentIDs = c.StringSlice("department")
	opts.AvoidConflicts = !c.Bool("allow-conflicts")
	opts.RespectPreferences = !c.Bool("ignore-preferences")
	opts.Parallel = c.Bool("parallel")
	opts.Timeout = c.Duration("timeout")
	opts.MaxBacktracks = c.Int("max-backtracks")
	opts.WeekStart = weekStart

	result, err := scheduler.NewEngine(logger.Component(logr, "scheduler")).Generate(c.Context, scheduler.Input{
		Catalog:     catalog,
		Enrollments: enrollments,
	}, opts)
	if err != nil {
		return err
	}
	validated, _, err := scheduler.Validate(catalog)
	if err != nil {
		return err
	}
	out := generation{
		Schedule:    result.Schedule,
		Unplaceable: result.Unplaceable,
		Conflicts:   scheduler.NewReporter(scheduler.NewChecker(validated, enrollments, weekStart)).ReportConflicts(result.Schedule),
		Warnings:    result.Warnings,
		Stats:       result.Stats,
	}
	logr.Info("generation finished",
		zap.Int("placed", result.Stats.Placed),
		zap.Int("unplaceable", result.Stats.Unplaceable),
		zap.Int("backtracks", result.Stats.Backtracks),
		zap.Bool("timed_out", result.Stats.TimedOut))

	return withOutput(c, func(w io.Writer) error {
		switch format := strings.ToLower(c.String("format")); format {
		case formatTable:
			return writeGenerationTable(w, out)
		case formatJSON:
			return writeJSON(w, out)
		default:
			file, err := service.NewExportService(service.ExportConfig{}, logr).Render(format, catalog, out.Schedule, weekStart, "")
			if err != nil {
				return err
			}
			_, err = w.Write(file.Body)
			return err
		}
	})
}

func conflictsAction(c *cli.Context) error {
	catalog, enrollments, err := loadDataset(c)
	if err != nil {
		return err
	}
	weekStart, err := parseWeekStart(c.String("week-start"))
	if err != nil {
		return err
	}
	raw, err := os.ReadFile(c.String("schedule"))
	if err != nil {
		return fmt.Errorf("read schedule: %w", err)
	}
	var doc generation
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decode schedule %s: %w", c.String("schedule"), err)
	}
	validated, _, err := scheduler.Validate(catalog)
	if err != nil {
		return err
	}
	records := scheduler.NewReporter(scheduler.NewChecker(validated, enrollments, weekStart)).ReportConflicts(doc.Schedule)

	if strings.ToLower(c.String("format")) == formatJSON {
		if err := writeJSON(c.App.Writer, records); err != nil {
			return err
		}
	} else if err := writeConflictTable(c.App.Writer, records); err != nil {
		return err
	}
	if len(records) > 0 {
		return cli.Exit("", 3)
	}
	return nil
}

func parseWeekStart(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, fmt.Errorf("week-start: %w", err)
	}
	if parsed.Weekday() != time.Monday {
		return nil, fmt.Errorf("week-start %s is a %s, not a Monday", raw, parsed.Weekday())
	}
	return &parsed, nil
}

func withOutput(c *cli.Context, write func(io.Writer) error) error {
	path := c.String("out")
	if path == "" {
		return write(c.App.Writer)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(file); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

func writeJSON(w io.Writer, value interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func writeGenerationTable(w io.Writer, out generation) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DAY\tTIME\tSLOT\tCOURSE\tSESSION\tTEACHER\tROOM")
	ordered := out.Schedule.Clone()
	ordered.Sort()
	for _, entry := range ordered {
		fmt.Fprintf(tw, "%s\t%s-%s\t%s\t%s\t%s %d\t%s\t%s\n",
			entry.Day, entry.Start, entry.End, entry.TimeSlotID, entry.CourseID,
			entry.SessionKind, entry.SessionIndex+1, entry.TeacherID, entry.ClassroomID)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\nplaced %d of %d sessions, %d backtracks", out.Stats.Placed, out.Stats.Requests, out.Stats.Backtracks)
	if out.Stats.TimedOut {
		fmt.Fprint(w, " (timed out)")
	}
	fmt.Fprintln(w)
	for _, req := range out.Unplaceable {
		fmt.Fprintf(w, "unplaceable: %s (%s)\n", req.ID, req.Reason)
	}
	for _, warning := range out.Warnings {
		fmt.Fprintln(w, "warning:", warning)
	}
	if len(out.Conflicts) > 0 {
		fmt.Fprintln(w)
		return writeConflictTable(w, out.Conflicts)
	}
	return nil
}

func writeConflictTable(w io.Writer, records []models.ConflictRecord) error {
	if len(records) == 0 {
		fmt.Fprintln(w, "no conflicts")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tDAY\tSLOT\tENTRIES\tDESCRIPTION")
	for _, record := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			record.Kind, record.Day, record.TimeSlotID, strings.Join(record.EntryIDs, ","), record.Description)
	}
	return tw.Flush()
}
