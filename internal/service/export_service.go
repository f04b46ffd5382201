package service

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-timetable-api/internal/models"
	"github.com/noah-isme/campus-timetable-api/pkg/export"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
)

// Export formats.
const (
	ExportFormatCSV  = "csv"
	ExportFormatPDF  = "pdf"
	ExportFormatXLSX = "xlsx"
	ExportFormatICS  = "ics"
)

const defaultExportWeeks = 16

// ExportConfig tunes rendering.
type ExportConfig struct {
	Timezone      string
	CalendarName  string
	DocumentTitle string
	CSVDelimiter  string
	Weeks         int
}

// ExportFile is a rendered timetable ready to be streamed.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
	ContentType() string
}

type pdfRenderer interface {
	Render(grid export.Grid, subtitle string) ([]byte, error)
	ContentType() string
}

type xlsxRenderer interface {
	Render(grid export.Grid, data export.Dataset) ([]byte, error)
	ContentType() string
}

type icsRenderer interface {
	Render(name, timezone string, events []export.Event) ([]byte, error)
	ContentType() string
}

// ExportService turns schedules into downloadable documents.
type ExportService struct {
	csv    csvRenderer
	pdf    pdfRenderer
	xlsx   xlsxRenderer
	ics    icsRenderer
	cfg    ExportConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewExportService constructs an ExportService with the default renderers.
func NewExportService(cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Weeks <= 0 {
		cfg.Weeks = defaultExportWeeks
	}
	if cfg.DocumentTitle == "" {
		cfg.DocumentTitle = "Campus Timetable"
	}
	if cfg.CalendarName == "" {
		cfg.CalendarName = cfg.DocumentTitle
	}
	return &ExportService{
		csv:    export.NewCSVExporter(cfg.CSVDelimiter),
		pdf:    export.NewPDFExporter(),
		xlsx:   export.NewXLSXExporter(),
		ics:    export.NewICSExporter(),
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Render produces the schedule in the requested format. label names the filtered view, e.g. a teacher id.
func (s *ExportService) Render(format string, catalog models.Catalog, schedule models.Schedule, weekStart *time.Time, label string) (*ExportFile, error) {
	names := newCatalogNames(catalog)
	filename := exportFilename(label, format)
	subtitle := label
	if subtitle == "" {
		subtitle = "All departments"
	}

	var (
		body        []byte
		contentType string
		err         error
	)
	switch strings.ToLower(format) {
	case ExportFormatCSV:
		body, err = s.csv.Render(names.dataset(schedule))
		contentType = s.csv.ContentType()
	case ExportFormatPDF:
		body, err = s.pdf.Render(names.grid(s.cfg.DocumentTitle, catalog, schedule), subtitle)
		contentType = s.pdf.ContentType()
	case ExportFormatXLSX:
		body, err = s.xlsx.Render(names.grid(s.cfg.DocumentTitle, catalog, schedule), names.dataset(schedule))
		contentType = s.xlsx.ContentType()
	case ExportFormatICS:
		var events []export.Event
		events, err = s.events(names, schedule, weekStart)
		if err == nil {
			body, err = s.ics.Render(s.cfg.CalendarName, s.cfg.Timezone, events)
		}
		contentType = s.ics.ContentType()
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render timetable export")
	}
	s.logger.Debug("timetable exported", zap.String("format", format), zap.Int("entries", len(schedule)), zap.Int("bytes", len(body)))
	return &ExportFile{Filename: filename, ContentType: contentType, Body: body}, nil
}

func (s *ExportService) events(names catalogNames, schedule models.Schedule, weekStart *time.Time) ([]export.Event, error) {
	loc := time.UTC
	if s.cfg.Timezone != "" {
		loaded, err := time.LoadLocation(s.cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone %s: %w", s.cfg.Timezone, err)
		}
		loc = loaded
	}
	start := nextMonday(s.now().In(loc))
	if weekStart != nil {
		start = *weekStart
	}

	events := make([]export.Event, 0, len(schedule))
	for _, entry := range schedule {
		date := entry.Day.Date(start)
		midnight := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)
		events = append(events, export.Event{
			UID:         fmt.Sprintf("%s@campus-timetable", entry.ID),
			Summary:     fmt.Sprintf("%s %s", names.courseCode(entry.CourseID), entry.SessionKind),
			Description: fmt.Sprintf("%s with %s", names.courseName(entry.CourseID), names.teacher(entry.TeacherID)),
			Location:    names.classroom(entry.ClassroomID),
			Start:       midnight.Add(time.Duration(entry.Start) * time.Minute),
			End:         midnight.Add(time.Duration(entry.End) * time.Minute),
			Weeks:       s.cfg.Weeks,
		})
	}
	return events, nil
}

func nextMonday(now time.Time) time.Time {
	offset := (8 - int(now.Weekday())) % 7
	if offset == 0 {
		offset = 7
	}
	day := now.AddDate(0, 0, offset)
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, now.Location())
}

func exportFilename(label, format string) string {
	name := "timetable"
	if label != "" {
		name += "-" + strings.NewReplacer(" ", "-", "/", "-").Replace(strings.ToLower(label))
	}
	return name + "." + strings.ToLower(format)
}

type catalogNames struct {
	courses  map[string]models.Course
	teachers map[string]string
	rooms    map[string]string
}

func newCatalogNames(catalog models.Catalog) catalogNames {
	names := catalogNames{
		courses:  make(map[string]models.Course, len(catalog.Courses)),
		teachers: make(map[string]string, len(catalog.Teachers)),
		rooms:    make(map[string]string, len(catalog.Classrooms)),
	}
	for _, course := range catalog.Courses {
		names.courses[course.ID] = course
	}
	for _, teacher := range catalog.Teachers {
		names.teachers[teacher.ID] = teacher.Name
	}
	for _, room := range catalog.Classrooms {
		names.rooms[room.ID] = room.Name
	}
	return names
}

func (n catalogNames) courseCode(id string) string {
	if course, ok := n.courses[id]; ok && course.Code != "" {
		return course.Code
	}
	return id
}

func (n catalogNames) courseName(id string) string {
	if course, ok := n.courses[id]; ok && course.Name != "" {
		return course.Name
	}
	return id
}

func (n catalogNames) teacher(id string) string {
	if name, ok := n.teachers[id]; ok && name != "" {
		return name
	}
	return id
}

func (n catalogNames) classroom(id string) string {
	if name, ok := n.rooms[id]; ok && name != "" {
		return name
	}
	return id
}

var exportColumns = []export.Column{
	{Key: "day", Title: "Day"},
	{Key: "start", Title: "Start"},
	{Key: "end", Title: "End"},
	{Key: "slot", Title: "Slot"},
	{Key: "course", Title: "Course"},
	{Key: "title", Title: "Title"},
	{Key: "session", Title: "Session"},
	{Key: "teacher", Title: "Teacher"},
	{Key: "classroom", Title: "Classroom"},
	{Key: "department", Title: "Department"},
	{Key: "rescheduled", Title: "Rescheduled"},
}

func (n catalogNames) dataset(schedule models.Schedule) export.Dataset {
	ordered := schedule.Clone()
	ordered.Sort()
	rows := make([]map[string]string, 0, len(ordered))
	for _, entry := range ordered {
		moved := ""
		if entry.IsRescheduled() {
			day, slot := entry.Original()
			moved = fmt.Sprintf("from %s %s", day, slot)
		}
		rows = append(rows, map[string]string{
			"day":         string(entry.Day),
			"start":       entry.Start.String(),
			"end":         entry.End.String(),
			"slot":        entry.TimeSlotID,
			"course":      n.courseCode(entry.CourseID),
			"title":       n.courseName(entry.CourseID),
			"session":     fmt.Sprintf("%s %d", entry.SessionKind, entry.SessionIndex+1),
			"teacher":     n.teacher(entry.TeacherID),
			"classroom":   n.classroom(entry.ClassroomID),
			"department":  entry.DepartmentID,
			"rescheduled": moved,
		})
	}
	return export.Dataset{Columns: exportColumns, Rows: rows}
}

func (n catalogNames) grid(title string, catalog models.Catalog, schedule models.Schedule) export.Grid {
	days := catalog.WorkingDays()
	dayIndex := make(map[models.Weekday]int, len(days))
	dayNames := make([]string, len(days))
	for i, day := range days {
		dayIndex[day] = i
		dayNames[i] = string(day)
	}

	slots := append([]models.TimeSlot(nil), catalog.TimeSlots...)
	sort.Slice(slots, func(i, j int) bool {
		if slots[i].Start != slots[j].Start {
			return slots[i].Start < slots[j].Start
		}
		return slots[i].ID < slots[j].ID
	})
	slotIndex := make(map[string]int, len(slots))
	periods := make([]string, len(slots))
	for i, slot := range slots {
		slotIndex[slot.ID] = i
		periods[i] = fmt.Sprintf("%s %s-%s", slot.ID, slot.Start, slot.End)
	}

	grid := export.NewGrid(title, dayNames, periods)
	ordered := schedule.Clone()
	ordered.Sort()
	for _, entry := range ordered {
		period, okSlot := slotIndex[entry.TimeSlotID]
		day, okDay := dayIndex[entry.Day]
		if !okSlot || !okDay {
			continue
		}
		grid.Add(period, day, fmt.Sprintf("%s (%s) %s / %s",
			n.courseCode(entry.CourseID), entry.SessionKind, n.classroom(entry.ClassroomID), n.teacher(entry.TeacherID)))
	}
	return grid
}
