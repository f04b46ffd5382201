package export

import "time"

// Column names one field of a row and its printed heading.
type Column struct {
	Key   string
	Title string
}

// Dataset defines tabular export content.
type Dataset struct {
	Columns []Column
	Rows    []map[string]string
}

// Titles returns the printed headings.
func (d Dataset) Titles() []string {
	titles := make([]string, len(d.Columns))
	for i, col := range d.Columns {
		titles[i] = col.Title
	}
	return titles
}

// Record returns the row values in column order.
func (d Dataset) Record(row map[string]string) []string {
	record := make([]string, len(d.Columns))
	for i, col := range d.Columns {
		record[i] = row[col.Key]
	}
	return record
}

// Grid is a weekly timetable: one column per day, one row per period.
type Grid struct {
	Title   string
	Days    []string
	Periods []string
	// Cells is indexed [period][day]; each cell may hold several sessions.
	Cells [][][]string
}

// NewGrid allocates an empty grid.
func NewGrid(title string, days, periods []string) Grid {
	cells := make([][][]string, len(periods))
	for i := range cells {
		cells[i] = make([][]string, len(days))
	}
	return Grid{Title: title, Days: days, Periods: periods, Cells: cells}
}

// Add appends text to the cell at (period, day).
func (g Grid) Add(period, day int, text string) {
	if period < 0 || period >= len(g.Periods) || day < 0 || day >= len(g.Days) {
		return
	}
	g.Cells[period][day] = append(g.Cells[period][day], text)
}

// Event is one weekly recurring calendar session.
type Event struct {
	UID         string
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	Weeks       int
}
