package scheduler

import (
	"github.com/lib/pq"

	"github.com/noah-isme/campus-timetable-api/internal/models"
)

func clock(raw string) models.ClockTime {
	return models.MustClock(raw)
}

func sessions(kinds ...models.SessionKind) models.SessionRequirements {
	counts := map[models.SessionKind]int{}
	var order []models.SessionKind
	for _, kind := range kinds {
		if counts[kind] == 0 {
			order = append(order, kind)
		}
		counts[kind]++
	}
	out := make(models.SessionRequirements, 0, len(order))
	for _, kind := range order {
		out = append(out, models.SessionRequirement{Kind: kind, Count: counts[kind]})
	}
	return out
}

// campusCatalog is a small two-department dataset with enough room for a conflict-free week.
func campusCatalog() models.Catalog {
	return models.Catalog{
		Departments: []models.Department{
			{ID: "cs", Name: "Computer Science", Code: "CS"},
			{ID: "math", Name: "Mathematics", Code: "MATH"},
		},
		Teachers: []models.Teacher{
			{ID: "t-ada", Name: "Ada", DepartmentIDs: pq.StringArray{"cs"}, PriorityDays: pq.StringArray{"Monday", "Wednesday"}, PriorityStart: clock("08:00"), PriorityEnd: clock("12:30")},
			{ID: "t-alan", Name: "Alan", DepartmentIDs: pq.StringArray{"cs"}},
			{ID: "t-emmy", Name: "Emmy", DepartmentIDs: pq.StringArray{"math"}, PriorityDays: pq.StringArray{"Tuesday"}},
		},
		Classrooms: []models.Classroom{
			{ID: "r-101", Name: "Hall 101", Building: "A", Capacity: 40, Type: models.RoomTypeLecture},
			{ID: "r-201", Name: "Hall 201", Building: "A", Capacity: 90, Type: models.RoomTypeLecture},
			{ID: "r-lab", Name: "Systems Lab", Building: "B", Capacity: 30, Type: models.RoomTypeLab},
			{ID: "r-sem", Name: "Seminar Room", Building: "C", Capacity: 25, Type: models.RoomTypeSeminar},
		},
		TimeSlots: []models.TimeSlot{
			{ID: "p1", Start: clock("08:00"), End: clock("09:30"), Label: "Period 1"},
			{ID: "p2", Start: clock("09:30"), End: clock("11:00"), Label: "Period 2"},
			{ID: "p3", Start: clock("11:00"), End: clock("12:30"), Label: "Period 3"},
			{ID: "p4", Start: clock("13:30"), End: clock("15:00"), Label: "Period 4"},
		},
		Breaks: []models.Break{
			{ID: "b-friday", Name: "Friday prayers", Day: "Friday", Start: clock("11:00"), End: clock("13:00")},
		},
		Courses: []models.Course{
			{ID: "cs101", Code: "CS101", Name: "Programming", DepartmentID: "cs", Semester: 1, Credits: 4, TeacherID: "t-ada", Sessions: sessions(models.SessionLecture, models.SessionLecture, models.SessionLab), ExpectedEnrollment: 28},
			{ID: "cs102", Code: "CS102", Name: "Discrete Structures", DepartmentID: "cs", Semester: 1, Credits: 3, TeacherID: "t-alan", Sessions: sessions(models.SessionLecture, models.SessionLecture), ExpectedEnrollment: 35},
			{ID: "cs201", Code: "CS201", Name: "Data Structures", DepartmentID: "cs", Semester: 3, Credits: 3, TeacherID: "t-ada", Prerequisites: pq.StringArray{"cs101"}, Sessions: sessions(models.SessionLecture, models.SessionTutorial), ExpectedEnrollment: 22},
			{ID: "math101", Code: "MATH101", Name: "Calculus", DepartmentID: "math", Semester: 1, Credits: 4, TeacherID: "t-emmy", Sessions: sessions(models.SessionLecture, models.SessionLecture, models.SessionLecture), ExpectedEnrollment: 75},
		},
	}
}

// singleRoomCatalog has one teacher, one classroom and two Monday slots.
func singleRoomCatalog(courseCount int) models.Catalog {
	catalog := models.Catalog{
		Departments: []models.Department{{ID: "cs", Name: "Computer Science"}},
		Teachers:    []models.Teacher{{ID: "t1", Name: "Grace", DepartmentIDs: pq.StringArray{"cs"}}},
		Classrooms:  []models.Classroom{{ID: "r1", Name: "Room 1", Capacity: 50, Type: models.RoomTypeLecture}},
		TimeSlots: []models.TimeSlot{
			{ID: "s1", Start: clock("08:00"), End: clock("09:00")},
			{ID: "s2", Start: clock("09:00"), End: clock("10:00")},
		},
		Days: []models.Weekday{models.Monday},
	}
	for i := 1; i <= courseCount; i++ {
		catalog.Courses = append(catalog.Courses, models.Course{
			ID:                 "c" + string(rune('0'+i)),
			DepartmentID:       "cs",
			Semester:           i,
			TeacherID:          "t1",
			ExpectedEnrollment: 20,
		})
	}
	return catalog
}
