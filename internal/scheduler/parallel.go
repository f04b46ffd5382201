package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/campus-timetable-api/internal/models"
)

type partition struct {
	departments []string
	plans       map[string][]*requestPlan
}

// runPartitioned searches departments concurrently. Departments that share no teacher,
// candidate classroom or enrolled student get private boards; connected departments share
// one locked board and their relative placement order depends on scheduling.
func runPartitioned(ctx context.Context, checker *Checker, plans []*requestPlan, in Input, opts Options) ([]*searchOutcome, int, []string, error) {
	partitions := partitionDepartments(plans, in.Enrollments)
	var warnings []string

	type job struct {
		board board
		plans []*requestPlan
	}
	var jobs []job
	for _, p := range partitions {
		if len(p.departments) == 1 {
			b := seededBoard(newLocalBoard(checker), in.Reserved)
			jobs = append(jobs, job{board: b, plans: p.plans[p.departments[0]]})
			continue
		}
		warnings = append(warnings, fmt.Sprintf(
			"departments %s share resources and were placed concurrently on one board; rerun sequentially for a reproducible result",
			strings.Join(p.departments, ", ")))
		shared := seededBoard(newSharedBoard(checker), in.Reserved)
		for _, dept := range p.departments {
			jobs = append(jobs, job{board: shared, plans: p.plans[dept]})
		}
	}

	outcomes := make([]*searchOutcome, len(jobs))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, j := range jobs {
		i, j := i, j
		group.Go(func() error {
			outcome, err := newSearch(j.board, j.plans, opts).run(groupCtx)
			if err != nil {
				return err
			}
			outcomes[i] = outcome
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, 0, nil, err
	}
	return outcomes, len(partitions), warnings, nil
}

// partitionDepartments groups departments connected through teachers, classrooms or students.
func partitionDepartments(plans []*requestPlan, enrollments models.EnrollmentSets) []partition {
	byDept := make(map[string][]*requestPlan)
	for _, plan := range plans {
		byDept[plan.DepartmentID] = append(byDept[plan.DepartmentID], plan)
	}

	parent := make(map[string]string, len(byDept))
	var find func(string) string
	find = func(x string) string {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(a, b string) {
		ra, rb := find(a), find(b)
		if ra == rb {
			return
		}
		if ra < rb {
			parent[rb] = ra
		} else {
			parent[ra] = rb
		}
	}
	for dept := range byDept {
		parent[dept] = dept
	}

	owner := make(map[string]string)
	claim := func(resource, dept string) {
		if first, ok := owner[resource]; ok {
			union(first, dept)
			return
		}
		owner[resource] = dept
	}
	for dept, deptPlans := range byDept {
		for _, plan := range deptPlans {
			claim("teacher:"+plan.TeacherID, dept)
			for _, student := range enrollments[plan.CourseID] {
				claim("student:"+student, dept)
			}
			for _, option := range plan.domain {
				claim("room:"+option.entry.ClassroomID, dept)
			}
		}
	}

	grouped := make(map[string][]string)
	for dept := range byDept {
		root := find(dept)
		grouped[root] = append(grouped[root], dept)
	}
	partitions := make([]partition, 0, len(grouped))
	for _, depts := range grouped {
		sort.Strings(depts)
		p := partition{departments: depts, plans: make(map[string][]*requestPlan, len(depts))}
		for _, dept := range depts {
			p.plans[dept] = byDept[dept]
		}
		partitions = append(partitions, p)
	}
	sort.Slice(partitions, func(i, j int) bool {
		return partitions[i].departments[0] < partitions[j].departments[0]
	})
	return partitions
}
