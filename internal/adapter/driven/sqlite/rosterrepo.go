package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ericfisherdev/classbuild/internal/domain/model"
	"github.com/ericfisherdev/classbuild/internal/domain/port/driven"
)

// Compile-time interface satisfaction checks.
var (
	_ driven.RosterStore  = (*RosterRepo)(nil)
	_ driven.RosterWriter = (*RosterRepo)(nil)
)

// RosterRepo is the SQLite implementation of the RosterStore and
// RosterWriter port interfaces.
type RosterRepo struct {
	db *DB
}

// NewRosterRepo creates a new RosterRepo backed by the given DB.
func NewRosterRepo(db *DB) *RosterRepo {
	return &RosterRepo{db: db}
}

const projectColumns = `
	p.id, p.classroom_id, cl.name, cl.github_org, p.name, p.explicit_submission_required`

func scanProject(s scanner) (*model.Project, error) {
	var (
		p        model.Project
		explicit int
	)
	if err := s.Scan(&p.ID, &p.ClassroomID, &p.ClassroomName, &p.GitHubOrg, &p.Name, &explicit); err != nil {
		return nil, err
	}
	p.ExplicitSubmissionRequired = explicit == 1
	return &p, nil
}

// GetProject returns the named project of the named classroom, or nil.
func (r *RosterRepo) GetProject(ctx context.Context, classroom, project string) (*model.Project, error) {
	query := `SELECT ` + projectColumns + `
		FROM projects p
		JOIN classrooms cl ON cl.id = p.classroom_id
		WHERE cl.name = ? AND p.name = ?`

	return r.getProject(ctx, query, classroom, project)
}

// GetProjectByID returns the project with the given ID, or nil.
func (r *RosterRepo) GetProjectByID(ctx context.Context, projectID int64) (*model.Project, error) {
	query := `SELECT ` + projectColumns + `
		FROM projects p
		JOIN classrooms cl ON cl.id = p.classroom_id
		WHERE p.id = ?`

	return r.getProject(ctx, query, projectID)
}

func (r *RosterRepo) getProject(ctx context.Context, query string, args ...any) (*model.Project, error) {
	p, err := scanProject(r.db.Reader.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}

	if err := r.loadProjectLists(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ListSubmissionProjects returns every project requiring explicit submission.
func (r *RosterRepo) ListSubmissionProjects(ctx context.Context) ([]model.Project, error) {
	query := `SELECT ` + projectColumns + `
		FROM projects p
		JOIN classrooms cl ON cl.id = p.classroom_id
		WHERE p.explicit_submission_required = 1
		ORDER BY cl.name, p.name`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list submission projects: %w", err)
	}
	defer rows.Close()

	var projects []model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	rows.Close()

	for i := range projects {
		if err := r.loadProjectLists(ctx, &projects[i]); err != nil {
			return nil, err
		}
	}

	return projects, nil
}

func (r *RosterRepo) loadProjectLists(ctx context.Context, p *model.Project) error {
	var err error
	p.TestClasses, err = r.stringList(ctx,
		`SELECT class_name FROM project_test_classes WHERE project_id = ? ORDER BY ord`, p.ID)
	if err != nil {
		return fmt.Errorf("load test classes of %s: %w", p.Name, err)
	}
	p.CopyPaths, err = r.stringList(ctx,
		`SELECT path FROM project_copy_paths WHERE project_id = ? ORDER BY ord`, p.ID)
	if err != nil {
		return fmt.Errorf("load copy paths of %s: %w", p.Name, err)
	}
	return nil
}

func (r *RosterRepo) stringList(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

const studentColumns = `m.id, m.classroom_id, m.user_id, m.github_team, u.first_name, u.last_name`

func scanStudent(s scanner) (*model.Student, error) {
	var st model.Student
	if err := s.Scan(&st.ID, &st.ClassroomID, &st.UserID, &st.GitHubTeam, &st.FirstName, &st.LastName); err != nil {
		return nil, err
	}
	return &st, nil
}

// GetStudentByTeam returns the classroom member owning the team name, or nil.
func (r *RosterRepo) GetStudentByTeam(ctx context.Context, classroomID int64, team string) (*model.Student, error) {
	query := `SELECT ` + studentColumns + `
		FROM classroom_memberships m
		JOIN users u ON u.id = m.user_id
		WHERE m.classroom_id = ? AND m.github_team = ?`

	return r.getStudent(ctx, query, classroomID, team)
}

// GetStudent returns the user's membership in the classroom, or nil.
func (r *RosterRepo) GetStudent(ctx context.Context, classroomID, userID int64) (*model.Student, error) {
	query := `SELECT ` + studentColumns + `
		FROM classroom_memberships m
		JOIN users u ON u.id = m.user_id
		WHERE m.classroom_id = ? AND m.user_id = ?`

	return r.getStudent(ctx, query, classroomID, userID)
}

func (r *RosterRepo) getStudent(ctx context.Context, query string, args ...any) (*model.Student, error) {
	st, err := scanStudent(r.db.Reader.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get student: %w", err)
	}
	return st, nil
}

// ListStudents returns every member of the classroom ordered by team.
func (r *RosterRepo) ListStudents(ctx context.Context, classroomID int64) ([]model.Student, error) {
	query := `SELECT ` + studentColumns + `
		FROM classroom_memberships m
		JOIN users u ON u.id = m.user_id
		WHERE m.classroom_id = ?
		ORDER BY m.github_team`

	return r.listStudents(ctx, query, classroomID)
}

// GetSection returns the named section of the classroom, or nil.
func (r *RosterRepo) GetSection(ctx context.Context, classroomID int64, section string) (*model.Section, error) {
	const query = `SELECT id, classroom_id, name FROM sections WHERE classroom_id = ? AND name = ?`

	var s model.Section
	err := r.db.Reader.QueryRowContext(ctx, query, classroomID, section).Scan(&s.ID, &s.ClassroomID, &s.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get section %s: %w", section, err)
	}
	return &s, nil
}

// ListSectionStudents returns the members of the section ordered by team.
func (r *RosterRepo) ListSectionStudents(ctx context.Context, sectionID int64) ([]model.Student, error) {
	query := `SELECT ` + studentColumns + `
		FROM section_memberships sm
		JOIN classroom_memberships m ON m.id = sm.membership_id
		JOIN users u ON u.id = m.user_id
		WHERE sm.section_id = ?
		ORDER BY m.github_team`

	return r.listStudents(ctx, query, sectionID)
}

func (r *RosterRepo) listStudents(ctx context.Context, query string, args ...any) ([]model.Student, error) {
	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	defer rows.Close()

	var students []model.Student
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		students = append(students, *st)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate students: %w", err)
	}

	return students, nil
}

// UpsertClassroom creates or updates a classroom by name and returns its ID.
func (r *RosterRepo) UpsertClassroom(ctx context.Context, name, githubOrg string) (int64, error) {
	const query = `
		INSERT INTO classrooms (name, github_org) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET github_org = excluded.github_org
		RETURNING id
	`

	var id int64
	if err := r.db.Writer.QueryRowContext(ctx, query, name, githubOrg).Scan(&id); err != nil {
		return 0, fmt.Errorf("upsert classroom %s: %w", name, err)
	}
	return id, nil
}

// UpsertProject creates or updates a project by (classroom, name), replacing
// its test classes and copy paths, and returns its ID.
func (r *RosterRepo) UpsertProject(ctx context.Context, project model.Project) (int64, error) {
	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback after commit is a no-op.

	const upsert = `
		INSERT INTO projects (classroom_id, name, explicit_submission_required) VALUES (?, ?, ?)
		ON CONFLICT(classroom_id, name) DO UPDATE SET
			explicit_submission_required = excluded.explicit_submission_required
		RETURNING id
	`

	var id int64
	err = tx.QueryRowContext(ctx, upsert,
		project.ClassroomID, project.Name, boolToInt(project.ExplicitSubmissionRequired),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert project %s: %w", project.Name, err)
	}

	lists := []struct {
		table, column string
		values        []string
	}{
		{"project_test_classes", "class_name", project.TestClasses},
		{"project_copy_paths", "path", project.CopyPaths},
	}
	for _, l := range lists {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+l.table+` WHERE project_id = ?`, id); err != nil {
			return 0, fmt.Errorf("clear %s: %w", l.table, err)
		}
		for i, v := range l.values {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO `+l.table+` (project_id, ord, `+l.column+`) VALUES (?, ?, ?)`, id, i, v)
			if err != nil {
				return 0, fmt.Errorf("insert %s: %w", l.table, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return id, nil
}

// UpsertStudent creates or updates the user and the classroom membership and
// returns the membership ID.
func (r *RosterRepo) UpsertStudent(ctx context.Context, student model.Student) (int64, error) {
	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback after commit is a no-op.

	const upsertUser = `
		INSERT INTO users (id, first_name, last_name) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name
	`
	if _, err := tx.ExecContext(ctx, upsertUser, student.UserID, student.FirstName, student.LastName); err != nil {
		return 0, fmt.Errorf("upsert user %d: %w", student.UserID, err)
	}

	const upsertMembership = `
		INSERT INTO classroom_memberships (classroom_id, user_id, github_team) VALUES (?, ?, ?)
		ON CONFLICT(classroom_id, user_id) DO UPDATE SET github_team = excluded.github_team
		RETURNING id
	`
	var id int64
	err = tx.QueryRowContext(ctx, upsertMembership, student.ClassroomID, student.UserID, student.GitHubTeam).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert membership for user %d: %w", student.UserID, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return id, nil
}

// UpsertSection creates the section if needed and returns its ID.
func (r *RosterRepo) UpsertSection(ctx context.Context, classroomID int64, name string) (int64, error) {
	const query = `
		INSERT INTO sections (classroom_id, name) VALUES (?, ?)
		ON CONFLICT(classroom_id, name) DO UPDATE SET name = excluded.name
		RETURNING id
	`

	var id int64
	if err := r.db.Writer.QueryRowContext(ctx, query, classroomID, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("upsert section %s: %w", name, err)
	}
	return id, nil
}

// AddSectionStudent adds a classroom membership to a section. Adding an
// existing member is a no-op.
func (r *RosterRepo) AddSectionStudent(ctx context.Context, sectionID, membershipID int64) error {
	const query = `
		INSERT INTO section_memberships (section_id, membership_id) VALUES (?, ?)
		ON CONFLICT(section_id, membership_id) DO NOTHING
	`

	if _, err := r.db.Writer.ExecContext(ctx, query, sectionID, membershipID); err != nil {
		return fmt.Errorf("add membership %d to section %d: %w", membershipID, sectionID, err)
	}
	return nil
}
