package driven

import (
	"context"

	"github.com/ericfisherdev/classbuild/internal/domain/model"
)

// RosterStore defines the driven port for reading classrooms, projects,
// students and sections. Lookups return nil, nil when nothing matches.
type RosterStore interface {
	GetProject(ctx context.Context, classroom, project string) (*model.Project, error)
	GetProjectByID(ctx context.Context, projectID int64) (*model.Project, error)
	// ListSubmissionProjects returns every project that requires explicit submission.
	ListSubmissionProjects(ctx context.Context) ([]model.Project, error)
	GetStudentByTeam(ctx context.Context, classroomID int64, team string) (*model.Student, error)
	GetStudent(ctx context.Context, classroomID, userID int64) (*model.Student, error)
	ListStudents(ctx context.Context, classroomID int64) ([]model.Student, error)
	GetSection(ctx context.Context, classroomID int64, section string) (*model.Section, error)
	ListSectionStudents(ctx context.Context, sectionID int64) ([]model.Student, error)
}

// RosterWriter defines the driven port for maintaining the roster.
type RosterWriter interface {
	UpsertClassroom(ctx context.Context, name, githubOrg string) (int64, error)
	UpsertProject(ctx context.Context, project model.Project) (int64, error)
	UpsertStudent(ctx context.Context, student model.Student) (int64, error)
	UpsertSection(ctx context.Context, classroomID int64, name string) (int64, error)
	AddSectionStudent(ctx context.Context, sectionID, membershipID int64) error
}
