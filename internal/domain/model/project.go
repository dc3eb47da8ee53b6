package model

import "strings"

// Project is a classroom assignment whose student repositories are built and tested.
type Project struct {
	ID                         int64
	ClassroomID                int64
	ClassroomName              string
	GitHubOrg                  string // Organization owning the classroom's repositories.
	Name                       string
	ExplicitSubmissionRequired bool     // Builds are only dispatched when true.
	TestClasses                []string // Test classes run by the build job, in order.
	CopyPaths                  []string // Template files copied over the submission before building.
}

// RepoName returns the student repository name for the given team.
func (p Project) RepoName(team string) string {
	return p.Name + "_" + team
}

// TemplateRepoName returns the name of the project's template repository.
func (p Project) TemplateRepoName() string {
	return p.Name + "_Template"
}

// ParseRepoName splits a student repository name of the form {project}_{team}.
// The split happens at the first underscore.
func ParseRepoName(repoName string) (project, team string, ok bool) {
	project, team, ok = strings.Cut(repoName, "_")
	if !ok || project == "" || team == "" {
		return "", "", false
	}
	return project, team, true
}

// Student is a user's membership in a classroom, carrying the team name that
// identifies the user's repositories.
type Student struct {
	ID          int64 // Classroom membership ID.
	ClassroomID int64
	UserID      int64
	GitHubTeam  string
	FirstName   string
	LastName    string
}

// Section is a named group of students within a classroom.
type Section struct {
	ID          int64
	ClassroomID int64
	Name        string
}
