package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"testing"

	"github.com/ericfisherdev/classbuild/internal/domain/model"
)

// setupTestDB creates a named shared in-memory SQLite database for testing.
// Writer and reader connections share the same in-memory database via cache=shared.
// A unique name derived from t.Name() ensures isolation between parallel tests.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	// Percent-encode the test name so it's a safe SQLite URI filename component
	// and cannot be misinterpreted as query parameters in the "file:%s?..." DSN.
	safeName := url.PathEscape(t.Name())
	// WAL mode is not applicable to in-memory databases; omit journal_mode pragma.
	dsn := fmt.Sprintf(
		"file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=cache_size(-64000)",
		safeName,
	)

	writer, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("create test db writer: %v", err)
	}
	writer.SetMaxOpenConns(1)
	if err := writer.PingContext(context.Background()); err != nil {
		_ = writer.Close()
		t.Fatalf("ping test db writer: %v", err)
	}

	reader, err := sql.Open("sqlite", dsn)
	if err != nil {
		_ = writer.Close()
		t.Fatalf("create test db reader: %v", err)
	}
	reader.SetMaxOpenConns(4)
	if err := reader.PingContext(context.Background()); err != nil {
		_ = reader.Close()
		_ = writer.Close()
		t.Fatalf("ping test db reader: %v", err)
	}

	db := &DB{Writer: writer, Reader: reader, path: dsn}

	if err := RunMigrations(db.Writer); err != nil {
		_ = db.Close()
		t.Fatalf("run migrations: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })

	return db
}

// seedRoster creates classroom "cs101" with project "lab1" and students
// alice (user 1) and bob (user 2), both in section "A".
func seedRoster(t *testing.T, db *DB) (project model.Project, roster *RosterRepo) {
	t.Helper()
	ctx := context.Background()
	roster = NewRosterRepo(db)

	classroomID, err := roster.UpsertClassroom(ctx, "cs101", "cs101-org")
	if err != nil {
		t.Fatalf("seed classroom: %v", err)
	}

	project = model.Project{
		ClassroomID:                classroomID,
		ClassroomName:              "cs101",
		GitHubOrg:                  "cs101-org",
		Name:                       "lab1",
		ExplicitSubmissionRequired: true,
		TestClasses:                []string{"CalculatorTest", "ParserTest"},
		CopyPaths:                  []string{"src/test"},
	}
	project.ID, err = roster.UpsertProject(ctx, project)
	if err != nil {
		t.Fatalf("seed project: %v", err)
	}

	sectionID, err := roster.UpsertSection(ctx, classroomID, "A")
	if err != nil {
		t.Fatalf("seed section: %v", err)
	}

	for _, st := range []model.Student{
		{ClassroomID: classroomID, UserID: 1, GitHubTeam: "alice", FirstName: "Alice", LastName: "Liddell"},
		{ClassroomID: classroomID, UserID: 2, GitHubTeam: "bob", FirstName: "Bob", LastName: "Builder"},
	} {
		membershipID, err := roster.UpsertStudent(ctx, st)
		if err != nil {
			t.Fatalf("seed student %s: %v", st.GitHubTeam, err)
		}
		if err := roster.AddSectionStudent(ctx, sectionID, membershipID); err != nil {
			t.Fatalf("seed section member %s: %v", st.GitHubTeam, err)
		}
	}

	return project, roster
}
