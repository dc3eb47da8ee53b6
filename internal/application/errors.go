package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/ericfisherdev/classbuild/internal/domain/model"
	"github.com/ericfisherdev/classbuild/internal/domain/port/driven"
)

var (
	// ErrInvalidSignature is returned when a webhook delivery fails
	// signature verification.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrMalformedPayload is returned when a signed delivery cannot be decoded.
	ErrMalformedPayload = errors.New("malformed webhook payload")
	ErrProjectNotFound  = errors.New("project not found")
	ErrStudentNotFound  = errors.New("student not found")
	ErrSectionNotFound  = errors.New("section not found")
	ErrBuildNotFound    = errors.New("build not found")
)

func lookupProject(ctx context.Context, roster driven.RosterStore, classroom, name string) (*model.Project, error) {
	project, err := roster.GetProject(ctx, classroom, name)
	if err != nil {
		return nil, fmt.Errorf("get project %s/%s: %w", classroom, name, err)
	}
	if project == nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrProjectNotFound, classroom, name)
	}
	return project, nil
}

func lookupStudent(ctx context.Context, roster driven.RosterStore, project *model.Project, userID int64) (*model.Student, error) {
	student, err := roster.GetStudent(ctx, project.ClassroomID, userID)
	if err != nil {
		return nil, fmt.Errorf("get student %d: %w", userID, err)
	}
	if student == nil {
		return nil, fmt.Errorf("%w: user %d in %s", ErrStudentNotFound, userID, project.ClassroomName)
	}
	return student, nil
}
