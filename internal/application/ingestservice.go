package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ericfisherdev/classbuild/internal/domain/model"
	"github.com/ericfisherdev/classbuild/internal/domain/port/driven"
)

// IngestService turns webhook push deliveries into commits and build jobs.
type IngestService struct {
	decoder   driven.WebhookDecoder
	roster    driven.RosterStore
	commits   driven.CommitStore
	processor *PushProcessor
	clock     Clock
	newToken  func() string
}

// NewIngestService creates an IngestService. newToken mints build-request tokens.
func NewIngestService(
	decoder driven.WebhookDecoder,
	roster driven.RosterStore,
	commits driven.CommitStore,
	processor *PushProcessor,
	clock Clock,
	newToken func() string,
) *IngestService {
	return &IngestService{
		decoder:   decoder,
		roster:    roster,
		commits:   commits,
		processor: processor,
		clock:     clock,
		newToken:  newToken,
	}
}

// VerifyDelivery checks the webhook signature without decoding the payload.
func (s *IngestService) VerifyDelivery(payload []byte, signature string) error {
	if !s.decoder.Verify(payload, signature) {
		return ErrInvalidSignature
	}
	return nil
}

// OnRepositoryPush handles one push delivery for the named classroom.
// Pushes to branches other than the default branch are ignored and yield an
// empty report. The push date of every commit is the time of receipt.
func (s *IngestService) OnRepositoryPush(ctx context.Context, classroom string, payload []byte, signature string) (ProcessReport, error) {
	if err := s.VerifyDelivery(payload, signature); err != nil {
		slog.Warn("rejected push delivery", "classroom", classroom)
		return ProcessReport{}, err
	}

	event, err := s.decoder.DecodePush(payload)
	if err != nil {
		return ProcessReport{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	event.CreatedAt = s.clock.Now()

	if !event.IsDefaultBranchPush() {
		slog.Debug("ignoring push to non-default branch",
			"repo", event.RepoName,
			"ref", event.Ref,
			"default_branch", event.DefaultBranch,
		)
		return ProcessReport{}, nil
	}

	projectName, team, ok := model.ParseRepoName(event.RepoName)
	if !ok {
		return ProcessReport{}, fmt.Errorf("%w: repository %q is not a project repository", ErrProjectNotFound, event.RepoName)
	}

	project, err := lookupProject(ctx, s.roster, classroom, projectName)
	if err != nil {
		return ProcessReport{}, err
	}

	student, err := s.roster.GetStudentByTeam(ctx, project.ClassroomID, team)
	if err != nil {
		return ProcessReport{}, fmt.Errorf("get student for team %s: %w", team, err)
	}
	if student == nil {
		return ProcessReport{}, fmt.Errorf("%w: team %s in %s", ErrStudentNotFound, team, classroom)
	}

	existing, err := s.commits.ListKeysForUser(ctx, project.ID, student.UserID)
	if err != nil {
		return ProcessReport{}, fmt.Errorf("list commits for user %d: %w", student.UserID, err)
	}

	batch := []model.StudentPushEvents{{Student: *student, Events: []model.PushEvent{event}}}
	newCommits := NewCommitsToProcess(*project, existing, batch, s.newToken)

	return s.processor.Process(ctx, "webhook", *project, newCommits)
}
