package application

import "github.com/ericfisherdev/classbuild/internal/domain/model"

// NewCommitsToProcess selects the commits in batches that are not yet known.
//
// A commit is new when its (project, user, sha) key is absent from existing
// and from every commit already selected in this call. When the same sha
// appears more than once for a student, the occurrence with the latest push
// date wins but keeps the position of the first occurrence. Output follows
// delivery order: batch order, then event order, then commit order.
//
// newToken mints build-request tokens and is only called for projects that
// require explicit submission.
func NewCommitsToProcess(
	project model.Project,
	existing []model.CommitKey,
	batches []model.StudentPushEvents,
	newToken func() string,
) []model.NewCommit {
	known := make(map[model.CommitKey]struct{}, len(existing))
	for _, k := range existing {
		known[k] = struct{}{}
	}

	var selected []model.NewCommit
	index := make(map[model.CommitKey]int)

	for _, batch := range batches {
		for _, event := range batch.Events {
			for _, pc := range event.Commits {
				key := model.CommitKey{ProjectID: project.ID, UserID: batch.Student.UserID, Sha: pc.Sha}
				if _, ok := known[key]; ok {
					continue
				}

				nc := model.NewCommit{
					Event: event,
					Commit: model.Commit{
						ProjectID:  project.ID,
						UserID:     batch.Student.UserID,
						Sha:        pc.Sha,
						Message:    pc.Message,
						PushDate:   event.CreatedAt,
						CommitDate: pc.Timestamp,
						State:      model.NotDispatched{},
					},
				}

				if i, ok := index[key]; ok {
					if nc.Commit.PushDate.After(selected[i].Commit.PushDate) {
						selected[i] = nc
					}
					continue
				}

				index[key] = len(selected)
				selected = append(selected, nc)
			}
		}
	}

	if project.ExplicitSubmissionRequired {
		for i := range selected {
			selected[i].Commit.BuildRequestToken = newToken()
		}
	}

	return selected
}
