package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	sqliteadapter "github.com/ericfisherdev/classbuild/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/classbuild/internal/domain/model"
	"github.com/ericfisherdev/classbuild/internal/domain/port/driven"
)

// rosterFile is the YAML document accepted by the seed command.
type rosterFile struct {
	Classrooms []rosterClassroom `yaml:"classrooms"`
}

type rosterClassroom struct {
	Name      string          `yaml:"name"`
	GitHubOrg string          `yaml:"github_org"`
	Projects  []rosterProject `yaml:"projects"`
	Students  []rosterStudent `yaml:"students"`
}

type rosterProject struct {
	Name               string   `yaml:"name"`
	ExplicitSubmission bool     `yaml:"explicit_submission"`
	TestClasses        []string `yaml:"test_classes"`
	CopyPaths          []string `yaml:"copy_paths"`
}

type rosterStudent struct {
	UserID     int64    `yaml:"user_id"`
	GitHubTeam string   `yaml:"github_team"`
	FirstName  string   `yaml:"first_name"`
	LastName   string   `yaml:"last_name"`
	Sections   []string `yaml:"sections"`
}

// seedSummary counts what a seed run wrote.
type seedSummary struct {
	Classrooms int
	Projects   int
	Students   int
	Sections   int
}

func newCmdSeed(c *cli) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create or update classrooms, projects and students from a roster file",
		Long: `Create or update classrooms, projects and students from a YAML roster file.
Seeding is idempotent: running it again with the same file changes nothing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := readRosterSource(cmd, file)
			if err != nil {
				return err
			}

			roster, err := parseRoster(data)
			if err != nil {
				return err
			}

			db, err := c.openDB(cmd.Context())
			if err != nil {
				return err
			}

			summary, err := seedRoster(cmd.Context(), sqliteadapter.NewRosterRepo(db), roster)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d classrooms, %d projects, %d students, %d sections\n",
				summary.Classrooms, summary.Projects, summary.Students, summary.Sections)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Roster YAML file, or - for stdin")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func readRosterSource(cmd *cobra.Command, file string) ([]byte, error) {
	if file == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read roster from stdin: %w", err)
		}
		return data, nil
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read roster file: %w", err)
	}
	return data, nil
}

// parseRoster decodes and validates a roster document. Unknown keys are rejected.
func parseRoster(data []byte) (*rosterFile, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var roster rosterFile
	if err := dec.Decode(&roster); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("roster file is empty")
		}
		return nil, fmt.Errorf("parse roster: %w", err)
	}

	if err := roster.validate(); err != nil {
		return nil, err
	}
	return &roster, nil
}

func (r *rosterFile) validate() error {
	var errs []error

	for i, cr := range r.Classrooms {
		if cr.Name == "" {
			errs = append(errs, fmt.Errorf("classroom %d: name is required", i))
			continue
		}

		projects := make(map[string]bool, len(cr.Projects))
		for _, p := range cr.Projects {
			switch {
			case p.Name == "":
				errs = append(errs, fmt.Errorf("classroom %s: project name is required", cr.Name))
			case strings.Contains(p.Name, "_"):
				// Repository names are split at the first underscore.
				errs = append(errs, fmt.Errorf("classroom %s: project %q must not contain '_'", cr.Name, p.Name))
			case projects[p.Name]:
				errs = append(errs, fmt.Errorf("classroom %s: duplicate project %q", cr.Name, p.Name))
			}
			projects[p.Name] = true
		}

		users := make(map[int64]bool, len(cr.Students))
		for _, st := range cr.Students {
			switch {
			case st.UserID <= 0:
				errs = append(errs, fmt.Errorf("classroom %s: student %q has invalid user_id %d", cr.Name, st.GitHubTeam, st.UserID))
			case st.GitHubTeam == "":
				errs = append(errs, fmt.Errorf("classroom %s: student %d: github_team is required", cr.Name, st.UserID))
			case users[st.UserID]:
				errs = append(errs, fmt.Errorf("classroom %s: duplicate student %d", cr.Name, st.UserID))
			}
			users[st.UserID] = true
		}
	}

	return errors.Join(errs...)
}

func seedRoster(ctx context.Context, repo driven.RosterWriter, roster *rosterFile) (seedSummary, error) {
	var summary seedSummary

	for _, cr := range roster.Classrooms {
		classroomID, err := repo.UpsertClassroom(ctx, cr.Name, cr.GitHubOrg)
		if err != nil {
			return summary, err
		}
		summary.Classrooms++

		for _, p := range cr.Projects {
			_, err := repo.UpsertProject(ctx, model.Project{
				ClassroomID:                classroomID,
				Name:                       p.Name,
				ExplicitSubmissionRequired: p.ExplicitSubmission,
				TestClasses:                p.TestClasses,
				CopyPaths:                  p.CopyPaths,
			})
			if err != nil {
				return summary, err
			}
			summary.Projects++
		}

		sections := make(map[string]int64)
		for _, st := range cr.Students {
			membershipID, err := repo.UpsertStudent(ctx, model.Student{
				ClassroomID: classroomID,
				UserID:      st.UserID,
				GitHubTeam:  st.GitHubTeam,
				FirstName:   st.FirstName,
				LastName:    st.LastName,
			})
			if err != nil {
				return summary, err
			}
			summary.Students++

			for _, name := range st.Sections {
				sectionID, ok := sections[name]
				if !ok {
					sectionID, err = repo.UpsertSection(ctx, classroomID, name)
					if err != nil {
						return summary, err
					}
					sections[name] = sectionID
					summary.Sections++
				}
				if err := repo.AddSectionStudent(ctx, sectionID, membershipID); err != nil {
					return summary, err
				}
			}
		}
	}

	return summary, nil
}
