package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"onboardline/internal/domain"
	"onboardline/internal/engine"
)

func caseCmd() *cobra.Command {
	c := &cobra.Command{Use: "case", Short: "Manage onboarding cases"}
	c.AddCommand(caseCreateCmd())
	c.AddCommand(caseListCmd())
	c.AddCommand(caseShowCmd())
	c.AddCommand(caseEditCmd())
	c.AddCommand(caseDeleteCmd())
	c.AddCommand(caseCodeCmd())
	c.AddCommand(caseStatusCmd())
	c.AddCommand(caseResumeCmd())
	c.AddCommand(caseOrchestrateCmd())
	return c
}

func caseCreateCmd() *cobra.Command {
	var in engine.CaseInput
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a case",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.CreateCase(ctx, in, actorID())
				if err != nil {
					return err
				}
				return printCase(c)
			})
		},
	}
	cmd.Flags().StringVar(&in.CandidateName, "name", "", "candidate name")
	cmd.Flags().StringVar(&in.Role, "role", "", "job role")
	cmd.Flags().StringVar(&in.Nationality, "nationality", "", "candidate nationality")
	cmd.Flags().StringVar(&in.WorkLocation, "location", "", "work location")
	cmd.Flags().StringVar(&in.StartDate, "start-date", "", "start date (YYYY-MM-DD)")
	cmd.Flags().Float64Var(&in.Salary, "salary", 0, "offered salary")
	cmd.Flags().StringVar(&in.PriorNotes, "notes", "", "HR notes")
	return cmd
}

func caseListCmd() *cobra.Command {
	var status string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cases, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListCases(ctx, status, limit)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, it := range items {
					rows = append(rows, table.Row{it.ID, it.CandidateName, it.Role, it.Status, fmt.Sprintf("%d/7", it.CurrentStepIndex), it.RiskStatus, it.UpdatedAt})
				}
				return printJSONOrTable(items, table.Row{"CASE", "CANDIDATE", "ROLE", "STATUS", "STEP", "RISK", "UPDATED"}, rows)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum cases")
	return cmd
}

func caseShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <case-id>",
		Short: "Show a case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.GetCase(ctx, args[0])
				if err != nil {
					return err
				}
				return printCase(c)
			})
		},
	}
}

func caseEditCmd() *cobra.Command {
	var name, role, nationality, location, startDate, notes string
	var salary float64
	cmd := &cobra.Command{
		Use:   "edit <case-id>",
		Short: "Edit the HR fields of a case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch := engine.CasePatch{
				CandidateName: optionalString(cmd, "name", name),
				Role:          optionalString(cmd, "role", role),
				Nationality:   optionalString(cmd, "nationality", nationality),
				WorkLocation:  optionalString(cmd, "location", location),
				StartDate:     optionalString(cmd, "start-date", startDate),
				PriorNotes:    optionalString(cmd, "notes", notes),
			}
			if cmd.Flags().Changed("salary") {
				patch.Salary = &salary
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.EditCase(ctx, args[0], patch, actorID())
				if err != nil {
					return err
				}
				return printCase(c)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "candidate name")
	cmd.Flags().StringVar(&role, "role", "", "job role")
	cmd.Flags().StringVar(&nationality, "nationality", "", "candidate nationality")
	cmd.Flags().StringVar(&location, "location", "", "work location")
	cmd.Flags().StringVar(&startDate, "start-date", "", "start date (YYYY-MM-DD)")
	cmd.Flags().Float64Var(&salary, "salary", 0, "offered salary")
	cmd.Flags().StringVar(&notes, "notes", "", "HR notes")
	return cmd
}

func caseDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <case-id>",
		Short: "Delete a case and its records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteCase(ctx, args[0], actorID()); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
}

func caseCodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "code <case-id>",
		Short: "Show the case application code, issuing one if none exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				code, err := e.GenerateApplicationCode(ctx, args[0], actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(code, table.Row{"CASE", "CODE", "CREATED"}, []table.Row{{code.CaseID, code.Code, code.CreatedAt}})
			})
		},
	}
}

func caseStatusCmd() *cobra.Command {
	var reason string
	var force bool
	cmd := &cobra.Command{
		Use:   "status <case-id> <status>",
		Short: "Override a case status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.OverrideStatus(ctx, engine.StatusOverride{
					CaseID:  args[0],
					Status:  strings.ToUpper(args[1]),
					Reason:  reason,
					Force:   force,
					ActorID: actorID(),
				})
				if err != nil {
					return err
				}
				return printCase(c)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded on the event")
	cmd.Flags().BoolVar(&force, "force", false, "skip the transition table")
	return cmd
}

func caseResumeCmd() *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "resume <case-id>",
		Short: "Resolve offer concerns and return the case to the wizard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.Resume(ctx, args[0], note, actorID())
				if err != nil {
					return err
				}
				return printCase(c)
			})
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "resolution note")
	return cmd
}

func caseOrchestrateCmd() *cobra.Command {
	var notes string
	cmd := &cobra.Command{
		Use:   "orchestrate <case-id>",
		Short: "Accept a submitted case and run the onboarding agents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.Orchestrate(ctx, engine.OrchestrateRequest{CaseID: args[0], Notes: notes, ActorID: actorID()})
				if err != nil {
					if c.ID != "" {
						_ = printCase(c)
					}
					return err
				}
				return printCase(c)
			})
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "notes handed to the orchestrator")
	return cmd
}

func stepCmd() *cobra.Command {
	s := &cobra.Command{Use: "step", Short: "Drive the candidate wizard"}
	var payload string
	var next int
	submit := &cobra.Command{
		Use:   "submit <case-id> <step-key>",
		Short: "Save a wizard step",
		Long: `Save a wizard step. Step keys: welcome, offer, identity, documents,
workAuth, profile, review. The payload is a JSON object, inline or @file.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := parsePayload(payload)
			if err != nil {
				return err
			}
			sub := engine.StepSubmission{CaseID: args[0], StepKey: args[1], Payload: body, ActorID: actorID()}
			if cmd.Flags().Changed("next") {
				sub.NextStepIndex = &next
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.SubmitStep(ctx, sub)
				if err != nil {
					if c.ID != "" {
						_ = printCase(c)
					}
					return err
				}
				return printCase(c)
			})
		},
	}
	submit.Flags().StringVar(&payload, "payload", "", "step payload as JSON or @file")
	submit.Flags().IntVar(&next, "next", 0, "step index the wizard resumes at")
	s.AddCommand(submit)
	return s
}

func printCase(c domain.Case) error {
	rows := []table.Row{
		{"case", c.ID},
		{"candidate", c.CandidateName},
		{"role", c.Role},
		{"location", c.WorkLocation},
		{"status", c.Status},
		{"step", fmt.Sprintf("%d/7", c.CurrentStepIndex)},
		{"completed", joinSteps(c.CompletedSteps)},
	}
	if c.ApplicationCode != "" {
		rows = append(rows, table.Row{"code", c.ApplicationCode})
	}
	if c.CandidateConcerns != "" {
		rows = append(rows, table.Row{"concerns", c.CandidateConcerns})
	}
	if c.RiskStatus != "" {
		rows = append(rows, table.Row{"risk", c.RiskStatus})
	}
	if c.AgentRun.Error != "" {
		rows = append(rows, table.Row{"agent error", c.AgentRun.Error})
	}
	return printJSONOrTable(c, table.Row{"FIELD", "VALUE"}, rows)
}

func joinSteps(steps []domain.StepKey) string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = string(s)
	}
	return strings.Join(out, ",")
}
