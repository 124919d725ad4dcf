package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"onboardline/internal/domain"
	"onboardline/internal/engine"
	"onboardline/internal/repo"
	onboardlinesdk "onboardline/sdk/go"
)

func stockCmd() *cobra.Command {
	s := &cobra.Command{Use: "stock", Short: "IT stock lookups"}
	s.AddCommand(&cobra.Command{
		Use:   "check <model>",
		Short: "Check stock for a device model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.CheckStock(args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(res, table.Row{"MODEL", "STATUS", "MISSING"},
					[]table.Row{{res.Model, res.StockStatus, strings.Join(res.MissingItems, ", ")}})
			})
		},
	})
	return s
}

func emailCmd() *cobra.Command {
	m := &cobra.Command{Use: "email", Short: "Send workflow emails"}

	var itEmail, model string
	var missing []string
	var force bool
	low := &cobra.Command{
		Use:   "low-stock <case-id>",
		Short: "Notify IT that a case's device is short on stock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				out, err := e.SendLowStockEmail(ctx, engine.LowStockRequest{
					CaseID:       args[0],
					ITEmail:      itEmail,
					Model:        model,
					MissingItems: missing,
					Force:        force,
				})
				if err != nil {
					return err
				}
				return printEmailOutcome(out)
			})
		},
	}
	low.Flags().StringVar(&itEmail, "to", "", "IT mailbox (defaults to mail.it_default_email)")
	low.Flags().StringVar(&model, "model", "", "device model")
	low.Flags().StringSliceVar(&missing, "missing", nil, "missing items")
	low.Flags().BoolVar(&force, "force", false, "send even if already sent")
	m.AddCommand(low)

	var to string
	var forceWelcome bool
	welcome := &cobra.Command{
		Use:   "welcome <case-id>",
		Short: "Send the candidate welcome email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				out, err := e.SendWelcomeEmail(ctx, args[0], to, forceWelcome)
				if err != nil {
					return err
				}
				return printEmailOutcome(out)
			})
		},
	}
	welcome.Flags().StringVar(&to, "to", "", "recipient (defaults to the wizard email)")
	welcome.Flags().BoolVar(&forceWelcome, "force", false, "send even if already sent")
	m.AddCommand(welcome)
	return m
}

func printEmailOutcome(out domain.EmailOutcome) error {
	to, subject := "", ""
	if out.Email != nil {
		to, subject = out.Email.To, out.Email.Subject
	}
	return printJSONOrTable(out, table.Row{"RESULT", "REASON", "TO", "SUBJECT"},
		[]table.Row{{out.Result, out.Reason, to, subject}})
}

func hrCmd() *cobra.Command {
	h := &cobra.Command{Use: "hr", Short: "Manage HR users and API keys"}

	user := &cobra.Command{Use: "user", Short: "HR users"}
	var email, name, role string
	add := &cobra.Command{
		Use:   "add",
		Short: "Register an HR user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.CreateHRUser(ctx, email, name, role)
				if err != nil {
					return err
				}
				return printJSONOrTable(u, table.Row{"ID", "EMAIL", "NAME", "ROLE"}, []table.Row{{u.ID, u.Email, u.Name, u.Role}})
			})
		},
	}
	add.Flags().StringVar(&email, "email", "", "email address")
	add.Flags().StringVar(&name, "name", "", "display name")
	add.Flags().StringVar(&role, "role", "hr", "role (hr_admin or hr)")
	user.AddCommand(add)
	user.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List HR users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				users, err := e.Repo.ListHRUsers(ctx)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(users))
				for _, u := range users {
					rows = append(rows, table.Row{u.ID, u.Email, u.Name, u.Role, u.CreatedAt})
				}
				return printJSONOrTable(users, table.Row{"ID", "EMAIL", "NAME", "ROLE", "CREATED"}, rows)
			})
		},
	})
	h.AddCommand(user)

	key := &cobra.Command{Use: "apikey", Short: "HR API keys"}
	var owner, keyName string
	create := &cobra.Command{
		Use:   "create",
		Short: "Issue an API key for an HR user; the key is printed once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				k, plain, err := e.CreateAPIKey(ctx, owner, keyName)
				if err != nil {
					return err
				}
				out := map[string]string{"id": k.ID, "actor_id": k.ActorID, "name": k.Name, "key": plain}
				return printJSONOrTable(out, table.Row{"ID", "ACTOR", "NAME", "KEY"}, []table.Row{{k.ID, k.ActorID, k.Name, plain}})
			})
		},
	}
	create.Flags().StringVar(&owner, "user", "", "HR user id")
	create.Flags().StringVar(&keyName, "name", "", "key label")
	key.AddCommand(create)

	var listOwner string
	list := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				keys, err := e.Repo.ListAPIKeys(ctx, listOwner)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(keys))
				for i := range keys {
					keys[i].KeyHash = ""
					rows = append(rows, table.Row{keys[i].ID, keys[i].ActorID, keys[i].Name, keys[i].CreatedAt})
				}
				return printJSONOrTable(keys, table.Row{"ID", "ACTOR", "NAME", "CREATED"}, rows)
			})
		},
	}
	list.Flags().StringVar(&listOwner, "user", "", "only keys of this HR user")
	key.AddCommand(list)
	key.AddCommand(&cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.Repo.DeleteAPIKey(ctx, args[0]); err != nil {
					if errors.Is(err, repo.ErrNotFound) {
						return domain.NotFound("api key %s not found", args[0])
					}
					return err
				}
				fmt.Println("revoked", args[0])
				return nil
			})
		},
	})
	h.AddCommand(key)
	return h
}

func feedCmd() *cobra.Command {
	f := &cobra.Command{Use: "feed", Short: "Follow live case events"}
	var serverURL, apiKey, token, code string
	var exponential bool
	tail := &cobra.Command{
		Use:   "tail <case-id>",
		Short: "Stream a case's events from a running server",
		Long: `Stream a case's events from a running server. Authenticate with an HR API
key (--api-key or ONBOARDLINE_API_KEY), a bearer token, or a candidate application code.
The stream reconnects after drops until interrupted.`,
		Args: cobra.ExactArgs(1),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := onboardlinesdk.New(serverURL)
			client.APIKey = firstSet(apiKey, viper.GetString("api-key"))
			client.BearerToken = token
			if code != "" {
				if _, err := client.CandidateSession(ctx, code); err != nil {
					return err
				}
			}
			sub := client.Subscribe(ctx, args[0], onboardlinesdk.FeedOptions{
				Exponential: exponential,
				OnState: func(state onboardlinesdk.FeedState, err error) {
					if err != nil {
						fmt.Fprintf(os.Stderr, "feed %s: %v\n", state, err)
						return
					}
					fmt.Fprintf(os.Stderr, "feed %s\n", state)
				},
			})
			defer sub.Close()
			for evt := range sub.Events {
				if viper.GetBool("json") {
					if err := printJSON(evt); err != nil {
						return err
					}
					continue
				}
				ts := evt.TS
				if t, err := time.Parse(time.RFC3339Nano, evt.TS); err == nil {
					ts = t.Local().Format("15:04:05")
				}
				fmt.Printf("%5d  %s  %-24s %v\n", evt.Seq, ts, evt.Type, evt.Payload)
			}
			return sub.Err()
		},
	}
	tail.Flags().StringVar(&serverURL, "server", "http://127.0.0.1:8080", "API server URL")
	tail.Flags().StringVar(&apiKey, "api-key", "", "HR API key")
	tail.Flags().StringVar(&token, "token", "", "bearer token")
	tail.Flags().StringVar(&code, "code", "", "candidate application code")
	tail.Flags().BoolVar(&exponential, "exponential", false, "back off exponentially between reconnects")
	f.AddCommand(tail)
	return f
}

func firstSet(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
