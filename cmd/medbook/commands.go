package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/wolfman30/medbook-agent/internal/app/bootstrap"
	"github.com/wolfman30/medbook-agent/internal/appointments"
	"github.com/wolfman30/medbook-agent/internal/bookings"
	"github.com/wolfman30/medbook-agent/internal/conversation"
	"github.com/wolfman30/medbook-agent/internal/tools"
)

func (c *cli) overrides() bootstrap.Overrides {
	return bootstrap.Overrides{
		Store:      c.store,
		LLM:        c.llm,
		Registerer: prometheus.NewRegistry(),
	}
}

func (c *cli) chatCmd() *cobra.Command {
	var as string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the scheduling assistant as a seeded user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			user, err := resolveUser(ctx, c.store, as)
			if err != nil {
				return err
			}
			app, err := bootstrap.BuildApp(ctx, c.cfg, c.overrides(), c.logger)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			caller := tools.Caller{UserID: user.ID, Role: user.Role, Name: user.FullName}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Chatting as %s (%s) via %s. Type /quit to leave.\n", user.FullName, user.Role, app.Provider)

			var history []conversation.ChatMessage
			scanner := bufio.NewScanner(cmd.InOrStdin())
			for {
				fmt.Fprint(out, "you> ")
				if !scanner.Scan() {
					fmt.Fprintln(out)
					return scanner.Err()
				}
				line := strings.TrimSpace(scanner.Text())
				switch line {
				case "":
					continue
				case "/quit", "/exit":
					return nil
				}

				resp, err := app.Agent.Run(ctx, conversation.ChatRequest{Message: line, History: history, Caller: caller})
				if err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					fmt.Fprintf(out, "error: %v\n", err)
					continue
				}
				for _, tc := range resp.ToolCalls {
					c.logger.Debug("tool call", "tool", tc.Name, "error", tc.Err)
				}
				fmt.Fprintf(out, "assistant> %s\n", resp.Answer)
				history = append(history,
					conversation.ChatMessage{Role: conversation.ChatRoleUser, Content: line},
					conversation.ChatMessage{Role: conversation.ChatRoleAssistant, Content: resp.Answer},
				)
			}
		},
	}
	cmd.Flags().StringVar(&as, "as", "pat-kumar", "user id or name to chat as")
	return cmd
}

func (c *cli) slotsCmd() *cobra.Command {
	var doctor, date string
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "List a doctor's free slots for a day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			doc, err := resolveUser(ctx, c.store, doctor)
			if err != nil {
				return err
			}
			if doc.Role != appointments.RoleDoctor {
				return fmt.Errorf("%s is not a doctor", doc.FullName)
			}
			app, err := bootstrap.BuildCore(ctx, c.cfg, c.overrides(), c.logger)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			if date == "" {
				date = app.Hours.Today().Format("2006-01-02")
			}
			return writeJSON(cmd, app.Availability.FreeSlots(ctx, doc.ID, date))
		},
	}
	cmd.Flags().StringVar(&doctor, "doctor", "", "doctor id or name")
	cmd.Flags().StringVar(&date, "date", "", "clinic-local date (YYYY-MM-DD), defaults to today")
	_ = cmd.MarkFlagRequired("doctor")
	return cmd
}

func (c *cli) bookCmd() *cobra.Command {
	var doctor, patient, start, symptoms string
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Book a slot directly, bypassing the assistant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			doc, err := resolveUser(ctx, c.store, doctor)
			if err != nil {
				return err
			}
			pat, err := resolveUser(ctx, c.store, patient)
			if err != nil {
				return err
			}
			app, err := bootstrap.BuildCore(ctx, c.cfg, c.overrides(), c.logger)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			out := app.Bookings.Book(ctx, bookings.BookingRequest{
				DoctorID:  doc.ID,
				PatientID: pat.ID,
				StartAt:   start,
				Symptoms:  symptoms,
			})
			if err := writeJSON(cmd, out); err != nil {
				return err
			}
			if out.Kind != bookings.KindSuccess {
				return errors.New(out.Message)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&doctor, "doctor", "", "doctor id or name")
	cmd.Flags().StringVar(&patient, "patient", "", "patient id or name")
	cmd.Flags().StringVar(&start, "start", "", "slot start (iso_start from the slots listing)")
	cmd.Flags().StringVar(&symptoms, "symptoms", "", "reason for the visit")
	_ = cmd.MarkFlagRequired("doctor")
	_ = cmd.MarkFlagRequired("patient")
	_ = cmd.MarkFlagRequired("start")
	return cmd
}

func (c *cli) usersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List the seeded doctors and patients",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, role := range []appointments.Role{appointments.RoleDoctor, appointments.RolePatient} {
				users, err := c.store.ListUsersByRole(cmd.Context(), role)
				if err != nil {
					return err
				}
				for _, u := range users {
					fmt.Fprintf(out, "%-8s %-12s %s\n", u.Role, u.ID, u.FullName)
				}
			}
			return nil
		},
	}
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
