package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"github.com/Aaditya4007/AI-interviewer/internal/client"
	"github.com/Aaditya4007/AI-interviewer/internal/config"
	"github.com/Aaditya4007/AI-interviewer/internal/joinflow"
	"github.com/Aaditya4007/AI-interviewer/internal/naming"
	"github.com/Aaditya4007/AI-interviewer/internal/tokens"
)

const (
	envGatewayURL     = "ROOM_CLI_GATEWAY_URL"
	defaultGatewayURL = "http://localhost:8080/api/livekit"
	defaultAdmin      = "admin-interviewer"
)

type rootOptions struct {
	gatewayURL string
	timeout    time.Duration
	stdin      io.Reader
	stdout     io.Writer
	now        func() time.Time
}

func (o *rootOptions) client() (*client.Client, error) {
	return client.New(o.gatewayURL)
}

func newRootCommand(stdin io.Reader, stdout io.Writer) *cobra.Command {
	opts := &rootOptions{stdin: stdin, stdout: stdout, now: time.Now}

	cmd := &cobra.Command{
		Use:           "room-cli",
		Short:         "Operate the interview room gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(stdout)
	cmd.PersistentFlags().StringVar(&opts.gatewayURL, "gateway", config.EnvOrDefault(envGatewayURL, defaultGatewayURL), "gateway base url including any path prefix")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "request timeout")

	cmd.AddCommand(newCreateRoomCommand(opts))
	cmd.AddCommand(newTokenCommand(opts))
	cmd.AddCommand(newRoomsCommand(opts))
	cmd.AddCommand(newLinkCommand(opts))
	cmd.AddCommand(newJoinCommand(opts))
	cmd.AddCommand(newInspectCommand(opts))
	return cmd
}

func newCreateRoomCommand(opts *rootOptions) *cobra.Command {
	var admin string
	cmd := &cobra.Command{
		Use:   "create-room <room-name>",
		Short: "Provision a room and print the admin and agent tokens",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := contextWithTimeout(cmd, opts.timeout)
			defer cancel()
			result, err := c.CreateRoom(ctx, args[0], admin)
			if err != nil {
				return err
			}
			return writeJSON(opts.stdout, result)
		},
	}
	cmd.Flags().StringVar(&admin, "admin", defaultAdmin, "admin identity the room is created for")
	return cmd
}

func newTokenCommand(opts *rootOptions) *cobra.Command {
	var isAdmin bool
	cmd := &cobra.Command{
		Use:   "token <room-name> <identity>",
		Short: "Request a join token",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := contextWithTimeout(cmd, opts.timeout)
			defer cancel()
			result, err := c.GenerateToken(ctx, args[0], args[1], isAdmin)
			if err != nil {
				return err
			}
			return writeJSON(opts.stdout, result)
		},
	}
	cmd.Flags().BoolVar(&isAdmin, "admin", false, "request an admin grant")
	return cmd
}

func newRoomsCommand(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "rooms",
		Short: "List active rooms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := contextWithTimeout(cmd, opts.timeout)
			defer cancel()
			rooms, err := c.ListRooms(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(opts.stdout, rooms)
			}
			if len(rooms) == 0 {
				_, err := fmt.Fprintln(opts.stdout, "No active interview rooms.")
				return err
			}
			tw := tabwriter.NewWriter(opts.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSID\tPARTICIPANTS\tCREATED")
			for _, room := range rooms {
				created := "-"
				if t := room.Created(); !t.IsZero() {
					created = t.Format(time.RFC3339)
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", room.Name, room.SID, room.NumParticipants, created)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print raw json")
	return cmd
}

func newLinkCommand(opts *rootOptions) *cobra.Command {
	var frontendURL, admin string
	cmd := &cobra.Command{
		Use:   "link <candidate-id>",
		Short: "Generate an interview link for a candidate",
		Long: `Generate an interview link for a candidate.

The room is not created until someone opens the link. The printed admin link joins
the same room with the admin grant.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			candidate := strings.TrimSpace(args[0])
			if candidate == "" {
				return errors.New("candidate id is required")
			}
			base := strings.TrimSuffix(strings.TrimSpace(frontendURL), "/")
			if base == "" {
				return errors.New("frontend url is required")
			}
			room := naming.ProspectiveRoomName(candidate, opts.now())
			query := url.Values{"identity": {admin}, "admin": {"true"}}
			fmt.Fprintf(opts.stdout, "room:      %s\n", room)
			fmt.Fprintf(opts.stdout, "candidate: %s/join-interview/%s\n", base, url.PathEscape(room))
			_, err := fmt.Fprintf(opts.stdout, "admin:     %s/room/%s?%s\n", base, url.PathEscape(room), query.Encode())
			return err
		},
	}
	cmd.Flags().StringVar(&frontendURL, "frontend-url", config.EnvOrDefault(config.EnvFrontendURL, config.DefaultFrontendURL), "frontend base url")
	cmd.Flags().StringVar(&admin, "admin", defaultAdmin, "admin identity for the admin link")
	return cmd
}

func newJoinCommand(opts *rootOptions) *cobra.Command {
	var identity string
	var isAdmin bool
	cmd := &cobra.Command{
		Use:   "join <room-name>",
		Short: "Walk the participant join flow and print the resulting token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := contextWithTimeout(cmd, opts.timeout)
			defer cancel()

			runner := joinflow.Runner{Tokens: c}
			reader := bufio.NewReader(opts.stdin)
			state := joinflow.Start(args[0], identity, isAdmin)
			for {
				switch state.Phase {
				case joinflow.PhaseAwaitingIdentity:
					fmt.Fprintf(opts.stdout, "%s: ", state.Describe())
					line, readErr := reader.ReadString('\n')
					if strings.TrimSpace(line) == "" && readErr != nil {
						return errors.New("no identity entered")
					}
					next, err := joinflow.Transition(state, joinflow.Event{
						Kind:     joinflow.EventIdentitySubmitted,
						Identity: line,
						IsAdmin:  isAdmin,
					})
					if err != nil {
						fmt.Fprintln(opts.stdout, err)
						continue
					}
					state = next
				case joinflow.PhaseFetchingToken:
					fmt.Fprintln(opts.stdout, state.Describe())
					state = runner.Step(ctx, state)
				case joinflow.PhaseConnected:
					fmt.Fprintln(opts.stdout, state.Describe())
					_, err := fmt.Fprintln(opts.stdout, state.Token)
					return err
				default:
					return errors.New(state.Describe())
				}
			}
		},
	}
	cmd.Flags().StringVar(&identity, "identity", "", "participant identity; prompted for when empty")
	cmd.Flags().BoolVar(&isAdmin, "admin", false, "join with the admin grant")
	return cmd
}

func newInspectCommand(opts *rootOptions) *cobra.Command {
	var apiKey, apiSecret string
	cmd := &cobra.Command{
		Use:   "inspect <token>",
		Short: "Decode a join token, verifying it when a secret is given",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := strings.TrimSpace(args[0])
			if apiSecret == "" {
				var claims tokens.Claims
				if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
					return fmt.Errorf("decode token: %w", err)
				}
				return writeJSON(opts.stdout, inspection{Verified: false, Claims: claims})
			}
			signer, err := tokens.NewSigner(apiKey, apiSecret)
			if err != nil {
				return err
			}
			claims, err := signer.Parse(raw)
			if err != nil {
				return fmt.Errorf("verify token: %w", err)
			}
			return writeJSON(opts.stdout, inspection{Verified: true, Claims: claims})
		},
	}
	cmd.Flags().StringVar(&apiKey, "api-key", config.EnvString(config.EnvLiveKitAPIKey), "api key the token must be issued by")
	cmd.Flags().StringVar(&apiSecret, "api-secret", config.EnvString(config.EnvLiveKitAPISecret), "api secret; the token is only decoded when empty")
	return cmd
}

type inspection struct {
	Verified bool          `json:"verified"`
	Claims   tokens.Claims `json:"claims"`
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func contextWithTimeout(cmd *cobra.Command, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
