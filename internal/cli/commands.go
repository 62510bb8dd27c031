package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	attestation "github.com/kacy/device-attestation-client"
	"github.com/kacy/device-attestation-client/internal/app"
)

// environment is shared by every subcommand.
type environment struct {
	opts *Options
	out  io.Writer
	app  func() *app.App
}

func (e *environment) client() *attestation.Client {
	return e.app().Client
}

func (e *environment) printer() *Printer {
	return NewPrinter(e.opts.OutputFormat, e.out)
}

func (e *environment) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), e.opts.Timeout)
}

// run executes op under the command timeout and prints its result.
func run[T any](e *environment, cmd *cobra.Command, op func(ctx context.Context) (T, error)) error {
	ctx, cancel := e.context(cmd)
	defer cancel()

	res, err := op(ctx)
	if err != nil {
		return err
	}
	return e.printer().Print(res)
}

func newSupportedCommand(e *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "supported",
		Short: "Report whether native attestation is available",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(e, cmd, e.client().IsSupported)
		},
	}
}

func newPrepareCommand(e *environment) *cobra.Command {
	var opts attestation.PrepareOptions
	cmd := &cobra.Command{
		Use:   "prepare",
		Short: "Create a new key handle",
		Long:  `Create a new key handle. The handle is not persisted; use "store" to keep it.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(e, cmd, func(ctx context.Context) (*attestation.PrepareResult, error) {
				return e.client().Prepare(ctx, opts)
			})
		},
	}
	cmd.Flags().StringVar(&opts.CloudProjectNumber, "project", "", "cloud project number for this call")
	return cmd
}

func newAttestCommand(e *environment) *cobra.Command {
	var opts attestation.CreateAttestationOptions
	cmd := &cobra.Command{
		Use:   "attest <key-id> <challenge>",
		Short: "Bind a server challenge to a key handle",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.KeyID, opts.Challenge = args[0], args[1]
			return run(e, cmd, func(ctx context.Context) (*attestation.CreateAttestationResult, error) {
				return e.client().CreateAttestation(ctx, opts)
			})
		},
	}
	cmd.Flags().StringVar(&opts.CloudProjectNumber, "project", "", "cloud project number for this call")
	return cmd
}

func newAssertCommand(e *environment) *cobra.Command {
	var opts attestation.CreateAssertionOptions
	cmd := &cobra.Command{
		Use:   "assert <key-id> <payload>",
		Short: "Bind a request payload to a key handle",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.KeyID, opts.Payload = args[0], args[1]
			return run(e, cmd, func(ctx context.Context) (*attestation.CreateAssertionResult, error) {
				return e.client().CreateAssertion(ctx, opts)
			})
		},
	}
	cmd.Flags().StringVar(&opts.CloudProjectNumber, "project", "", "cloud project number for this call")
	return cmd
}

func newStoreCommand(e *environment) *cobra.Command {
	var opts attestation.StoreKeyIDOptions
	cmd := &cobra.Command{
		Use:   "store <key-id>",
		Short: "Persist a key handle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.KeyID = args[0]
			return run(e, cmd, func(ctx context.Context) (*attestation.OperationResult, error) {
				return e.client().StoreKeyID(ctx, opts)
			})
		},
	}
	cmd.Flags().StringVar(&opts.CloudProjectNumber, "project", "", "cloud project number for this call")
	return cmd
}

func newGetCommand(e *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Show the persisted key handle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(e, cmd, e.client().GetStoredKeyID)
		},
	}
}

func newClearCommand(e *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove the persisted key handle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(e, cmd, e.client().ClearStoredKeyID)
		},
	}
}

// lifecycleResult is the outcome of the full register-then-sign flow.
type lifecycleResult struct {
	Prepare     *attestation.PrepareResult           `json:"prepare"`
	Attestation *attestation.CreateAttestationResult `json:"attestation"`
	Assertion   *attestation.CreateAssertionResult   `json:"assertion"`
}

func newLifecycleCommand(e *environment) *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "lifecycle <challenge> <payload>",
		Short: "Prepare, store, attest and assert in one process",
		Long: `Run the whole client flow in one process: prepare a key handle,
persist it, attest it with the challenge and sign the payload. Without
--storage-dir the simulated hardware keys live only as long as the process,
so this is the way to exercise attestation and assertion together there.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(e, cmd, func(ctx context.Context) (*lifecycleResult, error) {
				client := e.client()

				key, err := client.Prepare(ctx, attestation.PrepareOptions{CloudProjectNumber: project})
				if err != nil {
					return nil, err
				}
				if _, err := client.StoreKeyID(ctx, attestation.StoreKeyIDOptions{KeyID: key.KeyID, CloudProjectNumber: project}); err != nil {
					return nil, err
				}
				att, err := client.CreateAttestation(ctx, attestation.CreateAttestationOptions{
					KeyID:              key.KeyID,
					Challenge:          args[0],
					CloudProjectNumber: project,
				})
				if err != nil {
					return nil, err
				}
				asr, err := client.CreateAssertion(ctx, attestation.CreateAssertionOptions{
					KeyID:              key.KeyID,
					Payload:            args[1],
					CloudProjectNumber: project,
				})
				if err != nil {
					return nil, err
				}
				return &lifecycleResult{Prepare: key, Attestation: att, Assertion: asr}, nil
			})
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "cloud project number for this run")
	return cmd
}

func newRootCACommand(e *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "root-ca",
		Short: "Print the simulator's root certificate (PEM)",
		Long: `Print the root certificate that signs simulator attestations. With
--storage-dir the authority is saved in that directory and reused by later
invocations; otherwise a fresh one is created per process.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := e.out.Write(e.app().Simulator.Authority().RootPEM())
			return err
		},
	}
}

func newLegacyCommand(e *environment) *cobra.Command {
	legacy := &cobra.Command{
		Use:   "legacy",
		Short: "Deprecated aliases kept for older integrations",
	}

	var genOpts attestation.GenerateKeyOptions
	generateKey := &cobra.Command{
		Use:   "generate-key",
		Short: "Alias of prepare",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(e, cmd, func(ctx context.Context) (*attestation.GenerateKeyResult, error) {
				return e.client().GenerateKey(ctx, genOpts)
			})
		},
	}
	generateKey.Flags().StringVar(&genOpts.CloudProjectNumber, "project", "", "cloud project number for this call")

	var attOpts attestation.AttestKeyOptions
	attestKey := &cobra.Command{
		Use:   "attest-key <key-id> <challenge>",
		Short: "Alias of attest; also reports the token as attestation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			attOpts.KeyID, attOpts.Challenge = args[0], args[1]
			return run(e, cmd, func(ctx context.Context) (*attestation.AttestKeyResult, error) {
				return e.client().AttestKey(ctx, attOpts)
			})
		},
	}
	attestKey.Flags().StringVar(&attOpts.CloudProjectNumber, "project", "", "cloud project number for this call")

	var asrOpts attestation.GenerateAssertionOptions
	generateAssertion := &cobra.Command{
		Use:   "generate-assertion <key-id> <payload>",
		Short: "Alias of assert; also reports the token as assertion",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			asrOpts.KeyID, asrOpts.Payload = args[0], args[1]
			return run(e, cmd, func(ctx context.Context) (*attestation.GenerateAssertionResult, error) {
				return e.client().GenerateAssertion(ctx, asrOpts)
			})
		},
	}
	generateAssertion.Flags().StringVar(&asrOpts.CloudProjectNumber, "project", "", "cloud project number for this call")

	legacy.AddCommand(generateKey, attestKey, generateAssertion)
	return legacy
}
