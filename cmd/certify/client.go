package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/layer-3/certify/core"
	"github.com/layer-3/certify/internal/eth"
	"github.com/layer-3/certify/service"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// signerKeyEnv holds the private key for sign and prove when --key is not given
const signerKeyEnv = "CERTIFY_SIGNER_KEY"

func challengeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "challenge",
		Short: "Print an ownership challenge to sign",
		RunE: func(cmd *cobra.Command, args []string) error {
			tokenID, _ := cmd.Flags().GetUint64("token-id")
			contract, _ := cmd.Flags().GetString("contract")

			message, err := service.NewChallengeGenerator(nil).Generate(tokenID, contract)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), message)
			return nil
		},
	}

	cmd.Flags().Uint64("token-id", 0, "Certificate token id (required)")
	cmd.Flags().String("contract", "", "Certification contract address (required)")
	cmd.MarkFlagRequired("token-id")
	cmd.MarkFlagRequired("contract")

	return cmd
}

func signCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign a challenge with a local private key",
		RunE: func(cmd *cobra.Command, args []string) error {
			signer, err := signerFromFlags(cmd)
			if err != nil {
				return err
			}
			message, err := messageFromFlags(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sig, err := signer.SignMessage(ctx, message)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hexutil.Encode(sig))
			return nil
		},
	}

	addKeyFlag(cmd)
	addMessageFlags(cmd)

	return cmd
}

func verifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a signed challenge against the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			message, err := messageFromFlags(cmd)
			if err != nil {
				return err
			}
			sig, _ := cmd.Flags().GetString("signature")
			address, _ := cmd.Flags().GetString("address")
			tokenID, _ := cmd.Flags().GetUint64("token-id")

			return withApp(cmd, func(ctx context.Context, a *app) error {
				verdict := a.ownership.Verify(ctx, service.VerifyRequest{
					Message:   message,
					Signature: sig,
					Address:   address,
					TokenID:   tokenID,
				})
				return printVerdict(cmd, verdict)
			})
		},
	}

	addMessageFlags(cmd)
	cmd.Flags().String("signature", "", "0x-prefixed signature (required)")
	cmd.Flags().String("address", "", "Address claiming ownership (required)")
	cmd.Flags().Uint64("token-id", 0, "Certificate token id (required)")
	cmd.MarkFlagRequired("signature")
	cmd.MarkFlagRequired("address")
	cmd.MarkFlagRequired("token-id")

	return cmd
}

func proveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prove",
		Short: "Generate, sign and verify a challenge in one step",
		RunE: func(cmd *cobra.Command, args []string) error {
			signer, err := signerFromFlags(cmd)
			if err != nil {
				return err
			}
			tokenID, _ := cmd.Flags().GetUint64("token-id")

			return withApp(cmd, func(ctx context.Context, a *app) error {
				verdict := a.ownership.Prove(ctx, tokenID, signer.Address().Hex(), signer)
				return printVerdict(cmd, verdict)
			})
		},
	}

	addKeyFlag(cmd)
	cmd.Flags().Uint64("token-id", 0, "Certificate token id (required)")
	cmd.MarkFlagRequired("token-id")

	return cmd
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a holder's certificate status",
		RunE: func(cmd *cobra.Command, args []string) error {
			tokenID, _ := cmd.Flags().GetUint64("token-id")
			address, _ := cmd.Flags().GetString("address")

			return withApp(cmd, func(ctx context.Context, a *app) error {
				if tokenID == 0 {
					holdings, err := a.certificates.Portfolio(ctx, address)
					if err != nil {
						return err
					}
					for _, h := range holdings {
						printHolding(cmd, h)
					}
					if len(holdings) == 0 {
						fmt.Fprintf(cmd.OutOrStdout(), "%s holds no certificates\n", address)
					}
					return nil
				}

				h, err := a.certificates.Status(ctx, tokenID, address)
				if err != nil {
					return err
				}
				printHolding(cmd, h)
				return nil
			})
		},
	}

	cmd.Flags().Uint64("token-id", 0, "Certificate token id; omit to list every certificate")
	cmd.Flags().String("address", "", "Holder address (required)")
	cmd.MarkFlagRequired("address")

	return cmd
}

func withApp(cmd *cobra.Command, run func(ctx context.Context, a *app) error) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close(logger)

	return run(ctx, a)
}

func addKeyFlag(cmd *cobra.Command) {
	cmd.Flags().String("key", "", "Hex private key (defaults to $"+signerKeyEnv+")")
}

func signerFromFlags(cmd *cobra.Command) (*eth.KeySigner, error) {
	key, _ := cmd.Flags().GetString("key")
	if key == "" {
		key = os.Getenv(signerKeyEnv)
	}
	if key == "" {
		return nil, errors.Errorf("a private key is required: pass --key or set %s", signerKeyEnv)
	}
	return eth.NewKeySignerFromHex(key)
}

func addMessageFlags(cmd *cobra.Command) {
	cmd.Flags().String("message", "", "Challenge text")
	cmd.Flags().String("message-file", "", "Read the challenge text from a file")
	cmd.MarkFlagsMutuallyExclusive("message", "message-file")
	cmd.MarkFlagsOneRequired("message", "message-file")
}

func messageFromFlags(cmd *cobra.Command) (string, error) {
	if path, _ := cmd.Flags().GetString("message-file"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return "", errors.Wrap(err, "failed to read message file")
		}
		return string(raw), nil
	}
	message, _ := cmd.Flags().GetString("message")
	return message, nil
}

func printVerdict(cmd *cobra.Command, v core.Verdict) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}
	if !v.Success() {
		return errors.Errorf("ownership not verified: %s", v.Message)
	}
	return nil
}

func printHolding(cmd *cobra.Command, h core.Holding) {
	out := cmd.OutOrStdout()
	name := ""
	if h.Course != nil {
		name = fmt.Sprintf(" %s (%s, %s months)", h.Course.Code, h.Course.Name, core.ValidityMonths(h.Course.ValidityDuration).StringFixed(1))
	}
	expiry := "never minted"
	if h.ExpiryTimestamp > 0 {
		expiry = time.Unix(int64(h.ExpiryTimestamp), 0).UTC().Format(time.RFC3339)
	}
	fmt.Fprintf(out, "token #%d%s\n  holder:  %s\n  balance: %s\n  expires: %s\n  valid:   %t\n",
		h.TokenID, name, h.Holder.Hex(), h.Balance, expiry, h.Valid)
}
