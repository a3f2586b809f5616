package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ruleforge/ruleforge/internal/crypto"
	otelobs "github.com/ruleforge/ruleforge/internal/observability/otel"
	"github.com/ruleforge/ruleforge/internal/observability/receipt"
)

const (
	defaultPrivateKeyPath = "private.key"
	defaultPublicKeyPath  = "public.key"
	signatureSuffix       = ".sig"
)

func newKeygenCmd() *cobra.Command {
	var privatePath, publicPath string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an Ed25519 keypair for signing policies",
		Long: `Generate a new Ed25519 keypair for signing exported policy XML.

This creates two files:
  - private.key: Keep this secret! Used to sign policies.
  - public.key:  Distribute to the hosts or pipelines that import policies.

Example:
  ruleforge keygen
  ruleforge keygen --private release.key --public release.pub`,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, p := range []string{privatePath, publicPath} {
				if _, err := os.Stat(p); err == nil {
					return fmt.Errorf("%s already exists (use a different path or delete it)", p)
				}
			}
			if err := crypto.GenerateKeys(privatePath, publicPath); err != nil {
				return fmt.Errorf("key generation failed: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s✓ Private key saved: %s%s\n", colorGreen, privatePath, colorReset)
			fmt.Fprintf(out, "%s✓ Public key saved:  %s%s\n", colorGreen, publicPath, colorReset)
			fmt.Fprintf(out, "\n%s⚠ Keep your private key secret!%s\n", colorRed, colorReset)
			return nil
		},
	}
	cmd.Flags().StringVar(&privatePath, "private", defaultPrivateKeyPath, "Path for the private key file")
	cmd.Flags().StringVar(&publicPath, "public", defaultPublicKeyPath, "Path for the public key file")
	return cmd
}

func newSignCmd(a *app) *cobra.Command {
	var policyPath, keyPath, outputPath string
	cmd := &cobra.Command{
		Use:   "sign --policy <policy.xml>",
		Short: "Sign a policy with your private key",
		Long: `Sign the canonical form of an exported policy. Reformatting the XML
later does not invalidate the signature; changing any rule does.

Example:
  ruleforge sign --policy policy.xml
  ruleforge sign --policy policy.xml --key release.key --output policy.xml.sig`,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx, span := otelobs.StartSpan(cmd.Context(), "sign")
			sess := receipt.Start(ctx, "ruleforge sign", a.args)
			if outputPath == "" {
				outputPath = policyPath + signatureSuffix
			}
			defer func() {
				otelobs.EndSpan(span, err)
				_ = sess.Finish(err, receipt.WithInput(policyPath), receipt.WithOutput(outputPath))
			}()

			doc, err := os.ReadFile(policyPath)
			if err != nil {
				return fmt.Errorf("failed to read policy: %w", err)
			}
			sig, err := crypto.SignPolicy(doc, keyPath)
			if err != nil {
				return fmt.Errorf("signing failed: %w", err)
			}
			if err := os.WriteFile(outputPath, sig, 0o644); err != nil {
				return fmt.Errorf("failed to write signature: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s✓ Policy signed%s\n", colorGreen, colorReset)
			fmt.Fprintf(cmd.OutOrStdout(), "  Signature saved to: %s\n", outputPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&policyPath, "policy", "p", "", "Policy XML to sign")
	cmd.Flags().StringVarP(&keyPath, "key", "k", defaultPrivateKeyPath, "Path to the private key")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Signature path (default <policy>.sig)")
	_ = cmd.MarkFlagRequired("policy")
	return cmd
}

func newVerifyCmd(a *app) *cobra.Command {
	var policyPath, sigPath, keyPath string
	cmd := &cobra.Command{
		Use:   "verify --policy <policy.xml>",
		Short: "Verify a policy signature",
		Long: `Verify that a policy matches its signature.
Returns exit code 0 if valid, 1 if verification fails.

Example:
  ruleforge verify --policy policy.xml
  ruleforge verify --policy policy.xml --signature policy.xml.sig --key release.pub`,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx, span := otelobs.StartSpan(cmd.Context(), "verify")
			sess := receipt.Start(ctx, "ruleforge verify", a.args)
			defer func() {
				otelobs.EndSpan(span, err)
				_ = sess.Finish(err, receipt.WithInput(policyPath))
			}()

			if sigPath == "" {
				sigPath = policyPath + signatureSuffix
			}
			doc, err := os.ReadFile(policyPath)
			if err != nil {
				return fmt.Errorf("failed to read policy: %w", err)
			}
			sig, err := os.ReadFile(sigPath)
			if err != nil {
				return fmt.Errorf("failed to read signature: %w", err)
			}

			err = crypto.VerifyPolicy(doc, sig, keyPath)
			switch {
			case err == nil:
				fmt.Fprintf(cmd.OutOrStdout(), "%s✅ Signature Verified%s\n", colorGreen, colorReset)
				return nil
			case errors.Is(err, crypto.ErrDigestMismatch), errors.Is(err, crypto.ErrBadSignature):
				fmt.Fprintf(cmd.OutOrStdout(), "%s❌ TAMPER DETECTED%s\n", colorRed, colorReset)
				return &ExitError{Code: ExitFail, Err: err}
			default:
				return fmt.Errorf("verification error: %w", err)
			}
		},
	}
	cmd.Flags().StringVarP(&policyPath, "policy", "p", "", "Policy XML to verify")
	cmd.Flags().StringVarP(&sigPath, "signature", "s", "", "Signature path (default <policy>.sig)")
	cmd.Flags().StringVarP(&keyPath, "key", "k", defaultPublicKeyPath, "Path to the public key")
	_ = cmd.MarkFlagRequired("policy")
	return cmd
}
