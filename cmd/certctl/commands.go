package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"certificate-guard/internal/app"
	"certificate-guard/internal/clock"
	"certificate-guard/internal/config"
	"certificate-guard/internal/database"
	"certificate-guard/internal/domain"
	"certificate-guard/internal/logger"
	"certificate-guard/internal/repository"
	"certificate-guard/internal/service"
	"certificate-guard/internal/verification"
)

var envFile string

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "certctl",
		Short:         "Administer issued certificates and access blocks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "Load environment variables from this file before connecting")

	root.AddCommand(
		newHashCommand(),
		newVerifyCommand(),
		newIssueCommand(),
		newBlocksCommand(),
		newUnblockCommand(),
		newInvalidateCommand(),
	)
	return root
}

func newHashCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash <token> <holder-id>",
		Short: "Print the verification hash of a certificate",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), verification.ComputeHash(args[0], args[1]))
			return nil
		},
	}
}

func newVerifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <token> <holder-id> <hash>",
		Short: "Check a claimed hash against a stored certificate",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAuditor(cmd, func(ctx context.Context, auditor *service.CertificateAuditor, _ *repository.CertificateRepository) error {
				valid, err := auditor.VerifyCertificate(ctx, args[0], args[1], args[2])
				if err != nil {
					return err
				}
				if valid {
					fmt.Fprintln(cmd.OutOrStdout(), "valid")
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "invalid")
				}
				return nil
			})
		},
	}
}

func newIssueCommand() *cobra.Command {
	var cert domain.Certificate
	var issuedAt string

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Register a certificate (local environments and fixtures)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(cert.Token) == "" {
				cert.Token = uuid.NewString()
			}
			cert.IssuedAt = time.Now().UTC()
			if issuedAt != "" {
				parsed, err := time.Parse("2006-01-02", issuedAt)
				if err != nil {
					return fmt.Errorf("invalid --issued-at: %w", err)
				}
				cert.IssuedAt = parsed
			}

			return withAuditor(cmd, func(ctx context.Context, _ *service.CertificateAuditor, repo *repository.CertificateRepository) error {
				if err := repo.CreateCertificate(ctx, &cert); err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "token: %s\n", cert.Token)
				fmt.Fprintf(out, "hash:  %s\n", verification.ComputeHash(cert.Token, cert.HolderID))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&cert.Token, "token", "", "Public token (random UUID when empty)")
	cmd.Flags().StringVar(&cert.HolderID, "holder-id", "", "Holder identity used in the verification hash")
	cmd.Flags().StringVar(&cert.HolderName, "holder-name", "", "Holder display name")
	cmd.Flags().StringVar(&cert.HolderEmail, "holder-email", "", "Holder e-mail")
	cmd.Flags().StringVar(&cert.CourseTitle, "course", "", "Course title")
	cmd.Flags().StringVar(&cert.IssuerName, "issuer", "Chef do Cotidiano", "Issuer name")
	cmd.Flags().StringVar(&issuedAt, "issued-at", "", "Issue date (YYYY-MM-DD), defaults to now")
	_ = cmd.MarkFlagRequired("holder-id")
	_ = cmd.MarkFlagRequired("holder-name")
	_ = cmd.MarkFlagRequired("course")
	return cmd
}

func newBlocksCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "blocks <token>",
		Short: "List blocked IPs of a certificate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAuditor(cmd, func(ctx context.Context, auditor *service.CertificateAuditor, _ *repository.CertificateRepository) error {
				blocks, err := auditor.ListBlocks(ctx, args[0])
				if err != nil {
					return err
				}
				if len(blocks) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no blocked IPs")
					return nil
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "IP\tBLOCKED AT")
				for _, b := range blocks {
					fmt.Fprintf(w, "%s\t%s\n", b.IP, b.BlockedAt.Format(time.RFC3339))
				}
				return w.Flush()
			})
		},
	}
}

func newUnblockCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "unblock <token> <ip>",
		Short: "Remove an IP block from a certificate",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAuditor(cmd, func(ctx context.Context, auditor *service.CertificateAuditor, _ *repository.CertificateRepository) error {
				if err := auditor.Unblock(ctx, args[0], args[1]); err != nil {
					if errors.Is(err, domain.ErrBlockNotFound) {
						return fmt.Errorf("%s is not blocked for this certificate", args[1])
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "unblocked %s\n", args[1])
				return nil
			})
		},
	}
}

func newInvalidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate <token>",
		Short: "Delete a certificate so its public page answers not found",
		Long: "Delete a certificate so its public page answers not found.\n" +
			"Running API instances with CERT_CACHE_TTL > 0 keep serving it until the TTL expires;\n" +
			"use DELETE /admin/certificates/:token to evict it immediately.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAuditor(cmd, func(ctx context.Context, auditor *service.CertificateAuditor, _ *repository.CertificateRepository) error {
				if err := auditor.InvalidateCertificate(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "invalidated %s\n", args[0])
				return nil
			})
		},
	}
}

// withAuditor abre o banco da configuração, executa fn e fecha a conexão
func withAuditor(cmd *cobra.Command, fn func(context.Context, *service.CertificateAuditor, *repository.CertificateRepository) error) error {
	loader := config.NewConfigLoader()
	var envFiles []string
	if envFile != "" {
		envFiles = append(envFiles, envFile)
	}
	cfg, err := loader.LoadConfig(envFiles...)
	if err != nil {
		return err
	}

	log := logger.NewLogger("error", "text")
	db, err := app.OpenDatabase(cfg, log)
	if err != nil {
		return err
	}
	defer func(db *gorm.DB) { _ = database.Close(db) }(db)

	repo := repository.NewCertificateRepository(db)
	auditor := service.NewCertificateAuditor(repo, service.AuditorConfig{
		BlockThreshold: cfg.AuditBlockThreshold,
		StoreTimeout:   cfg.AuditStoreTimeout,
	}, clock.System{}, log)

	return fn(cmd.Context(), auditor, repo)
}
