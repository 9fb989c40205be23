package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd)
}

// auditCmd is the parent command for audit operations.
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log operations",
}

// auditVerifyCmd verifies the audit log's HMAC chain.
var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify audit log HMAC chain integrity",
	RunE: func(cmd *cobra.Command, args []string) error {
		if auditLog == nil {
			return fmt.Errorf("audit logging is not available")
		}

		result, err := auditLog.Verify()
		if err != nil {
			return fmt.Errorf("failed to verify audit log: %w", err)
		}

		if !result.Valid {
			fmt.Printf("Audit log verification FAILED at sequence %d (%d records)\n",
				result.BrokenAtSeq, result.EventCount)
			return fmt.Errorf("audit log integrity check failed")
		}

		fmt.Printf("Audit log verified: %d records, chain intact\n", result.EventCount)
		return nil
	},
}
