// Command smb3 is a thin CLI over the connection/securitycontext/fileop
// packages: enough to dial a share, authenticate, and either print
// account info (info) or move a file (copy), for manual testing against
// a real server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Exit codes: 0 success, 1 I/O or protocol error, 2 usage error.
const (
	exitSuccess      = 0
	exitOperationErr = 1
	exitUsageErr     = 2
)

var (
	flagUser     string
	flagPassword string
	flagDomain   string
)

var rootCmd = &cobra.Command{
	Use:   "smb3",
	Short: "A minimal SMB3 client",
	Long: `smb3 dials an SMB 3.x share, authenticates with NTLM, and runs one
of a small number of diagnostic or file operations against it.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagUser, "user", "u", "", "Username")
	rootCmd.PersistentFlags().StringVarP(&flagPassword, "password", "p", "", "Password")
	rootCmd.PersistentFlags().StringVar(&flagDomain, "domain", "", "NTLM domain (empty for a local account)")
	rootCmd.AddCommand(infoCmd, copyCmd)
}

// serverEnvOverride lets the test suite point every subcommand at a
// throwaway server without touching argv, mirroring the Rust client's
// SMB_RUST_TESTS_SERVER knob this CLI is the Go counterpart of.
func serverEnvOverride(addr string) string {
	if v := os.Getenv("SMB_RUST_TESTS_SERVER"); v != "" {
		return v
	}
	return addr
}

func fail(code int, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "smb3: "+format+"\n", args...)
	os.Exit(code)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fail(exitUsageErr, "%v", err)
	}
	os.Exit(exitSuccess)
}
