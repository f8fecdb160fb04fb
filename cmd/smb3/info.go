package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smbgo/smb3/fileop"
	"github.com/smbgo/smb3/rpc"
)

var infoCmd = &cobra.Command{
	Use:   "info \\\\server\\share",
	Short: "Print the authenticated account name and connection health",
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) != 1 {
			cmd.Usage()
			fail(exitUsageErr, "info takes exactly one UNC path argument")
		}
		runInfo(args[0])
	},
}

// genericReadWrite is GENERIC_READ|GENERIC_WRITE, enough access to bind
// and call over a named pipe without asking for anything the server
// would have reason to refuse.
const genericReadWrite = 0xC0000000

func runInfo(unc string) {
	u, err := parseUNC(unc)
	if err != nil {
		fail(exitUsageErr, "%v", err)
	}
	u.Share = "IPC$"

	ctx := context.Background()
	cli, err := connectShare(ctx, u)
	if err != nil {
		fail(exitOperationErr, "%v", err)
	}
	defer cli.close(ctx)

	createResp, err := cli.conn.Send(ctx, fileop.BuildCreateRequest(fileop.CreateParams{
		DesiredAccess:     genericReadWrite,
		ShareAccess:       fileop.FileShareRead | fileop.FileShareWrite,
		CreateDisposition: fileop.FileOpen,
		CreateOptions:     fileop.FileNonDirectoryFile,
		Name:              "lsarpc",
	}), cli.sendOpts())
	if err != nil {
		fail(exitOperationErr, "open lsarpc pipe: %v", err)
	}
	created, err := fileop.ParseCreateResponse(createResp)
	if err != nil {
		fail(exitOperationErr, "parse create response: %v", err)
	}
	defer cli.conn.Send(ctx, fileop.BuildCloseRequest(created.FileID, false), cli.sendOpts())

	pipe := &fileop.NamedPipe{
		Conn:      cli.conn,
		SessionID: cli.session.ID(),
		TreeID:    cli.treeID,
		FileID:    created.FileID,
	}
	rpcClient := rpc.NewClient(pipe)

	systemName := `\\` + u.Server
	handle, err := rpcClient.OpenPolicy(ctx, systemName)
	if err != nil {
		fail(exitOperationErr, "open LSA policy: %v", err)
	}
	account, domain, err := rpcClient.GetUserName(ctx, systemName)
	if err != nil {
		fail(exitOperationErr, "get user name: %v", err)
	}
	if err := rpcClient.Close(ctx, handle); err != nil {
		fail(exitOperationErr, "close LSA policy: %v", err)
	}

	snap := cli.conn.Snapshot()
	fmt.Printf("account:  %s\\%s\n", domain, account)
	fmt.Printf("dialect:  0x%04x\n", snap.Dialect)
	fmt.Printf("state:    %s\n", snap.State)
	fmt.Printf("credits:  granted=%d reserved=%d\n", snap.GrantedCredits, snap.ReservedCredits)
	fmt.Printf("pending:  %d\n", snap.PendingCount)
}
