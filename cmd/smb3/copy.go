package main

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/smbgo/smb3/fileop"
)

var copyCmd = &cobra.Command{
	Use:   "copy <src> <dst>",
	Short: "Copy a file between the local filesystem and an SMB share",
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) != 2 {
			cmd.Usage()
			fail(exitUsageErr, "copy takes exactly two arguments")
		}
		runCopy(args[0], args[1])
	},
}

func isUNC(s string) bool {
	return strings.HasPrefix(s, `\\`) || strings.HasPrefix(s, "//")
}

// copyChunkSize is a conservative read/write size that stays well under
// any server's negotiated MaxReadSize/MaxWriteSize without the CLI
// having to inspect the connection's negotiated limits first.
const copyChunkSize = 64 * 1024

func runCopy(src, dst string) {
	srcUNC, dstUNC := isUNC(src), isUNC(dst)
	ctx := context.Background()

	switch {
	case srcUNC && !dstUNC:
		u, err := parseUNC(src)
		if err != nil {
			fail(exitUsageErr, "%v", err)
		}
		cli, err := connectShare(ctx, u)
		if err != nil {
			fail(exitOperationErr, "%v", err)
		}
		defer cli.close(ctx)
		if err := download(ctx, cli, dst, u.Path); err != nil {
			fail(exitOperationErr, "%v", err)
		}

	case dstUNC && !srcUNC:
		u, err := parseUNC(dst)
		if err != nil {
			fail(exitUsageErr, "%v", err)
		}
		cli, err := connectShare(ctx, u)
		if err != nil {
			fail(exitOperationErr, "%v", err)
		}
		defer cli.close(ctx)
		if err := upload(ctx, cli, u.Path, src); err != nil {
			fail(exitOperationErr, "%v", err)
		}

	default:
		fail(exitUsageErr, "copy requires exactly one of <src>/<dst> to be a UNC path")
	}
}

func download(ctx context.Context, cli *smbClient, localPath, remotePath string) error {
	createResp, err := cli.conn.Send(ctx, fileop.BuildCreateRequest(fileop.CreateParams{
		DesiredAccess:     genericReadWrite,
		ShareAccess:       fileop.FileShareRead,
		CreateDisposition: fileop.FileOpen,
		CreateOptions:     fileop.FileNonDirectoryFile,
		Name:              remotePath,
	}), cli.sendOpts())
	if err != nil {
		return err
	}
	created, err := fileop.ParseCreateResponse(createResp)
	if err != nil {
		return err
	}
	defer cli.conn.Send(ctx, fileop.BuildCloseRequest(created.FileID, false), cli.sendOpts())

	out, err := os.Create(localPath)
	if err != nil {
		return err
	}
	defer out.Close()

	var offset uint64
	for offset < created.EndOfFile {
		resp, err := cli.conn.Send(ctx, fileop.BuildReadRequest(fileop.ReadParams{
			Length: copyChunkSize,
			Offset: offset,
			FileID: created.FileID,
		}), cli.sendOpts())
		if err != nil {
			return err
		}
		data, err := fileop.ParseReadResponse(resp)
		if err != nil {
			return err
		}
		if len(data) == 0 {
			break
		}
		if _, err := out.Write(data); err != nil {
			return err
		}
		offset += uint64(len(data))
	}
	return nil
}

func upload(ctx context.Context, cli *smbClient, remotePath, localPath string) error {
	in, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer in.Close()

	createResp, err := cli.conn.Send(ctx, fileop.BuildCreateRequest(fileop.CreateParams{
		DesiredAccess:     genericReadWrite,
		ShareAccess:       fileop.FileShareRead,
		CreateDisposition: fileop.FileOverwriteIf,
		CreateOptions:     fileop.FileNonDirectoryFile,
		Name:              remotePath,
	}), cli.sendOpts())
	if err != nil {
		return err
	}
	created, err := fileop.ParseCreateResponse(createResp)
	if err != nil {
		return err
	}
	defer cli.conn.Send(ctx, fileop.BuildCloseRequest(created.FileID, false), cli.sendOpts())

	buf := make([]byte, copyChunkSize)
	var offset uint64
	for {
		n, readErr := in.Read(buf)
		if n > 0 {
			resp, err := cli.conn.Send(ctx, fileop.BuildWriteRequest(fileop.WriteParams{
				Offset: offset,
				FileID: created.FileID,
				Data:   buf[:n],
			}), cli.sendOpts())
			if err != nil {
				return err
			}
			written, err := fileop.ParseWriteResponse(resp)
			if err != nil {
				return err
			}
			offset += uint64(written)
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}
