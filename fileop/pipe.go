package fileop

import (
	"context"

	"github.com/smbgo/smb3/connection"
)

// NamedPipe adapts an open IPC$ pipe handle into an rpc.Pipe: one
// FSCTL_PIPE_TRANSCEIVE IOCTL round trip per call, the same transport
// go-smb2's DCERPC bind uses to reach SRVSVC/LSA over SMB.
type NamedPipe struct {
	Conn      *connection.Connection
	SessionID uint64
	TreeID    uint32
	FileID    []byte
}

// Call implements rpc.Pipe.
func (p *NamedPipe) Call(ctx context.Context, req []byte) ([]byte, error) {
	ioctl := BuildIoctlRequest(FsctlPipeTranceive, p.FileID, req, 1<<16)
	resp, err := p.Conn.Send(ctx, ioctl, connection.SendOptions{SessionID: p.SessionID, TreeID: p.TreeID})
	if err != nil {
		return nil, err
	}
	return ParseIoctlResponse(resp)
}
