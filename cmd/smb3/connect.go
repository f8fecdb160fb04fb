package main

import (
	"context"
	"fmt"
	"net"

	"github.com/smbgo/smb3/connection"
	"github.com/smbgo/smb3/fileop"
	"github.com/smbgo/smb3/securitycontext"
	"github.com/smbgo/smb3/session"
	"github.com/smbgo/smb3/transport"
)

// smbClient bundles a live connection with the session and tree ids
// needed to send further requests on it, the pieces every subcommand
// tears back down in reverse order when it's done.
type smbClient struct {
	conn    *connection.Connection
	session *session.Ref
	treeID  uint32
}

func dialServer(ctx context.Context, server string) (*connection.Connection, error) {
	addr := serverEnvOverride(net.JoinHostPort(server, "445"))
	conn, err := connection.Dial(ctx, transport.DirectTCP, addr, connection.Options{})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	if err := conn.Negotiate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("negotiate: %w", err)
	}
	return conn, nil
}

func connectShare(ctx context.Context, unc uncPath) (*smbClient, error) {
	conn, err := dialServer(ctx, unc.Server)
	if err != nil {
		return nil, err
	}

	sc := securitycontext.NewNTLM(flagUser, flagPassword, flagDomain)
	sess, err := conn.EstablishSession(ctx, sc)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("session setup: %w", err)
	}

	req := fileop.BuildTreeConnectRequest(unc.shareUNC())
	resp, err := conn.Send(ctx, req, connection.SendOptions{SessionID: sess.ID()})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("tree connect %s: %w", unc.shareUNC(), err)
	}
	tc, err := fileop.ParseTreeConnectResponse(resp)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("parse tree connect response: %w", err)
	}

	return &smbClient{conn: conn, session: sess, treeID: tc.TreeID}, nil
}

func (c *smbClient) sendOpts() connection.SendOptions {
	return connection.SendOptions{SessionID: c.session.ID(), TreeID: c.treeID}
}

func (c *smbClient) close(ctx context.Context) {
	req := fileop.BuildTreeDisconnectRequest()
	c.conn.Send(ctx, req, c.sendOpts())
	c.conn.Close()
}
