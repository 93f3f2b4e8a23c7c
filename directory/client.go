package directory

import (
	"crypto/tls"
	"fmt"

	"github.com/JGiraldo29/giralnet/descriptor"
	"github.com/JGiraldo29/giralnet/errs"
	"github.com/JGiraldo29/giralnet/wire"
)

// Register advertises info to the directory at addr, authenticated by
// secret. A rejected secret closes the connection without a response
// (§6); Register reports that as a DirectoryError since a node cannot
// otherwise distinguish "rejected" from "network failure" at this
// layer, matching the policy in §7 (node logs and proceeds without
// registration).
func Register(addr string, tlsConfig *tls.Config, info descriptor.NodeInfo, secret string) error {
	conn, err := tls.Dial("tcp", addr, tlsConfig)
	if err != nil {
		return &errs.DirectoryError{Detail: "dial", Cause: err}
	}
	defer conn.Close()

	req := Request{Kind: RequestRegister, Info: &info, Secret: secret}
	data, err := encodeRequest(req)
	if err != nil {
		return &errs.DirectoryError{Detail: "encode register request", Cause: err}
	}
	if err := wire.WriteFrame(conn, data); err != nil {
		return &errs.DirectoryError{Detail: "send register request", Cause: err}
	}

	frame, err := wire.ReadFrame(conn)
	if err != nil {
		return &errs.DirectoryError{Detail: "register rejected or unreachable", Cause: err}
	}
	resp, err := decodeResponse(frame)
	if err != nil {
		return &errs.DirectoryError{Detail: "decode register response", Cause: err}
	}
	if resp.Kind != ResponseAck {
		return &errs.DirectoryError{Detail: fmt.Sprintf("unexpected register response kind %q", resp.Kind)}
	}
	return nil
}

// FetchNodes retrieves the current relay list from the directory at
// addr, authenticated by secret.
func FetchNodes(addr string, tlsConfig *tls.Config, secret string) ([]descriptor.NodeInfo, error) {
	conn, err := tls.Dial("tcp", addr, tlsConfig)
	if err != nil {
		return nil, &errs.DirectoryError{Detail: "dial", Cause: err}
	}
	defer conn.Close()

	req := Request{Kind: RequestGetNodes, Secret: secret}
	data, err := encodeRequest(req)
	if err != nil {
		return nil, &errs.DirectoryError{Detail: "encode get_nodes request", Cause: err}
	}
	if err := wire.WriteFrame(conn, data); err != nil {
		return nil, &errs.DirectoryError{Detail: "send get_nodes request", Cause: err}
	}

	frame, err := wire.ReadFrame(conn)
	if err != nil {
		return nil, &errs.DirectoryError{Detail: "get_nodes rejected or unreachable", Cause: err}
	}
	resp, err := decodeResponse(frame)
	if err != nil {
		return nil, &errs.DirectoryError{Detail: "decode get_nodes response", Cause: err}
	}
	if resp.Kind != ResponseNodeList {
		return nil, &errs.DirectoryError{Detail: fmt.Sprintf("unexpected get_nodes response kind %q", resp.Kind)}
	}
	return resp.Nodes, nil
}
