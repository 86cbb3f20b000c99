package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/akorchagin/foliochat/internal/auth"
	"github.com/akorchagin/foliochat/internal/core"
	"github.com/akorchagin/foliochat/internal/proto"
	"github.com/akorchagin/foliochat/internal/utils"
)

// errAuthRequired ends the write loop after an auth_required event so the
// connection is torn down rather than left lingering unbound.
var errAuthRequired = errors.New("authentication required")

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	hub  *core.Hub
	auth *auth.Service
	log  *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler. authService may be nil, in
// which case bind tokens are not verified.
func NewWSHandler(hub *core.Hub, authService *auth.Service, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{hub: hub, auth: authService, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	client := core.NewClient(utils.NewConnID())
	h.hub.RegisterClient(client)
	defer func() {
		h.hub.UnregisterClient(client)
		close(client.Commands)
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	if errors.Is(err, errAuthRequired) {
		conn.Close(websocket.StatusPolicyViolation, "authentication required")
		return
	}

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		if inbound.Type == proto.InboundTypeBind {
			if err := h.handleBind(ctx, conn, client, inbound); err != nil {
				return err
			}
			continue
		}

		cmd, protoErr, err := inboundToCommand(inbound)
		if err != nil {
			h.log.Warn().Err(err).Str("conn_id", client.ID).Msg("failed to map inbound")
			return err
		}
		if protoErr != nil {
			if writeErr := wsjson.Write(ctx, conn, proto.Outbound{
				Type:  proto.OutboundTypeError,
				Error: protoErr,
			}); writeErr != nil {
				return writeErr
			}
			continue
		}
		if cmd != nil {
			client.Commands <- cmd
		}
	}
}

// handleBind resolves the identity, forwards the bind command, and writes
// the acknowledgment synchronously: the ack is the response of this call.
func (h *WSHandler) handleBind(ctx context.Context, conn *websocket.Conn, client *core.Client, inbound proto.Inbound) error {
	identity, protoErr := h.bindIdentity(inbound)
	if protoErr != nil {
		return wsjson.Write(ctx, conn, proto.Outbound{
			Type: proto.OutboundTypeAck,
			Data: proto.AckData{Status: "error", Message: protoErr.Msg},
		})
	}

	ack := make(chan error, 1)
	client.Commands <- &core.Command{
		Kind:     core.CommandBind,
		Identity: identity,
		Ack:      ack,
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-ack:
		data := proto.AckData{Status: "ok"}
		if err != nil {
			data = proto.AckData{Status: "error", Message: err.Error()}
		}
		return wsjson.Write(ctx, conn, proto.Outbound{Type: proto.OutboundTypeAck, Data: data})
	}
}

func (h *WSHandler) bindIdentity(inbound proto.Inbound) (core.Identity, *proto.Error) {
	var bind proto.BindData
	if err := unmarshalData(inbound.Data, &bind); err != nil {
		return core.Identity{}, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "malformed bind payload"}
	}

	if bind.Token != "" && h.auth != nil {
		claims, err := h.auth.ValidateToken(bind.Token)
		if err != nil {
			h.log.Warn().Err(err).Msg("bind with invalid token")
			return core.Identity{}, &proto.Error{Code: core.ErrCodeInvalidIdentity, Msg: "invalid token"}
		}
		if bind.UserID != "" && bind.UserID != claims.UserID {
			return core.Identity{}, &proto.Error{Code: core.ErrCodeInvalidIdentity, Msg: "identity does not match token"}
		}
		return core.Identity{UserID: claims.UserID, Username: claims.Username}, nil
	}

	return core.Identity{UserID: bind.UserID, Username: bind.Username}, nil
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("conn_id", client.ID).Msg("write ws event")
				return err
			}
			if event.Kind == core.EventAuthRequired {
				return errAuthRequired
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
