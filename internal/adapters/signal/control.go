package signal

import "github.com/dkeye/airwave/internal/domain"

func (ctl *SignalWSController) handlePing(
	conn *WsSignalConn,
) {
	resp := struct {
		Type string `json:"type"`
	}{
		Type: domain.TypePong,
	}
	ctl.sendJSON(conn, resp)
}

func (ctl *SignalWSController) handleWhoAmI(
	conn *WsSignalConn,
) {
	ctl.sendJSON(conn, ctl.Orch.WhoAmI(conn.id))
}
