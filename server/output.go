package server

import "encoding/json"

// 出站消息类型
const (
	OutWelcome            = "welcome"
	OutPlayersUpdate      = "playersUpdate"
	OutBoardConfigUpdate  = "boardConfigUpdate"
	OutNewAttack          = "newAttack"
	OutActiveAttacks      = "activeAttacks"
	OutAttackComplete     = "attackComplete"
	OutSavedAttacksUpdate = "savedAttacksUpdate"
	OutPlayerHit          = "playerHit"
)

// OutputMessage 出站信封：{"type":"playersUpdate","data":[...]}
type OutputMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type WelcomeEvent struct {
	SessionID string `json:"sessionId"`
}

type PlayerHitEvent struct {
	PlayerID string `json:"playerId"`
	HitCount int    `json:"hitCount"`
}

func encodeOutput(typ string, data any) ([]byte, error) {
	return json.Marshal(OutputMessage{Type: typ, Data: data})
}
