package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// 入站消息类型（与前端事件名保持一致）
const (
	MsgJoinGame               = "joinGame"
	MsgPlayerMove             = "playerMove"
	MsgUpdatePlayerToken      = "updatePlayerToken"
	MsgUpdateGridConfig       = "updateGridConfig"
	MsgUpdateBackgroundConfig = "updateBackgroundConfig"
	MsgBackgroundChunk        = "backgroundChunk"
	MsgLaunchAttack           = "launchAttack"
	MsgCancelAttack           = "cancelAttack"
	MsgSaveAttack             = "saveAttack"
	MsgGetSavedAttacks        = "getSavedAttacks"
	MsgPlayerHit              = "playerHit"
)

var (
	ErrUnknownType   = errors.New("unknown message type")
	ErrMissingField  = errors.New("missing required field")
	ErrInvalidEnum   = errors.New("value not allowed")
	ErrNoCells       = errors.New("attack has no cells")
	ErrCellsNotList  = errors.New("attack cells is not a list")
	ErrNoValidCells  = errors.New("attack has no valid cells")
	ErrChunkTotal    = errors.New("chunk total out of range")
	ErrChunkIndex    = errors.New("chunk index out of range")
	ErrEmptyChunk    = errors.New("empty chunk payload")
	ErrAssetTooLarge = errors.New("asset exceeds size limit")
)

// Request 经过边界校验的入站请求；每种消息一个具体类型
type Request interface {
	Type() string
}

// JoinRequest {"type":"joinGame","data":{"x":7,"y":7,"color":"#ff0000","tokenConfig":{...}}}
type JoinRequest struct {
	X, Y        int
	HasPosition bool
	Color       string
	Token       TokenConfig
}

type MoveRequest struct {
	X, Y int
}

// TokenPatch 外观的部分更新，空字段保持原值
type TokenPatch struct {
	Shape   string
	Size    string
	Opacity *float64
}

// TokenRequest 只更新出现的字段
type TokenRequest struct {
	Speed    *int
	Token    *TokenPatch
	Image    *string // 非 nil 时替换头像
	ClearImg bool    // image: null
}

type GridRequest struct {
	Width, Height int
}

type BackgroundRequest struct {
	Image      *string
	ClearImage bool
	Style      BackgroundStyle
}

type ChunkRequest struct {
	Index, Total int
	Data         []byte
	Binary       bool // 来自二进制帧，Data 为原始字节
}

type LaunchRequest struct {
	Name  string
	Cells []Cell
}

type CancelAttackRequest struct {
	AttackID int64
}

type SaveAttackRequest struct {
	Name  string
	Cells []Cell
}

type SavedAttacksQuery struct{}

type HitReport struct {
	PlayerID SessionID
}

func (JoinRequest) Type() string         { return MsgJoinGame }
func (MoveRequest) Type() string         { return MsgPlayerMove }
func (TokenRequest) Type() string        { return MsgUpdatePlayerToken }
func (GridRequest) Type() string         { return MsgUpdateGridConfig }
func (BackgroundRequest) Type() string   { return MsgUpdateBackgroundConfig }
func (ChunkRequest) Type() string        { return MsgBackgroundChunk }
func (LaunchRequest) Type() string       { return MsgLaunchAttack }
func (CancelAttackRequest) Type() string { return MsgCancelAttack }
func (SaveAttackRequest) Type() string   { return MsgSaveAttack }
func (SavedAttacksQuery) Type() string   { return MsgGetSavedAttacks }
func (HitReport) Type() string           { return MsgPlayerHit }

// InputMessage WS 文本消息的外层信封
type InputMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// looseInt 兼容数字与数字字符串（前端输入框常给字符串），小数截断
type looseInt struct {
	Value int
	Valid bool
}

func (n *looseInt) UnmarshalJSON(b []byte) error {
	n.Value, n.Valid = coerceInt(b)
	return nil
}

// nullableString 区分字段缺失、null 与字符串值
type nullableString struct {
	Set   bool
	Null  bool
	Value string
}

func (s *nullableString) UnmarshalJSON(b []byte) error {
	s.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		s.Null = true
		return nil
	}
	return json.Unmarshal(b, &s.Value)
}

func coerceInt(raw []byte) (int, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, false
	}
	var f float64
	switch c := raw[0]; {
	case c == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, false
		}
		f = v
	case c == '-' || (c >= '0' && c <= '9'):
		if err := json.Unmarshal(raw, &f); err != nil {
			return 0, false
		}
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}
	return int(math.Trunc(f)), true
}

type wireToken struct {
	Shape   string   `json:"shape"`
	Size    string   `json:"size"`
	Opacity *float64 `json:"opacity"`
}

func (w *wireToken) validate(base TokenConfig) (TokenConfig, error) {
	out := base
	if w.Shape != "" {
		if !tokenShapes[w.Shape] {
			return out, fmt.Errorf("token shape %q: %w", w.Shape, ErrInvalidEnum)
		}
		out.Shape = w.Shape
	}
	if w.Size != "" {
		if !tokenSizes[w.Size] {
			return out, fmt.Errorf("token size %q: %w", w.Size, ErrInvalidEnum)
		}
		out.Size = w.Size
	}
	if w.Opacity != nil {
		out.Opacity = clampFloat(*w.Opacity, 0, 1)
	}
	return out, nil
}

// DecodeMessage 解析并校验一条文本消息；不合法的请求在这里就被拒绝
func DecodeMessage(payload []byte) (Request, error) {
	var im InputMessage
	if err := json.Unmarshal(payload, &im); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	data := im.Data
	if len(data) == 0 {
		data = []byte("{}")
	}
	switch im.Type {
	case MsgJoinGame:
		return decodeJoin(data)
	case MsgPlayerMove:
		var w struct{ X, Y looseInt }
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("decode %s: %w", im.Type, err)
		}
		if !w.X.Valid || !w.Y.Valid {
			return nil, fmt.Errorf("%s x/y: %w", im.Type, ErrMissingField)
		}
		return MoveRequest{X: w.X.Value, Y: w.Y.Value}, nil
	case MsgUpdatePlayerToken:
		return decodeToken(data)
	case MsgUpdateGridConfig:
		var w struct{ Width, Height looseInt }
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("decode %s: %w", im.Type, err)
		}
		if !w.Width.Valid || !w.Height.Valid {
			return nil, fmt.Errorf("%s width/height: %w", im.Type, ErrMissingField)
		}
		return GridRequest{Width: w.Width.Value, Height: w.Height.Value}, nil
	case MsgUpdateBackgroundConfig:
		return decodeBackground(data)
	case MsgBackgroundChunk:
		var w struct {
			Chunk        string
			Index, Total looseInt
		}
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("decode %s: %w", im.Type, err)
		}
		if !w.Index.Valid || !w.Total.Valid {
			return nil, fmt.Errorf("%s index/total: %w", im.Type, ErrMissingField)
		}
		return validateChunk(w.Index.Value, w.Total.Value, []byte(w.Chunk))
	case MsgLaunchAttack, MsgSaveAttack:
		var w struct {
			Name  string          `json:"name"`
			Cells json.RawMessage `json:"cells"`
		}
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("decode %s: %w", im.Type, err)
		}
		cells, err := ParseAttackCells(w.Cells)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", im.Type, err)
		}
		if im.Type == MsgSaveAttack {
			return SaveAttackRequest{Name: w.Name, Cells: cells}, nil
		}
		return LaunchRequest{Name: w.Name, Cells: cells}, nil
	case MsgCancelAttack:
		var w struct {
			AttackID *int64 `json:"attackId"`
		}
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("decode %s: %w", im.Type, err)
		}
		if w.AttackID == nil {
			return nil, fmt.Errorf("%s attackId: %w", im.Type, ErrMissingField)
		}
		return CancelAttackRequest{AttackID: *w.AttackID}, nil
	case MsgGetSavedAttacks:
		return SavedAttacksQuery{}, nil
	case MsgPlayerHit:
		var w struct {
			PlayerID string `json:"playerId"`
		}
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("decode %s: %w", im.Type, err)
		}
		if w.PlayerID == "" {
			return nil, fmt.Errorf("%s playerId: %w", im.Type, ErrMissingField)
		}
		return HitReport{PlayerID: SessionID(w.PlayerID)}, nil
	default:
		return nil, fmt.Errorf("%q: %w", im.Type, ErrUnknownType)
	}
}

func decodeJoin(data []byte) (Request, error) {
	var w struct {
		X, Y        looseInt
		Color       string     `json:"color"`
		TokenConfig *wireToken `json:"tokenConfig"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode %s: %w", MsgJoinGame, err)
	}
	req := JoinRequest{
		X:           w.X.Value,
		Y:           w.Y.Value,
		HasPosition: w.X.Valid && w.Y.Valid,
		Color:       w.Color,
		Token:       defaultTokenConfig(),
	}
	if w.TokenConfig != nil {
		tok, err := w.TokenConfig.validate(req.Token)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", MsgJoinGame, err)
		}
		req.Token = tok
	}
	return req, nil
}

func decodeToken(data []byte) (Request, error) {
	var w struct {
		Speed       looseInt
		TokenConfig *wireToken     `json:"tokenConfig"`
		Image       nullableString `json:"image"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode %s: %w", MsgUpdatePlayerToken, err)
	}
	var req TokenRequest
	if w.Speed.Valid {
		speed := w.Speed.Value
		req.Speed = &speed
	}
	if w.TokenConfig != nil {
		// 外观字段在房间里与当前值合并，这里只校验枚举
		if _, err := w.TokenConfig.validate(defaultTokenConfig()); err != nil {
			return nil, fmt.Errorf("%s: %w", MsgUpdatePlayerToken, err)
		}
		req.Token = &TokenPatch{Shape: w.TokenConfig.Shape, Size: w.TokenConfig.Size, Opacity: w.TokenConfig.Opacity}
	}
	switch {
	case w.Image.Null:
		req.ClearImg = true
	case w.Image.Set:
		img := w.Image.Value
		req.Image = &img
	}
	if req.Speed == nil && req.Token == nil && req.Image == nil && !req.ClearImg {
		return nil, fmt.Errorf("%s: %w", MsgUpdatePlayerToken, ErrMissingField)
	}
	return req, nil
}

func decodeBackground(data []byte) (Request, error) {
	var w struct {
		Image  nullableString `json:"image"`
		Config *struct {
			Size     string   `json:"size"`
			Position string   `json:"position"`
			Opacity  *float64 `json:"opacity"`
		} `json:"config"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode %s: %w", MsgUpdateBackgroundConfig, err)
	}
	req := BackgroundRequest{Style: defaultBackgroundStyle()}
	if w.Config != nil {
		if w.Config.Size != "" {
			if !backgroundSizes[w.Config.Size] {
				return nil, fmt.Errorf("background size %q: %w", w.Config.Size, ErrInvalidEnum)
			}
			req.Style.Size = w.Config.Size
		}
		if w.Config.Position != "" {
			if !backgroundPositions[w.Config.Position] {
				return nil, fmt.Errorf("background position %q: %w", w.Config.Position, ErrInvalidEnum)
			}
			req.Style.Position = w.Config.Position
		}
		if w.Config.Opacity != nil {
			req.Style.Opacity = clampFloat(*w.Config.Opacity, 0, 1)
		}
	}
	switch {
	case w.Image.Null:
		req.ClearImage = true
	case w.Image.Set:
		img := w.Image.Value
		req.Image = &img
	}
	return req, nil
}

// binaryChunk 二进制帧（MessagePack）承载的背景分片
type binaryChunk struct {
	Index int    `msgpack:"index"`
	Total int    `msgpack:"total"`
	Chunk []byte `msgpack:"chunk"`
}

// DecodeBinaryChunk 解析二进制 WS 帧中的分片
func DecodeBinaryChunk(payload []byte) (ChunkRequest, error) {
	var bc binaryChunk
	if err := msgpack.Unmarshal(payload, &bc); err != nil {
		return ChunkRequest{}, fmt.Errorf("decode binary chunk: %w", err)
	}
	req, err := validateChunk(bc.Index, bc.Total, bc.Chunk)
	if err != nil {
		return ChunkRequest{}, err
	}
	chunk := req.(ChunkRequest)
	chunk.Binary = true
	return chunk, nil
}

// EncodeBinaryChunk 与 DecodeBinaryChunk 对应，供客户端工具与测试使用
func EncodeBinaryChunk(index, total int, data []byte) ([]byte, error) {
	return msgpack.Marshal(&binaryChunk{Index: index, Total: total, Chunk: data})
}

func validateChunk(index, total int, data []byte) (Request, error) {
	if total < 1 {
		return nil, fmt.Errorf("total %d: %w", total, ErrChunkTotal)
	}
	if index < 0 || index >= total {
		return nil, fmt.Errorf("index %d of %d: %w", index, total, ErrChunkIndex)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("index %d: %w", index, ErrEmptyChunk)
	}
	return ChunkRequest{Index: index, Total: total, Data: data}, nil
}
