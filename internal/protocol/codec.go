package protocol

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"whiteshoe/server/internal/world"
)

var (
	// ErrMalformed reports bytes that are not a valid packet encoding.
	ErrMalformed = errors.New("malformed packet")
	// ErrUnknownPayload reports a payload type outside the declared set.
	ErrUnknownPayload = errors.New("unknown payload type")
)

// Packet field numbers. They are part of the wire contract.
const (
	fieldPacketID         protowire.Number = 1
	fieldPayloadType      protowire.Number = 2
	fieldGameID           protowire.Number = 3
	fieldAction           protowire.Number = 4
	fieldArgument         protowire.Number = 5
	fieldObjects          protowire.Number = 6
	fieldAttributes       protowire.Number = 7
	fieldClearAll         protowire.Number = 8
	fieldStatus           protowire.Number = 9
	fieldPlayerID         protowire.Number = 10
	fieldResponsibleID    protowire.Number = 11
	fieldDamageType       protowire.Number = 12
	fieldYourPlayerID     protowire.Number = 13
	fieldGameName         protowire.Number = 14
	fieldGameMode         protowire.Number = 15
	fieldMaxPlayers       protowire.Number = 16
	fieldNumPlayers       protowire.Number = 17
	fieldGameVision       protowire.Number = 18
	fieldJoinedPlayerName protowire.Number = 19
	fieldHistorical       protowire.Number = 20
	fieldUnpauseCountdown protowire.Number = 21
	fieldMessage          protowire.Number = 22
	fieldErrorCode        protowire.Number = 23
	fieldErrorMessage     protowire.Number = 24
	fieldDisconnectReason protowire.Number = 25
	fieldGames            protowire.Number = 26
	fieldAutojoin         protowire.Number = 27
	fieldJoinNewGame      protowire.Number = 28
	fieldGenerator        protowire.Number = 29
	fieldPlayerName       protowire.Number = 30
	fieldTeam             protowire.Number = 31
	fieldKeyValues        protowire.Number = 32
	fieldDebugCommand     protowire.Number = 33
	fieldDebugArgument    protowire.Number = 34
)

// attributeFields lists the attribute slots in field-number order.
var attributeFields = []world.Field{
	world.FieldPlayerID,
	world.FieldDirection,
	world.FieldTeam,
	world.FieldHPMax,
	world.FieldHP,
	world.FieldMaxAmmo,
	world.FieldAmmo,
	world.FieldOwner,
	world.FieldSize,
	world.FieldHistorical,
	world.FieldName,
}

// Marshal encodes the packet in protobuf wire format.
func Marshal(p *Packet) []byte {
	if p == nil {
		return nil
	}
	return appendPacket(nil, p)
}

// Size returns the encoded length of the packet.
func Size(p *Packet) int {
	return len(Marshal(p))
}

func appendUint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendInt(b []byte, num protowire.Number, v int32) []byte {
	return appendUint(b, num, uint64(int64(v)))
}

func appendSint(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeZigZag(v))
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	return appendUint(b, num, 1)
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendMessage(b []byte, num protowire.Number, body []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, body)
}

func appendPacket(b []byte, p *Packet) []byte {
	b = appendUint(b, fieldPacketID, p.PacketID)
	b = appendSint(b, fieldPayloadType, int64(p.PayloadType))
	if p.HasGameID {
		b = protowire.AppendTag(b, fieldGameID, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(p.GameID))
	}
	b = appendInt(b, fieldAction, int32(p.Action))
	b = appendSint(b, fieldArgument, int64(p.Argument))
	if len(p.Objects) > 0 {
		var packed []byte
		for _, v := range p.Objects {
			packed = protowire.AppendVarint(packed, protowire.EncodeZigZag(int64(v)))
		}
		b = appendMessage(b, fieldObjects, packed)
	}
	for _, attr := range p.Attributes {
		b = appendMessage(b, fieldAttributes, appendAttribute(nil, attr))
	}
	b = appendBool(b, fieldClearAll, p.ClearAll)
	b = appendInt(b, fieldStatus, int32(p.Status))
	b = appendSint(b, fieldPlayerID, int64(p.PlayerID))
	b = appendSint(b, fieldResponsibleID, int64(p.ResponsibleID))
	b = appendInt(b, fieldDamageType, int32(p.DamageType))
	b = appendSint(b, fieldYourPlayerID, int64(p.YourPlayerID))
	b = appendString(b, fieldGameName, p.GameName)
	b = appendString(b, fieldGameMode, p.GameMode)
	b = appendInt(b, fieldMaxPlayers, p.MaxPlayers)
	b = appendInt(b, fieldNumPlayers, p.NumPlayers)
	b = appendString(b, fieldGameVision, p.GameVision)
	b = appendString(b, fieldJoinedPlayerName, p.JoinedPlayerName)
	b = appendBool(b, fieldHistorical, p.Historical)
	b = appendInt(b, fieldUnpauseCountdown, p.UnpauseCountdown)
	b = appendString(b, fieldMessage, p.Message)
	b = appendInt(b, fieldErrorCode, int32(p.ErrorCode))
	b = appendString(b, fieldErrorMessage, p.ErrorMessage)
	b = appendInt(b, fieldDisconnectReason, int32(p.DisconnectReason))
	for _, game := range p.Games {
		b = appendMessage(b, fieldGames, appendGameInfo(nil, game))
	}
	b = appendBool(b, fieldAutojoin, p.Autojoin)
	b = appendBool(b, fieldJoinNewGame, p.JoinNewGame)
	b = appendString(b, fieldGenerator, p.Generator)
	b = appendString(b, fieldPlayerName, p.PlayerName)
	b = appendSint(b, fieldTeam, int64(p.Team))
	for _, kv := range p.KeyValues {
		var body []byte
		body = appendString(body, 1, kv.Key)
		body = appendString(body, 2, kv.Value)
		b = appendMessage(b, fieldKeyValues, body)
	}
	b = appendString(b, fieldDebugCommand, p.DebugCommand)
	b = appendString(b, fieldDebugArgument, p.DebugArgument)
	return b
}

// appendAttribute writes only populated slots; presence survives zero values.
func appendAttribute(b []byte, a world.Attributes) []byte {
	for i, field := range attributeFields {
		if !a.Has(field) {
			continue
		}
		num := protowire.Number(i + 1)
		switch field {
		case world.FieldName:
			b = protowire.AppendTag(b, num, protowire.BytesType)
			b = protowire.AppendString(b, a.Name)
		case world.FieldHistorical:
			b = protowire.AppendTag(b, num, protowire.VarintType)
			b = protowire.AppendVarint(b, protowire.EncodeBool(a.Historical))
		default:
			b = protowire.AppendTag(b, num, protowire.VarintType)
			b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(attributeInt(a, field))))
		}
	}
	return b
}

func attributeInt(a world.Attributes, field world.Field) int {
	switch field {
	case world.FieldPlayerID:
		return a.PlayerID
	case world.FieldDirection:
		return int(a.Direction)
	case world.FieldTeam:
		return a.Team
	case world.FieldHPMax:
		return a.HPMax
	case world.FieldHP:
		return a.HP
	case world.FieldMaxAmmo:
		return a.MaxAmmo
	case world.FieldAmmo:
		return a.Ammo
	case world.FieldOwner:
		return a.Owner
	case world.FieldSize:
		return a.Size
	}
	return 0
}

func setAttributeInt(a *world.Attributes, field world.Field, v int) {
	switch field {
	case world.FieldPlayerID:
		a.SetPlayerID(v)
	case world.FieldDirection:
		a.SetDirection(world.Direction(v))
	case world.FieldTeam:
		a.SetTeam(v)
	case world.FieldHPMax:
		a.SetHPMax(v)
	case world.FieldHP:
		a.SetHP(v)
	case world.FieldMaxAmmo:
		a.SetMaxAmmo(v)
	case world.FieldAmmo:
		a.SetAmmo(v)
	case world.FieldOwner:
		a.SetOwner(v)
	case world.FieldSize:
		a.SetSize(v)
	}
}

func appendGameInfo(b []byte, g GameInfo) []byte {
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(g.GameID))
	b = appendString(b, 2, g.Name)
	b = appendString(b, 3, g.Mode)
	b = appendInt(b, 4, g.MaxPlayers)
	b = appendInt(b, 5, g.CurrentPlayers)
	b = appendString(b, 6, g.Vision)
	return b
}

// Unmarshal decodes a packet, skipping unknown fields.
func Unmarshal(data []byte) (*Packet, error) {
	p := &Packet{}
	err := walk(data, func(num protowire.Number, typ protowire.Type, raw []byte, v uint64) error {
		switch num {
		case fieldPacketID:
			p.PacketID = v
		case fieldPayloadType:
			p.PayloadType = PayloadType(protowire.DecodeZigZag(v))
		case fieldGameID:
			p.GameID = int64(v)
			p.HasGameID = true
		case fieldAction:
			p.Action = world.Action(int32(v))
		case fieldArgument:
			p.Argument = int32(protowire.DecodeZigZag(v))
		case fieldObjects:
			if typ == protowire.VarintType {
				p.Objects = append(p.Objects, int32(protowire.DecodeZigZag(v)))
				return nil
			}
			for len(raw) > 0 {
				value, n := protowire.ConsumeVarint(raw)
				if n < 0 {
					return protowire.ParseError(n)
				}
				p.Objects = append(p.Objects, int32(protowire.DecodeZigZag(value)))
				raw = raw[n:]
			}
		case fieldAttributes:
			attr, err := decodeAttribute(raw)
			if err != nil {
				return err
			}
			p.Attributes = append(p.Attributes, attr)
		case fieldClearAll:
			p.ClearAll = protowire.DecodeBool(v)
		case fieldStatus:
			p.Status = Status(int32(v))
		case fieldPlayerID:
			p.PlayerID = int32(protowire.DecodeZigZag(v))
		case fieldResponsibleID:
			p.ResponsibleID = int32(protowire.DecodeZigZag(v))
		case fieldDamageType:
			p.DamageType = DamageType(int32(v))
		case fieldYourPlayerID:
			p.YourPlayerID = int32(protowire.DecodeZigZag(v))
		case fieldGameName:
			p.GameName = string(raw)
		case fieldGameMode:
			p.GameMode = string(raw)
		case fieldMaxPlayers:
			p.MaxPlayers = int32(v)
		case fieldNumPlayers:
			p.NumPlayers = int32(v)
		case fieldGameVision:
			p.GameVision = string(raw)
		case fieldJoinedPlayerName:
			p.JoinedPlayerName = string(raw)
		case fieldHistorical:
			p.Historical = protowire.DecodeBool(v)
		case fieldUnpauseCountdown:
			p.UnpauseCountdown = int32(v)
		case fieldMessage:
			p.Message = string(raw)
		case fieldErrorCode:
			p.ErrorCode = ErrorCode(int32(v))
		case fieldErrorMessage:
			p.ErrorMessage = string(raw)
		case fieldDisconnectReason:
			p.DisconnectReason = DisconnectReason(int32(v))
		case fieldGames:
			game, err := decodeGameInfo(raw)
			if err != nil {
				return err
			}
			p.Games = append(p.Games, game)
		case fieldAutojoin:
			p.Autojoin = protowire.DecodeBool(v)
		case fieldJoinNewGame:
			p.JoinNewGame = protowire.DecodeBool(v)
		case fieldGenerator:
			p.Generator = string(raw)
		case fieldPlayerName:
			p.PlayerName = string(raw)
		case fieldTeam:
			p.Team = int32(protowire.DecodeZigZag(v))
		case fieldKeyValues:
			var kv KeyValue
			if err := walk(raw, func(num protowire.Number, _ protowire.Type, raw []byte, _ uint64) error {
				switch num {
				case 1:
					kv.Key = string(raw)
				case 2:
					kv.Value = string(raw)
				}
				return nil
			}); err != nil {
				return err
			}
			p.KeyValues = append(p.KeyValues, kv)
		case fieldDebugCommand:
			p.DebugCommand = string(raw)
		case fieldDebugArgument:
			p.DebugArgument = string(raw)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !p.PayloadType.Known() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPayload, p.PayloadType)
	}
	if len(p.Objects)%4 != 0 {
		return nil, fmt.Errorf("%w: %d vision values do not form tuples", ErrMalformed, len(p.Objects))
	}
	return p, nil
}

func decodeAttribute(data []byte) (world.Attributes, error) {
	var a world.Attributes
	err := walk(data, func(num protowire.Number, _ protowire.Type, raw []byte, v uint64) error {
		idx := int(num) - 1
		if idx < 0 || idx >= len(attributeFields) {
			return nil
		}
		switch field := attributeFields[idx]; field {
		case world.FieldName:
			a.SetName(string(raw))
		case world.FieldHistorical:
			a.SetHistorical(protowire.DecodeBool(v))
		default:
			setAttributeInt(&a, field, int(protowire.DecodeZigZag(v)))
		}
		return nil
	})
	return a, err
}

func decodeGameInfo(data []byte) (GameInfo, error) {
	var g GameInfo
	err := walk(data, func(num protowire.Number, _ protowire.Type, raw []byte, v uint64) error {
		switch num {
		case 1:
			g.GameID = int64(v)
		case 2:
			g.Name = string(raw)
		case 3:
			g.Mode = string(raw)
		case 4:
			g.MaxPlayers = int32(v)
		case 5:
			g.CurrentPlayers = int32(v)
		case 6:
			g.Vision = string(raw)
		}
		return nil
	})
	return g, err
}

// walk iterates the fields of a message. Varint fields report their value in
// v, length-delimited fields their payload in raw. Other wire types are skipped.
func walk(data []byte, visit func(num protowire.Number, typ protowire.Type, raw []byte, v uint64) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		data = data[n:]
		switch typ {
		case protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(m))
			}
			data = data[m:]
			if err := visit(num, typ, nil, v); err != nil {
				return fmt.Errorf("%w: %v", ErrMalformed, err)
			}
		case protowire.BytesType:
			raw, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(m))
			}
			data = data[m:]
			if err := visit(num, typ, raw, 0); err != nil {
				return fmt.Errorf("%w: %v", ErrMalformed, err)
			}
		default:
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(m))
			}
			data = data[m:]
		}
	}
	return nil
}
