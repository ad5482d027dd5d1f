package networking

import (
	"math"

	"whiteshoe/server/internal/geom"
	"whiteshoe/server/internal/protocol"
	"whiteshoe/server/internal/world"
)

// DefaultPacketLimit bounds the encoded size of a vision update.
const DefaultPacketLimit = 600

// KnownCells exposes a player's remembered cells to the packer.
type KnownCells interface {
	At(c geom.Coordinate) ([]*world.Entity, bool)
}

// Packer splits changed cells into vision updates that respect the byte
// budget of a single datagram.
type Packer struct {
	limit  int
	nextID func() uint64
}

// NewPacker constructs a packer. A non-positive limit disables splitting.
func NewPacker(limit int, nextID func() uint64) *Packer {
	if limit <= 0 {
		limit = math.MaxInt
	}
	if nextID == nil {
		nextID = func() uint64 { return 0 }
	}
	return &Packer{limit: limit, nextID: nextID}
}

// Limit returns the configured byte budget.
func (p *Packer) Limit() int { return p.limit }

type pendingPacket struct {
	packet  *protocol.Packet
	indexes map[world.Attributes]int32
}

func (p *Packer) newPending(gameID int64) *pendingPacket {
	packet := &protocol.Packet{
		PacketID:    p.nextID(),
		PayloadType: protocol.PayloadVisionUpdate,
	}
	packet.SetGameID(gameID)
	return &pendingPacket{packet: packet, indexes: make(map[world.Attributes]int32)}
}

// Pack encodes the known contents of coords in row-major order. Every cell's
// records stay together in one packet. clearAll is carried by the first packet.
func (p *Packer) Pack(gameID int64, known KnownCells, coords geom.Set, clearAll bool) []*protocol.Packet {
	if len(coords) == 0 && !clearAll {
		return nil
	}

	//1.- Seed the first envelope, flagging the wipe when a resync is pending.
	current := p.newPending(gameID)
	current.packet.ClearAll = clearAll
	var packets []*protocol.Packet

	//2.- Append each cell tentatively and roll it back into a fresh packet on overflow.
	for _, c := range coords.Sorted() {
		objects := len(current.packet.Objects)
		attributes := len(current.packet.Attributes)
		added := appendCell(current, c, known)
		if protocol.Size(current.packet) <= p.limit || objects == 0 {
			continue
		}
		current.packet.Objects = current.packet.Objects[:objects]
		current.packet.Attributes = current.packet.Attributes[:attributes]
		for _, key := range added {
			delete(current.indexes, key)
		}
		packets = append(packets, current.packet)
		current = p.newPending(gameID)
		appendCell(current, c, known)
	}

	//3.- Flush the trailing envelope.
	packets = append(packets, current.packet)
	return packets
}

// appendCell writes the records of one cell and returns the attribute keys it
// introduced into the packet's table.
func appendCell(pending *pendingPacket, c geom.Coordinate, known KnownCells) []world.Attributes {
	x, y := int32(c.X), int32(c.Y)
	list, ok := known.At(c)
	if !ok || len(list) == 0 {
		pending.packet.AppendObject(x, y, -1, -1)
		return nil
	}
	var added []world.Attributes
	for _, e := range list {
		idx := int32(-1)
		if !e.Attr.Empty() {
			key := e.Attr.Canonical()
			existing, seen := pending.indexes[key]
			if !seen {
				existing = int32(len(pending.packet.Attributes))
				pending.packet.Attributes = append(pending.packet.Attributes, key)
				pending.indexes[key] = existing
				added = append(added, key)
			}
			idx = existing
		}
		pending.packet.AppendObject(x, y, int32(e.Kind), idx)
	}
	return added
}
