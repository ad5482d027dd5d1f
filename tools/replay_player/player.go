package replayplayer

import (
	"fmt"
	"sort"
	"time"

	"whiteshoe/server/internal/client"
	"whiteshoe/server/internal/protocol"
	"whiteshoe/server/internal/replay"
)

// Summary condenses a run for operators.
type Summary struct {
	RunID   string                `json:"run_id"`
	Seed    string                `json:"seed,omitempty"`
	Mode    string                `json:"mode,omitempty"`
	Vision  string                `json:"vision,omitempty"`
	Start   time.Time             `json:"start"`
	End     time.Time             `json:"end"`
	Events  map[string]int        `json:"events"`
	Frames  map[string]int        `json:"frames"`
	Players []int                 `json:"players"`
	Scores  map[int64]map[int]int `json:"scores"`
	Names   map[int]string        `json:"names"`
	Damage  map[string]int        `json:"damage"`
}

// Summarize counts events and frames and recomputes scores from deaths.
func Summarize(b *replay.Bundle) Summary {
	s := Summary{
		RunID:  b.Manifest.RunID,
		Events: make(map[string]int),
		Frames: make(map[string]int),
		Scores: make(map[int64]map[int]int),
		Names:  make(map[int]string),
		Damage: make(map[string]int),
	}
	if b.Header != nil {
		s.Seed = b.Header.Seed
		s.Mode = b.Header.Mode
		s.Vision = b.Header.Vision
	}
	timeline := b.Timeline()
	if len(timeline) > 0 {
		s.Start = timeline[0].CapturedAt
		s.End = timeline[len(timeline)-1].CapturedAt
	}

	players := make(map[int]struct{})
	for _, e := range b.Events {
		s.Events[e.Status]++
		players[e.PlayerID] = struct{}{}
		if e.Name != "" {
			s.Names[e.PlayerID] = e.Name
		}
		if e.Status != protocol.StatusDeath.String() {
			continue
		}
		s.Damage[e.Damage]++
		//1.- Deaths score like the live game: the killer gains, a self or
		// environmental death costs the victim.
		table := s.Scores[e.GameID]
		if table == nil {
			table = make(map[int]int)
			s.Scores[e.GameID] = table
		}
		if e.Responsible == e.PlayerID || e.Responsible < 0 {
			table[e.PlayerID]--
		} else {
			table[e.Responsible]++
		}
	}
	for _, f := range b.Frames {
		s.Frames[f.Packet.PayloadType.String()]++
	}
	s.Players = make([]int, 0, len(players))
	for id := range players {
		s.Players = append(s.Players, id)
	}
	sort.Ints(s.Players)
	return s
}

// Reconstruct replays the packets sent to one player up to and including
// until, returning what that player's client knew. A zero until replays the
// whole run.
func Reconstruct(b *replay.Bundle, playerID int, until time.Time) (*client.Model, int, error) {
	model := client.NewModel()
	applied := 0
	for _, f := range b.Frames {
		if f.PlayerID != playerID {
			continue
		}
		if !until.IsZero() && f.CapturedAt.After(until) {
			break
		}
		if err := model.Apply(f.Packet); err != nil {
			return nil, applied, fmt.Errorf("frame at %s: %w", f.CapturedAt.Format(time.RFC3339Nano), err)
		}
		applied++
	}
	return model, applied, nil
}
