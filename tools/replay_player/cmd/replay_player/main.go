package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"whiteshoe/server/internal/replay"
	"whiteshoe/server/tools/replay_player"
)

type view struct {
	PlayerID int            `json:"player_id"`
	Frames   int            `json:"frames"`
	GameID   int64          `json:"game_id"`
	InGame   bool           `json:"in_game"`
	Known    int            `json:"known_cells"`
	Position *[2]int        `json:"position,omitempty"`
	Roster   map[int]string `json:"roster"`
}

func main() {
	path := flag.String("path", "", "Path to a run directory or manifest.json")
	player := flag.Int("player", -1, "Reconstruct what this player id knew")
	untilRaw := flag.String("until", "", "Stop the reconstruction at this RFC3339 time")
	flag.Parse()

	if *path == "" {
		fmt.Fprintln(os.Stderr, "path flag is required")
		os.Exit(1)
	}
	var until time.Time
	if *untilRaw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, *untilRaw)
		if err != nil {
			fmt.Fprintln(os.Stderr, "until:", err)
			os.Exit(1)
		}
		until = parsed
	}

	bundle, err := replay.Load(*path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}

	payload := struct {
		Summary replayplayer.Summary `json:"summary"`
		View    *view                `json:"view,omitempty"`
	}{Summary: replayplayer.Summarize(bundle)}

	//1.- Optionally rebuild one player's client state from the frames they received.
	if *player >= 0 {
		model, applied, err := replayplayer.Reconstruct(bundle, *player, until)
		if err != nil {
			fmt.Fprintln(os.Stderr, "reconstruct:", err)
			os.Exit(2)
		}
		v := &view{
			PlayerID: *player,
			Frames:   applied,
			GameID:   model.GameID,
			InGame:   model.InGame,
			Known:    len(model.Coordinates()),
			Roster:   model.Roster(),
		}
		if at, _, ok := model.FindMe(); ok {
			v.Position = &[2]int{at.X, at.Y}
		}
		payload.View = v
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		fmt.Fprintln(os.Stderr, "encode error:", err)
		os.Exit(3)
	}
}
