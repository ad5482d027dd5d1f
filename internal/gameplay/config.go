package gameplay

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// Fire arguments above the bullet powers select slime launchers.
const (
	MaxBulletPower = 9
	SmallSlime     = 10
	BigSlime       = 11
)

// SlimeSize holds the per-size parameters of a slime launcher.
type SlimeSize struct {
	Cost           int     `yaml:"cost"`
	Spread         int     `yaml:"spread"`
	SecondsPerCell float64 `yaml:"seconds_per_cell"`
}

// SlimeTuning groups the slime hazard parameters.
type SlimeTuning struct {
	Small      SlimeSize `yaml:"small"`
	Big        SlimeSize `yaml:"big"`
	SpreadTime float64   `yaml:"spread_time"`
	Damage     int       `yaml:"damage"`
}

// LavaTuning controls pool damage.
type LavaTuning struct {
	Interval float64 `yaml:"interval"`
	Damage   int     `yaml:"damage"`
}

// MineTuning holds the chances that stepping on a mine disarms it.
type MineTuning struct {
	Direct    float64 `yaml:"direct"`
	Backwards float64 `yaml:"backwards"`
	Side      float64 `yaml:"side"`
	SmallAmmo int     `yaml:"small_ammo"`
	BigAmmo   int     `yaml:"big_ammo"`
}

// Tuning captures every gameplay constant that may be adjusted without a
// protocol change.
type Tuning struct {
	StartHP              int         `yaml:"start_hp"`
	StartAmmo            int         `yaml:"start_ammo"`
	FFAAmmoBonus         int         `yaml:"ffa_ammo_bonus"`
	StabDamage           int         `yaml:"stab_damage"`
	BulletSecondsPerCell []float64   `yaml:"bullet_seconds_per_cell"`
	ExplosionLife        float64     `yaml:"explosion_life"`
	Slime                SlimeTuning `yaml:"slime"`
	Lava                 LavaTuning  `yaml:"lava"`
	Mines                MineTuning  `yaml:"mines"`
}

// BulletPeriod returns the seconds a bullet of the given power needs per cell.
func (t Tuning) BulletPeriod(power int) (float64, bool) {
	if power < 1 || power > len(t.BulletSecondsPerCell) {
		return 0, false
	}
	return t.BulletSecondsPerCell[power-1], true
}

// MaxPower is the strongest bullet the tuning defines.
func (t Tuning) MaxPower() int { return len(t.BulletSecondsPerCell) }

// SlimeFor returns the launcher parameters for slime size 1 or 2.
func (t Tuning) SlimeFor(size int) (SlimeSize, bool) {
	switch size {
	case 1:
		return t.Slime.Small, true
	case 2:
		return t.Slime.Big, true
	}
	return SlimeSize{}, false
}

// DisarmAmmo is the ammo reward for disarming a mine of the given size.
func (t Tuning) DisarmAmmo(size int) int {
	switch size {
	case 1:
		return t.Mines.SmallAmmo
	case 2:
		return t.Mines.BigAmmo
	}
	return 0
}

//go:embed defaults.yaml
var defaultsPayload []byte

//go:embed tuning.schema.json
var schemaPayload []byte

var (
	defaultsOnce sync.Once
	defaultsData Tuning
	defaultsErr  error

	schemaOnce sync.Once
	schemaData *jsonschema.Schema
	schemaErr  error
)

// Defaults exposes the embedded tuning.
func Defaults() Tuning {
	defaultsOnce.Do(func() {
		//1.- Parse the embedded YAML exactly once.
		defaultsData, defaultsErr = Parse(defaultsPayload, Tuning{})
	})
	//2.- A broken embedded payload is a build defect, fail loudly.
	if defaultsErr != nil {
		panic(defaultsErr)
	}
	//3.- Hand out a copy so callers cannot mutate the cached slice.
	out := defaultsData
	out.BulletSecondsPerCell = append([]float64(nil), defaultsData.BulletSecondsPerCell...)
	return out
}

// Load reads a tuning file, overlaying it on the embedded defaults. An empty
// path yields the defaults.
func Load(path string) (Tuning, error) {
	if path == "" {
		return Defaults(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Tuning{}, fmt.Errorf("read tuning: %w", err)
	}
	t, err := Parse(raw, Defaults())
	if err != nil {
		return Tuning{}, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Parse decodes YAML over base and validates the merged result.
func Parse(raw []byte, base Tuning) (Tuning, error) {
	t := base
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return Tuning{}, fmt.Errorf("decode tuning: %w", err)
	}
	if err := Validate(t); err != nil {
		return Tuning{}, err
	}
	return t, nil
}

// Validate checks the tuning against the embedded JSON schema.
func Validate(t Tuning) error {
	schema, err := tuningSchema()
	if err != nil {
		return err
	}
	//1.- Re-encode through YAML so the schema sees the same keys a file would use.
	encoded, err := yaml.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode tuning: %w", err)
	}
	var doc any
	if err := yaml.Unmarshal(encoded, &doc); err != nil {
		return fmt.Errorf("decode tuning: %w", err)
	}
	//2.- Normalise to JSON values, the validator expects json.Unmarshal output.
	asJSON, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode tuning: %w", err)
	}
	var value any
	if err := json.Unmarshal(asJSON, &value); err != nil {
		return fmt.Errorf("decode tuning: %w", err)
	}
	if err := schema.Validate(value); err != nil {
		return fmt.Errorf("invalid tuning: %w", err)
	}
	return nil
}

func tuningSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("tuning.schema.json", bytes.NewReader(schemaPayload)); err != nil {
			schemaErr = fmt.Errorf("load tuning schema: %w", err)
			return
		}
		schemaData, schemaErr = compiler.Compile("tuning.schema.json")
	})
	return schemaData, schemaErr
}
