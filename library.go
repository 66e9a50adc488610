package vibble

import (
	"encoding/json"
	"fmt"
	"log"
)

// defaultMapLightOpacity applies when a map manifest omits the light
// intensity.
const defaultMapLightOpacity = 0.6

// --- Asset info JSON shapes ---

type lightJSON struct {
	OffsetX       json.RawMessage `json:"offset_x"`
	OffsetY       json.RawMessage `json:"offset_y"`
	Radius        json.RawMessage `json:"radius"`
	FlickerAmount json.RawMessage `json:"flicker_amount"`
	FlickerHz     json.RawMessage `json:"flicker_hz"`
}

type assetInfoJSON struct {
	Type         string          `json:"type"`
	CanvasW      json.RawMessage `json:"canvas_w"`
	CanvasH      json.RawMessage `json:"canvas_h"`
	VariantSteps []float64       `json:"variant_steps"`
	Children     []string        `json:"children"`
	Lights       []lightJSON     `json:"lights"`

	SmoothScaling        json.RawMessage `json:"smooth_scaling"`
	ApplyDistanceScaling json.RawMessage `json:"apply_distance_scaling"`
	ApplyVerticalScaling json.RawMessage `json:"apply_vertical_scaling"`
	Tillable             json.RawMessage `json:"tillable"`
	MovingAsset          json.RawMessage `json:"moving_asset"`
	IsShaded             json.RawMessage `json:"is_shaded"`
	ZThreshold           json.RawMessage `json:"z_threshold"`

	Animations map[string]json.RawMessage `json:"animations"`
}

// Library is the asset info cache: authored definitions keyed by name,
// loaded once and shared by every spawned instance.
type Library struct {
	Loader *AnimationLoader

	infos map[string]*AssetInfo
}

// NewLibrary creates a library backed by the given animation loader.
func NewLibrary(loader *AnimationLoader) *Library {
	return &Library{
		Loader: loader,
		infos:  make(map[string]*AssetInfo),
	}
}

// Info returns the cached definition for an asset name, or nil when the
// library has never loaded it. Spawning against a nil info fails silently.
func (lib *Library) Info(name string) *AssetInfo {
	return lib.infos[name]
}

// Register inserts a definition directly, normalizing its variant ladder.
// Used by tests and procedural assets.
func (lib *Library) Register(info *AssetInfo) {
	if info == nil || info.Name == "" {
		return
	}
	info.VariantSteps = normalizeVariantSteps(info.VariantSteps)
	lib.infos[info.Name] = info
}

// LoadAssetInfo parses an authored asset definition and loads every
// animation it declares. Animations that fail to load are logged and left
// out; the info itself still registers so retries can fill them in later.
func (lib *Library) LoadAssetInfo(name string, raw []byte) (*AssetInfo, error) {
	var aj assetInfoJSON
	if err := json.Unmarshal(raw, &aj); err != nil {
		return nil, fmt.Errorf("vibble: asset info %s: %w", name, err)
	}

	info := &AssetInfo{
		Name:                 name,
		Type:                 aj.Type,
		CanvasW:              permInt(aj.CanvasW, 0),
		CanvasH:              permInt(aj.CanvasH, 0),
		VariantSteps:         normalizeVariantSteps(aj.VariantSteps),
		ChildNames:           aj.Children,
		SmoothScaling:        permBool(aj.SmoothScaling, false),
		ApplyDistanceScaling: permBool(aj.ApplyDistanceScaling, true),
		ApplyVerticalScaling: permBool(aj.ApplyVerticalScaling, true),
		Tillable:             permBool(aj.Tillable, false),
		MovingAsset:          permBool(aj.MovingAsset, false),
		IsShaded:             permBool(aj.IsShaded, false),
		ZThreshold:           permInt(aj.ZThreshold, 0),
		Animations:           make(map[string]*Animation),
	}

	for _, lj := range aj.Lights {
		info.Lights = append(info.Lights, LightSource{
			OffsetX:       permInt(lj.OffsetX, 0),
			OffsetY:       permInt(lj.OffsetY, 0),
			Radius:        permFloat(lj.Radius, 0),
			FlickerAmount: permFloat(lj.FlickerAmount, 0),
			FlickerHz:     permFloat(lj.FlickerHz, 0),
		})
	}

	if lib.Loader != nil {
		for animName, animRaw := range aj.Animations {
			if _, err := lib.Loader.LoadAnimation(info, animName, animRaw); err != nil {
				log.Printf("vibble: %s: %v", name, err)
			}
		}
	}

	lib.infos[name] = info
	return info, nil
}

// --- Map manifest ---

// MapLightData is a map's ambient lighting: the clear color and the
// dark-mask overlay opacity.
type MapLightData struct {
	MapColor Color
	Opacity  float64
}

// MapGridSettings is a map's spatial configuration.
type MapGridSettings struct {
	ChunkResolution int
	TileSpacing     int
}

// MapSettings is one map's parsed manifest entry.
type MapSettings struct {
	ID    string
	Light MapLightData
	Grid  MapGridSettings
}

type mapLightJSON struct {
	MapColor  []int           `json:"map_color"`
	Intensity json.RawMessage `json:"intensity"`
}

type mapGridJSON struct {
	RChunk      json.RawMessage `json:"r_chunk"`
	TileSpacing json.RawMessage `json:"tile_spacing"`
}

type mapEntryJSON struct {
	LightData    *mapLightJSON `json:"map_light_data"`
	GridSettings *mapGridJSON  `json:"map_grid_settings"`
}

type manifestJSON struct {
	Maps map[string]mapEntryJSON `json:"maps"`
}

// ParseMapManifest reads the maps manifest. Light intensity is authored in
// [0, 255] and stored as the fraction intensity/255; omitted intensity falls
// back to the default opacity.
func ParseMapManifest(raw []byte) (map[string]*MapSettings, error) {
	var mj manifestJSON
	if err := json.Unmarshal(raw, &mj); err != nil {
		return nil, fmt.Errorf("vibble: map manifest: %w", err)
	}

	out := make(map[string]*MapSettings, len(mj.Maps))
	for id, entry := range mj.Maps {
		ms := &MapSettings{
			ID: id,
			Light: MapLightData{
				MapColor: Color{A: 1},
				Opacity:  defaultMapLightOpacity,
			},
			Grid: MapGridSettings{
				ChunkResolution: 8,
				TileSpacing:     256,
			},
		}
		if ld := entry.LightData; ld != nil {
			if len(ld.MapColor) >= 3 {
				ms.Light.MapColor = Color{
					R: float64(ld.MapColor[0]) / 255,
					G: float64(ld.MapColor[1]) / 255,
					B: float64(ld.MapColor[2]) / 255,
					A: 1,
				}
			}
			if len(ld.Intensity) > 0 {
				ms.Light.Opacity = clamp01(permFloat(ld.Intensity, defaultMapLightOpacity*255) / 255)
			}
		}
		if gs := entry.GridSettings; gs != nil {
			ms.Grid.ChunkResolution = ClampResolution(permInt(gs.RChunk, 8))
			ms.Grid.TileSpacing = permInt(gs.TileSpacing, 256)
		}
		out[id] = ms
	}
	return out, nil
}
