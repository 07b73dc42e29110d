package main

import (
	"fmt"
	"os"

	"github.com/akmonengine/lens/engine"
	"github.com/akmonengine/lens/volume"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/goccy/go-yaml"
)

// sceneFile is the YAML description of a gallery
type sceneFile struct {
	Player   string       `yaml:"player"`
	Viewport viewportFile `yaml:"viewport"`
	Entities []entityFile `yaml:"entities"`
	// Path is the list of viewport positions to visit
	Path [][]float64 `yaml:"path"`
}

type viewportFile struct {
	Position []float64 `yaml:"position"`
	Fov      float64   `yaml:"fov"`
	Width    float64   `yaml:"width"`
	Height   float64   `yaml:"height"`
}

type entityFile struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Parent string `yaml:"parent"`

	Position []float64 `yaml:"position"`
	// Rotation is given as XYZ euler angles, in degrees
	Rotation []float64 `yaml:"rotation"`
	Scale    []float64 `yaml:"scale"`

	Box      *boxFile `yaml:"box"`
	SceneRef string   `yaml:"sceneRef"`
	Collider bool     `yaml:"collider"`
}

type boxFile struct {
	HalfExtents []float64 `yaml:"halfExtents"`
	Offset      []float64 `yaml:"offset"`
}

func loadScene(path string) (sceneFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return sceneFile{}, err
	}

	var scene sceneFile
	if err := yaml.Unmarshal(data, &scene); err != nil {
		return sceneFile{}, fmt.Errorf("scene %s: %w", path, err)
	}
	if scene.Player == "" {
		scene.Player = "player"
	}
	if scene.Viewport.Fov == 0 {
		scene.Viewport.Fov = 60
	}
	if scene.Viewport.Width == 0 || scene.Viewport.Height == 0 {
		scene.Viewport.Width, scene.Viewport.Height = 1280, 720
	}
	return scene, nil
}

func vec3(values []float64, fallback mgl64.Vec3) (mgl64.Vec3, error) {
	switch len(values) {
	case 0:
		return fallback, nil
	case 3:
		return mgl64.Vec3{values[0], values[1], values[2]}, nil
	default:
		return mgl64.Vec3{}, fmt.Errorf("expected 3 components, got %d", len(values))
	}
}

func (e entityFile) spec() (engine.EntitySpec, error) {
	transform := volume.NewTransform()

	var err error
	if transform.Position, err = vec3(e.Position, mgl64.Vec3{}); err != nil {
		return engine.EntitySpec{}, fmt.Errorf("%s position: %w", e.Name, err)
	}
	if transform.Scale, err = vec3(e.Scale, mgl64.Vec3{1, 1, 1}); err != nil {
		return engine.EntitySpec{}, fmt.Errorf("%s scale: %w", e.Name, err)
	}
	angles, err := vec3(e.Rotation, mgl64.Vec3{})
	if err != nil {
		return engine.EntitySpec{}, fmt.Errorf("%s rotation: %w", e.Name, err)
	}
	transform.Rotation = mgl64.AnglesToQuat(
		mgl64.DegToRad(angles.X()),
		mgl64.DegToRad(angles.Y()),
		mgl64.DegToRad(angles.Z()),
		mgl64.XYZ,
	)

	components := make(map[string]any)
	if e.Box != nil {
		halfExtents, err := vec3(e.Box.HalfExtents, mgl64.Vec3{0.5, 0.5, 0.5})
		if err != nil {
			return engine.EntitySpec{}, fmt.Errorf("%s half extents: %w", e.Name, err)
		}
		offset, err := vec3(e.Box.Offset, mgl64.Vec3{})
		if err != nil {
			return engine.EntitySpec{}, fmt.Errorf("%s offset: %w", e.Name, err)
		}
		components[engine.ComponentBoxGeometry] = engine.BoxGeometry{HalfExtents: halfExtents, Offset: offset}
	}
	if e.SceneRef != "" {
		components[engine.ComponentSceneRef] = e.SceneRef
	}
	if e.Collider {
		components[engine.ComponentPhysicsMaterial] = struct{}{}
	}

	return engine.EntitySpec{
		ID:         engine.EntityID(e.ID),
		Name:       e.Name,
		Parent:     engine.EntityID(e.Parent),
		Transform:  transform,
		Components: components,
	}, nil
}

// populate adds the player, the entities and the viewport to m
func (s sceneFile) populate(m *engine.Memory) error {
	if _, err := m.AddEntity(engine.EntitySpec{ID: engine.EntityID(s.Player), Name: "Player"}); err != nil {
		return err
	}
	for _, e := range s.Entities {
		spec, err := e.spec()
		if err != nil {
			return err
		}
		if _, err := m.AddEntity(spec); err != nil {
			return err
		}
	}

	position, err := vec3(s.Viewport.Position, mgl64.Vec3{})
	if err != nil {
		return fmt.Errorf("viewport: %w", err)
	}
	transform := volume.NewTransform()
	transform.Position = position
	m.SetViewports(engine.Viewport{
		ID:        1,
		Transform: transform,
		Camera:    engine.NewViewportCamera(transform, mgl64.DegToRad(s.Viewport.Fov), s.Viewport.Width/s.Viewport.Height),
	})
	return nil
}
