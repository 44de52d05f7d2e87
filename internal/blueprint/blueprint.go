// Package blueprint describes scenes in YAML and builds them on a scene manager.
package blueprint

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/l1jgo/scenecore/internal/core/object"
	"github.com/l1jgo/scenecore/internal/core/xform"
	"github.com/l1jgo/scenecore/internal/scene"
	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("blueprint: invalid")

type Blueprint struct {
	Name    string       `yaml:"name"`
	World   string       `yaml:"world"`
	Objects []ObjectSpec `yaml:"objects"`
}

type ObjectSpec struct {
	Name       string          `yaml:"name"`
	Transform  TransformSpec   `yaml:"transform"`
	Components []ComponentSpec `yaml:"components"`
	Children   []ObjectSpec    `yaml:"children"`
}

type TransformSpec struct {
	Translation [3]float64  `yaml:"translation"`
	RotationZ   float64     `yaml:"rotation_z"`
	Scale       *[3]float64 `yaml:"scale"`
}

func (t TransformSpec) transform() xform.Transform {
	out := xform.FromTranslation(mgl64.Vec3(t.Translation))
	out.Rotation = xform.RotationZ(t.RotationZ)
	if t.Scale != nil {
		out.Scale = mgl64.Vec3(*t.Scale)
	}
	return out
}

// ComponentSpec names a registered component type. Properties are decoded
// into the component's exported fields.
type ComponentSpec struct {
	Type       string    `yaml:"type"`
	Properties yaml.Node `yaml:"properties"`
}

func Parse(data []byte) (*Blueprint, error) {
	var bp Blueprint
	if err := yaml.Unmarshal(data, &bp); err != nil {
		return nil, fmt.Errorf("blueprint: unmarshal: %w", err)
	}
	if err := bp.validate(); err != nil {
		return nil, err
	}
	return &bp, nil
}

func Load(path string) (*Blueprint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("blueprint: load %s: %w", path, err)
	}
	bp, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return bp, nil
}

// Files lists the blueprint files of dir in name order.
func Files(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && isBlueprintFile(e.Name()) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

func isBlueprintFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func (bp *Blueprint) validate() error {
	if bp.Name == "" {
		return fmt.Errorf("%w: missing scene name", ErrInvalid)
	}
	var check func(path string, objs []ObjectSpec) error
	check = func(path string, objs []ObjectSpec) error {
		for i, o := range objs {
			p := fmt.Sprintf("%s/%s", path, o.Name)
			if o.Name == "" {
				return fmt.Errorf("%w: object %d under %s has no name", ErrInvalid, i, path)
			}
			for j, c := range o.Components {
				if c.Type == "" {
					return fmt.Errorf("%w: component %d of %s has no type", ErrInvalid, j, p)
				}
			}
			if err := check(p, o.Children); err != nil {
				return err
			}
		}
		return nil
	}
	return check(bp.Name, bp.Objects)
}

// Build creates the inactive scene described by bp. Nothing is left behind
// on error.
func Build(m *scene.Manager, bp *Blueprint) (object.Ptr[*scene.Scene], error) {
	sp := m.NewScene(bp.Name)
	root := sp.Get().Root()
	for _, spec := range bp.Objects {
		if err := buildObject(m, root, spec); err != nil {
			sp.Reset()
			return object.Ptr[*scene.Scene]{}, fmt.Errorf("blueprint %s: %w", bp.Name, err)
		}
	}
	return sp, nil
}

func buildObject(m *scene.Manager, parent *scene.Object, spec ObjectSpec) error {
	p := m.NewObject(spec.Name)
	obj := p.Get()
	obj.SetTransform(spec.Transform.transform())
	for _, cs := range spec.Components {
		var decodeErr error
		_, err := obj.AddComponentByName(cs.Type, func(c scene.Component) {
			if cs.Properties.Kind == 0 {
				return
			}
			decodeErr = cs.Properties.Decode(c)
		})
		if err == nil && decodeErr != nil {
			err = fmt.Errorf("%w: properties of %s: %v", ErrInvalid, cs.Type, decodeErr)
		}
		if err != nil {
			p.Reset()
			return fmt.Errorf("object %s: %w", spec.Name, err)
		}
	}
	for _, child := range spec.Children {
		if err := buildObject(m, obj, child); err != nil {
			p.Reset()
			return err
		}
	}
	parent.AttachChild(&p)
	return nil
}
