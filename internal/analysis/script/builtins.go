package script

import (
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/guianderson/terrama2/internal/analysis/operators"
	"github.com/guianderson/terrama2/internal/geometry"
)

// bufferValue is the script-side Buffer(...) object.
type bufferValue struct {
	spec operators.BufferSpec
}

var _ starlark.Value = (*bufferValue)(nil)

func (b *bufferValue) String() string        { return b.spec.String() }
func (b *bufferValue) Type() string          { return "Buffer" }
func (b *bufferValue) Freeze()               {}
func (b *bufferValue) Truth() starlark.Bool  { return starlark.True }
func (b *bufferValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: Buffer") }

type builtinFunc = func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error)

// predeclared builds the per-row environment. Operator families the
// analysis type does not offer are left out of their module.
func predeclared(scope *operators.Scope, lib *operators.Library) starlark.StringDict {
	bufferTypes := starlark.StringDict{}
	for _, t := range geometry.BufferTypes() {
		bufferTypes[t.String()] = starlark.MakeInt(int(t))
	}

	dcpMembers := starlark.StringDict{}
	if lib.Provides(operators.FamilyDCPZonal) {
		zonal := statFuncs("dcp.zonal", func(stat operators.Statistic) builtinFunc { return dcpZonal(scope, stat) })
		zonal["influence"] = module("influence", starlark.StringDict{
			"by_rule":   starlark.NewBuiltin("dcp.zonal.influence.by_rule", influence(scope.InfluenceByRule)),
			"by_buffer": starlark.NewBuiltin("dcp.zonal.influence.by_buffer", influence(scope.InfluenceByBuffer)),
		})
		dcpMembers["zonal"] = module("zonal", zonal)
	}
	if lib.Provides(operators.FamilyDCPHistory) {
		dcpMembers["history"] = module("history",
			statFuncs("dcp.history", func(stat operators.Statistic) builtinFunc { return history(scope, stat) }))
	}

	occurrenceMembers := starlark.StringDict{}
	if lib.Provides(operators.FamilyOccurrenceZonal) {
		occurrenceMembers["zonal"] = module("zonal",
			statFuncs("occurrence.zonal", func(stat operators.Statistic) builtinFunc { return occurrenceZonal(scope, stat) }))
	}

	return starlark.StringDict{
		"Buffer":     starlark.NewBuiltin("Buffer", newBuffer),
		"BufferType": module("BufferType", bufferTypes),
		"dcp":        module("dcp", dcpMembers),
		"occurrence": module("occurrence", occurrenceMembers),
		"add_value":  starlark.NewBuiltin("add_value", addValue(scope)),
	}
}

func module(name string, members starlark.StringDict) *starlarkstruct.Module {
	return &starlarkstruct.Module{Name: name, Members: members}
}

func statFuncs(prefix string, build func(operators.Statistic) builtinFunc) starlark.StringDict {
	d := starlark.StringDict{}
	for _, stat := range operators.Statistics() {
		d[string(stat)] = starlark.NewBuiltin(prefix+"."+string(stat), build(stat))
	}
	return d
}

// Buffer(type=BufferType.None, distance=0, unit="m")
func newBuffer(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		kind     = int(geometry.BufferNone)
		distance starlark.Value
		unit     = string(geometry.Meter)
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "type?", &kind, "distance?", &distance, "unit?", &unit); err != nil {
		return nil, err
	}
	if kind < int(geometry.BufferNone) || kind > int(geometry.BufferInDiff) {
		return nil, fmt.Errorf("%s: unknown buffer type %d", b.Name(), kind)
	}
	spec := operators.BufferSpec{Type: geometry.BufferType(kind), Unit: unit}
	if distance != nil {
		d, ok := starlark.AsFloat(distance)
		if !ok {
			return nil, fmt.Errorf("%s: distance must be a number, got %s", b.Name(), distance.Type())
		}
		spec.Distance = d
	}
	if spec.Distance < 0 {
		return nil, fmt.Errorf("%s: distance must not be negative", b.Name())
	}
	if _, err := geometry.ParseUnit(unit); err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return &bufferValue{spec: spec}, nil
}

func asBuffer(fn string, v starlark.Value) (operators.BufferSpec, error) {
	if v == nil || v == starlark.None {
		return operators.BufferSpec{Type: geometry.BufferNone}, nil
	}
	buf, ok := v.(*bufferValue)
	if !ok {
		return operators.BufferSpec{}, fmt.Errorf("%s: expected Buffer, got %s", fn, v.Type())
	}
	return buf.spec, nil
}

func asIDs(fn string, v starlark.Value) ([]string, error) {
	iterable, ok := v.(starlark.Iterable)
	if !ok {
		return nil, fmt.Errorf("%s: expected a list of identifiers, got %s", fn, v.Type())
	}
	var ids []string
	it := iterable.Iterate()
	defer it.Done()
	var item starlark.Value
	for it.Next(&item) {
		s, ok := starlark.AsString(item)
		if !ok {
			return nil, fmt.Errorf("%s: identifiers must be strings, got %s", fn, item.Type())
		}
		ids = append(ids, s)
	}
	return ids, nil
}

func idList(ids []string) *starlark.List {
	elems := make([]starlark.Value, len(ids))
	for i, id := range ids {
		elems[i] = starlark.String(id)
	}
	return starlark.NewList(elems)
}

// influence(name, buffer) -> list of station ids
func influence(selectFn func(string, operators.BufferSpec) ([]string, error)) builtinFunc {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var (
			name string
			buf  starlark.Value
		)
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name, "buffer?", &buf); err != nil {
			return nil, err
		}
		spec, err := asBuffer(b.Name(), buf)
		if err != nil {
			return nil, err
		}
		ids, err := selectFn(name, spec)
		if err != nil {
			return nil, err
		}
		return idList(ids), nil
	}
}

// dcp.zonal.count(name, buffer_or_ids)
// dcp.zonal.<stat>(name, attribute, buffer_or_ids)
func dcpZonal(scope *operators.Scope, stat operators.Statistic) builtinFunc {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var (
			name, attribute string
			selection       starlark.Value
		)
		var err error
		if stat == operators.Count {
			err = starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name, "ids", &selection)
		} else {
			err = starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name, "attribute", &attribute, "ids", &selection)
		}
		if err != nil {
			return nil, err
		}

		var ids []string
		if buf, ok := selection.(*bufferValue); ok {
			ids, err = scope.InfluenceByBuffer(name, buf.spec)
		} else {
			ids, err = asIDs(b.Name(), selection)
		}
		if err != nil {
			return nil, err
		}

		v, err := scope.DCPZonal(stat, name, attribute, ids)
		if err != nil {
			return nil, err
		}
		return starlark.Float(v), nil
	}
}

// occurrence.zonal.count(name, window, buffer=None)
// occurrence.zonal.<stat>(name, attribute, window, buffer=None)
func occurrenceZonal(scope *operators.Scope, stat operators.Statistic) builtinFunc {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var (
			name, attribute, window string
			buf                     starlark.Value
		)
		var err error
		if stat == operators.Count {
			err = starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name, "window", &window, "buffer?", &buf)
		} else {
			err = starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name, "attribute", &attribute, "window", &window, "buffer?", &buf)
		}
		if err != nil {
			return nil, err
		}
		spec, err := asBuffer(b.Name(), buf)
		if err != nil {
			return nil, err
		}
		v, err := scope.OccurrenceZonal(stat, name, attribute, window, spec)
		if err != nil {
			return nil, err
		}
		return starlark.Float(v), nil
	}
}

// dcp.history.<stat>(name, attribute, window)
func history(scope *operators.Scope, stat operators.Statistic) builtinFunc {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var name, attribute, window string
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name, "attribute", &attribute, "window", &window); err != nil {
			return nil, err
		}
		v, err := scope.History(stat, name, attribute, window)
		if err != nil {
			return nil, err
		}
		return starlark.Float(v), nil
	}
}

// add_value(attribute, value)
func addValue(scope *operators.Scope) builtinFunc {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var (
			name  string
			value starlark.Value
		)
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "attribute", &name, "value", &value); err != nil {
			return nil, err
		}
		goValue, err := toGo(value)
		if err != nil {
			return nil, fmt.Errorf("%s(%q): %w", b.Name(), name, err)
		}
		if err := scope.Emit(name, goValue); err != nil {
			return nil, err
		}
		return starlark.None, nil
	}
}

func toGo(v starlark.Value) (any, error) {
	switch x := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(x), nil
	case starlark.Int:
		n, ok := x.Int64()
		if !ok {
			return nil, fmt.Errorf("integer %s out of range", x)
		}
		return n, nil
	case starlark.Float:
		return float64(x), nil
	case starlark.String:
		return string(x), nil
	default:
		return nil, fmt.Errorf("unsupported value type %s", v.Type())
	}
}
