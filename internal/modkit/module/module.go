// Package module holds the mount contract for service modules and a process wide table
// of the ports they export
package module

import (
	"reflect"
	"sync"

	phttp "turnstiled/internal/platform/net/http"
)

// Module is something the server can mount and then ask for ports
type Module interface {
	MountRoutes(r phttp.Router)
	Ports() any
	Name() string
}

// PortsOf finds a T in m.Ports(): either the bundle itself or one of its exported fields
func PortsOf[T any](m Module) (T, bool) {
	var zero T
	p := m.Ports()
	if p == nil {
		return zero, false
	}
	if v, ok := p.(T); ok {
		return v, true
	}
	rv := reflect.ValueOf(p)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return zero, false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return zero, false
	}
	for i := range rv.NumField() {
		f := rv.Field(i)
		if !f.CanInterface() {
			continue
		}
		if v, ok := f.Interface().(T); ok {
			return v, true
		}
	}
	return zero, false
}

// MustPortsOf is PortsOf for bootstrap code, where a missing port is a wiring bug
func MustPortsOf[T any](m Module) T {
	v, ok := PortsOf[T](m)
	if !ok {
		panic("module: " + m.Name() + " exports no " + reflect.TypeFor[T]().String())
	}
	return v
}

var (
	tableMu sync.RWMutex
	table   = map[string]any{}
)

// Register publishes a module's ports under its name, replacing any earlier entry
func Register(name string, ports any) {
	tableMu.Lock()
	defer tableMu.Unlock()
	table[name] = ports
}

// PortsAs looks up the ports published under name as a T
func PortsAs[T any](name string) (T, bool) {
	tableMu.RLock()
	v, ok := table[name]
	tableMu.RUnlock()
	t, ok2 := v.(T)
	return t, ok && ok2
}

// Reset empties the table. Tests call it in cleanup
func Reset() {
	tableMu.Lock()
	defer tableMu.Unlock()
	clear(table)
}
