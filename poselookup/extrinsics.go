// Package poselookup provides the time-indexed transform lookups the preintegration engine and the
// frame initializers depend on: sensor extrinsics and buffered world poses.
package poselookup

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"

	"go.viam.com/preintegration/spatialmath"
)

// ExtrinsicsLookup returns T_PARENT_CHILD, the transform taking points in child to parent, valid
// at time t.
type ExtrinsicsLookup interface {
	Lookup(parent, child string, t time.Time) (mgl64.Mat4, error)
}

// NewFrameMissingError returns an error indicating that the named frame is unknown.
func NewFrameMissingError(name string) error {
	return errors.Errorf("frame %q not found", name)
}

// NewDisconnectedFramesError returns an error indicating that two frames share no common root.
func NewDisconnectedFramesError(a, b string) error {
	return errors.Errorf("frames %q and %q are not connected", a, b)
}

type staticFrame struct {
	parent   string
	toParent mgl64.Mat4
}

// StaticExtrinsics is a tree of rigidly attached frames. Any two frames under the same root can
// be looked up, in either direction.
type StaticExtrinsics struct {
	mu     sync.RWMutex
	frames map[string]staticFrame
}

// NewStaticExtrinsics returns an empty frame tree.
func NewStaticExtrinsics() *StaticExtrinsics {
	return &StaticExtrinsics{frames: map[string]staticFrame{}}
}

// AddFrame attaches child to parent with the fixed transform T_PARENT_CHILD.
func (se *StaticExtrinsics) AddFrame(parent, child string, tParentChild mgl64.Mat4) error {
	if parent == "" || child == "" {
		return errors.New("frame names cannot be empty")
	}
	if parent == child {
		return errors.Errorf("frame %q cannot be its own parent", child)
	}
	se.mu.Lock()
	defer se.mu.Unlock()
	if _, ok := se.frames[child]; ok {
		return errors.Errorf("frame %q already has a parent", child)
	}
	for name := parent; ; {
		f, ok := se.frames[name]
		if !ok {
			break
		}
		if f.parent == child {
			return errors.Errorf("attaching %q to %q would create a cycle", child, parent)
		}
		name = f.parent
	}
	se.frames[child] = staticFrame{parent: parent, toParent: tParentChild}
	return nil
}

// FrameNames returns every frame that has a parent.
func (se *StaticExtrinsics) FrameNames() []string {
	se.mu.RLock()
	defer se.mu.RUnlock()
	names := make([]string, 0, len(se.frames))
	for name := range se.frames {
		names = append(names, name)
	}
	return names
}

// Lookup returns T_PARENT_CHILD. The time is ignored since all frames are rigid.
func (se *StaticExtrinsics) Lookup(parent, child string, _ time.Time) (mgl64.Mat4, error) {
	if parent == child {
		return mgl64.Ident4(), nil
	}
	se.mu.RLock()
	defer se.mu.RUnlock()
	rootParent, tRootParent := se.toRoot(parent)
	rootChild, tRootChild := se.toRoot(child)
	if rootParent != rootChild {
		if !se.known(parent) {
			return mgl64.Mat4{}, NewFrameMissingError(parent)
		}
		if !se.known(child) {
			return mgl64.Mat4{}, NewFrameMissingError(child)
		}
		return mgl64.Mat4{}, NewDisconnectedFramesError(parent, child)
	}
	return spatialmath.InvertTransform(tRootParent).Mul4(tRootChild), nil
}

func (se *StaticExtrinsics) known(name string) bool {
	if _, ok := se.frames[name]; ok {
		return true
	}
	for _, f := range se.frames {
		if f.parent == name {
			return true
		}
	}
	return false
}

// toRoot composes transforms up to the root of name.
func (se *StaticExtrinsics) toRoot(name string) (string, mgl64.Mat4) {
	tf := mgl64.Ident4()
	for {
		f, ok := se.frames[name]
		if !ok {
			return name, tf
		}
		tf = f.toParent.Mul4(tf)
		name = f.parent
	}
}

func (se *StaticExtrinsics) String() string {
	se.mu.RLock()
	defer se.mu.RUnlock()
	return fmt.Sprintf("static extrinsics with %d frames", len(se.frames))
}
